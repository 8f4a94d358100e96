// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package common

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	ouroboros "github.com/blinklabs-io/ouroboros-fetch"
)

type GlobalFlags struct {
	Flagset      *flag.FlagSet
	Address      string
	Topology     string
	Network      string
	NetworkMagic int
	NetworksFile string
	Debug        bool
	// Resolved by Parse()
	ResolvedNetwork ouroboros.Network
}

func NewGlobalFlags() *GlobalFlags {
	f := &GlobalFlags{
		Flagset: flag.NewFlagSet(os.Args[0], flag.ExitOnError),
	}
	f.Flagset.StringVar(
		&f.Address,
		"address",
		"",
		"TCP address to connect to in address:port format. defaults to the network's public root",
	)
	f.Flagset.StringVar(
		&f.Topology,
		"topology",
		"",
		"cardano-node topology file to take peer addresses from",
	)
	f.Flagset.StringVar(
		&f.Network,
		"network",
		"preview",
		"specifies network that node is participating in",
	)
	f.Flagset.IntVar(
		&f.NetworkMagic,
		"network-magic",
		0,
		"specifies network magic value. this overrides the -network option",
	)
	f.Flagset.StringVar(
		&f.NetworksFile,
		"networks-file",
		"",
		"TOML file with additional network definitions",
	)
	f.Flagset.BoolVar(&f.Debug, "debug", false, "enable debug logging")
	return f
}

func (f *GlobalFlags) Parse() {
	if err := f.Flagset.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse command args: %s\n", err)
		os.Exit(1)
	}
	var extraNetworks []ouroboros.Network
	if f.NetworksFile != "" {
		var err error
		extraNetworks, err = LoadNetworksFile(f.NetworksFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
			os.Exit(1)
		}
	}
	network, err := ResolveNetwork(f.Network, f.NetworkMagic, extraNetworks)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
	f.ResolvedNetwork = network
	slog.SetDefault(NewLogger(f.Debug))
}

// NewLogger returns a logger writing text to stderr
func NewLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	)
}
