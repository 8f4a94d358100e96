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
	"errors"
	"fmt"
	"log/slog"
	"time"

	ouroboros "github.com/blinklabs-io/ouroboros-fetch"
)

const (
	dialTimeout      = 10 * time.Second
	handshakeTimeout = 10 * time.Second
)

var ErrNoPeers = errors.New("no peer address available")

// CandidateAddresses returns the addresses to try, in order. An explicit -address wins,
// followed by the peers of a -topology file and finally the network's public root
func CandidateAddresses(f *GlobalFlags) ([]string, error) {
	if f.Address != "" {
		return []string{f.Address}, nil
	}
	if f.Topology != "" {
		topology, err := ouroboros.NewTopologyConfigFromFile(f.Topology)
		if err != nil {
			return nil, err
		}
		if addrs := topology.Addresses(); len(addrs) > 0 {
			return addrs, nil
		}
	}
	if addr := f.ResolvedNetwork.Address(); addr != "" {
		return []string{addr}, nil
	}
	return nil, fmt.Errorf("%w for network %s", ErrNoPeers, f.ResolvedNetwork)
}

// CreateClientConnection connects to the first candidate address that completes the handshake
func CreateClientConnection(
	f *GlobalFlags,
	opts ...ouroboros.ConnectionOptionFunc,
) (*ouroboros.Connection, error) {
	addrs, err := CandidateAddresses(f)
	if err != nil {
		return nil, err
	}
	opts = append(
		[]ouroboros.ConnectionOptionFunc{
			ouroboros.WithNetwork(f.ResolvedNetwork),
			ouroboros.WithDialTimeout(dialTimeout),
			ouroboros.WithHandshakeTimeout(handshakeTimeout),
		},
		opts...,
	)
	var errs []error
	for _, addr := range addrs {
		conn, err := ouroboros.NewConnection(opts...)
		if err != nil {
			return nil, err
		}
		if err := conn.Dial("tcp", addr); err != nil {
			slog.Warn(
				"connection failed",
				"address", addr,
				"error", err,
			)
			errs = append(errs, err)
			_ = conn.Close()
			continue
		}
		slog.Debug(
			"connected",
			"address", addr,
			"network", f.ResolvedNetwork.String(),
		)
		return conn, nil
	}
	return nil, errors.Join(errs...)
}
