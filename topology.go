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

package ouroboros

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
)

// TopologyConfig represents a cardano-node topology file. Both the legacy producer list and
// the P2P root groups are supported
type TopologyConfig struct {
	Producers          []TopologyProducer    `json:"Producers"`
	BootstrapPeers     []TopologyAccessPoint `json:"bootstrapPeers"`
	LocalRoots         []TopologyRootGroup   `json:"localRoots"`
	PublicRoots        []TopologyRootGroup   `json:"publicRoots"`
	UseLedgerAfterSlot int64                 `json:"useLedgerAfterSlot"`
}

// TopologyProducer is a peer from a legacy (non-P2P) topology file
type TopologyProducer struct {
	Address string `json:"addr"`
	Port    uint   `json:"port"`
	Valency uint   `json:"valency"`
}

type TopologyAccessPoint struct {
	Address string `json:"address"`
	Port    uint   `json:"port"`
}

type TopologyRootGroup struct {
	AccessPoints []TopologyAccessPoint `json:"accessPoints"`
	Advertise    bool                  `json:"advertise"`
	Valency      uint                  `json:"valency"`
}

// NewTopologyConfigFromFile parses the topology file at the provided path
func NewTopologyConfigFromFile(path string) (*TopologyConfig, error) {
	dataFile, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer dataFile.Close()
	return NewTopologyConfigFromReader(dataFile)
}

// NewTopologyConfigFromReader parses topology JSON from the provided reader
func NewTopologyConfigFromReader(r io.Reader) (*TopologyConfig, error) {
	t := &TopologyConfig{}
	if err := json.NewDecoder(r).Decode(t); err != nil {
		return nil, fmt.Errorf("parse topology: %w", err)
	}
	return t, nil
}

// Addresses returns the host:port of every peer in the topology, without duplicates. Local
// roots come first, followed by public roots, bootstrap peers and legacy producers
func (t *TopologyConfig) Addresses() []string {
	ret := []string{}
	seen := map[string]bool{}
	add := func(host string, port uint) {
		if host == "" || port == 0 {
			return
		}
		addr := net.JoinHostPort(host, strconv.FormatUint(uint64(port), 10))
		if seen[addr] {
			return
		}
		seen[addr] = true
		ret = append(ret, addr)
	}
	for _, groups := range [][]TopologyRootGroup{t.LocalRoots, t.PublicRoots} {
		for _, group := range groups {
			for _, ap := range group.AccessPoints {
				add(ap.Address, ap.Port)
			}
		}
	}
	for _, ap := range t.BootstrapPeers {
		add(ap.Address, ap.Port)
	}
	for _, producer := range t.Producers {
		add(producer.Address, producer.Port)
	}
	return ret
}
