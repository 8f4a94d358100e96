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
	"net"
	"slices"
	"strconv"
)

// Network describes a Cardano network and the public root used to reach it
type Network struct {
	Name              string `toml:"name"`
	NetworkMagic      uint32 `toml:"network_magic"`
	PublicRootAddress string `toml:"public_root_address"`
	PublicRootPort    uint   `toml:"public_root_port"`
}

var (
	NetworkMainnet = Network{"mainnet", 764824073, "backbone.cardano-mainnet.iohk.io", 3001}
	NetworkPreprod = Network{"preprod", 1, "preprod-node.world.dev.cardano.org", 30000}
	NetworkPreview = Network{"preview", 2, "preview-node.play.dev.cardano.org", 3001}
	NetworkSancho  = Network{"sanchonet", 4, "sanchonet-node.play.dev.cardano.org", 3001}

	// NetworkInvalid is returned by the lookup functions when nothing matches
	NetworkInvalid = Network{Name: "invalid"}
)

var knownNetworks = []Network{
	NetworkMainnet,
	NetworkPreprod,
	NetworkPreview,
	NetworkSancho,
}

// Networks returns a copy of the predefined networks
func Networks() []Network {
	return slices.Clone(knownNetworks)
}

func findNetwork(match func(Network) bool) Network {
	if idx := slices.IndexFunc(knownNetworks, match); idx >= 0 {
		return knownNetworks[idx]
	}
	return NetworkInvalid
}

// NetworkByName returns the predefined network with the given name, or NetworkInvalid
func NetworkByName(name string) Network {
	return findNetwork(func(n Network) bool { return n.Name == name })
}

// NetworkByNetworkMagic returns the predefined network with the given magic, or NetworkInvalid
func NetworkByNetworkMagic(networkMagic uint32) Network {
	return findNetwork(func(n Network) bool { return n.NetworkMagic == networkMagic })
}

func (n Network) String() string {
	return n.Name
}

// Address returns the host:port of the public root, or an empty string if it has none
func (n Network) Address() string {
	if n.PublicRootAddress == "" || n.PublicRootPort == 0 {
		return ""
	}
	return net.JoinHostPort(
		n.PublicRootAddress,
		strconv.FormatUint(uint64(n.PublicRootPort), 10),
	)
}
