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
	"math"
	"os"

	"github.com/BurntSushi/toml"
	ouroboros "github.com/blinklabs-io/ouroboros-fetch"
)

var ErrUnknownNetwork = errors.New("unknown network")

type networksFile struct {
	Networks []ouroboros.Network `toml:"network"`
}

// LoadNetworksFile reads extra network definitions from a TOML file containing one
// [[network]] table per network
func LoadNetworksFile(path string) ([]ouroboros.Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read networks file: %w", err)
	}
	var tmp networksFile
	if err := toml.Unmarshal(data, &tmp); err != nil {
		return nil, fmt.Errorf("parse networks file %s: %w", path, err)
	}
	for _, network := range tmp.Networks {
		if network.Name == "" || network.NetworkMagic == 0 {
			return nil, fmt.Errorf("networks file %s: network needs a name and network_magic", path)
		}
	}
	return tmp.Networks, nil
}

// ResolveNetwork finds the network to use. A non-zero network magic wins over the name.
// Extra networks are checked before the predefined ones. An unknown magic still gives a
// usable network, but without a public root address
func ResolveNetwork(
	name string,
	networkMagic int,
	extraNetworks []ouroboros.Network,
) (ouroboros.Network, error) {
	if networkMagic < 0 || int64(networkMagic) > math.MaxUint32 {
		return ouroboros.NetworkInvalid, fmt.Errorf("invalid network magic: %d", networkMagic)
	}
	if networkMagic != 0 {
		// #nosec G115
		magic := uint32(networkMagic)
		for _, network := range extraNetworks {
			if network.NetworkMagic == magic {
				return network, nil
			}
		}
		if network := ouroboros.NetworkByNetworkMagic(magic); network != ouroboros.NetworkInvalid {
			return network, nil
		}
		return ouroboros.Network{
			Name:         fmt.Sprintf("magic-%d", magic),
			NetworkMagic: magic,
		}, nil
	}
	for _, network := range extraNetworks {
		if network.Name == name {
			return network, nil
		}
	}
	network := ouroboros.NetworkByName(name)
	if network == ouroboros.NetworkInvalid {
		return ouroboros.NetworkInvalid, fmt.Errorf("%w: %s", ErrUnknownNetwork, name)
	}
	return network, nil
}
