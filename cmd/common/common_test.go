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
	"os"
	"path/filepath"
	"testing"

	ouroboros "github.com/blinklabs-io/ouroboros-fetch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testNetworksFile = `
[[network]]
name = "devnet"
network_magic = 42
public_root_address = "127.0.0.1"
public_root_port = 3001

[[network]]
name = "preview"
network_magic = 2
public_root_address = "preview.example.com"
public_root_port = 3002
`

func writeFile(t *testing.T, name string, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadNetworksFile(t *testing.T) {
	networks, err := LoadNetworksFile(writeFile(t, "networks.toml", testNetworksFile))
	require.NoError(t, err)
	require.Len(t, networks, 2)
	assert.Equal(
		t,
		ouroboros.Network{
			Name:              "devnet",
			NetworkMagic:      42,
			PublicRootAddress: "127.0.0.1",
			PublicRootPort:    3001,
		},
		networks[0],
	)
	_, err = LoadNetworksFile(writeFile(t, "bad.toml", "[[network]]\nname = \"x\"\n"))
	assert.ErrorContains(t, err, "needs a name and network_magic")
	_, err = LoadNetworksFile(writeFile(t, "broken.toml", "[[network"))
	assert.ErrorContains(t, err, "parse networks file")
}

func TestResolveNetwork(t *testing.T) {
	extra, err := LoadNetworksFile(writeFile(t, "networks.toml", testNetworksFile))
	require.NoError(t, err)
	network, err := ResolveNetwork("devnet", 0, extra)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), network.NetworkMagic)
	// Extra networks override the predefined ones
	network, err = ResolveNetwork("preview", 0, extra)
	require.NoError(t, err)
	assert.Equal(t, "preview.example.com:3002", network.Address())
	network, err = ResolveNetwork("preview", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, ouroboros.NetworkPreview, network)
	// Magic wins over the name
	network, err = ResolveNetwork("preview", 764824073, nil)
	require.NoError(t, err)
	assert.Equal(t, ouroboros.NetworkMainnet, network)
	network, err = ResolveNetwork("", 12345, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(12345), network.NetworkMagic)
	assert.Equal(t, "", network.Address())
	_, err = ResolveNetwork("nope", 0, nil)
	assert.ErrorIs(t, err, ErrUnknownNetwork)
	_, err = ResolveNetwork("", -1, nil)
	assert.Error(t, err)
}

func TestCandidateAddresses(t *testing.T) {
	f := &GlobalFlags{ResolvedNetwork: ouroboros.NetworkPreview}
	addrs, err := CandidateAddresses(f)
	require.NoError(t, err)
	assert.Equal(t, []string{"preview-node.play.dev.cardano.org:3001"}, addrs)
	f.Topology = writeFile(
		t,
		"topology.json",
		`{"bootstrapPeers": [{"address": "10.1.1.1", "port": 3001}]}`,
	)
	addrs, err = CandidateAddresses(f)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.1.1.1:3001"}, addrs)
	f.Address = "127.0.0.1:3001"
	addrs, err = CandidateAddresses(f)
	require.NoError(t, err)
	assert.Equal(t, []string{"127.0.0.1:3001"}, addrs)
	_, err = CandidateAddresses(&GlobalFlags{ResolvedNetwork: ouroboros.Network{Name: "x"}})
	assert.ErrorIs(t, err, ErrNoPeers)
}
