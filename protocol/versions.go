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

package protocol

import (
	"fmt"
	"slices"

	"github.com/blinklabs-io/ouroboros-fetch/cbor"
)

// Diffusion modes
const (
	DiffusionModeInitiatorOnly         = true
	DiffusionModeInitiatorAndResponder = false
)

// Peer sharing modes
const (
	PeerSharingModeNoPeerSharing         = 0
	PeerSharingModePeerSharingPublic     = 1
	PeerSharingModeV11NoPeerSharing      = 0
	PeerSharingModeV11PeerSharingPrivate = 1
	PeerSharingModeV11PeerSharingPublic  = 2
)

// Query modes
const (
	QueryModeDisabled = false
	QueryModeEnabled  = true
)

// VersionData is the version-specific handshake parameters for a NtN protocol version
type VersionData interface {
	NetworkMagic() uint32
	DiffusionMode() bool
	PeerSharing() bool
	Query() bool
}

// VersionDataNtN7to10 is encoded as [magic, initiatorOnly]
type VersionDataNtN7to10 struct {
	cbor.StructAsArray
	CborNetworkMagic               uint32
	CborInitiatorOnlyDiffusionMode bool
}

func NewVersionDataNtN7to10FromCbor(cborData []byte) (VersionData, error) {
	var v VersionDataNtN7to10
	if _, err := cbor.Decode(cborData, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func (v VersionDataNtN7to10) NetworkMagic() uint32 {
	return v.CborNetworkMagic
}

func (v VersionDataNtN7to10) DiffusionMode() bool {
	return v.CborInitiatorOnlyDiffusionMode
}

func (v VersionDataNtN7to10) PeerSharing() bool {
	return false
}

func (v VersionDataNtN7to10) Query() bool {
	return QueryModeDisabled
}

// VersionDataNtN11to12 is encoded as [magic, initiatorOnly, peerSharing, query]
type VersionDataNtN11to12 struct {
	cbor.StructAsArray
	CborNetworkMagic               uint32
	CborInitiatorOnlyDiffusionMode bool
	CborPeerSharing                uint
	CborQuery                      bool
}

func NewVersionDataNtN11to12FromCbor(cborData []byte) (VersionData, error) {
	var v VersionDataNtN11to12
	if _, err := cbor.Decode(cborData, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func (v VersionDataNtN11to12) NetworkMagic() uint32 {
	return v.CborNetworkMagic
}

func (v VersionDataNtN11to12) DiffusionMode() bool {
	return v.CborInitiatorOnlyDiffusionMode
}

func (v VersionDataNtN11to12) PeerSharing() bool {
	return v.CborPeerSharing >= PeerSharingModeV11PeerSharingPublic
}

func (v VersionDataNtN11to12) Query() bool {
	return v.CborQuery
}

// VersionDataNtN13andUp has the same format as VersionDataNtN11to12, but the values for
// peer sharing change
type VersionDataNtN13andUp struct {
	cbor.StructAsArray
	CborNetworkMagic               uint32
	CborInitiatorOnlyDiffusionMode bool
	CborPeerSharing                uint
	CborQuery                      bool
}

func NewVersionDataNtN13andUpFromCbor(cborData []byte) (VersionData, error) {
	var v VersionDataNtN13andUp
	if _, err := cbor.Decode(cborData, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func (v VersionDataNtN13andUp) NetworkMagic() uint32 {
	return v.CborNetworkMagic
}

func (v VersionDataNtN13andUp) DiffusionMode() bool {
	return v.CborInitiatorOnlyDiffusionMode
}

func (v VersionDataNtN13andUp) PeerSharing() bool {
	return v.CborPeerSharing >= PeerSharingModePeerSharingPublic
}

func (v VersionDataNtN13andUp) Query() bool {
	return v.CborQuery
}

type NewVersionDataFromCborFunc func([]byte) (VersionData, error)

// ProtocolVersionMap maps protocol versions to the parameters proposed for them
type ProtocolVersionMap map[uint16]VersionData

// Versions returns the protocol versions in the map in ascending order
func (m ProtocolVersionMap) Versions() []uint16 {
	versions := make([]uint16, 0, len(m))
	for version := range m {
		versions = append(versions, version)
	}
	slices.Sort(versions)
	return versions
}

// ProtocolVersion describes how a NtN protocol version is negotiated
type ProtocolVersion struct {
	NewVersionDataFromCborFunc NewVersionDataFromCborFunc
	EnableBabbageEra           bool
	EnableConwayEra            bool
	PeerSharingUseV11          bool
}

// We don't bother supporting NtN protocol versions before 7 (when Alonzo was enabled)
var protocolVersions = map[uint16]ProtocolVersion{
	7: {
		NewVersionDataFromCborFunc: NewVersionDataNtN7to10FromCbor,
	},
	8: {
		NewVersionDataFromCborFunc: NewVersionDataNtN7to10FromCbor,
	},
	9: {
		NewVersionDataFromCborFunc: NewVersionDataNtN7to10FromCbor,
		EnableBabbageEra:           true,
	},
	10: {
		NewVersionDataFromCborFunc: NewVersionDataNtN7to10FromCbor,
		EnableBabbageEra:           true,
	},
	11: {
		NewVersionDataFromCborFunc: NewVersionDataNtN11to12FromCbor,
		EnableBabbageEra:           true,
		PeerSharingUseV11:          true,
	},
	12: {
		NewVersionDataFromCborFunc: NewVersionDataNtN11to12FromCbor,
		EnableBabbageEra:           true,
		EnableConwayEra:            true,
		PeerSharingUseV11:          true,
	},
	13: {
		NewVersionDataFromCborFunc: NewVersionDataNtN13andUpFromCbor,
		EnableBabbageEra:           true,
		EnableConwayEra:            true,
	},
	// Removed support for eras before Babbage
	14: {
		NewVersionDataFromCborFunc: NewVersionDataNtN13andUpFromCbor,
		EnableBabbageEra:           true,
		EnableConwayEra:            true,
	},
}

// NewVersionData returns the parameters we propose for the specified version
func NewVersionData(version uint16, networkMagic uint32) VersionData {
	switch {
	case version >= 13:
		return VersionDataNtN13andUp{
			CborNetworkMagic:               networkMagic,
			CborInitiatorOnlyDiffusionMode: DiffusionModeInitiatorOnly,
			CborPeerSharing:                PeerSharingModeNoPeerSharing,
			CborQuery:                      QueryModeDisabled,
		}
	case version >= 11:
		return VersionDataNtN11to12{
			CborNetworkMagic:               networkMagic,
			CborInitiatorOnlyDiffusionMode: DiffusionModeInitiatorOnly,
			CborPeerSharing:                PeerSharingModeV11NoPeerSharing,
			CborQuery:                      QueryModeDisabled,
		}
	default:
		return VersionDataNtN7to10{
			CborNetworkMagic:               networkMagic,
			CborInitiatorOnlyDiffusionMode: DiffusionModeInitiatorOnly,
		}
	}
}

// NewVersionDataFromCbor decodes the version data for the specified version. Versions we
// don't have a table entry for are decoded using the format of the nearest known version
func NewVersionDataFromCbor(version uint16, cborData []byte) (VersionData, error) {
	decodeFunc := NewVersionDataNtN7to10FromCbor
	if protoVersion, ok := protocolVersions[version]; ok {
		decodeFunc = protoVersion.NewVersionDataFromCborFunc
	} else if version >= 13 {
		decodeFunc = NewVersionDataNtN13andUpFromCbor
	} else if version >= 11 {
		decodeFunc = NewVersionDataNtN11to12FromCbor
	}
	versionData, err := decodeFunc(cborData)
	if err != nil {
		return nil, fmt.Errorf("decode version data for version %d: %w", version, err)
	}
	return versionData, nil
}

// GetProtocolVersionMap returns a data structure suitable for use with the protocol handshake.
// All supported NtN versions are included if no versions are specified
func GetProtocolVersionMap(
	networkMagic uint32,
	versions ...uint16,
) ProtocolVersionMap {
	if len(versions) == 0 {
		versions = GetProtocolVersionsNtN()
	}
	ret := ProtocolVersionMap{}
	for _, version := range versions {
		ret[version] = NewVersionData(version, networkMagic)
	}
	return ret
}

// GetProtocolVersionsNtN returns a list of supported NtN protocol versions
func GetProtocolVersionsNtN() []uint16 {
	versions := make([]uint16, 0, len(protocolVersions))
	for key := range protocolVersions {
		versions = append(versions, key)
	}
	// sort ascending - iterating over map is not deterministic
	slices.Sort(versions)
	return versions
}

// GetProtocolVersion returns the protocol version config for the specified protocol version
func GetProtocolVersion(version uint16) (ProtocolVersion, bool) {
	ret, ok := protocolVersions[version]
	return ret, ok
}
