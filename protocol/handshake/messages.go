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

package handshake

import (
	"fmt"
	"slices"

	"github.com/blinklabs-io/ouroboros-fetch/cbor"
	"github.com/blinklabs-io/ouroboros-fetch/protocol"
)

// Message types
const (
	MessageTypeProposeVersions = 0
	MessageTypeAcceptVersion   = 1
	MessageTypeRefuse          = 2
)

// Refusal reasons
const (
	RefuseReasonVersionMismatch uint64 = 0
	RefuseReasonDecodeError     uint64 = 1
	RefuseReasonRefused         uint64 = 2
)

var messageTypes = map[uint]func() protocol.Message{
	MessageTypeProposeVersions: func() protocol.Message { return &MsgProposeVersions{} },
	MessageTypeAcceptVersion:   func() protocol.Message { return &MsgAcceptVersion{} },
	MessageTypeRefuse:          func() protocol.Message { return &MsgRefuse{} },
}

// NewMsgFromCbor parses a Handshake message from CBOR. Unknown message types
// return nil and are reported by the caller
func NewMsgFromCbor(msgType uint, data []byte) (protocol.Message, error) {
	newMsg, ok := messageTypes[msgType]
	if !ok {
		return nil, nil
	}
	return protocol.DecodeMessage(ProtocolName, newMsg(), data)
}

type MsgProposeVersions struct {
	protocol.MessageBase
	VersionMap map[uint16]cbor.RawMessage
}

func NewMsgProposeVersions(
	versionMap protocol.ProtocolVersionMap,
) (*MsgProposeVersions, error) {
	rawVersionMap := map[uint16]cbor.RawMessage{}
	for version, versionData := range versionMap {
		data, err := cbor.Encode(versionData)
		if err != nil {
			return nil, fmt.Errorf("encode version data for version %d: %w", version, err)
		}
		rawVersionMap[version] = cbor.RawMessage(data)
	}
	m := &MsgProposeVersions{
		MessageBase: protocol.NewMessageBase(MessageTypeProposeVersions),
		VersionMap:  rawVersionMap,
	}
	return m, nil
}

// Versions returns the proposed versions in ascending order
func (m *MsgProposeVersions) Versions() []uint16 {
	versions := make([]uint16, 0, len(m.VersionMap))
	for version := range m.VersionMap {
		versions = append(versions, version)
	}
	slices.Sort(versions)
	return versions
}

type MsgAcceptVersion struct {
	protocol.MessageBase
	Version     uint16
	VersionData cbor.RawMessage
}

func NewMsgAcceptVersion(
	version uint16,
	versionData protocol.VersionData,
) (*MsgAcceptVersion, error) {
	data, err := cbor.Encode(versionData)
	if err != nil {
		return nil, fmt.Errorf("encode version data: %w", err)
	}
	m := &MsgAcceptVersion{
		MessageBase: protocol.NewMessageBase(MessageTypeAcceptVersion),
		Version:     version,
		VersionData: cbor.RawMessage(data),
	}
	return m, nil
}

type MsgRefuse struct {
	protocol.MessageBase
	Reason []any
}

func NewMsgRefuse(reason []any) *MsgRefuse {
	m := &MsgRefuse{
		MessageBase: protocol.NewMessageBase(MessageTypeRefuse),
		Reason:      reason,
	}
	return m
}

// NewMsgRefuseVersionMismatch returns a refusal listing the versions the peer supports
func NewMsgRefuseVersionMismatch(supported []uint16) *MsgRefuse {
	versions := make([]any, 0, len(supported))
	for _, version := range supported {
		versions = append(versions, uint64(version))
	}
	return NewMsgRefuse([]any{RefuseReasonVersionMismatch, versions})
}

// NewMsgRefuseRefused returns a refusal of the provided version with a message
func NewMsgRefuseRefused(version uint16, message string) *MsgRefuse {
	return NewMsgRefuse([]any{RefuseReasonRefused, uint64(version), message})
}
