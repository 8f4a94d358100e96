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

package ouroboros_mock

import (
	"time"

	"github.com/blinklabs-io/ouroboros-fetch/protocol"
	"github.com/blinklabs-io/ouroboros-fetch/protocol/handshake"
)

const (
	MockNetworkMagic       uint32 = 999999
	MockProtocolVersionNtN uint16 = 14
)

type EntryType int

const (
	EntryTypeNone              EntryType = 0
	EntryTypeInput             EntryType = 1
	EntryTypeOutput            EntryType = 2
	EntryTypeClose             EntryType = 3
	EntryTypeHandshakeResponse EntryType = 4
	EntryTypeSleep             EntryType = 5
)

type ConversationEntry struct {
	Type       EntryType
	ProtocolId uint16
	// Input entries
	InputMessageType uint
	InputFunc        InputFunc
	// Output entries
	OutputMessages []protocol.Message
	// Split the output payload into segments of at most this many bytes
	OutputSegmentSize int
	// Handshake response entries
	SupportedVersions []uint16
	NetworkMagic      uint32
	// Sleep entries
	Duration time.Duration
}

// InputFunc is called with the raw payload of an input entry after the message type has
// been checked
type InputFunc func([]byte) error

// ConversationEntryHandshakeRequestGeneric is a pre-defined conversation event that matches a generic
// handshake request from a client
var ConversationEntryHandshakeRequestGeneric = ConversationEntry{
	Type:             EntryTypeInput,
	ProtocolId:       handshake.ProtocolId,
	InputMessageType: handshake.MessageTypeProposeVersions,
}

// ConversationEntryHandshakeNtNResponse is a pre-defined conversation entry that reads the client's
// proposal and accepts the highest common version on the mock network
var ConversationEntryHandshakeNtNResponse = NewConversationEntryHandshakeResponse(
	MockNetworkMagic,
	protocol.GetProtocolVersionsNtN()...,
)

// ConversationEntryClose closes the connection from the mock side
var ConversationEntryClose = ConversationEntry{
	Type: EntryTypeClose,
}

// NewConversationEntryHandshakeResponse returns a conversation entry that plays the
// handshake server with the provided network magic and supported versions
func NewConversationEntryHandshakeResponse(
	networkMagic uint32,
	versions ...uint16,
) ConversationEntry {
	return ConversationEntry{
		Type:              EntryTypeHandshakeResponse,
		ProtocolId:        handshake.ProtocolId,
		NetworkMagic:      networkMagic,
		SupportedVersions: versions,
	}
}

// NewConversationEntryInput returns a conversation entry that expects a message of the
// provided type from the client
func NewConversationEntryInput(
	protocolId uint16,
	msgType uint,
	inputFunc InputFunc,
) ConversationEntry {
	return ConversationEntry{
		Type:             EntryTypeInput,
		ProtocolId:       protocolId,
		InputMessageType: msgType,
		InputFunc:        inputFunc,
	}
}

// NewConversationEntryOutput returns a conversation entry that sends the provided messages
// to the client in a single payload
func NewConversationEntryOutput(
	protocolId uint16,
	msgs ...protocol.Message,
) ConversationEntry {
	return ConversationEntry{
		Type:           EntryTypeOutput,
		ProtocolId:     protocolId,
		OutputMessages: msgs,
	}
}
