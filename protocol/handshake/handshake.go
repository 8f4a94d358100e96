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

// Package handshake implements the Ouroboros handshake protocol
package handshake

import (
	"slices"
	"time"

	"github.com/blinklabs-io/ouroboros-fetch/protocol"
)

// Protocol identifiers
const (
	ProtocolName = "handshake"
	ProtocolId   = 0
)

// Largest handshake message we accept
const MaxMessageSize = 5760

var (
	statePropose = protocol.NewState(1, "Propose")
	stateConfirm = protocol.NewState(2, "Confirm")
	stateDone    = protocol.NewState(3, "Done")
)

// StateMap is the handshake protocol state machine
var StateMap = protocol.StateMap{
	statePropose: {
		Agency: protocol.AgencyClient,
		Transitions: []protocol.StateTransition{
			{MsgType: MessageTypeProposeVersions, NewState: stateConfirm},
		},
	},
	stateConfirm: {
		Agency: protocol.AgencyServer,
		Transitions: []protocol.StateTransition{
			{MsgType: MessageTypeAcceptVersion, NewState: stateDone},
			{MsgType: MessageTypeRefuse, NewState: stateDone},
		},
	},
	stateDone: {
		Agency: protocol.AgencyNone,
	},
}

// Config is used to configure the Handshake protocol instance
type Config struct {
	ProtocolVersionMap protocol.ProtocolVersionMap
	NetworkMagic       uint32
	Timeout            time.Duration
}

// HandshakeOptionFunc represents a function used to modify the Handshake protocol config
type HandshakeOptionFunc func(*Config)

// NewConfig returns a new Handshake config object with the provided options
func NewConfig(options ...HandshakeOptionFunc) Config {
	c := Config{}
	// Apply provided options functions
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithProtocolVersionMap specifies the protocol versions and version data to propose
func WithProtocolVersionMap(
	versionMap protocol.ProtocolVersionMap,
) HandshakeOptionFunc {
	return func(c *Config) {
		c.ProtocolVersionMap = versionMap
	}
}

// WithNetworkMagic specifies the network magic value. It's used to build the proposed
// version map when one isn't provided
func WithNetworkMagic(networkMagic uint32) HandshakeOptionFunc {
	return func(c *Config) {
		c.NetworkMagic = networkMagic
	}
}

// WithTimeout specifies how long to wait for the peer to answer our proposal. Zero means
// wait forever
func WithTimeout(timeout time.Duration) HandshakeOptionFunc {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// SelectVersion returns the highest version present in both the proposed and supported
// version lists
func SelectVersion(proposed []uint16, supported []uint16) (uint16, bool) {
	var ret uint16
	found := false
	for _, version := range proposed {
		if !slices.Contains(supported, version) {
			continue
		}
		if !found || version > ret {
			ret = version
			found = true
		}
	}
	return ret, found
}
