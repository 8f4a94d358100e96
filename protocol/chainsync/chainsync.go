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

// Package chainsync implements the Ouroboros chain-sync protocol
package chainsync

import (
	"time"

	"github.com/blinklabs-io/ouroboros-fetch/protocol"
)

// Protocol identifiers
const (
	ProtocolName         = "chain-sync"
	ProtocolIdNtN uint16 = 2
)

// Largest chain-sync message we accept
const MaxMessageSize = 65535

var (
	stateIdle      = protocol.NewState(1, "Idle")
	stateCanAwait  = protocol.NewState(2, "CanAwait")
	stateMustReply = protocol.NewState(3, "MustReply")
	stateIntersect = protocol.NewState(4, "Intersect")
	stateDone      = protocol.NewState(5, "Done")
)

// StateMap is the chain-sync protocol state machine
var StateMap = protocol.StateMap{
	stateIdle: {
		Agency: protocol.AgencyClient,
		Transitions: []protocol.StateTransition{
			{MsgType: MessageTypeRequestNext, NewState: stateCanAwait},
			{MsgType: MessageTypeFindIntersect, NewState: stateIntersect},
			{MsgType: MessageTypeDone, NewState: stateDone},
		},
	},
	stateCanAwait: {
		Agency: protocol.AgencyServer,
		Transitions: []protocol.StateTransition{
			{MsgType: MessageTypeAwaitReply, NewState: stateMustReply},
			{MsgType: MessageTypeRollForward, NewState: stateIdle},
			{MsgType: MessageTypeRollBackward, NewState: stateIdle},
		},
	},
	stateIntersect: {
		Agency: protocol.AgencyServer,
		Transitions: []protocol.StateTransition{
			{MsgType: MessageTypeIntersectFound, NewState: stateIdle},
			{MsgType: MessageTypeIntersectNotFound, NewState: stateIdle},
		},
	},
	stateMustReply: {
		Agency: protocol.AgencyServer,
		Transitions: []protocol.StateTransition{
			{MsgType: MessageTypeRollForward, NewState: stateIdle},
			{MsgType: MessageTypeRollBackward, NewState: stateIdle},
		},
	},
	stateDone: {
		Agency: protocol.AgencyNone,
	},
}

// Config is used to configure the ChainSync protocol instance
type Config struct {
	IntersectTimeout time.Duration
	BlockTimeout     time.Duration
}

// ChainSyncOptionFunc represents a function used to modify the ChainSync protocol config
type ChainSyncOptionFunc func(*Config)

// NewConfig returns a new ChainSync config object with the provided options. No timeouts
// are set by default
func NewConfig(options ...ChainSyncOptionFunc) Config {
	c := Config{}
	// Apply provided options functions
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithIntersectTimeout specifies the timeout for intersect operations
func WithIntersectTimeout(timeout time.Duration) ChainSyncOptionFunc {
	return func(c *Config) {
		c.IntersectTimeout = timeout
	}
}

// WithBlockTimeout specifies how long the peer may take to answer a RequestNext before
// it either sends a header or tells us to wait. The wait itself is never bounded
func WithBlockTimeout(timeout time.Duration) ChainSyncOptionFunc {
	return func(c *Config) {
		c.BlockTimeout = timeout
	}
}
