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

// Package blockfetch implements the Ouroboros block-fetch protocol
package blockfetch

import (
	"time"

	"github.com/blinklabs-io/ouroboros-fetch/protocol"
)

// Protocol identifiers
const (
	ProtocolName        = "block-fetch"
	ProtocolId   uint16 = 3
)

// A single block may be much larger than one segment
const MaxMessageSize = 2500000

var (
	StateIdle      = protocol.NewState(1, "Idle")
	StateBusy      = protocol.NewState(2, "Busy")
	StateStreaming = protocol.NewState(3, "Streaming")
	StateDone      = protocol.NewState(4, "Done")
)

// StateMap is the block-fetch protocol state machine
var StateMap = protocol.StateMap{
	StateIdle: {
		Agency: protocol.AgencyClient,
		Transitions: []protocol.StateTransition{
			{MsgType: MessageTypeRequestRange, NewState: StateBusy},
			{MsgType: MessageTypeClientDone, NewState: StateDone},
		},
	},
	StateBusy: {
		Agency: protocol.AgencyServer,
		Transitions: []protocol.StateTransition{
			{MsgType: MessageTypeStartBatch, NewState: StateStreaming},
			{MsgType: MessageTypeNoBlocks, NewState: StateIdle},
		},
	},
	StateStreaming: {
		Agency: protocol.AgencyServer,
		Transitions: []protocol.StateTransition{
			{MsgType: MessageTypeBlock, NewState: StateStreaming},
			{MsgType: MessageTypeBatchDone, NewState: StateIdle},
		},
	},
	StateDone: {
		Agency: protocol.AgencyNone,
	},
}

// Config is used to configure the BlockFetch protocol instance
type Config struct {
	BatchStartTimeout time.Duration
	BlockTimeout      time.Duration
}

// BlockFetchOptionFunc represents a function used to modify the BlockFetch protocol config
type BlockFetchOptionFunc func(*Config)

// NewConfig returns a new BlockFetch config object with the provided options
func NewConfig(options ...BlockFetchOptionFunc) Config {
	c := Config{}
	// Apply provided options functions
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithBatchStartTimeout specifies how long the peer may take to start a batch or report
// that it has no blocks
func WithBatchStartTimeout(timeout time.Duration) BlockFetchOptionFunc {
	return func(c *Config) {
		c.BatchStartTimeout = timeout
	}
}

// WithBlockTimeout specifies the timeout for each block or the end of the batch
func WithBlockTimeout(timeout time.Duration) BlockFetchOptionFunc {
	return func(c *Config) {
		c.BlockTimeout = timeout
	}
}
