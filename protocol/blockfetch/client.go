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

package blockfetch

import (
	"fmt"
	"sync"

	"github.com/blinklabs-io/ouroboros-fetch/protocol"
	"github.com/blinklabs-io/ouroboros-fetch/protocol/common"
)

// Client implements the BlockFetch client
type Client struct {
	*protocol.Protocol
	config               *Config
	busyMutex            sync.Mutex
	startBatchResultChan chan error
	batchResultChan      chan [][]byte
	// Only touched by the receive loop while a batch is streaming
	pendingBlocks [][]byte
	onceStop      sync.Once
}

// NewClient returns a new BlockFetch client object
func NewClient(protoOptions protocol.ProtocolOptions, cfg *Config) *Client {
	if cfg == nil {
		tmpCfg := NewConfig()
		cfg = &tmpCfg
	}
	c := &Client{
		config:               cfg,
		startBatchResultChan: make(chan error, 1),
		batchResultChan:      make(chan [][]byte, 1),
	}
	// Update state map with timeouts
	stateMap := StateMap.Copy()
	if entry, ok := stateMap[StateBusy]; ok {
		entry.Timeout = c.config.BatchStartTimeout
		stateMap[StateBusy] = entry
	}
	if entry, ok := stateMap[StateStreaming]; ok {
		entry.Timeout = c.config.BlockTimeout
		stateMap[StateStreaming] = entry
	}
	// Configure underlying Protocol
	protoConfig := protocol.ProtocolConfig{
		Name:                ProtocolName,
		ProtocolId:          ProtocolId,
		Muxer:               protoOptions.Muxer,
		Logger:              protoOptions.Logger,
		ErrorChan:           protoOptions.ErrorChan,
		ConnectionId:        protoOptions.ConnectionId,
		MessageHandlerFunc:  c.messageHandler,
		MessageFromCborFunc: NewMsgFromCbor,
		StateMap:            stateMap,
		InitialState:        StateIdle,
		MaxMessageSize:      MaxMessageSize,
	}
	c.Protocol = protocol.New(protoConfig)
	return c
}

// Stop sends a ClientDone message if we're idle and shuts down the protocol
func (c *Client) Stop() {
	c.onceStop.Do(func() {
		c.Logger().Debug(
			"calling Stop()",
			"component", "network",
			"protocol", ProtocolName,
			"role", "client",
		)
		if c.CurrentState() == StateIdle {
			// Best effort, the connection may already be gone
			_ = c.SendMessage(NewMsgClientDone())
		}
		c.Protocol.Stop()
	})
}

// GetBlockRange fetches all blocks in the specified range (inclusive). The blocks are
// returned in the order the peer sent them, each one as the content of its CBOR-in-CBOR
// wrapper
func (c *Client) GetBlockRange(start common.Point, end common.Point) ([][]byte, error) {
	c.busyMutex.Lock()
	defer c.busyMutex.Unlock()
	c.Logger().Debug(
		fmt.Sprintf("calling GetBlockRange(start: %s, end: %s)", start, end),
		"component", "network",
		"protocol", ProtocolName,
		"role", "client",
	)
	if err := c.SendMessage(NewMsgRequestRange(start, end)); err != nil {
		return nil, err
	}
	var startErr error
	select {
	case startErr = <-c.startBatchResultChan:
	case <-c.DoneChan():
		select {
		case startErr = <-c.startBatchResultChan:
		default:
			return nil, c.Err()
		}
	}
	if startErr != nil {
		return nil, startErr
	}
	select {
	case blocks := <-c.batchResultChan:
		return blocks, nil
	case <-c.DoneChan():
		select {
		case blocks := <-c.batchResultChan:
			return blocks, nil
		default:
		}
		return nil, c.Err()
	}
}

// GetBlock fetches the single block at the provided point
func (c *Client) GetBlock(point common.Point) ([]byte, error) {
	blocks, err := c.GetBlockRange(point, point)
	if err != nil {
		return nil, err
	}
	if len(blocks) != 1 {
		return nil, fmt.Errorf(
			"%s: %w: expected 1, got %d",
			ProtocolName,
			ErrUnexpectedBlockCount,
			len(blocks),
		)
	}
	return blocks[0], nil
}

func (c *Client) messageHandler(msg protocol.Message) error {
	switch msg := msg.(type) {
	case *MsgStartBatch:
		c.Logger().Debug(
			"starting batch",
			"component", "network",
			"protocol", ProtocolName,
			"role", "client",
		)
		c.pendingBlocks = nil
		c.sendStartBatchResult(nil)
	case *MsgNoBlocks:
		c.Logger().Debug(
			"no blocks returned",
			"component", "network",
			"protocol", ProtocolName,
			"role", "client",
		)
		c.sendStartBatchResult(ErrNoBlocks)
	case *MsgBlock:
		c.Logger().Debug(
			"block returned",
			"component", "network",
			"protocol", ProtocolName,
			"role", "client",
			"size", len(msg.WrappedBlock),
		)
		c.pendingBlocks = append(c.pendingBlocks, msg.WrappedBlock.Bytes())
	case *MsgBatchDone:
		c.Logger().Debug(
			"batch done",
			"component", "network",
			"protocol", ProtocolName,
			"role", "client",
			"blocks", len(c.pendingBlocks),
		)
		blocks := c.pendingBlocks
		c.pendingBlocks = nil
		select {
		case <-c.DoneChan():
		case c.batchResultChan <- blocks:
		}
	default:
		return fmt.Errorf(
			"%w: %s: received unexpected message type %d",
			protocol.ErrProtocolViolationInvalidMessage,
			ProtocolName,
			msg.Type(),
		)
	}
	return nil
}

func (c *Client) sendStartBatchResult(err error) {
	select {
	case <-c.DoneChan():
	case c.startBatchResultChan <- err:
	}
}
