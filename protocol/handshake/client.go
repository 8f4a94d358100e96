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

	"github.com/blinklabs-io/ouroboros-fetch/protocol"
)

// Client implements the Handshake client
type Client struct {
	*protocol.Protocol
	config     *Config
	resultChan chan handshakeResult
}

type handshakeResult struct {
	version     uint16
	versionData protocol.VersionData
	err         error
}

// NewClient returns a new Handshake client object
func NewClient(protoOptions protocol.ProtocolOptions, cfg *Config) *Client {
	if cfg == nil {
		tmpCfg := NewConfig()
		cfg = &tmpCfg
	}
	if cfg.ProtocolVersionMap == nil {
		cfg.ProtocolVersionMap = protocol.GetProtocolVersionMap(cfg.NetworkMagic)
	}
	c := &Client{
		config:     cfg,
		resultChan: make(chan handshakeResult, 1),
	}
	// Update state map with timeout
	stateMap := StateMap.Copy()
	if entry, ok := stateMap[stateConfirm]; ok {
		entry.Timeout = c.config.Timeout
		stateMap[stateConfirm] = entry
	}
	// Configure underlying Protocol
	protoConfig := protocol.ProtocolConfig{
		Name:                ProtocolName,
		ProtocolId:          ProtocolId,
		Muxer:               protoOptions.Muxer,
		Logger:              protoOptions.Logger,
		ErrorChan:           protoOptions.ErrorChan,
		ConnectionId:        protoOptions.ConnectionId,
		MessageHandlerFunc:  c.handleMessage,
		MessageFromCborFunc: NewMsgFromCbor,
		StateMap:            stateMap,
		InitialState:        statePropose,
		MaxMessageSize:      MaxMessageSize,
	}
	c.Protocol = protocol.New(protoConfig)
	return c
}

// Handshake proposes our versions to the peer and waits for its answer. It returns the
// accepted version and the version data sent by the peer. A refusal is returned as a
// *RefusedError
func (c *Client) Handshake() (uint16, protocol.VersionData, error) {
	c.Start()
	c.Logger().Debug(
		"calling Handshake()",
		"component", "network",
		"protocol", ProtocolName,
		"role", "client",
		"versions", c.config.ProtocolVersionMap.Versions(),
	)
	msg, err := NewMsgProposeVersions(c.config.ProtocolVersionMap)
	if err != nil {
		return 0, nil, err
	}
	if err := c.SendMessage(msg); err != nil {
		return 0, nil, err
	}
	select {
	case result := <-c.resultChan:
		return result.version, result.versionData, result.err
	case <-c.DoneChan():
		// The peer may have answered just before closing the connection
		select {
		case result := <-c.resultChan:
			return result.version, result.versionData, result.err
		default:
		}
		return 0, nil, c.Err()
	}
}

func (c *Client) handleMessage(msg protocol.Message) error {
	var result handshakeResult
	switch msg := msg.(type) {
	case *MsgAcceptVersion:
		result = c.handleAcceptVersion(msg)
	case *MsgRefuse:
		result = c.handleRefuse(msg)
	default:
		return fmt.Errorf(
			"%w: %s: received unexpected message type %d",
			protocol.ErrProtocolViolationInvalidMessage,
			ProtocolName,
			msg.Type(),
		)
	}
	c.resultChan <- result
	return nil
}

func (c *Client) handleAcceptVersion(msg *MsgAcceptVersion) handshakeResult {
	c.Logger().Debug(
		"handshake accepted",
		"component", "network",
		"protocol", ProtocolName,
		"role", "client",
		"version", msg.Version,
	)
	proposedData, ok := c.config.ProtocolVersionMap[msg.Version]
	if !ok {
		return handshakeResult{
			err: fmt.Errorf("%w: %d", ErrVersionNotProposed, msg.Version),
		}
	}
	versionData, err := protocol.NewVersionDataFromCbor(msg.Version, msg.VersionData)
	if err != nil {
		return handshakeResult{
			err: fmt.Errorf("%s: %w", ProtocolName, err),
		}
	}
	if versionData.NetworkMagic() != proposedData.NetworkMagic() {
		return handshakeResult{
			err: fmt.Errorf(
				"%w: proposed %d, peer returned %d",
				ErrNetworkMagicMismatch,
				proposedData.NetworkMagic(),
				versionData.NetworkMagic(),
			),
		}
	}
	return handshakeResult{
		version:     msg.Version,
		versionData: versionData,
	}
}

func (c *Client) handleRefuse(msg *MsgRefuse) handshakeResult {
	refusedErr, err := newRefusedError(msg.Reason)
	if err != nil {
		return handshakeResult{
			err: fmt.Errorf("%s: malformed refusal: %w", ProtocolName, err),
		}
	}
	return handshakeResult{err: refusedErr}
}
