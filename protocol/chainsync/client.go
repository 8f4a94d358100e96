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

package chainsync

import (
	"fmt"
	"sync"

	"github.com/blinklabs-io/ouroboros-fetch/protocol"
	"github.com/blinklabs-io/ouroboros-fetch/protocol/common"
)

// NextAction describes what the peer told us in response to a RequestNext
type NextAction int

const (
	ActionRollForward NextAction = iota + 1
	ActionRollBackward
	ActionAwait
)

func (a NextAction) String() string {
	switch a {
	case ActionRollForward:
		return "RollForward"
	case ActionRollBackward:
		return "RollBackward"
	case ActionAwait:
		return "Await"
	default:
		return fmt.Sprintf("NextAction(%d)", int(a))
	}
}

// NextResponse is the result of RequestNext or AwaitNext. Header is only set for
// ActionRollForward and Point only for ActionRollBackward. The tip is not sent with
// AwaitReply, so it holds the last known tip for ActionAwait
type NextResponse struct {
	Action NextAction
	Header *WrappedHeader
	Point  common.Point
	Tip    common.Tip
}

// Client implements the ChainSync client
type Client struct {
	*protocol.Protocol
	config              *Config
	busyMutex           sync.Mutex
	intersectResultChan chan intersectResult
	nextResultChan      chan NextResponse
	tipMutex            sync.Mutex
	remoteTip           *common.Tip
	onceStop            sync.Once
}

type intersectResult struct {
	point common.Point
	tip   common.Tip
	found bool
}

// NewClient returns a new ChainSync client object
func NewClient(protoOptions protocol.ProtocolOptions, cfg *Config) *Client {
	if cfg == nil {
		tmpCfg := NewConfig()
		cfg = &tmpCfg
	}
	c := &Client{
		config:              cfg,
		intersectResultChan: make(chan intersectResult, 1),
		nextResultChan:      make(chan NextResponse, 1),
	}
	// Update state map with timeouts
	stateMap := StateMap.Copy()
	if entry, ok := stateMap[stateIntersect]; ok {
		entry.Timeout = c.config.IntersectTimeout
		stateMap[stateIntersect] = entry
	}
	if entry, ok := stateMap[stateCanAwait]; ok {
		entry.Timeout = c.config.BlockTimeout
		stateMap[stateCanAwait] = entry
	}
	// Configure underlying Protocol
	protoConfig := protocol.ProtocolConfig{
		Name:                ProtocolName,
		ProtocolId:          ProtocolIdNtN,
		Muxer:               protoOptions.Muxer,
		Logger:              protoOptions.Logger,
		ErrorChan:           protoOptions.ErrorChan,
		ConnectionId:        protoOptions.ConnectionId,
		MessageHandlerFunc:  c.messageHandler,
		MessageFromCborFunc: NewMsgFromCbor,
		StateMap:            stateMap,
		InitialState:        stateIdle,
		MaxMessageSize:      MaxMessageSize,
	}
	c.Protocol = protocol.New(protoConfig)
	return c
}

// Stop sends a Done message to the peer if we currently hold agency and shuts down the
// protocol
func (c *Client) Stop() {
	c.onceStop.Do(func() {
		c.Logger().Debug(
			"calling Stop()",
			"component", "network",
			"protocol", ProtocolName,
			"role", "client",
		)
		if c.CurrentState() == stateIdle {
			// Best effort, the connection may already be gone
			_ = c.SendMessage(NewMsgDone())
		}
		c.Protocol.Stop()
	})
}

// RemoteTip returns the most recent tip reported by the peer, if any
func (c *Client) RemoteTip() (common.Tip, bool) {
	c.tipMutex.Lock()
	defer c.tipMutex.Unlock()
	if c.remoteTip == nil {
		return common.Tip{}, false
	}
	return *c.remoteTip, true
}

func (c *Client) setRemoteTip(tip common.Tip) {
	c.tipMutex.Lock()
	defer c.tipMutex.Unlock()
	c.remoteTip = &tip
}

// FindIntersect asks the peer for the most recent of the provided points that is on its
// chain. A *IntersectNotFoundError carrying the peer's tip is returned if there is none
func (c *Client) FindIntersect(points []common.Point) (common.Point, common.Tip, error) {
	c.busyMutex.Lock()
	defer c.busyMutex.Unlock()
	c.Logger().Debug(
		"calling FindIntersect()",
		"component", "network",
		"protocol", ProtocolName,
		"role", "client",
		"points", len(points),
	)
	if err := c.SendMessage(NewMsgFindIntersect(points)); err != nil {
		return common.Point{}, common.Tip{}, err
	}
	var result intersectResult
	select {
	case result = <-c.intersectResultChan:
	case <-c.DoneChan():
		select {
		case result = <-c.intersectResultChan:
		default:
			return common.Point{}, common.Tip{}, c.Err()
		}
	}
	if !result.found {
		return common.Point{}, result.tip, &IntersectNotFoundError{Tip: result.tip}
	}
	return result.point, result.tip, nil
}

// GetCurrentTip returns the peer's current tip. It doesn't change our position on the chain
func (c *Client) GetCurrentTip() (common.Tip, error) {
	_, tip, err := c.FindIntersect(nil)
	if err != nil {
		if notFoundErr, ok := err.(*IntersectNotFoundError); ok {
			return notFoundErr.Tip, nil
		}
		return common.Tip{}, err
	}
	return tip, nil
}

// IntersectTip moves our position to the peer's current tip and returns it
func (c *Client) IntersectTip() (common.Point, error) {
	tip, err := c.GetCurrentTip()
	if err != nil {
		return common.Point{}, err
	}
	if tip.Point.IsOrigin() {
		// Nothing to intersect with on an empty chain
		return tip.Point, nil
	}
	point, _, err := c.FindIntersect([]common.Point{tip.Point})
	if err != nil {
		return common.Point{}, err
	}
	return point, nil
}

// RequestNext asks the peer for the next update after our current position. If the peer has
// nothing new, the response has ActionAwait and AwaitNext must be called to wait for it
func (c *Client) RequestNext() (NextResponse, error) {
	c.busyMutex.Lock()
	defer c.busyMutex.Unlock()
	if err := c.SendMessage(NewMsgRequestNext()); err != nil {
		return NextResponse{}, err
	}
	return c.waitNext()
}

// AwaitNext blocks until the peer sends the update it told us to wait for
func (c *Client) AwaitNext() (NextResponse, error) {
	c.busyMutex.Lock()
	defer c.busyMutex.Unlock()
	if c.CurrentState() != stateMustReply {
		return NextResponse{}, fmt.Errorf(
			"%s: %w (state %s)",
			ProtocolName,
			ErrNotAwaiting,
			c.CurrentState(),
		)
	}
	return c.waitNext()
}

// waitNext prefers a response that is already queued over the protocol shutting down
func (c *Client) waitNext() (NextResponse, error) {
	select {
	case resp := <-c.nextResultChan:
		return resp, nil
	case <-c.DoneChan():
		select {
		case resp := <-c.nextResultChan:
			return resp, nil
		default:
		}
		return NextResponse{}, c.Err()
	}
}

func (c *Client) messageHandler(msg protocol.Message) error {
	switch msg := msg.(type) {
	case *MsgAwaitReply:
		c.Logger().Debug(
			"waiting for next block",
			"component", "network",
			"protocol", ProtocolName,
			"role", "client",
		)
		tip, _ := c.RemoteTip()
		c.sendNextResult(NextResponse{Action: ActionAwait, Tip: tip})
	case *MsgRollForward:
		c.setRemoteTip(msg.Tip)
		header := msg.WrappedHeader
		c.sendNextResult(
			NextResponse{
				Action: ActionRollForward,
				Header: &header,
				Tip:    msg.Tip,
			},
		)
	case *MsgRollBackward:
		c.setRemoteTip(msg.Tip)
		c.sendNextResult(
			NextResponse{
				Action: ActionRollBackward,
				Point:  msg.Point,
				Tip:    msg.Tip,
			},
		)
	case *MsgIntersectFound:
		c.setRemoteTip(msg.Tip)
		c.sendIntersectResult(
			intersectResult{point: msg.Point, tip: msg.Tip, found: true},
		)
	case *MsgIntersectNotFound:
		c.setRemoteTip(msg.Tip)
		c.sendIntersectResult(intersectResult{tip: msg.Tip})
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

func (c *Client) sendNextResult(resp NextResponse) {
	select {
	case <-c.DoneChan():
	case c.nextResultChan <- resp:
	}
}

func (c *Client) sendIntersectResult(result intersectResult) {
	select {
	case <-c.DoneChan():
	case c.intersectResultChan <- result:
	}
}
