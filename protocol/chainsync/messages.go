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
	"github.com/blinklabs-io/ouroboros-fetch/protocol"
	"github.com/blinklabs-io/ouroboros-fetch/protocol/common"
)

// Message types
const (
	MessageTypeRequestNext       = 0
	MessageTypeAwaitReply        = 1
	MessageTypeRollForward       = 2
	MessageTypeRollBackward      = 3
	MessageTypeFindIntersect     = 4
	MessageTypeIntersectFound    = 5
	MessageTypeIntersectNotFound = 6
	MessageTypeDone              = 7
)

var messageTypes = map[uint]func() protocol.Message{
	MessageTypeRequestNext:       func() protocol.Message { return &MsgRequestNext{} },
	MessageTypeAwaitReply:        func() protocol.Message { return &MsgAwaitReply{} },
	MessageTypeRollForward:       func() protocol.Message { return &MsgRollForward{} },
	MessageTypeRollBackward:      func() protocol.Message { return &MsgRollBackward{} },
	MessageTypeFindIntersect:     func() protocol.Message { return &MsgFindIntersect{} },
	MessageTypeIntersectFound:    func() protocol.Message { return &MsgIntersectFound{} },
	MessageTypeIntersectNotFound: func() protocol.Message { return &MsgIntersectNotFound{} },
	MessageTypeDone:              func() protocol.Message { return &MsgDone{} },
}

// NewMsgFromCbor parses a ChainSync message from CBOR. Unknown message types return nil
func NewMsgFromCbor(msgType uint, data []byte) (protocol.Message, error) {
	newMsg, ok := messageTypes[msgType]
	if !ok {
		return nil, nil
	}
	return protocol.DecodeMessage(ProtocolName, newMsg(), data)
}

type MsgRequestNext struct {
	protocol.MessageBase
}

func NewMsgRequestNext() *MsgRequestNext {
	return &MsgRequestNext{MessageBase: protocol.NewMessageBase(MessageTypeRequestNext)}
}

// MsgAwaitReply tells the client that it is at the tip and the next reply comes
// when the server's chain changes
type MsgAwaitReply struct {
	protocol.MessageBase
}

func NewMsgAwaitReply() *MsgAwaitReply {
	return &MsgAwaitReply{MessageBase: protocol.NewMessageBase(MessageTypeAwaitReply)}
}

type MsgRollForward struct {
	protocol.MessageBase
	WrappedHeader WrappedHeader
	Tip           common.Tip
}

func NewMsgRollForward(wrappedHeader WrappedHeader, tip common.Tip) *MsgRollForward {
	return &MsgRollForward{
		MessageBase:   protocol.NewMessageBase(MessageTypeRollForward),
		WrappedHeader: wrappedHeader,
		Tip:           tip,
	}
}

type MsgRollBackward struct {
	protocol.MessageBase
	Point common.Point
	Tip   common.Tip
}

func NewMsgRollBackward(point common.Point, tip common.Tip) *MsgRollBackward {
	return &MsgRollBackward{
		MessageBase: protocol.NewMessageBase(MessageTypeRollBackward),
		Point:       point,
		Tip:         tip,
	}
}

type MsgFindIntersect struct {
	protocol.MessageBase
	Points []common.Point
}

func NewMsgFindIntersect(points []common.Point) *MsgFindIntersect {
	// An empty list and not null on the wire
	if points == nil {
		points = []common.Point{}
	}
	return &MsgFindIntersect{
		MessageBase: protocol.NewMessageBase(MessageTypeFindIntersect),
		Points:      points,
	}
}

type MsgIntersectFound struct {
	protocol.MessageBase
	Point common.Point
	Tip   common.Tip
}

func NewMsgIntersectFound(point common.Point, tip common.Tip) *MsgIntersectFound {
	return &MsgIntersectFound{
		MessageBase: protocol.NewMessageBase(MessageTypeIntersectFound),
		Point:       point,
		Tip:         tip,
	}
}

type MsgIntersectNotFound struct {
	protocol.MessageBase
	Tip common.Tip
}

func NewMsgIntersectNotFound(tip common.Tip) *MsgIntersectNotFound {
	return &MsgIntersectNotFound{
		MessageBase: protocol.NewMessageBase(MessageTypeIntersectNotFound),
		Tip:         tip,
	}
}

type MsgDone struct {
	protocol.MessageBase
}

func NewMsgDone() *MsgDone {
	return &MsgDone{MessageBase: protocol.NewMessageBase(MessageTypeDone)}
}
