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
	"github.com/blinklabs-io/ouroboros-fetch/cbor"
	"github.com/blinklabs-io/ouroboros-fetch/protocol"
	"github.com/blinklabs-io/ouroboros-fetch/protocol/common"
)

// Message types
const (
	MessageTypeRequestRange = 0
	MessageTypeClientDone   = 1
	MessageTypeStartBatch   = 2
	MessageTypeNoBlocks     = 3
	MessageTypeBlock        = 4
	MessageTypeBatchDone    = 5
)

var messageTypes = map[uint]func() protocol.Message{
	MessageTypeRequestRange: func() protocol.Message { return &MsgRequestRange{} },
	MessageTypeClientDone:   func() protocol.Message { return &MsgClientDone{} },
	MessageTypeStartBatch:   func() protocol.Message { return &MsgStartBatch{} },
	MessageTypeNoBlocks:     func() protocol.Message { return &MsgNoBlocks{} },
	MessageTypeBlock:        func() protocol.Message { return &MsgBlock{} },
	MessageTypeBatchDone:    func() protocol.Message { return &MsgBatchDone{} },
}

// NewMsgFromCbor parses a BlockFetch message from CBOR. Unknown message types return nil
func NewMsgFromCbor(msgType uint, data []byte) (protocol.Message, error) {
	newMsg, ok := messageTypes[msgType]
	if !ok {
		return nil, nil
	}
	return protocol.DecodeMessage(ProtocolName, newMsg(), data)
}

// MsgRequestRange asks for every block from Start to End, both included
type MsgRequestRange struct {
	protocol.MessageBase
	Start common.Point
	End   common.Point
}

func NewMsgRequestRange(start common.Point, end common.Point) *MsgRequestRange {
	return &MsgRequestRange{
		MessageBase: protocol.NewMessageBase(MessageTypeRequestRange),
		Start:       start,
		End:         end,
	}
}

type MsgClientDone struct {
	protocol.MessageBase
}

func NewMsgClientDone() *MsgClientDone {
	return &MsgClientDone{MessageBase: protocol.NewMessageBase(MessageTypeClientDone)}
}

type MsgStartBatch struct {
	protocol.MessageBase
}

func NewMsgStartBatch() *MsgStartBatch {
	return &MsgStartBatch{MessageBase: protocol.NewMessageBase(MessageTypeStartBatch)}
}

// MsgNoBlocks means the peer doesn't have the whole requested range
type MsgNoBlocks struct {
	protocol.MessageBase
}

func NewMsgNoBlocks() *MsgNoBlocks {
	return &MsgNoBlocks{MessageBase: protocol.NewMessageBase(MessageTypeNoBlocks)}
}

// MsgBlock carries one block. WrappedBlock holds the content of the CBOR-in-CBOR tag,
// which is the block type followed by the block itself
type MsgBlock struct {
	protocol.MessageBase
	WrappedBlock cbor.WrappedCbor
}

func NewMsgBlock(wrappedBlock []byte) *MsgBlock {
	return &MsgBlock{
		MessageBase:  protocol.NewMessageBase(MessageTypeBlock),
		WrappedBlock: wrappedBlock,
	}
}

type MsgBatchDone struct {
	protocol.MessageBase
}

func NewMsgBatchDone() *MsgBatchDone {
	return &MsgBatchDone{MessageBase: protocol.NewMessageBase(MessageTypeBatchDone)}
}
