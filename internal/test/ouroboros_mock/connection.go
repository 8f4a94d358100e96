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
	"bytes"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/blinklabs-io/ouroboros-fetch/cbor"
	"github.com/blinklabs-io/ouroboros-fetch/muxer"
	"github.com/blinklabs-io/ouroboros-fetch/protocol"
	"github.com/blinklabs-io/ouroboros-fetch/protocol/handshake"
)

// Connection mocks an Ouroboros connection. The mock side plays the responder and follows
// the provided conversation
type Connection struct {
	mockConn     net.Conn
	conn         net.Conn
	conversation []ConversationEntry
	muxer        *muxer.Muxer
	recvChans    map[uint16]<-chan *muxer.Segment
	errorChan    chan error
	doneChan     chan struct{}
	closeOnce    sync.Once
}

// NewConnection returns a new Connection with the provided conversation entries
func NewConnection(conversation []ConversationEntry) *Connection {
	c := &Connection{
		conversation: conversation,
		recvChans:    make(map[uint16]<-chan *muxer.Segment),
		errorChan:    make(chan error, 1),
		doneChan:     make(chan struct{}),
	}
	c.conn, c.mockConn = net.Pipe()
	// Start a muxer on the mocked side of the connection
	c.muxer = muxer.New(c.mockConn, muxer.WithRole(muxer.RoleResponder))
	// The handshake is always registered, everything else only if the conversation uses it
	protocolIds := []uint16{handshake.ProtocolId}
	for _, entry := range conversation {
		protocolIds = append(protocolIds, entry.ProtocolId)
	}
	for _, protocolId := range protocolIds {
		if _, ok := c.recvChans[protocolId]; ok {
			continue
		}
		_, recvChan, _ := c.muxer.RegisterProtocol(protocolId)
		c.recvChans[protocolId] = recvChan
	}
	c.muxer.Start()
	// Start async conversation handler
	go c.asyncLoop()
	return c
}

// ErrorChan returns a channel that receives the first conversation error
func (c *Connection) ErrorChan() <-chan error {
	return c.errorChan
}

// DoneChan returns a channel that is closed once every conversation entry has been processed
func (c *Connection) DoneChan() <-chan struct{} {
	return c.doneChan
}

// Read provides a proxy to the client-side connection's Read function. This is needed to satisfy the net.Conn interface
func (c *Connection) Read(b []byte) (n int, err error) {
	return c.conn.Read(b)
}

// Write provides a proxy to the client-side connection's Write function. This is needed to satisfy the net.Conn interface
func (c *Connection) Write(b []byte) (n int, err error) {
	return c.conn.Write(b)
}

// Close closes both sides of the connection. This is needed to satisfy the net.Conn interface
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.muxer.Stop()
		err = errors.Join(c.conn.Close(), c.mockConn.Close())
	})
	return err
}

// LocalAddr provides a proxy to the client-side connection's LocalAddr function. This is needed to satisfy the net.Conn interface
func (c *Connection) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr provides a proxy to the client-side connection's RemoteAddr function. This is needed to satisfy the net.Conn interface
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// SetDeadline provides a proxy to the client-side connection's SetDeadline function. This is needed to satisfy the net.Conn interface
func (c *Connection) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// SetReadDeadline provides a proxy to the client-side connection's SetReadDeadline function. This is needed to satisfy the net.Conn interface
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline provides a proxy to the client-side connection's SetWriteDeadline function. This is needed to satisfy the net.Conn interface
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

func (c *Connection) asyncLoop() {
	for idx, entry := range c.conversation {
		var err error
		switch entry.Type {
		case EntryTypeInput:
			_, err = c.processInputEntry(entry)
		case EntryTypeOutput:
			err = c.processOutputEntry(entry)
		case EntryTypeHandshakeResponse:
			err = c.processHandshakeResponseEntry(entry)
		case EntryTypeSleep:
			select {
			case <-c.muxer.DoneChan():
			case <-time.After(entry.Duration):
			}
		case EntryTypeClose:
			// Everything already sent must reach the client before it sees EOF
			err = c.muxer.Flush()
			// Only our side goes away
			c.muxer.Stop()
		default:
			err = fmt.Errorf("unknown conversation entry type: %d", entry.Type)
		}
		if err != nil {
			c.errorChan <- fmt.Errorf("conversation entry %d: %w", idx, err)
			return
		}
	}
	close(c.doneChan)
}

// errConnectionClosed is returned when the client goes away in the middle of the conversation
var errConnectionClosed = errors.New("connection closed before conversation finished")

func (c *Connection) processInputEntry(entry ConversationEntry) ([]byte, error) {
	recvChan := c.recvChans[entry.ProtocolId]
	var payload []byte
	// Wait until we have one complete message
	for {
		select {
		case <-c.muxer.DoneChan():
			return nil, errConnectionClosed
		case segment := <-recvChan:
			payload = append(payload, segment.Payload...)
		}
		var tmp cbor.RawMessage
		if _, err := cbor.Decode(payload, &tmp); err != nil {
			if cbor.IsIncomplete(err) {
				continue
			}
			return nil, fmt.Errorf("decode error: %w", err)
		}
		break
	}
	// Determine message type
	msgType, err := cbor.DecodeIdFromList(payload)
	if err != nil {
		return nil, fmt.Errorf("decode error: %w", err)
	}
	// #nosec G115
	if entry.InputMessageType != uint(msgType) {
		return nil, fmt.Errorf(
			"input message is not of expected type: expected %d, got %d",
			entry.InputMessageType,
			msgType,
		)
	}
	if entry.InputFunc != nil {
		if err := entry.InputFunc(payload); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

func (c *Connection) processOutputEntry(entry ConversationEntry) error {
	payloadBuf := bytes.NewBuffer(nil)
	for _, msg := range entry.OutputMessages {
		// Get raw CBOR from message
		data := msg.Cbor()
		// If message has no raw CBOR, encode the message
		if data == nil {
			var err error
			data, err = cbor.Encode(msg)
			if err != nil {
				return err
			}
		}
		payloadBuf.Write(data)
	}
	return c.sendPayload(entry.ProtocolId, payloadBuf.Bytes(), entry.OutputSegmentSize)
}

func (c *Connection) sendPayload(protocolId uint16, payload []byte, segmentSize int) error {
	for {
		chunk := payload
		if segmentSize > 0 && len(chunk) > segmentSize {
			chunk = payload[:segmentSize]
		}
		if err := c.muxer.Send(muxer.NewSegment(protocolId, chunk, true)); err != nil {
			return err
		}
		payload = payload[len(chunk):]
		if len(payload) == 0 {
			return nil
		}
	}
}

func (c *Connection) processHandshakeResponseEntry(entry ConversationEntry) error {
	payload, err := c.processInputEntry(
		ConversationEntry{
			ProtocolId:       handshake.ProtocolId,
			InputMessageType: handshake.MessageTypeProposeVersions,
		},
	)
	if err != nil {
		return err
	}
	msg, err := handshake.NewMsgFromCbor(handshake.MessageTypeProposeVersions, payload)
	if err != nil {
		return err
	}
	proposal := msg.(*handshake.MsgProposeVersions)
	var response protocol.Message
	version, ok := handshake.SelectVersion(proposal.Versions(), entry.SupportedVersions)
	if !ok {
		response = handshake.NewMsgRefuseVersionMismatch(entry.SupportedVersions)
	} else {
		proposedData, err := protocol.NewVersionDataFromCbor(version, proposal.VersionMap[version])
		if err != nil {
			return err
		}
		if proposedData.NetworkMagic() != entry.NetworkMagic {
			response = handshake.NewMsgRefuseRefused(version, "network magic mismatch")
		} else {
			response, err = handshake.NewMsgAcceptVersion(
				version,
				protocol.NewVersionData(version, entry.NetworkMagic),
			)
			if err != nil {
				return err
			}
		}
	}
	data, err := cbor.Encode(response)
	if err != nil {
		return err
	}
	return c.sendPayload(handshake.ProtocolId, data, 0)
}
