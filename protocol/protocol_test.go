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

package protocol

import (
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/blinklabs-io/ouroboros-fetch/cbor"
	"github.com/blinklabs-io/ouroboros-fetch/muxer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const (
	testProtocolId   = 5
	testMsgTypeReq   = 0
	testMsgTypeItem  = 1
	testMsgTypeDone  = 2
	testWaitDuration = 2 * time.Second
)

var (
	testStateIdle = NewState(1, "Idle")
	testStateBusy = NewState(2, "Busy")
	testStateDone = NewState(3, "Done")
)

type testMsgReq struct {
	MessageBase
}

type testMsgItem struct {
	MessageBase
	Value uint64
}

type testMsgDone struct {
	MessageBase
}

func testStateMap(busyTimeout time.Duration) StateMap {
	return StateMap{
		testStateIdle: StateMapEntry{
			Agency: AgencyClient,
			Transitions: []StateTransition{
				{MsgType: testMsgTypeReq, NewState: testStateBusy},
			},
		},
		testStateBusy: StateMapEntry{
			Agency:  AgencyServer,
			Timeout: busyTimeout,
			Transitions: []StateTransition{
				{MsgType: testMsgTypeItem, NewState: testStateBusy},
				{MsgType: testMsgTypeDone, NewState: testStateIdle},
			},
		},
		testStateDone: StateMapEntry{
			Agency: AgencyNone,
		},
	}
}

func testMsgFromCbor(msgType uint, data []byte) (Message, error) {
	var ret Message
	switch msgType {
	case testMsgTypeReq:
		ret = &testMsgReq{}
	case testMsgTypeItem:
		ret = &testMsgItem{}
	case testMsgTypeDone:
		ret = &testMsgDone{}
	default:
		return nil, nil
	}
	if _, err := cbor.Decode(data, ret); err != nil {
		return nil, fmt.Errorf("decode error: %w", err)
	}
	ret.SetCbor(data)
	return ret, nil
}

type testPeer struct {
	protocol  *Protocol
	client    *muxer.Muxer
	server    *muxer.Muxer
	recvChan  <-chan *muxer.Segment
	errorChan chan error
	msgChan   chan Message
}

func newTestPeer(t *testing.T, busyTimeout time.Duration) *testPeer {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	tp := &testPeer{
		client:    muxer.New(clientConn),
		server:    muxer.New(serverConn, muxer.WithRole(muxer.RoleResponder)),
		errorChan: make(chan error, 5),
		msgChan:   make(chan Message, 10),
	}
	_, tp.recvChan, _ = tp.server.RegisterProtocol(testProtocolId)
	tp.protocol = New(
		ProtocolConfig{
			Name:                "test",
			ProtocolId:          testProtocolId,
			ErrorChan:           tp.errorChan,
			Muxer:               tp.client,
			MessageFromCborFunc: testMsgFromCbor,
			MessageHandlerFunc: func(msg Message) error {
				tp.msgChan <- msg
				return nil
			},
			StateMap:     testStateMap(busyTimeout),
			InitialState: testStateIdle,
		},
	)
	tp.protocol.Start()
	tp.client.Start()
	tp.server.Start()
	// Cleanups run in reverse order, so this runs after everything is stopped
	t.Cleanup(func() {
		goleak.VerifyNone(t)
	})
	t.Cleanup(func() {
		tp.client.Stop()
		tp.server.Stop()
		tp.protocol.Stop()
	})
	return tp
}

// sendRaw sends CBOR from the server side, split into the provided chunk sizes
func (tp *testPeer) sendRaw(t *testing.T, data []byte, chunkSizes ...int) {
	t.Helper()
	for _, size := range chunkSizes {
		require.NoError(t, tp.server.Send(muxer.NewSegment(testProtocolId, data[:size], true)))
		data = data[size:]
	}
	if len(data) > 0 {
		require.NoError(t, tp.server.Send(muxer.NewSegment(testProtocolId, data, true)))
	}
}

func (tp *testPeer) expectRequest(t *testing.T) {
	t.Helper()
	select {
	case segment := <-tp.recvChan:
		msgType, err := cbor.DecodeIdFromList(segment.Payload)
		require.NoError(t, err)
		require.Equal(t, testMsgTypeReq, msgType)
	case <-time.After(testWaitDuration):
		t.Fatal("did not receive request")
	}
}

func (tp *testPeer) nextMessage(t *testing.T) Message {
	t.Helper()
	select {
	case msg := <-tp.msgChan:
		return msg
	case err := <-tp.errorChan:
		t.Fatalf("unexpected error: %s", err)
	case <-time.After(testWaitDuration):
		t.Fatal("did not receive message")
	}
	return nil
}

func encodeTestMsg(t *testing.T, msg any) []byte {
	t.Helper()
	data, err := cbor.Encode(msg)
	require.NoError(t, err)
	return data
}

func TestIsDone(t *testing.T) {
	stateMap := testStateMap(0)

	t.Run("returns false when protocol is active and in working state", func(t *testing.T) {
		p := &Protocol{
			doneChan:     make(chan struct{}),
			currentState: testStateBusy,
			config:       ProtocolConfig{InitialState: testStateIdle, StateMap: stateMap},
		}
		assert.False(t, p.IsDone())
	})

	t.Run("returns true when done channel is closed", func(t *testing.T) {
		p := &Protocol{
			doneChan:     make(chan struct{}),
			currentState: testStateBusy,
			config:       ProtocolConfig{InitialState: testStateIdle, StateMap: stateMap},
		}
		close(p.doneChan)
		assert.True(t, p.IsDone())
	})

	t.Run("returns true when in AgencyNone state", func(t *testing.T) {
		p := &Protocol{
			doneChan:     make(chan struct{}),
			currentState: testStateDone,
			config:       ProtocolConfig{InitialState: testStateIdle, StateMap: stateMap},
		}
		assert.True(t, p.IsDone())
	})
}

func TestSendWithoutAgency(t *testing.T) {
	tp := newTestPeer(t, 0)
	require.True(t, tp.protocol.HasAgency())
	require.NoError(t, tp.protocol.SendMessage(&testMsgReq{MessageBase{MessageType: testMsgTypeReq}}))
	tp.expectRequest(t)
	assert.False(t, tp.protocol.HasAgency())
	assert.Equal(t, testStateBusy, tp.protocol.CurrentState())
	// The peer holds agency now
	err := tp.protocol.SendMessage(&testMsgReq{MessageBase{MessageType: testMsgTypeReq}})
	assert.ErrorIs(t, err, ErrAgencyViolation)
	assert.Equal(t, testStateBusy, tp.protocol.CurrentState())
}

func TestSendInvalidMessageForState(t *testing.T) {
	tp := newTestPeer(t, 0)
	err := tp.protocol.SendMessage(&testMsgDone{MessageBase{MessageType: testMsgTypeDone}})
	assert.ErrorIs(t, err, ErrAgencyViolation)
	assert.Equal(t, testStateIdle, tp.protocol.CurrentState())
}

func TestRecvReassembly(t *testing.T) {
	tp := newTestPeer(t, 0)
	require.NoError(t, tp.protocol.SendMessage(&testMsgReq{MessageBase{MessageType: testMsgTypeReq}}))
	tp.expectRequest(t)
	item1 := encodeTestMsg(t, &testMsgItem{MessageBase{MessageType: testMsgTypeItem}, 1000000})
	item2 := encodeTestMsg(t, &testMsgItem{MessageBase{MessageType: testMsgTypeItem}, 2})
	done := encodeTestMsg(t, &testMsgDone{MessageBase{MessageType: testMsgTypeDone}})
	// First message split over two segments
	tp.sendRaw(t, item1, 2)
	// Two messages in a single segment
	tp.sendRaw(t, append(append([]byte{}, item2...), done...))
	msg := tp.nextMessage(t)
	require.IsType(t, &testMsgItem{}, msg)
	assert.Equal(t, uint64(1000000), msg.(*testMsgItem).Value)
	assert.Equal(t, item1, msg.Cbor())
	msg = tp.nextMessage(t)
	require.IsType(t, &testMsgItem{}, msg)
	assert.Equal(t, uint64(2), msg.(*testMsgItem).Value)
	msg = tp.nextMessage(t)
	require.IsType(t, &testMsgDone{}, msg)
	assert.Eventually(
		t,
		tp.protocol.HasAgency,
		testWaitDuration,
		10*time.Millisecond,
	)
}

func TestRecvWithoutPeerAgency(t *testing.T) {
	tp := newTestPeer(t, 0)
	// We hold agency in Idle, so anything from the peer is a violation
	tp.sendRaw(t, encodeTestMsg(t, &testMsgDone{MessageBase{MessageType: testMsgTypeDone}}))
	select {
	case err := <-tp.errorChan:
		assert.ErrorIs(t, err, ErrAgencyViolation)
	case <-time.After(testWaitDuration):
		t.Fatal("did not receive expected error")
	}
	<-tp.protocol.DoneChan()
	assert.ErrorIs(t, tp.protocol.Err(), ErrAgencyViolation)
}

func TestRecvUnknownMessage(t *testing.T) {
	tp := newTestPeer(t, 0)
	require.NoError(t, tp.protocol.SendMessage(&testMsgReq{MessageBase{MessageType: testMsgTypeReq}}))
	tp.expectRequest(t)
	// [9]
	tp.sendRaw(t, []byte{0x81, 0x09})
	select {
	case err := <-tp.errorChan:
		assert.ErrorIs(t, err, ErrProtocolViolationInvalidMessage)
	case <-time.After(testWaitDuration):
		t.Fatal("did not receive expected error")
	}
}

func TestStateTimeout(t *testing.T) {
	tp := newTestPeer(t, 50*time.Millisecond)
	require.NoError(t, tp.protocol.SendMessage(&testMsgReq{MessageBase{MessageType: testMsgTypeReq}}))
	tp.expectRequest(t)
	select {
	case err := <-tp.errorChan:
		assert.ErrorIs(t, err, ErrProtocolTimeout)
	case <-time.After(testWaitDuration):
		t.Fatal("did not receive expected timeout")
	}
}

func TestMuxerShutdownReleasesProtocol(t *testing.T) {
	tp := newTestPeer(t, 0)
	require.NoError(t, tp.protocol.SendMessage(&testMsgReq{MessageBase{MessageType: testMsgTypeReq}}))
	tp.expectRequest(t)
	// Peer goes away while we are waiting for a reply
	tp.server.Stop()
	select {
	case <-tp.protocol.DoneChan():
	case <-time.After(testWaitDuration):
		t.Fatal("protocol was not released")
	}
	err := tp.protocol.Err()
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.ErrorIs(t, err, io.EOF)
	// Further sends fail immediately
	assert.ErrorIs(
		t,
		tp.protocol.SendMessage(&testMsgReq{MessageBase{MessageType: testMsgTypeReq}}),
		ErrConnectionClosed,
	)
	// Nothing is reported on the protocol error channel for a closed connection
	select {
	case err := <-tp.errorChan:
		t.Fatalf("unexpected protocol error: %s", err)
	default:
	}
}

func TestSendAfterMuxerStopAlwaysFails(t *testing.T) {
	tp := newTestPeer(t, 0)
	tp.client.Stop()
	for range 200 {
		err := tp.protocol.SendMessage(&testMsgReq{MessageBase{MessageType: testMsgTypeReq}})
		require.ErrorIs(t, err, ErrConnectionClosed)
	}
	assert.Equal(t, testStateIdle, tp.protocol.CurrentState())
}

func TestQueuedMessageHandledBeforeClose(t *testing.T) {
	tp := newTestPeer(t, 0)
	require.NoError(t, tp.protocol.SendMessage(&testMsgReq{MessageBase{MessageType: testMsgTypeReq}}))
	tp.expectRequest(t)
	tp.sendRaw(
		t,
		encodeTestMsg(t, &testMsgItem{MessageBase: MessageBase{MessageType: testMsgTypeItem}, Value: 7}),
	)
	require.NoError(t, tp.server.Flush())
	tp.server.Stop()
	msg := tp.nextMessage(t)
	item, ok := msg.(*testMsgItem)
	require.True(t, ok)
	assert.Equal(t, uint64(7), item.Value)
	select {
	case <-tp.protocol.DoneChan():
	case <-time.After(testWaitDuration):
		t.Fatal("protocol was not released")
	}
	assert.ErrorIs(t, tp.protocol.Err(), ErrConnectionClosed)
}
