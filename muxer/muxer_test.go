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

package muxer_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/blinklabs-io/ouroboros-fetch/muxer"
	"go.uber.org/goleak"
)

const testTimeout = 2 * time.Second

func TestSegmentCreation(t *testing.T) {
	tests := []struct {
		name       string
		protocolId uint16
		payload    []byte
		isResponse bool
	}{
		{"request segment", 2, []byte("test payload"), false},
		{"response segment", 3, []byte("test response"), true},
		{"empty payload", 0, []byte{}, false},
		{"maximum payload size", 3, make([]byte, muxer.SegmentMaxPayloadLength), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segment := muxer.NewSegment(tt.protocolId, tt.payload, tt.isResponse)
			if segment.GetProtocolId() != tt.protocolId {
				t.Errorf(
					"expected protocol ID %d, got %d",
					tt.protocolId,
					segment.GetProtocolId(),
				)
			}
			if int(segment.PayloadLength) != len(tt.payload) {
				t.Errorf(
					"expected payload length %d, got %d",
					len(tt.payload),
					segment.PayloadLength,
				)
			}
			if segment.IsResponse() != tt.isResponse {
				t.Errorf("expected IsResponse() %v, got %v", tt.isResponse, segment.IsResponse())
			}
			if segment.IsRequest() == tt.isResponse {
				t.Errorf("isResponse and isRequest should be opposites")
			}
		})
	}
}

func TestSegmentWireFormat(t *testing.T) {
	segment := muxer.NewSegment(3, []byte{0xab, 0xcd}, true)
	segment.Timestamp = 0x01020304
	data, err := segment.MarshalBinary()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	expected := []byte{0x01, 0x02, 0x03, 0x04, 0x80, 0x03, 0x00, 0x02, 0xab, 0xcd}
	if !bytes.Equal(data, expected) {
		t.Fatalf("did not get expected bytes\n  got:    %x\n  wanted: %x", data, expected)
	}
	decoded, err := muxer.ReadSegment(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if decoded.Timestamp != 0x01020304 || decoded.GetProtocolId() != 3 ||
		!decoded.IsResponse() {
		t.Fatalf("unexpected header: %+v", decoded.SegmentHeader)
	}
	if !bytes.Equal(decoded.Payload, []byte{0xab, 0xcd}) {
		t.Fatalf("unexpected payload: %x", decoded.Payload)
	}
	// Oversized payloads must be split first
	if _, err := muxer.NewSegment(3, make([]byte, muxer.SegmentMaxPayloadLength+1), false).MarshalBinary(); err == nil {
		t.Fatalf("did not get expected error for oversized payload")
	}
}

func TestSegmentSplit(t *testing.T) {
	tests := []struct {
		payloadLen     int
		expectedChunks []int
	}{
		{0, []int{0}},
		{1, []int{1}},
		{muxer.SegmentMaxPayloadLength, []int{muxer.SegmentMaxPayloadLength}},
		{muxer.SegmentMaxPayloadLength + 1, []int{muxer.SegmentMaxPayloadLength, 1}},
		{
			muxer.SegmentMaxPayloadLength*2 + 10,
			[]int{muxer.SegmentMaxPayloadLength, muxer.SegmentMaxPayloadLength, 10},
		},
	}
	for _, tt := range tests {
		payload := make([]byte, tt.payloadLen)
		for i := range payload {
			payload[i] = byte(i % 251)
		}
		chunks := muxer.NewSegment(2, payload, false).Split()
		if len(chunks) != len(tt.expectedChunks) {
			t.Fatalf(
				"payload of %d bytes: expected %d chunks, got %d",
				tt.payloadLen,
				len(tt.expectedChunks),
				len(chunks),
			)
		}
		var reassembled []byte
		for idx, chunk := range chunks {
			if len(chunk.Payload) != tt.expectedChunks[idx] ||
				int(chunk.PayloadLength) != tt.expectedChunks[idx] {
				t.Errorf(
					"payload of %d bytes: chunk %d has length %d, expected %d",
					tt.payloadLen,
					idx,
					len(chunk.Payload),
					tt.expectedChunks[idx],
				)
			}
			if chunk.GetProtocolId() != 2 || chunk.IsResponse() {
				t.Errorf("chunk %d did not keep header: %+v", idx, chunk.SegmentHeader)
			}
			reassembled = append(reassembled, chunk.Payload...)
		}
		if !bytes.Equal(reassembled, payload) {
			t.Errorf("payload of %d bytes did not reassemble", tt.payloadLen)
		}
	}
}

func TestReadSegmentErrors(t *testing.T) {
	// Clean end of stream
	if _, err := muxer.ReadSegment(bytes.NewReader(nil)); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got: %v", err)
	}
	// Truncated header
	if _, err := muxer.ReadSegment(bytes.NewReader([]byte{0, 0, 0, 1, 0})); !errors.Is(err, muxer.ErrMalformedSegment) {
		t.Errorf("expected ErrMalformedSegment for short header, got: %v", err)
	}
	// Payload shorter than declared length
	header := make([]byte, muxer.SegmentHeaderSize)
	binary.BigEndian.PutUint16(header[4:6], 0x8002)
	binary.BigEndian.PutUint16(header[6:8], 10)
	data := append(header, 1, 2, 3)
	if _, err := muxer.ReadSegment(bytes.NewReader(data)); !errors.Is(err, muxer.ErrMalformedSegment) {
		t.Errorf("expected ErrMalformedSegment for short payload, got: %v", err)
	}
}

func TestMuxerRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)
	initiatorConn, responderConn := net.Pipe()
	initiator := muxer.New(initiatorConn)
	responder := muxer.New(responderConn, muxer.WithRole(muxer.RoleResponder))
	defer initiator.Stop()
	defer responder.Stop()
	initSend, initRecv, _ := initiator.RegisterProtocol(3)
	_, respRecv, _ := responder.RegisterProtocol(3)
	initiator.Start()
	responder.Start()
	// Large enough to need three segments on the wire
	payload := make([]byte, muxer.SegmentMaxPayloadLength*2+100)
	for i := range payload {
		payload[i] = byte(i % 253)
	}
	initSend <- muxer.NewSegment(3, payload, false)
	var received []byte
	for len(received) < len(payload) {
		select {
		case segment := <-respRecv:
			if !segment.IsRequest() {
				t.Fatalf("responder received a response segment")
			}
			received = append(received, segment.Payload...)
		case <-time.After(testTimeout):
			t.Fatalf("did not receive full payload, got %d bytes", len(received))
		}
	}
	if !bytes.Equal(received, payload) {
		t.Fatalf("payload did not survive the round trip")
	}
	// The responder side sets the direction bit for us
	if err := responder.Send(muxer.NewSegment(3, []byte{0x81, 0x05}, false)); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	select {
	case segment := <-initRecv:
		if !segment.IsResponse() {
			t.Fatalf("initiator received a request segment")
		}
		if !bytes.Equal(segment.Payload, []byte{0x81, 0x05}) {
			t.Fatalf("unexpected payload: %x", segment.Payload)
		}
	case <-time.After(testTimeout):
		t.Fatalf("did not receive response")
	}
}

func TestMuxerPreservesOrder(t *testing.T) {
	defer goleak.VerifyNone(t)
	initiatorConn, responderConn := net.Pipe()
	initiator := muxer.New(initiatorConn)
	responder := muxer.New(responderConn, muxer.WithRole(muxer.RoleResponder))
	defer initiator.Stop()
	defer responder.Stop()
	initSend, _, _ := initiator.RegisterProtocol(2)
	_, respRecv, _ := responder.RegisterProtocol(2)
	initiator.Start()
	responder.Start()
	go func() {
		for i := range 50 {
			initSend <- muxer.NewSegment(2, []byte{byte(i)}, false)
		}
	}()
	for i := range 50 {
		select {
		case segment := <-respRecv:
			if segment.Payload[0] != byte(i) {
				t.Fatalf("expected segment %d, got %d", i, segment.Payload[0])
			}
		case <-time.After(testTimeout):
			t.Fatalf("timed out waiting for segment %d", i)
		}
	}
}

func TestMuxerUnknownProtocol(t *testing.T) {
	defer goleak.VerifyNone(t)
	initiatorConn, peerConn := net.Pipe()
	defer peerConn.Close()
	m := muxer.New(initiatorConn)
	defer m.Stop()
	m.RegisterProtocol(2)
	m.Start()
	data, _ := muxer.NewSegment(9, []byte{0x80}, true).MarshalBinary()
	go func() {
		_, _ = peerConn.Write(data)
	}()
	select {
	case err := <-m.ErrorChan():
		if !errors.Is(err, muxer.ErrUnknownProtocol) {
			t.Fatalf("expected ErrUnknownProtocol, got: %s", err)
		}
	case <-time.After(testTimeout):
		t.Fatalf("did not receive expected error")
	}
	select {
	case <-m.DoneChan():
	case <-time.After(testTimeout):
		t.Fatalf("muxer did not shut down")
	}
	if !errors.Is(m.Err(), muxer.ErrUnknownProtocol) {
		t.Fatalf("unexpected Err(): %v", m.Err())
	}
}

func TestMuxerUnexpectedDirection(t *testing.T) {
	defer goleak.VerifyNone(t)
	initiatorConn, peerConn := net.Pipe()
	defer peerConn.Close()
	m := muxer.New(initiatorConn)
	defer m.Stop()
	m.RegisterProtocol(2)
	m.Start()
	// A request segment sent to an initiator
	data, _ := muxer.NewSegment(2, []byte{0x80}, false).MarshalBinary()
	go func() {
		_, _ = peerConn.Write(data)
	}()
	select {
	case err := <-m.ErrorChan():
		if !errors.Is(err, muxer.ErrUnexpectedDirection) {
			t.Fatalf("expected ErrUnexpectedDirection, got: %s", err)
		}
	case <-time.After(testTimeout):
		t.Fatalf("did not receive expected error")
	}
}

func TestMuxerPeerClose(t *testing.T) {
	defer goleak.VerifyNone(t)
	initiatorConn, peerConn := net.Pipe()
	m := muxer.New(initiatorConn)
	defer m.Stop()
	_, _, doneChan := m.RegisterProtocol(2)
	m.Start()
	peerConn.Close()
	select {
	case <-doneChan:
	case <-time.After(testTimeout):
		t.Fatalf("muxer did not shut down after peer close")
	}
	select {
	case err := <-m.ErrorChan():
		if !errors.Is(err, io.EOF) {
			t.Fatalf("expected io.EOF, got: %s", err)
		}
	case <-time.After(testTimeout):
		t.Fatalf("no error reported after peer close")
	}
}

func TestMuxerStop(t *testing.T) {
	defer goleak.VerifyNone(t)
	initiatorConn, peerConn := net.Pipe()
	defer peerConn.Close()
	m := muxer.New(initiatorConn)
	_, _, doneChan := m.RegisterProtocol(2)
	m.Start()
	m.Stop()
	// Stop can be called more than once
	m.Stop()
	select {
	case <-doneChan:
	default:
		t.Fatalf("done channel not closed after Stop")
	}
	if !errors.Is(m.Err(), muxer.ErrMuxerStopped) {
		t.Fatalf("unexpected Err(): %v", m.Err())
	}
	select {
	case err := <-m.ErrorChan():
		t.Fatalf("unexpected error after Stop: %s", err)
	default:
	}
	if err := m.Send(muxer.NewSegment(2, nil, false)); !errors.Is(err, muxer.ErrMuxerStopped) {
		t.Fatalf("expected ErrMuxerStopped from Send, got: %v", err)
	}
}

func TestMuxerSendAfterStopAlwaysFails(t *testing.T) {
	defer goleak.VerifyNone(t)
	for range 200 {
		initiatorConn, peerConn := net.Pipe()
		m := muxer.New(initiatorConn)
		m.RegisterProtocol(2)
		m.Start()
		m.Stop()
		err := m.Send(muxer.NewSegment(2, []byte{0x80}, false))
		peerConn.Close()
		if !errors.Is(err, muxer.ErrMuxerStopped) {
			t.Fatalf("expected ErrMuxerStopped from Send after Stop, got: %v", err)
		}
	}
}

func TestMuxerFlushBeforeStop(t *testing.T) {
	defer goleak.VerifyNone(t)
	initiatorConn, responderConn := net.Pipe()
	initiator := muxer.New(initiatorConn)
	responder := muxer.New(responderConn, muxer.WithRole(muxer.RoleResponder))
	defer initiator.Stop()
	_, initRecv, _ := initiator.RegisterProtocol(3)
	responder.RegisterProtocol(3)
	initiator.Start()
	responder.Start()
	for i := range 3 {
		if err := responder.Send(muxer.NewSegment(3, []byte{0x81, byte(i)}, true)); err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
	}
	if err := responder.Flush(); err != nil {
		t.Fatalf("unexpected error from Flush: %s", err)
	}
	responder.Stop()
	for i := range 3 {
		select {
		case segment := <-initRecv:
			if !bytes.Equal(segment.Payload, []byte{0x81, byte(i)}) {
				t.Fatalf("unexpected payload: %x", segment.Payload)
			}
		case <-time.After(testTimeout):
			t.Fatalf("segment %d was lost when the responder stopped", i)
		}
	}
	if err := responder.Flush(); !errors.Is(err, muxer.ErrMuxerStopped) {
		t.Fatalf("expected ErrMuxerStopped from Flush after Stop, got: %v", err)
	}
}
