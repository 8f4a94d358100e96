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

package muxer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	// SegmentHeaderSize is the size of the fixed segment header on the wire
	SegmentHeaderSize = 8

	// SegmentMaxPayloadLength is the largest payload a single segment can carry
	SegmentMaxPayloadLength = 65535

	segmentProtocolIdResponseFlag = 0x8000
)

// ErrMalformedSegment is returned when the bearer ends inside a segment header or payload
var ErrMalformedSegment = errors.New("malformed segment")

// Reference point for segment timestamps
var clockStart = time.Now()

// SegmentHeader represents the header bytes on a segment
type SegmentHeader struct {
	Timestamp     uint32
	ProtocolId    uint16
	PayloadLength uint16
}

// Segment represents basic unit of data in the Ouroboros protocol.
//
// Each chunk of data exchanged by a particular mini-protocol is wrapped in a muxer segment.
// A segment consists of 4 bytes containing a timestamp, 2 bytes indicating which protocol the
// data is part of, 2 bytes indicating the size of the payload (up to 65535 bytes), and then
// the actual payload
type Segment struct {
	SegmentHeader
	Payload []byte
	// Set on the marker queued by Muxer.Flush
	flushed chan struct{}
}

func segmentTimestamp() uint32 {
	// Low 32 bits of a microsecond monotonic clock
	// #nosec G115
	return uint32(time.Since(clockStart).Microseconds() & 0xffffffff)
}

// NewSegment returns a new Segment given a protocol ID, payload bytes, and whether the segment
// is a response. Payloads larger than SegmentMaxPayloadLength must be passed through Split
// before being written
func NewSegment(protocolId uint16, payload []byte, isResponse bool) *Segment {
	header := SegmentHeader{
		Timestamp:  segmentTimestamp(),
		ProtocolId: protocolId & (segmentProtocolIdResponseFlag - 1),
	}
	if isResponse {
		header.ProtocolId |= segmentProtocolIdResponseFlag
	}
	if len(payload) <= SegmentMaxPayloadLength {
		// #nosec G115
		header.PayloadLength = uint16(len(payload))
	}
	return &Segment{
		SegmentHeader: header,
		Payload:       payload,
	}
}

// IsRequest returns true if the segment is not a response
func (s *SegmentHeader) IsRequest() bool {
	return (s.ProtocolId & segmentProtocolIdResponseFlag) == 0
}

// IsResponse returns true if the segment is a response
func (s *SegmentHeader) IsResponse() bool {
	return (s.ProtocolId & segmentProtocolIdResponseFlag) > 0
}

// GetProtocolId returns the protocol ID of the segment without the direction bit
func (s *SegmentHeader) GetProtocolId() uint16 {
	return s.ProtocolId & (segmentProtocolIdResponseFlag - 1)
}

// Split breaks the segment payload into as many segments as needed to respect
// SegmentMaxPayloadLength. The returned segments keep payload order. An empty
// payload results in a single empty segment
func (s *Segment) Split() []*Segment {
	if len(s.Payload) <= SegmentMaxPayloadLength {
		// #nosec G115
		s.PayloadLength = uint16(len(s.Payload))
		return []*Segment{s}
	}
	ret := make(
		[]*Segment,
		0,
		(len(s.Payload)+SegmentMaxPayloadLength-1)/SegmentMaxPayloadLength,
	)
	for start := 0; start < len(s.Payload); start += SegmentMaxPayloadLength {
		end := min(start+SegmentMaxPayloadLength, len(s.Payload))
		chunk := &Segment{
			SegmentHeader: s.SegmentHeader,
			Payload:       s.Payload[start:end],
		}
		// #nosec G115
		chunk.PayloadLength = uint16(end - start)
		ret = append(ret, chunk)
	}
	return ret
}

// MarshalBinary returns the wire representation of the segment
func (s *Segment) MarshalBinary() ([]byte, error) {
	if len(s.Payload) > SegmentMaxPayloadLength {
		return nil, fmt.Errorf(
			"segment payload of %d bytes exceeds maximum of %d",
			len(s.Payload),
			SegmentMaxPayloadLength,
		)
	}
	buf := make([]byte, SegmentHeaderSize+len(s.Payload))
	binary.BigEndian.PutUint32(buf[0:4], s.Timestamp)
	binary.BigEndian.PutUint16(buf[4:6], s.ProtocolId)
	// #nosec G115
	binary.BigEndian.PutUint16(buf[6:8], uint16(len(s.Payload)))
	copy(buf[SegmentHeaderSize:], s.Payload)
	return buf, nil
}

// ReadSegment reads a single segment from the provided reader. It returns io.EOF if the
// reader ends cleanly before the first header byte and ErrMalformedSegment if it ends
// part way through the header or payload
func ReadSegment(r io.Reader) (*Segment, error) {
	var headerBuf [SegmentHeaderSize]byte
	if _, err := io.ReadFull(r, headerBuf[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated header", ErrMalformedSegment)
		}
		return nil, err
	}
	header := SegmentHeader{
		Timestamp:     binary.BigEndian.Uint32(headerBuf[0:4]),
		ProtocolId:    binary.BigEndian.Uint16(headerBuf[4:6]),
		PayloadLength: binary.BigEndian.Uint16(headerBuf[6:8]),
	}
	segment := &Segment{
		SegmentHeader: header,
		Payload:       make([]byte, header.PayloadLength),
	}
	// We use ReadFull because it guarantees to read the expected number of bytes or
	// return an error
	if n, err := io.ReadFull(r, segment.Payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf(
				"%w: payload ended after %d of %d bytes",
				ErrMalformedSegment,
				n,
				header.PayloadLength,
			)
		}
		return nil, err
	}
	return segment, nil
}
