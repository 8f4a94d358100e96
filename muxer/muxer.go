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

// Package muxer implements the muxer/demuxer that allows multiple mini-protocols to run
// over a single connection.
//
// It's not generally intended for this package to be used outside of this library, but it's
// possible to use it to do more advanced things than the library interface allows for.
package muxer

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// Role is the side of the connection that a Muxer is playing
type Role int

const (
	// RoleInitiator sends requests and receives responses. This is the client side
	RoleInitiator Role = iota
	// RoleResponder receives requests and sends responses
	RoleResponder
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

const (
	// Handshake protocol ID
	ProtocolIdHandshake uint16 = 0

	receiverQueueSize = 10
	senderQueueSize   = 10
)

var (
	// ErrUnknownProtocol is returned when a segment arrives for a protocol ID that has
	// not been registered
	ErrUnknownProtocol = errors.New("unknown protocol ID")

	// ErrUnexpectedDirection is returned when a segment arrives with the same
	// direction bit as our own outbound segments
	ErrUnexpectedDirection = errors.New("unexpected segment direction")

	// ErrMuxerStopped is the shutdown cause recorded when Stop is called
	ErrMuxerStopped = errors.New("muxer stopped")
)

// Muxer wraps a connection to allow running multiple mini-protocols over a single connection
type Muxer struct {
	conn              net.Conn
	logger            *slog.Logger
	role              Role
	metrics           *Metrics
	startOnce         sync.Once
	stopOnce          sync.Once
	waitGroup         sync.WaitGroup
	doneChan          chan bool
	errorChan         chan error
	sendChan          chan *Segment
	protocolReceivers map[uint16]chan *Segment
	protocolLock      sync.Mutex
	err               error
	errMutex          sync.Mutex
}

// MuxerOptionFunc is a type that represents functions that modify the Muxer config
type MuxerOptionFunc func(*Muxer)

// WithLogger specifies the logger to use
func WithLogger(logger *slog.Logger) MuxerOptionFunc {
	return func(m *Muxer) {
		m.logger = logger
	}
}

// WithRole specifies which side of the connection the muxer plays
func WithRole(role Role) MuxerOptionFunc {
	return func(m *Muxer) {
		m.role = role
	}
}

// WithMetrics specifies the collectors to update for each segment
func WithMetrics(metrics *Metrics) MuxerOptionFunc {
	return func(m *Muxer) {
		m.metrics = metrics
	}
}

// New creates a new Muxer object and starts the read loop
func New(conn net.Conn, opts ...MuxerOptionFunc) *Muxer {
	m := &Muxer{
		conn:              conn,
		role:              RoleInitiator,
		doneChan:          make(chan bool),
		errorChan:         make(chan error, 1),
		sendChan:          make(chan *Segment, senderQueueSize),
		protocolReceivers: make(map[uint16]chan *Segment),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Role returns the side of the connection the muxer plays
func (m *Muxer) Role() Role {
	return m.role
}

// ErrorChan returns the channel where the cause of an unexpected shutdown is sent. At
// most one error is ever sent
func (m *Muxer) ErrorChan() <-chan error {
	return m.errorChan
}

// DoneChan returns a channel that is closed when the muxer shuts down
func (m *Muxer) DoneChan() <-chan bool {
	return m.doneChan
}

// Err returns the cause of the muxer shutting down, or nil if it's still running
func (m *Muxer) Err() error {
	m.errMutex.Lock()
	defer m.errMutex.Unlock()
	return m.err
}

// Start starts the read and write loops. Calling it more than once has no effect
func (m *Muxer) Start() {
	m.startOnce.Do(func() {
		m.logger.Debug(
			"starting muxer",
			"component", "network",
			"role", m.role.String(),
			"remote", remoteAddr(m.conn),
		)
		m.waitGroup.Add(2)
		go m.readLoop()
		go m.writeLoop()
	})
}

// Stop shuts down the muxer, closes the underlying connection, and waits for the read and
// write loops to exit
func (m *Muxer) Stop() {
	m.shutdown(ErrMuxerStopped)
	m.waitGroup.Wait()
}

func (m *Muxer) shutdown(cause error) {
	m.stopOnce.Do(func() {
		m.errMutex.Lock()
		m.err = cause
		m.errMutex.Unlock()
		if m.conn != nil {
			_ = m.conn.Close()
		}
		close(m.doneChan)
		if !errors.Is(cause, ErrMuxerStopped) {
			m.logger.Debug(
				"muxer shutting down",
				"component", "network",
				"role", m.role.String(),
				"error", cause,
			)
			// The channel is buffered for exactly this one error
			m.errorChan <- cause
		}
	})
}

// RegisterProtocol registers the provided protocol ID with the muxer. It returns a channel
// for sending segments, a channel for receiving segments, and a channel that is closed
// when the muxer shuts down. Registering the same ID again returns the existing channels
func (m *Muxer) RegisterProtocol(
	protocolId uint16,
) (chan<- *Segment, <-chan *Segment, <-chan bool) {
	m.protocolLock.Lock()
	defer m.protocolLock.Unlock()
	recvChan, ok := m.protocolReceivers[protocolId]
	if !ok {
		recvChan = make(chan *Segment, receiverQueueSize)
		m.protocolReceivers[protocolId] = recvChan
	}
	return m.sendChan, recvChan, m.doneChan
}

// UnregisterProtocol stops routing segments for the provided protocol ID. Segments that
// arrive for it afterward are treated as unknown
func (m *Muxer) UnregisterProtocol(protocolId uint16) {
	m.protocolLock.Lock()
	defer m.protocolLock.Unlock()
	delete(m.protocolReceivers, protocolId)
}

// Send queues a segment for writing. It returns an error if the muxer has shut down
func (m *Muxer) Send(segment *Segment) error {
	// The queue may still have room after the write loop exits
	select {
	case <-m.doneChan:
		return m.Err()
	default:
	}
	select {
	case <-m.doneChan:
		return m.Err()
	case m.sendChan <- segment:
		return nil
	}
}

// Flush blocks until every segment queued before the call has been written to the
// connection. It returns an error if the muxer shuts down first
func (m *Muxer) Flush() error {
	marker := &Segment{flushed: make(chan struct{})}
	if err := m.Send(marker); err != nil {
		return err
	}
	select {
	case <-marker.flushed:
		return nil
	case <-m.doneChan:
		select {
		case <-marker.flushed:
			return nil
		default:
		}
		return m.Err()
	}
}

func (m *Muxer) writeLoop() {
	defer m.waitGroup.Done()
	for {
		select {
		case <-m.doneChan:
			return
		case segment := <-m.sendChan:
			if segment.flushed != nil {
				close(segment.flushed)
				continue
			}
			if err := m.writeSegment(segment); err != nil {
				m.shutdown(err)
				return
			}
		}
	}
}

func (m *Muxer) writeSegment(segment *Segment) error {
	// Outbound segments always carry our own direction bit
	protocolId := segment.GetProtocolId()
	if m.role == RoleResponder {
		protocolId |= segmentProtocolIdResponseFlag
	}
	segment.ProtocolId = protocolId
	for _, chunk := range segment.Split() {
		data, err := chunk.MarshalBinary()
		if err != nil {
			return err
		}
		if _, err := m.conn.Write(data); err != nil {
			return err
		}
		m.metrics.observe(directionOut, chunk)
	}
	return nil
}

func (m *Muxer) readLoop() {
	defer m.waitGroup.Done()
	for {
		segment, err := ReadSegment(m.conn)
		if err != nil {
			m.shutdown(err)
			return
		}
		// An initiator only expects responses, a responder only expects requests
		if segment.IsResponse() != (m.role == RoleInitiator) {
			m.shutdown(
				fmt.Errorf(
					"%w: protocol ID %d",
					ErrUnexpectedDirection,
					segment.GetProtocolId(),
				),
			)
			return
		}
		m.metrics.observe(directionIn, segment)
		m.protocolLock.Lock()
		recvChan, ok := m.protocolReceivers[segment.GetProtocolId()]
		m.protocolLock.Unlock()
		if !ok {
			m.shutdown(
				fmt.Errorf(
					"%w: %d",
					ErrUnknownProtocol,
					segment.GetProtocolId(),
				),
			)
			return
		}
		select {
		case <-m.doneChan:
			return
		case recvChan <- segment:
		}
	}
}

func remoteAddr(conn net.Conn) string {
	if conn == nil || conn.RemoteAddr() == nil {
		return ""
	}
	return conn.RemoteAddr().String()
}
