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

// Package protocol provides the common functionality for mini-protocols
package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/ouroboros-fetch/cbor"
	"github.com/blinklabs-io/ouroboros-fetch/muxer"
)

// Protocol implements the base functionality of an Ouroboros mini-protocol
type Protocol struct {
	config        ProtocolConfig
	doneChan      chan struct{}
	startOnce     sync.Once
	stopOnce      sync.Once
	waitGroup     sync.WaitGroup
	muxerSendChan chan<- *muxer.Segment
	muxerRecvChan <-chan *muxer.Segment
	muxerDoneChan <-chan bool
	currentState  State
	stateMutex    sync.Mutex
	stateTimer    *time.Timer
	recvBuffer    bytes.Buffer
	err           error
	errMutex      sync.Mutex
}

// ProtocolConfig provides the configuration for Protocol
type ProtocolConfig struct {
	Name                string
	ProtocolId          uint16
	ErrorChan           chan error
	Muxer               *muxer.Muxer
	Logger              *slog.Logger
	ConnectionId        string
	MessageHandlerFunc  MessageHandlerFunc
	MessageFromCborFunc MessageFromCborFunc
	StateMap            StateMap
	InitialState        State
	// Largest single message we accept from the peer. Zero means no limit
	MaxMessageSize int
}

// ProtocolOptions provides common arguments for all mini-protocols
type ProtocolOptions struct {
	ConnectionId string
	Muxer        *muxer.Muxer
	Logger       *slog.Logger
	ErrorChan    chan error
	Version      uint16
}

// MessageHandlerFunc represents a function that handles an incoming message
type MessageHandlerFunc func(Message) error

// MessageFromCborFunc represents a function that parses a mini-protocol message
type MessageFromCborFunc func(uint, []byte) (Message, error)

// New returns a new Protocol object
func New(config ProtocolConfig) *Protocol {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	p := &Protocol{
		config:       config,
		doneChan:     make(chan struct{}),
		currentState: config.InitialState,
	}
	return p
}

// Start initializes the mini-protocol
func (p *Protocol) Start() {
	p.startOnce.Do(func() {
		p.muxerSendChan, p.muxerRecvChan, p.muxerDoneChan = p.config.Muxer.RegisterProtocol(
			p.config.ProtocolId,
		)
		p.config.Logger.Debug(
			"starting protocol",
			"component", "network",
			"protocol", p.config.Name,
			"role", "client",
			"connection_id", p.config.ConnectionId,
		)
		p.waitGroup.Add(1)
		go p.recvLoop()
	})
}

// Stop shuts down the mini-protocol and waits for the receive loop to exit
func (p *Protocol) Stop() {
	p.shutdown(ErrProtocolShuttingDown)
	p.waitGroup.Wait()
}

// DoneChan returns a channel that is closed when the protocol shuts down
func (p *Protocol) DoneChan() <-chan struct{} {
	return p.doneChan
}

// Err returns the reason the protocol shut down, or nil if it's still running
func (p *Protocol) Err() error {
	p.errMutex.Lock()
	defer p.errMutex.Unlock()
	return p.err
}

// Name returns the protocol name
func (p *Protocol) Name() string {
	return p.config.Name
}

// Logger returns the protocol logger
func (p *Protocol) Logger() *slog.Logger {
	return p.config.Logger
}

// CurrentState returns the current protocol state
func (p *Protocol) CurrentState() State {
	p.stateMutex.Lock()
	defer p.stateMutex.Unlock()
	return p.currentState
}

// HasAgency returns whether our side may send the next message
func (p *Protocol) HasAgency() bool {
	p.stateMutex.Lock()
	defer p.stateMutex.Unlock()
	return p.config.StateMap[p.currentState].Agency == AgencyClient
}

// IsDone checks if the protocol has shut down or reached a terminal state
func (p *Protocol) IsDone() bool {
	select {
	case <-p.doneChan:
		return true
	default:
	}
	p.stateMutex.Lock()
	defer p.stateMutex.Unlock()
	return p.config.StateMap[p.currentState].Agency == AgencyNone
}

// SendMessage sends a message to the peer. It fails without sending anything if we don't
// hold agency or the message isn't valid in the current state
func (p *Protocol) SendMessage(msg Message) error {
	select {
	case <-p.doneChan:
		return p.Err()
	default:
	}
	if p.muxerSendChan == nil {
		return fmt.Errorf("%s: %w", p.config.Name, ErrProtocolNotStarted)
	}
	// The send queue may still have room after the muxer stops
	select {
	case <-p.muxerDoneChan:
		return p.connectionClosedError()
	default:
	}
	data, err := cbor.Encode(msg)
	if err != nil {
		return fmt.Errorf("%s: encode message: %w", p.config.Name, err)
	}
	p.stateMutex.Lock()
	entry, ok := p.config.StateMap[p.currentState]
	if !ok || entry.Agency != AgencyClient {
		state := p.currentState
		p.stateMutex.Unlock()
		return fmt.Errorf(
			"%w: %s: cannot send message type %d in state %s without agency",
			ErrAgencyViolation,
			p.config.Name,
			msg.Type(),
			state,
		)
	}
	newState, ok := p.config.StateMap.nextState(p.currentState, msg)
	if !ok {
		state := p.currentState
		p.stateMutex.Unlock()
		return fmt.Errorf(
			"%w: %s: message type %d not allowed in state %s",
			ErrAgencyViolation,
			p.config.Name,
			msg.Type(),
			state,
		)
	}
	p.setState(newState)
	p.stateMutex.Unlock()
	p.config.Logger.Debug(
		"sending message",
		"component", "network",
		"protocol", p.config.Name,
		"role", "client",
		"connection_id", p.config.ConnectionId,
		"message_type", msg.Type(),
		"new_state", newState.String(),
	)
	segment := muxer.NewSegment(p.config.ProtocolId, data, false)
	select {
	case p.muxerSendChan <- segment:
		return nil
	case <-p.muxerDoneChan:
		return p.connectionClosedError()
	case <-p.doneChan:
		return p.Err()
	}
}

// setState must be called with stateMutex held
func (p *Protocol) setState(state State) {
	p.currentState = state
	if p.stateTimer != nil {
		p.stateTimer.Stop()
		p.stateTimer = nil
	}
	entry := p.config.StateMap[state]
	if entry.Agency == AgencyServer && entry.Timeout > 0 {
		p.stateTimer = time.AfterFunc(entry.Timeout, func() {
			p.sendError(
				fmt.Errorf(
					"%w: %s: no reply within %s in state %s",
					ErrProtocolTimeout,
					p.config.Name,
					entry.Timeout,
					state,
				),
			)
		})
	}
}

func (p *Protocol) recvLoop() {
	defer p.waitGroup.Done()
	for {
		select {
		case <-p.doneChan:
			return
		case <-p.muxerDoneChan:
			// Segments that arrived before the connection went away are still handled
			if err := p.drainRecvChan(); err != nil {
				p.sendError(err)
				return
			}
			p.shutdown(p.connectionClosedError())
			return
		case segment := <-p.muxerRecvChan:
			if err := p.handleSegment(segment); err != nil {
				p.sendError(err)
				return
			}
		}
	}
}

func (p *Protocol) handleSegment(segment *muxer.Segment) error {
	p.recvBuffer.Write(segment.Payload)
	return p.processRecvBuffer()
}

func (p *Protocol) drainRecvChan() error {
	for {
		select {
		case segment := <-p.muxerRecvChan:
			if err := p.handleSegment(segment); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// processRecvBuffer handles every complete message in the receive buffer. A trailing
// partial message is left in the buffer until more segments arrive
func (p *Protocol) processRecvBuffer() error {
	for p.recvBuffer.Len() > 0 {
		var rawMsg cbor.RawMessage
		numBytesRead, err := cbor.Decode(p.recvBuffer.Bytes(), &rawMsg)
		if err != nil {
			if cbor.IsIncomplete(err) {
				if p.config.MaxMessageSize > 0 &&
					p.recvBuffer.Len() > p.config.MaxMessageSize {
					return fmt.Errorf(
						"%w: %s: pending message exceeds %d bytes",
						ErrProtocolViolationMessageTooLarge,
						p.config.Name,
						p.config.MaxMessageSize,
					)
				}
				// This is probably a multi-part message, so we wait until we get more of the message
				// before trying to process it
				return nil
			}
			return fmt.Errorf(
				"%w: %s: decode error: %w",
				ErrProtocolViolationInvalidMessage,
				p.config.Name,
				err,
			)
		}
		msgData := p.recvBuffer.Next(numBytesRead)
		if err := p.handleMessageData(msgData); err != nil {
			return err
		}
	}
	return nil
}

func (p *Protocol) handleMessageData(msgData []byte) error {
	msgType, err := cbor.DecodeIdFromList(msgData)
	if err != nil {
		return fmt.Errorf(
			"%w: %s: decode error: %w",
			ErrProtocolViolationInvalidMessage,
			p.config.Name,
			err,
		)
	}
	// #nosec G115
	msg, err := p.config.MessageFromCborFunc(uint(msgType), msgData)
	if err != nil {
		return fmt.Errorf(
			"%w: %s: decode error: %w",
			ErrProtocolViolationInvalidMessage,
			p.config.Name,
			err,
		)
	}
	if msg == nil {
		return fmt.Errorf(
			"%w: %s: received unknown message type: %d",
			ErrProtocolViolationInvalidMessage,
			p.config.Name,
			msgType,
		)
	}
	if err := p.handleStateTransition(msg); err != nil {
		return err
	}
	p.config.Logger.Debug(
		"received message",
		"component", "network",
		"protocol", p.config.Name,
		"role", "client",
		"connection_id", p.config.ConnectionId,
		"message_type", msg.Type(),
	)
	return p.config.MessageHandlerFunc(msg)
}

func (p *Protocol) handleStateTransition(msg Message) error {
	p.stateMutex.Lock()
	defer p.stateMutex.Unlock()
	entry, ok := p.config.StateMap[p.currentState]
	if !ok || entry.Agency != AgencyServer {
		return fmt.Errorf(
			"%w: %s: peer sent message type %d in state %s without agency",
			ErrAgencyViolation,
			p.config.Name,
			msg.Type(),
			p.currentState,
		)
	}
	newState, ok := p.config.StateMap.nextState(p.currentState, msg)
	if !ok {
		return fmt.Errorf(
			"%w: %s: message type %d not allowed in state %s",
			ErrProtocolViolationInvalidMessage,
			p.config.Name,
			msg.Type(),
			p.currentState,
		)
	}
	p.setState(newState)
	return nil
}

// sendError reports a fatal protocol error and shuts the protocol down
func (p *Protocol) sendError(err error) {
	if !p.shutdown(err) {
		return
	}
	p.config.Logger.Debug(
		"protocol error",
		"component", "network",
		"protocol", p.config.Name,
		"role", "client",
		"connection_id", p.config.ConnectionId,
		"error", err,
	)
	if p.config.ErrorChan == nil {
		return
	}
	select {
	case p.config.ErrorChan <- err:
	default:
		// The error is still available from Err()
		p.config.Logger.Warn(
			"error channel full, dropping protocol error notification",
			"component", "network",
			"protocol", p.config.Name,
			"connection_id", p.config.ConnectionId,
			"error", err,
		)
	}
}

// shutdown records the cause and closes the done channel. It returns false if the
// protocol had already shut down
func (p *Protocol) shutdown(cause error) bool {
	ret := false
	p.stopOnce.Do(func() {
		ret = true
		p.errMutex.Lock()
		p.err = cause
		p.errMutex.Unlock()
		p.stateMutex.Lock()
		if p.stateTimer != nil {
			p.stateTimer.Stop()
			p.stateTimer = nil
		}
		p.stateMutex.Unlock()
		close(p.doneChan)
	})
	return ret
}

func (p *Protocol) connectionClosedError() error {
	cause := p.config.Muxer.Err()
	if cause == nil || errors.Is(cause, ErrConnectionClosed) {
		return ErrConnectionClosed
	}
	return fmt.Errorf("%w: %w", ErrConnectionClosed, cause)
}
