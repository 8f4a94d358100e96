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

import "errors"

var ErrProtocolShuttingDown = errors.New("protocol is shutting down")

var ErrProtocolNotStarted = errors.New("protocol has not been started")

// ErrConnectionClosed is returned to every blocked or later caller once the underlying
// connection has gone away. The error that caused the shutdown is wrapped along with it
var ErrConnectionClosed = errors.New("connection closed")

// ErrAgencyViolation is returned when a message is sent or received by the side that does
// not hold agency, or the message is not valid in the current state
var ErrAgencyViolation = errors.New("protocol agency violation")

// ErrProtocolTimeout is returned when the peer doesn't reply within a state's timeout
var ErrProtocolTimeout = errors.New("protocol timeout")

// Protocol violation errors cause connection termination
var (
	ErrProtocolViolationInvalidMessage = errors.New(
		"protocol violation: invalid message received",
	)
	ErrProtocolViolationMessageTooLarge = errors.New(
		"protocol violation: message size limit exceeded",
	)
)
