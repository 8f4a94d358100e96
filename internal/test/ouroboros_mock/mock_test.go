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
	"testing"
	"time"

	ouroboros "github.com/blinklabs-io/ouroboros-fetch"
	"github.com/blinklabs-io/ouroboros-fetch/protocol/chainsync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// Basic test of conversation mock functionality
func TestBasic(t *testing.T) {
	defer goleak.VerifyNone(t)
	mockConn := NewConnection(
		[]ConversationEntry{
			ConversationEntryHandshakeNtNResponse,
		},
	)
	oConn, err := ouroboros.NewConnection(
		ouroboros.WithConnection(mockConn),
		ouroboros.WithNetworkMagic(MockNetworkMagic),
	)
	require.NoError(t, err)
	version, _ := oConn.ProtocolVersion()
	assert.Equal(t, MockProtocolVersionNtN, version)
	select {
	case <-mockConn.DoneChan():
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for conversation to finish")
	}
	require.NoError(t, oConn.Close())
	require.NoError(t, mockConn.Close())
}

// The mock reports a client message that doesn't match the conversation
func TestUnexpectedInput(t *testing.T) {
	defer goleak.VerifyNone(t)
	mockConn := NewConnection(
		[]ConversationEntry{
			ConversationEntryHandshakeNtNResponse,
			NewConversationEntryInput(
				chainsync.ProtocolIdNtN,
				chainsync.MessageTypeRequestNext,
				nil,
			),
		},
	)
	oConn, err := ouroboros.NewConnection(
		ouroboros.WithConnection(mockConn),
		ouroboros.WithNetworkMagic(MockNetworkMagic),
	)
	require.NoError(t, err)
	resultChan := make(chan error, 1)
	go func() {
		_, err := oConn.CurrentTip()
		resultChan <- err
	}()
	select {
	case err := <-mockConn.ErrorChan():
		assert.ErrorContains(t, err, "expected 0, got 4")
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for conversation error")
	}
	require.NoError(t, oConn.Close())
	assert.Error(t, <-resultChan)
	require.NoError(t, mockConn.Close())
}
