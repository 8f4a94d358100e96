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

package common

import (
	"fmt"
	"io"
	"net"
	"sync"
	"testing"

	ouroboros "github.com/blinklabs-io/ouroboros-fetch"
	"github.com/blinklabs-io/ouroboros-fetch/internal/test/ouroboros_mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// refusedPort returns a local port with nothing listening on it
func refusedPort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())
	return port
}

// startMockPeer serves one TCP client with a mock peer that only answers the handshake
func startMockPeer(t *testing.T, networkMagic uint32) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var wg sync.WaitGroup
	t.Cleanup(func() {
		_ = listener.Close()
		wg.Wait()
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		mockConn := ouroboros_mock.NewConnection(
			[]ouroboros_mock.ConversationEntry{
				ouroboros_mock.NewConversationEntryHandshakeResponse(
					networkMagic,
					ouroboros_mock.MockProtocolVersionNtN,
				),
			},
		)
		copyDone := make(chan struct{})
		go func() {
			defer close(copyDone)
			_, _ = io.Copy(conn, mockConn)
			_ = conn.Close()
		}()
		_, _ = io.Copy(mockConn, conn)
		_ = mockConn.Close()
		<-copyDone
	}()
	return listener.Addr().(*net.TCPAddr).Port
}

func TestCreateClientConnectionFailover(t *testing.T) {
	// Registered first so it runs after the mock peer is gone
	t.Cleanup(func() { goleak.VerifyNone(t) })
	badPort := refusedPort(t)
	goodPort := startMockPeer(t, ouroboros_mock.MockNetworkMagic)
	f := &GlobalFlags{
		ResolvedNetwork: ouroboros.Network{
			Name:         "mock",
			NetworkMagic: ouroboros_mock.MockNetworkMagic,
		},
		Topology: writeFile(
			t,
			"topology.json",
			fmt.Sprintf(
				`{"localRoots": [{"accessPoints": [{"address": "127.0.0.1", "port": %d}, {"address": "127.0.0.1", "port": %d}]}]}`,
				badPort,
				goodPort,
			),
		),
	}
	errorChan := make(chan error, 10)
	conn, err := CreateClientConnection(f, ouroboros.WithErrorChan(errorChan))
	require.NoError(t, err)
	version, _ := conn.ProtocolVersion()
	assert.Equal(t, ouroboros_mock.MockProtocolVersionNtN, version)
	require.NotPanics(t, func() {
		assert.NoError(t, conn.Close())
	})
	select {
	case _, ok := <-errorChan:
		assert.True(t, ok, "error channel closed by the connection")
	default:
	}
}

func TestCreateClientConnectionAllFail(t *testing.T) {
	f := &GlobalFlags{
		Address: fmt.Sprintf("127.0.0.1:%d", refusedPort(t)),
		ResolvedNetwork: ouroboros.Network{
			Name:         "mock",
			NetworkMagic: ouroboros_mock.MockNetworkMagic,
		},
	}
	errorChan := make(chan error, 10)
	_, err := CreateClientConnection(f, ouroboros.WithErrorChan(errorChan))
	assert.ErrorContains(t, err, "connection refused")
}
