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

package ouroboros

import (
	"log/slog"
	"net"
	"time"

	"github.com/blinklabs-io/ouroboros-fetch/protocol/blockfetch"
	"github.com/blinklabs-io/ouroboros-fetch/protocol/chainsync"
	"github.com/prometheus/client_golang/prometheus"
)

// ConnectionOptionFunc is a type that represents functions that modify the Connection config
type ConnectionOptionFunc func(*Connection)

// WithConnection specifies an existing connection to use. If none is provided, the Dial() function can be
// used to create one later
func WithConnection(conn net.Conn) ConnectionOptionFunc {
	return func(c *Connection) {
		c.conn = conn
	}
}

// WithNetwork specifies the network
func WithNetwork(network Network) ConnectionOptionFunc {
	return func(c *Connection) {
		c.networkMagic = network.NetworkMagic
	}
}

// WithNetworkMagic specifies the network magic value
func WithNetworkMagic(networkMagic uint32) ConnectionOptionFunc {
	return func(c *Connection) {
		c.networkMagic = networkMagic
	}
}

// WithLogger specifies the logger to use. The default is slog.Default()
func WithLogger(logger *slog.Logger) ConnectionOptionFunc {
	return func(c *Connection) {
		c.logger = logger
	}
}

// WithErrorChan specifies the error channel to use. If none is provided, one will be created
// and closed by Close. A provided channel is never closed, so it can be shared by several
// connections
func WithErrorChan(errorChan chan error) ConnectionOptionFunc {
	return func(c *Connection) {
		c.errorChan = errorChan
	}
}

// WithProtocolVersions limits the versions proposed during the handshake. The default is every
// supported node-to-node version
func WithProtocolVersions(versions ...uint16) ConnectionOptionFunc {
	return func(c *Connection) {
		c.protocolVersions = versions
	}
}

// WithHandshakeTimeout specifies how long to wait for the peer's handshake answer. The default
// of zero waits forever
func WithHandshakeTimeout(timeout time.Duration) ConnectionOptionFunc {
	return func(c *Connection) {
		c.handshakeTimeout = timeout
	}
}

// WithDialTimeout specifies the timeout used by Dial()
func WithDialTimeout(timeout time.Duration) ConnectionOptionFunc {
	return func(c *Connection) {
		c.dialTimeout = timeout
	}
}

// WithPrometheusRegistry enables muxer metrics on the provided registry
func WithPrometheusRegistry(registry prometheus.Registerer) ConnectionOptionFunc {
	return func(c *Connection) {
		c.promRegistry = registry
	}
}

// WithMaxConsecutiveRollbacks makes NextBlock give up with ErrTooManyRollbacks after the peer rolls
// back more than the provided number of times in a row. Zero, the default, never gives up
func WithMaxConsecutiveRollbacks(count int) ConnectionOptionFunc {
	return func(c *Connection) {
		c.maxConsecutiveRollbacks = count
	}
}

// WithBlockFetchConfig specifies BlockFetch protocol config
func WithBlockFetchConfig(cfg blockfetch.Config) ConnectionOptionFunc {
	return func(c *Connection) {
		c.blockFetchConfig = &cfg
	}
}

// WithChainSyncConfig specifies ChainSync protocol config
func WithChainSyncConfig(cfg chainsync.Config) ConnectionOptionFunc {
	return func(c *Connection) {
		c.chainSyncConfig = &cfg
	}
}
