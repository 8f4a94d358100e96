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

// Package ouroboros fetches blocks from Cardano nodes using the node-to-node
// Ouroboros network protocol.
//
// A Connection runs the version handshake over a multiplexed bearer and then drives
// the chain-sync and block-fetch mini-protocols on top of it. The mini-protocol
// packages can be used on their own, but this package is the main entry point.
package ouroboros

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/blinklabs-io/ouroboros-fetch/ledger"
	"github.com/blinklabs-io/ouroboros-fetch/muxer"
	"github.com/blinklabs-io/ouroboros-fetch/protocol"
	"github.com/blinklabs-io/ouroboros-fetch/protocol/blockfetch"
	"github.com/blinklabs-io/ouroboros-fetch/protocol/chainsync"
	"github.com/blinklabs-io/ouroboros-fetch/protocol/common"
	"github.com/blinklabs-io/ouroboros-fetch/protocol/handshake"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ErrBlockNotFound is returned by FetchBlock when the peer doesn't have a block at the
	// requested point. It also matches blockfetch.ErrNoBlocks
	ErrBlockNotFound = errors.New("block not found")
	// ErrTooManyRollbacks is returned by NextBlock when the peer keeps rolling back
	ErrTooManyRollbacks = errors.New("too many consecutive rollbacks")
	// ErrNotConnected is returned when using a Connection before a bearer was set up
	ErrNotConnected = errors.New("not connected")
	// ErrAlreadyConnected is returned by Dial when a bearer is already in use
	ErrAlreadyConnected = errors.New("a connection was already established")
	// ErrInvalidNetworkMagic is returned when no network magic was configured
	ErrInvalidNetworkMagic = errors.New("invalid network magic")
	// ErrNoAddress is returned by Connect for a network without a known public root
	ErrNoAddress = errors.New("network has no known address")
)

// The Connection type is a wrapper around a net.Conn object that handles communication
// using the Ouroboros network protocol over that connection
type Connection struct {
	conn                    net.Conn
	connectionId            string
	networkMagic            uint32
	logger                  *slog.Logger
	muxer                   *muxer.Muxer
	errorChan               chan error
	ownsErrorChan           bool
	protoErrorChan          chan error
	doneChan                chan struct{}
	waitGroup               sync.WaitGroup
	onceClose               sync.Once
	protocolVersions        []uint16
	handshakeTimeout        time.Duration
	dialTimeout             time.Duration
	promRegistry            prometheus.Registerer
	maxConsecutiveRollbacks int
	// Negotiated during the handshake
	handshakeVersion     uint16
	handshakeVersionData protocol.VersionData
	// Mini-protocols
	blockFetch       *blockfetch.Client
	blockFetchConfig *blockfetch.Config
	chainSync        *chainsync.Client
	chainSyncConfig  *chainsync.Config
	// Follow state for NextBlock
	nextMutex   sync.Mutex
	intersected bool
}

// NewConnection returns a new Connection object with the specified options. If a connection
// is provided, the handshake will be started. An error will be returned if the handshake fails
func NewConnection(options ...ConnectionOptionFunc) (*Connection, error) {
	c := &Connection{
		protoErrorChan: make(chan error, 10),
		doneChan:       make(chan struct{}),
	}
	// Apply provided options functions
	for _, option := range options {
		option(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.errorChan == nil {
		c.errorChan = make(chan error, 10)
		c.ownsErrorChan = true
	}
	if c.conn != nil {
		if err := c.setupConnection(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Connect resolves the public root address of the provided network, dials it and runs the
// handshake with the network's magic
func Connect(network Network, options ...ConnectionOptionFunc) (*Connection, error) {
	address := network.Address()
	if address == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoAddress, network)
	}
	options = append([]ConnectionOptionFunc{WithNetwork(network)}, options...)
	c, err := NewConnection(options...)
	if err != nil {
		return nil, err
	}
	if err := c.Dial("tcp", address); err != nil {
		return nil, err
	}
	return c, nil
}

// Dial will establish a connection using the specified protocol and address. These parameters
// are passed to the [net.Dial] func. The handshake will be started when a connection is
// established. An error will be returned if the connection fails, a connection was already
// established, or the handshake fails
func (c *Connection) Dial(proto string, address string) error {
	if c.conn != nil {
		return ErrAlreadyConnected
	}
	var conn net.Conn
	var err error
	if c.dialTimeout > 0 {
		conn, err = net.DialTimeout(proto, address, c.dialTimeout)
	} else {
		conn, err = net.Dial(proto, address)
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", address, err)
	}
	c.conn = conn
	return c.setupConnection()
}

// Muxer returns the muxer object for the Ouroboros connection
func (c *Connection) Muxer() *muxer.Muxer {
	return c.muxer
}

// ErrorChan returns the channel for asynchronous errors
func (c *Connection) ErrorChan() chan error {
	return c.errorChan
}

// ProtocolVersion returns the negotiated protocol version and the version data sent by the peer
func (c *Connection) ProtocolVersion() (uint16, protocol.VersionData) {
	return c.handshakeVersion, c.handshakeVersionData
}

// BlockFetch returns the block-fetch protocol client
func (c *Connection) BlockFetch() *blockfetch.Client {
	return c.blockFetch
}

// ChainSync returns the chain-sync protocol client
func (c *Connection) ChainSync() *chainsync.Client {
	return c.chainSync
}

// Close will shutdown the Ouroboros connection. Every blocked call on the connection returns
// an error matching protocol.ErrConnectionClosed
func (c *Connection) Close() error {
	var err error
	c.onceClose.Do(func() {
		c.logger.Debug(
			"closing connection",
			"component", "network",
			"connection_id", c.connectionId,
		)
		// Close doneChan to signify that we're shutting down
		close(c.doneChan)
		if c.muxer != nil {
			// Stopping the muxer closes the bearer and releases every mini-protocol
			c.muxer.Stop()
			for _, proto := range c.miniProtocols() {
				<-proto.DoneChan()
			}
			if c.chainSync != nil {
				c.chainSync.Stop()
			}
			if c.blockFetch != nil {
				c.blockFetch.Stop()
			}
		} else if c.conn != nil {
			err = c.conn.Close()
		}
		// Wait for other goroutines to finish
		c.waitGroup.Wait()
		// A channel from WithErrorChan may be shared with other connections
		if c.ownsErrorChan {
			close(c.errorChan)
		}
	})
	return err
}

func (c *Connection) miniProtocols() []*protocol.Protocol {
	ret := []*protocol.Protocol{}
	if c.chainSync != nil {
		ret = append(ret, c.chainSync.Protocol)
	}
	if c.blockFetch != nil {
		ret = append(ret, c.blockFetch.Protocol)
	}
	return ret
}

// setupConnection starts the muxer, runs the handshake and initializes the mini-protocols.
// The bearer is torn down if any step fails
func (c *Connection) setupConnection() error {
	if c.networkMagic == 0 {
		_ = c.conn.Close()
		return fmt.Errorf("%w: %d", ErrInvalidNetworkMagic, c.networkMagic)
	}
	c.connectionId = fmt.Sprintf("%s<->%s", c.conn.LocalAddr(), c.conn.RemoteAddr())
	muxerOpts := []muxer.MuxerOptionFunc{
		muxer.WithLogger(c.logger),
	}
	if c.promRegistry != nil {
		muxerOpts = append(muxerOpts, muxer.WithMetrics(muxer.NewMetrics(c.promRegistry)))
	}
	c.muxer = muxer.New(c.conn, muxerOpts...)
	protoOptions := protocol.ProtocolOptions{
		ConnectionId: c.connectionId,
		Muxer:        c.muxer,
		Logger:       c.logger,
		ErrorChan:    c.protoErrorChan,
	}
	// Perform handshake
	handshakeConfig := handshake.NewConfig(
		handshake.WithProtocolVersionMap(
			protocol.GetProtocolVersionMap(c.networkMagic, c.protocolVersions...),
		),
		handshake.WithNetworkMagic(c.networkMagic),
		handshake.WithTimeout(c.handshakeTimeout),
	)
	handshakeClient := handshake.NewClient(protoOptions, &handshakeConfig)
	// Segments the peer sends right after the handshake are queued until the clients start
	c.muxer.RegisterProtocol(chainsync.ProtocolIdNtN)
	c.muxer.RegisterProtocol(blockfetch.ProtocolId)
	c.muxer.Start()
	version, versionData, err := handshakeClient.Handshake()
	handshakeClient.Stop()
	if err != nil {
		c.muxer.Stop()
		return fmt.Errorf("handshake failed: %w", err)
	}
	c.handshakeVersion = version
	c.handshakeVersionData = versionData
	protoOptions.Version = version
	c.logger.Debug(
		"handshake complete",
		"component", "network",
		"connection_id", c.connectionId,
		"version", version,
	)
	// Configure the relevant mini-protocols
	c.chainSync = chainsync.NewClient(protoOptions, c.chainSyncConfig)
	c.blockFetch = blockfetch.NewClient(protoOptions, c.blockFetchConfig)
	c.chainSync.Start()
	c.blockFetch.Start()
	// Start Goroutine to pass along errors from the muxer and mini-protocols
	c.waitGroup.Add(1)
	go c.errorLoop()
	return nil
}

func (c *Connection) errorLoop() {
	defer c.waitGroup.Done()
	var err error
	select {
	case <-c.doneChan:
		return
	case muxerErr := <-c.muxer.ErrorChan():
		if errors.Is(muxerErr, io.EOF) || errors.Is(muxerErr, io.ErrUnexpectedEOF) {
			// Return a bare io.EOF error if error is EOF/ErrUnexpectedEOF
			err = io.EOF
		} else {
			// Wrap error message to denote it comes from the muxer
			err = fmt.Errorf("muxer error: %w", muxerErr)
		}
	case protoErr := <-c.protoErrorChan:
		err = fmt.Errorf("protocol error: %w", protoErr)
		// Close connection on mini-protocol errors
		c.muxer.Stop()
	}
	select {
	case c.errorChan <- err:
	case <-c.doneChan:
	}
}

// FetchBlock fetches the block at the provided point. The block is returned exactly as the
// peer sent it, which is the block type followed by the block. A point the peer doesn't have
// returns an error matching ErrBlockNotFound, and the connection stays usable
func (c *Connection) FetchBlock(point common.Point) ([]byte, error) {
	if c.blockFetch == nil {
		return nil, ErrNotConnected
	}
	block, err := c.blockFetch.GetBlock(point)
	if err != nil {
		if errors.Is(err, blockfetch.ErrNoBlocks) {
			return nil, fmt.Errorf("%w: %s: %w", ErrBlockNotFound, point, err)
		}
		return nil, err
	}
	return block, nil
}

// CurrentTip returns the tip of the peer's chain
func (c *Connection) CurrentTip() (common.Tip, error) {
	if c.chainSync == nil {
		return common.Tip{}, ErrNotConnected
	}
	return c.chainSync.GetCurrentTip()
}

// Intersect sets the position NextBlock follows the chain from. The most recent of the
// provided points that the peer knows about is returned
func (c *Connection) Intersect(points []common.Point) (common.Point, error) {
	if c.chainSync == nil {
		return common.Point{}, ErrNotConnected
	}
	c.nextMutex.Lock()
	defer c.nextMutex.Unlock()
	point, _, err := c.chainSync.FindIntersect(points)
	if err != nil {
		return common.Point{}, err
	}
	c.intersected = true
	return point, nil
}

// NextBlock returns the next block on the peer's chain. Without a previous call to Intersect
// it starts at the peer's current tip and blocks until a new block is produced. Rollbacks are
// logged and followed. The only way to cancel a blocked call is to close the connection
func (c *Connection) NextBlock() ([]byte, error) {
	if c.chainSync == nil {
		return nil, ErrNotConnected
	}
	c.nextMutex.Lock()
	defer c.nextMutex.Unlock()
	if !c.intersected {
		point, err := c.chainSync.IntersectTip()
		if err != nil {
			return nil, err
		}
		c.logger.Debug(
			"intersected at tip",
			"component", "network",
			"connection_id", c.connectionId,
			"point", point.String(),
		)
		c.intersected = true
	}
	rollbacks := 0
	for {
		resp, err := c.chainSync.RequestNext()
		if err != nil {
			return nil, err
		}
		if resp.Action == chainsync.ActionAwait {
			c.logger.Info(
				"waiting for next block",
				"component", "network",
				"connection_id", c.connectionId,
			)
			resp, err = c.chainSync.AwaitNext()
			if err != nil {
				return nil, err
			}
		}
		switch resp.Action {
		case chainsync.ActionRollBackward:
			rollbacks++
			c.logger.Warn(
				"chain rolled back",
				"component", "network",
				"connection_id", c.connectionId,
				"point", resp.Point.String(),
				"tip", resp.Tip.String(),
			)
			if c.maxConsecutiveRollbacks > 0 && rollbacks > c.maxConsecutiveRollbacks {
				return nil, fmt.Errorf("%w: %d", ErrTooManyRollbacks, rollbacks)
			}
		case chainsync.ActionRollForward:
			point, err := ledger.PointFromWrappedHeader(
				resp.Header.Era,
				resp.Header.ByronType,
				resp.Header.HeaderCbor,
			)
			if err != nil {
				return nil, fmt.Errorf("decode header: %w", err)
			}
			return c.FetchBlock(point)
		default:
			return nil, fmt.Errorf("unexpected chain-sync response: %s", resp.Action)
		}
	}
}
