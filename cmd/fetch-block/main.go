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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ouroboros "github.com/blinklabs-io/ouroboros-fetch"
	"github.com/blinklabs-io/ouroboros-fetch/cmd/common"
	ocommon "github.com/blinklabs-io/ouroboros-fetch/protocol/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type fetchBlockFlags struct {
	*common.GlobalFlags
	slot          uint64
	hash          string
	txAt          int
	diag          bool
	tip           bool
	follow        bool
	metricsListen string
}

func main() {
	// Parse commandline
	f := fetchBlockFlags{
		GlobalFlags: common.NewGlobalFlags(),
	}
	f.Flagset.Uint64Var(&f.slot, "slot", 0, "slot for single block to fetch")
	f.Flagset.StringVar(&f.hash, "hash", "", "hash for single block to fetch")
	f.Flagset.IntVar(&f.txAt, "tx-at", -1, "only output the transaction at this index in the block")
	f.Flagset.BoolVar(&f.diag, "diag", false, "output CBOR diagnostic notation instead of hex")
	f.Flagset.BoolVar(&f.tip, "tip", false, "output the peer's current tip and exit")
	f.Flagset.BoolVar(&f.follow, "follow", false, "output each new block as the chain grows")
	f.Flagset.StringVar(
		&f.metricsListen,
		"metrics-listen",
		"",
		"address to serve prometheus metrics on while following, for example :9090",
	)
	f.Parse()
	if err := run(f); err != nil {
		if errors.Is(err, ouroboros.ErrBlockNotFound) {
			fmt.Fprintln(os.Stderr, "Block not found for supplied point")
		} else {
			fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		}
		os.Exit(1)
	}
}

func run(f fetchBlockFlags) error {
	var point ocommon.Point
	if !f.tip && !f.follow {
		// Bad input is reported before any network activity
		p, err := parsePoint(f.slot, f.hash)
		if err != nil {
			return err
		}
		point = p
	}
	var opts []ouroboros.ConnectionOptionFunc
	var registry *prometheus.Registry
	if f.follow && f.metricsListen != "" {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		opts = append(opts, ouroboros.WithPrometheusRegistry(registry))
	}
	errorChan := make(chan error, 10)
	opts = append(opts, ouroboros.WithErrorChan(errorChan))
	conn, err := common.CreateClientConnection(f.GlobalFlags, opts...)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()
	// The connection never closes a channel it was given
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case err := <-errorChan:
				slog.Error(
					"connection error",
					"error", err,
				)
			}
		}
	}()
	switch {
	case f.tip:
		tip, err := conn.CurrentTip()
		if err != nil {
			return fmt.Errorf("failed to get tip: %w", err)
		}
		fmt.Printf(
			"slot = %d, hash = %x, block_no = %d\n",
			tip.Point.Slot,
			tip.Point.Hash,
			tip.BlockNumber,
		)
		return nil
	case f.follow:
		return follow(f, conn, registry)
	}
	blockData, err := conn.FetchBlock(point)
	if err != nil {
		if errors.Is(err, ouroboros.ErrBlockNotFound) {
			return err
		}
		return fmt.Errorf("unexpected error while fetching block: %w", err)
	}
	return printPayload(blockData, f.txAt, f.diag)
}

func printPayload(blockData []byte, txAt int, diag bool) error {
	payload, err := selectPayload(blockData, txAt)
	if err != nil {
		return err
	}
	out, err := formatOutput(payload, diag)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

func follow(
	f fetchBlockFlags,
	conn *ouroboros.Connection,
	registry *prometheus.Registry,
) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if registry != nil {
		server := &http.Server{
			Addr:              f.metricsListen,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error(
					"metrics server failed",
					"address", f.metricsListen,
					"error", err,
				)
			}
		}()
		defer func() {
			_ = server.Close()
		}()
	}
	go func() {
		// Closing the connection is the only way to interrupt NextBlock
		<-ctx.Done()
		_ = conn.Close()
	}()
	for {
		blockData, err := conn.NextBlock()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to get next block: %w", err)
		}
		if err := printPayload(blockData, f.txAt, f.diag); err != nil {
			return err
		}
	}
}
