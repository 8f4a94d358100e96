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
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/blinklabs-io/ouroboros-fetch/cbor"
	"github.com/blinklabs-io/ouroboros-fetch/ledger"
	ocommon "github.com/blinklabs-io/ouroboros-fetch/protocol/common"
)

var ErrInvalidHash = errors.New("block hash invalid hex")

// parsePoint builds the point to fetch. It runs before we touch the network
func parsePoint(slot uint64, hash string) (ocommon.Point, error) {
	if hash == "" {
		return ocommon.Point{}, errors.New("a block hash is required")
	}
	blockHash, err := hex.DecodeString(hash)
	if err != nil {
		return ocommon.Point{}, fmt.Errorf("%w: %w", ErrInvalidHash, err)
	}
	return ocommon.NewPoint(slot, blockHash), nil
}

// selectPayload returns the whole block, or only its transaction at txAt when that's not negative
func selectPayload(blockData []byte, txAt int) ([]byte, error) {
	if txAt < 0 {
		return blockData, nil
	}
	block, err := ledger.NewBlockFromWrappedCbor(blockData)
	if err != nil {
		return nil, fmt.Errorf("unable to decode block: %w", err)
	}
	return block.Transaction(txAt)
}

func formatOutput(data []byte, diag bool) (string, error) {
	if !diag {
		return hex.EncodeToString(data), nil
	}
	ret, err := cbor.Diagnose(data)
	if err != nil {
		return "", fmt.Errorf("unable to parse CBOR: %w", err)
	}
	return ret, nil
}
