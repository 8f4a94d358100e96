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

// Package testdata provides shared test block data for tests.
package testdata

import (
	_ "embed"
	"encoding/hex"
	"strings"

	"github.com/blinklabs-io/ouroboros-fetch/cbor"
	"github.com/blinklabs-io/ouroboros-fetch/ledger"
)

// Byron block from mainnet
// https://cexplorer.io/block/1451a0dbf16cfeddf4991a838961df1b08a68f43a19c0eb3b36cc4029c77a2d8
// Slot: 4471207
// Hash: 1451a0dbf16cfeddf4991a838961df1b08a68f43a19c0eb3b36cc4029c77a2d8
//
//go:embed byron_block.hex
var ByronBlockHex string

// Synthetic Mary block with a single transaction and no auxiliary data
//
//go:embed mary_block.hex
var MaryBlockHex string

// Synthetic Babbage block with 3 transactions. The second one has auxiliary data and the
// third one is flagged as invalid
//
//go:embed babbage_block.hex
var BabbageBlockHex string

// TestBlock contains block data for testing.
type TestBlock struct {
	Name        string
	BlockType   uint
	Cbor        []byte
	Hash        string
	Slot        uint64
	BlockNumber uint64
	TxCount     int
}

var (
	ByronBlock = TestBlock{
		Name:        "Byron",
		BlockType:   ledger.BlockTypeByronMain,
		Cbor:        MustDecodeHex(ByronBlockHex),
		Hash:        "1451a0dbf16cfeddf4991a838961df1b08a68f43a19c0eb3b36cc4029c77a2d8",
		Slot:        4471207,
		BlockNumber: 4468973,
		TxCount:     2,
	}
	MaryBlock = TestBlock{
		Name:        "Mary",
		BlockType:   ledger.BlockTypeMary,
		Cbor:        MustDecodeHex(MaryBlockHex),
		Hash:        "87a15720c120ba018ecf7d036c4897e1693773b026103551bb55abe021e1a9bb",
		Slot:        4492800,
		BlockNumber: 4490511,
		TxCount:     1,
	}
	BabbageBlock = TestBlock{
		Name:        "Babbage",
		BlockType:   ledger.BlockTypeBabbage,
		Cbor:        MustDecodeHex(BabbageBlockHex),
		Hash:        "f5a784bd462716a49dfbfff603f10b9ac37087a8875a271e79448aa398095e8a",
		Slot:        98765432,
		BlockNumber: 1234,
		TxCount:     3,
	}
)

// GetTestBlocks returns a slice of test blocks for various eras.
func GetTestBlocks() []TestBlock {
	return []TestBlock{
		ByronBlock,
		MaryBlock,
		BabbageBlock,
	}
}

// WrappedCbor returns the block as block-fetch delivers it, which is the block type
// followed by the block
func (b TestBlock) WrappedCbor() []byte {
	data, err := cbor.Encode([]any{b.BlockType, cbor.RawMessage(b.Cbor)})
	if err != nil {
		panic(err)
	}
	return data
}

// HeaderCbor returns the raw header from the block
func (b TestBlock) HeaderCbor() []byte {
	var fields []cbor.RawMessage
	if _, err := cbor.Decode(b.Cbor, &fields); err != nil {
		panic(err)
	}
	return fields[0]
}

// HeaderEra returns the era used for the header in a chain-sync RollForward
func (b TestBlock) HeaderEra() uint {
	if b.BlockType <= ledger.BlockTypeByronMain {
		return 0
	}
	return b.BlockType - 1
}

// MustDecodeHex decodes a hex string to bytes, panicking on error.
func MustDecodeHex(s string) []byte {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		panic(err)
	}
	return b
}
