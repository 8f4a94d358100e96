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

package ledger

import (
	"errors"
	"fmt"

	"github.com/blinklabs-io/ouroboros-fetch/cbor"
	"github.com/blinklabs-io/ouroboros-fetch/protocol/common"
)

// Block is a decoded block. Transactions are kept as CBOR and only re-assembled when asked for
type Block struct {
	blockType uint
	era       Era
	header    BlockHeader
	txs       []blockTx
	cbor      []byte
}

// blockTx holds the pieces of one transaction. Before Alonzo there's no validity flag, and
// Byron transactions are stored whole in raw
type blockTx struct {
	raw      cbor.RawMessage
	body     cbor.RawMessage
	witness  cbor.RawMessage
	auxData  cbor.RawMessage
	isValid  bool
	hasValid bool
}

type wrappedBlock struct {
	cbor.StructAsArray
	Type     uint
	RawBlock cbor.RawMessage
}

// NewBlockFromWrappedCbor decodes a block as returned by block-fetch, which is the block
// type followed by the block itself
func NewBlockFromWrappedCbor(data []byte) (*Block, error) {
	var tmp wrappedBlock
	if _, err := cbor.Decode(data, &tmp); err != nil {
		return nil, fmt.Errorf("%w: decode wrapper: %w", ErrMalformedBlock, err)
	}
	block, err := NewBlockFromCbor(tmp.Type, tmp.RawBlock)
	if err != nil {
		return nil, err
	}
	block.cbor = data
	return block, nil
}

// NewBlockFromCbor decodes a block of the provided type
func NewBlockFromCbor(blockType uint, data []byte) (*Block, error) {
	era, err := BlockTypeToEra(blockType)
	if err != nil {
		return nil, err
	}
	var fields []cbor.RawMessage
	if _, err := cbor.Decode(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedBlock, era, err)
	}
	if len(fields) < 3 {
		return nil, fmt.Errorf(
			"%w: %s: block has %d fields",
			ErrMalformedBlock,
			era,
			len(fields),
		)
	}
	header, err := NewBlockHeaderFromCbor(blockType, fields[0])
	if err != nil {
		return nil, err
	}
	b := &Block{
		blockType: blockType,
		era:       era,
		header:    header,
		cbor:      data,
	}
	switch blockType {
	case BlockTypeByronEbb:
		// Epoch boundary blocks carry no transactions
	case BlockTypeByronMain:
		err = b.decodeByronTxs(fields[1])
	case BlockTypeShelley, BlockTypeAllegra, BlockTypeMary:
		err = b.decodeShelleyTxs(fields, false)
	default:
		err = b.decodeShelleyTxs(fields, true)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedBlock, era, err)
	}
	return b, nil
}

func (b *Block) decodeByronTxs(body cbor.RawMessage) error {
	// [tx_payload, ssc_payload, dlg_payload, upd_payload]
	var bodyFields []cbor.RawMessage
	if _, err := cbor.Decode(body, &bodyFields); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	if len(bodyFields) == 0 {
		return errors.New("empty block body")
	}
	var txPayload []cbor.RawMessage
	if _, err := cbor.Decode(bodyFields[0], &txPayload); err != nil {
		return fmt.Errorf("decode tx payload: %w", err)
	}
	for _, tx := range txPayload {
		b.txs = append(b.txs, blockTx{raw: tx})
	}
	return nil
}

func (b *Block) decodeShelleyTxs(fields []cbor.RawMessage, hasInvalidTxs bool) error {
	// [header, tx_bodies, witness_sets, aux_data, invalid_txs (Alonzo onward)]
	expectedFields := 4
	if hasInvalidTxs {
		expectedFields = 5
	}
	if len(fields) != expectedFields {
		return fmt.Errorf(
			"block has %d fields, expected %d",
			len(fields),
			expectedFields,
		)
	}
	var txBodies, witnessSets []cbor.RawMessage
	if _, err := cbor.Decode(fields[1], &txBodies); err != nil {
		return fmt.Errorf("decode transaction bodies: %w", err)
	}
	if _, err := cbor.Decode(fields[2], &witnessSets); err != nil {
		return fmt.Errorf("decode witness sets: %w", err)
	}
	if len(txBodies) != len(witnessSets) {
		return fmt.Errorf(
			"%d transaction bodies but %d witness sets",
			len(txBodies),
			len(witnessSets),
		)
	}
	auxData := map[uint]cbor.RawMessage{}
	if _, err := cbor.Decode(fields[3], &auxData); err != nil {
		return fmt.Errorf("decode auxiliary data: %w", err)
	}
	invalidTxs := map[uint]bool{}
	if hasInvalidTxs {
		var invalidIdxs []uint
		if _, err := cbor.Decode(fields[4], &invalidIdxs); err != nil {
			return fmt.Errorf("decode invalid transactions: %w", err)
		}
		for _, idx := range invalidIdxs {
			invalidTxs[idx] = true
		}
	}
	for idx := range txBodies {
		// #nosec G115
		txIdx := uint(idx)
		b.txs = append(
			b.txs,
			blockTx{
				body:     txBodies[idx],
				witness:  witnessSets[idx],
				auxData:  auxData[txIdx],
				isValid:  !invalidTxs[txIdx],
				hasValid: hasInvalidTxs,
			},
		)
	}
	return nil
}

func (b *Block) Type() uint {
	return b.blockType
}

func (b *Block) Era() Era {
	return b.era
}

func (b *Block) Header() BlockHeader {
	return b.header
}

func (b *Block) Hash() Blake2b256 {
	return b.header.Hash()
}

func (b *Block) SlotNumber() uint64 {
	return b.header.SlotNumber()
}

func (b *Block) BlockNumber() uint64 {
	return b.header.BlockNumber()
}

// Point returns the chain point for the block
func (b *Block) Point() common.Point {
	return common.NewPoint(b.header.SlotNumber(), b.header.Hash().Bytes())
}

// Cbor returns the CBOR the block was decoded from
func (b *Block) Cbor() []byte {
	return b.cbor
}

func (b *Block) TxCount() int {
	return len(b.txs)
}

// Transaction returns the CBOR for the transaction at the provided index. From Shelley on
// the transaction is re-assembled from the separate body, witness and auxiliary data
// sections of the block with the original bytes of each part
func (b *Block) Transaction(index int) ([]byte, error) {
	if index < 0 || index >= len(b.txs) {
		return nil, &TxIndexOutOfRangeError{
			Index: index,
			Count: len(b.txs),
		}
	}
	tx := b.txs[index]
	if tx.raw != nil {
		return tx.raw, nil
	}
	var auxData any
	if tx.auxData != nil {
		auxData = tx.auxData
	}
	if tx.hasValid {
		// [body, witness_set, is_valid, aux_data / null]
		return cbor.Encode([]any{tx.body, tx.witness, tx.isValid, auxData})
	}
	// [body, witness_set, aux_data / null]
	return cbor.Encode([]any{tx.body, tx.witness, auxData})
}
