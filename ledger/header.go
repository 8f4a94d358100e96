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
	"fmt"

	"github.com/blinklabs-io/ouroboros-fetch/cbor"
	"github.com/blinklabs-io/ouroboros-fetch/protocol/common"
)

const ByronSlotsPerEpoch = 21600

type BlockHeader interface {
	Hash() Blake2b256
	BlockNumber() uint64
	SlotNumber() uint64
	Era() Era
	Cbor() []byte
}

// NewBlockHeaderFromCbor decodes a block header for the provided block type
func NewBlockHeaderFromCbor(blockType uint, data []byte) (BlockHeader, error) {
	switch blockType {
	case BlockTypeByronEbb:
		return NewByronEpochBoundaryBlockHeaderFromCbor(data)
	case BlockTypeByronMain:
		return NewByronMainBlockHeaderFromCbor(data)
	case BlockTypeShelley, BlockTypeAllegra, BlockTypeMary, BlockTypeAlonzo,
		BlockTypeBabbage, BlockTypeConway:
		return NewShelleyBlockHeaderFromCbor(blockType, data)
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownBlockType, blockType)
}

// PointFromWrappedHeader returns the chain point for a header as delivered by chain-sync
func PointFromWrappedHeader(
	headerEra uint,
	byronType uint,
	headerCbor []byte,
) (common.Point, error) {
	blockType, err := BlockTypeFromHeaderEra(headerEra, byronType)
	if err != nil {
		return common.Point{}, err
	}
	header, err := NewBlockHeaderFromCbor(blockType, headerCbor)
	if err != nil {
		return common.Point{}, err
	}
	return common.NewPoint(header.SlotNumber(), header.Hash().Bytes()), nil
}

type byronDifficulty struct {
	cbor.StructAsArray
	Value uint64
}

type ByronMainBlockHeader struct {
	cbor.StructAsArray
	cbor.DecodeStoreCbor
	hash          *Blake2b256
	ProtocolMagic uint32
	PrevBlock     Blake2b256
	BodyProof     cbor.RawMessage
	ConsensusData struct {
		cbor.StructAsArray
		// [slotid, pubkey, difficulty, blocksig]
		SlotId struct {
			cbor.StructAsArray
			Epoch uint64
			Slot  uint64
		}
		PubKey     []byte
		Difficulty byronDifficulty
		BlockSig   cbor.RawMessage
	}
	ExtraData cbor.RawMessage
}

func NewByronMainBlockHeaderFromCbor(data []byte) (*ByronMainBlockHeader, error) {
	var byronMainBlockHeader ByronMainBlockHeader
	if _, err := cbor.Decode(data, &byronMainBlockHeader); err != nil {
		return nil, fmt.Errorf("%w: Byron main: %w", ErrMalformedHeader, err)
	}
	return &byronMainBlockHeader, nil
}

func (h *ByronMainBlockHeader) UnmarshalCBOR(cborData []byte) error {
	// Decode generically and store original CBOR
	return h.UnmarshalCborGeneric(cborData, h)
}

func (h *ByronMainBlockHeader) Hash() Blake2b256 {
	if h.hash == nil {
		// The hash covers the header wrapped in a [type, header] list
		tmpHash := Blake2b256Hash(
			[]byte{0x82, BlockTypeByronMain},
			h.Cbor(),
		)
		h.hash = &tmpHash
	}
	return *h.hash
}

// BlockNumber returns the chain difficulty, which Byron uses as the block number
func (h *ByronMainBlockHeader) BlockNumber() uint64 {
	return h.ConsensusData.Difficulty.Value
}

func (h *ByronMainBlockHeader) SlotNumber() uint64 {
	return (h.ConsensusData.SlotId.Epoch * ByronSlotsPerEpoch) + h.ConsensusData.SlotId.Slot
}

func (h *ByronMainBlockHeader) Era() Era {
	return EraByron
}

type ByronEpochBoundaryBlockHeader struct {
	cbor.StructAsArray
	cbor.DecodeStoreCbor
	hash          *Blake2b256
	ProtocolMagic uint32
	PrevBlock     Blake2b256
	BodyProof     cbor.RawMessage
	ConsensusData struct {
		cbor.StructAsArray
		Epoch      uint64
		Difficulty byronDifficulty
	}
	ExtraData cbor.RawMessage
}

func NewByronEpochBoundaryBlockHeaderFromCbor(
	data []byte,
) (*ByronEpochBoundaryBlockHeader, error) {
	var ebbHeader ByronEpochBoundaryBlockHeader
	if _, err := cbor.Decode(data, &ebbHeader); err != nil {
		return nil, fmt.Errorf("%w: Byron EBB: %w", ErrMalformedHeader, err)
	}
	return &ebbHeader, nil
}

func (h *ByronEpochBoundaryBlockHeader) UnmarshalCBOR(cborData []byte) error {
	// Decode generically and store original CBOR
	return h.UnmarshalCborGeneric(cborData, h)
}

func (h *ByronEpochBoundaryBlockHeader) Hash() Blake2b256 {
	if h.hash == nil {
		tmpHash := Blake2b256Hash(
			[]byte{0x82, BlockTypeByronEbb},
			h.Cbor(),
		)
		h.hash = &tmpHash
	}
	return *h.hash
}

func (h *ByronEpochBoundaryBlockHeader) BlockNumber() uint64 {
	return h.ConsensusData.Difficulty.Value
}

// SlotNumber returns the first slot of the epoch. The EBB shares it with the first main
// block of the epoch
func (h *ByronEpochBoundaryBlockHeader) SlotNumber() uint64 {
	return h.ConsensusData.Epoch * ByronSlotsPerEpoch
}

func (h *ByronEpochBoundaryBlockHeader) Era() Era {
	return EraByron
}

// ShelleyBlockHeader covers every era from Shelley onward. The header body layout changed
// in Babbage, but the fields we care about didn't move
type ShelleyBlockHeader struct {
	cbor.StructAsArray
	cbor.DecodeStoreCbor
	hash      *Blake2b256
	era       Era
	Body      ShelleyBlockHeaderBody
	Signature []byte
}

func NewShelleyBlockHeaderFromCbor(blockType uint, data []byte) (*ShelleyBlockHeader, error) {
	era, err := BlockTypeToEra(blockType)
	if err != nil {
		return nil, err
	}
	var shelleyHeader ShelleyBlockHeader
	if _, err := cbor.Decode(data, &shelleyHeader); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedHeader, era, err)
	}
	shelleyHeader.era = era
	return &shelleyHeader, nil
}

func (h *ShelleyBlockHeader) UnmarshalCBOR(cborData []byte) error {
	return h.UnmarshalCborGeneric(cborData, h)
}

func (h *ShelleyBlockHeader) Hash() Blake2b256 {
	if h.hash == nil {
		tmpHash := Blake2b256Hash(h.Cbor())
		h.hash = &tmpHash
	}
	return *h.hash
}

func (h *ShelleyBlockHeader) PrevHash() []byte {
	return h.Body.PrevHash
}

func (h *ShelleyBlockHeader) BlockNumber() uint64 {
	return h.Body.BlockNumber
}

func (h *ShelleyBlockHeader) SlotNumber() uint64 {
	return h.Body.Slot
}

func (h *ShelleyBlockHeader) BlockBodySize() uint64 {
	return h.Body.BlockBodySize
}

func (h *ShelleyBlockHeader) Era() Era {
	return h.era
}

// Header body lengths before and after Babbage
const (
	shelleyHeaderBodyLength = 15
	babbageHeaderBodyLength = 10
)

type ShelleyBlockHeaderBody struct {
	BlockNumber       uint64
	Slot              uint64
	PrevHash          []byte
	IssuerVkey        []byte
	BlockBodySize     uint64
	BlockBodyHash     []byte
	ProtoMajorVersion uint64
	ProtoMinorVersion uint64
}

func (b *ShelleyBlockHeaderBody) UnmarshalCBOR(cborData []byte) error {
	var fields []cbor.RawMessage
	if _, err := cbor.Decode(cborData, &fields); err != nil {
		return err
	}
	var bodySizeIdx int
	var protoVersion []cbor.RawMessage
	switch len(fields) {
	case shelleyHeaderBodyLength:
		// [block_number, slot, prev_hash, issuer_vkey, vrf_vkey, nonce_vrf, leader_vrf,
		//  body_size, body_hash, opcert(4 fields), proto_major, proto_minor]
		bodySizeIdx = 7
		protoVersion = fields[13:15]
	case babbageHeaderBodyLength:
		// [block_number, slot, prev_hash, issuer_vkey, vrf_vkey, vrf_result,
		//  body_size, body_hash, opcert, [proto_major, proto_minor]]
		bodySizeIdx = 6
		if _, err := cbor.Decode(fields[9], &protoVersion); err != nil {
			return fmt.Errorf("decode protocol version: %w", err)
		}
		if len(protoVersion) != 2 {
			return fmt.Errorf(
				"protocol version has %d fields, expected 2",
				len(protoVersion),
			)
		}
	default:
		return fmt.Errorf("unexpected header body length %d", len(fields))
	}
	targets := []struct {
		raw  cbor.RawMessage
		dest any
	}{
		{fields[0], &b.BlockNumber},
		{fields[1], &b.Slot},
		{fields[2], &b.PrevHash},
		{fields[3], &b.IssuerVkey},
		{fields[bodySizeIdx], &b.BlockBodySize},
		{fields[bodySizeIdx+1], &b.BlockBodyHash},
		{protoVersion[0], &b.ProtoMajorVersion},
		{protoVersion[1], &b.ProtoMinorVersion},
	}
	for idx, target := range targets {
		if _, err := cbor.Decode(target.raw, target.dest); err != nil {
			return fmt.Errorf("decode header body field %d: %w", idx, err)
		}
	}
	return nil
}
