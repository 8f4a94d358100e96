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

// Package ledger decodes just enough of Cardano blocks and block headers to locate
// them on the chain and pull out individual transactions
package ledger

import "fmt"

type Era struct {
	Id   uint8
	Name string
}

func (e Era) String() string {
	return e.Name
}

const (
	EraIdByron   uint8 = 0
	EraIdShelley uint8 = 1
	EraIdAllegra uint8 = 2
	EraIdMary    uint8 = 3
	EraIdAlonzo  uint8 = 4
	EraIdBabbage uint8 = 5
	EraIdConway  uint8 = 6
)

var (
	EraByron   = Era{Id: EraIdByron, Name: "Byron"}
	EraShelley = Era{Id: EraIdShelley, Name: "Shelley"}
	EraAllegra = Era{Id: EraIdAllegra, Name: "Allegra"}
	EraMary    = Era{Id: EraIdMary, Name: "Mary"}
	EraAlonzo  = Era{Id: EraIdAlonzo, Name: "Alonzo"}
	EraBabbage = Era{Id: EraIdBabbage, Name: "Babbage"}
	EraConway  = Era{Id: EraIdConway, Name: "Conway"}
)

var eras = map[uint8]Era{
	EraIdByron:   EraByron,
	EraIdShelley: EraShelley,
	EraIdAllegra: EraAllegra,
	EraIdMary:    EraMary,
	EraIdAlonzo:  EraAlonzo,
	EraIdBabbage: EraBabbage,
	EraIdConway:  EraConway,
}

// GetEraById returns the era with the provided ID, or false if it's unknown
func GetEraById(eraId uint8) (Era, bool) {
	era, ok := eras[eraId]
	return era, ok
}

// Block types, as used in the block-fetch block wrapper
const (
	BlockTypeByronEbb  = 0
	BlockTypeByronMain = 1
	BlockTypeShelley   = 2
	BlockTypeAllegra   = 3
	BlockTypeMary      = 4
	BlockTypeAlonzo    = 5
	BlockTypeBabbage   = 6
	BlockTypeConway    = 7
)

// Byron header types, as used in the chain-sync header wrapper
const (
	ByronHeaderTypeEbb  = 0
	ByronHeaderTypeMain = 1
)

// BlockTypeToEra returns the era for a block type
func BlockTypeToEra(blockType uint) (Era, error) {
	switch blockType {
	case BlockTypeByronEbb, BlockTypeByronMain:
		return EraByron, nil
	case BlockTypeShelley, BlockTypeAllegra, BlockTypeMary, BlockTypeAlonzo,
		BlockTypeBabbage, BlockTypeConway:
		// #nosec G115
		era, _ := GetEraById(uint8(blockType - 1))
		return era, nil
	}
	return Era{}, fmt.Errorf("%w: %d", ErrUnknownBlockType, blockType)
}

// BlockTypeFromHeaderEra maps the era found in a chain-sync header wrapper to a block type.
// The Byron header type is only used for the Byron era
func BlockTypeFromHeaderEra(headerEra uint, byronType uint) (uint, error) {
	if headerEra == uint(EraIdByron) {
		switch byronType {
		case ByronHeaderTypeEbb:
			return BlockTypeByronEbb, nil
		case ByronHeaderTypeMain:
			return BlockTypeByronMain, nil
		}
		return 0, fmt.Errorf("%w: Byron header type %d", ErrUnknownBlockType, byronType)
	}
	if headerEra > uint(EraIdConway) {
		return 0, fmt.Errorf("%w: header era %d", ErrUnknownBlockType, headerEra)
	}
	return headerEra + 1, nil
}
