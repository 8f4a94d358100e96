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

package chainsync

import (
	"fmt"

	"github.com/blinklabs-io/ouroboros-fetch/cbor"
)

// Header era used for all Byron headers. Byron headers carry an extra block type to
// tell main blocks and epoch boundary blocks apart
const headerEraByron = 0

// WrappedHeader represents a block header returned via a NtN RollForward message
type WrappedHeader struct {
	Era        uint
	ByronType  uint
	ByronSize  uint
	HeaderCbor []byte
}

// NewWrappedHeader returns a new WrappedHeader. The byronType is only used for Byron headers
func NewWrappedHeader(era uint, byronType uint, headerCbor []byte) *WrappedHeader {
	w := &WrappedHeader{
		Era:        era,
		HeaderCbor: headerCbor,
	}
	if era == headerEraByron {
		w.ByronType = byronType
		w.ByronSize = uint(len(headerCbor))
	}
	return w
}

// wrappedHeaderByron is [[type, size], tag24(header)]
type wrappedHeaderByron struct {
	// Tells the CBOR decoder to convert to/from a struct and a CBOR array
	_        struct{} `cbor:",toarray"`
	Metadata struct {
		// Tells the CBOR decoder to convert to/from a struct and a CBOR array
		_    struct{} `cbor:",toarray"`
		Type uint
		Size uint
	}
	RawHeader cbor.WrappedCbor
}

func (w *WrappedHeader) UnmarshalCBOR(data []byte) error {
	var tmpHeader struct {
		// Tells the CBOR decoder to convert to/from a struct and a CBOR array
		_         struct{} `cbor:",toarray"`
		Era       uint
		HeaderRaw cbor.RawMessage
	}
	if _, err := cbor.Decode(data, &tmpHeader); err != nil {
		return err
	}
	w.Era = tmpHeader.Era
	switch w.Era {
	case headerEraByron:
		var byronHeader wrappedHeaderByron
		if _, err := cbor.Decode(tmpHeader.HeaderRaw, &byronHeader); err != nil {
			return fmt.Errorf("decode Byron header wrapper: %w", err)
		}
		w.ByronType = byronHeader.Metadata.Type
		w.ByronSize = byronHeader.Metadata.Size
		w.HeaderCbor = byronHeader.RawHeader.Bytes()
	default:
		var rawHeader cbor.WrappedCbor
		if _, err := cbor.Decode(tmpHeader.HeaderRaw, &rawHeader); err != nil {
			return fmt.Errorf("decode header wrapper: %w", err)
		}
		w.HeaderCbor = rawHeader.Bytes()
	}
	return nil
}

func (w WrappedHeader) MarshalCBOR() ([]byte, error) {
	ret := []any{
		w.Era,
	}
	switch w.Era {
	case headerEraByron:
		tmp := []any{
			[]any{
				w.ByronType,
				w.ByronSize,
			},
			cbor.WrappedCbor(w.HeaderCbor),
		}
		ret = append(ret, tmp)
	default:
		ret = append(ret, cbor.WrappedCbor(w.HeaderCbor))
	}
	return cbor.Encode(ret)
}
