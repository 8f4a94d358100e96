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

package cbor

import (
	"errors"
	"fmt"

	_cbor "github.com/fxamacker/cbor/v2"
)

const (
	// Tag for CBOR data embedded as a bytestring
	CborTagCbor = 24
)

// WrappedCbor holds CBOR data that is transmitted as a tag 24 bytestring.
// The inner bytes are kept verbatim
type WrappedCbor []byte

func (w *WrappedCbor) UnmarshalCBOR(cborData []byte) error {
	var tmpTag _cbor.RawTag
	if _, err := Decode(cborData, &tmpTag); err != nil {
		return err
	}
	if tmpTag.Number != CborTagCbor {
		return fmt.Errorf(
			"unexpected tag number %d, expected %d",
			tmpTag.Number,
			CborTagCbor,
		)
	}
	var inner []byte
	if _, err := Decode(tmpTag.Content, &inner); err != nil {
		return err
	}
	if len(inner) == 0 {
		return errors.New("empty wrapped CBOR")
	}
	*w = WrappedCbor(inner)
	return nil
}

func (w WrappedCbor) MarshalCBOR() ([]byte, error) {
	return Encode(
		_cbor.Tag{
			Number:  CborTagCbor,
			Content: []byte(w),
		},
	)
}

// Bytes returns the wrapped CBOR data
func (w WrappedCbor) Bytes() []byte {
	return []byte(w)
}
