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
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	_cbor "github.com/fxamacker/cbor/v2"
)

var (
	cachedDecMode     _cbor.DecMode
	cachedDecModeErr  error
	cachedDecModeOnce sync.Once
)

// getDecMode returns a cached DecMode, initializing it on first use.
func getDecMode() (_cbor.DecMode, error) {
	cachedDecModeOnce.Do(func() {
		decOptions := _cbor.DecOptions{
			// This defaults to 32, but there are blocks in the wild using >64 nested levels
			MaxNestedLevels: 256,
		}
		cachedDecMode, cachedDecModeErr = decOptions.DecMode()
	})
	return cachedDecMode, cachedDecModeErr
}

// Decode decodes the first CBOR data item in dataBytes into dest and returns the
// number of bytes consumed. Trailing data is left alone, which allows walking a
// buffer that holds more than one item
func Decode(dataBytes []byte, dest any) (int, error) {
	data := bytes.NewReader(dataBytes)
	decMode, err := getDecMode()
	if err != nil {
		return 0, err
	}
	dec := decMode.NewDecoder(data)
	err = dec.Decode(dest)
	return dec.NumBytesRead(), err
}

// IsIncomplete returns whether a decode error was caused by running out of input
// before the end of a data item
func IsIncomplete(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// ErrEmptyList is returned when a list item is requested from an empty list
var ErrEmptyList = errors.New("cannot return first item from empty list")

// shortArrayLength returns the length of a list whose length fits in the initial byte
func shortArrayLength(initial byte) (int, bool) {
	if initial < CborTypeArray || initial > CborTypeArray+CborMaxUintSimple {
		return 0, false
	}
	return int(initial - CborTypeArray), true
}

// DecodeIdFromList returns the first item of a CBOR list, which must be an unsigned
// integer. Every mini-protocol message carries its type there
func DecodeIdFromList(cborData []byte) (int, error) {
	if listLen, ok := shortArrayLength(firstByte(cborData)); ok && listLen > 0 &&
		len(cborData) > 1 && cborData[1] <= CborMaxUintSimple {
		return int(cborData[1]), nil
	}
	var items []RawMessage
	if _, err := Decode(cborData, &items); err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, ErrEmptyList
	}
	var id uint64
	if _, err := Decode(items[0], &id); err != nil {
		return 0, fmt.Errorf("first list item is not an unsigned integer: %w", err)
	}
	if id > math.MaxInt {
		return 0, fmt.Errorf("first list item too large: %d", id)
	}
	return int(id), nil
}

// ListLength returns the number of items in a CBOR list
func ListLength(cborData []byte) (int, error) {
	if len(cborData) == 0 {
		return 0, io.ErrUnexpectedEOF
	}
	if listLen, ok := shortArrayLength(cborData[0]); ok {
		return listLen, nil
	}
	var items []RawMessage
	if _, err := Decode(cborData, &items); err != nil {
		return 0, err
	}
	return len(items), nil
}

func firstByte(data []byte) byte {
	if len(data) == 0 {
		return 0
	}
	return data[0]
}
