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
	_cbor "github.com/fxamacker/cbor/v2"
)

var diagOptions = _cbor.DiagOptions{
	ByteStringEncoding: _cbor.ByteStringBase16Encoding,
	CBORSequence:       true,
}

// Diagnose returns the RFC 8949 diagnostic notation for the provided CBOR data.
// Bytestrings are rendered as hex and multiple concatenated items are allowed
func Diagnose(cborData []byte) (string, error) {
	dm, err := diagOptions.DiagMode()
	if err != nil {
		return "", err
	}
	return dm.Diagnose(cborData)
}
