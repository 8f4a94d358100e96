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
	"strings"
	"testing"

	"github.com/blinklabs-io/ouroboros-fetch/internal/testdata"
	"github.com/blinklabs-io/ouroboros-fetch/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePoint(t *testing.T) {
	point, err := parsePoint(testdata.MaryBlock.Slot, testdata.MaryBlock.Hash)
	require.NoError(t, err)
	assert.Equal(t, testdata.MaryBlock.Slot, point.Slot)
	assert.Equal(t, testdata.MustDecodeHex(testdata.MaryBlock.Hash), point.Hash)
	_, err = parsePoint(1, "zz")
	assert.ErrorIs(t, err, ErrInvalidHash)
	_, err = parsePoint(1, "")
	assert.Error(t, err)
}

func TestSelectPayload(t *testing.T) {
	blockData := testdata.BabbageBlock.WrappedCbor()
	data, err := selectPayload(blockData, -1)
	require.NoError(t, err)
	assert.Equal(t, blockData, data)
	block, err := ledger.NewBlockFromWrappedCbor(blockData)
	require.NoError(t, err)
	expected, err := block.Transaction(1)
	require.NoError(t, err)
	data, err = selectPayload(blockData, 1)
	require.NoError(t, err)
	assert.Equal(t, expected, data)
	_, err = selectPayload(blockData, 5)
	assert.EqualError(t, err, "invalid index 5 for block containing 3 transactions")
	_, err = selectPayload([]byte{0x80}, 0)
	assert.ErrorContains(t, err, "unable to decode block")
}

func TestFormatOutput(t *testing.T) {
	out, err := formatOutput([]byte{0x82, 0x01, 0x41, 0xab}, false)
	require.NoError(t, err)
	assert.Equal(t, "820141ab", out)
	out, err = formatOutput([]byte{0x82, 0x01, 0x41, 0xab}, true)
	require.NoError(t, err)
	assert.Equal(t, "[1, h'ab']", out)
	out, err = formatOutput(testdata.MaryBlock.WrappedCbor(), true)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "[4, ["), out)
	_, err = formatOutput([]byte{0x82, 0x01}, true)
	assert.ErrorContains(t, err, "unable to parse CBOR")
}
