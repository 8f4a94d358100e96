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

package common_test

import (
	"encoding/hex"
	"testing"

	"github.com/blinklabs-io/ouroboros-fetch/cbor"
	"github.com/blinklabs-io/ouroboros-fetch/protocol/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointCbor(t *testing.T) {
	hash, _ := hex.DecodeString("deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef")
	testDefs := []struct {
		point   common.Point
		cborHex string
	}{
		{
			point:   common.NewPointOrigin(),
			cborHex: "80",
		},
		{
			point:   common.NewPoint(12345, hash),
			cborHex: "82193039" + "5820" + hex.EncodeToString(hash),
		},
	}
	for _, testDef := range testDefs {
		data, err := cbor.Encode(testDef.point)
		require.NoError(t, err)
		assert.Equal(t, testDef.cborHex, hex.EncodeToString(data))
		var decoded common.Point
		_, err = cbor.Decode(data, &decoded)
		require.NoError(t, err)
		assert.True(t, decoded.Equal(testDef.point), "decoded %s, expected %s", decoded, testDef.point)
	}
}

func TestPointDecodeInvalid(t *testing.T) {
	// [1]
	var p common.Point
	_, err := cbor.Decode([]byte{0x81, 0x01}, &p)
	assert.Error(t, err)
}

func TestPointEquality(t *testing.T) {
	a := common.NewPoint(10, []byte{1, 2, 3})
	b := common.NewPoint(10, []byte{1, 2, 3})
	c := common.NewPoint(10, []byte{1, 2, 4})
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(common.NewPointOrigin()))
	assert.True(t, common.NewPointOrigin().IsOrigin())
	assert.True(t, common.NewPoint(0, nil).Equal(common.Point{}))
	// NewPoint copies the hash
	hash := []byte{9, 9}
	p := common.NewPoint(1, hash)
	hash[0] = 0
	assert.Equal(t, []byte{9, 9}, p.Hash)
}

func TestTipCbor(t *testing.T) {
	tip := common.Tip{
		Point:       common.NewPoint(2, []byte{0xab}),
		BlockNumber: 7,
	}
	data, err := cbor.Encode(tip)
	require.NoError(t, err)
	// [[2, h'ab'], 7]
	assert.Equal(t, "82820241ab07", hex.EncodeToString(data))
	var decoded common.Tip
	_, err = cbor.Decode(data, &decoded)
	require.NoError(t, err)
	assert.True(t, decoded.Point.Equal(tip.Point))
	assert.Equal(t, uint64(7), decoded.BlockNumber)
	assert.Equal(t, "2.ab (block 7)", decoded.String())
}
