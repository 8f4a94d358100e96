package test

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/blinklabs-io/ouroboros-fetch/cbor"
)

// DecodeHexString is a helper function for tests that decodes hex strings. It doesn't return
// an error value, which makes it usable inline.
func DecodeHexString(hexData string) []byte {
	// Strip off any leading/trailing whitespace in hex string
	hexData = strings.TrimSpace(hexData)
	decoded, err := hex.DecodeString(hexData)
	if err != nil {
		panic(fmt.Sprintf("error decoding hex: %s", err))
	}
	return decoded
}

// EncodeCbor is a helper function for tests that encodes a value to CBOR. It panics on
// failure, which makes it usable inline.
func EncodeCbor(v any) []byte {
	data, err := cbor.Encode(v)
	if err != nil {
		panic(fmt.Sprintf("error encoding CBOR: %s", err))
	}
	return data
}
