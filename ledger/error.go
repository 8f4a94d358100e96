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
)

var (
	ErrUnknownBlockType = errors.New("unknown block type")
	ErrMalformedBlock   = errors.New("malformed block")
	ErrMalformedHeader  = errors.New("malformed block header")
)

// TxIndexOutOfRangeError is returned when asking a block for a transaction it doesn't have
type TxIndexOutOfRangeError struct {
	Index int
	Count int
}

func (e *TxIndexOutOfRangeError) Error() string {
	return fmt.Sprintf(
		"invalid index %d for block containing %d transactions",
		e.Index,
		e.Count,
	)
}
