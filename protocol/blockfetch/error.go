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

package blockfetch

import "errors"

// ErrNoBlocks is returned when the peer doesn't have any blocks for the requested range.
// The protocol is back in the idle state afterward and can be used again
var ErrNoBlocks = errors.New("block(s) not found")

// ErrUnexpectedBlockCount is returned by GetBlock when a single point range doesn't yield
// exactly one block
var ErrUnexpectedBlockCount = errors.New("unexpected number of blocks in batch")
