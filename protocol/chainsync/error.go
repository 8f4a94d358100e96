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
	"errors"
	"fmt"

	"github.com/blinklabs-io/ouroboros-fetch/protocol/common"
)

var ErrIntersectNotFound = errors.New("chain intersection not found")

// ErrNotAwaiting is returned by AwaitNext when the peer hasn't told us to wait
var ErrNotAwaiting = errors.New("not waiting for a reply from the peer")

// IntersectNotFoundError is returned when none of the provided points are on the peer's
// chain. It carries the peer's current tip
type IntersectNotFoundError struct {
	Tip common.Tip
}

func (e *IntersectNotFoundError) Error() string {
	return fmt.Sprintf("%s (peer tip: %s)", ErrIntersectNotFound, e.Tip)
}

func (e *IntersectNotFoundError) Is(target error) bool {
	return target == ErrIntersectNotFound
}
