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

package handshake

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRefused is matched by every RefusedError
var ErrRefused = errors.New("handshake refused")

var (
	ErrVersionNotProposed   = errors.New("peer accepted a version we did not propose")
	ErrNetworkMagicMismatch = errors.New("network magic mismatch")
)

// RefusedError carries the reason the peer gave for refusing our proposal
type RefusedError struct {
	Reason uint64
	// Versions supported by the peer, for a version mismatch
	Versions []uint16
	// Version the refusal refers to, for a decode error or refusal
	Version uint16
	Message string
}

func (e *RefusedError) Error() string {
	switch e.Reason {
	case RefuseReasonVersionMismatch:
		versions := make([]string, 0, len(e.Versions))
		for _, version := range e.Versions {
			versions = append(versions, fmt.Sprintf("%d", version))
		}
		return fmt.Sprintf(
			"%s: version mismatch (peer supports: %s)",
			ProtocolName,
			strings.Join(versions, ", "),
		)
	case RefuseReasonDecodeError:
		return fmt.Sprintf(
			"%s: decode error for version %d: %s",
			ProtocolName,
			e.Version,
			e.Message,
		)
	case RefuseReasonRefused:
		return fmt.Sprintf(
			"%s: refused version %d: %s",
			ProtocolName,
			e.Version,
			e.Message,
		)
	default:
		return fmt.Sprintf("%s: refused with unknown reason %d", ProtocolName, e.Reason)
	}
}

func (e *RefusedError) Is(target error) bool {
	return target == ErrRefused
}

// newRefusedError parses the reason from a Refuse message
func newRefusedError(reason []any) (*RefusedError, error) {
	if len(reason) == 0 {
		return nil, errors.New("empty refuse reason")
	}
	reasonCode, ok := reason[0].(uint64)
	if !ok {
		return nil, fmt.Errorf("unexpected refuse reason type: %T", reason[0])
	}
	ret := &RefusedError{Reason: reasonCode}
	switch reasonCode {
	case RefuseReasonVersionMismatch:
		if len(reason) != 2 {
			return nil, errors.New("malformed version mismatch reason")
		}
		versions, ok := reason[1].([]any)
		if !ok {
			return nil, fmt.Errorf("unexpected version list type: %T", reason[1])
		}
		for _, version := range versions {
			tmpVersion, ok := version.(uint64)
			if !ok || tmpVersion > 0xffff {
				return nil, fmt.Errorf("unexpected version value: %v", version)
			}
			ret.Versions = append(ret.Versions, uint16(tmpVersion))
		}
	case RefuseReasonDecodeError, RefuseReasonRefused:
		if len(reason) != 3 {
			return nil, errors.New("malformed refuse reason")
		}
		version, ok := reason[1].(uint64)
		if !ok || version > 0xffff {
			return nil, fmt.Errorf("unexpected version value: %v", reason[1])
		}
		message, ok := reason[2].(string)
		if !ok {
			return nil, fmt.Errorf("unexpected refuse message type: %T", reason[2])
		}
		ret.Version = uint16(version)
		ret.Message = message
	default:
		return nil, fmt.Errorf("unknown refuse reason: %d", reasonCode)
	}
	return ret, nil
}
