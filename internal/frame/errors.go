// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
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

package frame

import (
	"errors"
	"fmt"
)

// Encoding errors
var (
	ErrLengthOverflow = errors.New("frame length overflow")
	ErrNonASCII       = errors.New("frame contains non-ASCII byte")
)

// Decoding errors
var (
	ErrTruncated         = errors.New("frame truncated")
	ErrBadLength         = errors.New("frame length is not hexadecimal")
	ErrMissingTerminator = errors.New("frame missing ETX terminator")
	ErrChecksumMismatch  = errors.New("frame checksum mismatch")
	ErrNoFrame           = errors.New("no frame in buffer")
)

// Error describes a malformed inbound frame. Offset is the position of the
// STX byte that opened the frame.
type Error struct {
	Kind   error
	Detail string
	Offset int
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%v at offset %d: %s", e.Kind, e.Offset, e.Detail)
	}
	return fmt.Sprintf("%v at offset %d", e.Kind, e.Offset)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// KindName returns a short stable label for the error kind, used for
// metrics and log fields.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrTruncated):
		return "truncated"
	case errors.Is(err, ErrBadLength):
		return "bad_length"
	case errors.Is(err, ErrMissingTerminator):
		return "missing_terminator"
	case errors.Is(err, ErrChecksumMismatch):
		return "checksum_mismatch"
	default:
		return "other"
	}
}
