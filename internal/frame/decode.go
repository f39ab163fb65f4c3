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
	"bytes"
	"errors"
	"fmt"
)

// Frame is one decoded, checksum-verified protocol unit.
type Frame struct {
	// Payload is the command code followed by the data, exactly Length bytes.
	Payload  string
	Length   int
	Checksum byte
}

// Code returns the two-character command code that device replies carry.
func (f Frame) Code() string {
	return f.Payload[:min(CodeLength, len(f.Payload))]
}

// Data returns the payload after the two-character command code.
func (f Frame) Data() string {
	return f.Payload[min(CodeLength, len(f.Payload)):]
}

// Split separates the payload into a command code of codeLen characters and
// the remaining data. Outbound commands use codes of two to four characters.
func (f Frame) Split(codeLen int) (code, data string) {
	codeLen = max(0, min(codeLen, len(f.Payload)))
	return f.Payload[:codeLen], f.Payload[codeLen:]
}

// Result is a single outcome of scanning a buffer: either a Frame or an
// error describing why the bytes at that position were rejected.
type Result struct {
	Err   error
	Frame Frame
}

// Decode scans buf left to right and returns every frame it finds, in
// order. Bytes outside an STX..ETX span are skipped as line noise. A
// malformed frame produces an error Result and scanning resumes, so later
// well-formed frames in the same buffer are still recovered.
func Decode(buf []byte) []Result {
	var results []Result
	off := 0
	for off < len(buf) {
		frm, next, err := DecodeNext(buf, off)
		if errors.Is(err, ErrNoFrame) {
			break
		}
		results = append(results, Result{Frame: frm, Err: err})
		off = next
	}
	return results
}

// DecodeNext decodes the first frame at or after off. It returns the frame,
// the offset to resume scanning from, and an error. ErrNoFrame is returned
// when no STX remains in the buffer; every other error is an *Error.
//
// After a checksum mismatch scanning resumes past the consumed frame. For
// structural errors it resumes one byte after the STX, since that STX may
// have been noise in front of a real frame.
func DecodeNext(buf []byte, off int) (frm Frame, next int, err error) {
	if off < 0 || off >= len(buf) {
		return Frame{}, len(buf), ErrNoFrame
	}

	idx := bytes.IndexByte(buf[off:], STX)
	if idx < 0 {
		return Frame{}, len(buf), ErrNoFrame
	}
	start := off + idx
	resync := start + 1
	pos := start + 1

	if len(buf)-pos < 2 {
		return Frame{}, resync, &Error{Kind: ErrTruncated, Offset: start, Detail: "length field incomplete"}
	}
	lengthField := string(buf[pos : pos+2])
	length, ok := parseHexByte(lengthField)
	if !ok {
		return Frame{}, resync, &Error{Kind: ErrBadLength, Offset: start, Detail: fmt.Sprintf("%q", lengthField)}
	}
	pos += 2

	if len(buf)-pos < int(length) {
		return Frame{}, resync, &Error{
			Kind:   ErrTruncated,
			Offset: start,
			Detail: fmt.Sprintf("payload needs %d bytes, have %d", length, len(buf)-pos),
		}
	}
	payload := string(buf[pos : pos+int(length)])
	pos += int(length)

	if len(buf)-pos < 2 {
		return Frame{}, resync, &Error{Kind: ErrTruncated, Offset: start, Detail: "checksum field incomplete"}
	}
	checksumField := string(buf[pos : pos+2])
	pos += 2

	if pos >= len(buf) || buf[pos] != ETX {
		return Frame{}, resync, &Error{Kind: ErrMissingTerminator, Offset: start}
	}
	pos++

	checksum, ok := parseHexByte(checksumField)
	if !ok {
		return Frame{}, pos, &Error{
			Kind:   ErrChecksumMismatch,
			Offset: start,
			Detail: fmt.Sprintf("checksum field %q is not hexadecimal", checksumField),
		}
	}
	if !verifyChecksum(lengthField, payload, checksum) {
		return Frame{}, pos, &Error{
			Kind:   ErrChecksumMismatch,
			Offset: start,
			Detail: fmt.Sprintf("got %02X, want %02X", checksum, ChecksumString(lengthField+payload)),
		}
	}

	return Frame{Length: int(length), Payload: payload, Checksum: checksum}, pos, nil
}

// parseHexByte parses exactly two hexadecimal digits. Both cases are
// accepted on input even though the encoder only emits upper case.
func parseHexByte(s string) (byte, bool) {
	if len(s) != 2 {
		return 0, false
	}
	hi, ok := hexValue(s[0])
	if !ok {
		return 0, false
	}
	lo, ok := hexValue(s[1])
	if !ok {
		return 0, false
	}
	return hi<<4 | lo, true
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	default:
		return 0, false
	}
}
