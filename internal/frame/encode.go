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

import "fmt"

// Encode builds a complete frame for a command code and its data.
//
// Frame structure:
//
//	[STX][LL][CODE...][DATA...][HH][ETX]
//
// LL is the uppercase two-digit hex length of CODE+DATA and HH is the
// uppercase two-digit hex checksum of LL+CODE+DATA.
func Encode(code, data string) ([]byte, error) {
	length := len(code) + len(data)
	if length > MaxPayloadLength {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrLengthOverflow, length, MaxPayloadLength)
	}
	if err := checkASCII(code); err != nil {
		return nil, err
	}
	if err := checkASCII(data); err != nil {
		return nil, err
	}

	frm := make([]byte, 0, Overhead+length)
	frm = append(frm, STX)
	frm = appendHex(frm, byte(length))
	frm = append(frm, code...)
	frm = append(frm, data...)

	// checksum covers everything after STX written so far
	frm = appendHex(frm, Checksum(frm[1:]))
	frm = append(frm, ETX)

	return frm, nil
}

func appendHex(dst []byte, b byte) []byte {
	return append(dst, hexDigits[b>>4], hexDigits[b&0x0F])
}

func checkASCII(s string) error {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7F {
			return fmt.Errorf("%w: 0x%02X at index %d", ErrNonASCII, s[i], i)
		}
	}
	return nil
}
