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

// Checksum computes the frame checksum for an ASCII byte sequence.
// The bytes are summed and the low byte of the sum is negated (two's
// complement), so Checksum(s) + sum(s) is always 0 modulo 256.
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return ^sum + 1
}

// ChecksumString is Checksum for string input.
func ChecksumString(s string) byte {
	var sum byte
	for i := 0; i < len(s); i++ {
		sum += s[i]
	}
	return ^sum + 1
}

// verifyChecksum reports whether want matches the checksum of the length
// field followed by the payload.
func verifyChecksum(lengthField, payload string, want byte) bool {
	var sum byte
	for i := 0; i < len(lengthField); i++ {
		sum += lengthField[i]
	}
	for i := 0; i < len(payload); i++ {
		sum += payload[i]
	}
	return sum+want == 0
}
