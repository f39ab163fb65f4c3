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

// Control bytes used for handshaking and frame delimiting.
const (
	STX = 0x02 // Start of text, opens a frame
	ETX = 0x03 // End of text, closes a frame
	EOT = 0x04 // End of transmission, closes an exchange
	ENQ = 0x05 // Enquiry, attention byte sent before every command
	ACK = 0x06 // Acknowledge
)

const (
	// MaxPayloadLength is the largest command+data length that fits the
	// two-digit hexadecimal length field.
	MaxPayloadLength = 0xFF

	// Overhead is the number of bytes a frame adds around its payload:
	// STX + 2 length chars + 2 checksum chars + ETX.
	Overhead = 6

	// CodeLength is the width of the command code carried by device replies.
	CodeLength = 2
)

// Outcome codes sent by the device in reply to a command frame.
const (
	CodeSuccess = "A0"
	CodeFailure = "A2"
)

const hexDigits = "0123456789ABCDEF"
