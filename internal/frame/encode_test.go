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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		code string
		data string
		want string
	}{
		{name: "set pressure 50 psi", code: "PS  ", data: "0500", want: "\x0208PS  0500F0\x03"},
		{name: "start without data", code: "DI  ", data: "", want: "\x0204DI  CF\x03"},
		{name: "toggle mode", code: "TM  ", data: "", want: "\x0204TM  BB\x03"},
		{name: "dispense time", code: "DS  ", data: "T5000", want: "\x0209DS  T5000A7\x03"},
		{name: "pressure units", code: "E6  ", data: "01", want: "\x0206E6  017E\x03"},
		{name: "two character read code", code: "E8", data: "000", want: "\x0205E80008E\x03"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Encode(tt.code, tt.data)
			require.NoError(t, err)
			assert.Equal(t, []byte(tt.want), got)
		})
	}
}

func TestEncodeLengthLimit(t *testing.T) {
	t.Parallel()

	got, err := Encode("PS  ", strings.Repeat("0", MaxPayloadLength-4))
	require.NoError(t, err)
	assert.Equal(t, "FF", string(got[1:3]))
	assert.Len(t, got, MaxPayloadLength+Overhead)

	_, err = Encode("PS  ", strings.Repeat("0", MaxPayloadLength-3))
	require.ErrorIs(t, err, ErrLengthOverflow)
}

func TestEncodeRejectsNonASCII(t *testing.T) {
	t.Parallel()

	_, err := Encode("PS  ", "05\xB00")
	require.ErrorIs(t, err, ErrNonASCII)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		code string
		data string
	}{
		{"PS  ", "0500"},
		{"VS  ", "0180"},
		{"DS  ", "T99999"},
		{"E8", "399"},
		{"A0", ""},
		{"DI  ", ""},
		{"D0", "PD1000DT00000VC0000"},
		{"XY", strings.Repeat("z", MaxPayloadLength-2)},
	}

	for _, tt := range tests {
		encoded, err := Encode(tt.code, tt.data)
		require.NoError(t, err)

		results := Decode(encoded)
		require.Len(t, results, 1)
		require.NoError(t, results[0].Err)

		frm := results[0].Frame
		code, data := frm.Split(len(tt.code))
		assert.Equal(t, tt.code, code)
		assert.Equal(t, tt.data, data)
		assert.Equal(t, len(tt.code)+len(tt.data), frm.Length)
		assert.Equal(t, ChecksumString(string(encoded[1:3])+frm.Payload), frm.Checksum)
	}
}
