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

package simulator

import (
	"testing"

	"github.com/ZaparooProject/go-ultimus/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEncode(t *testing.T, code, data string) []byte {
	t.Helper()
	b, err := frame.Encode(code, data)
	require.NoError(t, err)
	return b
}

func readAll(t *testing.T, d *Dispenser) []byte {
	t.Helper()
	buf := make([]byte, 512)
	n, err := d.Read(buf)
	require.NoError(t, err)
	return buf[:n]
}

func writeAll(t *testing.T, d *Dispenser, data []byte) {
	t.Helper()
	n, err := d.Write(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
}

func TestDispenser_HandshakeAndSetPressure(t *testing.T) {
	t.Parallel()
	d := NewDispenser()

	writeAll(t, d, []byte{frame.ENQ})
	assert.Equal(t, []byte{frame.ACK}, readAll(t, d))
	assert.Equal(t, PhaseCommand, d.State().Phase)

	writeAll(t, d, mustEncode(t, CodeSetPressure, "0500"))
	assert.Equal(t, mustEncode(t, frame.CodeSuccess, ""), readAll(t, d))
	assert.Equal(t, 500, d.Memory(0).Pressure)

	writeAll(t, d, []byte{frame.EOT})
	state := d.State()
	assert.Equal(t, PhaseIdle, state.Phase)
	assert.Equal(t, 1, state.EOTs)
	assert.Equal(t, []Received{{Code: CodeSetPressure, Data: "0500"}}, d.Commands())
}

func TestDispenser_ReadMemory(t *testing.T) {
	t.Parallel()
	d := NewDispenser()
	d.SetMemory(7, Memory{Pressure: 500, Time: 5000, Vacuum: 100})

	writeAll(t, d, []byte{frame.ENQ})
	readAll(t, d)
	writeAll(t, d, mustEncode(t, CodeReadMemory, "007"))
	assert.Equal(t, mustEncode(t, frame.CodeSuccess, ""), readAll(t, d))
	assert.Equal(t, PhaseAwaitDataAck, d.State().Phase)

	writeAll(t, d, []byte{frame.ACK})
	assert.Equal(t, []byte("\x0215D0PD0500DT05000VC0100E6\x03"), readAll(t, d))

	writeAll(t, d, []byte{frame.EOT})
	assert.Equal(t, PhaseIdle, d.State().Phase)
}

func TestDispenser_RejectsInvalidData(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		code string
		data string
	}{
		{name: "pressure above range", code: CodeSetPressure, data: "1001"},
		{name: "pressure wrong width", code: CodeSetPressure, data: "500"},
		{name: "vacuum above range", code: CodeSetVacuum, data: "0181"},
		{name: "time without prefix", code: CodeSetDispenseTime, data: "5000"},
		{name: "unknown pressure unit", code: CodeSetPressureUnits, data: "03"},
		{name: "unknown vacuum unit", code: CodeSetVacuumUnits, data: "05"},
		{name: "memory past end", code: CodeReadMemory, data: "400"},
		{name: "unknown code", code: "ZZ  ", data: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := NewDispenser()
			writeAll(t, d, []byte{frame.ENQ})
			readAll(t, d)
			writeAll(t, d, mustEncode(t, tt.code, tt.data))
			assert.Equal(t, mustEncode(t, frame.CodeFailure, ""), readAll(t, d))
		})
	}
}

func TestDispenser_PanelCommands(t *testing.T) {
	t.Parallel()
	d := NewDispenser()

	send := func(code, data string) {
		writeAll(t, d, []byte{frame.ENQ})
		readAll(t, d)
		writeAll(t, d, mustEncode(t, code, data))
		require.Equal(t, mustEncode(t, frame.CodeSuccess, ""), readAll(t, d))
		writeAll(t, d, []byte{frame.EOT})
	}

	send(CodeDispense, "")
	send(CodeToggleMode, "")
	send(CodeSetDispenseTime, "T99999")
	send(CodeSetVacuumUnits, "04")
	send(CodeStop, "")

	state := d.State()
	assert.Equal(t, 1, state.Dispenses)
	assert.False(t, state.Dispensing)
	assert.True(t, state.Steady)
	assert.Equal(t, 4, state.VacuumUnit)
	assert.Equal(t, 99999, d.Memory(0).Time)
	assert.Equal(t, 5, state.Handshakes)
}

func TestDispenser_Overrides(t *testing.T) {
	t.Parallel()

	t.Run("dropped ack", func(t *testing.T) {
		t.Parallel()
		d := NewDispenser()
		d.DropAck(true)
		writeAll(t, d, []byte{frame.ENQ})
		assert.Empty(t, readAll(t, d))
		assert.Equal(t, PhaseIdle, d.State().Phase)
	})

	t.Run("wrong ack byte", func(t *testing.T) {
		t.Parallel()
		d := NewDispenser()
		d.SetAckByte(0x15)
		writeAll(t, d, []byte{frame.ENQ})
		assert.Equal(t, []byte{0x15}, readAll(t, d))
	})

	t.Run("rejected code", func(t *testing.T) {
		t.Parallel()
		d := NewDispenser()
		d.Reject("TM")
		writeAll(t, d, []byte{frame.ENQ})
		readAll(t, d)
		writeAll(t, d, mustEncode(t, CodeToggleMode, ""))
		assert.Equal(t, mustEncode(t, frame.CodeFailure, ""), readAll(t, d))
		assert.False(t, d.State().Steady)
	})

	t.Run("raw reply", func(t *testing.T) {
		t.Parallel()
		d := NewDispenser()
		raw := mustEncode(t, "A5", "")
		d.SetReply("DI", raw)
		writeAll(t, d, []byte{frame.ENQ})
		readAll(t, d)
		writeAll(t, d, mustEncode(t, CodeDispense, ""))
		assert.Equal(t, raw, readAll(t, d))
	})

	t.Run("silent", func(t *testing.T) {
		t.Parallel()
		d := NewDispenser()
		d.SetSilent(true)
		writeAll(t, d, []byte{frame.ENQ})
		readAll(t, d)
		writeAll(t, d, mustEncode(t, CodeDispense, ""))
		assert.False(t, d.HasPendingResponse())
	})
}

func TestDispenser_CorruptFrameGetsFailure(t *testing.T) {
	t.Parallel()
	d := NewDispenser()

	writeAll(t, d, []byte{frame.ENQ})
	readAll(t, d)

	bad := mustEncode(t, CodeSetPressure, "0500")
	bad[len(bad)-3] = '1'
	writeAll(t, d, bad)

	assert.Equal(t, mustEncode(t, frame.CodeFailure, ""), readAll(t, d))
	assert.Equal(t, 1, d.State().FrameErrors)
	assert.Zero(t, d.Memory(0).Pressure)
}

func TestDispenser_FrameSplitAcrossWrites(t *testing.T) {
	t.Parallel()
	d := NewDispenser()

	writeAll(t, d, []byte{frame.ENQ})
	readAll(t, d)

	encoded := mustEncode(t, CodeSetVacuum, "0100")
	writeAll(t, d, encoded[:5])
	assert.False(t, d.HasPendingResponse())
	writeAll(t, d, encoded[5:])
	assert.Equal(t, mustEncode(t, frame.CodeSuccess, ""), readAll(t, d))
	assert.Equal(t, 100, d.Memory(0).Vacuum)
}

func TestDispenser_FrameWithoutHandshakeIgnored(t *testing.T) {
	t.Parallel()
	d := NewDispenser()

	writeAll(t, d, mustEncode(t, CodeDispense, ""))
	assert.False(t, d.HasPendingResponse())
	assert.Zero(t, d.State().Dispenses)
}

func TestDispenser_Reset(t *testing.T) {
	t.Parallel()
	d := NewDispenser()
	d.SetMemory(0, Memory{Pressure: 1})
	d.Reject("PS")
	d.DropAck(true)
	writeAll(t, d, []byte{frame.ENQ})

	d.Reset()

	assert.Equal(t, Memory{}, d.Memory(0))
	assert.Equal(t, State{}, d.State())
	writeAll(t, d, []byte{frame.ENQ})
	assert.Equal(t, []byte{frame.ACK}, readAll(t, d))
}

func TestSplitCommand(t *testing.T) {
	t.Parallel()
	code, data := splitCommand("PS  0500")
	assert.Equal(t, CodeSetPressure, code)
	assert.Equal(t, "0500", data)

	code, data = splitCommand("E8123")
	assert.Equal(t, CodeReadMemory, code)
	assert.Equal(t, "123", data)

	code, data = splitCommand("A")
	assert.Equal(t, "A", code)
	assert.Empty(t, data)
}
