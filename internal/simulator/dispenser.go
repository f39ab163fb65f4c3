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

// Package simulator provides a virtual dispenser that speaks the serial
// protocol at the byte level.
//
// Dispenser implements io.ReadWriter: bytes the host writes are parsed as
// control bytes and frames, and replies are queued for the host to read.
// It answers ENQ with ACK, validates frame structure and checksum, replies
// A0 or A2, applies set commands to memory location 0, serves memory reads
// through the ACK and data frame leg, and returns to idle on EOT.
package simulator

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ZaparooProject/go-ultimus/internal/frame"
	"github.com/ZaparooProject/go-ultimus/internal/syncutil"
)

// Command codes understood by the simulator
const (
	CodeDispense         = "DI  "
	CodeStop             = "DO  "
	CodeSetPressure      = "PS  "
	CodeSetVacuum        = "VS  "
	CodeToggleMode       = "TM  "
	CodeSetDispenseTime  = "DS  "
	CodeSetPressureUnits = "E6  "
	CodeSetVacuumUnits   = "E7  "
	CodeReadMemory       = "E8"
)

var knownCodes = []string{
	CodeDispense, CodeStop, CodeSetPressure, CodeSetVacuum, CodeToggleMode,
	CodeSetDispenseTime, CodeSetPressureUnits, CodeSetVacuumUnits,
}

// MemoryLocations is the number of stored settings slots
const MemoryLocations = 400

// Memory holds one location's settings in wire units: tenths of psi,
// ten-thousandths of a second and tenths of inH2O.
type Memory struct {
	Pressure int
	Time     int
	Vacuum   int
}

// DataPayload renders the read-values payload for this location.
func (m Memory) DataPayload() string {
	return fmt.Sprintf("D0PD%04dDT%05dVC%04d", m.Pressure, m.Time, m.Vacuum)
}

// Phase is where the simulated device is within an exchange.
type Phase int

const (
	// PhaseIdle waits for ENQ
	PhaseIdle Phase = iota
	// PhaseCommand has sent ACK and waits for a command frame
	PhaseCommand
	// PhaseAwaitDataAck has sent A0 for a read and waits for ACK
	PhaseAwaitDataAck
	// PhaseAwaitEOT waits for EOT
	PhaseAwaitEOT
)

// Received is one well-formed command frame seen by the simulator.
type Received struct {
	Code string
	Data string
}

// State is a snapshot of the simulated front panel.
type State struct {
	Phase        Phase
	Dispenses    int
	PressureUnit int
	VacuumUnit   int
	EOTs         int
	Handshakes   int
	// FrameErrors counts malformed frames and frames outside a command phase
	FrameErrors int
	Steady      bool
	Dispensing  bool
}

// Dispenser is the virtual device.
type Dispenser struct {
	rejects     map[string]bool
	replies     map[string][]byte
	commands    []Received
	rxBuffer    bytes.Buffer
	txBuffer    bytes.Buffer
	memory      [MemoryLocations]Memory
	state       State
	mu          syncutil.Mutex
	pendingRead int
	ackByte     byte
	dropAck     bool
	silent      bool
	corruptData bool
}

// NewDispenser creates an idle simulator with zeroed memory.
func NewDispenser() *Dispenser {
	return &Dispenser{
		rejects: make(map[string]bool),
		replies: make(map[string][]byte),
		ackByte: frame.ACK,
	}
}

// Write implements io.Writer; it receives bytes from the host.
func (d *Dispenser) Write(data []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.rxBuffer.Write(data)
	d.process()
	return len(data), nil
}

// Read implements io.Reader; it returns queued reply bytes. An empty
// queue returns 0 bytes, which the host sees as a read timeout.
func (d *Dispenser) Read(buf []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.txBuffer.Len() == 0 {
		return 0, nil
	}
	n, err := d.txBuffer.Read(buf)
	if err != nil {
		return n, fmt.Errorf("read from tx buffer: %w", err)
	}
	return n, nil
}

func (d *Dispenser) process() {
	for d.rxBuffer.Len() > 0 {
		data := d.rxBuffer.Bytes()
		switch data[0] {
		case frame.ENQ:
			d.rxBuffer.Next(1)
			d.handleENQ()
		case frame.EOT:
			d.rxBuffer.Next(1)
			d.state.EOTs++
			d.state.Phase = PhaseIdle
		case frame.ACK:
			d.rxBuffer.Next(1)
			d.handleACK()
		case frame.STX:
			frm, next, err := frame.DecodeNext(data, 0)
			if errors.Is(err, frame.ErrTruncated) {
				return
			}
			d.rxBuffer.Next(next)
			if err != nil {
				d.state.FrameErrors++
				if d.state.Phase == PhaseCommand {
					d.reply(frame.CodeFailure)
					d.state.Phase = PhaseAwaitEOT
				}
				continue
			}
			d.handleFrame(frm)
		default:
			d.rxBuffer.Next(1)
		}
	}
}

func (d *Dispenser) handleENQ() {
	d.state.Handshakes++
	if d.dropAck {
		return
	}
	d.txBuffer.WriteByte(d.ackByte)
	if d.ackByte == frame.ACK {
		d.state.Phase = PhaseCommand
	}
}

func (d *Dispenser) handleACK() {
	if d.state.Phase != PhaseAwaitDataAck {
		return
	}
	payload := d.memory[d.pendingRead].DataPayload()
	encoded, err := frame.Encode(payload[:frame.CodeLength], payload[frame.CodeLength:])
	if err != nil {
		return
	}
	if d.corruptData {
		d.corruptData = false
		encoded[len(encoded)-2] ^= 0x01
	}
	d.txBuffer.Write(encoded)
	d.state.Phase = PhaseAwaitEOT
}

func (d *Dispenser) handleFrame(frm frame.Frame) {
	if d.state.Phase != PhaseCommand {
		d.state.FrameErrors++
		return
	}

	code, data := splitCommand(frm.Payload)
	d.commands = append(d.commands, Received{Code: code, Data: data})
	d.state.Phase = PhaseAwaitEOT

	if d.silent {
		return
	}
	if raw, ok := d.replies[strings.TrimSpace(code)]; ok {
		d.txBuffer.Write(raw)
		return
	}
	if d.rejects[strings.TrimSpace(code)] || !d.apply(code, data) {
		d.reply(frame.CodeFailure)
		return
	}

	d.reply(frame.CodeSuccess)
	if code == CodeReadMemory {
		d.state.Phase = PhaseAwaitDataAck
	}
}

// apply executes a command against the simulated panel and reports whether
// its data was acceptable.
func (d *Dispenser) apply(code, data string) bool {
	switch code {
	case CodeDispense:
		d.state.Dispensing = true
		d.state.Dispenses++
		return data == ""
	case CodeStop:
		d.state.Dispensing = false
		return data == ""
	case CodeToggleMode:
		d.state.Steady = !d.state.Steady
		return data == ""
	case CodeSetPressure:
		return setNumber(data, 4, 1000, &d.memory[0].Pressure)
	case CodeSetVacuum:
		return setNumber(data, 4, 180, &d.memory[0].Vacuum)
	case CodeSetDispenseTime:
		digits, ok := strings.CutPrefix(data, "T")
		if !ok || (len(digits) != 4 && len(digits) != 5) {
			return false
		}
		return setNumber(digits, len(digits), 99999, &d.memory[0].Time)
	case CodeSetPressureUnits:
		return setNumber(data, 2, 2, &d.state.PressureUnit)
	case CodeSetVacuumUnits:
		return setNumber(data, 2, 4, &d.state.VacuumUnit)
	case CodeReadMemory:
		return setNumber(data, 3, MemoryLocations-1, &d.pendingRead)
	default:
		return false
	}
}

func setNumber(data string, width, maxValue int, dst *int) bool {
	if len(data) != width {
		return false
	}
	n, err := strconv.Atoi(data)
	if err != nil || n < 0 || n > maxValue {
		return false
	}
	*dst = n
	return true
}

func (d *Dispenser) reply(code string) {
	encoded, err := frame.Encode(code, "")
	if err != nil {
		return
	}
	d.txBuffer.Write(encoded)
}

// splitCommand separates the command code from its data. Four-character
// codes are matched first; anything else is treated as a two-character code.
func splitCommand(payload string) (code, data string) {
	for _, c := range knownCodes {
		if strings.HasPrefix(payload, c) {
			return c, payload[len(c):]
		}
	}
	n := min(frame.CodeLength, len(payload))
	return payload[:n], payload[n:]
}

// SetMemory stores settings at a location.
func (d *Dispenser) SetMemory(location int, m Memory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.memory[location] = m
}

// Memory returns the settings at a location.
func (d *Dispenser) Memory(location int) Memory {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.memory[location]
}

// Reject makes the simulator answer A2 to a command code. Codes are
// compared without padding.
func (d *Dispenser) Reject(code string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rejects[strings.TrimSpace(code)] = true
}

// SetReply replaces the outcome reply to a command code with raw bytes.
// The command is not applied.
func (d *Dispenser) SetReply(code string, raw []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.replies[strings.TrimSpace(code)] = append([]byte(nil), raw...)
}

// DropAck stops the simulator from answering ENQ.
func (d *Dispenser) DropAck(drop bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dropAck = drop
}

// SetAckByte changes the byte sent in reply to ENQ. Any byte other than
// ACK leaves the simulator idle.
func (d *Dispenser) SetAckByte(b byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ackByte = b
}

// SetSilent makes the simulator accept command frames without replying.
func (d *Dispenser) SetSilent(silent bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.silent = silent
}

// CorruptNextDataFrame flips a checksum bit in the next data frame.
func (d *Dispenser) CorruptNextDataFrame() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.corruptData = true
}

// Commands returns the command frames received so far.
func (d *Dispenser) Commands() []Received {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Received(nil), d.commands...)
}

// State returns a snapshot of the simulated panel.
func (d *Dispenser) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// HasPendingResponse reports whether reply bytes are waiting to be read.
func (d *Dispenser) HasPendingResponse() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.txBuffer.Len() > 0
}

// Reset clears buffers, memory, overrides and state.
func (d *Dispenser) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.rxBuffer.Reset()
	d.txBuffer.Reset()
	d.memory = [MemoryLocations]Memory{}
	d.state = State{}
	d.commands = nil
	d.rejects = make(map[string]bool)
	d.replies = make(map[string][]byte)
	d.ackByte = frame.ACK
	d.dropAck = false
	d.silent = false
	d.corruptData = false
	d.pendingRead = 0
}
