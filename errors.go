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

package ultimus

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/ZaparooProject/go-ultimus/internal/frame"
)

// Validation errors - the command is never built or sent
var (
	ErrInvalidValue = errors.New("value out of range")
	ErrUnknownUnit  = errors.New("unknown unit")
)

// Session errors - the cycle is abandoned, the transport stays usable
var (
	ErrNoAck               = errors.New("no ACK received after ENQ")
	ErrNoResponse          = errors.New("no response from device")
	ErrCommandRejected     = errors.New("device rejected command")
	ErrUnrecognizedOutcome = errors.New("unrecognized outcome code")
	ErrResponseFormat      = errors.New("invalid response format")
)

// Transport errors
var (
	ErrTransportWrite  = errors.New("transport write failed")
	ErrTransportRead   = errors.New("transport read failed")
	ErrTransportClosed = errors.New("transport is closed")
)

// Frame errors, re-exported so callers do not need the internal package
var (
	ErrLengthOverflow    = frame.ErrLengthOverflow
	ErrFrameTruncated    = frame.ErrTruncated
	ErrFrameBadLength    = frame.ErrBadLength
	ErrMissingTerminator = frame.ErrMissingTerminator
	ErrChecksumMismatch  = frame.ErrChecksumMismatch
)

// ValidationError reports a physical value or unit rejected before encoding.
type ValidationError struct {
	Err      error
	Quantity string
	Value    string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %s: %s", e.Quantity, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ResponseFormatError reports a well-formed data frame whose payload does
// not follow the read-values layout. Marker names the first marker that
// was missing or out of order.
type ResponseFormatError struct {
	Marker  string
	Payload string
	Detail  string
}

func (e *ResponseFormatError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("invalid response format: %s after %q in %q", e.Detail, e.Marker, e.Payload)
	}
	return fmt.Sprintf("invalid response format: missing %q in %q", e.Marker, e.Payload)
}

func (*ResponseFormatError) Unwrap() error {
	return ErrResponseFormat
}

// ErrorType classifies transport errors
type ErrorType int

const (
	// ErrorTypeTransient means the next cycle may succeed
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent means the port is unusable
	ErrorTypePermanent
	// ErrorTypeTimeout means the device did not answer in time
	ErrorTypeTimeout
)

// TransportError wraps transport-level errors with the failing operation
// and port.
type TransportError struct {
	Err  error
	Op   string
	Port string
	Type ErrorType
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a transport error
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{Op: op, Port: port, Err: err, Type: errType}
}

// IsFatal returns true if the error means the serial port is gone and no
// further commands can succeed. Every other error only ends one cycle.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) && te.Type == ErrorTypePermanent {
		return true
	}

	if isDeviceGoneError(err) {
		return true
	}

	switch {
	case errors.Is(err, ErrTransportClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe):
		return true
	default:
		return false
	}
}

// Windows error codes seen when a USB serial adapter is unplugged.
const (
	errAccessDenied syscall.Errno = 5   // ERROR_ACCESS_DENIED
	errGenFailure   syscall.Errno = 31  // ERROR_GEN_FAILURE
	errNoSuchDevice syscall.Errno = 433 // ERROR_NO_SUCH_DEVICE
)

func isDeviceGoneError(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}

	//nolint:exhaustive // only device-gone errnos matter
	switch errno {
	case syscall.EIO, syscall.ENXIO, syscall.ENODEV:
		return true
	}

	if runtime.GOOS == "windows" {
		//nolint:exhaustive // only device-gone errnos matter
		switch errno {
		case errAccessDenied, errGenFailure, errNoSuchDevice:
			return true
		}
	}
	return false
}

// =============================================================================
// Wire Trace
// =============================================================================
// A session records every byte it writes and reads during a cycle. When the
// cycle fails the trace travels with the error so the shell can show what
// was actually on the line.

// TraceDirection indicates the direction of wire data
type TraceDirection string

const (
	// TraceTX is data sent to the dispenser
	TraceTX TraceDirection = "TX"
	// TraceRX is data received from the dispenser
	TraceRX TraceDirection = "RX"
)

// TraceEntry is a single write or read on the wire
type TraceEntry struct {
	Timestamp time.Time
	Direction TraceDirection
	Note      string
	Data      []byte
}

// String formats a trace entry for display
func (e TraceEntry) String() string {
	hexData := formatHexBytes(e.Data)
	if e.Note != "" {
		return fmt.Sprintf("[%s] %s: %s (%s)", e.Timestamp.Format("15:04:05.000"), e.Direction, hexData, e.Note)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Timestamp.Format("15:04:05.000"), e.Direction, hexData)
}

// TraceableError carries the wire trace of the cycle that failed.
//
//	var te *ultimus.TraceableError
//	if errors.As(err, &te) {
//	    fmt.Print(te.FormatTrace())
//	}
type TraceableError struct {
	Err     error
	Port    string
	Command string
	Trace   []TraceEntry
}

func (e *TraceableError) Error() string {
	return e.Err.Error()
}

func (e *TraceableError) Unwrap() error {
	return e.Err
}

// FormatTrace renders the trace one line per entry, > for TX and < for RX.
func (e *TraceableError) FormatTrace() string {
	if len(e.Trace) == 0 {
		return fmt.Sprintf("[%s %q] (no trace data)", e.Port, e.Command)
	}

	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "[%s %q] wire trace (%d entries):\n", e.Port, e.Command, len(e.Trace))
	for _, entry := range e.Trace {
		direction := ">"
		if entry.Direction == TraceRX {
			direction = "<"
		}
		if entry.Note != "" {
			_, _ = fmt.Fprintf(&sb, "  %s %s (%s)\n", direction, formatHexBytes(entry.Data), entry.Note)
		} else {
			_, _ = fmt.Fprintf(&sb, "  %s %s\n", direction, formatHexBytes(entry.Data))
		}
	}
	return sb.String()
}

// formatHexBytes formats a byte slice as space-separated hex values
func formatHexBytes(data []byte) string {
	if len(data) == 0 {
		return "(empty)"
	}
	limit := min(len(data), 32)
	parts := make([]string, limit)
	for i := range limit {
		parts[i] = fmt.Sprintf("%02X", data[i])
	}
	if len(data) > limit {
		return strings.Join(parts, " ") + fmt.Sprintf(" ... (%d bytes total)", len(data))
	}
	return strings.Join(parts, " ")
}

// TraceBuffer collects trace entries for one cycle, keeping at most maxSize
// of the most recent ones.
type TraceBuffer struct {
	port    string
	command string
	entries []TraceEntry
	maxSize int
}

// NewTraceBuffer creates a trace buffer with the given capacity
func NewTraceBuffer(port string, maxSize int) *TraceBuffer {
	if maxSize <= 0 {
		maxSize = 16
	}
	return &TraceBuffer{
		entries: make([]TraceEntry, 0, maxSize),
		maxSize: maxSize,
		port:    port,
	}
}

// Reset clears the buffer and labels it with the command about to run
func (tb *TraceBuffer) Reset(command string) {
	tb.entries = tb.entries[:0]
	tb.command = command
}

// RecordTX records bytes written to the dispenser
func (tb *TraceBuffer) RecordTX(data []byte, note string) {
	tb.record(TraceTX, data, note)
}

// RecordRX records bytes read from the dispenser
func (tb *TraceBuffer) RecordRX(data []byte, note string) {
	tb.record(TraceRX, data, note)
}

// RecordTimeout records a read that returned nothing
func (tb *TraceBuffer) RecordTimeout(note string) {
	tb.record(TraceRX, nil, "TIMEOUT: "+note)
}

func (tb *TraceBuffer) record(dir TraceDirection, data []byte, note string) {
	entry := TraceEntry{
		Direction: dir,
		Data:      append([]byte(nil), data...),
		Timestamp: time.Now(),
		Note:      note,
	}

	if len(tb.entries) >= tb.maxSize {
		copy(tb.entries, tb.entries[1:])
		tb.entries[len(tb.entries)-1] = entry
		return
	}
	tb.entries = append(tb.entries, entry)
}

// Entries returns a copy of the recorded entries
func (tb *TraceBuffer) Entries() []TraceEntry {
	return append([]TraceEntry(nil), tb.entries...)
}

// WrapError attaches the collected trace to err. Returns nil if err is nil.
func (tb *TraceBuffer) WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &TraceableError{
		Err:     err,
		Trace:   tb.Entries(),
		Port:    tb.port,
		Command: tb.command,
	}
}

// GetTrace extracts trace data from an error, returning nil if not present
func GetTrace(err error) *TraceableError {
	var te *TraceableError
	if errors.As(err, &te) {
		return te
	}
	return nil
}
