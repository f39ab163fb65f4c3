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

// Package uart implements the dispenser transport over an RS-232 serial
// port using go.bug.st/serial.
package uart

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/ZaparooProject/go-ultimus/internal/syncutil"
	"go.bug.st/serial"
)

// Line settings required by the dispenser
const (
	BaudRate = 115200
	DataBits = 8
)

// ErrClosed is returned after Close
var ErrClosed = errors.New("uart port closed")

// Config holds the port settings.
type Config struct {
	// OpenDelay is slept after opening; some controllers ignore the first
	// bytes after the line comes up
	OpenDelay time.Duration
	BaudRate  int
}

// DefaultConfig returns 115200 baud with no open delay.
func DefaultConfig() Config {
	return Config{BaudRate: BaudRate}
}

// Transport talks to the dispenser over a serial port.
type Transport struct {
	port        serial.Port
	portName    string
	readTimeout time.Duration
	mu          syncutil.Mutex
}

// New opens portName at 115200 8N1.
func New(portName string) (*Transport, error) {
	return NewWithConfig(portName, DefaultConfig())
}

// NewWithConfig opens portName with the given settings.
func NewWithConfig(portName string, cfg Config) (*Transport, error) {
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = BaudRate
	}

	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}

	t, err := newWithPort(port, portName)
	if err != nil {
		_ = port.Close()
		return nil, err
	}

	if cfg.OpenDelay > 0 {
		time.Sleep(cfg.OpenDelay)
	}
	return t, nil
}

func newWithPort(port serial.Port, name string) (*Transport, error) {
	t := &Transport{port: port, portName: name}
	if err := t.setReadTimeout(defaultReadTimeout()); err != nil {
		return nil, err
	}
	// discard anything left over from a previous session
	_ = port.ResetInputBuffer()
	return t, nil
}

// defaultReadTimeout is longer on Windows, where USB serial drivers
// deliver bytes later.
func defaultReadTimeout() time.Duration {
	if runtime.GOOS == "windows" {
		return 200 * time.Millisecond
	}
	return 100 * time.Millisecond
}

// Write sends all of data and waits for it to leave the output buffer.
func (t *Transport) Write(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return ErrClosed
	}

	written := 0
	for written < len(data) {
		n, err := t.port.Write(data[written:])
		if err != nil {
			return fmt.Errorf("UART write failed: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("UART write stalled after %d of %d bytes", written, len(data))
		}
		written += n
	}

	return t.drainWithRetry("write")
}

// Read returns up to maxBytes bytes, blocking no longer than timeout. A
// reply may be split across several reads; the session reassembles it.
func (t *Transport) Read(maxBytes int, timeout time.Duration) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil, ErrClosed
	}
	if maxBytes <= 0 {
		return nil, nil
	}
	if timeout > 0 && timeout != t.readTimeout {
		if err := t.setReadTimeout(timeout); err != nil {
			return nil, err
		}
	}

	buf := make([]byte, maxBytes)
	n, err := t.port.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("UART read failed: %w", err)
	}
	return buf[:n], nil
}

// Close closes the serial port.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	if err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// PortName returns the serial device path.
func (t *Transport) PortName() string {
	return t.portName
}

func (t *Transport) setReadTimeout(timeout time.Duration) error {
	if err := t.port.SetReadTimeout(timeout); err != nil {
		return fmt.Errorf("UART set timeout failed: %w", err)
	}
	t.readTimeout = timeout
	return nil
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry drains the output buffer, retrying interrupted system calls
func (t *Transport) drainWithRetry(operation string) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := range maxRetries {
		err := t.port.Drain()
		if err == nil {
			return nil
		}
		if isInterruptedSystemCall(err) && attempt < maxRetries-1 {
			time.Sleep(baseDelay * time.Duration(1<<attempt))
			continue
		}
		return fmt.Errorf("UART %s drain failed: %w", operation, err)
	}

	return fmt.Errorf("UART %s drain failed after %d retries", operation, maxRetries)
}
