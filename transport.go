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
	"time"

	"github.com/ZaparooProject/go-ultimus/internal/syncutil"
)

// Transport is the byte-stream boundary to the dispenser. Implementations
// own port discovery and line configuration (115200 baud, 8N1); the session
// only writes bytes and reads what comes back.
//
// The serial line is half duplex: a Transport is used by one session cycle
// at a time and does not need to be safe for concurrent use.
type Transport interface {
	// Write sends all of data to the device.
	Write(data []byte) error

	// Read returns at most maxBytes bytes, waiting no longer than timeout.
	// An empty result with a nil error means the timeout elapsed.
	Read(maxBytes int, timeout time.Duration) ([]byte, error)

	// Close releases the underlying port.
	Close() error
}

// PortNamer is implemented by transports that can name their port for
// logs and wire traces.
type PortNamer interface {
	PortName() string
}

func portName(t Transport) string {
	if n, ok := t.(PortNamer); ok {
		return n.PortName()
	}
	return "unknown"
}

// MockTransport is a scripted Transport for tests. Each queued chunk is
// returned by one Read call; an empty queue behaves like a read timeout.
type MockTransport struct {
	writeErr error
	readErr  error
	reads    [][]byte
	writes   [][]byte
	mu       syncutil.Mutex
	closed   bool
}

// NewMockTransport creates an empty mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// Write implements Transport
func (m *MockTransport) Write(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrTransportClosed
	}
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writes = append(m.writes, append([]byte(nil), data...))
	return nil
}

// Read implements Transport
func (m *MockTransport) Read(maxBytes int, _ time.Duration) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrTransportClosed
	}
	if m.readErr != nil {
		return nil, m.readErr
	}
	if len(m.reads) == 0 {
		return nil, nil
	}

	chunk := m.reads[0]
	if len(chunk) > maxBytes {
		m.reads[0] = chunk[maxBytes:]
		return append([]byte(nil), chunk[:maxBytes]...), nil
	}
	m.reads = m.reads[1:]
	return chunk, nil
}

// Close implements Transport
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// PortName implements PortNamer
func (*MockTransport) PortName() string {
	return "mock"
}

// QueueRead appends chunks to be returned by successive Read calls. A nil
// or empty chunk produces one timed-out read.
func (m *MockTransport) QueueRead(chunks ...[]byte) {
	m.mu.Lock()
	for _, c := range chunks {
		m.reads = append(m.reads, append([]byte(nil), c...))
	}
	m.mu.Unlock()
}

// SetWriteError makes every Write fail with err
func (m *MockTransport) SetWriteError(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

// SetReadError makes every Read fail with err
func (m *MockTransport) SetReadError(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
}

// Writes returns each Write call's bytes in order
func (m *MockTransport) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.writes))
	copy(out, m.writes)
	return out
}

// Written returns all written bytes concatenated
func (m *MockTransport) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []byte
	for _, w := range m.writes {
		out = append(out, w...)
	}
	return out
}
