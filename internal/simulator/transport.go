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
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ZaparooProject/go-ultimus/internal/syncutil"
)

// ErrClosed is returned by a closed Transport
var ErrClosed = errors.New("simulator transport closed")

// Transport adapts an io.ReadWriter, usually a Dispenser or a Jittery
// wrapper around one, to the session's byte-stream transport. Reads never
// block: when nothing is queued they return immediately with no data,
// which the session treats as a timeout.
type Transport struct {
	rw     io.ReadWriter
	name   string
	mu     syncutil.Mutex
	closed bool
}

// NewTransport wraps rw.
func NewTransport(rw io.ReadWriter) *Transport {
	return &Transport{rw: rw, name: "simulator"}
}

// Write sends all of data to the simulated device.
func (t *Transport) Write(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	n, err := t.rw.Write(data)
	if err != nil {
		return fmt.Errorf("simulator write: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("simulator write: short write %d of %d", n, len(data))
	}
	return nil
}

// Read returns up to maxBytes queued bytes. The timeout is ignored.
func (t *Transport) Read(maxBytes int, _ time.Duration) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrClosed
	}
	if maxBytes <= 0 {
		return nil, nil
	}
	buf := make([]byte, maxBytes)
	n, err := t.rw.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("simulator read: %w", err)
	}
	return buf[:n], nil
}

// Close marks the transport closed.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

// PortName names the transport in logs and wire traces.
func (t *Transport) PortName() string {
	return t.name
}
