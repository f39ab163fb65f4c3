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


package uart

import (
	"runtime"
	"testing"
	"time"

	"github.com/ZaparooProject/go-ultimus/internal/simulator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultReadTimeout(t *testing.T) {
	t.Parallel()

	want := 100 * time.Millisecond
	if runtime.GOOS == "windows" {
		want = 200 * time.Millisecond
	}
	assert.Equal(t, want, defaultReadTimeout())

	port := NewMockSerialPort(simulator.NewDispenser())
	tr := newTestTransport(t, port)
	assert.Equal(t, want, tr.readTimeout)
	assert.Equal(t, want, port.readTimeout)
}

func TestTransport_ReadTimeoutFollowsCaller(t *testing.T) {
	t.Parallel()

	port := NewMockSerialPort(simulator.NewDispenser())
	tr := newTestTransport(t, port)

	data, err := tr.Read(16, 250*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, data)
	assert.Equal(t, 250*time.Millisecond, port.readTimeout)

	// zero keeps the current timeout
	_, err = tr.Read(16, 0)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, port.readTimeout)

	data, err = tr.Read(0, time.Second)
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.Equal(t, 250*time.Millisecond, port.readTimeout)
}

func TestTransport_ZeroValueIsClosed(t *testing.T) {
	t.Parallel()

	tr := &Transport{portName: "COM1"}

	require.ErrorIs(t, tr.Write([]byte{0x05}), ErrClosed)
	_, err := tr.Read(1, time.Millisecond)
	require.ErrorIs(t, err, ErrClosed)
	require.NoError(t, tr.Close())
	assert.Equal(t, "COM1", tr.PortName())
}

func TestNewWithConfig_MissingPort(t *testing.T) {
	t.Parallel()

	_, err := NewWithConfig("/dev/does-not-exist-ultimus", Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/dev/does-not-exist-ultimus")
}
