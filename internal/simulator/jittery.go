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
	"fmt"
	"io"
	"math/rand/v2"
	"time"
)

// JitterConfig configures Jittery.
type JitterConfig struct {
	MaxLatency       time.Duration
	FragmentMinBytes int
	Seed             uint64
	FragmentReads    bool
}

// DefaultJitterConfig fragments reads without adding latency.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		FragmentReads:    true,
		FragmentMinBytes: 1,
	}
}

// Jittery wraps an io.ReadWriter to behave like a USB serial adapter:
// replies arrive in fragments of random size, optionally after a delay.
// Data read from the backend is buffered so fragmenting never drops bytes.
type Jittery struct {
	backend io.ReadWriter
	rng     *rand.Rand
	readBuf []byte
	config  JitterConfig
}

// NewJittery wraps backend.
func NewJittery(backend io.ReadWriter, config JitterConfig) *Jittery {
	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64() //nolint:gosec // test jitter, not crypto
	}
	if config.FragmentMinBytes < 1 {
		config.FragmentMinBytes = 1
	}
	return &Jittery{
		backend: backend,
		config:  config,
		rng:     rand.New(rand.NewPCG(seed, seed^0xDEADBEEF)), //nolint:gosec // test jitter, not crypto
		readBuf: make([]byte, 0, 1024),
	}
}

// Write passes through unchanged.
func (j *Jittery) Write(data []byte) (int, error) {
	n, err := j.backend.Write(data)
	if err != nil {
		return n, fmt.Errorf("jittery write: %w", err)
	}
	return n, nil
}

// Read returns a random-sized prefix of the buffered backend data.
func (j *Jittery) Read(buf []byte) (int, error) {
	if j.config.MaxLatency > 0 {
		if delay := time.Duration(j.rng.Int64N(int64(j.config.MaxLatency) + 1)); delay > 0 {
			time.Sleep(delay)
		}
	}

	if len(j.readBuf) == 0 {
		tmp := make([]byte, 1024)
		n, err := j.backend.Read(tmp)
		if err != nil {
			return 0, fmt.Errorf("jittery read: %w", err)
		}
		if n == 0 {
			return 0, nil
		}
		j.readBuf = append(j.readBuf, tmp[:n]...)
	}

	toReturn := min(len(j.readBuf), len(buf))
	if j.config.FragmentReads && toReturn > j.config.FragmentMinBytes {
		toReturn = j.config.FragmentMinBytes + j.rng.IntN(toReturn-j.config.FragmentMinBytes+1)
	}

	copy(buf, j.readBuf[:toReturn])
	j.readBuf = j.readBuf[toReturn:]
	return toReturn, nil
}

// Buffered returns the number of bytes read from the backend but not yet
// returned.
func (j *Jittery) Buffered() int {
	return len(j.readBuf)
}
