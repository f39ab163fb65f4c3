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

import "sync"

// BufferPool hands out scratch buffers for transport reads so a session
// cycle does not allocate on every response.
type BufferPool struct {
	// Single bytes for handshake reads
	smallPool sync.Pool
	// Whole frames: the largest payload plus framing overhead
	framePool sync.Pool
}

const (
	SmallBufferSize = 16
	FrameBufferSize = MaxPayloadLength + Overhead
)

var defaultPool = NewBufferPool()

// NewBufferPool creates a pool with one class per buffer size.
func NewBufferPool() *BufferPool {
	return &BufferPool{
		smallPool: sync.Pool{
			New: func() any {
				buf := make([]byte, SmallBufferSize)
				return &buf
			},
		},
		framePool: sync.Pool{
			New: func() any {
				buf := make([]byte, FrameBufferSize)
				return &buf
			},
		},
	}
}

// GetBuffer returns a buffer of exactly size bytes.
func (p *BufferPool) GetBuffer(size int) []byte {
	switch {
	case size <= SmallBufferSize:
		bufPtr, ok := p.smallPool.Get().(*[]byte)
		if !ok {
			return make([]byte, size)
		}
		return (*bufPtr)[:size]
	case size <= FrameBufferSize:
		bufPtr, ok := p.framePool.Get().(*[]byte)
		if !ok {
			return make([]byte, size)
		}
		return (*bufPtr)[:size]
	default:
		// oversized requests bypass the pool
		return make([]byte, size)
	}
}

// PutBuffer returns a buffer obtained from GetBuffer.
func (p *BufferPool) PutBuffer(buf []byte) {
	if buf == nil {
		return
	}
	clear(buf[:cap(buf)])

	switch cap(buf) {
	case SmallBufferSize:
		full := buf[:SmallBufferSize]
		p.smallPool.Put(&full)
	case FrameBufferSize:
		full := buf[:FrameBufferSize]
		p.framePool.Put(&full)
	}
}

// GetBuffer takes a buffer from the package-level pool.
func GetBuffer(size int) []byte {
	return defaultPool.GetBuffer(size)
}

// PutBuffer returns a buffer to the package-level pool.
func PutBuffer(buf []byte) {
	defaultPool.PutBuffer(buf)
}
