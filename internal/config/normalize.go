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


package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ZaparooProject/go-ultimus"
	"github.com/ZaparooProject/go-ultimus/transport/uart"
)

// Normalize fills zero values with defaults and canonicalizes names. It is
// allowed to mutate cfg and must be called only after Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Serial.BaudRate == 0 {
		cfg.Serial.BaudRate = uart.BaudRate
	}
	cfg.Serial.DetectMode = strings.ToLower(cfg.Serial.DetectMode)
	if cfg.Serial.DetectMode == "" {
		cfg.Serial.DetectMode = "probe"
	}

	// settle_delay is left alone: zero is a legitimate setting
	s := &cfg.Session
	if s.HandshakeTimeout == 0 {
		s.HandshakeTimeout = ultimus.DefaultHandshakeTimeout
	}
	if s.ResponseTimeout == 0 {
		s.ResponseTimeout = ultimus.DefaultResponseTimeout
	}
	if s.ReadBufferSize == 0 {
		s.ReadBufferSize = ultimus.DefaultReadBufferSize
	}
	if s.MaxResponseSize == 0 {
		s.MaxResponseSize = max(ultimus.DefaultMaxResponseSize, s.ReadBufferSize)
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	cfg.Shell.HistoryFile = expandHome(cfg.Shell.HistoryFile)
	cfg.Log.SessionDir = expandHome(cfg.Log.SessionDir)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
