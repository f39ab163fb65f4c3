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
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/ZaparooProject/go-ultimus/detection"
	"github.com/sirupsen/logrus"
)

// Validate checks configuration correctness. It performs declarative
// validation only and does not mutate cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	var errs []error

	// ---- serial ----
	if _, err := detection.ParseMode(strings.ToLower(cfg.Serial.DetectMode)); err != nil {
		errs = append(errs, fmt.Errorf("serial.detect_mode: %w", err))
	}
	if cfg.Serial.BaudRate < 0 {
		errs = append(errs, fmt.Errorf("serial.baud_rate: must not be negative, got %d", cfg.Serial.BaudRate))
	}
	if cfg.Serial.OpenDelay < 0 {
		errs = append(errs, fmt.Errorf("serial.open_delay: must not be negative, got %s", cfg.Serial.OpenDelay))
	}
	if cfg.Serial.Port == "" && !cfg.Serial.AutoDetect && !cfg.Simulate {
		errs = append(errs, errors.New("serial: port is empty and auto_detect is disabled"))
	}

	// ---- session ----
	durations := []struct {
		name  string
		value int64
	}{
		{"session.handshake_timeout", int64(cfg.Session.HandshakeTimeout)},
		{"session.response_timeout", int64(cfg.Session.ResponseTimeout)},
		{"session.settle_delay", int64(cfg.Session.SettleDelay)},
	}
	for _, d := range durations {
		if d.value < 0 {
			errs = append(errs, fmt.Errorf("%s: must not be negative", d.name))
		}
	}
	if cfg.Session.ReadBufferSize < 0 {
		errs = append(errs, errors.New("session.read_buffer_size: must not be negative"))
	}
	if cfg.Session.MaxResponseSize < 0 {
		errs = append(errs, errors.New("session.max_response_size: must not be negative"))
	}
	if cfg.Session.ReadBufferSize > 0 && cfg.Session.MaxResponseSize > 0 &&
		cfg.Session.MaxResponseSize < cfg.Session.ReadBufferSize {
		errs = append(errs, fmt.Errorf(
			"session.max_response_size: %d is smaller than read_buffer_size %d",
			cfg.Session.MaxResponseSize,
			cfg.Session.ReadBufferSize,
		))
	}

	// ---- log ----
	if cfg.Log.Level != "" {
		if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
			errs = append(errs, fmt.Errorf("log.level: %w", err))
		}
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: want text or json, got %q", cfg.Log.Format))
	}

	// ---- metrics ----
	if cfg.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(cfg.Metrics.Listen); err != nil {
			errs = append(errs, fmt.Errorf("metrics.listen: %w", err))
		}
	}

	return errors.Join(errs...)
}
