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


// Package config loads the dispenser command's YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ZaparooProject/go-ultimus"
	"github.com/ZaparooProject/go-ultimus/detection"
	"github.com/ZaparooProject/go-ultimus/transport/uart"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Serial   SerialConfig  `yaml:"serial"`
	Log      LogConfig     `yaml:"log"`
	Metrics  MetricsConfig `yaml:"metrics"`
	Shell    ShellConfig   `yaml:"shell"`
	Session  SessionConfig `yaml:"session"`
	Device   DeviceConfig  `yaml:"device"`
	Simulate bool          `yaml:"simulate"`
}

// ---- SERIAL ----

type SerialConfig struct {
	// Port is used as-is when set; detection runs only when it is empty
	Port        string        `yaml:"port"`
	DetectMode  string        `yaml:"detect_mode"` // passive | probe
	IgnorePaths []string      `yaml:"ignore_paths"`
	OpenDelay   time.Duration `yaml:"open_delay"`
	BaudRate    int           `yaml:"baud_rate"`
	AutoDetect  bool          `yaml:"auto_detect"`
}

// ---- SESSION ----

type SessionConfig struct {
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	ResponseTimeout  time.Duration `yaml:"response_timeout"`
	SettleDelay      time.Duration `yaml:"settle_delay"`
	ReadBufferSize   int           `yaml:"read_buffer_size"`
	MaxResponseSize  int           `yaml:"max_response_size"`
	AlwaysSendEOT    bool          `yaml:"always_send_eot"`
}

// ---- DEVICE ----

type DeviceConfig struct {
	// DistinctStopCode sends DO instead of DI for stop
	DistinctStopCode bool `yaml:"distinct_stop_code"`
}

// ---- LOG ----

type LogConfig struct {
	Level  string `yaml:"level"`  // logrus level name
	Format string `yaml:"format"` // text | json
	// SessionDir receives a per-run session log when set
	SessionDir string `yaml:"session_dir"`
}

// ---- METRICS ----

type MetricsConfig struct {
	// Listen is a host:port for the Prometheus endpoint; empty disables it
	Listen string `yaml:"listen"`
}

// ---- SHELL ----

type ShellConfig struct {
	HistoryFile string `yaml:"history_file"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	session := ultimus.DefaultSessionConfig()
	return &Config{
		Serial: SerialConfig{
			AutoDetect: true,
			DetectMode: detection.Probe.String(),
			BaudRate:   uart.BaudRate,
		},
		Session: SessionConfig{
			HandshakeTimeout: session.HandshakeTimeout,
			ResponseTimeout:  session.ResponseTimeout,
			SettleDelay:      session.SettleDelay,
			ReadBufferSize:   session.ReadBufferSize,
			MaxResponseSize:  session.MaxResponseSize,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Shell: ShellConfig{
			HistoryFile: "~/.ultimus_history",
		},
	}
}

// Load reads a YAML file over Default. Unknown keys are rejected. The
// result is validated and normalized.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML bytes over Default, then validates and normalizes.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	Normalize(cfg)
	return cfg, nil
}

// SessionOptions converts the session section for ultimus.NewSession.
func (c *Config) SessionOptions() *ultimus.SessionConfig {
	return &ultimus.SessionConfig{
		HandshakeTimeout: c.Session.HandshakeTimeout,
		ResponseTimeout:  c.Session.ResponseTimeout,
		SettleDelay:      c.Session.SettleDelay,
		ReadBufferSize:   c.Session.ReadBufferSize,
		MaxResponseSize:  c.Session.MaxResponseSize,
		AlwaysSendEOT:    c.Session.AlwaysSendEOT,
	}
}

// DeviceOptions returns the ultimus.New options the file asks for.
func (c *Config) DeviceOptions() []ultimus.Option {
	return []ultimus.Option{
		ultimus.WithSessionConfig(c.SessionOptions()),
		ultimus.WithDistinctStopCode(c.Device.DistinctStopCode),
	}
}

// UARTConfig returns the serial port settings.
func (c *Config) UARTConfig() uart.Config {
	return uart.Config{
		BaudRate:  c.Serial.BaudRate,
		OpenDelay: c.Serial.OpenDelay,
	}
}

// DetectionOptions returns port discovery settings. DetectMode must already
// be validated.
func (c *Config) DetectionOptions() detection.Options {
	opts := detection.DefaultOptions()
	opts.Mode, _ = detection.ParseMode(c.Serial.DetectMode)
	opts.IgnorePaths = append([]string(nil), c.Serial.IgnorePaths...)
	opts.OpenDelay = c.Serial.OpenDelay
	opts.ProbeTimeout = c.Serial.OpenDelay + time.Second
	return opts
}
