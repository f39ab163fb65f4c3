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


package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ZaparooProject/go-ultimus"
	"github.com/ZaparooProject/go-ultimus/detection"
	"github.com/ZaparooProject/go-ultimus/internal/config"
	"github.com/ZaparooProject/go-ultimus/internal/simulator"
	"github.com/ZaparooProject/go-ultimus/transport/uart"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestShell(t *testing.T) (*shell, *simulator.Dispenser, *bytes.Buffer) {
	t.Helper()

	sim := simulator.NewDispenser()
	sessionCfg := ultimus.DefaultSessionConfig()
	sessionCfg.SettleDelay = 0

	device, err := ultimus.New(simulator.NewTransport(sim), ultimus.WithSessionConfig(sessionCfg))
	require.NoError(t, err)
	t.Cleanup(func() { _ = device.Close() })

	var out bytes.Buffer
	return newShell(device, &out, true), sim, &out
}

func TestDispatch_Operations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		line   string
		want   simulator.Received
		output string
	}{
		{name: "start", line: "start", want: simulator.Received{Code: "DI  "}, output: "start: success"},
		{name: "stop shares start code", line: "stop", want: simulator.Received{Code: "DI  "}, output: "stop: success"},
		{name: "pressure", line: "pressure 50", want: simulator.Received{Code: "PS  ", Data: "0500"}},
		{name: "vacuum", line: "vacuum 2.5", want: simulator.Received{Code: "VS  ", Data: "0025"}},
		{name: "short time", line: "time 0.5", want: simulator.Received{Code: "DS  ", Data: "T5000"}},
		{name: "long time", line: "time 1.5", want: simulator.Received{Code: "DS  ", Data: "T15000"}},
		{name: "pressure units", line: "set_pressure_units BAR", want: simulator.Received{Code: "E6  ", Data: "01"}},
		{name: "vacuum units", line: "set_vacuum_units torr", want: simulator.Received{Code: "E7  ", Data: "04"}},
		{name: "read default location", line: "read_values", want: simulator.Received{Code: "E8", Data: "000"}},
		{name: "read location", line: "READ_VALUES 12", want: simulator.Received{Code: "E8", Data: "012"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sh, sim, out := newTestShell(t)

			quit, err := sh.dispatch(context.Background(), tt.line)
			require.NoError(t, err)
			assert.False(t, quit)
			assert.Equal(t, []simulator.Received{tt.want}, sim.Commands())
			assert.Contains(t, out.String(), "ms)")
			if tt.output != "" {
				assert.Contains(t, out.String(), tt.output)
			}
		})
	}
}

func TestDispatch_ReadValuesPrintsMemory(t *testing.T) {
	t.Parallel()
	sh, sim, out := newTestShell(t)
	sim.SetMemory(3, simulator.Memory{Pressure: 500, Time: 5000, Vacuum: 25})

	_, err := sh.dispatch(context.Background(), "read_values 3")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "location 3: pressure=50.0 psi time=0.5000 s vacuum=2.5 inH2O")
}

func TestDispatch_ToggleAndMode(t *testing.T) {
	t.Parallel()
	sh, _, out := newTestShell(t)

	_, err := sh.dispatch(context.Background(), "mode")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "mode: timed")

	out.Reset()
	_, err = sh.dispatch(context.Background(), "toggle_mode")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "mode: steady")

	out.Reset()
	_, err = sh.dispatch(context.Background(), "mode")
	require.NoError(t, err)
	assert.Equal(t, "mode: steady\n", out.String())
}

func TestDispatch_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wantIs  error
		name    string
		line    string
		wantMsg string
	}{
		{name: "not a number", line: "pressure abc", wantMsg: "not a number"},
		{name: "out of range", line: "pressure 150", wantIs: ultimus.ErrInvalidValue},
		{name: "bad location", line: "read_values x", wantMsg: "not an integer"},
		{name: "location out of range", line: "read_values 400", wantIs: ultimus.ErrInvalidValue},
		{name: "unknown unit", line: "set_pressure_units furlongs", wantIs: ultimus.ErrUnknownUnit},
		{name: "unknown command", line: "bogus", wantMsg: "unknown command"},
		{name: "too many args", line: "start now", wantIs: errUsage},
		{name: "missing arg", line: "vacuum", wantIs: errUsage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sh, sim, _ := newTestShell(t)

			_, err := sh.dispatch(context.Background(), tt.line)
			require.Error(t, err)
			if tt.wantIs != nil {
				require.ErrorIs(t, err, tt.wantIs)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
			assert.Empty(t, sim.Commands(), "invalid input must not reach the wire")
		})
	}
}

func TestDispatch_RejectedCommand(t *testing.T) {
	t.Parallel()
	sh, sim, out := newTestShell(t)
	sim.Reject("PS")

	_, err := sh.dispatch(context.Background(), "pressure 10")
	require.ErrorIs(t, err, ultimus.ErrCommandRejected)
	assert.Contains(t, out.String(), "pressure: failure")
}

func TestDispatch_BuiltIns(t *testing.T) {
	t.Parallel()
	sh, _, out := newTestShell(t)

	for _, line := range []string{"exit", "QUIT"} {
		quit, err := sh.dispatch(context.Background(), line)
		require.NoError(t, err)
		assert.True(t, quit, line)
	}

	quit, err := sh.dispatch(context.Background(), "   ")
	require.NoError(t, err)
	assert.False(t, quit)

	_, err = sh.dispatch(context.Background(), "help")
	require.NoError(t, err)
	for name := range cliCommands {
		assert.Contains(t, out.String(), name)
	}
	assert.Contains(t, out.String(), "exit | quit")
}

func TestRunOnce_PrintsTraceOnFailure(t *testing.T) {
	t.Parallel()
	sh, sim, out := newTestShell(t)
	sim.DropAck(true)

	err := sh.runOnce(context.Background(), []string{"start"})
	require.ErrorIs(t, err, ultimus.ErrNoAck)
	assert.Contains(t, out.String(), "error:")
	assert.Contains(t, out.String(), "wire trace")

	sh.trace = false
	out.Reset()
	err = sh.runOnce(context.Background(), []string{"start"})
	require.Error(t, err)
	assert.NotContains(t, out.String(), "wire trace")
}

func TestComplete(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"set_pressure_units", "set_vacuum_units", "start", "stop"}, complete("s"))
	assert.Equal(t, []string{"exit"}, complete("ex"))
	assert.Equal(t, []string{"set_vacuum_units mmhg"}, complete("set_vacuum_units m"))
	assert.Equal(t, []string{"set_pressure_units psi"}, complete("SET_PRESSURE_UNITS P"))
	assert.Empty(t, complete("pressure 1"))
	assert.Empty(t, complete("zzz"))
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ultimus.yaml")
	require.NoError(t, os.WriteFile(path, []byte("serial:\n  port: /dev/ttyUSB0\nlog:\n  level: warn\n"), 0o600))

	cfg, err := loadConfig(&options{configPath: path})
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	assert.Equal(t, "warn", cfg.Log.Level)

	cfg, err = loadConfig(&options{
		configPath: path,
		devicePath: "COM4",
		metrics:    "127.0.0.1:9464",
		simulate:   true,
		debug:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, "COM4", cfg.Serial.Port)
	assert.Equal(t, "127.0.0.1:9464", cfg.Metrics.Listen)
	assert.True(t, cfg.Simulate)
	assert.Equal(t, "debug", cfg.Log.Level)

	_, err = loadConfig(&options{metrics: "no-port"})
	require.Error(t, err)

	_, err = loadConfig(&options{configPath: filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	log, err := newLogger(config.LogConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)

	log, err = newLogger(config.LogConfig{Level: "info", Format: "text"})
	require.NoError(t, err)
	assert.IsType(t, &logrus.TextFormatter{}, log.Formatter)

	_, err = newLogger(config.LogConfig{Level: "loud"})
	require.Error(t, err)
}

//nolint:paralleltest // Replaces package-level detectFn and openUARTFn
func TestOpenTransport(t *testing.T) {
	origDetect, origOpen := detectFn, openUARTFn
	t.Cleanup(func() { detectFn, openUARTFn = origDetect, origOpen })

	var opened string
	openUARTFn = func(path string, cfg uart.Config) (ultimus.Transport, error) {
		opened = path
		assert.Equal(t, 2*time.Second, cfg.OpenDelay)
		return ultimus.NewMockTransport(), nil
	}
	detectFn = func(_ context.Context, opts *detection.Options) (detection.DeviceInfo, error) {
		assert.Equal(t, []string{"/dev/ttyS0"}, opts.IgnorePaths)
		return detection.DeviceInfo{Transport: "uart", Path: "/dev/ttyUSB3", Confidence: detection.High}, nil
	}

	log, hook := test.NewNullLogger()
	cfg := config.Default()
	cfg.Serial.OpenDelay = 2 * time.Second
	cfg.Serial.IgnorePaths = []string{"/dev/ttyS0"}

	// auto-detect
	transport, err := openTransport(context.Background(), cfg, log)
	require.NoError(t, err)
	require.NotNil(t, transport)
	assert.Equal(t, "/dev/ttyUSB3", opened)
	assert.Equal(t, "connected to /dev/ttyUSB3", hook.LastEntry().Message)

	// configured port skips detection
	detectFn = func(context.Context, *detection.Options) (detection.DeviceInfo, error) {
		t.Fatal("detection must not run when a port is configured")
		return detection.DeviceInfo{}, nil
	}
	cfg.Serial.Port = "COM7"
	_, err = openTransport(context.Background(), cfg, log)
	require.NoError(t, err)
	assert.Equal(t, "COM7", opened)

	// simulation needs neither
	cfg.Simulate = true
	transport, err = openTransport(context.Background(), cfg, log)
	require.NoError(t, err)
	assert.IsType(t, &simulator.Transport{}, transport)

	// failures are wrapped
	cfg.Simulate = false
	openUARTFn = func(string, uart.Config) (ultimus.Transport, error) {
		return nil, errors.New("permission denied")
	}
	_, err = openTransport(context.Background(), cfg, log)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open COM7")

	cfg.Serial.Port = ""
	detectFn = func(context.Context, *detection.Options) (detection.DeviceInfo, error) {
		return detection.DeviceInfo{}, detection.ErrNoDevicesFound
	}
	_, err = openTransport(context.Background(), cfg, log)
	require.ErrorIs(t, err, detection.ErrNoDevicesFound)
}

//nolint:paralleltest // Uses the package-level session log
func TestRun_OneShotAgainstSimulator(t *testing.T) {
	log, _ := test.NewNullLogger()
	cfg := config.Default()
	cfg.Simulate = true
	cfg.Session.SettleDelay = 0
	cfg.Metrics.Listen = "127.0.0.1:0"
	cfg.Log.SessionDir = t.TempDir()

	require.NoError(t, run(context.Background(), cfg, log, []string{"pressure", "25.5"}))

	err := run(context.Background(), cfg, log, []string{"pressure", "250"})
	require.ErrorIs(t, err, ultimus.ErrInvalidValue)

	entries, err := os.ReadDir(cfg.Log.SessionDir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}
