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


// Command dispenser drives an Ultimus V fluid dispenser over RS-232, either
// interactively or with a single command given as arguments.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZaparooProject/go-ultimus"
	"github.com/ZaparooProject/go-ultimus/detection"
	_ "github.com/ZaparooProject/go-ultimus/detection/uart"
	"github.com/ZaparooProject/go-ultimus/internal/config"
	"github.com/ZaparooProject/go-ultimus/internal/metrics"
	"github.com/ZaparooProject/go-ultimus/internal/simulator"
	"github.com/ZaparooProject/go-ultimus/transport/uart"
	"github.com/sirupsen/logrus"
)

type options struct {
	configPath string
	devicePath string
	metrics    string
	simulate   bool
	debug      bool
}

// Package-level flag variables
var (
	flagConfigPath string
	flagDevicePath string
	flagMetrics    string
	flagSimulate   bool
	flagDebug      bool
)

func init() {
	flag.StringVar(&flagConfigPath, "config", "", "Path to YAML config file")
	flag.StringVar(&flagDevicePath, "device", "", "Serial port (auto-detect if empty)")
	flag.StringVar(&flagMetrics, "metrics", "", "Serve Prometheus metrics on host:port")
	flag.BoolVar(&flagSimulate, "simulate", false, "Talk to a simulated dispenser instead of a serial port")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output and wire traces")
}

func parseOptions() *options {
	return &options{
		configPath: flagConfigPath,
		devicePath: flagDevicePath,
		metrics:    flagMetrics,
		simulate:   flagSimulate,
		debug:      flagDebug,
	}
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(opts *options) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if opts.devicePath != "" {
		cfg.Serial.Port = opts.devicePath
	}
	if opts.simulate {
		cfg.Simulate = true
	}
	if opts.metrics != "" {
		cfg.Metrics.Listen = opts.metrics
	}
	if opts.debug {
		cfg.Log.Level = "debug"
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	config.Normalize(cfg)
	return cfg, nil
}

func newLogger(cfg config.LogConfig) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(level)
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	}
	return log, nil
}

// openUARTFn is replaced in tests.
var openUARTFn = func(path string, cfg uart.Config) (ultimus.Transport, error) {
	transport, err := uart.NewWithConfig(path, cfg)
	if err != nil {
		return nil, err
	}
	return transport, nil
}

// detectFn is replaced in tests.
var detectFn = detection.DetectFirst

// openTransport returns the simulator, the configured port, or the first
// port that acknowledges an ENQ, in that order of preference.
func openTransport(ctx context.Context, cfg *config.Config, log *logrus.Logger) (ultimus.Transport, error) {
	if cfg.Simulate {
		log.Info("running in simulation mode")
		return simulator.NewTransport(simulator.NewDispenser()), nil
	}

	path := cfg.Serial.Port
	if path == "" {
		log.Info("auto-detecting dispenser...")
		opts := cfg.DetectionOptions()
		device, err := detectFn(ctx, &opts)
		if err != nil {
			return nil, fmt.Errorf("failed to find a dispenser: %w", err)
		}
		log.Infof("found %s", device)
		path = device.Path
	}

	transport, err := openUARTFn(path, cfg.UARTConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	log.Infof("connected to %s", path)
	return transport, nil
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger, args []string) error {
	if cfg.Log.SessionDir != "" {
		path, err := ultimus.InitSessionLog(cfg.Log.SessionDir)
		if err != nil {
			log.Warnf("session log disabled: %v", err)
		} else {
			defer ultimus.CloseSessionLog()
			log.Infof("session log: %s", path)
		}
	}

	if cfg.Metrics.Listen != "" {
		srv, err := metrics.Serve(cfg.Metrics.Listen, log)
		if err != nil {
			return err
		}
		defer shutdownMetrics(srv, log)
	}

	transport, err := openTransport(ctx, cfg, log)
	if err != nil {
		return err
	}

	device, err := ultimus.New(transport, cfg.DeviceOptions()...)
	if err != nil {
		_ = transport.Close()
		return fmt.Errorf("failed to create device: %w", err)
	}
	defer func() {
		if err := device.Close(); err != nil {
			log.Warnf("failed to close device: %v", err)
		}
	}()

	sh := newShell(device, os.Stdout, log.IsLevelEnabled(logrus.DebugLevel))
	if len(args) > 0 {
		return sh.runOnce(ctx, args)
	}
	return sh.interactive(ctx, cfg.Shell.HistoryFile)
}

func shutdownMetrics(srv *http.Server, log *logrus.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warnf("metrics shutdown: %v", err)
	}
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode(flag.Args()))
}

func mainWithExitCode(args []string) int {
	opts := parseOptions()

	cfg, err := loadConfig(opts)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 2
	}

	log, err := newLogger(cfg.Log)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	ultimus.SetLogger(log)
	if opts.debug {
		ultimus.SetDebugEnabled(true)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		_, _ = fmt.Print("\nShutting down gracefully...\n")
		cancel()
	}()

	if err := run(ctx, cfg, log, args); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
