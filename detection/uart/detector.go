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


// Package uart detects dispensers attached to serial ports. Importing it
// registers the detector with the detection package.
package uart

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZaparooProject/go-ultimus"
	"github.com/ZaparooProject/go-ultimus/detection"
	"github.com/ZaparooProject/go-ultimus/transport/uart"
	"go.bug.st/serial/enumerator"
)

// listPortsFn and probeDeviceFn are replaced in tests.
var (
	listPortsFn   = enumerator.GetDetailedPortsList
	probeDeviceFn = probeDevice
)

// detector implements the Detector interface for serial ports.
type detector struct{}

// New creates a new serial port detector
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "uart"
}

// Detect lists serial ports and, in Probe mode, keeps only those that
// acknowledge an ENQ.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := enumeratePorts()
	if err != nil {
		return nil, err
	}

	filtered := filterPorts(ports, opts)
	var devices []detection.DeviceInfo
	for i := range filtered {
		if ctx.Err() != nil {
			break
		}
		if device, ok := d.processPort(ctx, &filtered[i], opts); ok {
			devices = append(devices, device)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// serialPort is the subset of the enumerator's port details detection uses.
type serialPort struct {
	Path         string
	Name         string
	VIDPID       string
	Product      string
	SerialNumber string
	IsUSB        bool
}

func enumeratePorts() ([]serialPort, error) {
	details, err := listPortsFn()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	if len(details) == 0 {
		return nil, detection.ErrNoDevicesFound
	}

	ports := make([]serialPort, 0, len(details))
	for _, pd := range details {
		if pd == nil || pd.Name == "" {
			continue
		}
		port := serialPort{
			Path:  pd.Name,
			Name:  pd.Name,
			IsUSB: pd.IsUSB,
		}
		if pd.IsUSB {
			port.VIDPID = detection.FormatVIDPID(pd.VID, pd.PID)
			port.Product = pd.Product
			port.SerialNumber = pd.SerialNumber
			if pd.Product != "" {
				port.Name = pd.Product
			}
		}
		ports = append(ports, port)
	}
	return ports, nil
}

// filterPorts removes blocked and ignored ports
func filterPorts(ports []serialPort, opts *detection.Options) []serialPort {
	var filtered []serialPort
	for _, port := range ports {
		if port.VIDPID != "" && detection.IsBlocked(port.VIDPID, opts.Blocklist) {
			continue
		}
		if detection.IsPathIgnored(port.Path, opts.IgnorePaths) {
			continue
		}
		filtered = append(filtered, port)
	}
	return filtered
}

// processPort decides whether a single port is a candidate
func (*detector) processPort(ctx context.Context, port *serialPort,
	opts *detection.Options,
) (detection.DeviceInfo, bool) {
	device := createDeviceInfo(port)

	if opts.Mode == detection.Passive {
		// without probing only adapters we recognise are worth offering
		return device, device.Confidence >= detection.Medium
	}

	probeCtx := ctx
	if opts.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, opts.ProbeTimeout)
		defer cancel()
	}
	if err := probeDeviceFn(probeCtx, port.Path, opts); err != nil {
		ultimus.Debugf("detection: %s did not acknowledge: %v", port.Path, err)
		return detection.DeviceInfo{}, false
	}
	device.Confidence = detection.High
	return device, true
}

func createDeviceInfo(port *serialPort) detection.DeviceInfo {
	device := detection.DeviceInfo{
		Transport:  "uart",
		Path:       port.Path,
		Name:       port.Name,
		Confidence: detection.Low,
		Metadata:   make(map[string]string),
	}
	if isLikelyAdapter(port) {
		device.Confidence = detection.Medium
	}
	if port.VIDPID != "" {
		device.Metadata["vidpid"] = port.VIDPID
	}
	if port.Product != "" {
		device.Metadata["product"] = port.Product
	}
	if port.SerialNumber != "" {
		device.Metadata["serial"] = port.SerialNumber
	}
	return device
}

// isLikelyAdapter reports whether the port is a USB to RS-232 adapter of a
// kind commonly used with bench dispensers.
func isLikelyAdapter(port *serialPort) bool {
	knownAdapters := []string{
		"0403:6001", // FTDI FT232R
		"0403:6015", // FTDI FT231X
		"067B:2303", // Prolific PL2303
		"10C4:EA60", // Silicon Labs CP210x
		"1A86:7523", // QinHeng CH340
	}
	for _, known := range knownAdapters {
		if port.VIDPID == known {
			return true
		}
	}

	lowerProduct := strings.ToLower(port.Product)
	for _, keyword := range []string{"rs232", "rs-232", "serial", "uart"} {
		if strings.Contains(lowerProduct, keyword) {
			return true
		}
	}
	return false
}

// probeDevice opens the port once and performs a single ENQ/ACK handshake.
// There is no retry: a port that is not a dispenser should see as little
// traffic as possible.
func probeDevice(ctx context.Context, path string, opts *detection.Options) error {
	cfg := uart.DefaultConfig()
	cfg.OpenDelay = opts.OpenDelay
	transport, err := uart.NewWithConfig(path, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = transport.Close() }()

	session := ultimus.NewSession(transport, nil)
	return session.Ping(ctx)
}
