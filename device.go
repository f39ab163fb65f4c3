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

package ultimus

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-ultimus/internal/syncutil"
)

// ErrNilTransport is returned by New without a transport
var ErrNilTransport = errors.New("transport is nil")

// Mode is the dispenser's dispense mode.
type Mode int

const (
	// ModeTimed dispenses for the configured dispense time
	ModeTimed Mode = iota
	// ModeSteady dispenses for as long as the cycle is held
	ModeSteady
)

func (m Mode) String() string {
	if m == ModeSteady {
		return "steady"
	}
	return "timed"
}

// DeviceConfig contains configuration options for the Device
type DeviceConfig struct {
	// Session configures timing of each command cycle
	Session *SessionConfig
	// DistinctStopCode makes Stop send DO instead of DI. Older controllers
	// only understand DI, which toggles dispensing, so it stays the default.
	DistinctStopCode bool
}

// DefaultDeviceConfig returns default device configuration
func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		Session: DefaultSessionConfig(),
	}
}

// Option configures a Device
type Option func(*Device) error

// WithDeviceConfig replaces the whole device configuration.
func WithDeviceConfig(cfg *DeviceConfig) Option {
	return func(d *Device) error {
		if cfg == nil {
			return errors.New("device config is nil")
		}
		c := *cfg
		if c.Session == nil {
			c.Session = DefaultSessionConfig()
		}
		d.config = &c
		return nil
	}
}

// WithSessionConfig sets the session timing.
func WithSessionConfig(cfg *SessionConfig) Option {
	return func(d *Device) error {
		if cfg == nil {
			return errors.New("session config is nil")
		}
		d.config.Session = cfg
		return nil
	}
}

// WithDistinctStopCode chooses between DO and DI for Stop.
func WithDistinctStopCode(distinct bool) Option {
	return func(d *Device) error {
		d.config.DistinctStopCode = distinct
		return nil
	}
}

// Device is the dispenser: it turns logical operations into validated
// command cycles and holds the dispense mode.
//
// Device is safe for concurrent use; operations are serialized because the
// serial line carries one exchange at a time.
type Device struct {
	transport Transport
	session   *Session
	config    *DeviceConfig
	mu        syncutil.Mutex
	mode      Mode
}

// New creates a dispenser on the given transport. The dispenser is assumed
// to start in timed mode.
func New(transport Transport, opts ...Option) (*Device, error) {
	if transport == nil {
		return nil, ErrNilTransport
	}

	device := &Device{
		transport: transport,
		config:    DefaultDeviceConfig(),
		mode:      ModeTimed,
	}

	for _, opt := range opts {
		if err := opt(device); err != nil {
			return nil, fmt.Errorf("apply device option: %w", err)
		}
	}

	device.session = NewSession(transport, device.config.Session)
	return device, nil
}

// Start begins a dispense cycle.
func (d *Device) Start(ctx context.Context) (*Result, error) {
	return d.send(ctx, Command{Code: cmdDispense})
}

// Stop ends a dispense cycle.
func (d *Device) Stop(ctx context.Context) (*Result, error) {
	code := cmdDispense
	if d.config.DistinctStopCode {
		code = cmdStop
	}
	return d.send(ctx, Command{Code: code})
}

// SetPressure sets the dispense pressure in psi, 0 to 100.
func (d *Device) SetPressure(ctx context.Context, psi float64) (*Result, error) {
	data, err := EncodePressure(psi)
	if err != nil {
		return nil, err
	}
	return d.send(ctx, Command{Code: cmdSetPressure, Data: data})
}

// SetVacuum sets the vacuum in inH2O, 0 to 18.
func (d *Device) SetVacuum(ctx context.Context, inH2O float64) (*Result, error) {
	data, err := EncodeVacuum(inH2O)
	if err != nil {
		return nil, err
	}
	return d.send(ctx, Command{Code: cmdSetVacuum, Data: data})
}

// ToggleMode switches between timed and steady mode. The local mode flips
// whenever the device answered, even with a failure outcome, because the
// controller does not report its mode. Errors before an answer leave the
// mode unchanged.
func (d *Device) ToggleMode(ctx context.Context) (*Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.session.Exchange(ctx, Command{Code: cmdToggleMode})
	if res != nil {
		if d.mode == ModeTimed {
			d.mode = ModeSteady
		} else {
			d.mode = ModeTimed
		}
		Debugf("switched to %s mode", d.mode)
	}
	return res, err
}

// SetDispenseTime sets the timed-mode dispense time in seconds, 0 to 9.9999.
func (d *Device) SetDispenseTime(ctx context.Context, seconds float64) (*Result, error) {
	data, err := EncodeDispenseTime(seconds)
	if err != nil {
		return nil, err
	}
	return d.send(ctx, Command{Code: cmdSetDispenseTime, Data: data})
}

// ReadValues reads the pressure, time and vacuum stored at a memory
// location, 0 to 399.
func (d *Device) ReadValues(ctx context.Context, location int) (MemoryValues, *Result, error) {
	data, err := EncodeMemoryLocation(location)
	if err != nil {
		return MemoryValues{}, nil, err
	}

	res, err := d.send(ctx, Command{Code: cmdReadMemory, Data: data, Read: true})
	if err != nil {
		return MemoryValues{}, res, err
	}
	if res.Data == nil {
		return MemoryValues{}, res, fmt.Errorf("%w: %s", ErrUnrecognizedOutcome, res.Outcome)
	}

	vals, err := ParseReadValues(res.Data.Payload)
	if err != nil {
		return MemoryValues{}, res, err
	}
	return vals, res, nil
}

// SetPressureUnits selects the unit pressure is displayed in.
func (d *Device) SetPressureUnits(ctx context.Context, unit PressureUnit) (*Result, error) {
	if !unit.valid() {
		return nil, &ValidationError{
			Err:      ErrUnknownUnit,
			Quantity: "pressure unit",
			Value:    unit.String(),
			Reason:   "not a known unit",
		}
	}
	return d.send(ctx, Command{Code: cmdSetPressureUnits, Data: unit.Code()})
}

// SetVacuumUnits selects the unit vacuum is displayed in.
func (d *Device) SetVacuumUnits(ctx context.Context, unit VacuumUnit) (*Result, error) {
	if !unit.valid() {
		return nil, &ValidationError{
			Err:      ErrUnknownUnit,
			Quantity: "vacuum unit",
			Value:    unit.String(),
			Reason:   "not a known unit",
		}
	}
	return d.send(ctx, Command{Code: cmdSetVacuumUnits, Data: unit.Code()})
}

// Mode returns the locally tracked dispense mode.
func (d *Device) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// Execute dispatches a Request to the matching operation.
func (d *Device) Execute(ctx context.Context, req Request) (*Response, error) {
	resp := &Response{Op: req.Op}
	var err error

	switch req.Op {
	case OpStart:
		resp.Result, err = d.Start(ctx)
	case OpStop:
		resp.Result, err = d.Stop(ctx)
	case OpSetPressure:
		resp.Result, err = d.SetPressure(ctx, req.Value)
	case OpSetVacuum:
		resp.Result, err = d.SetVacuum(ctx, req.Value)
	case OpToggleMode:
		resp.Result, err = d.ToggleMode(ctx)
	case OpSetDispenseTime:
		resp.Result, err = d.SetDispenseTime(ctx, req.Value)
	case OpReadValues:
		var vals MemoryValues
		vals, resp.Result, err = d.ReadValues(ctx, req.Location)
		if err == nil {
			resp.Values = &vals
		}
	case OpSetPressureUnits:
		unit, perr := ParsePressureUnit(req.Unit)
		if perr != nil {
			return resp, perr
		}
		resp.Result, err = d.SetPressureUnits(ctx, unit)
	case OpSetVacuumUnits:
		unit, perr := ParseVacuumUnit(req.Unit)
		if perr != nil {
			return resp, perr
		}
		resp.Result, err = d.SetVacuumUnits(ctx, unit)
	default:
		return resp, fmt.Errorf("unknown operation %v", req.Op)
	}

	resp.Mode = d.Mode()
	if err != nil {
		return resp, fmt.Errorf("%s: %w", req.Op, err)
	}
	return resp, nil
}

// Session returns the session the device runs its cycles on.
func (d *Device) Session() *Session {
	return d.session
}

// Transport returns the underlying transport
func (d *Device) Transport() Transport {
	return d.transport
}

// Close closes the device connection
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.transport != nil {
		if err := d.transport.Close(); err != nil {
			return fmt.Errorf("failed to close transport: %w", err)
		}
	}
	return nil
}

func (d *Device) send(ctx context.Context, cmd Command) (*Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session.Exchange(ctx, cmd)
}
