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
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Physical limits accepted by the dispenser, in the units the wire encoding
// assumes (psi, inH2O, seconds).
const (
	MinPressure     = 0.0
	MaxPressure     = 100.0
	MinVacuum       = 0.0
	MaxVacuum       = 18.0
	MinDispenseTime = 0.0
	MaxDispenseTime = 9.9999

	MinMemoryLocation = 0
	MaxMemoryLocation = 399
)

// Scale factors between physical values and their integer wire digits
const (
	pressureScale = 10.0
	vacuumScale   = 10.0
	timeScale     = 10000.0
)

// timePrefix opens every encoded dispense time
const timePrefix = "T"

// EncodePressure renders psi as four digits of tenths, e.g. 50.0 -> "0500".
func EncodePressure(psi float64) (string, error) {
	if err := checkRange("pressure", psi, MinPressure, MaxPressure); err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d", scaled(psi, pressureScale)), nil
}

// EncodeVacuum renders inH2O as four digits of tenths.
func EncodeVacuum(inH2O float64) (string, error) {
	if err := checkRange("vacuum", inH2O, MinVacuum, MaxVacuum); err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d", scaled(inH2O, vacuumScale)), nil
}

// EncodeDispenseTime renders seconds in ten-thousandths behind a literal T.
// Values below one second use four digits, the rest five:
//
//	0.5    -> "T5000"
//	9.9999 -> "T99999"
func EncodeDispenseTime(seconds float64) (string, error) {
	if err := checkRange("dispense time", seconds, MinDispenseTime, MaxDispenseTime); err != nil {
		return "", err
	}
	digits := scaled(seconds, timeScale)
	if seconds < 1.0 {
		return fmt.Sprintf("%s%04d", timePrefix, digits), nil
	}
	return fmt.Sprintf("%s%05d", timePrefix, digits), nil
}

// EncodeMemoryLocation renders a memory slot as three decimal digits.
func EncodeMemoryLocation(location int) (string, error) {
	if location < MinMemoryLocation || location > MaxMemoryLocation {
		return "", &ValidationError{
			Err:      ErrInvalidValue,
			Quantity: "memory location",
			Value:    strconv.Itoa(location),
			Reason:   fmt.Sprintf("must be between %d and %d", MinMemoryLocation, MaxMemoryLocation),
		}
	}
	return fmt.Sprintf("%03d", location), nil
}

// DecodePressure converts four digits of tenths back to psi.
func DecodePressure(digits string) (float64, error) {
	n, err := parseDigits("pressure", digits)
	if err != nil {
		return 0, err
	}
	return float64(n) / pressureScale, nil
}

// DecodeVacuum converts four digits of tenths back to inH2O.
func DecodeVacuum(digits string) (float64, error) {
	n, err := parseDigits("vacuum", digits)
	if err != nil {
		return 0, err
	}
	return float64(n) / vacuumScale, nil
}

// DecodeDispenseTime converts an encoded time back to seconds. Any
// non-digit prefix, such as the T marker, is ignored.
func DecodeDispenseTime(encoded string) (float64, error) {
	digits := strings.TrimLeftFunc(encoded, func(r rune) bool {
		return r < '0' || r > '9'
	})
	n, err := parseDigits("dispense time", digits)
	if err != nil {
		return 0, err
	}
	return float64(n) / timeScale, nil
}

func scaled(v, scale float64) int {
	return int(math.Round(v * scale))
}

func checkRange(quantity string, v, lo, hi float64) error {
	if math.IsNaN(v) || v < lo || v > hi {
		return &ValidationError{
			Err:      ErrInvalidValue,
			Quantity: quantity,
			Value:    strconv.FormatFloat(v, 'f', -1, 64),
			Reason:   fmt.Sprintf("must be between %g and %g", lo, hi),
		}
	}
	return nil
}

func parseDigits(quantity, digits string) (int, error) {
	if digits == "" {
		return 0, &ValidationError{Err: ErrInvalidValue, Quantity: quantity, Value: `""`, Reason: "no digits"}
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, &ValidationError{
				Err:      ErrInvalidValue,
				Quantity: quantity,
				Value:    strconv.Quote(digits),
				Reason:   "not a decimal number",
			}
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", quantity, digits, err)
	}
	return n, nil
}

// =============================================================================
// Unit selectors
// =============================================================================

// PressureUnit selects the unit the front panel displays pressure in.
type PressureUnit int

const (
	PressurePSI PressureUnit = iota
	PressureBar
	PressureKPa
)

var pressureUnitNames = map[PressureUnit]string{
	PressurePSI: "psi",
	PressureBar: "bar",
	PressureKPa: "kpa",
}

// ParsePressureUnit looks up a unit name, ignoring case.
func ParsePressureUnit(name string) (PressureUnit, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for u, n := range pressureUnitNames {
		if n == key {
			return u, nil
		}
	}
	return 0, &ValidationError{
		Err:      ErrUnknownUnit,
		Quantity: "pressure unit",
		Value:    strconv.Quote(name),
		Reason:   "must be one of " + strings.Join(PressureUnitNames(), ", "),
	}
}

// PressureUnitNames lists the accepted names in wire-code order.
func PressureUnitNames() []string {
	return []string{"psi", "bar", "kpa"}
}

// Code returns the two-digit wire code.
func (u PressureUnit) Code() string {
	return fmt.Sprintf("%02d", int(u))
}

func (u PressureUnit) String() string {
	if n, ok := pressureUnitNames[u]; ok {
		return n
	}
	return fmt.Sprintf("PressureUnit(%d)", int(u))
}

func (u PressureUnit) valid() bool {
	_, ok := pressureUnitNames[u]
	return ok
}

// VacuumUnit selects the unit the front panel displays vacuum in.
type VacuumUnit int

const (
	VacuumKPa VacuumUnit = iota
	VacuumInchesH2O
	VacuumInchesHg
	VacuumMmHg
	VacuumTorr
)

var vacuumUnitNames = map[VacuumUnit]string{
	VacuumKPa:       "kpa",
	VacuumInchesH2O: "inches_h2o",
	VacuumInchesHg:  "inches_hg",
	VacuumMmHg:      "mmhg",
	VacuumTorr:      "torr",
}

// ParseVacuumUnit looks up a unit name, ignoring case.
func ParseVacuumUnit(name string) (VacuumUnit, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for u, n := range vacuumUnitNames {
		if n == key {
			return u, nil
		}
	}
	return 0, &ValidationError{
		Err:      ErrUnknownUnit,
		Quantity: "vacuum unit",
		Value:    strconv.Quote(name),
		Reason:   "must be one of " + strings.Join(VacuumUnitNames(), ", "),
	}
}

// VacuumUnitNames lists the accepted names in wire-code order.
func VacuumUnitNames() []string {
	return []string{"kpa", "inches_h2o", "inches_hg", "mmhg", "torr"}
}

// Code returns the two-digit wire code.
func (u VacuumUnit) Code() string {
	return fmt.Sprintf("%02d", int(u))
}

func (u VacuumUnit) String() string {
	if n, ok := vacuumUnitNames[u]; ok {
		return n
	}
	return fmt.Sprintf("VacuumUnit(%d)", int(u))
}

func (u VacuumUnit) valid() bool {
	_, ok := vacuumUnitNames[u]
	return ok
}

// =============================================================================
// Read-values payload
// =============================================================================

// MemoryValues are the settings stored in one memory location.
type MemoryValues struct {
	Pressure float64 // psi
	Time     float64 // seconds
	Vacuum   float64 // inH2O
}

func (v MemoryValues) String() string {
	return fmt.Sprintf("pressure=%.1f psi time=%.4f s vacuum=%.1f inH2O", v.Pressure, v.Time, v.Vacuum)
}

// Markers and field widths of the read-values payload:
//
//	D0 PD pppp DT ttttt VC vvvv
const (
	markerHeader   = "D0"
	markerPressure = "PD"
	markerTime     = "DT"
	markerVacuum   = "VC"

	pressureDigits = 4
	timeDigits     = 5
	vacuumDigits   = 4
)

// ParseReadValues parses the data frame payload returned by a memory read.
// Each marker is checked in order; the first one missing is named in the
// returned *ResponseFormatError.
func ParseReadValues(payload string) (MemoryValues, error) {
	p := valuesParser{payload: payload}

	p.expect(markerHeader)
	pressure := p.field(markerPressure, pressureDigits)
	timeField := p.field(markerTime, timeDigits)
	vacuum := p.field(markerVacuum, vacuumDigits)
	if p.err != nil {
		return MemoryValues{}, p.err
	}

	var vals MemoryValues
	var err error
	if vals.Pressure, err = DecodePressure(pressure); err != nil {
		return MemoryValues{}, p.fail(markerPressure, err.Error())
	}
	if vals.Time, err = DecodeDispenseTime(timeField); err != nil {
		return MemoryValues{}, p.fail(markerTime, err.Error())
	}
	if vals.Vacuum, err = DecodeVacuum(vacuum); err != nil {
		return MemoryValues{}, p.fail(markerVacuum, err.Error())
	}
	return vals, nil
}

// valuesParser walks the payload left to right and keeps the first error.
type valuesParser struct {
	err     error
	payload string
	pos     int
}

func (p *valuesParser) expect(marker string) {
	if p.err != nil {
		return
	}
	if !strings.HasPrefix(p.payload[p.pos:], marker) {
		p.err = &ResponseFormatError{Marker: marker, Payload: p.payload}
		return
	}
	p.pos += len(marker)
}

func (p *valuesParser) field(marker string, width int) string {
	p.expect(marker)
	if p.err != nil {
		return ""
	}
	if len(p.payload)-p.pos < width {
		p.err = p.fail(marker, fmt.Sprintf("want %d digits", width))
		return ""
	}
	s := p.payload[p.pos : p.pos+width]
	p.pos += width
	return s
}

func (p *valuesParser) fail(marker, detail string) error {
	return &ResponseFormatError{Marker: marker, Payload: p.payload, Detail: detail}
}
