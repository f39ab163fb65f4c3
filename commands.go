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

import "fmt"

// Dispenser command codes. Most are four characters, space padded; the
// memory read uses a bare two-character code.
const (
	cmdDispense         = "DI  "
	cmdStop             = "DO  "
	cmdSetPressure      = "PS  "
	cmdSetVacuum        = "VS  "
	cmdToggleMode       = "TM  "
	cmdSetDispenseTime  = "DS  "
	cmdReadMemory       = "E8"
	cmdSetPressureUnits = "E6  "
	cmdSetVacuumUnits   = "E7  "
)

// Operation is a logical dispenser operation.
type Operation int

const (
	OpStart Operation = iota
	OpStop
	OpSetPressure
	OpSetVacuum
	OpToggleMode
	OpSetDispenseTime
	OpReadValues
	OpSetPressureUnits
	OpSetVacuumUnits
)

var operationNames = [...]string{
	OpStart:            "start",
	OpStop:             "stop",
	OpSetPressure:      "pressure",
	OpSetVacuum:        "vacuum",
	OpToggleMode:       "toggle_mode",
	OpSetDispenseTime:  "time",
	OpReadValues:       "read_values",
	OpSetPressureUnits: "set_pressure_units",
	OpSetVacuumUnits:   "set_vacuum_units",
}

func (o Operation) String() string {
	if o >= 0 && int(o) < len(operationNames) {
		return operationNames[o]
	}
	return fmt.Sprintf("Operation(%d)", int(o))
}

// ParseOperation maps a shell command word to its Operation.
func ParseOperation(name string) (Operation, bool) {
	for i, n := range operationNames {
		if n == name {
			return Operation(i), true
		}
	}
	return 0, false
}

// Request is one logical operation with its argument. Value carries the
// physical quantity for pressure, vacuum and time; Location the memory slot
// for reads; Unit the unit name for the unit selectors.
type Request struct {
	Unit     string
	Value    float64
	Location int
	Op       Operation
}

// Response is what Execute reports back for a completed operation.
type Response struct {
	Values *MemoryValues
	Result *Result
	Mode   Mode
	Op     Operation
}
