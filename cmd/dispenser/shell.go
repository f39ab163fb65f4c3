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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/ZaparooProject/go-ultimus"
	"github.com/peterh/liner"
)

type cliCommand struct {
	Handler     func(ctx context.Context, sh *shell, args []string) error
	Name        string
	Usage       string
	Description string
	MinArgs     int
	MaxArgs     int
}

// cliCommands holds every command except help, exit and quit, which the
// shell handles itself.
var cliCommands = map[string]cliCommand{
	"start": {
		Name: "start", Usage: "start", MinArgs: 0, MaxArgs: 0,
		Handler:     operationHandler(ultimus.OpStart),
		Description: "Start dispensing",
	},
	"stop": {
		Name: "stop", Usage: "stop", MinArgs: 0, MaxArgs: 0,
		Handler:     operationHandler(ultimus.OpStop),
		Description: "Stop dispensing",
	},
	"pressure": {
		Name: "pressure", Usage: "pressure <psi 0.0-100.0>", MinArgs: 1, MaxArgs: 1,
		Handler:     operationHandler(ultimus.OpSetPressure),
		Description: "Set dispense pressure",
	},
	"vacuum": {
		Name: "vacuum", Usage: "vacuum <inH2O 0.0-18.0>", MinArgs: 1, MaxArgs: 1,
		Handler:     operationHandler(ultimus.OpSetVacuum),
		Description: "Set vacuum level",
	},
	"toggle_mode": {
		Name: "toggle_mode", Usage: "toggle_mode", MinArgs: 0, MaxArgs: 0,
		Handler:     operationHandler(ultimus.OpToggleMode),
		Description: "Toggle between timed and steady mode",
	},
	"time": {
		Name: "time", Usage: "time <seconds 0.0000-9.9999>", MinArgs: 1, MaxArgs: 1,
		Handler:     operationHandler(ultimus.OpSetDispenseTime),
		Description: "Set dispense time",
	},
	"read_values": {
		Name: "read_values", Usage: "read_values [location 0-399]", MinArgs: 0, MaxArgs: 1,
		Handler:     operationHandler(ultimus.OpReadValues),
		Description: "Read pressure, time and vacuum from a memory location",
	},
	"set_pressure_units": {
		Name: "set_pressure_units", Usage: "set_pressure_units <" + strings.Join(ultimus.PressureUnitNames(), "|") + ">",
		MinArgs: 1, MaxArgs: 1,
		Handler:     operationHandler(ultimus.OpSetPressureUnits),
		Description: "Select the pressure unit shown on the dispenser",
	},
	"set_vacuum_units": {
		Name: "set_vacuum_units", Usage: "set_vacuum_units <" + strings.Join(ultimus.VacuumUnitNames(), "|") + ">",
		MinArgs: 1, MaxArgs: 1,
		Handler:     operationHandler(ultimus.OpSetVacuumUnits),
		Description: "Select the vacuum unit shown on the dispenser",
	},
	"mode": {
		Name: "mode", Usage: "mode", MinArgs: 0, MaxArgs: 0,
		Handler: func(_ context.Context, sh *shell, _ []string) error {
			sh.printf("mode: %s\n", sh.device.Mode())
			return nil
		},
		Description: "Show the locally tracked dispense mode",
	},
}

var errUsage = errors.New("usage")

type shell struct {
	device *ultimus.Device
	out    io.Writer
	trace  bool
}

func newShell(device *ultimus.Device, out io.Writer, trace bool) *shell {
	return &shell{device: device, out: out, trace: trace}
}

func (sh *shell) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(sh.out, format, args...)
}

// dispatch runs one input line. It reports whether the shell should exit.
func (sh *shell) dispatch(ctx context.Context, line string) (bool, error) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return false, nil
	}
	name, args := strings.ToLower(tokens[0]), tokens[1:]

	switch name {
	case "exit", "quit":
		return true, nil
	case "help":
		sh.printHelp()
		return false, nil
	}

	cmd, ok := cliCommands[name]
	if !ok {
		return false, fmt.Errorf("unknown command %q, type \"help\" for a list", name)
	}
	if len(args) < cmd.MinArgs || len(args) > cmd.MaxArgs {
		return false, fmt.Errorf("%w: %s", errUsage, cmd.Usage)
	}
	return false, cmd.Handler(ctx, sh, args)
}

func (sh *shell) printHelp() {
	names := make([]string, 0, len(cliCommands))
	for name := range cliCommands {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		c := cliCommands[name]
		sh.printf("  %-40s %s\n", c.Usage, c.Description)
	}
	sh.printf("  %-40s %s\n", "help", "Show this list")
	sh.printf("  %-40s %s\n", "exit | quit", "Leave the shell")
}

// runOnce executes the command given on the command line.
func (sh *shell) runOnce(ctx context.Context, args []string) error {
	_, err := sh.dispatch(ctx, strings.Join(args, " "))
	if err != nil {
		sh.report(err)
	}
	return err
}

// report prints an error, with the wire trace of the failed cycle when
// tracing is on.
func (sh *shell) report(err error) {
	sh.printf("error: %v\n", err)
	if !sh.trace {
		return
	}
	if te := ultimus.GetTrace(err); te != nil {
		sh.printf("%s", te.FormatTrace())
	}
}

// interactive reads commands until exit, EOF, ^C or a fatal port error.
func (sh *shell) interactive(ctx context.Context, historyFile string) error {
	line := liner.NewLiner()
	defer func() { _ = line.Close() }()

	line.SetCtrlCAborts(true)
	line.SetCompleter(complete)
	loadHistory(line, historyFile)
	defer saveHistory(line, historyFile)

	sh.printf("Interactive mode, type \"help\" for commands, Ctrl-D to quit.\n")
	for ctx.Err() == nil {
		input, err := line.Prompt("> ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			sh.printf("\n")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		quit, err := sh.dispatch(ctx, input)
		if err != nil {
			sh.report(err)
			if ultimus.IsFatal(err) {
				return err
			}
		}
		if quit {
			return nil
		}
	}
	return ctx.Err()
}

// complete offers command names for the first word and unit names for the
// unit selectors.
func complete(line string) []string {
	lower := strings.ToLower(line)
	var out []string

	if cmd, arg, found := strings.Cut(lower, " "); found {
		var units []string
		switch cmd {
		case "set_pressure_units":
			units = ultimus.PressureUnitNames()
		case "set_vacuum_units":
			units = ultimus.VacuumUnitNames()
		}
		for _, u := range units {
			if strings.HasPrefix(u, strings.TrimSpace(arg)) {
				out = append(out, cmd+" "+u)
			}
		}
		return out
	}

	for name := range cliCommands {
		if strings.HasPrefix(name, lower) {
			out = append(out, name)
		}
	}
	for _, name := range []string{"help", "exit", "quit"} {
		if strings.HasPrefix(name, lower) {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

func loadHistory(line *liner.State, path string) {
	if path == "" {
		return
	}
	f, err := os.Open(path) // #nosec G304 -- history path is operator configuration
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()
	_, _ = line.ReadHistory(f)
}

func saveHistory(line *liner.State, path string) {
	if path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return
	}
	f, err := os.Create(path) // #nosec G304 -- history path is operator configuration
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()
	_, _ = line.WriteHistory(f)
}

// operationHandler builds the handler for a device operation.
func operationHandler(op ultimus.Operation) func(context.Context, *shell, []string) error {
	return func(ctx context.Context, sh *shell, args []string) error {
		req, err := buildRequest(op, args)
		if err != nil {
			return err
		}
		return sh.execute(ctx, req)
	}
}

func buildRequest(op ultimus.Operation, args []string) (ultimus.Request, error) {
	req := ultimus.Request{Op: op}

	switch op {
	case ultimus.OpSetPressure, ultimus.OpSetVacuum, ultimus.OpSetDispenseTime:
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return req, fmt.Errorf("invalid %s value %q: not a number", op, args[0])
		}
		req.Value = v
	case ultimus.OpReadValues:
		if len(args) == 1 {
			loc, err := strconv.Atoi(args[0])
			if err != nil {
				return req, fmt.Errorf("invalid memory location %q: not an integer", args[0])
			}
			req.Location = loc
		}
	case ultimus.OpSetPressureUnits, ultimus.OpSetVacuumUnits:
		req.Unit = args[0]
	}
	return req, nil
}

// execute runs a request and prints its outcome and the cycle's delay.
func (sh *shell) execute(ctx context.Context, req ultimus.Request) error {
	resp, err := sh.device.Execute(ctx, req)
	if resp != nil && resp.Result != nil {
		sh.printf("%s: %s (delay %d ms)\n", req.Op, resp.Result.Outcome, resp.Result.Elapsed.Milliseconds())
	}
	if err != nil {
		return err
	}

	if resp.Values != nil {
		sh.printf("location %d: %s\n", req.Location, resp.Values)
	}
	if req.Op == ultimus.OpToggleMode {
		sh.printf("mode: %s\n", resp.Mode)
	}
	return nil
}
