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
	"os"

	"github.com/sirupsen/logrus"
)

// debugEnabled controls whether debug lines reach the console logger
var debugEnabled = false

var logger = newConsoleLogger()

func init() {
	if os.Getenv("ULTIMUS_DEBUG") != "" || os.Getenv("DEBUG") != "" {
		debugEnabled = true
	}
}

func newConsoleLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	return l
}

// Debugf logs a debug line. It always goes to the session log file when one
// is open, and to the console logger only when debug mode is enabled.
func Debugf(format string, args ...any) {
	debugFields(nil, fmt.Sprintf(format, args...))
}

// Debugln is Debugf with fmt.Sprintln formatting.
func Debugln(args ...any) {
	msg := fmt.Sprintln(args...)
	debugFields(nil, msg[:len(msg)-1])
}

// debugFields logs msg with structured fields attached.
func debugFields(fields logrus.Fields, msg string) {
	if sessionLog != nil {
		sessionLog.WithFields(fields).Debug(msg)
	}
	if debugEnabled {
		logger.WithFields(fields).Debug(msg)
	}
}

// SetDebugEnabled switches console debug output on or off.
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// SetLogger replaces the console logger, e.g. with one configured for JSON
// output. A nil logger restores the default.
func SetLogger(l *logrus.Logger) {
	if l == nil {
		l = newConsoleLogger()
	}
	logger = l
}

// Logger returns the console logger.
func Logger() *logrus.Logger {
	return logger
}
