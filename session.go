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
	"strings"
	"time"

	"github.com/ZaparooProject/go-ultimus/internal/frame"
	"github.com/ZaparooProject/go-ultimus/internal/metrics"
	"github.com/sirupsen/logrus"
)

// SessionConfig controls the timing of one command cycle.
type SessionConfig struct {
	// HandshakeTimeout bounds the wait for ACK after ENQ
	HandshakeTimeout time.Duration
	// ResponseTimeout bounds each read of an outcome or data frame
	ResponseTimeout time.Duration
	// SettleDelay is slept after every write, giving the device time to
	// process before it is read
	SettleDelay time.Duration
	// ReadBufferSize is the largest single read
	ReadBufferSize int
	// MaxResponseSize caps the bytes accumulated while looking for a frame
	MaxResponseSize int
	// AlwaysSendEOT also closes the exchange with EOT after an
	// unrecognized outcome code
	AlwaysSendEOT bool
}

// Session timing defaults
const (
	DefaultHandshakeTimeout = 100 * time.Millisecond
	DefaultResponseTimeout  = 100 * time.Millisecond
	DefaultSettleDelay      = 100 * time.Millisecond
	DefaultReadBufferSize   = 100
	DefaultMaxResponseSize  = 512
)

// DefaultSessionConfig returns the timing the dispenser is known to work with.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		HandshakeTimeout: DefaultHandshakeTimeout,
		ResponseTimeout:  DefaultResponseTimeout,
		SettleDelay:      DefaultSettleDelay,
		ReadBufferSize:   DefaultReadBufferSize,
		MaxResponseSize:  DefaultMaxResponseSize,
	}
}

// SessionState is a step of the command cycle.
type SessionState int

const (
	StateIdle SessionState = iota
	StateAwaitAck
	StateAwaitOutcome
	StateAwaitAck2
	StateAwaitDataFrame
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAwaitAck:
		return "AwaitAck"
	case StateAwaitOutcome:
		return "AwaitOutcome"
	case StateAwaitAck2:
		return "AwaitAck2"
	case StateAwaitDataFrame:
		return "AwaitDataFrame"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// OutcomeKind classifies the device's reply to a command frame.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeFailure
	OutcomeUnrecognized
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "unrecognized"
	}
}

// Outcome is the classified reply frame. Code and Payload are kept so an
// unrecognized reply can be reported.
type Outcome struct {
	Code    string
	Payload string
	Kind    OutcomeKind
}

func (o Outcome) String() string {
	if o.Kind == OutcomeUnrecognized {
		return fmt.Sprintf("unrecognized(%s %q)", o.Code, o.Payload)
	}
	return o.Kind.String()
}

// ClassifyOutcome maps a reply frame to its Outcome: A0 is success, A2 is
// failure, anything else is unrecognized.
func ClassifyOutcome(f frame.Frame) Outcome {
	out := Outcome{Code: f.Code(), Payload: f.Payload}
	switch out.Code {
	case frame.CodeSuccess:
		out.Kind = OutcomeSuccess
	case frame.CodeFailure:
		out.Kind = OutcomeFailure
	default:
		out.Kind = OutcomeUnrecognized
	}
	return out
}

// Command is one outbound frame. Read marks commands that are followed by
// the ACK and data-frame leg.
type Command struct {
	Code string
	Data string
	Read bool
}

// Result describes a completed cycle. Data is set only for read commands
// that succeeded. Elapsed runs from command issue to outcome receipt.
type Result struct {
	Data    *frame.Frame
	Outcome Outcome
	Elapsed time.Duration
}

// Session runs command cycles over a Transport.
//
// A Session is not safe for concurrent use; the serial line carries one
// exchange at a time. Device serializes access to its Session.
type Session struct {
	transport Transport
	config    *SessionConfig
	trace     *TraceBuffer
	sleep     func(time.Duration)
	state     SessionState
}

// NewSession creates a session over t. A nil config uses
// DefaultSessionConfig; zero sizes and timeouts fall back to defaults,
// while a zero SettleDelay disables settling.
func NewSession(t Transport, cfg *SessionConfig) *Session {
	c := DefaultSessionConfig()
	if cfg != nil {
		c = normalizeSessionConfig(*cfg)
	}
	return &Session{
		transport: t,
		config:    c,
		trace:     NewTraceBuffer(portName(t), 32),
		sleep:     time.Sleep,
		state:     StateIdle,
	}
}

func normalizeSessionConfig(c SessionConfig) *SessionConfig {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = DefaultResponseTimeout
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = DefaultReadBufferSize
	}
	if c.MaxResponseSize < c.ReadBufferSize {
		c.MaxResponseSize = max(DefaultMaxResponseSize, c.ReadBufferSize)
	}
	return &c
}

// State returns the step the last cycle ended in: Idle after a completed
// exchange, Failed after an error.
func (s *Session) State() SessionState {
	return s.state
}

// Config returns a copy of the session timing.
func (s *Session) Config() SessionConfig {
	return *s.config
}

// Exchange runs one full cycle for cmd: ENQ/ACK handshake, command frame,
// outcome frame and, for read commands, the ACK/data frame leg, closing with
// EOT. The context is checked only before the handshake; once ENQ is on the
// wire the cycle runs to completion or to an error.
//
// A Failure outcome returns the Result together with ErrCommandRejected. An
// Unrecognized outcome returns the Result and a nil error.
func (s *Session) Exchange(ctx context.Context, cmd Command) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("exchange %s: %w", strings.TrimSpace(cmd.Code), err)
	}

	encoded, err := frame.Encode(cmd.Code, cmd.Data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", strings.TrimSpace(cmd.Code), err)
	}

	label := strings.TrimSpace(cmd.Code)
	s.trace.Reset(cmd.Code)
	start := time.Now()

	s.state = StateAwaitAck
	if err := s.handshake(); err != nil {
		return nil, s.fail(label, start, err)
	}

	s.state = StateAwaitOutcome
	if err := s.write(encoded, "command "+label); err != nil {
		return nil, s.fail(label, start, err)
	}

	reply, err := s.collect("outcome", isOutcomeFrame)
	if err != nil {
		return nil, s.fail(label, start, err)
	}

	result := &Result{Outcome: ClassifyOutcome(reply), Elapsed: time.Since(start)}
	metrics.ObserveExchange(label, result.Outcome.Kind.String(), result.Elapsed)
	debugFields(logrus.Fields{
		"command":    label,
		"outcome":    result.Outcome.String(),
		"elapsed_ms": result.Elapsed.Milliseconds(),
	}, "exchange outcome")

	switch result.Outcome.Kind {
	case OutcomeSuccess:
		if cmd.Read {
			data, err := s.readData()
			if err != nil {
				_ = s.endTransmission()
				return result, s.fail(label, time.Time{}, err)
			}
			result.Data = &data
		}
		if err := s.endTransmission(); err != nil {
			return result, s.fail(label, time.Time{}, err)
		}

	case OutcomeFailure:
		if err := s.endTransmission(); err != nil {
			return result, s.fail(label, time.Time{}, err)
		}
		s.state = StateIdle
		return result, s.trace.WrapError(fmt.Errorf("%w: %s", ErrCommandRejected, label))

	case OutcomeUnrecognized:
		Debugf("unrecognized outcome code %q for %s: %q", result.Outcome.Code, label, result.Outcome.Payload)
		if s.config.AlwaysSendEOT {
			if err := s.endTransmission(); err != nil {
				return result, s.fail(label, time.Time{}, err)
			}
		}
	}

	s.state = StateIdle
	return result, nil
}

// Ping performs only the ENQ/ACK handshake and closes it with EOT. It is
// used to probe whether a port has a dispenser behind it.
func (s *Session) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	s.trace.Reset("ENQ")
	s.state = StateAwaitAck
	if err := s.handshake(); err != nil {
		s.state = StateFailed
		metrics.ObserveHandshakeFailure()
		return s.trace.WrapError(err)
	}
	if err := s.endTransmission(); err != nil {
		s.state = StateFailed
		return s.trace.WrapError(err)
	}
	s.state = StateIdle
	return nil
}

func (s *Session) handshake() error {
	if err := s.write([]byte{frame.ENQ}, "ENQ"); err != nil {
		return err
	}

	resp, err := s.read(1, s.config.HandshakeTimeout)
	if err != nil {
		return err
	}
	if len(resp) == 0 {
		s.trace.RecordTimeout("ACK")
		return fmt.Errorf("%w: timed out after %v", ErrNoAck, s.config.HandshakeTimeout)
	}
	s.trace.RecordRX(resp, "handshake")
	if resp[0] != frame.ACK {
		return fmt.Errorf("%w: got 0x%02X", ErrNoAck, resp[0])
	}
	Debugln("received ACK after ENQ")
	return nil
}

func (s *Session) readData() (frame.Frame, error) {
	s.state = StateAwaitAck2
	if err := s.write([]byte{frame.ACK}, "ACK"); err != nil {
		return frame.Frame{}, err
	}
	s.state = StateAwaitDataFrame
	return s.collect("data", anyFrame)
}

func (s *Session) endTransmission() error {
	return s.write([]byte{frame.EOT}, "EOT")
}

// collect reads until a frame accepted by done has been decoded, a read
// returns nothing, or MaxResponseSize bytes have arrived. Without an
// accepted frame it falls back to the first well-formed frame seen.
func (s *Session) collect(leg string, done func(frame.Frame) bool) (frame.Frame, error) {
	buf := frame.GetBuffer(frame.FrameBufferSize)[:0]
	defer func() { frame.PutBuffer(buf) }()

	var results []frame.Result
	for len(buf) < s.config.MaxResponseSize {
		want := min(s.config.ReadBufferSize, s.config.MaxResponseSize-len(buf))
		chunk, err := s.read(want, s.config.ResponseTimeout)
		if err != nil {
			return frame.Frame{}, err
		}
		if len(chunk) == 0 {
			s.trace.RecordTimeout(leg)
			break
		}
		s.trace.RecordRX(chunk, leg)

		buf = append(buf, chunk...)
		results = frame.Decode(buf)
		for _, r := range results {
			if r.Err == nil && done(r.Frame) {
				s.reportFrameErrors(leg, results)
				return r.Frame, nil
			}
		}
	}

	s.reportFrameErrors(leg, results)
	var lastErr error
	for _, r := range results {
		if r.Err == nil {
			return r.Frame, nil
		}
		lastErr = r.Err
	}

	switch {
	case len(buf) == 0:
		return frame.Frame{}, fmt.Errorf("%w: %s frame", ErrNoResponse, leg)
	case lastErr != nil:
		return frame.Frame{}, fmt.Errorf("%w: %w", ErrNoResponse, lastErr)
	default:
		return frame.Frame{}, fmt.Errorf("%w: %d bytes without a %s frame", ErrNoResponse, len(buf), leg)
	}
}

func (*Session) reportFrameErrors(leg string, results []frame.Result) {
	for _, r := range results {
		if r.Err == nil {
			continue
		}
		kind := frame.KindName(r.Err)
		metrics.ObserveFrameError(kind)
		debugFields(logrus.Fields{"leg": leg, "kind": kind}, r.Err.Error())
	}
}

func (s *Session) write(data []byte, note string) error {
	s.trace.RecordTX(data, note)
	Debugf("TX %s: % X", note, data)

	if err := s.transport.Write(data); err != nil {
		return s.transportError("write", ErrTransportWrite, err)
	}
	if s.config.SettleDelay > 0 {
		s.sleep(s.config.SettleDelay)
	}
	return nil
}

func (s *Session) read(maxBytes int, timeout time.Duration) ([]byte, error) {
	data, err := s.transport.Read(maxBytes, timeout)
	if err != nil {
		return nil, s.transportError("read", ErrTransportRead, err)
	}
	if len(data) > 0 {
		Debugf("RX: % X", data)
	}
	return data, nil
}

func (s *Session) transportError(op string, kind, err error) error {
	errType := ErrorTypeTransient
	if IsFatal(err) {
		errType = ErrorTypePermanent
	}
	return NewTransportError(op, portName(s.transport), fmt.Errorf("%w: %w", kind, err), errType)
}

// fail ends the cycle in the Failed state, records it and attaches the
// wire trace. A zero start skips the latency observation because the
// outcome was already recorded.
func (s *Session) fail(label string, start time.Time, err error) error {
	s.state = StateFailed

	switch {
	case errors.Is(err, ErrNoAck):
		metrics.ObserveHandshakeFailure()
	case !start.IsZero() && errors.Is(err, ErrNoResponse):
		metrics.ObserveExchange(label, "no_response", time.Since(start))
	case !start.IsZero():
		metrics.ObserveExchange(label, "error", time.Since(start))
	}

	debugFields(logrus.Fields{"command": label}, "exchange failed: "+err.Error())
	return s.trace.WrapError(err)
}

func isOutcomeFrame(f frame.Frame) bool {
	code := f.Code()
	return code == frame.CodeSuccess || code == frame.CodeFailure
}

func anyFrame(frame.Frame) bool {
	return true
}
