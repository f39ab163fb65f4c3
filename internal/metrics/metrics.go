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

// Package metrics exposes prometheus collectors for dispenser exchanges.
// Every session cycle records its latency and outcome here; frame decode
// failures and handshake failures are counted separately.
package metrics

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	// ExchangeDuration is the time from command issue to outcome receipt.
	ExchangeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ultimus_exchange_duration_seconds",
			Help:    "Time from command issue to outcome frame receipt",
			Buckets: []float64{.01, .025, .05, .1, .15, .2, .3, .5, 1, 2},
		},
		[]string{"command"},
	)

	ExchangeOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ultimus_exchange_outcomes_total",
			Help: "Completed exchanges by command code and outcome",
		},
		[]string{"command", "outcome"},
	)

	FrameErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ultimus_frame_errors_total",
			Help: "Malformed inbound frames by error kind",
		},
		[]string{"kind"},
	)

	HandshakeFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ultimus_handshake_failures_total",
		Help: "Cycles aborted because ENQ was not acknowledged",
	})
)

var registry = prometheus.NewRegistry()

func init() {
	registry.MustRegister(
		ExchangeDuration,
		ExchangeOutcomes,
		FrameErrors,
		HandshakeFailures,
	)
}

// ObserveExchange records one completed exchange.
func ObserveExchange(command, outcome string, elapsed time.Duration) {
	ExchangeDuration.WithLabelValues(command).Observe(elapsed.Seconds())
	ExchangeOutcomes.WithLabelValues(command, outcome).Inc()
}

// ObserveFrameError counts a rejected inbound frame.
func ObserveFrameError(kind string) {
	FrameErrors.WithLabelValues(kind).Inc()
}

// ObserveHandshakeFailure counts a missing acknowledgement.
func ObserveHandshakeFailure() {
	HandshakeFailures.Inc()
}

// Handler serves the module's collectors in the prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Serve starts a metrics endpoint on addr in the background. The returned
// server should be shut down by the caller.
func Serve(addr string, log *logrus.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	log.Infof("metrics listening on %s", ln.Addr())

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics server: %v", err)
		}
	}()

	return srv, nil
}
