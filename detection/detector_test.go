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


//nolint:paralleltest // Tests share the package-level registry and cache
package detection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDetector returns fixed devices and counts calls.
type stubDetector struct {
	err       error
	transport string
	devices   []DeviceInfo
	calls     int
}

func (s *stubDetector) Detect(_ context.Context, _ *Options) ([]DeviceInfo, error) {
	s.calls++
	return cloneDevices(s.devices), s.err
}

func (s *stubDetector) Transport() string {
	return s.transport
}

// blockingDetector never returns before its context ends.
type blockingDetector struct{}

func (*blockingDetector) Detect(ctx context.Context, _ *Options) ([]DeviceInfo, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (*blockingDetector) Transport() string {
	return "blocking"
}

func withRegistry(t *testing.T, detectors ...Detector) {
	t.Helper()
	orig := registry
	registry = nil
	for _, d := range detectors {
		RegisterDetector(d)
	}
	clearCache()
	t.Cleanup(func() {
		registry = orig
		clearCache()
	})
}

func TestModeAndConfidenceStrings(t *testing.T) {
	assert.Equal(t, "passive", Passive.String())
	assert.Equal(t, "probe", Probe.String())
	assert.Equal(t, "Mode(7)", Mode(7).String())
	assert.Equal(t, "high", High.String())
	assert.Equal(t, "unknown", Confidence(9).String())

	mode, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, Probe, mode)
	mode, err = ParseMode("passive")
	require.NoError(t, err)
	assert.Equal(t, Passive, mode)
	_, err = ParseMode("aggressive")
	require.Error(t, err)
}

func TestDeviceInfo_String(t *testing.T) {
	d := DeviceInfo{Transport: "uart", Path: "/dev/ttyUSB0", Confidence: Medium}
	assert.Equal(t, "uart device at /dev/ttyUSB0 (confidence: medium)", d.String())
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, Probe, opts.Mode)
	assert.True(t, opts.EnableCache)
	assert.Positive(t, opts.Timeout)
	assert.Positive(t, opts.ProbeTimeout)
	assert.Nil(t, opts.IgnorePaths)
	assert.Equal(t, DefaultBlocklist(), opts.Blocklist)
}

func TestDetectAll_OrdersByConfidence(t *testing.T) {
	withRegistry(t,
		&stubDetector{transport: "uart", devices: []DeviceInfo{
			{Transport: "uart", Path: "/dev/ttyUSB1", Confidence: Medium},
			{Transport: "uart", Path: "/dev/ttyUSB0", Confidence: High},
		}},
		&stubDetector{transport: "other", devices: []DeviceInfo{
			{Transport: "other", Path: "/dev/ttyACM0", Confidence: Medium},
		}},
	)

	opts := Options{Mode: Probe}
	devices, err := DetectAll(context.Background(), &opts)
	require.NoError(t, err)

	paths := make([]string, 0, len(devices))
	for _, d := range devices {
		paths = append(paths, d.Path)
	}
	assert.Equal(t, []string{"/dev/ttyUSB0", "/dev/ttyACM0", "/dev/ttyUSB1"}, paths)

	first, err := DetectFirst(context.Background(), &opts)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", first.Path)
}

func TestDetectAll_NoDetectors(t *testing.T) {
	withRegistry(t)

	opts := DefaultOptions()
	opts.Transports = []string{"nonexistent"}
	_, err := DetectAll(context.Background(), &opts)
	require.ErrorIs(t, err, ErrNoDetectors)
}

func TestDetectAll_NothingFound(t *testing.T) {
	withRegistry(t, &stubDetector{transport: "uart", err: ErrNoDevicesFound})

	opts := DefaultOptions()
	_, err := DetectFirst(context.Background(), &opts)
	require.ErrorIs(t, err, ErrNoDevicesFound)
}

func TestDetectAll_DetectorErrorSurfaces(t *testing.T) {
	boom := errors.New("enumeration failed")
	withRegistry(t, &stubDetector{transport: "uart", err: boom})

	opts := Options{}
	_, err := DetectAll(context.Background(), &opts)
	require.ErrorIs(t, err, boom)
}

func TestDetectAll_PartialFailureStillReturnsDevices(t *testing.T) {
	withRegistry(t,
		&stubDetector{transport: "broken", err: errors.New("boom")},
		&stubDetector{transport: "uart", devices: []DeviceInfo{{Transport: "uart", Path: "COM3"}}},
	)

	opts := Options{}
	devices, err := DetectAll(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "COM3", devices[0].Path)
}

func TestDetectAll_Timeout(t *testing.T) {
	withRegistry(t, &blockingDetector{})

	opts := DefaultOptions()
	opts.Timeout = 10 * time.Millisecond
	opts.EnableCache = false

	_, err := DetectAll(context.Background(), &opts)
	require.ErrorIs(t, err, ErrDetectionTimeout)
}

func TestDetectAll_CacheHonoursFilters(t *testing.T) {
	stub := &stubDetector{transport: "uart", devices: []DeviceInfo{
		{Transport: "uart", Path: "/dev/ttyUSB0", Metadata: map[string]string{"vidpid": "0403:6001"}},
		{Transport: "uart", Path: "/dev/ttyUSB1"},
	}}
	withRegistry(t, stub)

	opts := Options{Mode: Probe, EnableCache: true, CacheTTL: time.Minute}
	devices, err := DetectAll(context.Background(), &opts)
	require.NoError(t, err)
	assert.Len(t, devices, 2)

	opts.IgnorePaths = []string{"/dev/ttyUSB1"}
	devices, err = DetectAll(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "/dev/ttyUSB0", devices[0].Path)

	opts.Blocklist = []string{"0403:6001"}
	_, err = DetectAll(context.Background(), &opts)
	require.ErrorIs(t, err, ErrNoDevicesFound)

	assert.Equal(t, 1, stub.calls)
}

func TestDetectAll_CacheKeyedByMode(t *testing.T) {
	stub := &stubDetector{transport: "uart", devices: []DeviceInfo{{Transport: "uart", Path: "COM3"}}}
	withRegistry(t, stub)

	opts := Options{Mode: Passive, EnableCache: true, CacheTTL: time.Minute}
	_, err := DetectAll(context.Background(), &opts)
	require.NoError(t, err)

	opts.Mode = Probe
	_, err = DetectAll(context.Background(), &opts)
	require.NoError(t, err)

	assert.Equal(t, 2, stub.calls)
}

func TestDetectAll_EmptyResultClearsCache(t *testing.T) {
	stub := &stubDetector{transport: "uart", devices: []DeviceInfo{{Transport: "uart", Path: "COM3"}}}
	withRegistry(t, stub)
	setCached(cacheKey("uart", Passive), []DeviceInfo{{Transport: "uart", Path: "COM9"}})

	opts := Options{Mode: Probe, EnableCache: true, CacheTTL: time.Minute}
	stub.devices = nil
	stub.err = ErrNoDevicesFound
	_, err := DetectAll(context.Background(), &opts)
	require.ErrorIs(t, err, ErrNoDevicesFound)

	_, found := getCached(cacheKey("uart", Passive), time.Minute)
	assert.False(t, found)
}

func TestCache_TTLExpiry(t *testing.T) {
	clearCache()
	t.Cleanup(clearCache)

	setCached("uart/probe", []DeviceInfo{{Path: "COM3"}})
	_, found := getCached("uart/probe", time.Minute)
	assert.True(t, found)

	_, found = getCached("uart/probe", 0)
	assert.False(t, found)
}

func TestCache_CopiesMetadata(t *testing.T) {
	clearCache()
	t.Cleanup(clearCache)

	devices := []DeviceInfo{{Path: "COM3", Metadata: map[string]string{"vidpid": "0403:6001"}}}
	setCached("uart/probe", devices)
	devices[0].Metadata["vidpid"] = "changed"

	cached, found := getCached("uart/probe", time.Minute)
	require.True(t, found)
	assert.Equal(t, "0403:6001", cached[0].Metadata["vidpid"])

	cached[0].Path = "COM4"
	again, _ := getCached("uart/probe", time.Minute)
	assert.Equal(t, "COM3", again[0].Path)
}

func TestClearDetectionCacheForTransport(t *testing.T) {
	clearCache()
	t.Cleanup(clearCache)

	setCached(cacheKey("uart", Probe), []DeviceInfo{{Transport: "uart"}})
	setCached(cacheKey("uart", Passive), []DeviceInfo{{Transport: "uart"}})
	setCached(cacheKey("other", Probe), []DeviceInfo{{Transport: "other"}})

	ClearDetectionCacheForTransport("uart")

	_, found := getCached(cacheKey("uart", Probe), time.Minute)
	assert.False(t, found)
	_, found = getCached(cacheKey("uart", Passive), time.Minute)
	assert.False(t, found)
	_, found = getCached(cacheKey("other", Probe), time.Minute)
	assert.True(t, found)

	ClearDetectionCache()
	_, found = getCached(cacheKey("other", Probe), time.Minute)
	assert.False(t, found)
}
