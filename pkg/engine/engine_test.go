// Copyright 2025 Alibaba Group Holding Ltd.
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

package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alibaba/opensandbox/healthd/pkg/probe"
	"github.com/alibaba/opensandbox/healthd/pkg/probe/probetest"
	"github.com/alibaba/opensandbox/healthd/pkg/sampler"
	"github.com/alibaba/opensandbox/healthd/pkg/snapshot"
)

func stepClock() func() time.Time {
	t := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func fullSample(rx uint64, fsUsed uint64) *probe.RawSample {
	return &probe.RawSample{
		CPU:    probe.CPUSample{Manufacturer: "Intel", Brand: "Xeon", SpeedGHz: 2.5, Cores: 8},
		Memory: probe.MemorySample{Total: 1000, Used: 250, Free: 750},
		Filesystems: []probe.Filesystem{
			{Device: "/dev/sda1", Mountpoint: "/", Size: 1000, Used: fsUsed, Available: 1000 - fsUsed},
		},
		Interfaces: []probe.NetInterface{{Name: "eth0", RxBytes: rx, TxBytes: rx / 2}},
		Processes: []probe.Process{
			{PID: 1, Name: "init", CPU: 0.5, Memory: 100},
			{PID: 2, Name: "worker", CPU: 20, Memory: 400},
		},
	}
}

func newTestEngine(t *testing.T, p probe.Probe, opts ...Option) *Engine {
	t.Helper()
	s := sampler.New(p, sampler.WithClock(stepClock()), sampler.WithTimeout(time.Second))
	e, err := New(s, snapshot.NewCache(), opts...)
	require.NoError(t, err)
	return e
}

func TestNotReadyBeforeFirstCycle(t *testing.T) {
	fake := probetest.New(probetest.Step{Sample: probetest.AllFailed()})
	e := newTestEngine(t, fake)

	_, err := e.Cache().Read()
	assert.True(t, snapshot.IsNotReady(err))

	require.Error(t, e.RunOnce(context.Background()))
	_, err = e.Cache().Read()
	assert.True(t, snapshot.IsNotReady(err))
	assert.Equal(t, "empty", e.Status().Cache)
}

func TestNetworkRateBetweenTwoSamples(t *testing.T) {
	fake := probetest.New(
		probetest.Step{Sample: fullSample(1000, 100)},
		probetest.Step{Sample: fullSample(3000, 100)},
	)
	e := newTestEngine(t, fake)

	require.NoError(t, e.RunOnce(context.Background()))
	first, err := e.Cache().Read()
	require.NoError(t, err)
	assert.Nil(t, first.Network.Download)
	assert.Nil(t, first.Network.Upload)
	assert.Equal(t, uint64(1000), first.Network.TotalDownload)

	require.NoError(t, e.RunOnce(context.Background()))
	second, err := e.Cache().Read()
	require.NoError(t, err)
	require.NotNil(t, second.Network.Download)
	assert.InDelta(t, 2000.0, *second.Network.Download, 1e-9)
	assert.InDelta(t, 1000.0, *second.Network.Upload, 1e-9)
	assert.Equal(t, uint64(3000), second.Network.TotalDownload)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestStorageFailureCarriesPreviousValues(t *testing.T) {
	fake := probetest.New(
		probetest.Step{Sample: fullSample(1000, 100)},
		probetest.Step{Sample: fullSample(2000, 200)},
		probetest.Step{Sample: probetest.Failing(*fullSample(3000, 300), probe.FamilyStorage)},
	)
	e := newTestEngine(t, fake)

	for i := 0; i < 3; i++ {
		require.NoError(t, e.RunOnce(context.Background()))
	}
	snap, err := e.Cache().Read()
	require.NoError(t, err)
	pair := e.sampler.CurrentPair()

	assert.True(t, snap.Storage.Stale)
	assert.Equal(t, uint64(200), snap.Storage.Used)
	assert.Equal(t, uint64(800), snap.Storage.Available)
	require.NotNil(t, snap.Storage.AsOf)
	assert.Equal(t, pair.Previous.Timestamp, *snap.Storage.AsOf)
	assert.NotEmpty(t, snap.Storage.Reason)

	assert.False(t, snap.CPU.Stale)
	assert.False(t, snap.Memory.Stale)
	assert.False(t, snap.Network.Stale)
	assert.False(t, snap.Processes.Stale)
	assert.Equal(t, pair.Current.Timestamp, *snap.Memory.AsOf)
	assert.Equal(t, uint64(3000), snap.Network.TotalDownload)
}

func TestStaleFamilyRecovers(t *testing.T) {
	fake := probetest.New(
		probetest.Step{Sample: fullSample(1000, 100)},
		probetest.Step{Sample: probetest.Failing(*fullSample(2000, 200), probe.FamilyStorage)},
		probetest.Step{Sample: fullSample(3000, 300)},
	)
	e := newTestEngine(t, fake)

	require.NoError(t, e.RunOnce(context.Background()))
	require.NoError(t, e.RunOnce(context.Background()))
	snap, _ := e.Cache().Read()
	assert.True(t, snap.Storage.Stale)

	require.NoError(t, e.RunOnce(context.Background()))
	snap, _ = e.Cache().Read()
	assert.False(t, snap.Storage.Stale)
	assert.Empty(t, snap.Storage.Reason)
	assert.Equal(t, uint64(300), snap.Storage.Used)
}

func TestMissingFamilyStaysZero(t *testing.T) {
	fake := probetest.New(probetest.Step{Sample: probetest.Failing(*fullSample(1000, 100), probe.FamilyProcesses)})
	e := newTestEngine(t, fake)

	require.NoError(t, e.RunOnce(context.Background()))
	snap, err := e.Cache().Read()
	require.NoError(t, err)
	assert.True(t, snap.Processes.Stale)
	assert.Nil(t, snap.Processes.AsOf)
	assert.NotNil(t, snap.CPU.TopProcesses)
	assert.Empty(t, snap.CPU.TopProcesses)
	assert.Empty(t, snap.Memory.TopProcesses)
}

func TestTotalFailureKeepsSnapshot(t *testing.T) {
	fake := probetest.New(
		probetest.Step{Sample: fullSample(1000, 100)},
		probetest.Step{Sample: probetest.AllFailed()},
	)
	e := newTestEngine(t, fake)

	require.NoError(t, e.RunOnce(context.Background()))
	before, _ := e.Cache().Read()

	err := e.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, probe.ErrTransient)

	after, err := e.Cache().Read()
	require.NoError(t, err)
	assert.Same(t, before, after)

	st := e.Status()
	assert.Equal(t, uint64(2), st.Cycles)
	assert.Equal(t, uint64(1), st.Sampler.ConsecutiveFailures)
	assert.Equal(t, before.ID, st.LastSnapshotID)
}

type recorderFunc func(ctx context.Context, s *snapshot.Snapshot) error

func (f recorderFunc) Record(ctx context.Context, s *snapshot.Snapshot) error {
	return f(ctx, s)
}

func TestRecorderAndSubscribers(t *testing.T) {
	var recorded []string
	rec := recorderFunc(func(_ context.Context, s *snapshot.Snapshot) error {
		recorded = append(recorded, s.ID)
		return errors.New("disk full")
	})
	fake := probetest.New(probetest.Step{Sample: fullSample(1000, 100)})
	e := newTestEngine(t, fake, WithRecorder(rec))

	ch, cancel := e.Subscribe()
	assert.Equal(t, 1, e.hub.size())

	// a failing recorder does not fail the cycle
	require.NoError(t, e.RunOnce(context.Background()))
	require.NoError(t, e.RunOnce(context.Background()))

	latest, _ := e.Cache().Read()
	got := <-ch
	assert.Equal(t, latest.ID, got.ID, "slow subscriber sees the latest snapshot")
	assert.Len(t, recorded, 2)

	cancel()
	cancel()
	assert.Equal(t, 0, e.hub.size())
	_, open := <-ch
	assert.False(t, open)
}

func TestStalledRecorderIsBoundedByInterval(t *testing.T) {
	recErr := make(chan error, 1)
	rec := recorderFunc(func(ctx context.Context, _ *snapshot.Snapshot) error {
		<-ctx.Done()
		recErr <- ctx.Err()
		return ctx.Err()
	})
	fake := probetest.New(probetest.Step{Sample: fullSample(1000, 100)})
	e := newTestEngine(t, fake, WithRecorder(rec), WithInterval(30*time.Millisecond))

	start := time.Now()
	require.NoError(t, e.RunOnce(context.Background()))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.ErrorIs(t, <-recErr, context.DeadlineExceeded)

	_, err := e.Cache().Read()
	assert.NoError(t, err, "snapshot is published before the history write")
}

type slowProbe struct {
	delay time.Duration
	calls chan struct{}
}

func (p *slowProbe) Collect(ctx context.Context) (*probe.RawSample, error) {
	select {
	case p.calls <- struct{}{}:
	default:
	}
	time.Sleep(p.delay)
	s := fullSample(1000, 100)
	return s, nil
}

func TestRunSkipsOverrunTicksAndStops(t *testing.T) {
	p := &slowProbe{delay: 60 * time.Millisecond, calls: make(chan struct{}, 64)}
	e := newTestEngine(t, p, WithInterval(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	time.Sleep(300 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
	}

	st := e.Status()
	assert.Greater(t, st.SkippedTicks, uint64(0))
	// cycles never overlap: at most one per probe delay
	assert.LessOrEqual(t, st.Cycles, uint64(300/60+1))
	assert.Equal(t, "populated", st.Cache)
}

func TestNewRejectsInvalidInterval(t *testing.T) {
	_, err := New(sampler.New(probetest.New()), snapshot.NewCache(), WithInterval(0))
	assert.ErrorIs(t, err, ErrInvalidInterval)
}
