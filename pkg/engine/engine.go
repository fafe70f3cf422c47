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
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/alibaba/opensandbox/healthd/pkg/log"
	"github.com/alibaba/opensandbox/healthd/pkg/probe"
	"github.com/alibaba/opensandbox/healthd/pkg/sampler"
	"github.com/alibaba/opensandbox/healthd/pkg/snapshot"
)

const DefaultInterval = 5 * time.Second

var ErrInvalidInterval = errors.New("engine interval must be positive")

// Recorder persists published snapshots.
type Recorder interface {
	Record(ctx context.Context, s *snapshot.Snapshot) error
}

// FamilyReporter lists the families a probe stopped collecting.
type FamilyReporter interface {
	Disabled() []probe.Family
}

// Status is the externally visible state of the engine.
type Status struct {
	Interval       string         `json:"interval"`
	Cache          string         `json:"cache"`
	Cycles         uint64         `json:"cycles"`
	SkippedTicks   uint64         `json:"skipped_ticks"`
	LastSnapshotID string         `json:"last_snapshot_id,omitempty"`
	Disabled       []string       `json:"disabled_families"`
	Sampler        sampler.Health `json:"sampler"`
	LogLevel       string         `json:"log_level"`
}

// Engine drives sampler ticks, builds snapshots and publishes them.
type Engine struct {
	interval time.Duration
	sampler  *sampler.Sampler
	builder  *Builder
	cache    *snapshot.Cache
	recorder Recorder
	families FamilyReporter
	hub      *hub

	// cycleMu serializes cycles; last is only touched under it.
	cycleMu sync.Mutex
	last    *snapshot.Snapshot

	cycles  atomic.Uint64
	skipped atomic.Uint64
}

type Option func(*Engine)

func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.interval = d
	}
}

func WithBuilder(b *Builder) Option {
	return func(e *Engine) {
		if b != nil {
			e.builder = b
		}
	}
}

// WithRecorder hands every published snapshot to r.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

func WithFamilyReporter(r FamilyReporter) Option {
	return func(e *Engine) {
		e.families = r
	}
}

func New(s *sampler.Sampler, cache *snapshot.Cache, opts ...Option) (*Engine, error) {
	e := &Engine{
		interval: DefaultInterval,
		sampler:  s,
		builder:  NewBuilder(0),
		cache:    cache,
		hub:      newHub(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.interval <= 0 {
		return nil, ErrInvalidInterval
	}
	return e, nil
}

// Cache returns the cache the engine publishes into.
func (e *Engine) Cache() *snapshot.Cache {
	return e.cache
}

// Run performs one cycle right away and then one per interval until ctx is
// done. Cancellation is observed between cycles only. A cycle that outlasts
// the interval swallows the ticks that fell due meanwhile.
func (e *Engine) Run(ctx context.Context) error {
	log.Info("metrics engine started, interval %s", e.interval)
	defer log.Info("metrics engine stopped after %d cycles", e.cycles.Load())

	e.cycle(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return nil
		}

		start := time.Now()
		e.cycle(ctx)
		if elapsed := time.Since(start); elapsed >= e.interval {
			missed := uint64(elapsed / e.interval)
			e.skipped.Add(missed)
			ticker.Reset(e.interval)
			select {
			case <-ticker.C:
			default:
			}
			log.Warn("collection cycle took %s, skipped %d tick(s)", elapsed, missed)
		}
	}
}

func (e *Engine) cycle(ctx context.Context) {
	// the sampler timeout bounds the cycle, stop only takes effect afterwards
	if err := e.RunOnce(context.WithoutCancel(ctx)); err != nil {
		log.Error("collection cycle failed: %v", err)
	}
}

// RunOnce runs a single tick, build and publish. A total probe failure is
// returned and leaves the cache untouched.
func (e *Engine) RunOnce(ctx context.Context) error {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()
	defer e.cycles.Add(1)

	if err := e.sampler.Tick(ctx); err != nil {
		return err
	}

	pair := e.sampler.CurrentPair()
	if failed := failedFamilies(pair.Current); len(failed) > 0 {
		log.Warn("partial collection, stale families: %s", strings.Join(failed, ","))
	}

	snap := e.builder.Build(e.last, pair)
	if snap == nil {
		return nil
	}
	e.cache.Publish(snap)
	e.last = snap
	e.hub.broadcast(snap)

	log.Debug("published snapshot %s: memory used %s, storage used %s, rx total %s",
		snap.ID,
		humanize.IBytes(snap.Memory.Used),
		humanize.IBytes(snap.Storage.Used),
		humanize.IBytes(snap.Network.TotalDownload))

	if e.recorder != nil {
		e.record(ctx, snap)
	}
	return nil
}

// record bounds the history write by one interval so a stalled backend
// cannot hold the cycle.
func (e *Engine) record(ctx context.Context, snap *snapshot.Snapshot) {
	ctx, cancel := context.WithTimeout(ctx, e.interval)
	defer cancel()
	if err := e.recorder.Record(ctx, snap); err != nil {
		log.Warn("failed to record snapshot %s: %v", snap.ID, err)
	}
}

// Subscribe delivers every snapshot published from now on. A slow
// subscriber only ever sees the latest one. The returned func unsubscribes.
func (e *Engine) Subscribe() (<-chan *snapshot.Snapshot, func()) {
	return e.hub.subscribe()
}

func (e *Engine) Status() Status {
	st := Status{
		Interval:     e.interval.String(),
		Cache:        e.cache.State().String(),
		Cycles:       e.cycles.Load(),
		SkippedTicks: e.skipped.Load(),
		Disabled:     []string{},
		Sampler:      e.sampler.Health(),
		LogLevel:     log.Level(),
	}
	if s, err := e.cache.Read(); err == nil {
		st.LastSnapshotID = s.ID
	}
	if e.families != nil {
		for _, f := range e.families.Disabled() {
			st.Disabled = append(st.Disabled, string(f))
		}
	}
	return st
}

func failedFamilies(s *probe.RawSample) []string {
	var out []string
	for _, f := range probe.Families {
		if fail := s.Failure(f); fail != nil {
			out = append(out, string(f)+"("+fail.Reason()+")")
		}
	}
	return out
}
