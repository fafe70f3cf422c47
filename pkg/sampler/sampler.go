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

package sampler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/retry"

	"github.com/alibaba/opensandbox/healthd/pkg/log"
	"github.com/alibaba/opensandbox/healthd/pkg/probe"
)

const DefaultTimeout = 5 * time.Second

// Pair is the single-slot ring of the two latest successful samples.
type Pair struct {
	// Previous is nil until two successful samples exist.
	Previous *probe.RawSample
	// Current is nil until the first successful sample.
	Current *probe.RawSample
}

// Health describes the outcome of recent ticks.
type Health struct {
	Ticks               uint64    `json:"ticks"`
	FailedTicks         uint64    `json:"failed_ticks"`
	ConsecutiveFailures uint64    `json:"consecutive_failures"`
	LastTickAt          time.Time `json:"last_tick_at,omitempty"`
	LastSuccessAt       time.Time `json:"last_success_at,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
}

// Sampler owns the previous/current sample pair.
type Sampler struct {
	probe   probe.Probe
	timeout time.Duration
	backoff wait.Backoff
	now     func() time.Time

	mu     sync.RWMutex
	pair   Pair
	health Health
}

type Option func(*Sampler)

// WithTimeout bounds every tick, retries included.
func WithTimeout(d time.Duration) Option {
	return func(s *Sampler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRetries retries a tick that failed completely with a transient error.
func WithRetries(retries int, delay time.Duration) Option {
	return func(s *Sampler) {
		if retries < 0 {
			retries = 0
		}
		s.backoff = wait.Backoff{
			Steps:    retries + 1,
			Duration: delay,
			Factor:   2,
			Jitter:   0.1,
		}
	}
}

// WithClock overrides the clock used to stamp samples.
func WithClock(now func() time.Time) Option {
	return func(s *Sampler) {
		if now != nil {
			s.now = now
		}
	}
}

func New(p probe.Probe, opts ...Option) *Sampler {
	s := &Sampler{
		probe:   p,
		timeout: DefaultTimeout,
		backoff: wait.Backoff{Steps: 1},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tick collects one sample. A sample in which at least one family succeeded
// replaces the current one; a total failure leaves the pair untouched and is
// returned as error.
func (s *Sampler) Tick(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var sample *probe.RawSample
	err := retry.OnError(s.backoff, func(err error) bool {
		if ctx.Err() != nil {
			return false
		}
		retriable := errors.Is(err, probe.ErrTransient) || errors.Is(err, probe.ErrTimeout)
		if retriable {
			log.Debug("retrying failed collection: %v", err)
		}
		return retriable
	}, func() error {
		var collectErr error
		sample, collectErr = s.probe.Collect(ctx)
		if collectErr != nil {
			return collectErr
		}
		return sample.Err()
	})

	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.health.Ticks++
	s.health.LastTickAt = now
	if err != nil {
		s.health.FailedTicks++
		s.health.ConsecutiveFailures++
		s.health.LastError = err.Error()
		return fmt.Errorf("collect sample: %w", err)
	}

	sample.Timestamp = now
	s.pair = Pair{Previous: s.pair.Current, Current: sample}
	s.health.ConsecutiveFailures = 0
	s.health.LastSuccessAt = now
	s.health.LastError = ""
	return nil
}

// CurrentPair returns the latest successful samples.
func (s *Sampler) CurrentPair() Pair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair
}

func (s *Sampler) Health() Health {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.health
}
