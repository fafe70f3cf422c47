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

// Package probetest provides a scripted probe for tests.
package probetest

import (
	"context"
	"errors"
	"sync"

	"github.com/alibaba/opensandbox/healthd/pkg/probe"
)

// Step is one scripted answer of the fake probe.
type Step struct {
	Sample *probe.RawSample
	Err    error
	// Block makes Collect wait for ctx to be done before answering.
	Block bool
}

// Probe replays steps in order and repeats the last one once exhausted.
type Probe struct {
	mu    sync.Mutex
	steps []Step
	calls int
}

func New(steps ...Step) *Probe {
	return &Probe{steps: steps}
}

// Push appends steps to the script.
func (p *Probe) Push(steps ...Step) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps = append(p.steps, steps...)
}

func (p *Probe) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *Probe) Collect(ctx context.Context) (*probe.RawSample, error) {
	p.mu.Lock()
	if len(p.steps) == 0 {
		p.calls++
		p.mu.Unlock()
		return nil, errors.New("probetest: no steps scripted")
	}
	idx := p.calls
	if idx >= len(p.steps) {
		idx = len(p.steps) - 1
	}
	step := p.steps[idx]
	p.calls++
	p.mu.Unlock()

	if step.Block {
		<-ctx.Done()
		return nil, &probe.Failure{Family: probe.FamilyCPU, Kind: probe.KindTimeout, Err: ctx.Err()}
	}
	if step.Err != nil {
		return step.Sample, step.Err
	}
	// hand out a copy so the sampler's timestamping does not leak into the script
	cp := *step.Sample
	return &cp, cp.Err()
}

// Fail builds a failure for the given family and sentinel error.
func Fail(family probe.Family, err error) *probe.Failure {
	return probe.NewFailure(family, err)
}

// Failing builds a sample in which the given families failed transiently.
func Failing(base probe.RawSample, families ...probe.Family) *probe.RawSample {
	out := base
	out.Failures = nil
	for _, f := range families {
		out.MarkFailed(Fail(f, probe.ErrTransient))
	}
	return &out
}

// AllFailed builds a sample with every family failed transiently.
func AllFailed() *probe.RawSample {
	return Failing(probe.RawSample{}, probe.Families...)
}
