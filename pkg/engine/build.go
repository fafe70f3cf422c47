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
	"github.com/google/uuid"

	"github.com/alibaba/opensandbox/healthd/pkg/aggregate"
	"github.com/alibaba/opensandbox/healthd/pkg/probe"
	"github.com/alibaba/opensandbox/healthd/pkg/rate"
	"github.com/alibaba/opensandbox/healthd/pkg/sampler"
	"github.com/alibaba/opensandbox/healthd/pkg/snapshot"
)

// Builder turns the sampler pair into a snapshot.
type Builder struct {
	topN  int
	newID func() string
}

func NewBuilder(topN int) *Builder {
	if topN <= 0 {
		topN = aggregate.DefaultTopN
	}
	return &Builder{topN: topN, newID: uuid.NewString}
}

// Build derives the next snapshot from prev and the latest pair. Families
// that failed in the current sample keep the section of prev, marked stale
// as of the last cycle they were refreshed. Nil is returned when the pair
// holds no successful sample yet.
func (b *Builder) Build(prev *snapshot.Snapshot, pair sampler.Pair) *snapshot.Snapshot {
	cur := pair.Current
	if cur == nil {
		return nil
	}

	out := &snapshot.Snapshot{
		ID:          b.newID(),
		GeneratedAt: cur.Timestamp,
		States:      make(map[string]snapshot.FamilyState, len(probe.Families)),
	}
	fresh := make(map[probe.Family]bool, len(probe.Families))
	for _, f := range probe.Families {
		state := prev.State(string(f))
		if fail := cur.Failure(f); fail != nil {
			state = state.Fail(fail.Reason())
		} else {
			state = state.Succeed(cur.Timestamp)
			fresh[f] = true
		}
		out.States[string(f)] = state
	}

	var last snapshot.Snapshot
	if prev != nil {
		last = *prev
	}

	if fresh[probe.FamilyCPU] {
		out.CPU = snapshot.CPU{
			Manufacturer: cur.CPU.Manufacturer,
			Brand:        cur.CPU.Brand,
			Speed:        cur.CPU.SpeedGHz,
			Cores:        cur.CPU.Cores,
			Usage:        cpuUsage(pair.Previous, cur),
		}
	} else {
		out.CPU = last.CPU
	}
	out.CPU.Freshness = out.States[string(probe.FamilyCPU)].Freshness()

	if fresh[probe.FamilyMemory] {
		m := aggregate.Memory(cur.Memory)
		out.Memory = snapshot.Memory{Total: m.Total, Used: m.Used, Free: m.Free, Usage: m.Usage}
	} else {
		out.Memory = last.Memory
	}
	out.Memory.Freshness = out.States[string(probe.FamilyMemory)].Freshness()

	if fresh[probe.FamilyStorage] {
		s := aggregate.Storage(cur.Filesystems)
		out.Storage = snapshot.Storage{Total: s.Total, Used: s.Used, Available: s.Available, Usage: s.Usage}
	} else {
		out.Storage = last.Storage
	}
	out.Storage.Freshness = out.States[string(probe.FamilyStorage)].Freshness()

	if fresh[probe.FamilyNetwork] {
		out.Network = networkSection(pair.Previous, cur)
	} else {
		out.Network = last.Network
	}
	out.Network.Freshness = out.States[string(probe.FamilyNetwork)].Freshness()

	// top lists live in the cpu and memory sections but follow the process family
	if fresh[probe.FamilyProcesses] {
		out.CPU.TopProcesses = convertProcesses(aggregate.TopByCPU(cur.Processes, b.topN))
		out.Memory.TopProcesses = convertProcesses(aggregate.TopByMemory(cur.Processes, b.topN))
	} else {
		out.CPU.TopProcesses = orEmpty(last.CPU.TopProcesses)
		out.Memory.TopProcesses = orEmpty(last.Memory.TopProcesses)
	}
	out.Processes = out.States[string(probe.FamilyProcesses)].Freshness()

	return out
}

// cpuUsage prefers the busy ratio between two time readings and falls back
// to the instantaneous load of the current sample.
func cpuUsage(prev, cur *probe.RawSample) *float64 {
	if prev != nil && !prev.Failed(probe.FamilyCPU) && prev.CPU.Times != nil && cur.CPU.Times != nil {
		if usage, ok := rate.CPUUsage(*prev.CPU.Times, *cur.CPU.Times); ok {
			return &usage
		}
	}
	if cur.CPU.Load != nil {
		load := *cur.CPU.Load
		return &load
	}
	return nil
}

func networkSection(prev, cur *probe.RawSample) snapshot.Network {
	var rates map[string]rate.InterfaceRate
	if prev != nil && !prev.Failed(probe.FamilyNetwork) {
		rates = rate.InterfaceRates(prev.Interfaces, cur.Interfaces, rate.Elapsed(prev.Timestamp, cur.Timestamp))
	}
	sum := aggregate.Network(cur.Interfaces, rates)

	out := snapshot.Network{TotalDownload: sum.RxBytes, TotalUpload: sum.TxBytes}
	if sum.HasRate {
		rx, tx := sum.RxRate, sum.TxRate
		out.Download = &rx
		out.Upload = &tx
	}
	return out
}

func convertProcesses(procs []probe.Process) []snapshot.Process {
	out := make([]snapshot.Process, 0, len(procs))
	for _, p := range procs {
		out = append(out, snapshot.Process{PID: p.PID, Name: p.Name, CPU: p.CPU, Memory: p.Memory})
	}
	return out
}

func orEmpty(procs []snapshot.Process) []snapshot.Process {
	if procs == nil {
		return []snapshot.Process{}
	}
	return procs
}
