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

package aggregate

import (
	"cmp"
	"slices"

	"github.com/alibaba/opensandbox/healthd/pkg/probe"
	"github.com/alibaba/opensandbox/healthd/pkg/rate"
)

// DefaultTopN is the length of the ranked process lists.
const DefaultTopN = 5

type StorageSummary struct {
	Total     uint64
	Used      uint64
	Available uint64
	Usage     float64
}

// Storage sums every filesystem of the sample.
func Storage(filesystems []probe.Filesystem) StorageSummary {
	var out StorageSummary
	for _, fs := range filesystems {
		out.Total += fs.Size
		out.Used += fs.Used
		out.Available += fs.Available
	}
	out.Usage = Percent(out.Used, out.Total)
	return out
}

type MemorySummary struct {
	Total uint64
	Used  uint64
	Free  uint64
	Usage float64
}

func Memory(m probe.MemorySample) MemorySummary {
	return MemorySummary{
		Total: m.Total,
		Used:  m.Used,
		Free:  m.Free,
		Usage: Percent(m.Used, m.Total),
	}
}

type NetworkSummary struct {
	RxBytes uint64
	TxBytes uint64
	RxRate  float64
	TxRate  float64
	// HasRate is false until at least one interface was seen twice.
	HasRate bool
}

// Network sums the interfaces of the current sample. Rates are summed over
// the interfaces that have one.
func Network(ifaces []probe.NetInterface, rates map[string]rate.InterfaceRate) NetworkSummary {
	var out NetworkSummary
	for _, iface := range ifaces {
		out.RxBytes += iface.RxBytes
		out.TxBytes += iface.TxBytes
		r, ok := rates[iface.Name]
		if !ok {
			continue
		}
		out.RxRate += r.Rx
		out.TxRate += r.Tx
		out.HasRate = true
	}
	return out
}

// Percent returns part/total*100, or zero when total is zero.
func Percent(part, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// TopN ranks processes by metric: entries with a metric <= 0 are dropped, the
// rest sorted descending with ties broken by ascending pid, at most n kept.
func TopN(procs []probe.Process, n int, metric func(probe.Process) float64) []probe.Process {
	if n <= 0 {
		return []probe.Process{}
	}
	ranked := make([]probe.Process, 0, len(procs))
	for _, p := range procs {
		if metric(p) > 0 {
			ranked = append(ranked, p)
		}
	}
	slices.SortStableFunc(ranked, func(a, b probe.Process) int {
		if c := cmp.Compare(metric(b), metric(a)); c != 0 {
			return c
		}
		return cmp.Compare(a.PID, b.PID)
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func TopByCPU(procs []probe.Process, n int) []probe.Process {
	return TopN(procs, n, func(p probe.Process) float64 { return p.CPU })
}

func TopByMemory(procs []probe.Process, n int) []probe.Process {
	return TopN(procs, n, func(p probe.Process) float64 { return float64(p.Memory) })
}
