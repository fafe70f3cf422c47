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

package rate

import (
	"math"
	"time"

	"github.com/alibaba/opensandbox/healthd/pkg/probe"
)

// Rate returns the per-second increase of a cumulative counter.
//
// A counter that went backwards is assumed to have been reset to zero and to
// have accumulated curr since, so the delta is curr alone. This is a
// heuristic: wrap semantics differ between platforms and are not recovered
// exactly. A non-positive elapsed time yields zero.
func Rate(prev, curr uint64, elapsedSeconds float64) float64 {
	if !(elapsedSeconds > 0) || math.IsInf(elapsedSeconds, 0) {
		return 0
	}
	delta := curr
	if curr >= prev {
		delta = curr - prev
	}
	return float64(delta) / elapsedSeconds
}

// Elapsed returns the seconds between two sample timestamps.
func Elapsed(prev, curr time.Time) float64 {
	return curr.Sub(prev).Seconds()
}

// InterfaceRate is the throughput of one interface in bytes per second.
type InterfaceRate struct {
	Rx float64
	Tx float64
}

// InterfaceRates matches interfaces by name. Only interfaces present in both
// samples get a rate; vanished ones are dropped and new ones wait for their
// second sample.
func InterfaceRates(prev, curr []probe.NetInterface, elapsedSeconds float64) map[string]InterfaceRate {
	before := make(map[string]probe.NetInterface, len(prev))
	for _, iface := range prev {
		before[iface.Name] = iface
	}

	out := make(map[string]InterfaceRate, len(curr))
	for _, iface := range curr {
		p, ok := before[iface.Name]
		if !ok {
			continue
		}
		out[iface.Name] = InterfaceRate{
			Rx: Rate(p.RxBytes, iface.RxBytes, elapsedSeconds),
			Tx: Rate(p.TxBytes, iface.TxBytes, elapsedSeconds),
		}
	}
	return out
}

// CPUUsage derives the busy percentage between two CPU time readings.
// ok is false when the total did not advance.
func CPUUsage(prev, curr probe.CPUTimes) (usage float64, ok bool) {
	total := curr.Total - prev.Total
	if !(total > 0) {
		return 0, false
	}
	busy := curr.Busy - prev.Busy
	return clampPercent(busy / total * 100), true
}

func clampPercent(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
