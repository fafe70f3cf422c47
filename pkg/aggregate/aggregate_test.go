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
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alibaba/opensandbox/healthd/pkg/probe"
	"github.com/alibaba/opensandbox/healthd/pkg/rate"
)

func TestStorage(t *testing.T) {
	got := Storage([]probe.Filesystem{
		{Device: "a", Size: 100, Used: 50, Available: 50},
		{Device: "b", Size: 200, Used: 100, Available: 100},
		{Device: "c", Size: 300, Used: 150, Available: 150},
	})

	assert.Equal(t, uint64(600), got.Total)
	assert.Equal(t, uint64(300), got.Used)
	assert.Equal(t, uint64(300), got.Available)
	assert.Equal(t, 50.0, got.Usage)
}

func TestStorageZeroSize(t *testing.T) {
	got := Storage(nil)
	assert.Equal(t, 0.0, got.Usage)
	assert.False(t, math.IsNaN(got.Usage))

	got = Storage([]probe.Filesystem{{Device: "tmpfs"}})
	assert.Equal(t, 0.0, got.Usage)
}

func TestMemory(t *testing.T) {
	got := Memory(probe.MemorySample{Total: 8, Used: 2, Free: 6})
	assert.Equal(t, 25.0, got.Usage)
	assert.Equal(t, uint64(6), got.Free)

	assert.Equal(t, 0.0, Memory(probe.MemorySample{}).Usage)
}

func TestNetwork(t *testing.T) {
	ifaces := []probe.NetInterface{
		{Name: "eth0", RxBytes: 3000, TxBytes: 100},
		{Name: "eth1", RxBytes: 500, TxBytes: 50},
		{Name: "new0", RxBytes: 7, TxBytes: 7},
	}
	rates := map[string]rate.InterfaceRate{
		"eth0": {Rx: 2000, Tx: 10},
		"eth1": {Rx: 100, Tx: 5},
		"gone": {Rx: 1e9, Tx: 1e9},
	}

	got := Network(ifaces, rates)
	assert.Equal(t, uint64(3507), got.RxBytes)
	assert.Equal(t, uint64(157), got.TxBytes)
	assert.Equal(t, 2100.0, got.RxRate)
	assert.Equal(t, 15.0, got.TxRate)
	assert.True(t, got.HasRate)
}

func TestNetworkWithoutRates(t *testing.T) {
	got := Network([]probe.NetInterface{{Name: "eth0", RxBytes: 1000}}, nil)
	assert.False(t, got.HasRate)
	assert.Equal(t, uint64(1000), got.RxBytes)
	assert.Equal(t, 0.0, got.RxRate)
}

func TestTopByCPU(t *testing.T) {
	procs := []probe.Process{
		{PID: 9, Name: "idle", CPU: 0},
		{PID: 7, Name: "b", CPU: 50},
		{PID: 3, Name: "a", CPU: 50},
		{PID: 1, Name: "c", CPU: 90},
		{PID: 4, Name: "d", CPU: 10},
		{PID: 5, Name: "e", CPU: 20},
		{PID: 6, Name: "f", CPU: 30},
		{PID: 8, Name: "neg", CPU: -1},
	}

	got := TopByCPU(procs, DefaultTopN)
	pids := make([]int32, 0, len(got))
	for _, p := range got {
		pids = append(pids, p.PID)
	}
	assert.Equal(t, []int32{1, 3, 7, 6, 5}, pids)
}

func TestTopByMemoryIndependentOfCPU(t *testing.T) {
	procs := []probe.Process{
		{PID: 1, CPU: 90, Memory: 10},
		{PID: 2, CPU: 0, Memory: 500},
		{PID: 3, CPU: 5, Memory: 0},
	}

	got := TopByMemory(procs, DefaultTopN)
	assert.Len(t, got, 2)
	assert.Equal(t, int32(2), got[0].PID)
	assert.Equal(t, int32(1), got[1].PID)
}

func TestTopNFewerThanN(t *testing.T) {
	got := TopByCPU([]probe.Process{{PID: 1, CPU: 1}}, DefaultTopN)
	assert.Len(t, got, 1)

	assert.Empty(t, TopByCPU(nil, DefaultTopN))
	assert.Empty(t, TopByCPU([]probe.Process{{PID: 1, CPU: 1}}, 0))
}

func TestTopNProperties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for round := 0; round < 200; round++ {
		procs := make([]probe.Process, r.Intn(30))
		for i := range procs {
			procs[i] = probe.Process{PID: int32(i + 1), CPU: float64(r.Intn(6) - 1)}
		}
		r.Shuffle(len(procs), func(i, j int) { procs[i], procs[j] = procs[j], procs[i] })

		n := r.Intn(7)
		got := TopByCPU(procs, n)
		assert.LessOrEqual(t, len(got), n)
		for i, p := range got {
			assert.Greater(t, p.CPU, 0.0)
			if i == 0 {
				continue
			}
			prev := got[i-1]
			assert.True(t, prev.CPU > p.CPU || (prev.CPU == p.CPU && prev.PID < p.PID),
				"round %d: %v before %v", round, prev, p)
		}
	}
}
