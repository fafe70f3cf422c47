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

package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pscpu "github.com/shirou/gopsutil/cpu"
	psdisk "github.com/shirou/gopsutil/disk"
	psmem "github.com/shirou/gopsutil/mem"
	psnet "github.com/shirou/gopsutil/net"
	psprocess "github.com/shirou/gopsutil/process"
	"golang.org/x/sync/errgroup"

	"github.com/alibaba/opensandbox/healthd/pkg/log"
	"github.com/alibaba/opensandbox/healthd/pkg/util/glob"
)

// HostConfig filters the devices reported by HostProbe.
type HostConfig struct {
	ExcludeInterfaces *glob.Matcher
	ExcludeMounts     *glob.Matcher
	ExcludeFSTypes    *glob.Matcher
}

type hostReaders struct {
	cpu       func(context.Context) (CPUSample, error)
	memory    func(context.Context) (MemorySample, error)
	storage   func(context.Context) ([]Filesystem, error)
	processes func(context.Context) ([]Process, error)
	network   func(context.Context) ([]NetInterface, error)
}

// HostProbe reads the local host through gopsutil.
type HostProbe struct {
	cfg     HostConfig
	readers hostReaders

	mu       sync.Mutex
	disabled map[Family]*Failure
	inflight map[Family]bool
}

var errReadInFlight = errors.New("previous read still in flight")

var vendorNames = map[string]string{
	"GenuineIntel": "Intel",
	"AuthenticAMD": "AMD",
	"CentaurHauls": "VIA",
	"HygonGenuine": "Hygon",
}

func NewHostProbe(cfg HostConfig) *HostProbe {
	p := &HostProbe{
		cfg:      cfg,
		disabled: make(map[Family]*Failure),
		inflight: make(map[Family]bool),
	}
	p.readers = hostReaders{
		cpu:       p.readCPU,
		memory:    p.readMemory,
		storage:   p.readStorage,
		processes: p.readProcesses,
		network:   p.readNetwork,
	}
	return p
}

// Collect reads all families concurrently.
func (p *HostProbe) Collect(ctx context.Context) (*RawSample, error) {
	sample := &RawSample{}

	var (
		mu     sync.Mutex
		g      errgroup.Group
		cpu    CPUSample
		mem    MemorySample
		fs     []Filesystem
		procs  []Process
		ifaces []NetInterface
	)
	record := func(fail *Failure) {
		if fail == nil {
			return
		}
		mu.Lock()
		sample.MarkFailed(fail)
		mu.Unlock()
		p.observe(fail)
	}

	g.Go(func() error {
		var fail *Failure
		cpu, fail = collectDisabled(ctx, p, FamilyCPU, p.readers.cpu)
		record(fail)
		return nil
	})
	g.Go(func() error {
		var fail *Failure
		mem, fail = collectDisabled(ctx, p, FamilyMemory, p.readers.memory)
		record(fail)
		return nil
	})
	g.Go(func() error {
		var fail *Failure
		fs, fail = collectDisabled(ctx, p, FamilyStorage, p.readers.storage)
		record(fail)
		return nil
	})
	g.Go(func() error {
		var fail *Failure
		procs, fail = collectDisabled(ctx, p, FamilyProcesses, p.readers.processes)
		record(fail)
		return nil
	})
	g.Go(func() error {
		var fail *Failure
		ifaces, fail = collectDisabled(ctx, p, FamilyNetwork, p.readers.network)
		record(fail)
		return nil
	})
	_ = g.Wait()

	sample.CPU = cpu
	sample.Memory = mem
	sample.Filesystems = fs
	sample.Processes = procs
	sample.Interfaces = ifaces
	return sample, sample.Err()
}

// collectDisabled skips families that were found unavailable earlier, and
// families whose previous read is still running after being abandoned.
// At most one platform read per family is ever outstanding.
func collectDisabled[T any](ctx context.Context, p *HostProbe, family Family, read func(context.Context) (T, error)) (T, *Failure) {
	var zero T
	if fail := p.disabledFailure(family); fail != nil {
		return zero, fail
	}
	if !p.acquire(family) {
		log.Debug("probe family %s still busy with an abandoned read", family)
		return zero, &Failure{Family: family, Kind: KindTimeout, Err: errReadInFlight}
	}
	return collectFamily(ctx, family, read, func() { p.release(family) })
}

func (p *HostProbe) acquire(family Family) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inflight[family] {
		return false
	}
	p.inflight[family] = true
	return true
}

func (p *HostProbe) release(family Family) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, family)
}

func (p *HostProbe) disabledFailure(family Family) *Failure {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disabled[family]
}

func (p *HostProbe) observe(fail *Failure) {
	if fail.Kind != KindUnavailable {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.disabled[fail.Family]; ok {
		return
	}
	p.disabled[fail.Family] = fail
	log.Warn("probe family %s disabled: %v", fail.Family, fail)
}

// Disabled lists the families that will no longer be collected.
func (p *HostProbe) Disabled() []Family {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Family, 0, len(p.disabled))
	for _, f := range Families {
		if _, ok := p.disabled[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

func (p *HostProbe) readCPU(ctx context.Context) (CPUSample, error) {
	infos, err := pscpu.InfoWithContext(ctx)
	if err != nil {
		return CPUSample{}, fmt.Errorf("cpu info: %w", err)
	}

	out := CPUSample{}
	if len(infos) > 0 {
		vendor := strings.TrimSpace(infos[0].VendorID)
		if name, ok := vendorNames[vendor]; ok {
			vendor = name
		}
		out.Manufacturer = vendor
		out.Brand = strings.TrimSpace(infos[0].ModelName)
		out.SpeedGHz = infos[0].Mhz / 1000
	}
	if cores, cErr := pscpu.CountsWithContext(ctx, true); cErr == nil && cores > 0 {
		out.Cores = cores
	} else {
		out.Cores = len(infos)
	}

	times, err := pscpu.TimesWithContext(ctx, false)
	if err != nil {
		return CPUSample{}, fmt.Errorf("cpu times: %w", err)
	}
	if len(times) > 0 {
		t := times[0]
		// guest time is already accounted in user on linux
		total := t.User + t.System + t.Idle + t.Nice + t.Iowait + t.Irq + t.Softirq + t.Steal
		idle := t.Idle + t.Iowait
		out.Times = &CPUTimes{Busy: total - idle, Total: total}
	}
	return out, nil
}

func (p *HostProbe) readMemory(ctx context.Context) (MemorySample, error) {
	vm, err := psmem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return MemorySample{}, fmt.Errorf("virtual memory: %w", err)
	}
	if vm.Total == 0 {
		return MemorySample{}, fmt.Errorf("%w: memory total is zero", ErrTransient)
	}
	return MemorySample{Total: vm.Total, Used: vm.Used, Free: vm.Free}, nil
}

func (p *HostProbe) readStorage(ctx context.Context) ([]Filesystem, error) {
	parts, err := psdisk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("disk partitions: %w", err)
	}

	var (
		out     []Filesystem
		lastErr error
		tried   int
	)
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		if p.cfg.ExcludeMounts.Match(part.Mountpoint) || p.cfg.ExcludeFSTypes.Match(part.Fstype) {
			continue
		}
		if _, dup := seen[part.Device]; dup {
			continue
		}
		seen[part.Device] = struct{}{}

		tried++
		usage, uErr := psdisk.UsageWithContext(ctx, part.Mountpoint)
		if uErr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Debug("skip mountpoint %s: %v", part.Mountpoint, uErr)
			lastErr = uErr
			continue
		}
		out = append(out, Filesystem{
			Device:     part.Device,
			Mountpoint: part.Mountpoint,
			FSType:     part.Fstype,
			Size:       usage.Total,
			Used:       usage.Used,
			Available:  usage.Free,
		})
	}
	if tried > 0 && len(out) == 0 {
		return nil, fmt.Errorf("no readable filesystem: %w", lastErr)
	}
	return out, nil
}

func (p *HostProbe) readProcesses(ctx context.Context) ([]Process, error) {
	procs, err := psprocess.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("process list: %w", err)
	}

	out := make([]Process, 0, len(procs))
	for _, proc := range procs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		name, nErr := proc.NameWithContext(ctx)
		if nErr != nil {
			// exited between listing and inspection
			continue
		}
		entry := Process{PID: proc.Pid, Name: name}
		if cpu, cErr := proc.CPUPercentWithContext(ctx); cErr == nil {
			entry.CPU = cpu
		}
		if mem, mErr := proc.MemoryInfoWithContext(ctx); mErr == nil && mem != nil {
			entry.Memory = mem.RSS
		}
		out = append(out, entry)
	}
	return out, nil
}

func (p *HostProbe) readNetwork(ctx context.Context) ([]NetInterface, error) {
	counters, err := psnet.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("net io counters: %w", err)
	}

	out := make([]NetInterface, 0, len(counters))
	for _, c := range counters {
		if p.cfg.ExcludeInterfaces.Match(c.Name) {
			continue
		}
		out = append(out, NetInterface{Name: c.Name, RxBytes: c.BytesRecv, TxBytes: c.BytesSent})
	}
	return out, nil
}
