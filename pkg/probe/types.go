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
	"errors"
	"time"
)

// Family names one independently collected group of counters.
type Family string

const (
	FamilyCPU       Family = "cpu"
	FamilyMemory    Family = "memory"
	FamilyStorage   Family = "storage"
	FamilyProcesses Family = "processes"
	FamilyNetwork   Family = "network"
)

// Families lists every family in collection order.
var Families = []Family{FamilyCPU, FamilyMemory, FamilyStorage, FamilyProcesses, FamilyNetwork}

// CPUTimes holds cumulative CPU time in seconds across all cores.
type CPUTimes struct {
	Busy  float64
	Total float64
}

// CPUSample describes the processor and its current load.
type CPUSample struct {
	Manufacturer string
	Brand        string
	SpeedGHz     float64
	Cores        int
	// Load is an instantaneous usage percentage when the platform reports one.
	Load *float64
	// Times are cumulative counters used to derive usage between two samples.
	Times *CPUTimes
}

type MemorySample struct {
	Total uint64
	Used  uint64
	Free  uint64
}

type Filesystem struct {
	Device     string
	Mountpoint string
	FSType     string
	Size       uint64
	Used       uint64
	Available  uint64
}

// NetInterface carries cumulative byte counters of one interface.
type NetInterface struct {
	Name    string
	RxBytes uint64
	TxBytes uint64
}

// Process is one entry of the process table. PIDs are unique within a sample
// only and may be reused between samples.
type Process struct {
	PID    int32
	Name   string
	CPU    float64
	Memory uint64
}

// RawSample is one capture of all families. It is not modified once the
// sampler has stored it.
type RawSample struct {
	Timestamp   time.Time
	CPU         CPUSample
	Memory      MemorySample
	Filesystems []Filesystem
	Interfaces  []NetInterface
	Processes   []Process
	Failures    map[Family]*Failure
}

// Failed reports whether the family could not be collected for this sample.
func (s *RawSample) Failed(f Family) bool {
	if s == nil {
		return true
	}
	_, ok := s.Failures[f]
	return ok
}

// Failure returns the failure recorded for the family, if any.
func (s *RawSample) Failure(f Family) *Failure {
	if s == nil {
		return nil
	}
	return s.Failures[f]
}

// Succeeded reports whether at least one family was collected.
func (s *RawSample) Succeeded() bool {
	if s == nil {
		return false
	}
	for _, f := range Families {
		if !s.Failed(f) {
			return true
		}
	}
	return false
}

// Err joins all family failures when nothing could be collected and returns
// nil otherwise.
func (s *RawSample) Err() error {
	if s == nil {
		return errors.New("no sample collected")
	}
	if s.Succeeded() {
		return nil
	}
	errs := make([]error, 0, len(Families))
	for _, f := range Families {
		if fail := s.Failures[f]; fail != nil {
			errs = append(errs, fail)
		}
	}
	return errors.Join(errs...)
}

// MarkFailed records a family failure.
func (s *RawSample) MarkFailed(fail *Failure) {
	if fail == nil {
		return
	}
	if s.Failures == nil {
		s.Failures = make(map[Family]*Failure)
	}
	s.Failures[fail.Family] = fail
}
