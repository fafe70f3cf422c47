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

package snapshot

import (
	"time"
)

// Process is one entry of a ranked process list.
type Process struct {
	PID    int32   `json:"pid"`
	Name   string  `json:"name"`
	CPU    float64 `json:"cpu"`
	Memory uint64  `json:"memory"`
}

// Freshness tells readers whether a section was refreshed by the latest cycle.
type Freshness struct {
	Stale  bool       `json:"stale"`
	AsOf   *time.Time `json:"asOf,omitempty"`
	Reason string     `json:"reason,omitempty"`
}

type CPU struct {
	Manufacturer string    `json:"manufacturer"`
	Brand        string    `json:"brand"`
	Speed        float64   `json:"speed"`
	Cores        int       `json:"cores"`
	Usage        *float64  `json:"usage"`
	TopProcesses []Process `json:"topProcesses"`
	Freshness
}

type Memory struct {
	Total        uint64    `json:"total"`
	Used         uint64    `json:"used"`
	Free         uint64    `json:"free"`
	Usage        float64   `json:"usage"`
	TopProcesses []Process `json:"topProcesses"`
	Freshness
}

type Storage struct {
	Total     uint64  `json:"total"`
	Used      uint64  `json:"used"`
	Available uint64  `json:"available"`
	Usage     float64 `json:"usage"`
	Freshness
}

// Network rates are in bytes per second and stay nil until two samples of an
// interface exist.
type Network struct {
	Download      *float64 `json:"download"`
	Upload        *float64 `json:"upload"`
	TotalDownload uint64   `json:"total_download"`
	TotalUpload   uint64   `json:"total_upload"`
	Freshness
}

// Snapshot is the published result of one collection cycle. It is never
// modified after Publish.
type Snapshot struct {
	ID          string    `json:"id"`
	GeneratedAt time.Time `json:"generatedAt"`
	CPU         CPU       `json:"cpu"`
	Memory      Memory    `json:"memory"`
	Storage     Storage   `json:"storage"`
	Network     Network   `json:"network"`
	// Processes covers the freshness of both topProcesses lists.
	Processes Freshness `json:"processes"`

	// States keep the per-family state machine between cycles.
	States map[string]FamilyState `json:"-"`
}

// State returns the state of a family, Missing when unknown.
func (s *Snapshot) State(family string) FamilyState {
	if s == nil {
		return FamilyState{}
	}
	return s.States[family]
}
