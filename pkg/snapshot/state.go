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

import "time"

type Status int

const (
	// Missing: the family never succeeded.
	Missing Status = iota
	// Fresh: refreshed by the latest cycle.
	Fresh
	// Stale: carried over from the cycle at AsOf.
	Stale
)

func (s Status) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "missing"
	}
}

// FamilyState is one node of Missing -> Fresh -> Stale(asOf) -> Fresh.
type FamilyState struct {
	Status Status
	AsOf   time.Time
	Reason string
}

// Succeed moves to Fresh as of at.
func (s FamilyState) Succeed(at time.Time) FamilyState {
	return FamilyState{Status: Fresh, AsOf: at}
}

// Fail keeps the last good AsOf. A family that never succeeded stays Missing.
func (s FamilyState) Fail(reason string) FamilyState {
	if s.Status == Missing {
		return FamilyState{Status: Missing, Reason: reason}
	}
	return FamilyState{Status: Stale, AsOf: s.AsOf, Reason: reason}
}

// Freshness renders the state for readers.
func (s FamilyState) Freshness() Freshness {
	out := Freshness{Stale: s.Status != Fresh, Reason: s.Reason}
	if !s.AsOf.IsZero() {
		asOf := s.AsOf
		out.AsOf = &asOf
	}
	return out
}
