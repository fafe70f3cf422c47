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
	"errors"
	"sync/atomic"
)

// ErrNotReady is returned by Read until the first snapshot is published.
var ErrNotReady = &NotReadyError{}

// NotReadyError distinguishes "nothing collected yet" from a zero snapshot.
type NotReadyError struct{}

func (e *NotReadyError) Error() string {
	return "no successful collection yet"
}

// IsNotReady reports whether err means the cache is still empty.
func IsNotReady(err error) bool {
	var target *NotReadyError
	return errors.As(err, &target)
}

type CacheState int

const (
	Empty CacheState = iota
	Populated
)

func (s CacheState) String() string {
	if s == Populated {
		return "populated"
	}
	return "empty"
}

// Cache holds the latest snapshot. Publish is a single pointer swap, so
// readers see either the old or the new snapshot and never block on a cycle.
type Cache struct {
	current   atomic.Pointer[Snapshot]
	published atomic.Uint64
}

func NewCache() *Cache {
	return &Cache{}
}

// Publish replaces the current snapshot. Nil is ignored.
func (c *Cache) Publish(s *Snapshot) {
	if s == nil {
		return
	}
	c.current.Store(s)
	c.published.Add(1)
}

// Read returns the latest snapshot, however stale, or ErrNotReady.
func (c *Cache) Read() (*Snapshot, error) {
	s := c.current.Load()
	if s == nil {
		return nil, ErrNotReady
	}
	return s, nil
}

func (c *Cache) State() CacheState {
	if c.current.Load() == nil {
		return Empty
	}
	return Populated
}

// Published counts the snapshots published so far.
func (c *Cache) Published() uint64 {
	return c.published.Load()
}
