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
	"sync"

	"github.com/alibaba/opensandbox/healthd/pkg/snapshot"
)

// hub fans published snapshots out to subscribers. Each subscriber has a
// one-slot mailbox that is overwritten when not drained in time.
type hub struct {
	mu   sync.Mutex
	next int
	subs map[int]chan *snapshot.Snapshot
}

func newHub() *hub {
	return &hub{subs: make(map[int]chan *snapshot.Snapshot)}
}

func (h *hub) subscribe() (<-chan *snapshot.Snapshot, func()) {
	ch := make(chan *snapshot.Snapshot, 1)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *hub) broadcast(s *snapshot.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

func (h *hub) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
