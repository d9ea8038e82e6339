// Copyright 2025 Google LLC
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

// Package ranker implements the background eviction-policy collaborator.
// It receives fire-and-forget access/delete signals from the Cache and
// decides, on its own schedule, which resident inodes to dehydrate back to
// placeholders.
package ranker

import (
	"container/list"
	"sync"
	"time"

	"github.com/jokalee/zero/clock"
	"github.com/jokalee/zero/internal/inode"
)

// Ranker is the interface the Cache depends on; it never blocks on these
// calls finishing any actual eviction work.
type Ranker interface {
	HandleInodeAccess(id inode.ID)
	HandleInodeDelete(id inode.ID)
}

// Dehydrator is implemented by internal/cache.Cache. The worker calls back
// into it once it has picked a victim, so that placeholder conversions
// always happen through the Cache, under its path lock.
type Dehydrator interface {
	CreateDummy(id inode.ID) error
}

// LRU is a size/count-budgeted ranker: HandleInodeAccess moves an inode to
// the front of an access list; once the list grows past the configured
// budget, the Worker dehydrates inodes off the back until it's within
// budget again.
type LRU struct {
	clock  clock.Clock
	budget int

	mu sync.Mutex
	// GUARDED_BY(mu)
	order *list.List
	// GUARDED_BY(mu)
	elems map[inode.ID]*list.Element
	// GUARDED_BY(mu)
	lastAccess map[inode.ID]time.Time
}

var _ Ranker = (*LRU)(nil)

// NewLRU returns a ranker that keeps at most budget inodes "hot" before
// nominating the least-recently-accessed ones for dehydration.
func NewLRU(clk clock.Clock, budget int) *LRU {
	return &LRU{
		clock:      clk,
		budget:     budget,
		order:      list.New(),
		elems:      make(map[inode.ID]*list.Element),
		lastAccess: make(map[inode.ID]time.Time),
	}
}

// HandleInodeAccess implements Ranker.
func (r *LRU) HandleInodeAccess(id inode.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastAccess[id] = r.clock.Now()
	if e, ok := r.elems[id]; ok {
		r.order.MoveToFront(e)
		return
	}
	r.elems[id] = r.order.PushFront(id)
}

// HandleInodeDelete implements Ranker.
func (r *LRU) HandleInodeDelete(id inode.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.elems[id]; ok {
		r.order.Remove(e)
		delete(r.elems, id)
	}
	delete(r.lastAccess, id)
}

// LastAccess returns the time of id's most recent HandleInodeAccess call,
// if it is currently tracked.
func (r *LRU) LastAccess(id inode.ID) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.lastAccess[id]
	return t, ok
}

// Victims returns up to the inodes currently over budget, least-recently
// accessed first, without removing them from tracking — the Worker does
// that via HandleInodeDelete once it has actually dehydrated each one (or
// leaves it tracked if CreateDummy declined because the inode was dirty).
func (r *LRU) Victims() []inode.ID {
	r.mu.Lock()
	defer r.mu.Unlock()

	over := r.order.Len() - r.budget
	if over <= 0 {
		return nil
	}

	out := make([]inode.ID, 0, over)
	for e := r.order.Back(); e != nil && len(out) < over; e = e.Prev() {
		out = append(out, e.Value.(inode.ID))
	}
	return out
}
