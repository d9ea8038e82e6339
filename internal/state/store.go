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

// Package state holds the per-inode content-state tag: one of
// clean-local, dirty, remote, or to-delete. Directories never have an
// entry here.
package state

import (
	"sync"

	"github.com/jokalee/zero/internal/inode"
)

// Tag is the content state of a regular-file inode.
type Tag int

const (
	// CleanLocal: bytes resident, agrees with remote.
	CleanLocal Tag = iota
	// Dirty: bytes resident, diverges from remote (upload owed).
	Dirty
	// Remote: bytes not resident; placeholder present.
	Remote
	// ToDelete: logically removed; unlink of remote owed.
	ToDelete
)

func (t Tag) String() string {
	switch t {
	case CleanLocal:
		return "clean-local"
	case Dirty:
		return "dirty"
	case Remote:
		return "remote"
	case ToDelete:
		return "to-delete"
	default:
		return "unknown"
	}
}

// Store is the state-store collaborator: a thread-safe map from inode to
// content-state tag.
type Store struct {
	mu sync.Mutex
	// GUARDED_BY(mu)
	tags map[inode.ID]Tag
}

// New returns an empty Store.
func New() *Store {
	return &Store{tags: make(map[inode.ID]Tag)}
}

// SetDirty marks id dirty. Legal after create, write, or truncate.
func (s *Store) SetDirty(id inode.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags[id] = Dirty
}

// SetRemote marks id remote (placeholder present, bytes not resident).
func (s *Store) SetRemote(id inode.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags[id] = Remote
}

// SetDownloaded marks id clean-local, i.e. hydration completed
// successfully.
func (s *Store) SetDownloaded(id inode.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags[id] = CleanLocal
}

// SetToDelete marks id logically removed; the worker owes a remote
// unlink.
func (s *Store) SetToDelete(id inode.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags[id] = ToDelete
}

// Forget drops id's entry entirely, once the worker has propagated a
// to-delete inode's removal to the remote (to-delete -> ∅).
func (s *Store) Forget(id inode.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tags, id)
}

// IsClean reports whether id is currently clean-local.
func (s *Store) IsClean(id inode.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tags[id]
	return ok && t == CleanLocal
}

// IsRemote reports whether id is currently remote.
func (s *Store) IsRemote(id inode.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tags[id] == Remote
}

// Exists reports whether id has any state entry at all. Cache.rename uses
// this to tell a file inode (which always has one) from a directory inode
// (which never does).
func (s *Store) Exists(id inode.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tags[id]
	return ok
}

// Get returns id's current tag and whether it has one at all. It exists
// mainly for tests.
func (s *Store) Get(id inode.ID) (Tag, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tags[id]
	return t, ok
}
