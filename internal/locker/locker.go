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

// Package locker provides a mutex that optionally checks an invariant after
// every unlock, in the spirit of github.com/jacobsa/syncutil.InvariantMutex.
// internal/pathlock uses it for the mutex guarding its bookkeeping map.
package locker

import "sync"

// invariantsEnabled gates the (potentially expensive) invariant check. It
// defaults to off so production mounts don't pay for it, and is flipped on
// by tests via EnableInvariantsCheck.
var invariantsEnabled = false

// EnableInvariantsCheck turns on invariant checking for every Mutex, including
// ones created before the call: the setting is read at each Unlock. Intended
// for use from test setup.
func EnableInvariantsCheck() {
	invariantsEnabled = true
}

// Mutex is a sync.Mutex that, when invariant checking is enabled, calls a
// user-supplied function after every Unlock and panics if it returns an
// error. A nil check function disables the check for that particular Mutex
// regardless of the global setting.
type Mutex struct {
	mu    sync.Mutex
	check func() error
}

// New returns a Mutex that runs check (if non-nil) after each Unlock,
// subject to EnableInvariantsCheck having been called.
func New(check func() error) *Mutex {
	return &Mutex{check: check}
}

func (m *Mutex) Lock() {
	m.mu.Lock()
}

func (m *Mutex) Unlock() {
	if invariantsEnabled && m.check != nil {
		if err := m.check(); err != nil {
			m.mu.Unlock()
			panic("locker: invariant violated: " + err.Error())
		}
	}
	m.mu.Unlock()
}

// TryLock reports whether the lock was acquired without blocking.
func (m *Mutex) TryLock() bool {
	return m.mu.TryLock()
}
