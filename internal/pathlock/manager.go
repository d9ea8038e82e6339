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

// Package pathlock provides per-path reader/writer locks with
// high-priority preemption and a bounded number of retries, as required by
// the Cache's public operations (each acquires the lock for the path it
// operates on before touching disk).
//
// Locks are keyed by the logical path string, not by inode. This is
// deliberate: it means a lock acquired against a path that is concurrently
// being renamed away completes against the old identity (the entry simply
// becomes orphaned once the rename finishes), rather than somehow
// following the rename to the new path. The dependent operation then fails
// naturally when it re-resolves the path through the inode registry and
// finds it gone.
package pathlock

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jokalee/zero/internal/locker"
)

// ErrRetryExhausted is returned when a lock could not be acquired within
// the configured number of retries.
var ErrRetryExhausted = errors.New("pathlock: retry budget exhausted")

// Options controls a single Acquire call.
type Options struct {
	// Exclusive requests an exclusive (writer) lock. When false, the lock
	// is shared-on-leaf: concurrent shared acquisitions of the same path
	// are allowed, but they still exclude any exclusive acquisition of
	// that path.
	Exclusive bool

	// HighPriority lets filesystem callbacks preempt background workers:
	// while any high-priority acquisition of a path is outstanding,
	// non-high-priority attempts on that same path back off instead of
	// taking the lock out from under it.
	HighPriority bool

	// MaxRetries bounds the number of acquisition attempts. Exceeding it
	// returns ErrRetryExhausted instead of blocking indefinitely.
	MaxRetries int
}

// initialBackoff and backoffCap govern the delay between retry attempts.
const (
	initialBackoff = 200 * time.Microsecond
	backoffCap     = 20 * time.Millisecond
)

// Release unlocks a previously-acquired path lock. It is always safe to
// call exactly once per successful Acquire.
type Release func()

// Token lets a single logical call chain re-acquire a path it already
// holds without deadlocking. The zero value is ready to use. A Token must
// not be used concurrently from more than one goroutine at a time — it
// represents one caller's chain of nested calls, not a shareable resource.
//
// This exists because Go has no notion of goroutine-local storage that the
// manager could use to detect reentrancy on its own; callers that may
// recurse into a path they already hold thread a Token through explicitly.
// The Cache passes no Token: its locked entry points call *Locked helpers
// that never reacquire the path.
type Token struct {
	held map[string]int
}

// Manager hands out per-path locks. The zero value is not usable; use New.
type Manager struct {
	mu *locker.Mutex
	// GUARDED_BY(mu)
	entries map[string]*pathState
}

// New returns an empty Manager.
func New() *Manager {
	m := &Manager{entries: make(map[string]*pathState)}
	m.mu = locker.New(m.checkInvariants)
	return m
}

// checkInvariants verifies the bookkeeping map holds no dead entries.
//
// LOCKS_REQUIRED(m.mu)
func (m *Manager) checkInvariants() error {
	for path, e := range m.entries {
		if e.refs <= 0 {
			return fmt.Errorf("entry %q retained with %d refs", path, e.refs)
		}
	}
	return nil
}

// pathState is the lock state for a single logical path.
type pathState struct {
	mu sync.Mutex
	// GUARDED_BY(mu)
	exclusive bool
	// GUARDED_BY(mu)
	shared int
	// refs counts outstanding Acquire callers (held or waiting) so the
	// manager can garbage-collect the entry when it becomes unused.
	refs int32
	// waitingHigh counts in-flight high-priority acquisition attempts;
	// non-high-priority attempts defer to them.
	waitingHigh int32
}

func (e *pathState) tryAcquire(opts Options) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !opts.HighPriority && atomic.LoadInt32(&e.waitingHigh) > 0 {
		return false
	}

	if opts.Exclusive {
		if e.exclusive || e.shared > 0 {
			return false
		}
		e.exclusive = true
		return true
	}

	if e.exclusive {
		return false
	}
	e.shared++
	return true
}

func (e *pathState) release(opts Options) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if opts.Exclusive {
		e.exclusive = false
	} else {
		e.shared--
	}
}

func (m *Manager) entry(path string) *pathState {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[path]
	if !ok {
		e = &pathState{}
		m.entries[path] = e
	}
	e.refs++
	return e
}

func (m *Manager) release(path string, e *pathState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.entries, path)
	}
}

// Acquire locks path according to opts, retrying with a short exponential
// backoff until it succeeds or opts.MaxRetries attempts have been made. If
// tok is non-nil and already holds path, the acquisition is a re-entrant
// no-op: the returned Release simply decrements the hold count.
func (m *Manager) Acquire(path string, opts Options, tok *Token) (Release, error) {
	if tok != nil {
		if tok.held == nil {
			tok.held = make(map[string]int)
		}
		if n, ok := tok.held[path]; ok {
			tok.held[path] = n + 1
			return func() {
				tok.held[path]--
				if tok.held[path] == 0 {
					delete(tok.held, path)
				}
			}, nil
		}
	}

	e := m.entry(path)

	if opts.HighPriority {
		atomic.AddInt32(&e.waitingHigh, 1)
		defer atomic.AddInt32(&e.waitingHigh, -1)
	}

	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	backoff := initialBackoff
	for attempt := 0; attempt < maxRetries; attempt++ {
		if e.tryAcquire(opts) {
			if tok != nil {
				tok.held[path] = 1
			}
			released := false
			return func() {
				if released {
					return
				}
				released = true
				e.release(opts)
				m.release(path, e)
				if tok != nil {
					delete(tok.held, path)
				}
			}, nil
		}
		if attempt < maxRetries-1 {
			time.Sleep(backoff)
			backoff *= 2
			if backoff > backoffCap {
				backoff = backoffCap
			}
		}
	}

	m.release(path, e)
	return nil, ErrRetryExhausted
}
