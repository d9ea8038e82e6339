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

package ranker

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jokalee/zero/clock"
	"github.com/jokalee/zero/internal/state"
)

// Worker periodically asks an LRU ranker for victims and hands each one to
// a Dehydrator. It runs on its own goroutine, typically started alongside
// the adapter's serve loop via an errgroup.Group (see cmd). Sweeps are
// paced through the supplied clock so tests can drive them directly.
type Worker struct {
	ranker       *LRU
	dehydrator   Dehydrator
	states       *state.Store
	clock        clock.Clock
	interval     time.Duration
	log          *slog.Logger
	dehydrations prometheus.Counter
}

// NewWorker returns a Worker that sweeps ranker every interval.
// dehydrations may be nil if no metrics are wanted.
func NewWorker(
	ranker *LRU,
	dehydrator Dehydrator,
	states *state.Store,
	clk clock.Clock,
	interval time.Duration,
	log *slog.Logger,
	dehydrations prometheus.Counter,
) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		ranker:       ranker,
		dehydrator:   dehydrator,
		states:       states,
		clock:        clk,
		interval:     interval,
		log:          log,
		dehydrations: dehydrations,
	}
}

// Run sweeps until ctx is canceled. It's meant to be the function passed to
// an errgroup.Group.Go call, hence the (error) return.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.clock.After(w.interval):
			w.SweepOnce()
		}
	}
}

// SweepOnce runs a single eviction pass. Exported so a sweep can be
// triggered directly (tests, a future admin endpoint) without going
// through Run's pacing.
func (w *Worker) SweepOnce() {
	for _, id := range w.ranker.Victims() {
		if err := w.dehydrator.CreateDummy(id); err != nil {
			w.log.Warn("ranker: dehydrate attempt failed", "inode", id, "error", err)
			continue
		}
		// CreateDummy declines (without error) when the inode is dirty;
		// only stop tracking inodes that actually became placeholders. A
		// declined inode stays tracked and gets re-selected next sweep.
		if !w.states.IsRemote(id) {
			continue
		}
		if w.dehydrations != nil {
			w.dehydrations.Inc()
		}
		w.ranker.HandleInodeDelete(id)
	}
}
