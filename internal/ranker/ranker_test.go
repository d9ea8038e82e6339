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

package ranker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/jokalee/zero/clock"
	"github.com/jokalee/zero/internal/inode"
	"github.com/jokalee/zero/internal/ranker"
	"github.com/jokalee/zero/internal/state"
)

type RankerTest struct {
	suite.Suite
	clk *clock.SimulatedClock
	r   *ranker.LRU
}

func TestRankerSuite(t *testing.T) { suite.Run(t, new(RankerTest)) }

func (t *RankerTest) SetupTest() {
	t.clk = clock.NewSimulatedClock(time.Unix(0, 0))
	t.r = ranker.NewLRU(t.clk, 2)
}

func (t *RankerTest) TestNoVictimsUnderBudget() {
	t.r.HandleInodeAccess("a")
	t.r.HandleInodeAccess("b")
	assert.Empty(t.T(), t.r.Victims())
}

func (t *RankerTest) TestVictimsAreLeastRecentlyAccessed() {
	t.r.HandleInodeAccess("a")
	t.r.HandleInodeAccess("b")
	t.r.HandleInodeAccess("c")

	victims := t.r.Victims()
	require.Len(t.T(), victims, 1)
	assert.Equal(t.T(), inode.ID("a"), victims[0])
}

func (t *RankerTest) TestReaccessMovesToFront() {
	t.r.HandleInodeAccess("a")
	t.r.HandleInodeAccess("b")
	t.r.HandleInodeAccess("a")
	t.r.HandleInodeAccess("c")

	victims := t.r.Victims()
	require.Len(t.T(), victims, 1)
	assert.Equal(t.T(), inode.ID("b"), victims[0])
}

func (t *RankerTest) TestHandleInodeDeleteRemovesTracking() {
	t.r.HandleInodeAccess("a")
	t.r.HandleInodeDelete("a")
	_, ok := t.r.LastAccess("a")
	assert.False(t.T(), ok)
}

func (t *RankerTest) TestLastAccessReflectsClock() {
	t.clk.SetTime(time.Unix(100, 0))
	t.r.HandleInodeAccess("a")
	at, ok := t.r.LastAccess("a")
	require.True(t.T(), ok)
	assert.Equal(t.T(), int64(100), at.Unix())
}

// fakeDehydrator mimics Cache.CreateDummy: a successful call moves the
// inode to the remote state, a declined one (dirty inode) returns nil
// without changing anything.
type fakeDehydrator struct {
	states  *state.Store
	created []inode.ID
	decline map[inode.ID]bool
}

func (d *fakeDehydrator) CreateDummy(id inode.ID) error {
	if d.decline[id] {
		return nil
	}
	d.created = append(d.created, id)
	d.states.SetRemote(id)
	return nil
}

func (t *RankerTest) TestWorkerSweepDehydratesVictimsAndStopsTrackingThem() {
	t.r.HandleInodeAccess("a")
	t.r.HandleInodeAccess("b")
	t.r.HandleInodeAccess("c")
	require.Len(t.T(), t.r.Victims(), 1)

	states := state.New()
	dh := &fakeDehydrator{states: states}
	w := ranker.NewWorker(t.r, dh, states, t.clk, time.Hour, nil, nil)

	w.SweepOnce()

	assert.Equal(t.T(), []inode.ID{"a"}, dh.created)
	assert.Empty(t.T(), t.r.Victims())
}

func (t *RankerTest) TestWorkerLeavesDeclinedVictimTracked() {
	t.r.HandleInodeAccess("a")
	t.r.HandleInodeAccess("b")
	t.r.HandleInodeAccess("c")

	states := state.New()
	// "a" stays dirty, so CreateDummy declines it without an error and it
	// never reaches the remote state.
	dh := &fakeDehydrator{states: states, decline: map[inode.ID]bool{"a": true}}
	w := ranker.NewWorker(t.r, dh, states, t.clk, time.Hour, nil, nil)

	w.SweepOnce()

	victims := t.r.Victims()
	require.Len(t.T(), victims, 1)
	assert.Equal(t.T(), inode.ID("a"), victims[0])
}

// Advancing the simulated clock past the sweep interval drives Run's loop
// without any real waiting.
func (t *RankerTest) TestWorkerRunSweepsOnClockTicks() {
	t.r.HandleInodeAccess("a")
	t.r.HandleInodeAccess("b")
	t.r.HandleInodeAccess("c")

	states := state.New()
	dh := &fakeDehydrator{states: states}
	w := ranker.NewWorker(t.r, dh, states, t.clk, time.Minute, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Let Run park on the clock before firing it.
	for len(t.r.Victims()) > 0 {
		t.clk.AdvanceTime(time.Minute)
		time.Sleep(time.Millisecond)
	}
	cancel()
	require.NoError(t.T(), <-done)

	assert.Equal(t.T(), []inode.ID{"a"}, dh.created)
}
