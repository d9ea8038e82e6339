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

// Package clock abstracts wall-clock time behind an interface so the
// ranker's access tracking and sweep pacing can be driven by a
// deterministic clock in tests.
package clock

import "time"

// Clock tells the time and schedules wakeups. Production code uses
// RealClock; tests substitute a SimulatedClock they control.
type Clock interface {
	// Now returns this clock's current time.
	Now() time.Time

	// After returns a channel on which the clock's time is delivered
	// once d has elapsed on this clock.
	After(d time.Duration) <-chan time.Time
}

// RealClock delegates to the time package.
type RealClock struct{}

var _ Clock = RealClock{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
