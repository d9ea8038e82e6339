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

package cfg

import "fmt"

// Validate checks invariants Load cannot enforce through flag/env/file
// binding alone.
func (c Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("bucket must not be empty")
	}
	if c.MountPoint == "" {
		return fmt.Errorf("mount-point must not be empty")
	}
	if c.CacheDir == "" {
		return fmt.Errorf("cache-dir must not be empty")
	}
	if c.MountPoint == c.CacheDir {
		return fmt.Errorf("mount-point and cache-dir must not be the same directory")
	}
	if c.Logging.Severity.Rank() < 0 {
		return fmt.Errorf("invalid log severity: %q", c.Logging.Severity)
	}
	if c.RankerBudget <= 0 {
		return fmt.Errorf("ranker-budget must be positive, got %d", c.RankerBudget)
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be positive, got %d", c.MaxRetries)
	}
	if c.UnlinkMaxRetries <= 0 {
		return fmt.Errorf("unlink-max-retries must be positive, got %d", c.UnlinkMaxRetries)
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("metrics-port must be in [0, 65535], got %d", c.MetricsPort)
	}
	return nil
}
