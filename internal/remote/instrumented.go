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

package remote

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jokalee/zero/internal/inode"
)

// instrumented decorates a Downloader with download/failure counters.
type instrumented struct {
	wrapped  Downloader
	attempts prometheus.Counter
	failures prometheus.Counter
}

// Instrumented wraps dl so every Download call bumps attempts, and every
// failed call (including a stream that later dies, detected by the
// returned reader's Read) bumps failures.
func Instrumented(dl Downloader, attempts, failures prometheus.Counter) Downloader {
	return &instrumented{wrapped: dl, attempts: attempts, failures: failures}
}

func (d *instrumented) Download(ctx context.Context, id inode.ID) (io.ReadCloser, error) {
	d.attempts.Inc()
	rc, err := d.wrapped.Download(ctx, id)
	if err != nil {
		d.failures.Inc()
		return nil, err
	}
	return &failureCountingReader{ReadCloser: rc, failures: d.failures}, nil
}

// failureCountingReader counts a stream as failed at most once, on the
// first read error other than EOF.
type failureCountingReader struct {
	io.ReadCloser
	failures prometheus.Counter
	counted  bool
}

func (r *failureCountingReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	if err != nil && err != io.EOF && !r.counted {
		r.counted = true
		r.failures.Inc()
	}
	return n, err
}
