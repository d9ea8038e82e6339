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

// Package metrics exposes the mount's Prometheus metrics: filesystem
// operation counts and error categories, plus the placeholder-conversion
// counters the ranker worker and the remote boundary report into.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every instrument the mount records into. Construct with
// New; the zero value is not usable.
type Metrics struct {
	registry *prometheus.Registry

	// OpsCount counts kernel callbacks by operation name.
	OpsCount *prometheus.CounterVec
	// OpsErrorCount counts failed kernel callbacks by operation name and
	// error category.
	OpsErrorCount *prometheus.CounterVec
	// OpsLatency observes per-operation wall time in microseconds.
	OpsLatency *prometheus.HistogramVec

	// Downloads counts remote downloads, i.e. hydration attempts that
	// reached the network.
	Downloads prometheus.Counter
	// DownloadFailures counts downloads that failed, leaving the file
	// empty or partial at the cache path.
	DownloadFailures prometheus.Counter
	// Dehydrations counts resident files converted to placeholders.
	Dehydrations prometheus.Counter
}

// New returns a Metrics backed by its own registry, so two mounts in one
// process don't collide on metric names.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		OpsCount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fs_ops_count",
			Help: "Number of filesystem operations processed, by operation.",
		}, []string{"fs_op"}),
		OpsErrorCount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fs_ops_error_count",
			Help: "Number of failed filesystem operations, by operation and error category.",
		}, []string{"fs_op", "fs_error_category"}),
		OpsLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fs_ops_latency_us",
			Help:    "Filesystem operation latency in microseconds, by operation.",
			Buckets: prometheus.ExponentialBuckets(50, 4, 10),
		}, []string{"fs_op"}),
		Downloads: factory.NewCounter(prometheus.CounterOpts{
			Name: "cache_downloads_count",
			Help: "Number of remote downloads started to hydrate placeholders.",
		}),
		DownloadFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "cache_download_failures_count",
			Help: "Number of remote downloads that failed mid-hydration.",
		}),
		Dehydrations: factory.NewCounter(prometheus.CounterOpts{
			Name: "cache_dehydrations_count",
			Help: "Number of resident files converted back to placeholders.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format; cmd
// mounts it on the monitoring port when one is configured.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the backing registry, mainly so tests can gather from
// it directly.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
