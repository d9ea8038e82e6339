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

package cmd

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"
	"golang.org/x/net/context"
	"golang.org/x/sync/errgroup"

	"github.com/jokalee/zero/cfg"
	"github.com/jokalee/zero/clock"
	"github.com/jokalee/zero/internal/adapter"
	"github.com/jokalee/zero/internal/cache"
	"github.com/jokalee/zero/internal/inode"
	"github.com/jokalee/zero/internal/logger"
	"github.com/jokalee/zero/internal/metrics"
	"github.com/jokalee/zero/internal/pathlock"
	"github.com/jokalee/zero/internal/ranker"
	"github.com/jokalee/zero/internal/remote"
	"github.com/jokalee/zero/internal/state"
)

// runMount wires the collaborators together, mounts the filesystem, and
// blocks until the mount goes away (signal or external unmount).
func runMount(ctx context.Context, config cfg.Config) error {
	if err := logger.InitLogFile(config.Logging); err != nil {
		return fmt.Errorf("initializing log file: %w", err)
	}
	defer logger.Close()
	logger.SetLogFormat(config.Logging.Format)
	logger.SetSeverity(config.Logging.Severity)

	if err := os.MkdirAll(string(config.CacheDir), os.FileMode(config.DirMode)); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	m := metrics.New()

	var downloader remote.Downloader = remote.NewHTTPDownloader(config.RemoteEndpoint, config.Bucket, nil)
	downloader = remote.Instrumented(downloader, m.Downloads, m.DownloadFailures)

	lru := ranker.NewLRU(clock.RealClock{}, config.RankerBudget)
	states := state.New()
	c := cache.New(
		string(config.CacheDir),
		pathlock.New(),
		inode.New(),
		states,
		lru,
		downloader,
		cache.WithRetryBudgets(config.MaxRetries, config.UnlinkMaxRetries),
	)

	worker := ranker.NewWorker(
		lru, c, states, clock.RealClock{},
		time.Duration(config.RankerIntervalSeconds)*time.Second,
		logger.Logger(), m.Dehydrations,
	)

	fsys := adapter.NewFileSystem(c, uint32(os.Getuid()), uint32(os.Getgid()), logger.Logger())
	server := fuseutil.NewFileSystemServer(adapter.WithMonitoring(fsys, m))

	mountCfg := &fuse.MountConfig{
		FSName:      "zerofuse",
		Subtype:     "zerofuse",
		VolumeName:  config.Bucket,
		ErrorLogger: slog.NewLogLogger(logger.Logger().Handler(), slog.LevelError),
	}

	mfs, err := fuse.Mount(string(config.MountPoint), server, mountCfg)
	if err != nil {
		return fmt.Errorf("mounting %s: %w", config.MountPoint, err)
	}
	logger.Infof("mounted bucket %q at %s", config.Bucket, config.MountPoint)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return worker.Run(gctx) })
	if config.MetricsPort > 0 {
		group.Go(func() error { return serveMetrics(gctx, m, config.MetricsPort) })
	}
	group.Go(func() error {
		<-gctx.Done()
		if err := fuse.Unmount(string(config.MountPoint)); err != nil {
			// Already unmounted externally, most likely.
			logger.Debugf("unmount: %v", err)
		}
		return nil
	})

	joinErr := mfs.Join(context.Background())
	cancel()
	if waitErr := group.Wait(); joinErr == nil {
		joinErr = waitErr
	}
	logger.Infof("unmounted %s", config.MountPoint)
	return joinErr
}

// serveMetrics runs the Prometheus endpoint until ctx is canceled.
func serveMetrics(ctx context.Context, m *metrics.Metrics, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: fmt.Sprintf("localhost:%d", port), Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
