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

// Package remote declares the boundary between the Cache and the remote
// object-store API client. Upload is the worker's concern and lives
// outside this package; the Cache only ever needs to download.
package remote

import (
	"context"
	"errors"
	"io"

	"github.com/jokalee/zero/internal/inode"
)

// ErrUnreachable wraps any failure encountered while streaming an inode's
// bytes from the remote. Cache.ReplaceDummy translates this to the
// network-unreachable error the adapter surfaces to the kernel.
var ErrUnreachable = errors.New("remote: connection error")

// Downloader is the remote API's download boundary.
type Downloader interface {
	// Download returns a reader for id's current remote bytes. The caller
	// must Close it. A failure of any kind (DNS, TLS, timeout, 5xx) should
	// be reported as an error wrapping ErrUnreachable.
	Download(ctx context.Context, id inode.ID) (io.ReadCloser, error)
}
