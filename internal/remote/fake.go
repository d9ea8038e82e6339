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
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/jokalee/zero/internal/inode"
)

// Fake is an in-memory Downloader used by tests (and by anything else that
// wants a working remote without talking to the network).
type Fake struct {
	mu sync.Mutex
	// GUARDED_BY(mu)
	objects map[inode.ID][]byte
	// GUARDED_BY(mu)
	fail map[inode.ID]bool
}

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{
		objects: make(map[inode.ID][]byte),
		fail:    make(map[inode.ID]bool),
	}
}

// SetObject records the bytes id's Download call should return.
func (f *Fake) SetObject(id inode.ID, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[id] = data
}

// FailNext causes the next Download for id to return ErrUnreachable.
func (f *Fake) FailNext(id inode.ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[id] = true
}

// Download implements Downloader.
func (f *Fake) Download(ctx context.Context, id inode.ID) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail[id] {
		delete(f.fail, id)
		return nil, fmt.Errorf("fake download of %s: %w", id, ErrUnreachable)
	}

	data, ok := f.objects[id]
	if !ok {
		return nil, fmt.Errorf("fake download of %s: %w", id, ErrUnreachable)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
