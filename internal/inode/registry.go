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

// Package inode maps logical paths to stable, opaque inode identifiers.
// An inode may be reachable from more than one path (hard-link-like); it
// outlives any particular path and is only destroyed when its last path is
// removed.
package inode

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ID is a stable, opaque identifier for a file's logical identity,
// independent of its current path(s) or on-disk form.
type ID string

// ErrNotFound is returned when an operation references a path or inode the
// registry doesn't know about.
var ErrNotFound = errors.New("inode: not found")

// ErrExists is returned by CreatePath when the path is already registered.
var ErrExists = errors.New("inode: path already exists")

// record holds everything the registry tracks for a single inode.
//
// GUARDED_BY(Registry.mu)
type record struct {
	// paths[0] is the canonical path: the one the Cache uses whenever it
	// needs a single representative path for the inode (see
	// Registry.GetPaths).
	paths []string
	dir   bool
}

// Registry maps logical paths to inode identifiers, supports rename, and
// allows an
// inode to be looked up from any of the paths that currently reference it.
// It is safe for concurrent use.
type Registry struct {
	mu sync.Mutex

	// GUARDED_BY(mu)
	byPath map[string]ID
	// GUARDED_BY(mu)
	byInode map[ID]*record
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		byPath:  make(map[string]ID),
		byInode: make(map[ID]*record),
	}
}

func newID() ID {
	return ID(uuid.NewString())
}

// CreatePath registers a brand new path, minting a fresh inode for it. The
// caller determines separately (via the state store) whether the path is a
// regular file; dir marks it as a directory, which never gets a content
// state entry.
func (r *Registry) CreatePath(path string, dir bool) (ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byPath[path]; ok {
		return "", ErrExists
	}

	id := newID()
	r.byPath[path] = id
	r.byInode[id] = &record{paths: []string{path}, dir: dir}
	return id, nil
}

// DeletePath removes path from the registry. If it was the inode's last
// remaining path, the inode itself is forgotten.
func (r *Registry) DeletePath(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byPath[path]
	if !ok {
		return ErrNotFound
	}
	delete(r.byPath, path)

	rec := r.byInode[id]
	rec.paths = removeString(rec.paths, path)
	if len(rec.paths) == 0 {
		delete(r.byInode, id)
	}
	return nil
}

// RenamePaths moves the registration of oldPath to newPath, preserving the
// inode identity (and hence its content state). If newPath was already
// registered to a different inode, that inode's entry for newPath is
// dropped first; the caller (Cache.rename) is responsible for having
// already dealt with the on-disk and state-store consequences of
// overwriting it.
func (r *Registry) RenamePaths(oldPath, newPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byPath[oldPath]
	if !ok {
		return ErrNotFound
	}

	if existing, ok := r.byPath[newPath]; ok && existing != id {
		r.dropPathLocked(existing, newPath)
	}

	delete(r.byPath, oldPath)
	r.byPath[newPath] = id

	rec := r.byInode[id]
	rec.paths = removeString(rec.paths, oldPath)
	rec.paths = append(rec.paths, newPath)
	return nil
}

func (r *Registry) dropPathLocked(id ID, path string) {
	delete(r.byPath, path)
	rec, ok := r.byInode[id]
	if !ok {
		return
	}
	rec.paths = removeString(rec.paths, path)
	if len(rec.paths) == 0 {
		delete(r.byInode, id)
	}
}

// GetInode returns the inode currently registered at path, if any.
func (r *Registry) GetInode(path string) (ID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byPath[path]
	return id, ok
}

// IsDir reports whether the path was registered as a directory. It returns
// false if the path is unknown.
func (r *Registry) IsDir(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byPath[path]
	if !ok {
		return false
	}
	return r.byInode[id].dir
}

// GetPaths returns every path currently referencing id, in the order they
// were added; the first entry is the canonical path the Cache uses when it
// needs just one. The returned slice is a copy and safe to retain.
func (r *Registry) GetPaths(id ID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byInode[id]
	if !ok {
		return nil
	}
	out := make([]string, len(rec.paths))
	copy(out, rec.paths)
	return out
}

func removeString(ss []string, s string) []string {
	out := ss[:0]
	for _, v := range ss {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
