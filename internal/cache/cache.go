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

// Package cache implements the Cache component: the object that mediates
// every filesystem callback the kernel issues against the mount point,
// keeps the on-disk cache directory, the inode registry and the
// dirty/remote state store mutually consistent, and drives the
// resident/placeholder conversions.
//
// Every kernel-callback method here runs under an exclusive (or
// shared-on-leaf, for Read) path lock acquired with high priority, so that
// filesystem callbacks always win contention against the background ranker
// worker. List and the unlink of a symlink take no lock. The ranker-facing
// CreateDummy and ReplaceDummy lock at background priority.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/jokalee/zero/internal/inode"
	"github.com/jokalee/zero/internal/logger"
	"github.com/jokalee/zero/internal/pathconv"
	"github.com/jokalee/zero/internal/pathlock"
	"github.com/jokalee/zero/internal/ranker"
	"github.com/jokalee/zero/internal/remote"
	"github.com/jokalee/zero/internal/state"
	"github.com/jokalee/zero/internal/statdict"
)

// Sentinel errors making up the taxonomy the adapter maps to kernel errno
// values. Any other error returned from a Cache method is a passthrough OS
// error and should be surfaced unchanged.
var (
	// ErrNotFound means neither the resident nor the placeholder form of
	// a path exists.
	ErrNotFound = errors.New("cache: not found")
	// ErrNetworkUnreachable means a remote download failed during
	// hydration.
	ErrNetworkUnreachable = errors.New("cache: network unreachable")
)

// Every operation acquires its path lock with high priority; all but
// unlink use a 100-attempt budget, unlink uses 10 so a doomed delete
// gives up quickly.
const (
	defaultMaxRetries = 100
	unlinkMaxRetries  = 10
	// backgroundMaxRetries bounds lock acquisition for the ranker-driven
	// CreateDummy/ReplaceDummy entry points, which run at background
	// (non-high) priority and so may legitimately lose a race to a
	// filesystem callback a few times before giving up for this sweep.
	backgroundMaxRetries = 10
)

// Cache is the core object described in the package doc. It borrows all
// five collaborators from its constructor; it owns none of them.
type Cache struct {
	converter *pathconv.Converter
	locks     *pathlock.Manager
	inodes    *inode.Registry
	states    *state.Store
	ranker    ranker.Ranker
	remote    remote.Downloader

	maxRetries       int
	unlinkMaxRetries int
}

// Option tweaks a Cache at construction time.
type Option func(*Cache)

// WithRetryBudgets overrides the default lock-acquisition retry budgets.
func WithRetryBudgets(maxRetries, unlinkMaxRetries int) Option {
	return func(c *Cache) {
		c.maxRetries = maxRetries
		c.unlinkMaxRetries = unlinkMaxRetries
	}
}

// New wires the five collaborators into a Cache. cacheRoot must already
// exist as a directory.
func New(
	cacheRoot string,
	locks *pathlock.Manager,
	inodes *inode.Registry,
	states *state.Store,
	rnk ranker.Ranker,
	dl remote.Downloader,
	opts ...Option,
) *Cache {
	c := &Cache{
		converter:        pathconv.New(cacheRoot),
		locks:            locks,
		inodes:           inodes,
		states:           states,
		ranker:           rnk,
		remote:           dl,
		maxRetries:       defaultMaxRetries,
		unlinkMaxRetries: unlinkMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func exclusive(highPriority bool, maxRetries int) pathlock.Options {
	return pathlock.Options{Exclusive: true, HighPriority: highPriority, MaxRetries: maxRetries}
}

func sharedOnLeaf(highPriority bool, maxRetries int) pathlock.Options {
	return pathlock.Options{Exclusive: false, HighPriority: highPriority, MaxRetries: maxRetries}
}

// List returns the directory's entries, kernel-dotdot-prefixed, with
// placeholder suffixes stripped so a placeholder and a resident file
// appear under the same logical name. No lock is needed: the on-disk
// directory listing primitive is already consistent.
func (c *Cache) List(dirPath string) ([]string, error) {
	cachePath := c.converter.ToCachePath(dirPath)
	entries, err := os.ReadDir(cachePath)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(entries)+2)
	out = append(out, ".", "..")
	for _, e := range entries {
		out = append(out, c.converter.StripDummyEnding(e.Name()))
	}
	return out, nil
}

// Open resolves path (hydrating a placeholder in place if necessary) and
// opens the resident file with the caller's flags.
func (c *Cache) Open(path string, flags int) (*os.File, error) {
	release, err := c.locks.Acquire(path, exclusive(true, c.maxRetries), nil)
	if err != nil {
		return nil, err
	}
	defer release()

	cachePath, err := c.getPath(path)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(cachePath, flags, 0o644)
}

// Read notifies the ranker of access and reads up to size bytes at offset.
// It assumes Open already hydrated the file; it does not re-check.
func (c *Cache) Read(path string, size int, offset int64, f *os.File) ([]byte, error) {
	release, err := c.locks.Acquire(path, sharedOnLeaf(true, c.maxRetries), nil)
	if err != nil {
		return nil, err
	}
	defer release()

	id, ok := c.inodes.GetInode(path)
	if !ok {
		return nil, ErrNotFound
	}
	c.ranker.HandleInodeAccess(id)

	buf := make([]byte, size)
	n, err := f.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

// Write seeks to offset, writes data, marks the inode dirty, and notifies
// the ranker.
func (c *Cache) Write(path string, data []byte, offset int64, f *os.File) (int, error) {
	release, err := c.locks.Acquire(path, exclusive(true, c.maxRetries), nil)
	if err != nil {
		return 0, err
	}
	defer release()

	id, ok := c.inodes.GetInode(path)
	if !ok {
		return 0, ErrNotFound
	}

	n, err := f.WriteAt(data, offset)
	if err != nil {
		return n, err
	}
	c.states.SetDirty(id)
	c.ranker.HandleInodeAccess(id)
	return n, nil
}

// Truncate resolves path (hydrating if it is a placeholder), marks the
// inode dirty, notifies the ranker, and truncates the on-disk file.
func (c *Cache) Truncate(path string, length int64) error {
	release, err := c.locks.Acquire(path, exclusive(true, c.maxRetries), nil)
	if err != nil {
		return err
	}
	defer release()

	id, ok := c.inodes.GetInode(path)
	if !ok {
		return ErrNotFound
	}
	cachePath, err := c.getPath(path)
	if err != nil {
		return err
	}
	c.states.SetDirty(id)
	c.ranker.HandleInodeAccess(id)
	return os.Truncate(cachePath, length)
}

// Create makes a new resident file at path with write-only/create/truncate
// semantics, registers it in the inode registry, marks it dirty, and
// notifies the ranker.
func (c *Cache) Create(path string, mode os.FileMode) (*os.File, error) {
	release, err := c.locks.Acquire(path, exclusive(true, c.maxRetries), nil)
	if err != nil {
		return nil, err
	}
	defer release()

	cachePath := c.converter.ToCachePath(path)
	f, err := os.OpenFile(cachePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return nil, err
	}

	id, err := c.inodes.CreatePath(path, false)
	if err != nil {
		f.Close()
		return nil, err
	}
	c.states.SetDirty(id)
	c.ranker.HandleInodeAccess(id)
	return f, nil
}

// Mkdir registers path as a directory and creates it on disk. Directories
// never get a content-state entry.
func (c *Cache) Mkdir(path string, mode os.FileMode) error {
	release, err := c.locks.Acquire(path, exclusive(true, c.maxRetries), nil)
	if err != nil {
		return err
	}
	defer release()

	if _, err := c.inodes.CreatePath(path, true); err != nil {
		return err
	}
	return os.Mkdir(c.converter.ToCachePath(path), mode)
}

// Rmdir deregisters path and removes the on-disk directory. The caller is
// responsible for ensuring the directory is empty; Rmdir does not check.
func (c *Cache) Rmdir(path string) error {
	release, err := c.locks.Acquire(path, exclusive(true, c.maxRetries), nil)
	if err != nil {
		return err
	}
	defer release()
	return c.rmdirLocked(path)
}

func (c *Cache) rmdirLocked(path string) error {
	if err := c.inodes.DeletePath(path); err != nil {
		return err
	}
	return os.Remove(c.converter.ToCachePath(path))
}

// Unlink removes path. Symlinks are unlinked directly, bypassing the
// content-state machine entirely. Everything else is delegated to
// deleteFile.
func (c *Cache) Unlink(path string) error {
	// Lstat, not Stat: a dangling symlink must still be removable.
	cachePath := c.converter.ToCachePath(path)
	if fi, err := os.Lstat(cachePath); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		return os.Remove(cachePath)
	}

	release, err := c.locks.Acquire(path, exclusive(true, c.unlinkMaxRetries), nil)
	if err != nil {
		return err
	}
	defer release()
	return c.deleteFile(path)
}

// deleteFile deregisters path, removes whichever of {cache path, dummy
// path} exists, signals the ranker, and marks the inode to-delete so the
// worker propagates the deletion to the remote. Assumes path's lock is
// already held.
func (c *Cache) deleteFile(path string) error {
	id, ok := c.inodes.GetInode(path)
	if !ok {
		return ErrNotFound
	}
	cachePath, _, found := c.getPathOrDummy(path)

	if err := c.inodes.DeletePath(path); err != nil {
		return err
	}
	if found {
		if err := os.Remove(cachePath); err != nil {
			return err
		}
	}
	c.ranker.HandleInodeDelete(id)
	c.states.SetToDelete(id)
	return nil
}

// Rename implements the rename callback. With old's lock held: if new is
// registered to a file, that file is deleted; if to a directory, it is
// rmdir'd (the usual POSIX rename-over-empty-dir rule — the caller, not
// Rename, must ensure it's empty). Then the cache entry and the inode
// registry are both updated.
//
// Known race: between checking new's registration and re-locking it,
// another goroutine can create new. TODO: acquire the two locks as a pair
// in canonical order instead of sequentially.
func (c *Cache) Rename(oldPath, newPath string) error {
	release, err := c.locks.Acquire(oldPath, exclusive(true, c.maxRetries), nil)
	if err != nil {
		return err
	}
	defer release()

	if existingID, ok := c.inodes.GetInode(newPath); ok {
		if c.states.Exists(existingID) {
			releaseNew, err := c.locks.Acquire(newPath, exclusive(true, c.maxRetries), nil)
			if err != nil {
				return err
			}
			err = c.deleteFile(newPath)
			releaseNew()
			if err != nil {
				return err
			}
		} else if err := c.Rmdir(newPath); err != nil {
			return err
		}
	}

	oldForm, isDummy, found := c.getPathOrDummy(oldPath)
	if !found {
		return ErrNotFound
	}
	newForm := c.converter.ToCachePath(newPath)
	if isDummy {
		newForm = c.converter.AddDummyEnding(newForm)
	}
	if err := os.Rename(oldForm, newForm); err != nil {
		return err
	}
	return c.inodes.RenamePaths(oldPath, newPath)
}

// GetAttributes returns path's stat dictionary. If the placeholder form
// exists, the stat is read from the serialized dictionary it contains (so
// placeholders report the remote's metadata, not the local stub file's);
// otherwise the on-disk stat is returned.
func (c *Cache) GetAttributes(path string) (statdict.Dict, error) {
	release, err := c.locks.Acquire(path, exclusive(true, c.maxRetries), nil)
	if err != nil {
		return statdict.Dict{}, err
	}
	defer release()

	cachePath, isDummy, found := c.getPathOrDummy(path)
	if !found {
		return statdict.Dict{}, ErrNotFound
	}
	if isDummy {
		return statdict.ReadFrom(cachePath)
	}
	return statdict.FromFile(cachePath)
}

// getPathOrDummy is the tolerant resolver: it returns whichever of the two
// on-disk paths exists, or found=false if neither does. Used by operations
// that must work on placeholders without hydrating them (getattributes,
// unlink).
func (c *Cache) getPathOrDummy(path string) (cachePath string, isDummy bool, found bool) {
	cachePath = c.converter.ToCachePath(path)
	dummyPath := c.converter.AddDummyEnding(cachePath)
	if _, err := os.Stat(cachePath); err == nil {
		return cachePath, false, true
	}
	if _, err := os.Stat(dummyPath); err == nil {
		return dummyPath, true, true
	}
	return "", false, false
}

// getPath is the strict resolver: if only the placeholder exists, it
// hydrates it first, then returns the resident cache path. Used by the
// read/write/truncate/open paths.
//
// This invokes hydration without acquiring path's lock itself; the caller
// must already hold it. Note the inversion: the worker normally owns
// placeholder conversions, but here a callback thread drives one.
func (c *Cache) getPath(path string) (string, error) {
	cachePath := c.converter.ToCachePath(path)
	dummyPath := c.converter.AddDummyEnding(cachePath)

	if _, err := os.Stat(dummyPath); err == nil {
		id, ok := c.inodes.GetInode(path)
		if !ok {
			return "", ErrNotFound
		}
		if err := c.replaceDummyLocked(id); err != nil {
			return "", err
		}
	}
	return cachePath, nil
}

// ReplaceDummy is the public hydrate entry point: it acquires id's
// canonical path's lock itself before delegating to replaceDummyLocked.
// Use this when driving hydration from outside an already-locked callback,
// e.g. the worker posting a synchronous hydrate request.
func (c *Cache) ReplaceDummy(id inode.ID) error {
	paths := c.inodes.GetPaths(id)
	if len(paths) == 0 {
		return ErrNotFound
	}
	release, err := c.locks.Acquire(paths[0], exclusive(false, backgroundMaxRetries), nil)
	if err != nil {
		return err
	}
	defer release()
	return c.replaceDummyLocked(id)
}

// replaceDummyLocked converts id's placeholder back to a resident file.
// Assumes id's path lock is already held.
func (c *Cache) replaceDummyLocked(id inode.ID) error {
	if !c.states.IsRemote(id) {
		// Not remote: nothing to hydrate. Fall through without an error;
		// the resulting read may see stale bytes.
		return nil
	}

	paths := c.inodes.GetPaths(id)
	if len(paths) == 0 {
		return ErrNotFound
	}
	cachePath := c.converter.ToCachePath(paths[0])
	dummyPath := c.converter.AddDummyEnding(cachePath)

	dict, err := statdict.ReadFrom(dummyPath)
	if err != nil {
		return err
	}

	// Rename preserves owner, group, mode, and ctime — no separate
	// chmod/chown round-trip needed.
	if err := os.Rename(dummyPath, cachePath); err != nil {
		return err
	}

	f, err := os.OpenFile(cachePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	rc, dlErr := c.remote.Download(context.Background(), id)
	if dlErr != nil {
		f.Close()
		// Deliberately not reverted: the file stays at cachePath, empty
		// or partial, and the state stays "remote". The placeholder no
		// longer exists, so the next open does not retry the download:
		// getPath finds the resident file and returns it as is.
		return fmt.Errorf("%w: %v", ErrNetworkUnreachable, dlErr)
	}
	_, copyErr := io.Copy(f, rc)
	rc.Close()
	if closeErr := f.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		return fmt.Errorf("%w: %v", ErrNetworkUnreachable, copyErr)
	}

	times := []unix.Timespec{
		{Sec: dict.Atime},
		{Sec: dict.Mtime},
	}
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, cachePath, times, 0); err != nil {
		return err
	}

	c.states.SetDownloaded(id)
	return nil
}

// CreateDummy is the public dehydrate entry point, called by the ranker
// worker outside the callback path. It acquires id's canonical path's lock
// itself before delegating to createDummyLocked.
func (c *Cache) CreateDummy(id inode.ID) error {
	paths := c.inodes.GetPaths(id)
	if len(paths) == 0 {
		return ErrNotFound
	}
	release, err := c.locks.Acquire(paths[0], exclusive(false, backgroundMaxRetries), nil)
	if err != nil {
		return err
	}
	defer release()
	return c.createDummyLocked(id)
}

// createDummyLocked converts id's resident file into a placeholder.
// Assumes id's path lock is already held. Refuses (logs and returns nil,
// not an error) if id is not clean-local: dehydrating a dirty inode would
// lose unsaved bytes, and the ranker is expected to re-select it later.
func (c *Cache) createDummyLocked(id inode.ID) error {
	if !c.states.IsClean(id) {
		logger.Debugf("cache: not dehydrating inode %s: not clean-local", id)
		return nil
	}

	paths := c.inodes.GetPaths(id)
	if len(paths) == 0 {
		return ErrNotFound
	}
	cachePath := c.converter.ToCachePath(paths[0])

	dict, err := statdict.FromFile(cachePath)
	if err != nil {
		return err
	}

	dummyPath := c.converter.AddDummyEnding(cachePath)
	// Rename before rewrite, deliberately: it lets the placeholder
	// inherit the original file's permissions, owner, and ctime without
	// a second chmod/chown round trip.
	if err := os.Rename(cachePath, dummyPath); err != nil {
		return err
	}
	if err := statdict.WriteTo(dummyPath, dict); err != nil {
		return err
	}

	c.states.SetRemote(id)
	return nil
}
