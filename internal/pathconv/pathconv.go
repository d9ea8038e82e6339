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

// Package pathconv implements the bijection between logical (mount) paths
// and on-disk cache paths, plus the placeholder-suffix ("dummy ending")
// encoding that marks a cache entry as non-resident.
package pathconv

import (
	"path/filepath"
	"strings"
)

// DummySuffix is appended to a cache path to denote that the bytes are not
// resident locally and the file holds a serialized stat dictionary instead.
// Directories never carry this suffix.
const DummySuffix = ".zerofuse-placeholder"

// Converter maps logical paths in the mount namespace to paths under a
// single cache-root directory on disk, and back.
type Converter struct {
	root string
}

// New returns a Converter rooted at cacheRoot. cacheRoot should be an
// absolute, existing directory.
func New(cacheRoot string) *Converter {
	return &Converter{root: filepath.Clean(cacheRoot)}
}

// Root returns the cache-root directory this converter was constructed with.
func (c *Converter) Root() string {
	return c.root
}

// ToCachePath maps a logical path to its on-disk location under the cache
// root.
func (c *Converter) ToCachePath(logicalPath string) string {
	return filepath.Join(c.root, filepath.Clean("/"+logicalPath))
}

// FromCachePath is the inverse of ToCachePath: it strips the cache-root
// prefix (and any dummy suffix) to recover the logical path. It returns ""
// if cachePath does not lie under the cache root.
func (c *Converter) FromCachePath(cachePath string) string {
	stripped := c.StripDummyEnding(cachePath)
	rel, err := filepath.Rel(c.root, stripped)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	return "/" + filepath.ToSlash(rel)
}

// AddDummyEnding appends the reserved placeholder suffix to a cache path.
func (c *Converter) AddDummyEnding(cachePath string) string {
	return cachePath + DummySuffix
}

// StripDummyEnding removes the placeholder suffix from a cache path or file
// name if present, returning the input unchanged otherwise. list() uses this
// so that a placeholder and a resident file both surface under the same
// logical name.
func (c *Converter) StripDummyEnding(name string) string {
	return strings.TrimSuffix(name, DummySuffix)
}

// IsDummy reports whether cachePath carries the placeholder suffix.
func (c *Converter) IsDummy(cachePath string) bool {
	return strings.HasSuffix(cachePath, DummySuffix)
}
