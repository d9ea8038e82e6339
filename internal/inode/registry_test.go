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

package inode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/jokalee/zero/internal/inode"
)

type RegistryTest struct {
	suite.Suite
	r *inode.Registry
}

func TestRegistrySuite(t *testing.T) { suite.Run(t, new(RegistryTest)) }

func (t *RegistryTest) SetupTest() {
	t.r = inode.New()
}

func (t *RegistryTest) TestCreatePathAssignsFreshID() {
	id, err := t.r.CreatePath("/a", false)
	require.NoError(t.T(), err)
	assert.NotEmpty(t.T(), id)

	got, ok := t.r.GetInode("/a")
	require.True(t.T(), ok)
	assert.Equal(t.T(), id, got)
}

func (t *RegistryTest) TestCreatePathTwiceFails() {
	_, err := t.r.CreatePath("/a", false)
	require.NoError(t.T(), err)
	_, err = t.r.CreatePath("/a", false)
	assert.ErrorIs(t.T(), err, inode.ErrExists)
}

func (t *RegistryTest) TestGetInodeUnknownPath() {
	_, ok := t.r.GetInode("/nope")
	assert.False(t.T(), ok)
}

func (t *RegistryTest) TestDeletePathForgetsLastReference() {
	id, err := t.r.CreatePath("/a", false)
	require.NoError(t.T(), err)

	require.NoError(t.T(), t.r.DeletePath("/a"))
	_, ok := t.r.GetInode("/a")
	assert.False(t.T(), ok)
	assert.Nil(t.T(), t.r.GetPaths(id))
}

func (t *RegistryTest) TestDeletePathUnknown() {
	assert.ErrorIs(t.T(), t.r.DeletePath("/nope"), inode.ErrNotFound)
}

func (t *RegistryTest) TestRenamePathsPreservesIdentity() {
	id, err := t.r.CreatePath("/a", false)
	require.NoError(t.T(), err)

	require.NoError(t.T(), t.r.RenamePaths("/a", "/b"))

	_, ok := t.r.GetInode("/a")
	assert.False(t.T(), ok)
	got, ok := t.r.GetInode("/b")
	require.True(t.T(), ok)
	assert.Equal(t.T(), id, got)
	assert.Equal(t.T(), []string{"/b"}, t.r.GetPaths(id))
}

// Renaming over a path that already refers to a different inode drops that
// inode's registration for the destination path; the caller (Cache.Rename)
// is responsible for the on-disk and state-store consequences.
func (t *RegistryTest) TestRenamePathsOverExistingDropsOldInode() {
	oldID, err := t.r.CreatePath("/a", false)
	require.NoError(t.T(), err)
	victimID, err := t.r.CreatePath("/b", false)
	require.NoError(t.T(), err)

	require.NoError(t.T(), t.r.RenamePaths("/a", "/b"))

	got, ok := t.r.GetInode("/b")
	require.True(t.T(), ok)
	assert.Equal(t.T(), oldID, got)
	assert.Empty(t.T(), t.r.GetPaths(victimID))
}

func (t *RegistryTest) TestIsDir() {
	_, err := t.r.CreatePath("/dir", true)
	require.NoError(t.T(), err)
	_, err = t.r.CreatePath("/file", false)
	require.NoError(t.T(), err)

	assert.True(t.T(), t.r.IsDir("/dir"))
	assert.False(t.T(), t.r.IsDir("/file"))
	assert.False(t.T(), t.r.IsDir("/nope"))
}
