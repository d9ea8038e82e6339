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

package state_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/jokalee/zero/internal/inode"
	"github.com/jokalee/zero/internal/state"
)

type StoreTest struct {
	suite.Suite
	s  *state.Store
	id inode.ID
}

func TestStoreSuite(t *testing.T) { suite.Run(t, new(StoreTest)) }

func (t *StoreTest) SetupTest() {
	t.s = state.New()
	t.id = inode.ID("test-inode")
}

func (t *StoreTest) TestUnknownInodeHasNoEntry() {
	_, ok := t.s.Get(t.id)
	assert.False(t.T(), ok)
	assert.False(t.T(), t.s.Exists(t.id))
	assert.False(t.T(), t.s.IsClean(t.id))
	assert.False(t.T(), t.s.IsRemote(t.id))
}

func (t *StoreTest) TestSetDirty() {
	t.s.SetDirty(t.id)
	tag, ok := t.s.Get(t.id)
	require.True(t.T(), ok)
	assert.Equal(t.T(), state.Dirty, tag)
	assert.False(t.T(), t.s.IsClean(t.id))
}

func (t *StoreTest) TestSetRemoteThenDownloaded() {
	t.s.SetRemote(t.id)
	assert.True(t.T(), t.s.IsRemote(t.id))

	t.s.SetDownloaded(t.id)
	assert.False(t.T(), t.s.IsRemote(t.id))
	assert.True(t.T(), t.s.IsClean(t.id))
}

func (t *StoreTest) TestSetToDelete() {
	t.s.SetDirty(t.id)
	t.s.SetToDelete(t.id)
	tag, ok := t.s.Get(t.id)
	require.True(t.T(), ok)
	assert.Equal(t.T(), state.ToDelete, tag)
}

func (t *StoreTest) TestForgetRemovesEntry() {
	t.s.SetToDelete(t.id)
	t.s.Forget(t.id)
	assert.False(t.T(), t.s.Exists(t.id))
}

func (t *StoreTest) TestTagString() {
	assert.Equal(t.T(), "clean-local", state.CleanLocal.String())
	assert.Equal(t.T(), "dirty", state.Dirty.String())
	assert.Equal(t.T(), "remote", state.Remote.String())
	assert.Equal(t.T(), "to-delete", state.ToDelete.String())
}
