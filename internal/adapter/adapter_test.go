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

package adapter_test

import (
	"context"
	"os"
	"syscall"
	"testing"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/jokalee/zero/clock"
	"github.com/jokalee/zero/internal/adapter"
	"github.com/jokalee/zero/internal/cache"
	"github.com/jokalee/zero/internal/inode"
	"github.com/jokalee/zero/internal/pathconv"
	"github.com/jokalee/zero/internal/pathlock"
	"github.com/jokalee/zero/internal/ranker"
	"github.com/jokalee/zero/internal/remote"
	"github.com/jokalee/zero/internal/state"
	"github.com/jokalee/zero/internal/statdict"
)

type AdapterTest struct {
	suite.Suite

	ctx       context.Context
	root      string
	converter *pathconv.Converter
	inodes    *inode.Registry
	states    *state.Store
	remoteAPI *remote.Fake
	server    fuseutil.FileSystem
}

func TestAdapterSuite(t *testing.T) { suite.Run(t, new(AdapterTest)) }

func (t *AdapterTest) SetupTest() {
	t.ctx = context.Background()
	t.root = t.T().TempDir()
	t.converter = pathconv.New(t.root)
	t.inodes = inode.New()
	t.states = state.New()
	t.remoteAPI = remote.NewFake()

	c := cache.New(
		t.root,
		pathlock.New(),
		t.inodes,
		t.states,
		ranker.NewLRU(clock.RealClock{}, 1000),
		t.remoteAPI,
	)
	t.server = adapter.NewFileSystem(c, uint32(os.Getuid()), uint32(os.Getgid()), nil)
}

// lookUp resolves name under parent, failing the test on error.
func (t *AdapterTest) lookUp(parent fuseops.InodeID, name string) fuseops.ChildInodeEntry {
	op := &fuseops.LookUpInodeOp{Parent: parent, Name: name}
	require.NoError(t.T(), t.server.LookUpInode(t.ctx, op))
	return op.Entry
}

func (t *AdapterTest) TestLookUpMissingEntryReturnsENOENT() {
	op := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "nope"}
	err := t.server.LookUpInode(t.ctx, op)
	assert.Equal(t.T(), syscall.ENOENT, err)
}

func (t *AdapterTest) TestCreateWriteRead() {
	createOp := &fuseops.CreateFileOp{
		Parent: fuseops.RootInodeID,
		Name:   "hello.txt",
		Mode:   0o644,
	}
	require.NoError(t.T(), t.server.CreateFile(t.ctx, createOp))
	require.NotZero(t.T(), createOp.Handle)

	writeOp := &fuseops.WriteFileOp{
		Inode:  createOp.Entry.Child,
		Handle: createOp.Handle,
		Data:   []byte("hello"),
		Offset: 0,
	}
	require.NoError(t.T(), t.server.WriteFile(t.ctx, writeOp))

	readOp := &fuseops.ReadFileOp{
		Inode:  createOp.Entry.Child,
		Handle: createOp.Handle,
		Dst:    make([]byte, 16),
		Offset: 0,
	}
	require.NoError(t.T(), t.server.ReadFile(t.ctx, readOp))
	assert.Equal(t.T(), "hello", string(readOp.Dst[:readOp.BytesRead]))

	releaseOp := &fuseops.ReleaseFileHandleOp{Handle: createOp.Handle}
	require.NoError(t.T(), t.server.ReleaseFileHandle(t.ctx, releaseOp))
}

func (t *AdapterTest) TestGetAttributesReflectsWrittenSize() {
	createOp := &fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: "sized", Mode: 0o644}
	require.NoError(t.T(), t.server.CreateFile(t.ctx, createOp))
	writeOp := &fuseops.WriteFileOp{
		Inode:  createOp.Entry.Child,
		Handle: createOp.Handle,
		Data:   []byte("12345"),
	}
	require.NoError(t.T(), t.server.WriteFile(t.ctx, writeOp))

	attrOp := &fuseops.GetInodeAttributesOp{Inode: createOp.Entry.Child}
	require.NoError(t.T(), t.server.GetInodeAttributes(t.ctx, attrOp))
	assert.EqualValues(t.T(), 5, attrOp.Attributes.Size)
}

func (t *AdapterTest) TestMkDirAndReadDirStripsPlaceholderSuffix() {
	mkdirOp := &fuseops.MkDirOp{Parent: fuseops.RootInodeID, Name: "sub", Mode: 0o755}
	require.NoError(t.T(), t.server.MkDir(t.ctx, mkdirOp))
	assert.True(t.T(), mkdirOp.Entry.Attributes.Mode.IsDir())

	// One resident file and one placeholder inside the new directory.
	createOp := &fuseops.CreateFileOp{Parent: mkdirOp.Entry.Child, Name: "resident", Mode: 0o644}
	require.NoError(t.T(), t.server.CreateFile(t.ctx, createOp))

	id, err := t.inodes.CreatePath("/sub/ghost", false)
	require.NoError(t.T(), err)
	t.states.SetRemote(id)
	dummy := t.converter.AddDummyEnding(t.converter.ToCachePath("/sub/ghost"))
	require.NoError(t.T(), statdict.WriteTo(dummy, statdict.Dict{Mode: 0o644, Size: 1}))

	readOp := &fuseops.ReadDirOp{
		Inode: mkdirOp.Entry.Child,
		Dst:   make([]byte, 4096),
	}
	require.NoError(t.T(), t.server.ReadDir(t.ctx, readOp))
	require.NotZero(t.T(), readOp.BytesRead)

	listing := string(readOp.Dst[:readOp.BytesRead])
	assert.Contains(t.T(), listing, "resident")
	assert.Contains(t.T(), listing, "ghost")
	assert.NotContains(t.T(), listing, pathconv.DummySuffix)
}

func (t *AdapterTest) TestOpenHydratesAndReadsRemoteBytes() {
	id, err := t.inodes.CreatePath("/r", false)
	require.NoError(t.T(), err)
	t.states.SetRemote(id)
	dummy := t.converter.AddDummyEnding(t.converter.ToCachePath("/r"))
	require.NoError(t.T(), statdict.WriteTo(dummy, statdict.Dict{Mode: 0o644, Size: 3, Mtime: 2000}))
	t.remoteAPI.SetObject(id, []byte("xyz"))

	entry := t.lookUp(fuseops.RootInodeID, "r")

	openOp := &fuseops.OpenFileOp{Inode: entry.Child}
	require.NoError(t.T(), t.server.OpenFile(t.ctx, openOp))

	readOp := &fuseops.ReadFileOp{
		Inode:  entry.Child,
		Handle: openOp.Handle,
		Dst:    make([]byte, 8),
	}
	require.NoError(t.T(), t.server.ReadFile(t.ctx, readOp))
	assert.Equal(t.T(), "xyz", string(readOp.Dst[:readOp.BytesRead]))
	assert.True(t.T(), t.states.IsClean(id))
}

func (t *AdapterTest) TestOpenSurfacesNetworkFailureAsErrno() {
	id, err := t.inodes.CreatePath("/gone", false)
	require.NoError(t.T(), err)
	t.states.SetRemote(id)
	dummy := t.converter.AddDummyEnding(t.converter.ToCachePath("/gone"))
	require.NoError(t.T(), statdict.WriteTo(dummy, statdict.Dict{Mode: 0o644}))
	t.remoteAPI.FailNext(id)

	entry := t.lookUp(fuseops.RootInodeID, "gone")

	openOp := &fuseops.OpenFileOp{Inode: entry.Child}
	assert.Equal(t.T(), syscall.ENETUNREACH, t.server.OpenFile(t.ctx, openOp))
}

func (t *AdapterTest) TestRenameMovesInodeNumberWithPath() {
	createOp := &fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: "old", Mode: 0o644}
	require.NoError(t.T(), t.server.CreateFile(t.ctx, createOp))
	require.NoError(t.T(), t.server.ReleaseFileHandle(t.ctx, &fuseops.ReleaseFileHandleOp{Handle: createOp.Handle}))

	renameOp := &fuseops.RenameOp{
		OldParent: fuseops.RootInodeID,
		OldName:   "old",
		NewParent: fuseops.RootInodeID,
		NewName:   "new",
	}
	require.NoError(t.T(), t.server.Rename(t.ctx, renameOp))

	entry := t.lookUp(fuseops.RootInodeID, "new")
	assert.Equal(t.T(), createOp.Entry.Child, entry.Child)

	lookupOld := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "old"}
	assert.Equal(t.T(), syscall.ENOENT, t.server.LookUpInode(t.ctx, lookupOld))
}

func (t *AdapterTest) TestUnlinkThenLookUpReturnsENOENT() {
	createOp := &fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: "doomed", Mode: 0o644}
	require.NoError(t.T(), t.server.CreateFile(t.ctx, createOp))
	require.NoError(t.T(), t.server.ReleaseFileHandle(t.ctx, &fuseops.ReleaseFileHandleOp{Handle: createOp.Handle}))

	unlinkOp := &fuseops.UnlinkOp{Parent: fuseops.RootInodeID, Name: "doomed"}
	require.NoError(t.T(), t.server.Unlink(t.ctx, unlinkOp))

	lookupOp := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "doomed"}
	assert.Equal(t.T(), syscall.ENOENT, t.server.LookUpInode(t.ctx, lookupOp))
}

func (t *AdapterTest) TestSetInodeAttributesTruncates() {
	createOp := &fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: "trunc", Mode: 0o644}
	require.NoError(t.T(), t.server.CreateFile(t.ctx, createOp))
	writeOp := &fuseops.WriteFileOp{
		Inode:  createOp.Entry.Child,
		Handle: createOp.Handle,
		Data:   []byte("0123456789"),
	}
	require.NoError(t.T(), t.server.WriteFile(t.ctx, writeOp))

	size := uint64(4)
	setOp := &fuseops.SetInodeAttributesOp{Inode: createOp.Entry.Child, Size: &size}
	require.NoError(t.T(), t.server.SetInodeAttributes(t.ctx, setOp))
	assert.EqualValues(t.T(), 4, setOp.Attributes.Size)
}

func (t *AdapterTest) TestRmDir() {
	mkdirOp := &fuseops.MkDirOp{Parent: fuseops.RootInodeID, Name: "empty", Mode: 0o755}
	require.NoError(t.T(), t.server.MkDir(t.ctx, mkdirOp))

	rmdirOp := &fuseops.RmDirOp{Parent: fuseops.RootInodeID, Name: "empty"}
	require.NoError(t.T(), t.server.RmDir(t.ctx, rmdirOp))

	lookupOp := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "empty"}
	assert.Equal(t.T(), syscall.ENOENT, t.server.LookUpInode(t.ctx, lookupOp))
}
