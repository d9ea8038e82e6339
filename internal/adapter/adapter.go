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

// Package adapter bridges the kernel and the cache: it implements
// fuseutil.FileSystem, translating each fuseops request into the matching
// path-based cache.Cache call and each cache error into the syscall.Errno
// the kernel expects.
//
// The kernel speaks in inode numbers and file handles, the cache in
// logical paths and *os.File. The adapter owns the two translation tables
// (inode number <-> logical path, handle -> open file) and nothing else;
// all filesystem semantics live behind the cache boundary.
package adapter

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/jokalee/zero/internal/cache"
	"github.com/jokalee/zero/internal/inode"
	"github.com/jokalee/zero/internal/pathlock"
	"github.com/jokalee/zero/internal/statdict"
)

// entryExpiration is how long the kernel may cache a lookup result or an
// attribute response before asking again. Kept short because a background
// dehydration changes nothing the kernel sees, but a foreign rename does.
const entryExpiration = time.Minute

// fileSystem implements fuseutil.FileSystem on top of a cache.Cache.
//
// Must be created with NewFileSystem.
type fileSystem struct {
	fuseutil.NotImplementedFileSystem

	cache *cache.Cache
	log   *slog.Logger

	// uid and gid reported for entries whose placeholder dictionary does
	// not carry ownership (freshly created files inherit these too).
	uid uint32
	gid uint32

	mu sync.Mutex

	// Translation tables between the kernel's vocabulary and the cache's.
	// Inode numbers are minted on first lookup and live until ForgetInode;
	// a rename rewrites the affected paths in place so numbers stay
	// stable across it, the way the kernel assumes.
	//
	// GUARDED_BY(mu)
	pathByInode map[fuseops.InodeID]string
	// GUARDED_BY(mu)
	inodeByPath map[string]fuseops.InodeID
	// GUARDED_BY(mu)
	nextInode fuseops.InodeID

	// GUARDED_BY(mu)
	filesByHandle map[fuseops.HandleID]*os.File
	// GUARDED_BY(mu)
	nextHandle fuseops.HandleID
}

// NewFileSystem returns a fuseutil.FileSystem serving c. uid and gid are
// reported as the owner of every entry the remote doesn't describe.
func NewFileSystem(c *cache.Cache, uid, gid uint32, log *slog.Logger) fuseutil.FileSystem {
	if log == nil {
		log = slog.Default()
	}
	fs := &fileSystem{
		cache:         c,
		log:           log,
		uid:           uid,
		gid:           gid,
		pathByInode:   make(map[fuseops.InodeID]string),
		inodeByPath:   make(map[string]fuseops.InodeID),
		filesByHandle: make(map[fuseops.HandleID]*os.File),
		nextInode:     fuseops.RootInodeID + 1,
		nextHandle:    1,
	}
	fs.pathByInode[fuseops.RootInodeID] = "/"
	fs.inodeByPath["/"] = fuseops.RootInodeID
	return fs
}

// errno maps a cache error to the errno surfaced to the kernel. OS errors
// pass through with their own errno; the taxonomized cache errors get
// fixed mappings; anything unrecognized becomes EIO.
func errno(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, cache.ErrNotFound), errors.Is(err, inode.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return syscall.ENOENT
	case errors.Is(err, inode.ErrExists), errors.Is(err, os.ErrExist):
		return syscall.EEXIST
	case errors.Is(err, cache.ErrNetworkUnreachable):
		return syscall.ENETUNREACH
	case errors.Is(err, pathlock.ErrRetryExhausted):
		return syscall.EAGAIN
	}
	var errnoErr syscall.Errno
	if errors.As(err, &errnoErr) {
		return errnoErr
	}
	return syscall.EIO
}

func (fs *fileSystem) pathForInode(id fuseops.InodeID) (string, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	p, ok := fs.pathByInode[id]
	return p, ok
}

// internInode returns the stable inode number for p, minting one if this
// is the first time the kernel has looked p up.
func (fs *fileSystem) internInode(p string) fuseops.InodeID {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if id, ok := fs.inodeByPath[p]; ok {
		return id
	}
	id := fs.nextInode
	fs.nextInode++
	fs.inodeByPath[p] = id
	fs.pathByInode[id] = p
	return id
}

func (fs *fileSystem) dropPath(p string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if id, ok := fs.inodeByPath[p]; ok {
		delete(fs.inodeByPath, p)
		delete(fs.pathByInode, id)
	}
}

// movePath rewrites the tables after a rename, including every descendant
// of oldPath so directory renames don't orphan their children's numbers.
func (fs *fileSystem) movePath(oldPath, newPath string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	prefix := oldPath + "/"
	for p, id := range fs.inodeByPath {
		switch {
		case p == oldPath:
			delete(fs.inodeByPath, p)
			fs.inodeByPath[newPath] = id
			fs.pathByInode[id] = newPath
		case strings.HasPrefix(p, prefix):
			moved := newPath + "/" + p[len(prefix):]
			delete(fs.inodeByPath, p)
			fs.inodeByPath[moved] = id
			fs.pathByInode[id] = moved
		}
	}
}

func (fs *fileSystem) fileForHandle(h fuseops.HandleID) (*os.File, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	f, ok := fs.filesByHandle[h]
	return f, ok
}

func (fs *fileSystem) internHandle(f *os.File) fuseops.HandleID {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h := fs.nextHandle
	fs.nextHandle++
	fs.filesByHandle[h] = f
	return h
}

// attributes converts a stat dictionary to the kernel's attribute struct.
func (fs *fileSystem) attributes(d statdict.Dict) fuseops.InodeAttributes {
	uid, gid := d.Uid, d.Gid
	if uid == 0 && gid == 0 {
		uid, gid = fs.uid, fs.gid
	}
	return fuseops.InodeAttributes{
		Size:  uint64(d.Size),
		Nlink: 1,
		Mode:  os.FileMode(d.Mode & 0o777),
		Atime: d.AtimeTime(),
		Mtime: d.MtimeTime(),
		Ctime: time.Unix(d.Ctime, 0),
		Uid:   uid,
		Gid:   gid,
	}
}

func (fs *fileSystem) childEntry(p string) (fuseops.ChildInodeEntry, error) {
	d, err := fs.cache.GetAttributes(p)
	if err != nil {
		return fuseops.ChildInodeEntry{}, err
	}

	attrs := fs.attributes(d)
	if d.Mode&uint32(syscall.S_IFDIR) != 0 {
		attrs.Mode |= os.ModeDir
	}

	now := time.Now()
	return fuseops.ChildInodeEntry{
		Child:                fs.internInode(p),
		Attributes:           attrs,
		AttributesExpiration: now.Add(entryExpiration),
		EntryExpiration:      now.Add(entryExpiration),
	}, nil
}

func (fs *fileSystem) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	// The remote namespace has no meaningful capacity; report a large
	// constant so tools like df don't refuse to write.
	op.BlockSize = 1 << 17
	op.Blocks = 1 << 33
	op.BlocksFree = op.Blocks
	op.BlocksAvailable = op.Blocks
	op.IoSize = 1 << 20
	op.Inodes = 1 << 50
	op.InodesFree = op.Inodes
	return nil
}

func (fs *fileSystem) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	parent, ok := fs.pathForInode(op.Parent)
	if !ok {
		return syscall.ENOENT
	}

	entry, err := fs.childEntry(path.Join(parent, op.Name))
	if err != nil {
		return errno(err)
	}
	op.Entry = entry
	return nil
}

func (fs *fileSystem) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	p, ok := fs.pathForInode(op.Inode)
	if !ok {
		return syscall.ENOENT
	}

	d, err := fs.cache.GetAttributes(p)
	if err != nil {
		return errno(err)
	}
	op.Attributes = fs.attributes(d)
	if d.Mode&uint32(syscall.S_IFDIR) != 0 {
		op.Attributes.Mode |= os.ModeDir
	}
	op.AttributesExpiration = time.Now().Add(entryExpiration)
	return nil
}

func (fs *fileSystem) SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp) error {
	p, ok := fs.pathForInode(op.Inode)
	if !ok {
		return syscall.ENOENT
	}

	if op.Size != nil {
		if err := fs.cache.Truncate(p, int64(*op.Size)); err != nil {
			return errno(err)
		}
	}

	d, err := fs.cache.GetAttributes(p)
	if err != nil {
		return errno(err)
	}
	op.Attributes = fs.attributes(d)
	op.AttributesExpiration = time.Now().Add(entryExpiration)
	return nil
}

func (fs *fileSystem) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) error {
	// Inode numbers are cheap; keep the mapping until the path goes away
	// through unlink/rmdir/rename instead of refcounting lookups.
	return nil
}

func (fs *fileSystem) BatchForget(ctx context.Context, op *fuseops.BatchForgetOp) error {
	return nil
}

func (fs *fileSystem) MkDir(ctx context.Context, op *fuseops.MkDirOp) error {
	parent, ok := fs.pathForInode(op.Parent)
	if !ok {
		return syscall.ENOENT
	}
	p := path.Join(parent, op.Name)

	if err := fs.cache.Mkdir(p, op.Mode); err != nil {
		return errno(err)
	}

	entry, err := fs.childEntry(p)
	if err != nil {
		return errno(err)
	}
	op.Entry = entry
	return nil
}

func (fs *fileSystem) CreateFile(ctx context.Context, op *fuseops.CreateFileOp) error {
	parent, ok := fs.pathForInode(op.Parent)
	if !ok {
		return syscall.ENOENT
	}
	p := path.Join(parent, op.Name)

	f, err := fs.cache.Create(p, op.Mode)
	if err != nil {
		return errno(err)
	}

	entry, err := fs.childEntry(p)
	if err != nil {
		f.Close()
		return errno(err)
	}
	op.Entry = entry
	op.Handle = fs.internHandle(f)
	return nil
}

func (fs *fileSystem) RmDir(ctx context.Context, op *fuseops.RmDirOp) error {
	parent, ok := fs.pathForInode(op.Parent)
	if !ok {
		return syscall.ENOENT
	}
	p := path.Join(parent, op.Name)

	if err := fs.cache.Rmdir(p); err != nil {
		return errno(err)
	}
	fs.dropPath(p)
	return nil
}

func (fs *fileSystem) Unlink(ctx context.Context, op *fuseops.UnlinkOp) error {
	parent, ok := fs.pathForInode(op.Parent)
	if !ok {
		return syscall.ENOENT
	}
	p := path.Join(parent, op.Name)

	if err := fs.cache.Unlink(p); err != nil {
		return errno(err)
	}
	fs.dropPath(p)
	return nil
}

func (fs *fileSystem) Rename(ctx context.Context, op *fuseops.RenameOp) error {
	oldParent, ok := fs.pathForInode(op.OldParent)
	if !ok {
		return syscall.ENOENT
	}
	newParent, ok := fs.pathForInode(op.NewParent)
	if !ok {
		return syscall.ENOENT
	}
	oldPath := path.Join(oldParent, op.OldName)
	newPath := path.Join(newParent, op.NewName)

	if err := fs.cache.Rename(oldPath, newPath); err != nil {
		return errno(err)
	}
	fs.dropPath(newPath)
	fs.movePath(oldPath, newPath)
	return nil
}

func (fs *fileSystem) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	if _, ok := fs.pathForInode(op.Inode); !ok {
		return syscall.ENOENT
	}
	// Directory listings are served straight from the cache on each
	// ReadDir; no per-handle state to allocate.
	return nil
}

func (fs *fileSystem) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	p, ok := fs.pathForInode(op.Inode)
	if !ok {
		return syscall.ENOENT
	}

	names, err := fs.cache.List(p)
	if err != nil {
		return errno(err)
	}

	if op.Offset > fuseops.DirOffset(len(names)) {
		return syscall.EINVAL
	}

	for i := int(op.Offset); i < len(names); i++ {
		name := names[i]

		var childID fuseops.InodeID
		var dt fuseutil.DirentType
		switch name {
		case ".":
			childID, dt = op.Inode, fuseutil.DT_Directory
		case "..":
			childID, dt = fs.internInode(path.Dir(p)), fuseutil.DT_Directory
		default:
			childPath := path.Join(p, name)
			childID = fs.internInode(childPath)
			dt = fuseutil.DT_File
			if d, err := fs.cache.GetAttributes(childPath); err == nil && d.Mode&uint32(syscall.S_IFDIR) != 0 {
				dt = fuseutil.DT_Directory
			}
		}

		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], fuseutil.Dirent{
			Offset: fuseops.DirOffset(i + 1),
			Inode:  childID,
			Name:   name,
			Type:   dt,
		})
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

func (fs *fileSystem) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) error {
	return nil
}

func (fs *fileSystem) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	p, ok := fs.pathForInode(op.Inode)
	if !ok {
		return syscall.ENOENT
	}

	// The cache hydrates a placeholder here if needed, which may block on
	// the network for as long as the download takes.
	f, err := fs.cache.Open(p, os.O_RDWR)
	if err != nil {
		return errno(err)
	}
	op.Handle = fs.internHandle(f)
	op.KeepPageCache = false
	return nil
}

func (fs *fileSystem) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	p, ok := fs.pathForInode(op.Inode)
	if !ok {
		return syscall.ENOENT
	}
	f, ok := fs.fileForHandle(op.Handle)
	if !ok {
		return syscall.EBADF
	}

	data, err := fs.cache.Read(p, len(op.Dst), op.Offset, f)
	if err != nil {
		return errno(err)
	}
	op.BytesRead = copy(op.Dst, data)
	return nil
}

func (fs *fileSystem) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) error {
	p, ok := fs.pathForInode(op.Inode)
	if !ok {
		return syscall.ENOENT
	}
	f, ok := fs.fileForHandle(op.Handle)
	if !ok {
		return syscall.EBADF
	}

	if _, err := fs.cache.Write(p, op.Data, op.Offset, f); err != nil {
		return errno(err)
	}
	return nil
}

func (fs *fileSystem) SyncFile(ctx context.Context, op *fuseops.SyncFileOp) error {
	f, ok := fs.fileForHandle(op.Handle)
	if !ok {
		return syscall.EBADF
	}
	return errno(f.Sync())
}

func (fs *fileSystem) FlushFile(ctx context.Context, op *fuseops.FlushFileOp) error {
	return nil
}

func (fs *fileSystem) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error {
	fs.mu.Lock()
	f, ok := fs.filesByHandle[op.Handle]
	delete(fs.filesByHandle, op.Handle)
	fs.mu.Unlock()
	if !ok {
		return syscall.EBADF
	}
	return errno(f.Close())
}

func (fs *fileSystem) Destroy() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for h, f := range fs.filesByHandle {
		if err := f.Close(); err != nil {
			fs.log.Warn("adapter: close on destroy", "handle", h, "error", err)
		}
		delete(fs.filesByHandle, h)
	}
}
