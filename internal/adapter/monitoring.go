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

package adapter

import (
	"context"
	"errors"
	"syscall"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/jokalee/zero/internal/metrics"
)

// Error categories reported alongside failed operations, so dashboards can
// distinguish "file not found" noise from real trouble.
const (
	errDevice         = "device errors"
	errDirNotEmpty    = "directory not empty"
	errFileExists     = "file exists"
	errFileDir        = "file/directory errors"
	errNotImplemented = "function not implemented"
	errInterrupt      = "interrupt errors"
	errInvalidArg     = "invalid argument"
	errInvalidOp      = "invalid operation"
	errIO             = "input/output error"
	errMisc           = "miscellaneous errors"
	errNetwork        = "network errors"
	errNotADir        = "not a directory"
	errNotFound       = "no such file or directory"
	errPerm           = "permission errors"
	errProcessMgmt    = "process/resource management errors"
	errTooManyFiles   = "too many open files"
)

func errCategory(err error) string {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return errIO
	}
	switch errno {
	case syscall.ELNRNG, syscall.ENODEV, syscall.ENXIO:
		return errDevice
	case syscall.ENOTEMPTY:
		return errDirNotEmpty
	case syscall.EEXIST:
		return errFileExists
	case syscall.EBADF, syscall.EISDIR, syscall.ENOENT:
		return errFileDir
	case syscall.ENOSYS:
		return errNotImplemented
	case syscall.EINTR:
		return errInterrupt
	case syscall.EINVAL:
		return errInvalidArg
	case syscall.E2BIG:
		return errInvalidOp
	case syscall.EIO:
		return errIO
	case syscall.EHOSTDOWN, syscall.ENETDOWN, syscall.ENETUNREACH, syscall.ENONET:
		return errNetwork
	case syscall.ENOTDIR:
		return errNotADir
	case syscall.EACCES, syscall.EPERM:
		return errPerm
	case syscall.EAGAIN, syscall.EMLINK, syscall.ENOSPC:
		return errProcessMgmt
	case syscall.EMFILE, syscall.ENFILE:
		return errTooManyFiles
	default:
		return errMisc
	}
}

// monitoring decorates a fuseutil.FileSystem with per-operation count,
// error and latency metrics.
type monitoring struct {
	wrapped fuseutil.FileSystem
	metrics *metrics.Metrics
}

// WithMonitoring wraps fs so every operation is counted and timed in m.
func WithMonitoring(fs fuseutil.FileSystem, m *metrics.Metrics) fuseutil.FileSystem {
	return &monitoring{wrapped: fs, metrics: m}
}

func (fs *monitoring) record(op string, start time.Time, err error) {
	fs.metrics.OpsCount.WithLabelValues(op).Inc()
	fs.metrics.OpsLatency.WithLabelValues(op).Observe(float64(time.Since(start).Microseconds()))
	if err != nil {
		fs.metrics.OpsErrorCount.WithLabelValues(op, errCategory(err)).Inc()
	}
}

func (fs *monitoring) StatFS(ctx context.Context, op *fuseops.StatFSOp) (err error) {
	defer func(start time.Time) { fs.record("StatFS", start, err) }(time.Now())
	err = fs.wrapped.StatFS(ctx, op)
	return
}

func (fs *monitoring) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) (err error) {
	defer func(start time.Time) { fs.record("LookUpInode", start, err) }(time.Now())
	err = fs.wrapped.LookUpInode(ctx, op)
	return
}

func (fs *monitoring) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) (err error) {
	defer func(start time.Time) { fs.record("GetInodeAttributes", start, err) }(time.Now())
	err = fs.wrapped.GetInodeAttributes(ctx, op)
	return
}

func (fs *monitoring) SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp) (err error) {
	defer func(start time.Time) { fs.record("SetInodeAttributes", start, err) }(time.Now())
	err = fs.wrapped.SetInodeAttributes(ctx, op)
	return
}

func (fs *monitoring) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) (err error) {
	defer func(start time.Time) { fs.record("ForgetInode", start, err) }(time.Now())
	err = fs.wrapped.ForgetInode(ctx, op)
	return
}

func (fs *monitoring) BatchForget(ctx context.Context, op *fuseops.BatchForgetOp) (err error) {
	defer func(start time.Time) { fs.record("BatchForget", start, err) }(time.Now())
	err = fs.wrapped.BatchForget(ctx, op)
	return
}

func (fs *monitoring) MkDir(ctx context.Context, op *fuseops.MkDirOp) (err error) {
	defer func(start time.Time) { fs.record("MkDir", start, err) }(time.Now())
	err = fs.wrapped.MkDir(ctx, op)
	return
}

func (fs *monitoring) MkNode(ctx context.Context, op *fuseops.MkNodeOp) (err error) {
	defer func(start time.Time) { fs.record("MkNode", start, err) }(time.Now())
	err = fs.wrapped.MkNode(ctx, op)
	return
}

func (fs *monitoring) CreateFile(ctx context.Context, op *fuseops.CreateFileOp) (err error) {
	defer func(start time.Time) { fs.record("CreateFile", start, err) }(time.Now())
	err = fs.wrapped.CreateFile(ctx, op)
	return
}

func (fs *monitoring) CreateLink(ctx context.Context, op *fuseops.CreateLinkOp) (err error) {
	defer func(start time.Time) { fs.record("CreateLink", start, err) }(time.Now())
	err = fs.wrapped.CreateLink(ctx, op)
	return
}

func (fs *monitoring) CreateSymlink(ctx context.Context, op *fuseops.CreateSymlinkOp) (err error) {
	defer func(start time.Time) { fs.record("CreateSymlink", start, err) }(time.Now())
	err = fs.wrapped.CreateSymlink(ctx, op)
	return
}

func (fs *monitoring) Rename(ctx context.Context, op *fuseops.RenameOp) (err error) {
	defer func(start time.Time) { fs.record("Rename", start, err) }(time.Now())
	err = fs.wrapped.Rename(ctx, op)
	return
}

func (fs *monitoring) RmDir(ctx context.Context, op *fuseops.RmDirOp) (err error) {
	defer func(start time.Time) { fs.record("RmDir", start, err) }(time.Now())
	err = fs.wrapped.RmDir(ctx, op)
	return
}

func (fs *monitoring) Unlink(ctx context.Context, op *fuseops.UnlinkOp) (err error) {
	defer func(start time.Time) { fs.record("Unlink", start, err) }(time.Now())
	err = fs.wrapped.Unlink(ctx, op)
	return
}

func (fs *monitoring) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) (err error) {
	defer func(start time.Time) { fs.record("OpenDir", start, err) }(time.Now())
	err = fs.wrapped.OpenDir(ctx, op)
	return
}

func (fs *monitoring) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) (err error) {
	defer func(start time.Time) { fs.record("ReadDir", start, err) }(time.Now())
	err = fs.wrapped.ReadDir(ctx, op)
	return
}

func (fs *monitoring) ReadDirPlus(ctx context.Context, op *fuseops.ReadDirPlusOp) (err error) {
	defer func(start time.Time) { fs.record("ReadDirPlus", start, err) }(time.Now())
	err = fs.wrapped.ReadDirPlus(ctx, op)
	return
}

func (fs *monitoring) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) (err error) {
	defer func(start time.Time) { fs.record("ReleaseDirHandle", start, err) }(time.Now())
	err = fs.wrapped.ReleaseDirHandle(ctx, op)
	return
}

func (fs *monitoring) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) (err error) {
	defer func(start time.Time) { fs.record("OpenFile", start, err) }(time.Now())
	err = fs.wrapped.OpenFile(ctx, op)
	return
}

func (fs *monitoring) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) (err error) {
	defer func(start time.Time) { fs.record("ReadFile", start, err) }(time.Now())
	err = fs.wrapped.ReadFile(ctx, op)
	return
}

func (fs *monitoring) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) (err error) {
	defer func(start time.Time) { fs.record("WriteFile", start, err) }(time.Now())
	err = fs.wrapped.WriteFile(ctx, op)
	return
}

func (fs *monitoring) SyncFile(ctx context.Context, op *fuseops.SyncFileOp) (err error) {
	defer func(start time.Time) { fs.record("SyncFile", start, err) }(time.Now())
	err = fs.wrapped.SyncFile(ctx, op)
	return
}

func (fs *monitoring) FlushFile(ctx context.Context, op *fuseops.FlushFileOp) (err error) {
	defer func(start time.Time) { fs.record("FlushFile", start, err) }(time.Now())
	err = fs.wrapped.FlushFile(ctx, op)
	return
}

func (fs *monitoring) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) (err error) {
	defer func(start time.Time) { fs.record("ReleaseFileHandle", start, err) }(time.Now())
	err = fs.wrapped.ReleaseFileHandle(ctx, op)
	return
}

func (fs *monitoring) ReadSymlink(ctx context.Context, op *fuseops.ReadSymlinkOp) (err error) {
	defer func(start time.Time) { fs.record("ReadSymlink", start, err) }(time.Now())
	err = fs.wrapped.ReadSymlink(ctx, op)
	return
}

func (fs *monitoring) RemoveXattr(ctx context.Context, op *fuseops.RemoveXattrOp) (err error) {
	defer func(start time.Time) { fs.record("RemoveXattr", start, err) }(time.Now())
	err = fs.wrapped.RemoveXattr(ctx, op)
	return
}

func (fs *monitoring) GetXattr(ctx context.Context, op *fuseops.GetXattrOp) (err error) {
	defer func(start time.Time) { fs.record("GetXattr", start, err) }(time.Now())
	err = fs.wrapped.GetXattr(ctx, op)
	return
}

func (fs *monitoring) ListXattr(ctx context.Context, op *fuseops.ListXattrOp) (err error) {
	defer func(start time.Time) { fs.record("ListXattr", start, err) }(time.Now())
	err = fs.wrapped.ListXattr(ctx, op)
	return
}

func (fs *monitoring) SetXattr(ctx context.Context, op *fuseops.SetXattrOp) (err error) {
	defer func(start time.Time) { fs.record("SetXattr", start, err) }(time.Now())
	err = fs.wrapped.SetXattr(ctx, op)
	return
}

func (fs *monitoring) Fallocate(ctx context.Context, op *fuseops.FallocateOp) (err error) {
	defer func(start time.Time) { fs.record("Fallocate", start, err) }(time.Now())
	err = fs.wrapped.Fallocate(ctx, op)
	return
}

func (fs *monitoring) SyncFS(ctx context.Context, op *fuseops.SyncFSOp) (err error) {
	defer func(start time.Time) { fs.record("SyncFS", start, err) }(time.Now())
	err = fs.wrapped.SyncFS(ctx, op)
	return
}

func (fs *monitoring) Destroy() {
	fs.wrapped.Destroy()
}
