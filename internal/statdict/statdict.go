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

// Package statdict serializes POSIX stat fields to and from the small JSON
// document a placeholder file carries in place of real bytes, and provides
// the "open without changing times" primitive dehydration needs when it
// rewrites a placeholder's contents.
package statdict

import (
	"encoding/json"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Dict is the serialized stat dictionary a placeholder file contains. Field
// names match the POSIX stat struct members the adapter needs to report
// back to the kernel.
type Dict struct {
	Mode  uint32 `json:"st_mode"`
	Uid   uint32 `json:"st_uid"`
	Gid   uint32 `json:"st_gid"`
	Size  int64  `json:"st_size"`
	Atime int64  `json:"st_atime"`
	Mtime int64  `json:"st_mtime"`
	Ctime int64  `json:"st_ctime"`
}

// AtimeTime returns Atime as a time.Time.
func (d Dict) AtimeTime() time.Time { return time.Unix(d.Atime, 0) }

// MtimeTime returns Mtime as a time.Time.
func (d Dict) MtimeTime() time.Time { return time.Unix(d.Mtime, 0) }

// FromFile stats the file at path and returns its fields as a Dict.
func FromFile(path string) (Dict, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return Dict{}, &os.PathError{Op: "stat", Path: path, Err: err}
	}
	return Dict{
		Mode:  uint32(st.Mode),
		Uid:   st.Uid,
		Gid:   st.Gid,
		Size:  st.Size,
		Atime: st.Atim.Sec,
		Mtime: st.Mtim.Sec,
		Ctime: st.Ctim.Sec,
	}, nil
}

// WriteTo serializes d as JSON into the file at path, truncating or
// creating it, using an os.Chtimes-free writer so the placeholder's own
// atime/mtime (already fixed up by the rename that created it) are left
// alone by the write itself. Dehydrate writes its placeholder through this
// function; use OpenWithoutChangingTimes directly when finer control over
// the write is needed.
func WriteTo(path string, d Dict) error {
	f, err := OpenWithoutChangingTimes(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	if err := enc.Encode(d); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadFrom parses a placeholder file's JSON stat dictionary.
func ReadFrom(path string) (Dict, error) {
	f, err := os.Open(path)
	if err != nil {
		return Dict{}, err
	}
	defer f.Close()

	var d Dict
	if err := json.NewDecoder(f).Decode(&d); err != nil {
		return Dict{}, err
	}
	return d, nil
}

// TimePreservingFile wraps an *os.File whose Close restores the atime and
// mtime the underlying path had at the moment the file was opened, so that
// writing to it (as dehydrate does when it serializes the stat dictionary)
// does not disturb the placeholder's reported times.
type TimePreservingFile struct {
	*os.File
	path         string
	atime, mtime unix.Timespec
}

func (f *TimePreservingFile) Close() error {
	closeErr := f.File.Close()
	times := []unix.Timespec{f.atime, f.mtime}
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, f.path, times, 0); err != nil && closeErr == nil {
		return err
	}
	return closeErr
}

// OpenWithoutChangingTimes opens path for writing (creating it if
// necessary) such that, once the returned file is closed, the path's
// access and modification times are exactly what they were before the
// call — unlike a plain write, which would normally bump mtime. Dehydrate
// uses this (via WriteTo) so rewriting a placeholder's body doesn't clobber
// the atime and mtime the preceding rename preserved. The ctime is not
// restored: the write and the time reset both update it.
func OpenWithoutChangingTimes(path string) (*TimePreservingFile, error) {
	var before unix.Stat_t
	existed := true
	if err := unix.Stat(path, &before); err != nil {
		if !os.IsNotExist(err) {
			return nil, &os.PathError{Op: "stat", Path: path, Err: err}
		}
		existed = false
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}

	if !existed {
		// Nothing to preserve; fall back to whatever times the create
		// produced.
		if statErr := unix.Stat(path, &before); statErr != nil {
			f.Close()
			return nil, statErr
		}
	}

	return &TimePreservingFile{
		File:  f,
		path:  path,
		atime: before.Atim,
		mtime: before.Mtim,
	}, nil
}
