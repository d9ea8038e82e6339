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

package remote_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jokalee/zero/internal/remote"
)

func TestFakeDownloadReturnsSetObject(t *testing.T) {
	f := remote.NewFake()
	f.SetObject("id1", []byte("hello"))

	rc, err := f.Download(context.Background(), "id1")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestFakeDownloadUnknownObjectFails(t *testing.T) {
	f := remote.NewFake()
	_, err := f.Download(context.Background(), "missing")
	assert.True(t, errors.Is(err, remote.ErrUnreachable))
}

func TestFakeFailNextFailsOnlyOnce(t *testing.T) {
	f := remote.NewFake()
	f.SetObject("id1", []byte("hello"))
	f.FailNext("id1")

	_, err := f.Download(context.Background(), "id1")
	assert.True(t, errors.Is(err, remote.ErrUnreachable))

	rc, err := f.Download(context.Background(), "id1")
	require.NoError(t, err)
	rc.Close()
}
