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

package remote

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/context"

	"github.com/jokalee/zero/internal/inode"
)

// HTTPDownloader fetches inode bytes over plain HTTP from an object-store
// gateway laid out as {endpoint}/{bucket}/{inode}. Every failure — DNS,
// connect, timeout, or a non-2xx status — is reported as ErrUnreachable;
// the cache never retries, it just fails the single operation.
type HTTPDownloader struct {
	endpoint string
	bucket   string
	client   *http.Client
}

// NewHTTPDownloader returns a downloader for bucket behind endpoint.
// client may be nil, in which case http.DefaultClient is used.
func NewHTTPDownloader(endpoint, bucket string, client *http.Client) *HTTPDownloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPDownloader{
		endpoint: strings.TrimRight(endpoint, "/"),
		bucket:   bucket,
		client:   client,
	}
}

// Download implements Downloader.
func (d *HTTPDownloader) Download(ctx context.Context, id inode.ID) (io.ReadCloser, error) {
	u := d.endpoint + "/" + url.PathEscape(d.bucket) + "/" + url.PathEscape(string(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building download request for %s: %w", id, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w: %v", id, ErrUnreachable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("downloading %s: %w: status %s", id, ErrUnreachable, resp.Status)
	}
	return resp.Body, nil
}
