// Copyright 2022-2023 VMware, Inc.
//
// This product is licensed to you under the BSD-2 license (the "License").
// You may not use this product except in compliance with the BSD-2 License.
// This product may include a number of subcomponents with separate copyright
// notices and license terms. Your use of these subcomponents is subject to
// the terms and conditions of the subcomponent's license, as noted in the
// LICENSE file.
//
// SPDX-License-Identifier: BSD-2-Clause

package fetcher

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/opentuf/repocore/metadata"
)

// DefaultFetcher retrieves documents over plain HTTP(S).
type DefaultFetcher struct {
	HTTPUserAgent string
	Transport     http.RoundTripper
}

// DownloadFile downloads a file from urlPath, failing if the server errors,
// the declared or observed length exceeds maxLength, or timeout elapses.
func (d *DefaultFetcher) DownloadFile(ctx context.Context, urlPath string, maxLength int64, timeout time.Duration) ([]byte, error) {
	client := &http.Client{Timeout: timeout, Transport: d.Transport}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlPath, nil)
	if err != nil {
		return nil, err
	}
	if d.HTTPUserAgent != "" {
		req.Header.Set("User-Agent", d.HTTPUserAgent)
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, metadata.ErrRemote{URL: urlPath, Cause: err}
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound || res.StatusCode == http.StatusForbidden || res.StatusCode != http.StatusOK {
		return nil, metadata.ErrRemote{URL: urlPath, Cause: &errDownloadHTTP{statusCode: res.StatusCode}}
	}
	if header := res.Header.Get("Content-Length"); header != "" {
		length, err := strconv.ParseInt(header, 10, 64)
		if err != nil {
			return nil, err
		}
		if length > maxLength {
			return nil, metadata.ErrVerificationFileInfo{Name: urlPath, Msg: "declared Content-Length exceeds configured maximum"}
		}
	}
	// The header is informational and may be absent or wrong; bound the read
	// itself with a LimitReader one byte past maxLength so an oversized body
	// with no/low Content-Length still gets caught.
	data, err := io.ReadAll(newTimeoutReader(io.LimitReader(res.Body, maxLength+1)))
	if err != nil {
		return nil, metadata.ErrRemote{URL: urlPath, Cause: err}
	}
	if int64(len(data)) > maxLength {
		return nil, metadata.ErrVerificationFileInfo{Name: urlPath, Msg: "downloaded content exceeds configured maximum length"}
	}
	return data, nil
}

type errDownloadHTTP struct {
	statusCode int
}

func (e *errDownloadHTTP) Error() string {
	return "unexpected HTTP status code " + strconv.Itoa(e.statusCode)
}
