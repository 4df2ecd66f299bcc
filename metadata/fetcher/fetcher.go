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

// Package fetcher abstracts the transport used to retrieve metadata and
// package documents, so the updater can be pointed at HTTP mirrors, S3
// buckets, or a test double without changing its verification logic.
package fetcher

import (
	"context"
	"time"
)

// Fetcher downloads the document at urlPath, refusing anything past
// maxLength and aborting after timeout.
type Fetcher interface {
	DownloadFile(ctx context.Context, urlPath string, maxLength int64, timeout time.Duration) ([]byte, error)
}
