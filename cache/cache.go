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

// Package cache persists verified metadata locally between refresh cycles,
// so a restart does not require re-bootstrapping trust from scratch.
package cache

import "encoding/json"

// MetadataCache stores named JSON documents (role metadata, keyed by e.g.
// "root.json", "timestamp.json"). Implementations must be safe for
// concurrent use; WithLockedCache is the expected access pattern for
// callers that need a read/modify/write critical section.
type MetadataCache interface {
	GetMeta() (map[string]json.RawMessage, error)
	SetMeta(name string, meta json.RawMessage) error
	DeleteMeta(name string) error
	Close() error
}
