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

package cache

import (
	"encoding/json"
	"sync"
)

// LockedCache wraps a MetadataCache with a single RWMutex, serializing
// writers against each other and against readers, so the verify-then-commit
// window of one refresh cycle cannot interleave with another.
type LockedCache struct {
	mtx   sync.RWMutex
	store MetadataCache
}

// NewLockedCache returns a MetadataCache that is safe for concurrent use.
func NewLockedCache(store MetadataCache) *LockedCache {
	return &LockedCache{store: store}
}

func (c *LockedCache) GetMeta() (map[string]json.RawMessage, error) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.store.GetMeta()
}

func (c *LockedCache) SetMeta(name string, meta json.RawMessage) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.store.SetMeta(name, meta)
}

func (c *LockedCache) DeleteMeta(name string) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.store.DeleteMeta(name)
}

func (c *LockedCache) Close() error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.store.Close()
}

// WithLockedCache runs action, passing it the unwrapped store, while
// holding the write lock for the entire verify-then-commit window, so a
// concurrent caller can never observe a partially-committed refresh.
// action must call methods on the store it is given, not on the
// LockedCache itself, or it will deadlock re-acquiring the same lock.
func (c *LockedCache) WithLockedCache(action func(store MetadataCache) error) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return action(c.store)
}
