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

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

// LevelDBCache stores metadata documents as key/value records in an
// embedded LevelDB, an alternative to FlatFileCache for hosts that already
// run an LevelDB-backed local store and want one storage engine rather
// than two.
type LevelDBCache struct {
	db *leveldb.DB
}

// NewLevelDBCache opens (creating if absent) a LevelDB database at path.
func NewLevelDBCache(path string) (*LevelDBCache, error) {
	fd, err := storage.OpenFile(path, false)
	if err != nil {
		return nil, err
	}
	db, err := leveldb.Open(fd, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDBCache{db: db}, nil
}

func (c *LevelDBCache) GetMeta() (map[string]json.RawMessage, error) {
	meta := make(map[string]json.RawMessage)
	it := c.db.NewIterator(nil, nil)
	defer it.Release()
	for it.Next() {
		v := make([]byte, len(it.Value()))
		copy(v, it.Value())
		meta[string(it.Key())] = v
	}
	return meta, it.Error()
}

func (c *LevelDBCache) SetMeta(name string, meta json.RawMessage) error {
	return c.db.Put([]byte(name), []byte(meta), nil)
}

func (c *LevelDBCache) DeleteMeta(name string) error {
	return c.db.Delete([]byte(name), nil)
}

func (c *LevelDBCache) Close() error {
	return c.db.Close()
}
