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
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/opentuf/repocore/internal/fsutil"
)

// ErrNotJSON is returned by SetMeta when name does not end in ".json".
var ErrNotJSON = errors.New("cache: file is not in JSON format")

// FlatFileCache stores each role's metadata as one JSON file in baseDir.
type FlatFileCache struct {
	baseDir string
}

// NewFlatFileCache opens (creating if absent) a FlatFileCache rooted at
// baseDir.
func NewFlatFileCache(baseDir string) (*FlatFileCache, error) {
	return newFlatFileCache(baseDir, true)
}

func newFlatFileCache(baseDir string, create bool) (*FlatFileCache, error) {
	fi, err := os.Stat(baseDir)
	if err != nil {
		var pe *os.PathError
		if errors.As(err, &pe) && errors.Is(pe.Err, os.ErrNotExist) && create {
			if err := os.MkdirAll(baseDir, 0750); err != nil {
				return nil, err
			}
			return newFlatFileCache(baseDir, false)
		}
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("cache: %s is not a directory", baseDir)
	}
	return &FlatFileCache{baseDir: baseDir}, nil
}

func (f *FlatFileCache) GetMeta() (map[string]json.RawMessage, error) {
	names, err := os.ReadDir(f.baseDir)
	if err != nil {
		return nil, err
	}
	meta := map[string]json.RawMessage{}
	for _, name := range names {
		ok, err := fsutil.IsMetaFile(name)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		b, err := os.ReadFile(filepath.Join(f.baseDir, name.Name()))
		if err != nil {
			return nil, err
		}
		meta[name.Name()] = b
	}
	return meta, nil
}

func (f *FlatFileCache) SetMeta(name string, meta json.RawMessage) error {
	if filepath.Ext(name) != ".json" {
		return ErrNotJSON
	}
	return fsutil.AtomicallyWriteFile(filepath.Join(f.baseDir, name), meta, 0640)
}

func (f *FlatFileCache) DeleteMeta(name string) error {
	err := os.Remove(filepath.Join(f.baseDir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (f *FlatFileCache) Close() error {
	return nil
}
