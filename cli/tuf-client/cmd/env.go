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

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/opentuf/repocore/cache"
	"github.com/opentuf/repocore/metadata/config"
	"github.com/opentuf/repocore/metadata/fetcher"
	"github.com/opentuf/repocore/updater"
)

type localEnv struct {
	MetadataDir string
	DownloadDir string
	IndexPath   string
	BaseURL     string
}

func newLocalEnv() (*localEnv, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	if RepositoryURL == "" {
		return nil, fmt.Errorf("no repository URL given; pass --url")
	}
	return &localEnv{
		MetadataDir: filepath.Join(cwd, DefaultMetadataDir),
		DownloadDir: filepath.Join(cwd, DefaultDownloadDir),
		IndexPath:   filepath.Join(cwd, DefaultMetadataDir, DefaultIndexFile),
		BaseURL:     RepositoryURL,
	}, nil
}

// openRepository builds an updater.Repository over a flat-file cache at
// env.MetadataDir, creating the directory on first use.
func (env *localEnv) openRepository() (*updater.Repository, error) {
	store, err := cache.NewFlatFileCache(env.MetadataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open local metadata cache: %w", err)
	}
	fetch := &fetcher.DefaultFetcher{HTTPUserAgent: "repocore-client"}
	return updater.New(store, fetch, env.BaseURL, env.IndexPath, config.New()), nil
}
