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

// Package updater implements the client-side refresh cycle: bounded,
// restart-on-failure verification of timestamp, snapshot, root and mirrors,
// followed by package retrieval against the verified index.
package updater

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/opentuf/repocore/cache"
	"github.com/opentuf/repocore/internal/fsutil"
	"github.com/opentuf/repocore/metadata"
	"github.com/opentuf/repocore/metadata/config"
	"github.com/opentuf/repocore/metadata/fetcher"
	"github.com/opentuf/repocore/trust"
)

// CachedInfo is the per-iteration snapshot of local trusted state the
// driver reads at the start of every refresh attempt.
type CachedInfo struct {
	CachedRoot      trust.Trusted[metadata.RootType]
	CachedKeyEnv    trust.KeyEnv
	CachedTimestamp *trust.Trusted[metadata.TimestampType]
	CachedSnapshot  *trust.Trusted[metadata.SnapshotType]
	CachedMirrors   *trust.Trusted[metadata.MirrorsType]

	InfoSnapshot *metadata.MetaFiles
	InfoRoot     *metadata.MetaFiles
	InfoMirrors  *metadata.MetaFiles
	InfoIndex    *metadata.MetaFiles
}

// Repository is the sole mutable-state collaborator: it owns the local
// cache and remote fetcher, and every other component (UpdateDriver,
// RootUpdater, Bootstrapper, PackageDownloader) operates through it.
type Repository struct {
	cache     *cache.LockedCache
	fetch     fetcher.Fetcher
	cfg       *config.UpdaterConfig
	baseURL   string
	logger    metadata.Logger
	indexPath string
}

// New constructs a Repository over store (which New wraps in a LockedCache),
// a remote fetcher, base URL for metadata documents, and config.
// indexPath names the local file the package index is cached under: the
// index is a tar/gzip blob, not a JSON role document, so it is kept
// alongside rather than through the MetadataCache interface.
func New(store cache.MetadataCache, fetch fetcher.Fetcher, baseURL, indexPath string, cfg *config.UpdaterConfig) *Repository {
	if cfg == nil {
		cfg = config.New()
	}
	return &Repository{
		cache:     cache.NewLockedCache(store),
		fetch:     fetch,
		cfg:       cfg,
		baseURL:   baseURL,
		logger:    metadata.GetLogger(),
		indexPath: indexPath,
	}
}

// Log exposes the repository's logger seam to collaborators.
func (r *Repository) Log() metadata.Logger {
	return r.logger
}

// GetCachedRoot loads and decodes the locally persisted root, admitting it
// as trusted under the local-file admission policy: it was verified when
// it first entered the cache, and the chain back to bootstrap is
// continuous by construction. It acquires the cache lock for the single
// read; callers that already hold it (from within a WithLockedCache
// action) must use getCachedRootFrom instead.
func (r *Repository) GetCachedRoot() (trust.Trusted[metadata.RootType], error) {
	var result trust.Trusted[metadata.RootType]
	err := r.WithLockedCache(func(store cache.MetadataCache) error {
		v, err := getCachedRootFrom(store)
		result = v
		return err
	})
	if err != nil {
		var zero trust.Trusted[metadata.RootType]
		return zero, err
	}
	return result, nil
}

// getCachedRootFrom is GetCachedRoot's lock-already-held counterpart, for
// use inside a WithLockedCache action.
func getCachedRootFrom(store cache.MetadataCache) (trust.Trusted[metadata.RootType], error) {
	var zero trust.Trusted[metadata.RootType]
	raw, ok := getCachedFrom(store, metadata.ROOT)
	if !ok {
		return zero, metadata.ErrValue{Msg: "no root present in cache; bootstrap required"}
	}
	meta := &metadata.Metadata[metadata.RootType]{}
	if _, err := meta.FromBytes(raw); err != nil {
		return zero, metadata.ErrLocalFileCorrupted{Path: "root.json", Msg: err.Error()}
	}
	return trust.NewAdmitted(meta.Signed), nil
}

// GetCached returns the raw bytes last persisted for role, if any. It
// acquires the cache lock for the single read; callers that already hold
// it must use getCachedFrom instead.
func (r *Repository) GetCached(role string) ([]byte, bool) {
	var raw []byte
	var found bool
	_ = r.WithLockedCache(func(store cache.MetadataCache) error {
		raw, found = getCachedFrom(store, role)
		return nil
	})
	return raw, found
}

// getCachedFrom is GetCached's lock-already-held counterpart.
func getCachedFrom(store cache.MetadataCache, role string) ([]byte, bool) {
	all, err := store.GetMeta()
	if err != nil {
		return nil, false
	}
	raw, ok := all[metadata.MetaFileName(role)]
	if !ok {
		return nil, false
	}
	return []byte(raw), true
}

// putCached persists raw bytes for role, acquiring the cache lock itself.
func (r *Repository) putCached(role string, raw []byte) error {
	return r.WithLockedCache(func(store cache.MetadataCache) error {
		return putCachedTo(store, role, raw)
	})
}

// putCachedTo is putCached's lock-already-held counterpart.
func putCachedTo(store cache.MetadataCache, role string, raw []byte) error {
	return store.SetMeta(metadata.MetaFileName(role), json.RawMessage(raw))
}

// ClearCache drops timestamp, snapshot and mirrors, keeping root and index:
// the invariant that only CachedRoot (and the already-verified index)
// survive a root change. Acquires the cache lock itself.
func (r *Repository) ClearCache() error {
	return r.WithLockedCache(clearCacheFrom)
}

// clearCacheFrom is ClearCache's lock-already-held counterpart.
func clearCacheFrom(store cache.MetadataCache) error {
	for _, role := range []string{metadata.TIMESTAMP, metadata.SNAPSHOT, metadata.MIRRORS} {
		if err := store.DeleteMeta(metadata.MetaFileName(role)); err != nil {
			return err
		}
	}
	return nil
}

// WithLockedCache serializes action against concurrent refresh/download
// calls, holding the lock across action's entire verify-then-commit window.
// action must call the *From/*To store-taking helpers or methods on the
// store it is given, never back onto the Repository's own locking methods,
// or it will deadlock re-acquiring the same lock.
func (r *Repository) WithLockedCache(action func(store cache.MetadataCache) error) error {
	return r.cache.WithLockedCache(action)
}

// WithMirror selects a single mirror origin and runs action against it, so
// that every remote fetch issued over the course of one refresh attempt,
// root update, bootstrap or downloadPackage call goes to the same origin,
// even if a newer mirrors document is staged mid-call. It is called once
// per such operation, not once per CheckForUpdates call: a CheckForUpdates
// call that restarts selects again for each attempt and for the root
// update run between attempts, so one CheckForUpdates call can use more
// than one origin. Mirror ranking and
// failover policy are out of scope: this picks the first full mirror
// listed in the last verified mirrors document, falling back to the
// statically configured base URL when none has been verified yet.
func (r *Repository) WithMirror(action func(baseURL string) error) error {
	return action(r.selectMirror())
}

func (r *Repository) selectMirror() string {
	raw, ok := r.GetCached(metadata.MIRRORS)
	if !ok {
		return r.baseURL
	}
	meta := &metadata.Metadata[metadata.MirrorsType]{}
	if _, err := meta.FromBytes(raw); err != nil {
		return r.baseURL
	}
	for _, m := range meta.Signed.Mirrors {
		if m.Content == metadata.MirrorFull && m.URLBase != "" {
			return m.URLBase
		}
	}
	return r.baseURL
}

// GetRemote fetches the named document relative to baseURL (as selected by
// WithMirror for the duration of the enclosing call), honoring maxLength
// and a per-call timeout.
func (r *Repository) GetRemote(ctx context.Context, baseURL, name string, maxLength int64, timeout time.Duration) ([]byte, error) {
	return r.fetch.DownloadFile(ctx, baseURL+name, maxLength, timeout)
}

// GetCachedIndex returns the raw bytes of the locally cached package index,
// if one has been committed.
func (r *Repository) GetCachedIndex() ([]byte, bool) {
	data, err := os.ReadFile(r.indexPath)
	if err != nil {
		return nil, false
	}
	return data, true
}

// putIndex atomically persists raw as the local package index cache.
func (r *Repository) putIndex(raw []byte) error {
	return fsutil.AtomicallyWriteFile(r.indexPath, raw, 0640)
}

// loadCachedInfo reconstructs CachedInfo by re-reading the cache fresh,
// acquiring the cache lock itself for standalone use.
func (r *Repository) loadCachedInfo() (*CachedInfo, error) {
	var info *CachedInfo
	err := r.WithLockedCache(func(store cache.MetadataCache) error {
		i, err := loadCachedInfoFrom(store)
		info = i
		return err
	})
	return info, err
}

// loadCachedInfoFrom is loadCachedInfo's lock-already-held counterpart: it
// re-reads the cache fresh on every call, per §6.4 step 1, so no iteration
// trusts in-memory state left over from a prior attempt.
func loadCachedInfoFrom(store cache.MetadataCache) (*CachedInfo, error) {
	root, err := getCachedRootFrom(store)
	if err != nil {
		return nil, err
	}
	info := &CachedInfo{
		CachedRoot:   root,
		CachedKeyEnv: root.Unwrap().Keys,
	}

	if raw, ok := getCachedFrom(store, metadata.TIMESTAMP); ok {
		meta := &metadata.Metadata[metadata.TimestampType]{}
		if _, err := meta.FromBytes(raw); err == nil {
			trusted := trust.NewAdmitted(meta.Signed)
			info.CachedTimestamp = &trusted
			if fi, ok := meta.Signed.Meta[metadata.MetaFileName(metadata.SNAPSHOT)]; ok {
				info.InfoSnapshot = &fi
			}
		}
	}
	if raw, ok := getCachedFrom(store, metadata.SNAPSHOT); ok {
		meta := &metadata.Metadata[metadata.SnapshotType]{}
		if _, err := meta.FromBytes(raw); err == nil {
			trusted := trust.NewAdmitted(meta.Signed)
			info.CachedSnapshot = &trusted
			if fi, ok := meta.Signed.Meta["root.json"]; ok {
				info.InfoRoot = &fi
			}
			if fi, ok := meta.Signed.Meta["mirrors.json"]; ok {
				info.InfoMirrors = &fi
			}
			if fi, ok := meta.Signed.Meta[metadata.IndexFileName]; ok {
				info.InfoIndex = &fi
			}
		}
	}
	if raw, ok := getCachedFrom(store, metadata.MIRRORS); ok {
		meta := &metadata.Metadata[metadata.MirrorsType]{}
		if _, err := meta.FromBytes(raw); err == nil {
			trusted := trust.NewAdmitted(meta.Signed)
			info.CachedMirrors = &trusted
		}
	}
	return info, nil
}
