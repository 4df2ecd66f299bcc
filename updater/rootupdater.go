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

package updater

import (
	"context"
	"time"

	"github.com/opentuf/repocore/cache"
	"github.com/opentuf/repocore/metadata"
	"github.com/opentuf/repocore/trust"
)

const defaultRootFetchTimeout = 15 * time.Second

// RootUpdater walks the trusted root forward one version at a time,
// re-verifying root succession at each step, until the remote has no more
// root versions to offer or the configured rotation ceiling is hit.
type RootUpdater struct {
	repo *Repository
}

// NewRootUpdater returns a RootUpdater bound to repo.
func NewRootUpdater(repo *Repository) *RootUpdater {
	return &RootUpdater{repo: repo}
}

// Update selects a mirror and acquires the cache lock for the whole
// succession walk, then runs updateLocked. Use this form for a standalone
// root update; a caller that already holds the lock and has already
// selected a mirror (an UpdateDriver attempt reacting to a changed root
// reference inline) must call updateLocked directly instead.
func (u *RootUpdater) Update(ctx context.Context, now *time.Time) error {
	r := u.repo
	return r.WithMirror(func(baseURL string) error {
		return r.WithLockedCache(func(store cache.MetadataCache) error {
			return u.updateLocked(ctx, now, baseURL, store)
		})
	})
}

// updateLocked fetches root.json at each successive version starting one
// past the currently trusted version, verifying succession at every step,
// until a fetch returns an error (no further version published) or the
// rotation ceiling configured on the repository is reached. On success the
// new root is committed to the cache and ClearCache drops the now-stale
// timestamp/snapshot/mirrors. Runs with the cache lock already held and a
// mirror already selected.
func (u *RootUpdater) updateLocked(ctx context.Context, now *time.Time, baseURL string, store cache.MetadataCache) error {
	r := u.repo
	trustedRoot, err := getCachedRootFrom(store)
	if err != nil {
		return err
	}

	var rotations int64
	for {
		if rotations >= r.cfg.MaxRootRotations {
			return metadata.ErrVerificationSignatures{Role: metadata.ROOT, Msg: "exceeded maximum root rotations"}
		}

		nextVersion := trustedRoot.Unwrap().Version + 1
		raw, err := r.GetRemote(ctx, baseURL, metadata.VersionedName(nextVersion, metadata.MetaFileName(metadata.ROOT)), r.cfg.RootMaxLength, defaultRootFetchTimeout)
		if err != nil {
			break
		}

		next, err := trust.VerifyRootSuccession(trustedRoot, raw)
		if err != nil {
			return u.failAfterRotations(store, rotations, err)
		}
		nextRoot := next.Unwrap()
		if now != nil && nextRoot.IsExpired(*now) {
			return u.failAfterRotations(store, rotations, metadata.ErrVerificationExpired{Role: metadata.ROOT})
		}

		if err := putCachedTo(store, metadata.ROOT, raw); err != nil {
			return err
		}
		trustedRoot = next
		rotations++
	}

	if rotations == 0 {
		return nil
	}
	return clearCacheFrom(store)
}

// failAfterRotations clears the now-stale timestamp/snapshot/mirrors before
// returning err, if at least one rotation already committed a newer root:
// those cached documents were verified under the old root and must not be
// trusted under the new one, even though the walk itself failed partway.
func (u *RootUpdater) failAfterRotations(store cache.MetadataCache, rotations int64, err error) error {
	if rotations > 0 {
		if clearErr := clearCacheFrom(store); clearErr != nil {
			return clearErr
		}
	}
	return err
}
