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

const defaultBootstrapTimeout = 15 * time.Second

// Bootstrapper admits the first trusted root from a pinned set of key
// fingerprints. It never retries: a bootstrap failure means the pins, the
// remote, or both are wrong, and no amount of restarting fixes that.
type Bootstrapper struct {
	repo   *Repository
	engine *trust.TrustEngine
}

// NewBootstrapper returns a Bootstrapper bound to repo.
func NewBootstrapper(repo *Repository) *Bootstrapper {
	return &Bootstrapper{repo: repo, engine: trust.NewEngine()}
}

// Bootstrap selects a mirror (there is no cached mirrors document yet, so
// this always resolves to the statically configured base URL), fetches the
// initial root.json and admits it under pinnedKeyIDs/threshold. threshold
// may be 0 to mean trust-on-first-use. On success the root is committed and
// the cache cleared of any stale timestamp/snapshot/mirrors left over from
// a previous installation, all under a single lock acquisition.
func (b *Bootstrapper) Bootstrap(ctx context.Context, pinnedKeyIDs []string, threshold int) error {
	r := b.repo
	return r.WithMirror(func(baseURL string) error {
		return r.WithLockedCache(func(store cache.MetadataCache) error {
			raw, err := r.GetRemote(ctx, baseURL, metadata.MetaFileName(metadata.ROOT), r.cfg.RootMaxLength, defaultBootstrapTimeout)
			if err != nil {
				return err
			}

			if _, err := b.engine.VerifyFingerprints(pinnedKeyIDs, threshold, raw); err != nil {
				return err
			}

			if err := putCachedTo(store, metadata.ROOT, raw); err != nil {
				return err
			}
			return clearCacheFrom(store)
		})
	})
}
