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
	"errors"
	"time"

	"github.com/opentuf/repocore/cache"
	"github.com/opentuf/repocore/metadata"
)

// Result reports whether a refresh cycle found new, verified state to
// commit, or found the locally cached state already current.
type Result int

const (
	NoUpdates Result = iota
	HasUpdates
)

const defaultFetchTimeout = 15 * time.Second

// UpdateDriver runs the bounded, restart-on-failure refresh cycle: fetch and
// verify timestamp, snapshot, root and mirrors, in that order, committing
// only once every check has passed.
type UpdateDriver struct {
	repo *Repository
}

// NewUpdateDriver returns a driver bound to repo.
func NewUpdateDriver(repo *Repository) *UpdateDriver {
	return &UpdateDriver{repo: repo}
}

// CheckForUpdates runs at most repo.cfg.MaxRestarts+1 refresh attempts. A
// checked verification failure (ErrVerification*) triggers a root
// succession attempt before the next restart; ErrRootUpdated (root already
// advanced inline, during the attempt) restarts without re-running root
// succession. A fatal error (ErrLocalFileCorrupted, ErrInvalidFileInIndex)
// or a root succession failure returns immediately, unretried. Exceeding
// the restart ceiling returns ErrVerificationLoop carrying every attempt's
// error.
func (d *UpdateDriver) CheckForUpdates(ctx context.Context, now *time.Time) (Result, error) {
	var history []error
	ru := NewRootUpdater(d.repo)

	for attempt := 0; attempt <= d.repo.cfg.MaxRestarts; attempt++ {
		result, err := d.attempt(ctx, now)
		if err == nil {
			return result, nil
		}

		if metadata.IsFatal(err) {
			return NoUpdates, err
		}

		history = append(history, err)
		d.repo.Log().Info("refresh attempt failed", "attempt", attempt, "error", err.Error())

		if attempt == d.repo.cfg.MaxRestarts {
			break
		}

		var rootUpdated metadata.ErrRootUpdated
		if !errors.As(err, &rootUpdated) && metadata.IsVerificationFailure(err) {
			if ruErr := ru.Update(ctx, now); ruErr != nil {
				return NoUpdates, ruErr
			}
		}
	}

	return NoUpdates, metadata.ErrVerificationLoop{History: history}
}

// attempt runs a single refresh iteration per the documented per-iteration
// flow: select the one mirror every fetch in this attempt will use, acquire
// the cache lock for the whole verify-then-commit window, load cached
// state fresh, fetch and verify timestamp, short-circuit on an unchanged
// snapshot reference, fetch and verify snapshot, react to a changed root or
// mirrors reference, fetch the index if its reference changed, and commit
// every staged artifact together.
func (d *UpdateDriver) attempt(ctx context.Context, now *time.Time) (Result, error) {
	r := d.repo
	var result Result
	err := r.WithMirror(func(baseURL string) error {
		return r.WithLockedCache(func(store cache.MetadataCache) error {
			res, err := d.attemptLocked(ctx, now, baseURL, store)
			result = res
			return err
		})
	})
	return result, err
}

// attemptLocked is attempt's body, run with the cache lock already held and
// a single mirror already selected; it must reach the cache only through
// store and issue remote fetches only against baseURL.
func (d *UpdateDriver) attemptLocked(ctx context.Context, now *time.Time, baseURL string, store cache.MetadataCache) (Result, error) {
	r := d.repo
	cached, err := loadCachedInfoFrom(store)
	if err != nil {
		return NoUpdates, err
	}

	var priorTimestampVersion *int64
	if cached.CachedTimestamp != nil {
		v := cached.CachedTimestamp.Unwrap().Version
		priorTimestampVersion = &v
	}

	rawTimestamp, err := r.GetRemote(ctx, baseURL, metadata.MetaFileName(metadata.TIMESTAMP), r.cfg.TimestampMaxLength, defaultFetchTimeout)
	if err != nil {
		return NoUpdates, err
	}
	trustedTimestamp, err := verifyRole[metadata.TimestampType](r, cached.CachedRoot, metadata.TIMESTAMP, priorTimestampVersion, now, rawTimestamp)
	if err != nil {
		return NoUpdates, err
	}
	newTimestamp := trustedTimestamp.Unwrap()
	newInfoSnapshot, ok := newTimestamp.Meta[metadata.MetaFileName(metadata.SNAPSHOT)]
	if !ok {
		return NoUpdates, metadata.ErrValue{Msg: "timestamp does not reference a snapshot"}
	}

	if cached.InfoSnapshot != nil && cached.InfoSnapshot.Equal(newInfoSnapshot) {
		return NoUpdates, nil
	}

	var priorSnapshotVersion *int64
	if cached.CachedSnapshot != nil {
		v := cached.CachedSnapshot.Unwrap().Version
		priorSnapshotVersion = &v
	}

	rawSnapshot, err := r.GetRemote(ctx, baseURL, metadata.MetaFileName(metadata.SNAPSHOT), r.cfg.SnapshotMaxLength, defaultFetchTimeout)
	if err != nil {
		return NoUpdates, err
	}
	if err := newInfoSnapshot.VerifyLengthHashes(rawSnapshot); err != nil {
		return NoUpdates, metadata.ErrVerificationFileInfo{Name: metadata.MetaFileName(metadata.SNAPSHOT), Msg: err.Error()}
	}
	trustedSnapshot, err := verifyRole[metadata.SnapshotType](r, cached.CachedRoot, metadata.SNAPSHOT, priorSnapshotVersion, now, rawSnapshot)
	if err != nil {
		return NoUpdates, err
	}
	newSnapshot := trustedSnapshot.Unwrap()

	if newInfoRoot, ok := newSnapshot.Meta["root.json"]; ok {
		if cached.InfoRoot != nil && !cached.InfoRoot.Equal(newInfoRoot) {
			fromVersion := cached.CachedRoot.Unwrap().Version
			ru := NewRootUpdater(r)
			if err := ru.updateLocked(ctx, now, baseURL, store); err != nil {
				return NoUpdates, err
			}
			refreshed, err := getCachedRootFrom(store)
			if err != nil {
				return NoUpdates, err
			}
			return NoUpdates, metadata.ErrRootUpdated{FromVersion: fromVersion, ToVersion: refreshed.Unwrap().Version}
		}
	}

	var stagedMirrors []byte
	if newInfoMirrors, ok := newSnapshot.Meta["mirrors.json"]; ok {
		if cached.InfoMirrors == nil || !cached.InfoMirrors.Equal(newInfoMirrors) {
			raw, err := r.GetRemote(ctx, baseURL, metadata.MetaFileName(metadata.MIRRORS), r.cfg.MirrorsMaxLength, defaultFetchTimeout)
			if err != nil {
				return NoUpdates, err
			}
			if err := newInfoMirrors.VerifyLengthHashes(raw); err != nil {
				return NoUpdates, metadata.ErrVerificationFileInfo{Name: metadata.MetaFileName(metadata.MIRRORS), Msg: err.Error()}
			}
			trustedMirrors, err := verifyRole[metadata.MirrorsType](r, cached.CachedRoot, metadata.MIRRORS, nil, now, raw)
			if err != nil {
				return NoUpdates, err
			}
			for _, m := range trustedMirrors.Unwrap().Mirrors {
				if m.Content != metadata.MirrorFull {
					return NoUpdates, metadata.ErrValue{Msg: "unsupported mirror content variant " + string(m.Content)}
				}
			}
			stagedMirrors = raw
		}
	}

	var stagedIndex []byte
	if newInfoIndex, ok := newSnapshot.Meta[metadata.IndexFileName]; ok {
		if cached.InfoIndex == nil || !cached.InfoIndex.Equal(newInfoIndex) {
			raw, err := r.GetRemote(ctx, baseURL, metadata.IndexFileName, r.cfg.IndexMaxLength, defaultFetchTimeout)
			if err != nil {
				return NoUpdates, err
			}
			if err := newInfoIndex.VerifyLengthHashes(raw); err != nil {
				return NoUpdates, metadata.ErrVerificationFileInfo{Name: metadata.IndexFileName, Msg: err.Error()}
			}
			stagedIndex = raw
		}
	}

	// Commit every staged artifact together: a restart between these writes
	// would otherwise leave the cache holding a newer snapshot than
	// timestamp, or a newer index than snapshot declares.
	if err := putCachedTo(store, metadata.TIMESTAMP, rawTimestamp); err != nil {
		return NoUpdates, err
	}
	if err := putCachedTo(store, metadata.SNAPSHOT, rawSnapshot); err != nil {
		return NoUpdates, err
	}
	if stagedMirrors != nil {
		if err := putCachedTo(store, metadata.MIRRORS, stagedMirrors); err != nil {
			return NoUpdates, err
		}
	}
	if stagedIndex != nil {
		if err := r.putIndex(stagedIndex); err != nil {
			return NoUpdates, err
		}
	}

	return HasUpdates, nil
}
