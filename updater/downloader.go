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
	"encoding/json"

	"github.com/opentuf/repocore/cache"
	"github.com/opentuf/repocore/index"
	"github.com/opentuf/repocore/internal/fsutil"
	"github.com/opentuf/repocore/metadata"
)

// PackageIdentifier names one entry in the package index: the path under
// which its targets document and content are addressed, derived
// deterministically from the package's logical name.
type PackageIdentifier struct {
	Name string
}

// targetsPath and contentPath derive the deterministic, layout-derived
// lookup paths for id within the index archive: one directory per package,
// named by the hex digest of its logical name, holding a targets.json
// (the PackageFiles FileInfo) and a content member (the package bytes).
func (id PackageIdentifier) targetsPath() string {
	return metadata.PathHexDigest(id.Name) + "/targets.json"
}

func (id PackageIdentifier) contentPath() string {
	return metadata.PathHexDigest(id.Name) + "/content"
}

// verifyPerTargetHook is called once per downloaded package, after its
// FileInfo has verified, and before it is written to destPath. Left as a
// no-op: no per-package signing scheme is defined by this version of the
// protocol, but the seam exists so one can be added without changing
// PackageDownloader's public surface.
var verifyPerTargetHook = func(id PackageIdentifier, data []byte) error { return nil }

// PackageDownloader resolves a package identifier against the verified
// index and retrieves its content from the local index cache, checking it
// against the index's declared FileInfo before it ever reaches disk.
type PackageDownloader struct {
	repo *Repository
}

// NewPackageDownloader returns a PackageDownloader bound to repo.
func NewPackageDownloader(repo *Repository) *PackageDownloader {
	return &PackageDownloader{repo: repo}
}

// DownloadPackage resolves pkgID against the locally cached index, verifies
// its content against the index's declared FileInfo, and writes it to
// destPath. Returns ErrInvalidPackage if the index holds no entry at
// pkgID's deterministic path, or ErrVerificationUnknownTarget if the
// entry's targets document cannot be parsed or its content is unavailable
// both locally and from the selected mirror. A single mirror is selected
// and the cache lock held for the whole call, consistent with a
// checkForUpdates attempt.
func (d *PackageDownloader) DownloadPackage(ctx context.Context, pkgID PackageIdentifier, destPath string) error {
	r := d.repo
	return r.WithMirror(func(baseURL string) error {
		return r.WithLockedCache(func(store cache.MetadataCache) error {
			if _, err := getCachedRootFrom(store); err != nil {
				return err
			}
			return d.downloadLocked(ctx, baseURL, pkgID, destPath)
		})
	})
}

// downloadLocked is DownloadPackage's body, run with the cache lock already
// held and a single mirror already selected.
func (d *PackageDownloader) downloadLocked(ctx context.Context, baseURL string, pkgID PackageIdentifier, destPath string) error {
	r := d.repo
	raw, ok := r.GetCachedIndex()
	if !ok {
		return metadata.ErrValue{Msg: "no package index cached; refresh required"}
	}

	reader, _, err := index.Open(raw)
	if err != nil {
		return err
	}

	if _, ok := reader.Lookup(pkgID.targetsPath()); !ok {
		return metadata.ErrInvalidPackage{PackageID: pkgID.Name}
	}
	_, targetsDoc, err := reader.ReadAt(pkgID.targetsPath())
	if err != nil {
		return metadata.ErrInvalidPackage{PackageID: pkgID.Name}
	}

	var pf metadata.PackageFiles
	if err := json.Unmarshal(targetsDoc, &pf); err != nil {
		return metadata.ErrVerificationUnknownTarget{PackageID: pkgID.Name}
	}

	data, err := d.resolveContent(ctx, baseURL, reader, pkgID)
	if err != nil {
		return err
	}

	if err := pf.VerifyLengthHashes(data); err != nil {
		return metadata.ErrVerificationFileInfo{Name: pkgID.Name, Msg: err.Error()}
	}

	if err := verifyPerTargetHook(pkgID, data); err != nil {
		return err
	}

	return fsutil.AtomicallyWriteFile(destPath, data, 0640)
}

// resolveContent reads pkgID's content member out of the locally cached
// index archive, the fast path for the bundled-index layout this protocol
// uses. If the archive doesn't carry it, it falls back to fetching the
// content directly from the selected mirror, so a thinner index that omits
// bulky content still resolves against the origin named by the repository.
func (d *PackageDownloader) resolveContent(ctx context.Context, baseURL string, reader *index.Reader, pkgID PackageIdentifier) ([]byte, error) {
	if _, ok := reader.Lookup(pkgID.contentPath()); ok {
		_, data, err := reader.ReadAt(pkgID.contentPath())
		if err != nil {
			return nil, metadata.ErrVerificationUnknownTarget{PackageID: pkgID.Name}
		}
		return data, nil
	}

	data, err := d.repo.GetRemote(ctx, baseURL, pkgID.contentPath(), d.repo.cfg.IndexMaxLength, defaultFetchTimeout)
	if err != nil {
		return nil, metadata.ErrVerificationUnknownTarget{PackageID: pkgID.Name}
	}
	return data, nil
}
