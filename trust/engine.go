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

package trust

import (
	"time"

	"github.com/opentuf/repocore/metadata"
)

// TrustEngine turns raw signed bytes into Trusted values by checking
// signature threshold, version monotonicity and expiry against a
// previously-trusted Root.
type TrustEngine struct{}

// NewEngine returns a TrustEngine. It is stateless; a zero value works too.
func NewEngine() *TrustEngine {
	return &TrustEngine{}
}

// roleAuthority returns the key set and (keyIDs, threshold) that govern
// roleName under trustedRoot.
func roleAuthority(trustedRoot Trusted[metadata.RootType], roleName string) (map[string]*metadata.Key, []string, int, error) {
	root := trustedRoot.Unwrap()
	role, ok := root.Roles[roleName]
	if !ok {
		return nil, nil, 0, metadata.ErrValue{Msg: "root does not define role " + roleName}
	}
	return root.Keys, role.KeyIDs, role.Threshold, nil
}

// VerifyRole decodes signed as a T document, checks its signatures against
// trustedRoot's authority for roleName, enforces priorVersion monotonicity
// (when given) and an expiry deadline (when now is given), and returns a
// Trusted[T] on success.
func VerifyRole[T metadata.Roles](trustedRoot Trusted[metadata.RootType], roleName string, priorVersion *int64, now *time.Time, signed []byte) (Trusted[T], error) {
	var zero Trusted[T]

	keys, keyIDs, threshold, err := roleAuthority(trustedRoot, roleName)
	if err != nil {
		return zero, err
	}

	meta := &metadata.Metadata[T]{}
	if _, err := meta.FromBytes(signed); err != nil {
		return zero, err
	}

	valid, err := meta.CountValidSignatures(keys, keyIDs)
	if err != nil {
		return zero, err
	}
	if len(valid) < threshold {
		return zero, metadata.ErrVerificationSignatures{
			Role: roleName,
			Msg:  "insufficient valid signatures",
		}
	}

	version, expires := roleVersionAndExpiry(meta.Signed)

	if priorVersion != nil && version < *priorVersion {
		return zero, metadata.ErrVerificationVersion{
			Role:     roleName,
			Got:      version,
			Expected: *priorVersion,
		}
	}

	if now != nil && !expires.After(*now) {
		return zero, metadata.ErrVerificationExpired{Role: roleName}
	}

	return newTrusted(meta.Signed), nil
}

// roleVersionAndExpiry extracts the version and expiry common to every
// top-level role type without requiring a type switch at every call site.
func roleVersionAndExpiry[T metadata.Roles](signed T) (int64, time.Time) {
	switch s := any(signed).(type) {
	case metadata.RootType:
		return s.Version, s.Expires
	case metadata.SnapshotType:
		return s.Version, s.Expires
	case metadata.TimestampType:
		return s.Version, s.Expires
	case metadata.MirrorsType:
		return s.Version, s.Expires
	default:
		panic("trust: unreachable role type")
	}
}

// VerifyFingerprints bootstraps trust from a pinned set of key IDs rather
// than an existing trusted Root. threshold may be 0 to mean
// trust-on-first-use: accept the root as-is once it parses, with no
// signature requirement.
func (e *TrustEngine) VerifyFingerprints(pinnedKeyIDs []string, threshold int, signed []byte) (Trusted[metadata.RootType], error) {
	var zero Trusted[metadata.RootType]

	meta := &metadata.Metadata[metadata.RootType]{}
	if _, err := meta.FromBytes(signed); err != nil {
		return zero, err
	}

	if threshold <= 0 {
		return newTrusted(meta.Signed), nil
	}

	valid, err := meta.CountValidSignatures(meta.Signed.Keys, pinnedKeyIDs)
	if err != nil {
		return zero, err
	}
	if len(valid) < threshold {
		return zero, metadata.ErrVerificationSignatures{
			Role: metadata.ROOT,
			Msg:  "insufficient valid signatures against pinned fingerprints",
		}
	}
	return newTrusted(meta.Signed), nil
}

// VerifyFileInfo checks a downloaded artifact against what its referencing
// role declared: the length must match exactly, every hash algorithm present
// on both sides (the artifact side computes sha256 and sha512) must produce
// a matching digest, and at least one algorithm must be present on both.
func (e *TrustEngine) VerifyFileInfo(expected metadata.MetaFiles, artifact []byte) bool {
	if int64(len(artifact)) != expected.Length {
		return false
	}
	actual, _ := (&metadata.PackageFiles{}).FromBytes("", artifact, "sha256", "sha512")
	overlap := false
	for alg, digest := range expected.Hashes {
		if got, ok := actual.Hashes[alg]; ok {
			if got.String() != digest.String() {
				return false
			}
			overlap = true
		}
	}
	return overlap
}

// VerifyRootSuccession checks that newRoot may replace oldRoot: newRoot
// must satisfy oldRoot's root-role threshold (continuity) and its own
// root-role threshold (self-consistency). Both must hold for rotation to
// be accepted.
func VerifyRootSuccession(oldRoot Trusted[metadata.RootType], newRootBytes []byte) (Trusted[metadata.RootType], error) {
	var zero Trusted[metadata.RootType]

	newMeta := &metadata.Metadata[metadata.RootType]{}
	if _, err := newMeta.FromBytes(newRootBytes); err != nil {
		return zero, err
	}

	old := oldRoot.Unwrap()
	oldRole, ok := old.Roles[metadata.ROOT]
	if !ok {
		return zero, metadata.ErrValue{Msg: "old root does not define the root role"}
	}
	validUnderOld, err := newMeta.CountValidSignatures(old.Keys, oldRole.KeyIDs)
	if err != nil {
		return zero, err
	}
	if len(validUnderOld) < oldRole.Threshold {
		return zero, metadata.ErrVerificationSignatures{Role: metadata.ROOT, Msg: "new root not signed by old root threshold"}
	}

	newRole, ok := newMeta.Signed.Roles[metadata.ROOT]
	if !ok {
		return zero, metadata.ErrValue{Msg: "new root does not define the root role"}
	}
	validUnderNew, err := newMeta.CountValidSignatures(newMeta.Signed.Keys, newRole.KeyIDs)
	if err != nil {
		return zero, err
	}
	if len(validUnderNew) < newRole.Threshold {
		return zero, metadata.ErrVerificationSignatures{Role: metadata.ROOT, Msg: "new root not self-consistent"}
	}

	if newMeta.Signed.Version <= old.Version {
		return zero, metadata.ErrVerificationVersion{
			Role:     metadata.ROOT,
			Got:      newMeta.Signed.Version,
			Expected: old.Version + 1,
		}
	}

	return newTrusted(newMeta.Signed), nil
}
