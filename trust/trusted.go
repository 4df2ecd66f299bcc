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

// Package trust holds the only code allowed to assert that a metadata
// document has passed verification. Everywhere else in the module, a
// *trust.Trusted[T] in hand is a compile-time promise that someone called
// into this package first.
package trust

import "github.com/opentuf/repocore/metadata"

// Trusted wraps a verified value of type T. Its field is unexported: the
// only way to produce one is through a constructor in this package
// (VerifyRole, VerifyRootSuccession, TrustEngine.VerifyFingerprints, or
// NewAdmitted, which updater.Repository uses for local-file admission).
type Trusted[T any] struct {
	value T
}

// Unwrap returns the verified value.
func (t Trusted[T]) Unwrap() T {
	return t.value
}

func newTrusted[T any](value T) Trusted[T] {
	return Trusted[T]{value: value}
}

// NewAdmitted constructs a Trusted[T] for a value that is re-entering trust
// from local storage rather than being freshly verified. It exists so the
// updater's local-file admission policy (§6.2: files already in the
// cache don't need signatures re-checked) can produce a Trusted[T] without
// duplicating TrustEngine's verification logic — the admission policy
// itself is the thing asserting trust here, backed by the invariant that
// the file was verified when it first entered the cache.
func NewAdmitted[T any](value T) Trusted[T] {
	return newTrusted(value)
}

// KeyEnv maps a key ID to its public key, derived from a trusted Root.
type KeyEnv map[string]*metadata.Key
