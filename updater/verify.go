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
	"time"

	"github.com/opentuf/repocore/metadata"
	"github.com/opentuf/repocore/trust"
)

// verifyRole is a thin, repository-scoped wrapper around trust.VerifyRole,
// kept as a free function (not a Repository method) for the same reason
// trust.VerifyRole itself is free: Go does not allow type parameters on
// methods.
func verifyRole[T metadata.Roles](r *Repository, trustedRoot trust.Trusted[metadata.RootType], roleName string, priorVersion *int64, now *time.Time, signed []byte) (trust.Trusted[T], error) {
	return trust.VerifyRole[T](trustedRoot, roleName, priorVersion, now, signed)
}
