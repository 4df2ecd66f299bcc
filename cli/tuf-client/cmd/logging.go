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
	log "github.com/sirupsen/logrus"

	"github.com/opentuf/repocore/metadata"
)

// logrusLogger adapts logrus to metadata.Logger. Only this CLI package
// imports logrus directly: library packages log through the
// metadata.Logger seam so they stay usable by an embedding host that wants
// its own logging backend.
type logrusLogger struct{}

func (logrusLogger) Info(msg string, kv ...any) {
	log.WithFields(fieldsOf(kv)).Info(msg)
}

func (logrusLogger) Error(err error, msg string, kv ...any) {
	log.WithFields(fieldsOf(kv)).WithError(err).Error(msg)
}

func fieldsOf(kv []any) log.Fields {
	fields := log.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields[key] = kv[i+1]
	}
	return fields
}

func init() {
	metadata.SetLogger(logrusLogger{})
}
