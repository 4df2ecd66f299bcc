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
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opentuf/repocore/updater"
)

var (
	pinnedKeyIDsFlag string
	thresholdFlag    int
)

var initCmd = &cobra.Command{
	Use:     "init",
	Aliases: []string{"i"},
	Short:   "Bootstrap local trust from a set of pinned root key IDs",
	Args:    cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		return InitCmd()
	},
}

func init() {
	initCmd.Flags().StringVarP(&pinnedKeyIDsFlag, "root-keys", "k", "", "comma-separated pinned root key IDs; omit with --threshold 0 to trust-on-first-use")
	initCmd.Flags().IntVarP(&thresholdFlag, "threshold", "T", 1, "number of pinned key signatures required over the initial root")
	rootCmd.AddCommand(initCmd)
}

func InitCmd() error {
	applyVerbosity()

	env, err := newLocalEnv()
	if err != nil {
		return err
	}
	repo, err := env.openRepository()
	if err != nil {
		return err
	}

	var pinnedKeyIDs []string
	if pinnedKeyIDsFlag != "" {
		pinnedKeyIDs = strings.Split(pinnedKeyIDsFlag, ",")
	}

	b := updater.NewBootstrapper(repo)
	if err := b.Bootstrap(context.Background(), pinnedKeyIDs, thresholdFlag); err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}

	fmt.Printf("Bootstrapped trust from %s into %s\n", env.BaseURL, env.MetadataDir)
	return nil
}
