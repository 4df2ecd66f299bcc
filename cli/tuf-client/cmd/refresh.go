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
	"time"

	"github.com/spf13/cobra"

	"github.com/opentuf/repocore/updater"
)

var refreshCmd = &cobra.Command{
	Use:     "refresh",
	Aliases: []string{"r"},
	Short:   "Run one bounded refresh cycle against the repository",
	Args:    cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		return RefreshCmd()
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}

func RefreshCmd() error {
	applyVerbosity()

	env, err := newLocalEnv()
	if err != nil {
		return err
	}
	repo, err := env.openRepository()
	if err != nil {
		return err
	}

	now := time.Now()
	driver := updater.NewUpdateDriver(repo)
	result, err := driver.CheckForUpdates(context.Background(), &now)
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}

	if result == updater.HasUpdates {
		fmt.Println("Refreshed: new verified metadata committed")
	} else {
		fmt.Println("Already up to date")
	}
	return nil
}
