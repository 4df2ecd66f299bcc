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
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/opentuf/repocore/updater"
)

var getCmd = &cobra.Command{
	Use:     "get",
	Aliases: []string{"g"},
	Short:   "Download a package verified against the locally cached index",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return GetCmd(args[0])
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func GetCmd(pkgName string) error {
	applyVerbosity()

	env, err := newLocalEnv()
	if err != nil {
		return err
	}
	repo, err := env.openRepository()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(env.DownloadDir, 0750); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}
	dest := filepath.Join(env.DownloadDir, pkgName)
	dl := updater.NewPackageDownloader(repo)
	if err := dl.DownloadPackage(context.Background(), updater.PackageIdentifier{Name: pkgName}, dest); err != nil {
		return fmt.Errorf("failed to download package %s: %w", pkgName, err)
	}

	fmt.Printf("Downloaded %s to %s\n", pkgName, dest)
	return nil
}
