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
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	DefaultMetadataDir = "repocore_metadata"
	DefaultDownloadDir = "repocore_download"
	DefaultIndexFile   = "index.tar"
)

var Verbosity bool
var RepositoryURL string

var rootCmd = &cobra.Command{
	Use:   "repocore-client",
	Short: "repocore-client - a client-side CLI for a signed package repository",
	Long: `repocore-client implements the client side of a package repository trust
protocol: bootstrap trust from pinned root keys, refresh timestamp, snapshot,
root and mirrors metadata on a bounded restart loop, and download packages
verified against the signed index.`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			_ = cmd.Help()
			os.Exit(0)
		}
	},
}

func Execute() {
	rootCmd.PersistentFlags().BoolVarP(&Verbosity, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&RepositoryURL, "url", "u", "", "base URL of the repository's metadata")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func applyVerbosity() {
	if Verbosity {
		log.SetLevel(log.DebugLevel)
	}
}

// ReadFile reads the content of a file and returns its bytes.
func ReadFile(name string) ([]byte, error) {
	in, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	return io.ReadAll(in)
}
