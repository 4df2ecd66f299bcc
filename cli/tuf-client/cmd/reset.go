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
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:     "reset",
	Aliases: []string{"r"},
	Short:   "Resets the local environment. Warning: this deletes both the metadata and download folders and all of their contents",
	Args:    cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ResetCmd()
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func ResetCmd() error {
	env, err := newLocalEnv()
	if err != nil {
		return err
	}

	for _, path := range []string{env.MetadataDir, env.DownloadDir} {
		fmt.Printf("Warning: Are you sure you want to delete the \"%s\" folder and all of its contents? (y/n)\n", path)
		if askForConfirmation() {
			os.RemoveAll(path)
			fmt.Printf("Folder %s was successfully deleted\n", path)
		} else {
			fmt.Printf("Folder \"%s\" was not deleted\n", path)
		}
	}
	return nil
}

func askForConfirmation() bool {
	var response string
	_, err := fmt.Scanln(&response)
	if err != nil {
		log.Fatal(err)
	}
	switch strings.ToLower(response) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		fmt.Println("I'm sorry but I didn't get what you meant, please type (y)es or (n)o and then press enter:")
		return askForConfirmation()
	}
}
