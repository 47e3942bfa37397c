// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/labelops/cmd/labelops/config"
)

// --- Global Command Variables ---
var (
	planPath  string
	actorFlag string

	rootCmd = &cobra.Command{
		Use:   "labelops",
		Short: "A cli for bulk cloud resource label management",
		Long: `Labelops applies label changes across cloud resources as
pseudo-atomic batches: either every resource in a batch gets its new
labels, or every committed change is reverted.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(); err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			return nil
		},
	}

	bulkApplyCmd = &cobra.Command{
		Use:   "bulk-apply",
		Short: "Apply a label plan to many resources as one batch",
		Long: `Reads a YAML plan and applies it as a single batch transaction.
On any failure, already-committed changes are reverted.`,
		RunE: runBulkApply, // Defined in cmd_bulk.go
	}

	applyCmd = &cobra.Command{
		Use:   "apply [resource-id] [key=value | key-]...",
		Short: "Update one resource's labels",
		Long: `Applies label mutations to a single resource. key=value sets a
label, key- removes it. Unmentioned labels are kept.`,
		Args: cobra.MinimumNArgs(2),
		RunE: runApply, // Defined in cmd_apply.go
	}

	historyCmd = &cobra.Command{
		Use:   "history [resource-id]",
		Short: "Show a resource's label change history",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistory, // Defined in cmd_history.go
	}

	resourcesCmd = &cobra.Command{
		Use:   "resources",
		Short: "List the known resource inventory",
		RunE:  runResources, // Defined in cmd_resources.go
	}
)

func init() {
	bulkApplyCmd.Flags().StringVarP(&planPath, "file", "f", "", "path to the YAML label plan (required)")
	_ = bulkApplyCmd.MarkFlagRequired("file")

	rootCmd.PersistentFlags().StringVar(&actorFlag, "actor", "", "who to record as the change author (default: $USER)")

	rootCmd.AddCommand(bulkApplyCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(resourcesCmd)
}
