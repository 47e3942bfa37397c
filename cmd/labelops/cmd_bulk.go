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
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/labelops/services/labeler/cloud"
	"github.com/AleutianAI/labelops/services/labeler/engine"
)

// planFile is the YAML shape consumed by bulk-apply.
type planFile struct {
	Actor string     `yaml:"actor,omitempty"`
	Items []planItem `yaml:"items"`
}

type planItem struct {
	// Resource is the inventory id of the target.
	Resource string `yaml:"resource"`

	// Labels is the complete replacement label set.
	Labels map[string]string `yaml:"labels"`
}

func loadPlan(path string) (*planFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan %s: %w", path, err)
	}
	var plan planFile
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parsing plan %s: %w", path, err)
	}
	if len(plan.Items) == 0 {
		return nil, fmt.Errorf("plan %s contains no items", path)
	}
	return &plan, nil
}

func runBulkApply(cmd *cobra.Command, args []string) error {
	plan, err := loadPlan(planPath)
	if err != nil {
		return err
	}

	s, err := buildStack()
	if err != nil {
		return err
	}
	defer s.close()

	items := make([]cloud.LabelUpdateRequest, 0, len(plan.Items))
	for _, item := range plan.Items {
		resource, err := s.inventory.Get(item.Resource)
		if err != nil {
			return fmt.Errorf("plan references unknown resource %q", item.Resource)
		}
		items = append(items, cloud.LabelUpdateRequest{
			Resource:      resource,
			DesiredLabels: item.Labels,
		})
	}

	actor := plan.Actor
	if actor == "" {
		actor = resolveActor()
	}

	// Ctrl-C stops forward writes; committed changes still revert.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	result, err := s.coordinator.Run(ctx, "", actor, items)
	if err != nil {
		if result == nil {
			return err
		}
		// Keep going to the summary; the error is reflected there.
		fmt.Fprintf(os.Stderr, "batch error: %v\n", err)
	}

	printBatchSummary(result)
	if result.State != engine.StateCommitted {
		return fmt.Errorf("batch %s aborted", result.TransactionID)
	}
	return nil
}

func printBatchSummary(result *engine.BatchResult) {
	fmt.Printf("batch:     %s\n", result.TransactionID)
	fmt.Printf("state:     %s\n", result.State)
	fmt.Printf("attempted: %d\n", result.Attempted)
	fmt.Printf("succeeded: %d\n", result.Succeeded)
	if result.State == engine.StateCommitted {
		return
	}
	fmt.Printf("reverted:  %d\n", result.Reverted)
	for _, f := range result.Failures {
		fmt.Printf("failed:    %s: %v\n", f.ResourceID, f.Err)
	}
	for _, inc := range result.Inconsistencies {
		fmt.Printf("REVIEW:    %s left inconsistent: %v\n", inc.ResourceID, inc.Cause)
	}
}
