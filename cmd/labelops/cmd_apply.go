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
	"sort"

	"github.com/spf13/cobra"
)

func runApply(cmd *cobra.Command, args []string) error {
	s, err := buildStack()
	if err != nil {
		return err
	}
	defer s.close()

	resource, err := s.inventory.Get(args[0])
	if err != nil {
		return fmt.Errorf("unknown resource %q", args[0])
	}

	desired, err := parseLabelMutations(resource.Labels, args[1:])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if err := s.single.Apply(ctx, resolveActor(), resource, desired); err != nil {
		return fmt.Errorf("updating %s: %w", resource.ID, err)
	}

	fmt.Printf("%s updated (%d labels):\n", resource.ID, len(resource.Labels))
	keys := make([]string, 0, len(resource.Labels))
	for k := range resource.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s=%s\n", k, resource.Labels[k])
	}
	return nil
}
