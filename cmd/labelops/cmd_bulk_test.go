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
	"os"
	"path/filepath"
	"testing"
)

func writePlan(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing plan: %v", err)
	}
	return path
}

func TestLoadPlan(t *testing.T) {
	path := writePlan(t, `
actor: ops@example.com
items:
  - resource: vm-1
    labels:
      env: prod
      cost-center: cc-42
  - resource: db-1
    labels:
      env: prod
`)

	plan, err := loadPlan(path)
	if err != nil {
		t.Fatalf("loadPlan failed: %v", err)
	}
	if plan.Actor != "ops@example.com" {
		t.Errorf("actor = %q", plan.Actor)
	}
	if len(plan.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(plan.Items))
	}
	if plan.Items[0].Resource != "vm-1" {
		t.Errorf("first resource = %q", plan.Items[0].Resource)
	}
	if plan.Items[0].Labels["cost-center"] != "cc-42" {
		t.Errorf("labels = %v", plan.Items[0].Labels)
	}
}

func TestLoadPlan_ActorOptional(t *testing.T) {
	path := writePlan(t, `
items:
  - resource: vm-1
    labels:
      env: prod
`)

	plan, err := loadPlan(path)
	if err != nil {
		t.Fatalf("loadPlan failed: %v", err)
	}
	if plan.Actor != "" {
		t.Errorf("actor should be empty, got %q", plan.Actor)
	}
}

func TestLoadPlan_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "empty items", content: "actor: x\nitems: []\n"},
		{name: "no items key", content: "actor: x\n"},
		{name: "malformed yaml", content: "items: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writePlan(t, tt.content)
			if _, err := loadPlan(path); err == nil {
				t.Error("expected error")
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		if _, err := loadPlan(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Error("expected error")
		}
	})
}
