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
	"bytes"
	"strings"
	"testing"

	"github.com/AleutianAI/labelops/services/labeler/engine"
)

func TestConsoleProgress(t *testing.T) {
	var buf bytes.Buffer
	p := newConsoleProgress(&buf)

	p.Publish(engine.Progress{Processed: 1, Total: 5, Phase: engine.PhaseUpdating})
	p.Publish(engine.Progress{Processed: 2, Total: 5, Phase: engine.PhaseUpdating})

	out := buf.String()
	if !strings.Contains(out, "1/5") || !strings.Contains(out, "2/5") {
		t.Errorf("missing counts in %q", out)
	}
	if !strings.Contains(out, string(engine.PhaseUpdating)) {
		t.Errorf("missing phase in %q", out)
	}
	if strings.Contains(out, "\n") {
		t.Errorf("updates should rewrite one line, got %q", out)
	}

	p.Clear("b-1")
	if !strings.HasSuffix(buf.String(), "\n") {
		t.Errorf("Clear should terminate the line, got %q", buf.String())
	}
}

func TestConsoleProgress_ClearWithoutPublish(t *testing.T) {
	var buf bytes.Buffer
	p := newConsoleProgress(&buf)
	p.Clear("b-1")
	if buf.Len() != 0 {
		t.Errorf("Clear with no prior updates wrote %q", buf.String())
	}
}

func TestConsoleNotifier(t *testing.T) {
	tests := []struct {
		name     string
		severity engine.Severity
		prefix   string
	}{
		{name: "info has no prefix", severity: engine.SeverityInfo, prefix: ""},
		{name: "warning prefixed", severity: engine.SeverityWarning, prefix: "WARNING: "},
		{name: "error prefixed", severity: engine.SeverityError, prefix: "ERROR: "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			n := newConsoleNotifier(&buf)
			n.Notify("batch b1: done", tt.severity)

			got := strings.TrimSpace(buf.String())
			want := tt.prefix + "batch b1: done"
			if got != want {
				t.Errorf("got %q, want %q", got, want)
			}
		})
	}
}
