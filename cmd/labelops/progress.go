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
	"io"
	"sync"

	"github.com/AleutianAI/labelops/services/labeler/engine"
)

// consoleProgress renders batch progress as a single rewritten terminal
// line.
type consoleProgress struct {
	mu     sync.Mutex
	out    io.Writer
	active bool
}

func newConsoleProgress(out io.Writer) *consoleProgress {
	return &consoleProgress{out: out}
}

// Publish implements engine.ProgressSink.
func (p *consoleProgress) Publish(pr engine.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = true
	fmt.Fprintf(p.out, "\r%-13s %d/%d", pr.Phase, pr.Processed, pr.Total)
}

// Clear implements engine.ProgressSink. The CLI runs one batch at a
// time, so the batch id is not needed to find the display.
func (p *consoleProgress) Clear(string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active {
		fmt.Fprintln(p.out)
		p.active = false
	}
}

// consoleNotifier prints coordinator notifications with a severity
// prefix.
type consoleNotifier struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsoleNotifier(out io.Writer) *consoleNotifier {
	return &consoleNotifier{out: out}
}

// Notify implements engine.Notifier.
func (n *consoleNotifier) Notify(message string, severity engine.Severity) {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch severity {
	case engine.SeverityError:
		fmt.Fprintf(n.out, "\nERROR: %s\n", message)
	case engine.SeverityWarning:
		fmt.Fprintf(n.out, "\nWARNING: %s\n", message)
	default:
		fmt.Fprintf(n.out, "\n%s\n", message)
	}
}
