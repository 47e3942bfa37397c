// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import "log/slog"

// LogNotifier routes notifications to a structured logger. It is the
// default Notifier when no UI surface is attached.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger falls back to
// slog.Default.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "engine.LogNotifier")}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(message string, severity Severity) {
	switch severity {
	case SeverityError:
		n.logger.Error(message)
	case SeverityWarning:
		n.logger.Warn(message)
	default:
		n.logger.Info(message)
	}
}

// NopProgress is a ProgressSink that discards all updates.
type NopProgress struct{}

// Publish implements ProgressSink.
func (NopProgress) Publish(Progress) {}

// Clear implements ProgressSink.
func (NopProgress) Clear(string) {}
