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
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/labelops/cmd/labelops/config"
	"github.com/AleutianAI/labelops/pkg/logging"
	"github.com/AleutianAI/labelops/services/labeler/cloud"
	"github.com/AleutianAI/labelops/services/labeler/engine"
	"github.com/AleutianAI/labelops/services/labeler/gateway"
	"github.com/AleutianAI/labelops/services/labeler/history"
	"github.com/AleutianAI/labelops/services/labeler/transport"
)

// stack bundles the wired dependencies a command needs.
type stack struct {
	coordinator *engine.Coordinator
	single      *engine.SingleUpdater
	inventory   cloud.Inventory
	history     history.Store
	logger      *logging.Logger
	closers     []func() error
}

// close releases the stack's resources in reverse construction order.
func (s *stack) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}
}

// buildStack wires the full mutation stack from the loaded
// configuration. Commands that only read local state (history) still
// come through here; the construction is cheap and keeps wiring in one
// place.
func buildStack() (*stack, error) {
	cfg := config.Global
	if cfg.API.BaseURL == "" {
		return nil, errors.New("api.base_url is not configured; edit ~/.labelops/labelops.yaml")
	}

	appLogger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "cli",
		Quiet:   true,
	})
	logger := appLogger.Slog()

	s := &stack{logger: appLogger}
	s.closers = append(s.closers, appLogger.Close)

	var opts []gateway.Option
	if cfg.Concurrency.RateRPS > 0 {
		opts = append(opts, gateway.WithRateLimit(cfg.Concurrency.RateRPS, cfg.Concurrency.RateBurst))
	}
	gw := gateway.New(cfg.Concurrency.Limit, opts...)

	retrier, err := transport.NewRetrier(transport.DefaultPolicy(), cloud.IsTransient)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(cfg.API.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	api := cloud.NewRESTClient(cfg.API.BaseURL, &http.Client{Timeout: timeout}, logger)
	mutator := cloud.NewMutator(api, gw, retrier, logger)

	inventory, err := cloud.LoadInventory(config.ExpandPath(cfg.Inventory.Path))
	if err != nil {
		return nil, fmt.Errorf("loading inventory (run discovery first?): %w", err)
	}
	s.inventory = inventory

	badgerStore, err := history.OpenBadgerStore(history.BadgerConfig{
		Path:       config.ExpandPath(cfg.History.Path),
		SyncWrites: true,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening history store: %w", err)
	}
	s.closers = append(s.closers, badgerStore.Close)

	var hist history.Store = badgerStore
	if cfg.History.SnapshotBucket != "" {
		exporter, err := history.NewGCSExporter(context.Background(), cfg.History.SnapshotBucket)
		if err != nil {
			return nil, fmt.Errorf("creating snapshot exporter: %w", err)
		}
		s.closers = append(s.closers, exporter.Close)
		hist = history.WithSnapshots(badgerStore, exporter, logger)
	}
	s.history = hist

	progress := newConsoleProgress(os.Stderr)
	notifier := newConsoleNotifier(os.Stderr)
	coordinator, err := engine.NewCoordinator(mutator, hist, progress, notifier, logger, engine.DefaultConfig())
	if err != nil {
		return nil, err
	}
	s.coordinator = coordinator
	s.single = engine.NewSingleUpdater(mutator, hist, logger)
	return s, nil
}

// resolveActor returns the change author: the --actor flag when set,
// otherwise the OS user.
func resolveActor() string {
	if actorFlag != "" {
		return actorFlag
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}

// parseLabelMutations applies CLI label arguments to a copy of the
// current label set. "key=value" sets, "key-" removes.
func parseLabelMutations(current map[string]string, args []string) (map[string]string, error) {
	desired := cloud.CloneLabels(current)
	for _, arg := range args {
		switch {
		case strings.HasSuffix(arg, "-") && !strings.Contains(arg, "="):
			key := strings.TrimSuffix(arg, "-")
			if key == "" {
				return nil, fmt.Errorf("invalid label removal %q", arg)
			}
			delete(desired, key)
		case strings.Contains(arg, "="):
			key, value, _ := strings.Cut(arg, "=")
			if key == "" {
				return nil, fmt.Errorf("invalid label assignment %q", arg)
			}
			desired[key] = value
		default:
			return nil, fmt.Errorf("invalid label argument %q (want key=value or key-)", arg)
		}
	}
	return desired, nil
}
