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

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for batch transaction metrics.
var meter = otel.Meter("labelops.engine")

// Metric instruments for batch transaction operations.
var (
	batchTotal         metric.Int64Counter
	batchDuration      metric.Float64Histogram
	batchItems         metric.Int64Histogram
	rollbackItemsTotal metric.Int64Counter
	inconsistencyTotal metric.Int64Counter
	singleUpdateTotal  metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// metricsEnabled controls whether metrics are recorded.
//
// Thread Safety: Uses atomic operations for safe concurrent access.
var metricsEnabled atomic.Bool

func init() {
	metricsEnabled.Store(true)
}

// SetMetricsEnabled controls whether metrics are recorded.
//
// Thread Safety: Safe for concurrent use.
func SetMetricsEnabled(enabled bool) {
	metricsEnabled.Store(enabled)
}

// initMetrics initializes all metric instruments.
// Safe to call multiple times; uses sync.Once internally.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		batchTotal, err = meter.Int64Counter(
			"labelops_batch_total",
			metric.WithDescription("Total number of finished batch transactions"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		batchDuration, err = meter.Float64Histogram(
			"labelops_batch_duration_seconds",
			metric.WithDescription("Duration of batch transactions in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		batchItems, err = meter.Int64Histogram(
			"labelops_batch_items",
			metric.WithDescription("Number of items per batch transaction"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		rollbackItemsTotal, err = meter.Int64Counter(
			"labelops_rollback_items_total",
			metric.WithDescription("Total number of compensating writes attempted"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		inconsistencyTotal, err = meter.Int64Counter(
			"labelops_rollback_inconsistencies_total",
			metric.WithDescription("Total number of resources left inconsistent after failed compensation"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		singleUpdateTotal, err = meter.Int64Counter(
			"labelops_single_update_total",
			metric.WithDescription("Total number of single-resource update operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordBatch records a finished batch transaction.
//
// # Inputs
//
//   - ctx: Context for metric recording.
//   - state: Terminal state of the transaction.
//   - items: Number of items in the batch.
//   - duration: Wall time from admission to terminal state.
func recordBatch(ctx context.Context, state TxState, items int, duration time.Duration) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("state", state.String()))

	batchTotal.Add(ctx, 1, attrs)
	batchDuration.Record(ctx, duration.Seconds(), attrs)
	batchItems.Record(ctx, int64(items), attrs)
}

// recordRollbackItem records one compensating write attempt outcome.
func recordRollbackItem(ctx context.Context, success bool) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	status := "success"
	if !success {
		status = "error"
	}

	rollbackItemsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
	if !success {
		inconsistencyTotal.Add(ctx, 1)
	}
}

// recordSingleUpdate records a single-resource update outcome.
func recordSingleUpdate(ctx context.Context, success bool) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	status := "success"
	if !success {
		status = "error"
	}

	singleUpdateTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
}
