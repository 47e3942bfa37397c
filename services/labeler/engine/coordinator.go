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
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/labelops/services/labeler/cloud"
	"github.com/AleutianAI/labelops/services/labeler/history"
	"github.com/AleutianAI/labelops/services/labeler/transport"
)

// Config controls batch coordination behavior.
type Config struct {
	// ChunkSize is the number of items processed concurrently per chunk.
	// Chunks run sequentially. Default: 5.
	ChunkSize int

	// RollbackConcurrency bounds concurrent compensating writes.
	// Default: 4.
	RollbackConcurrency int

	// RollbackPolicy is the retry policy for compensating writes. It is
	// deliberately independent of the forward transport policy: during
	// rollback the remote system is already suspected unhealthy, so the
	// schedule starts slower and never gives up early.
	RollbackPolicy transport.Policy

	// ClearDelay is how long after a terminal state the progress display
	// is cleared. Zero or negative clears immediately.
	ClearDelay time.Duration
}

// DefaultConfig returns the standard coordination configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize:           5,
		RollbackConcurrency: 4,
		RollbackPolicy:      transport.RollbackPolicy(),
		ClearDelay:          3 * time.Second,
	}
}

// Coordinator executes bulk label updates as pseudo-atomic batch
// transactions: all items commit, or every committed item is reverted
// by a compensating write.
//
// # Failure Model
//
// The first item failure in a chunk cancels its in-flight peers and
// stops all later chunks. Every item that had already committed is then
// reverted to its snapshotted original labels. Compensating writes that
// exhaust their retries are reported as inconsistencies, never silently
// dropped: the batch still reaches Aborted, but the result names each
// resource whose true remote state is now unknown.
//
// Authentication failures short-circuit rollback entirely. Compensating
// writes would fail with the same dead credentials, so the coordinator
// reports every committed item as inconsistent instead of burning the
// full retry schedule per resource.
//
// # Thread Safety
//
// Safe for concurrent use; each Run owns its transaction state.
type Coordinator struct {
	mutator  LabelMutator
	hist     history.Store
	progress ProgressSink
	notifier Notifier
	rollback *transport.Retrier
	logger   *slog.Logger
	cfg      Config
}

// NewCoordinator creates a Coordinator.
//
// # Inputs
//
//   - mutator: Per-resource label mutation dependency.
//   - hist: Change history store; appended once per committed batch.
//   - progress: Progress sink; nil gets NopProgress.
//   - notifier: Terminal notification sink; nil gets a LogNotifier.
//   - logger: Structured logger; nil falls back to slog.Default.
//   - cfg: Coordination config; zero-valued fields take defaults.
//
// # Outputs
//
//   - *Coordinator: Ready coordinator.
//   - error: Non-nil when the rollback policy is invalid.
func NewCoordinator(mutator LabelMutator, hist history.Store, progress ProgressSink, notifier Notifier, logger *slog.Logger, cfg Config) (*Coordinator, error) {
	def := DefaultConfig()
	if cfg.ChunkSize < 1 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.RollbackConcurrency < 1 {
		cfg.RollbackConcurrency = def.RollbackConcurrency
	}
	if cfg.RollbackPolicy.MaxAttempts == 0 {
		cfg.RollbackPolicy = def.RollbackPolicy
	}
	if logger == nil {
		logger = slog.Default()
	}
	if progress == nil {
		progress = NopProgress{}
	}
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}

	// Conflicts are retryable here, unlike on the forward path: each
	// retry re-enters the mutator, which refetches the current token
	// before writing. Without that, a compensation racing another actor
	// would keep replaying a token already known to be stale.
	rb, err := transport.NewRetrier(cfg.RollbackPolicy, func(err error) bool {
		return cloud.IsTransient(err) || cloud.IsConflict(err)
	})
	if err != nil {
		return nil, fmt.Errorf("rollback retrier: %w", err)
	}

	return &Coordinator{
		mutator:  mutator,
		hist:     hist,
		progress: progress,
		notifier: notifier,
		rollback: rb,
		logger:   logger.With("component", "engine.Coordinator"),
		cfg:      cfg,
	}, nil
}

// Run executes one batch transaction to a terminal state.
//
// Item failures never surface as Run errors; they are reported through
// the BatchResult. Run returns an error only for invalid input or when
// an authentication failure aborts the batch, since that condition
// outlives the transaction.
//
// # Inputs
//
//   - ctx: Cancels in-flight forward writes. Compensating writes run on
//     a detached context so a cancelled batch still rolls back.
//   - batchID: Caller-assigned transaction id, so API surfaces can hand
//     it out before the batch finishes. Empty generates one.
//   - actor: Who requested the batch; recorded in history.
//   - items: One full-replacement label write per resource. Each
//     resource may appear at most once.
//
// # Outputs
//
//   - *BatchResult: Terminal summary; non-nil whenever error is nil or
//     an auth failure aborted the batch.
//   - error: ErrNoItems, ErrDuplicateResource, a validation error, or
//     the *cloud.AuthError that aborted the batch.
func (c *Coordinator) Run(ctx context.Context, batchID, actor string, items []cloud.LabelUpdateRequest) (*BatchResult, error) {
	tx, err := admit(batchID, items)
	if err != nil {
		return nil, err
	}
	start := time.Now()

	c.logger.Info("batch transaction started",
		"batch_id", tx.id,
		"item_count", len(tx.items),
		"actor", actor,
	)

	authErr := c.forward(ctx, tx)

	if len(tx.failed) == 0 {
		if err := tx.transition(StateCommitted); err != nil {
			return nil, err
		}
		c.recordCommit(ctx, tx, actor)
		c.scheduleClear(tx.id)
		recordBatch(ctx, StateCommitted, len(tx.items), time.Since(start))

		c.notifier.Notify(
			fmt.Sprintf("batch %s: %d resources updated", tx.id, len(tx.items)),
			SeverityInfo,
		)
		return &BatchResult{
			TransactionID: tx.id,
			State:         StateCommitted,
			Attempted:     len(tx.items),
			Succeeded:     len(tx.successfulIDs),
		}, nil
	}

	if err := tx.transition(StateRollingBack); err != nil {
		return nil, err
	}
	c.notifier.Notify(
		fmt.Sprintf("batch %s: %d of %d updates failed, reverting %d committed changes",
			tx.id, len(tx.failed), len(tx.items), len(tx.successfulIDs)),
		SeverityWarning,
	)

	var reverted int
	var inconsistencies []*RollbackInconsistencyError
	if authErr != nil {
		for _, id := range tx.committedOrder() {
			inconsistencies = append(inconsistencies, &RollbackInconsistencyError{
				ResourceID: id,
				Cause:      authErr,
			})
		}
	} else {
		reverted, inconsistencies = c.rollbackAll(ctx, tx)
	}

	if err := tx.transition(StateAborted); err != nil {
		return nil, err
	}
	c.scheduleClear(tx.id)
	recordBatch(ctx, StateAborted, len(tx.items), time.Since(start))

	c.notifyAborted(tx, reverted, inconsistencies)

	result := &BatchResult{
		TransactionID:   tx.id,
		State:           StateAborted,
		Attempted:       len(tx.items),
		Succeeded:       len(tx.successfulIDs),
		Reverted:        reverted,
		Failures:        tx.failed,
		Inconsistencies: inconsistencies,
	}
	if authErr != nil {
		return result, authErr
	}
	return result, nil
}

// admit validates batch input and builds the transaction state,
// snapshotting every resource's labels before any write.
func admit(batchID string, items []cloud.LabelUpdateRequest) (*batchTransaction, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	if batchID == "" {
		batchID = uuid.NewString()
	}
	originals := make(map[string]map[string]string, len(items))
	for _, it := range items {
		if err := it.Resource.Validate(); err != nil {
			return nil, err
		}
		if _, seen := originals[it.Resource.ID]; seen {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateResource, it.Resource.ID)
		}
		originals[it.Resource.ID] = cloud.CloneLabels(it.Resource.Labels)
	}
	return &batchTransaction{
		id:             batchID,
		items:          items,
		originalLabels: originals,
		successfulIDs:  make(map[string]struct{}, len(items)),
		state:          StateRunning,
	}, nil
}

// forward runs the chunked forward pass. Returns the first
// authentication error seen, if any. Item failures land on tx.failed.
func (c *Coordinator) forward(ctx context.Context, tx *batchTransaction) error {
	var authErr error
	total := len(tx.items)

	for offset := 0; offset < total; offset += c.cfg.ChunkSize {
		end := offset + c.cfg.ChunkSize
		if end > total {
			end = total
		}
		chunk := tx.items[offset:end]

		// Peers in a chunk share a context so the first failure stops
		// the rest instead of letting them commit into a doomed batch.
		chunkCtx, cancel := context.WithCancel(ctx)

		var mu sync.Mutex
		var wg sync.WaitGroup
		for i := range chunk {
			it := chunk[i]
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := c.mutator.UpdateLabels(chunkCtx, it.Resource, it.DesiredLabels)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					tx.failed = append(tx.failed, ItemFailure{ResourceID: it.Resource.ID, Err: err})
					if cloud.IsAuth(err) && authErr == nil {
						authErr = err
					}
					cancel()
				} else {
					tx.successfulIDs[it.Resource.ID] = struct{}{}
				}
				// Every completion advances the display, failures
				// included.
				tx.processed++
				c.progress.Publish(Progress{
					BatchID:   tx.id,
					Processed: tx.processed,
					Total:     total,
					Phase:     PhaseUpdating,
				})
			}()
		}
		wg.Wait()
		cancel()

		if len(tx.failed) > 0 {
			c.logger.Warn("chunk failed, halting forward pass",
				"batch_id", tx.id,
				"chunk_start", offset,
				"failed_count", len(tx.failed),
			)
			break
		}
	}
	return authErr
}

// rollbackAll reverts every committed item, bounded by
// RollbackConcurrency. It always attempts every item; one resource's
// failure never skips another's compensation.
func (c *Coordinator) rollbackAll(ctx context.Context, tx *batchTransaction) (int, []*RollbackInconsistencyError) {
	ids := tx.committedOrder()
	byID := make(map[string]*cloud.ManagedResource, len(ids))
	for _, it := range tx.items {
		byID[it.Resource.ID] = it.Resource
	}

	// A cancelled batch context must not strand committed writes.
	rbCtx := context.WithoutCancel(ctx)

	var (
		mu              sync.Mutex
		reverted        int
		inconsistencies []*RollbackInconsistencyError
	)

	var g errgroup.Group
	g.SetLimit(c.cfg.RollbackConcurrency)
	for _, id := range ids {
		res := byID[id]
		original := tx.originalLabels[id]
		g.Go(func() error {
			err := c.rollback.Do(rbCtx, func(ctx context.Context) error {
				return c.mutator.UpdateLabels(ctx, res, original)
			})
			recordRollbackItem(rbCtx, err == nil)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				c.logger.Error("compensating write failed, resource inconsistent",
					"batch_id", tx.id,
					"resource_id", res.ID,
					"error", err,
				)
				inconsistencies = append(inconsistencies, &RollbackInconsistencyError{
					ResourceID: res.ID,
					Cause:      err,
				})
				return nil
			}
			reverted++
			c.progress.Publish(Progress{
				BatchID:   tx.id,
				Processed: reverted,
				Total:     len(ids),
				Phase:     PhaseRollingBack,
			})
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(inconsistencies, func(i, j int) bool {
		return inconsistencies[i].ResourceID < inconsistencies[j].ResourceID
	})
	return reverted, inconsistencies
}

// recordCommit appends the committed batch's history in one bulk write.
// History failures are logged, not fatal: the remote mutations already
// happened and must not be reported as failed.
func (c *Coordinator) recordCommit(ctx context.Context, tx *batchTransaction, actor string) {
	now := time.Now().UTC()
	recs := make([]history.ChangeRecord, 0, len(tx.items))
	for _, it := range tx.items {
		recs = append(recs, history.ChangeRecord{
			ResourceID:     it.Resource.ID,
			BatchID:        tx.id,
			Timestamp:      now,
			Actor:          actor,
			ChangeType:     "bulk-update",
			PreviousLabels: tx.originalLabels[it.Resource.ID],
			NewLabels:      cloud.CloneLabels(it.Resource.Labels),
		})
	}
	if err := c.hist.BulkAppend(ctx, recs); err != nil {
		c.logger.Error("recording batch history failed",
			"batch_id", tx.id,
			"record_count", len(recs),
			"error", err,
		)
	}
}

// notifyAborted emits the single terminal notification for an aborted
// batch.
func (c *Coordinator) notifyAborted(tx *batchTransaction, reverted int, inconsistencies []*RollbackInconsistencyError) {
	committed := len(tx.successfulIDs)
	if len(inconsistencies) == 0 {
		c.notifier.Notify(
			fmt.Sprintf("batch %s aborted: %d/%d committed changes reverted", tx.id, reverted, committed),
			SeverityWarning,
		)
		return
	}
	names := make([]string, 0, len(inconsistencies))
	for _, inc := range inconsistencies {
		names = append(names, inc.ResourceID)
	}
	c.notifier.Notify(
		fmt.Sprintf("batch %s aborted: %d/%d reverted; manual review required for: %s",
			tx.id, reverted, committed, strings.Join(names, ", ")),
		SeverityError,
	)
}

// scheduleClear clears the batch's progress display after the
// configured delay.
func (c *Coordinator) scheduleClear(batchID string) {
	if c.cfg.ClearDelay <= 0 {
		c.progress.Clear(batchID)
		return
	}
	time.AfterFunc(c.cfg.ClearDelay, func() { c.progress.Clear(batchID) })
}
