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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/labelops/services/labeler/cloud"
	"github.com/AleutianAI/labelops/services/labeler/history"
	"github.com/AleutianAI/labelops/services/labeler/transport"
)

// step scripts one UpdateLabels call against one resource.
type step struct {
	// err is returned without touching the resource.
	err error

	// block waits for ctx cancellation and returns ctx.Err().
	block bool
}

// fakeMutator is a scriptable LabelMutator. Calls pop steps per
// resource; an empty queue means success.
type fakeMutator struct {
	mu    sync.Mutex
	steps map[string][]step
	calls map[string]int
	seq   int
}

func newFakeMutator() *fakeMutator {
	return &fakeMutator{
		steps: make(map[string][]step),
		calls: make(map[string]int),
	}
}

func (m *fakeMutator) script(resourceID string, steps ...step) {
	m.steps[resourceID] = append(m.steps[resourceID], steps...)
}

func (m *fakeMutator) callCount(resourceID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[resourceID]
}

func (m *fakeMutator) UpdateLabels(ctx context.Context, r *cloud.ManagedResource, desired map[string]string) error {
	m.mu.Lock()
	m.calls[r.ID]++
	var st step
	if q := m.steps[r.ID]; len(q) > 0 {
		st = q[0]
		m.steps[r.ID] = q[1:]
	}
	m.seq++
	token := fmt.Sprintf("tok-%d", m.seq)
	m.mu.Unlock()

	if st.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if st.err != nil {
		return st.err
	}

	r.Labels = cloud.CloneLabels(desired)
	r.VersionToken = token
	return nil
}

// recorder captures progress updates and clears.
type recorder struct {
	mu      sync.Mutex
	updates []Progress
	cleared []string
}

func (r *recorder) Publish(p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, p)
}

func (r *recorder) Clear(batchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared = append(r.cleared, batchID)
}

func (r *recorder) snapshot() ([]Progress, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Progress, len(r.updates))
	copy(out, r.updates)
	return out, len(r.cleared)
}

func (r *recorder) clearedBatches() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.cleared))
	copy(out, r.cleared)
	return out
}

// capture collects notifications.
type capture struct {
	mu       sync.Mutex
	messages []string
	severity []Severity
}

func (c *capture) Notify(message string, severity Severity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message)
	c.severity = append(c.severity, severity)
}

func (c *capture) last() (string, Severity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.messages) == 0 {
		return "", ""
	}
	return c.messages[len(c.messages)-1], c.severity[len(c.severity)-1]
}

func makeItems(n int) []cloud.LabelUpdateRequest {
	items := make([]cloud.LabelUpdateRequest, 0, n)
	for i := 1; i <= n; i++ {
		items = append(items, cloud.LabelUpdateRequest{
			Resource: &cloud.ManagedResource{
				ID:           fmt.Sprintf("r%d", i),
				Name:         fmt.Sprintf("vm-%d", i),
				Kind:         cloud.KindInstance,
				Project:      "acme-prod",
				Location:     "us-east1-b",
				Labels:       map[string]string{"env": "dev"},
				VersionToken: "tok-0",
			},
			DesiredLabels: map[string]string{"env": "prod", "cost-center": "cc-42"},
		})
	}
	return items
}

func testConfig() Config {
	return Config{
		ChunkSize:           5,
		RollbackConcurrency: 4,
		RollbackPolicy: transport.Policy{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     4 * time.Millisecond,
			BackoffFactor:  2.0,
		},
		// Deterministic: terminal states clear progress synchronously.
		ClearDelay: -1,
	}
}

func newTestCoordinator(t *testing.T, m *fakeMutator) (*Coordinator, *history.MemoryStore, *recorder, *capture) {
	t.Helper()
	hist := history.NewMemoryStore()
	prog := &recorder{}
	notes := &capture{}
	c, err := NewCoordinator(m, hist, prog, notes, nil, testConfig())
	require.NoError(t, err)
	return c, hist, prog, notes
}

func TestCoordinator_AllSucceedCommits(t *testing.T) {
	m := newFakeMutator()
	c, hist, prog, notes := newTestCoordinator(t, m)
	items := makeItems(7)

	result, err := c.Run(context.Background(), "", "ops@example.com", items)
	require.NoError(t, err)

	assert.Equal(t, StateCommitted, result.State)
	assert.Equal(t, 7, result.Attempted)
	assert.Equal(t, 7, result.Succeeded)
	assert.Empty(t, result.Failures)
	assert.Empty(t, result.Inconsistencies)

	// Every resource carries the new labels and a fresh token.
	for _, it := range items {
		assert.Equal(t, "prod", it.Resource.Labels["env"])
		assert.NotEqual(t, "tok-0", it.Resource.VersionToken)
	}

	// One history record per item, tagged with the batch id.
	recs, err := hist.ForResource(context.Background(), "r3")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, result.TransactionID, recs[0].BatchID)
	assert.Equal(t, "bulk-update", recs[0].ChangeType)
	assert.Equal(t, map[string]string{"env": "dev"}, recs[0].PreviousLabels)
	assert.Equal(t, "prod", recs[0].NewLabels["env"])

	updates, cleared := prog.snapshot()
	require.Len(t, updates, 7)
	for _, p := range updates {
		assert.Equal(t, result.TransactionID, p.BatchID)
		assert.Equal(t, PhaseUpdating, p.Phase)
		assert.Equal(t, 7, p.Total)
	}
	assert.Equal(t, 7, updates[len(updates)-1].Processed)
	assert.Equal(t, 1, cleared)
	assert.Equal(t, []string{result.TransactionID}, prog.clearedBatches())

	msg, sev := notes.last()
	assert.Contains(t, msg, "7 resources updated")
	assert.Equal(t, SeverityInfo, sev)
}

func TestCoordinator_FailureMidBatchRevertsCommitted(t *testing.T) {
	m := newFakeMutator()
	// Chunk two: r7 conflicts fatally, r8-r10 are in flight and get
	// cancelled when the chunk context drops.
	m.script("r7", step{err: &cloud.ConflictError{ResourceID: "r7", StaleToken: "tok-0"}})
	m.script("r8", step{block: true})
	m.script("r9", step{block: true})
	m.script("r10", step{block: true})

	c, hist, prog, notes := newTestCoordinator(t, m)
	items := makeItems(10)

	result, err := c.Run(context.Background(), "", "ops@example.com", items)
	require.NoError(t, err)

	assert.Equal(t, StateAborted, result.State)
	assert.Equal(t, 10, result.Attempted)
	assert.Equal(t, 6, result.Succeeded, "chunk one plus r6")
	assert.Equal(t, 6, result.Reverted)
	assert.Empty(t, result.Inconsistencies)

	failedIDs := make([]string, 0, len(result.Failures))
	for _, f := range result.Failures {
		failedIDs = append(failedIDs, f.ResourceID)
	}
	assert.Contains(t, failedIDs, "r7")

	// Committed items were written back to their original labels.
	for i := 1; i <= 6; i++ {
		id := fmt.Sprintf("r%d", i)
		assert.Equal(t, 2, m.callCount(id), "%s: forward write plus compensation", id)
		assert.Equal(t, map[string]string{"env": "dev"}, items[i-1].Resource.Labels)
	}

	// Aborted batches leave no history.
	recs, err := hist.ForResource(context.Background(), "r1")
	require.NoError(t, err)
	assert.Empty(t, recs)

	updates, cleared := prog.snapshot()
	var rollbackUpdates int
	for _, p := range updates {
		if p.Phase == PhaseRollingBack {
			rollbackUpdates++
			assert.Equal(t, 6, p.Total)
		}
	}
	assert.Equal(t, 6, rollbackUpdates)
	assert.Equal(t, 1, cleared)

	msg, sev := notes.last()
	assert.Contains(t, msg, "6/6 committed changes reverted")
	assert.Equal(t, SeverityWarning, sev)
}

func TestCoordinator_ProgressCountsFailedItems(t *testing.T) {
	m := newFakeMutator()
	m.script("r2", step{err: &cloud.ServerError{ResourceID: "r2", StatusCode: 500}})

	c, _, prog, _ := newTestCoordinator(t, m)
	items := makeItems(3)

	result, err := c.Run(context.Background(), "", "ops@example.com", items)
	require.NoError(t, err)
	require.Equal(t, StateAborted, result.State)

	// One updating-phase update per completed item; r2's failure counts
	// as a completion too.
	updates, _ := prog.snapshot()
	var forward []Progress
	for _, p := range updates {
		if p.Phase == PhaseUpdating {
			forward = append(forward, p)
		}
	}
	require.Len(t, forward, 3)
	for i, p := range forward {
		assert.Equal(t, result.TransactionID, p.BatchID)
		assert.Equal(t, i+1, p.Processed)
		assert.Equal(t, 3, p.Total)
	}
}

func TestCoordinator_NoForwardWritesAfterFailedChunk(t *testing.T) {
	m := newFakeMutator()
	m.script("r2", step{err: &cloud.ServerError{ResourceID: "r2", StatusCode: 500}})

	c, _, _, _ := newTestCoordinator(t, m)
	items := makeItems(12)

	result, err := c.Run(context.Background(), "", "ops@example.com", items)
	require.NoError(t, err)
	assert.Equal(t, StateAborted, result.State)

	// Chunks after the failed one never start.
	for i := 6; i <= 12; i++ {
		assert.Zero(t, m.callCount(fmt.Sprintf("r%d", i)))
	}
}

func TestCoordinator_RollbackRetriesTransientFailures(t *testing.T) {
	m := newFakeMutator()
	m.script("r3", step{err: &cloud.ServerError{ResourceID: "r3", StatusCode: 503}})
	// r1's compensation hits a rate limit once, then lands.
	m.script("r1",
		step{},
		step{err: &cloud.RateLimitError{ResourceID: "r1"}},
	)

	c, _, _, _ := newTestCoordinator(t, m)
	items := makeItems(3)

	result, err := c.Run(context.Background(), "", "ops@example.com", items)
	require.NoError(t, err)

	assert.Equal(t, StateAborted, result.State)
	assert.Equal(t, 2, result.Reverted)
	assert.Empty(t, result.Inconsistencies)
	// Forward write, failed compensation, retried compensation.
	assert.Equal(t, 3, m.callCount("r1"))
}

func TestCoordinator_ExhaustedCompensationReportsInconsistency(t *testing.T) {
	m := newFakeMutator()
	m.script("r3", step{err: &cloud.ServerError{ResourceID: "r3", StatusCode: 500}})
	// Every compensation attempt for r2 fails.
	m.script("r2",
		step{},
		step{err: &cloud.ServerError{ResourceID: "r2", StatusCode: 503}},
		step{err: &cloud.ServerError{ResourceID: "r2", StatusCode: 503}},
		step{err: &cloud.ServerError{ResourceID: "r2", StatusCode: 503}},
	)

	c, _, _, notes := newTestCoordinator(t, m)
	items := makeItems(3)

	result, err := c.Run(context.Background(), "", "ops@example.com", items)
	require.NoError(t, err)

	assert.Equal(t, StateAborted, result.State)
	assert.Equal(t, 1, result.Reverted, "r1 reverted, r2 did not")
	require.Len(t, result.Inconsistencies, 1)
	assert.Equal(t, "r2", result.Inconsistencies[0].ResourceID)

	var exhausted *transport.RetryExhaustedError
	require.ErrorAs(t, result.Inconsistencies[0], &exhausted)

	msg, sev := notes.last()
	assert.Contains(t, msg, "manual review required")
	assert.Contains(t, msg, "r2")
	assert.Equal(t, SeverityError, sev)
}

func TestCoordinator_AuthFailureSkipsCompensation(t *testing.T) {
	m := newFakeMutator()
	m.script("r4", step{err: &cloud.AuthError{StatusCode: 403}})

	c, _, _, _ := newTestCoordinator(t, m)
	items := makeItems(5)

	result, err := c.Run(context.Background(), "", "ops@example.com", items)
	require.Error(t, err)
	var authErr *cloud.AuthError
	require.ErrorAs(t, err, &authErr)

	require.NotNil(t, result)
	assert.Equal(t, StateAborted, result.State)
	assert.Zero(t, result.Reverted)
	// Committed items are flagged for review, not retried with dead
	// credentials.
	assert.Len(t, result.Inconsistencies, result.Succeeded)
	for _, id := range []string{"r1", "r2", "r3", "r5"} {
		assert.LessOrEqual(t, m.callCount(id), 1, "%s: no compensation call", id)
	}
}

func TestCoordinator_AdmissionErrors(t *testing.T) {
	m := newFakeMutator()
	c, _, _, _ := newTestCoordinator(t, m)
	ctx := context.Background()

	_, err := c.Run(ctx, "", "ops@example.com", nil)
	assert.ErrorIs(t, err, ErrNoItems)

	items := makeItems(2)
	items[1].Resource.ID = "r1"
	_, err = c.Run(ctx, "", "ops@example.com", items)
	assert.ErrorIs(t, err, ErrDuplicateResource)

	bad := makeItems(1)
	bad[0].Resource.Kind = "firewall"
	_, err = c.Run(ctx, "", "ops@example.com", bad)
	assert.ErrorIs(t, err, cloud.ErrInvalidResource)

	assert.Zero(t, m.callCount("r1"), "no writes before admission passes")
}

func TestCoordinator_CancelledBatchStillRollsBack(t *testing.T) {
	m := newFakeMutator()
	ctx, cancel := context.WithCancel(context.Background())
	m.script("r2", step{block: true})
	go func() {
		// Let r1 land, then cancel the batch while r2 is in flight.
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	c, _, _, _ := newTestCoordinator(t, m)
	items := makeItems(2)

	result, err := c.Run(ctx, "", "ops@example.com", items)
	require.NoError(t, err)

	assert.Equal(t, StateAborted, result.State)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Reverted, "compensation runs despite batch cancellation")
	assert.Equal(t, map[string]string{"env": "dev"}, items[0].Resource.Labels)
}

func TestTxState_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		from    TxState
		to      TxState
		wantErr bool
	}{
		{"running to committed", StateRunning, StateCommitted, false},
		{"running to rolling back", StateRunning, StateRollingBack, false},
		{"rolling back to aborted", StateRollingBack, StateAborted, false},
		{"running to aborted", StateRunning, StateAborted, true},
		{"committed is terminal", StateCommitted, StateRollingBack, true},
		{"aborted is terminal", StateAborted, StateRunning, true},
		{"rolling back cannot commit", StateRollingBack, StateCommitted, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := &batchTransaction{state: tt.from}
			err := tx.transition(tt.to)
			if tt.wantErr {
				var stErr *StateTransitionError
				require.ErrorAs(t, err, &stErr)
				assert.Equal(t, tt.from, tx.state, "state unchanged on rejected transition")
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.to, tx.state)
			}
		})
	}
}

func TestTxState_String(t *testing.T) {
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "committed", StateCommitted.String())
	assert.Equal(t, "rolling-back", StateRollingBack.String())
	assert.Equal(t, "aborted", StateAborted.String())
	assert.Equal(t, "unknown", TxState(42).String())
}
