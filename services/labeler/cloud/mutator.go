// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cloud

import (
	"context"
	"log/slog"

	"github.com/AleutianAI/labelops/services/labeler/gateway"
	"github.com/AleutianAI/labelops/services/labeler/transport"
)

// Mutator applies one optimistic-concurrency label replacement to one
// resource, delegating concurrency bounding and transient-failure retry
// to the gateway and retry transport.
//
// # Conflict Resolution
//
// On a version conflict (412) the mutator refetches the resource to
// obtain its current token, then retries the write exactly once with
// the refreshed token. A second conflict surfaces as a fatal
// *ConflictError; there is no unbounded retry loop here.
//
// # Thread Safety
//
// Safe for concurrent use across distinct resources. Each
// ManagedResource is treated as exclusively borrowed for the duration
// of one UpdateLabels call; two concurrent updates of the same resource
// are a caller bug.
type Mutator struct {
	api     API
	gw      *gateway.Gateway
	retrier *transport.Retrier
	logger  *slog.Logger
}

// NewMutator creates a Mutator.
//
// # Inputs
//
//   - api: Remote resource surface.
//   - gw: Bounded-concurrency gateway wrapping every outbound call.
//   - retrier: Transient-failure retry policy. Conflicts are not its
//     business; wire it with IsTransient.
//   - logger: Structured logger; nil falls back to slog.Default.
func NewMutator(api API, gw *gateway.Gateway, retrier *transport.Retrier, logger *slog.Logger) *Mutator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mutator{
		api:     api,
		gw:      gw,
		retrier: retrier,
		logger:  logger.With("component", "cloud.Mutator"),
	}
}

// UpdateLabels replaces the resource's label set with desired.
//
// On success the resource's in-memory Labels and VersionToken reflect
// the server's response; the server mints a new token on every
// successful write, so the old one is dead either way.
//
// # Outputs
//
//   - error: *ConflictError after two conflicting attempts, *AuthError
//     for 401/403, *RemoteError (possibly wrapping retry exhaustion)
//     otherwise. Nil on success.
func (m *Mutator) UpdateLabels(ctx context.Context, r *ManagedResource, desired map[string]string) error {
	if err := r.Validate(); err != nil {
		return err
	}

	state, err := m.write(ctx, r, desired)
	if IsConflict(err) {
		m.logger.Debug("version conflict, refreshing token",
			"resource_id", r.ID,
			"kind", r.Kind.String(),
		)
		fresh, refreshErr := m.read(ctx, r)
		if refreshErr != nil {
			return refreshErr
		}
		r.VersionToken = fresh.VersionToken
		r.Labels = fresh.Labels

		state, err = m.write(ctx, r, desired)
	}
	if err != nil {
		return err
	}

	r.Labels = state.Labels
	r.VersionToken = state.VersionToken
	m.logger.Debug("labels updated",
		"resource_id", r.ID,
		"kind", r.Kind.String(),
		"label_count", len(r.Labels),
	)
	return nil
}

// write performs one label-write attempt through retry and gateway.
// The retrier sits outside the gateway so backoff sleeps do not hold an
// admission slot.
func (m *Mutator) write(ctx context.Context, r *ManagedResource, desired map[string]string) (*LabelState, error) {
	var state *LabelState
	err := m.retrier.Do(ctx, func(ctx context.Context) error {
		return m.gw.Do(ctx, func(ctx context.Context) error {
			var callErr error
			state, callErr = m.api.SetLabels(ctx, r, desired)
			return callErr
		})
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// read refreshes the resource's label state through retry and gateway.
func (m *Mutator) read(ctx context.Context, r *ManagedResource) (*LabelState, error) {
	var state *LabelState
	err := m.retrier.Do(ctx, func(ctx context.Context) error {
		return m.gw.Do(ctx, func(ctx context.Context) error {
			var callErr error
			state, callErr = m.api.GetResource(ctx, r)
			return callErr
		})
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}
