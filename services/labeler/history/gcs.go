// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// SnapshotSink receives a copy of each committed batch's history for
// off-box retention (compliance export, enterprise audit trails).
type SnapshotSink interface {
	Snapshot(ctx context.Context, batchID string, recs []ChangeRecord) error
}

// GCSExporter uploads batch history snapshots to a GCS bucket as
// "batches/{batchID}.json".
type GCSExporter struct {
	client *storage.Client
	bucket string
}

// NewGCSExporter creates a GCSExporter.
//
// # Inputs
//
//   - ctx: Context for client construction.
//   - bucket: Destination bucket name.
//   - opts: Client options, e.g. option.WithCredentialsFile(path).
//     Defaults to application default credentials when empty.
func NewGCSExporter(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSExporter, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}
	return &GCSExporter{client: client, bucket: bucket}, nil
}

// Snapshot implements SnapshotSink.
func (e *GCSExporter) Snapshot(ctx context.Context, batchID string, recs []ChangeRecord) error {
	data, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("encoding batch snapshot %s: %w", batchID, err)
	}

	obj := e.client.Bucket(e.bucket).Object("batches/" + batchID + ".json")
	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	w.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing batch snapshot %s to gs://%s: %w", batchID, e.bucket, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing GCS writer for batch %s: %w", batchID, err)
	}
	return nil
}

// Close releases the underlying GCS client.
func (e *GCSExporter) Close() error {
	return e.client.Close()
}

// snapshotStore decorates a Store with best-effort batch snapshots.
type snapshotStore struct {
	Store
	sink    SnapshotSink
	logger  *slog.Logger
	timeout time.Duration
}

// WithSnapshots wraps a Store so every BulkAppend also pushes a batch
// snapshot to sink. Snapshot failures are logged and do not fail the
// append: the durable local store remains the source of truth.
func WithSnapshots(s Store, sink SnapshotSink, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &snapshotStore{
		Store:   s,
		sink:    sink,
		logger:  logger.With("component", "history.snapshotStore"),
		timeout: 30 * time.Second,
	}
}

// BulkAppend implements Store.
func (s *snapshotStore) BulkAppend(ctx context.Context, recs []ChangeRecord) error {
	if err := s.Store.BulkAppend(ctx, recs); err != nil {
		return err
	}

	batchID := ""
	if len(recs) > 0 {
		batchID = recs[0].BatchID
	}
	if batchID == "" {
		batchID = fmt.Sprintf("adhoc-%d", time.Now().UnixNano())
	}

	snapCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.sink.Snapshot(snapCtx, batchID, recs); err != nil {
		s.logger.Warn("batch history snapshot failed",
			"batch_id", batchID,
			"record_count", len(recs),
			"error", err,
		)
	}
	return nil
}
