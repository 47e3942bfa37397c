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
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
)

// BadgerConfig holds configuration for the durable history store.
type BadgerConfig struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory.
	Path string

	// InMemory enables in-memory mode (no disk persistence). Useful for
	// testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	// Default: true for production, false for testing.
	SyncWrites bool

	// Logger is the logger for BadgerDB internals. If nil, BadgerDB's
	// own logging is disabled.
	Logger *slog.Logger
}

// DefaultBadgerConfig returns production defaults: durable synchronous
// writes at the given path.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{Path: path, SyncWrites: true}
}

// InMemoryBadgerConfig returns a configuration for tests: in-memory,
// no sync.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore is a durable Store over BadgerDB.
//
// Keys are "h/{resourceID}/{seq}" where seq is a zero-padded global
// counter, so a prefix scan per resource yields records oldest first.
//
// # Thread Safety
//
// Safe for concurrent use; BadgerDB transactions provide isolation and
// the sequence counter is atomic.
type BadgerStore struct {
	db     *badger.DB
	seq    atomic.Uint64
	logger *slog.Logger
}

// OpenBadgerStore opens (creating if necessary) a history database.
//
// The returned store must be closed with Close to flush pending writes.
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("badger history store: path required")
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(cfg.SyncWrites)
	}
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &BadgerStore{db: db, logger: logger.With("component", "history.BadgerStore")}
	if err := s.restoreSeq(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// restoreSeq seeds the sequence counter past every existing key so
// restarts never reuse a sequence number.
func (s *BadgerStore) restoreSeq() error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte("h/")})
		defer it.Close()
		var count uint64
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		s.seq.Store(count)
		return nil
	})
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) key(resourceID string) []byte {
	return []byte(fmt.Sprintf("h/%s/%020d", resourceID, s.seq.Add(1)))
}

// Append implements Store.
func (s *BadgerStore) Append(ctx context.Context, rec ChangeRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding history record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key(rec.ResourceID), data)
	})
}

// BulkAppend implements Store. All records land in one BadgerDB
// transaction: a committed batch's history is recorded all-or-nothing.
func (s *BadgerStore) BulkAppend(ctx context.Context, recs []ChangeRecord) error {
	if len(recs) == 0 {
		return ErrEmptyAppend
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, rec := range recs {
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("encoding history record for %s: %w", rec.ResourceID, err)
			}
			if err := txn.Set(s.key(rec.ResourceID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// ForResource implements Store.
func (s *BadgerStore) ForResource(ctx context.Context, resourceID string) ([]ChangeRecord, error) {
	prefix := []byte("h/" + resourceID + "/")
	var out []ChangeRecord

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec ChangeRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return fmt.Errorf("decoding history record: %w", err)
				}
				// Ids are opaque and may contain the key separator, so
				// the prefix scan can overmatch (id "a" also matching
				// "a/b"). The decoded record is authoritative.
				if rec.ResourceID != resourceID {
					return nil
				}
				out = append(out, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
