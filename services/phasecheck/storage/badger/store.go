// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"log/slog"
	"sort"
	"time"

	"github.com/AleutianAI/obcheck/pkg/validation"
	"github.com/AleutianAI/obcheck/services/phasecheck/snapshot"
	"github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrNotFound is returned when no snapshot has the requested name.
	ErrNotFound = errors.New("snapshot not found")

	// ErrInvalidName is returned for empty or malformed snapshot names.
	ErrInvalidName = errors.New("invalid snapshot name")

	// ErrCorrupted is returned when a stored entry fails its checksum.
	ErrCorrupted = errors.New("snapshot entry corrupted (CRC mismatch)")
)

const keyPrefix = "snapshot:"

// Entry is the stored form of a snapshot.
type Entry struct {
	Name     string             `json:"name"`
	SavedAt  time.Time          `json:"saved_at"`
	Document *snapshot.Document `json:"document"`
}

// Info summarizes a stored snapshot.
type Info struct {
	Name       string    `json:"name"`
	SavedAt    time.Time `json:"saved_at"`
	Objects    int       `json:"objects"`
	Assemblies int       `json:"assemblies"`
}

// SnapshotStore keeps named snapshots in BadgerDB.
//
// Entries are JSON prefixed with a 4-byte CRC32 of the JSON.
//
// Thread Safety: Safe for concurrent use.
type SnapshotStore struct {
	db     *DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSnapshotStore creates a store over an open database.
func NewSnapshotStore(db *DB, logger *slog.Logger) *SnapshotStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotStore{db: db, logger: logger, now: time.Now}
}

func snapshotKey(name string) []byte {
	return []byte(keyPrefix + name)
}

func checkName(name string) error {
	if err := validation.ValidateSnapshotName(name); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidName, err)
	}
	return nil
}

// Save validates doc and stores it under name, replacing any previous entry.
//
// Description:
//
//	The document's references are resolved before writing, so a stored
//	snapshot always builds.
//
// Inputs:
//   - ctx: Context for cancellation and tracing.
//   - name: Printable ASCII, at most 128 characters.
//   - doc: The snapshot document.
//
// Outputs:
//   - error: ErrInvalidName, a snapshot build error, or a storage error.
func (s *SnapshotStore) Save(ctx context.Context, name string, doc *snapshot.Document) error {
	ctx, span := otel.Tracer("obcheck.storage").Start(ctx, "snapshots.Save",
		trace.WithAttributes(attribute.String("name", name)),
	)
	defer span.End()

	if err := checkName(name); err != nil {
		span.SetStatus(codes.Error, "invalid name")
		return err
	}
	if _, err := snapshot.Build(doc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid snapshot")
		return err
	}

	data, err := encodeEntry(Entry{Name: name, SavedAt: s.now().UTC(), Document: doc})
	if err != nil {
		return err
	}

	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(snapshotKey(name), data)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return fmt.Errorf("write snapshot %s: %w", name, err)
	}

	span.SetAttributes(attribute.Int("entry_bytes", len(data)))
	s.logger.Debug("snapshot saved",
		slog.String("name", name),
		slog.Int("objects", len(doc.Objects)),
		slog.Int("bytes", len(data)))
	return nil
}

// Load returns the entry stored under name.
func (s *SnapshotStore) Load(ctx context.Context, name string) (*Entry, error) {
	ctx, span := otel.Tracer("obcheck.storage").Start(ctx, "snapshots.Load",
		trace.WithAttributes(attribute.String("name", name)),
	)
	defer span.End()

	if err := checkName(name); err != nil {
		return nil, err
	}

	var entry *Entry
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			e, err := decodeEntry(val)
			if err != nil {
				return err
			}
			entry = e
			return nil
		})
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return entry, nil
}

// List returns every stored snapshot, sorted by name.
func (s *SnapshotStore) List(ctx context.Context) ([]Info, error) {
	ctx, span := otel.Tracer("obcheck.storage").Start(ctx, "snapshots.List")
	defer span.End()

	var out []Info
	prefix := []byte(keyPrefix)
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				e, err := decodeEntry(val)
				if err != nil {
					return err
				}
				info := Info{Name: e.Name, SavedAt: e.SavedAt}
				if e.Document != nil {
					info.Objects = len(e.Document.Objects)
					info.Assemblies = len(e.Document.Assemblies)
				}
				out = append(out, info)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	span.SetAttributes(attribute.Int("count", len(out)))
	return out, nil
}

// Delete removes the snapshot stored under name.
func (s *SnapshotStore) Delete(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(snapshotKey(name)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrNotFound, name)
			}
			return err
		}
		return txn.Delete(snapshotKey(name))
	})
}

// encodeEntry encodes an entry as [4-byte CRC][json].
func encodeEntry(e Entry) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	out := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(out[:4], crc32.ChecksumIEEE(body))
	copy(out[4:], body)
	return out, nil
}

func decodeEntry(data []byte) (*Entry, error) {
	if len(data) < 5 {
		return nil, fmt.Errorf("%w: entry too short", ErrCorrupted)
	}
	stored := binary.BigEndian.Uint32(data[:4])
	body := data[4:]
	if computed := crc32.ChecksumIEEE(body); stored != computed {
		return nil, fmt.Errorf("%w: stored=%08x computed=%08x", ErrCorrupted, stored, computed)
	}
	var e Entry
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupted, err)
	}
	return &e, nil
}
