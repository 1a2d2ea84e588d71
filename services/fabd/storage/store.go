// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage persists network documents in BadgerDB.
//
// Each network is stored under its name as a JSON Record holding the
// document source. Every Put bumps the record's revision, which the plan
// cache uses as part of its key. Revisions never repeat for a name, even
// across a Delete: the last issued revision is kept under its own key.
package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-playground/validator/v10"
)

const (
	keyPrefix      = "net/"
	revisionPrefix = "rev/"
)

// maxConflictRetries bounds retries of a Put that lost a write race.
const maxConflictRetries = 5

var (
	// ErrNotFound is returned when no network has the requested name.
	ErrNotFound = errors.New("network not found")

	// ErrInvalidName is returned for names that cannot be used as keys.
	ErrInvalidName = errors.New("invalid network name")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store is closed")
)

// Record is one stored network document.
type Record struct {
	Name      string    `json:"name"`
	Format    string    `json:"format"`
	Body      []byte    `json:"body"`
	Revision  uint64    `json:"revision"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is a BadgerDB-backed network store.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db *badger.DB
	gc *gcRunner
}

var nameValidate = validator.New()

// ValidateName reports whether name can be used as a network name:
// 1 to 128 printable ASCII characters without '/' or spaces.
func ValidateName(name string) error {
	if err := nameValidate.Var(name, "required,max=128,printascii,excludesall=/ "); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Open opens (or creates) a store.
func Open(cfg Config) (*Store, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gc = startGC(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
	}
	return s, nil
}

// OpenInMemory opens a store that lives only as long as the process.
func OpenInMemory() (*Store, error) {
	return Open(Config{InMemory: true})
}

// Close stops background GC and closes the database.
func (s *Store) Close() error {
	if s.gc != nil {
		s.gc.stop()
		s.gc = nil
	}
	return s.db.Close()
}

// Put stores rec under rec.Name and returns the stored record.
//
// Description:
//
//	The revision is one more than the last revision issued for the same
//	name, including deleted ones (1 for a name never stored);
//	rec.Revision and rec.UpdatedAt are ignored.
//	A transaction conflict with a concurrent Put is retried.
//
// Outputs:
//
//	Record - The stored record with Revision and UpdatedAt set.
//	error - ErrInvalidName, context errors, or database errors.
func (s *Store) Put(ctx context.Context, rec Record) (Record, error) {
	if err := ValidateName(rec.Name); err != nil {
		return Record{}, err
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return Record{}, fmt.Errorf("context cancelled: %w", err)
		}

		stored := rec
		err := s.db.Update(func(txn *badger.Txn) error {
			last, err := lastRevision(txn, rec.Name)
			if err != nil {
				return err
			}
			stored.Revision = last + 1
			stored.UpdatedAt = time.Now().UTC()

			data, err := json.Marshal(stored)
			if err != nil {
				return fmt.Errorf("encode record: %w", err)
			}
			if err := txn.Set(key(rec.Name), data); err != nil {
				return err
			}
			return txn.Set(revisionKey(rec.Name), binary.BigEndian.AppendUint64(nil, stored.Revision))
		})
		if errors.Is(err, badger.ErrConflict) && attempt < maxConflictRetries {
			continue
		}
		if err != nil {
			return Record{}, wrapClosed(err)
		}
		return stored, nil
	}
}

// Get returns the record stored under name, or ErrNotFound.
func (s *Store) Get(ctx context.Context, name string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, fmt.Errorf("context cancelled: %w", err)
	}
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = getRecord(txn, name)
		return err
	})
	if err != nil {
		return Record{}, wrapClosed(err)
	}
	return rec, nil
}

// List returns every record in name order.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	var records []Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, wrapClosed(err)
	}
	return records, nil
}

// Delete removes the record stored under name, or returns ErrNotFound.
// The name's revision counter is kept.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key(name)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrNotFound, name)
			}
			return err
		}
		return txn.Delete(key(name))
	})
	return wrapClosed(err)
}

func getRecord(txn *badger.Txn, name string) (Record, error) {
	item, err := txn.Get(key(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return Record{}, err
	}
	var rec Record
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return Record{}, fmt.Errorf("decode record %s: %w", name, err)
	}
	return rec, nil
}

// lastRevision returns the last revision issued for name, or 0.
func lastRevision(txn *badger.Txn, name string) (uint64, error) {
	item, err := txn.Get(revisionKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		// Records written before the counter existed.
		prev, err := getRecord(txn, name)
		if errors.Is(err, ErrNotFound) {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		return prev.Revision, nil
	}
	if err != nil {
		return 0, err
	}
	var rev uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("revision counter %s: %d bytes", name, len(val))
		}
		rev = binary.BigEndian.Uint64(val)
		return nil
	})
	return rev, err
}

func revisionKey(name string) []byte {
	return []byte(revisionPrefix + name)
}

func key(name string) []byte {
	return []byte(keyPrefix + name)
}

func wrapClosed(err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return err
}
