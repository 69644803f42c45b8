/*
Package storage provides BoltDB-backed persistence for the catalogue.

The storage package implements the Store interface on top of bbolt. Every
record lives in one bucket, keyed by its id, encoded as deterministic CBOR.
Reads run in db.View, writes in db.Update, so each operation is one ACID
transaction and concurrent readers see a consistent snapshot.

# Architecture

	┌──────────────────── LIBRARY STORAGE ─────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐           │
	│  │            BoltStore                        │           │
	│  │  - File:   <dataDir>/library.db             │           │
	│  │  - Lock:   <dataDir>/library.lock (flock)   │           │
	│  │  - Bucket: LIBRARY (id → CBOR record)       │           │
	│  └──────────────────┬─────────────────────────┘           │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐           │
	│  │        Startup                              │           │
	│  │  1. flock library.lock (fail if held)       │           │
	│  │  2. copy library.db → backup/ (rotate)      │           │
	│  │  3. bolt.Open + CreateBucketIfNotExists     │           │
	│  └──────────────────┬─────────────────────────┘           │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐           │
	│  │        Interchange                          │           │
	│  │  Export: all records → library.json         │           │
	│  │  Import: library.json → PutAll (one txn)    │           │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────────┘

# Backups

When library.db already exists, NewBoltStore copies it to
backup/library-YYYYMMDD-HHMMSS.db before opening it. Once Options.BackupKeep
backups exist the oldest (by modification time) are removed first, so at
most BackupKeep copies remain. A failed backup is logged and startup goes on.

# Errors

	ErrNotFound          Get on an absent id
	ErrCodec             a value or library.json fails to decode
	ErrStorage           bbolt, lock, or file failures
	ErrInvalidOperation  Put of a record without an id

List is all-or-nothing: one undecodable value fails the whole call. Delete of
an absent id succeeds.

# Usage

	store, err := storage.NewBoltStore(dataDir, storage.DefaultOptions())
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.WarmUp(); err != nil {
		return err
	}
	rec, err := store.Get(id)
*/
package storage
