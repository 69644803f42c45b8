package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	bolt "go.etcd.io/bbolt"

	"github.com/RhyVis/meta-manager/pkg/log"
	"github.com/RhyVis/meta-manager/pkg/types"
)

const (
	// DBFileName is the store file inside the data directory
	DBFileName = "library.db"

	// LockFileName guards the store against a second process
	LockFileName = "library.lock"

	// ExportFileName is the JSON interchange file inside the data directory
	ExportFileName = "library.json"

	// BackupDirName holds rotated copies of the store file
	BackupDirName = "backup"

	// DefaultBackupKeep is how many backups survive rotation
	DefaultBackupKeep = 4
)

var (
	// Bucket names
	bucketLibrary = []byte("LIBRARY")

	// warmUpKey is read by WarmUp; it never exists
	warmUpKey = []byte("fresh!")
)

// Options configure a BoltStore
type Options struct {
	// BackupKeep bounds the number of rotated backups; 0 disables backups
	BackupKeep int

	// Timeout for acquiring the bbolt file lock
	Timeout time.Duration
}

// DefaultOptions returns the options used by the CLI
func DefaultOptions() Options {
	return Options{
		BackupKeep: DefaultBackupKeep,
		Timeout:    time.Second,
	}
}

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db      *bolt.DB
	lock    *flock.Flock
	dataDir string
}

// NewBoltStore opens (creating if needed) the store in dataDir. The
// previous store file is backed up before it is opened.
func NewBoltStore(dataDir string, opts Options) (*BoltStore, error) {
	logger := log.WithComponent("storage")

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating data dir %s: %v", types.ErrStorage, dataDir, err)
	}

	lock := flock.New(filepath.Join(dataDir, LockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("%w: acquiring store lock: %v", types.ErrStorage, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: library in %s is in use by another process", types.ErrStorage, dataDir)
	}

	dbPath := filepath.Join(dataDir, DBFileName)
	backupDir := filepath.Join(dataDir, BackupDirName)
	backup, err := rotateBackups(dbPath, backupDir, opts.BackupKeep, types.Now())
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to back up store, continuing")
	} else if backup != "" {
		logger.Info().Str("backup", backup).Msg("Backed up store")
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Second
	}
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: timeout})
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("%w: failed to open database: %v", types.ErrStorage, err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketLibrary); err != nil {
			return fmt.Errorf("%w: failed to create bucket %s: %v", types.ErrStorage, bucketLibrary, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		_ = lock.Unlock()
		return nil, err
	}

	logger.Debug().Str("path", dbPath).Msg("Opened store")
	return &BoltStore{db: db, lock: lock, dataDir: dataDir}, nil
}

// DataDir returns the directory holding the store
func (s *BoltStore) DataDir() string {
	return s.dataDir
}

// Close closes the database and releases the lock
func (s *BoltStore) Close() error {
	err := s.db.Close()
	if uerr := s.lock.Unlock(); uerr != nil && err == nil {
		err = uerr
	}
	if err != nil {
		return fmt.Errorf("%w: closing store: %v", types.ErrStorage, err)
	}
	return nil
}

// WarmUp runs a write transaction that touches the bucket so that engine
// faults surface at startup.
func (s *BoltStore) WarmUp() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketLibrary)
		if err != nil {
			return err
		}
		_ = b.Get(warmUpKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: warm-up transaction: %v", types.ErrStorage, err)
	}
	return nil
}

// Record operations
func (s *BoltStore) Put(rec *types.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: entry has no id", types.ErrInvalidOperation)
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	return s.update(func(b *bolt.Bucket) error {
		return b.Put([]byte(rec.ID), data)
	})
}

// PutAll writes every record in a single transaction
func (s *BoltStore) PutAll(recs []*types.Record) error {
	encoded := make(map[string][]byte, len(recs))
	for _, rec := range recs {
		if rec.ID == "" {
			return fmt.Errorf("%w: entry %q has no id", types.ErrInvalidOperation, rec.Title)
		}
		data, err := encodeRecord(rec)
		if err != nil {
			return err
		}
		encoded[rec.ID] = data
	}
	return s.update(func(b *bolt.Bucket) error {
		for id, data := range encoded {
			if err := b.Put([]byte(id), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) Get(id string) (*types.Record, error) {
	var rec *types.Record
	err := s.view(func(b *bolt.Bucket) error {
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: entry %s", types.ErrNotFound, id)
		}
		var err error
		rec, err = decodeRecord([]byte(id), data)
		return err
	})
	return rec, err
}

// List decodes every record. A single undecodable value fails the whole call.
func (s *BoltStore) List() ([]*types.Record, error) {
	var recs []*types.Record
	err := s.view(func(b *bolt.Bucket) error {
		return b.ForEach(func(k, v []byte) error {
			rec, err := decodeRecord(k, v)
			if err != nil {
				return err
			}
			recs = append(recs, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// Delete removes id; deleting an absent id succeeds
func (s *BoltStore) Delete(id string) error {
	return s.update(func(b *bolt.Bucket) error {
		return b.Delete([]byte(id))
	})
}

func (s *BoltStore) Count() (int, error) {
	var n int
	err := s.view(func(b *bolt.Bucket) error {
		n = b.Stats().KeyN
		return nil
	})
	return n, err
}

// ExportPath is where Export writes and Import reads
func (s *BoltStore) ExportPath() string {
	return filepath.Join(s.dataDir, ExportFileName)
}

// Export writes every record to library.json, replacing any earlier export
func (s *BoltStore) Export() (string, error) {
	logger := log.WithComponent("storage")

	recs, err := s.List()
	if err != nil {
		return "", err
	}
	lib := types.Library{Entries: make([]types.Record, 0, len(recs))}
	for _, rec := range recs {
		lib.Entries = append(lib.Entries, *rec)
	}

	data, err := json.MarshalIndent(lib, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: encoding export: %v", types.ErrCodec, err)
	}

	path := s.ExportPath()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("%w: writing %s: %v", types.ErrStorage, tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("%w: replacing %s: %v", types.ErrStorage, path, err)
	}

	logger.Info().Int("entries", len(lib.Entries)).Str("path", path).Msg("Exported library")
	return path, nil
}

// Import upserts every record from library.json in one transaction. It
// reports false when there is no export file.
func (s *BoltStore) Import() (bool, error) {
	logger := log.WithComponent("storage")

	path := s.ExportPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug().Str("path", path).Msg("No export file to import")
			return false, nil
		}
		return false, fmt.Errorf("%w: reading %s: %v", types.ErrStorage, path, err)
	}

	var lib types.Library
	if err := json.Unmarshal(data, &lib); err != nil {
		return false, fmt.Errorf("%w: decoding %s: %v", types.ErrCodec, path, err)
	}

	recs := make([]*types.Record, len(lib.Entries))
	for i := range lib.Entries {
		rec := lib.Entries[i]
		rec.ApplyDefaults()
		recs[i] = &rec
	}
	if err := s.PutAll(recs); err != nil {
		return false, err
	}

	logger.Info().Int("entries", len(recs)).Str("path", path).Msg("Imported library")
	return true, nil
}

// update runs fn in a write transaction on the library bucket
func (s *BoltStore) update(fn func(b *bolt.Bucket) error) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLibrary)
		if b == nil {
			return fmt.Errorf("%w: bucket %s missing", types.ErrStorage, bucketLibrary)
		}
		return fn(b)
	})
	return wrapTxError(err)
}

// view runs fn in a read transaction on the library bucket
func (s *BoltStore) view(fn func(b *bolt.Bucket) error) error {
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLibrary)
		if b == nil {
			return fmt.Errorf("%w: bucket %s missing", types.ErrStorage, bucketLibrary)
		}
		return fn(b)
	})
	return wrapTxError(err)
}

// wrapTxError leaves classified errors alone and marks engine errors as
// storage faults.
func wrapTxError(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{
		types.ErrNotFound, types.ErrStorage, types.ErrCodec, types.ErrInvalidOperation,
	} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", types.ErrStorage, err)
}
