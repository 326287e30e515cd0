package storage

import (
	"cmp"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// Key prefixes for BadgerDB storage organization
// Using single-byte prefixes for efficiency
const (
	prefixCollection = byte(0x01) // collections:collectionID -> CollectionRecord
	prefixObject     = byte(0x02) // objects:objectID -> ObjectRecord
	prefixScene      = byte(0x03) // scenes:seq -> SceneRecord
	prefixMeta       = byte(0x04) // meta:name -> raw bytes
)

var digestKey = []byte{prefixMeta, 'd', 'i', 'g', 'e', 's', 't'}

// BadgerEngine persists the snapshot in BadgerDB.
//
// Key Structure:
//   - Collections: 0x01 + collectionID -> JSON(CollectionRecord)
//   - Objects: 0x02 + objectID -> JSON(ObjectRecord)
//   - Scenes: 0x03 + big-endian seq -> JSON(SceneRecord)
//   - Digest: 0x04 + "digest" -> BLAKE2b-256 of the records
//
// Records carry their list position (Seq), so Load restores the saved order
// regardless of key order. Save replaces every record in one transaction.
type BadgerEngine struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
}

// BadgerOptions configures the BadgerDB engine.
type BadgerOptions struct {
	// DataDir is the directory for storing data files.
	// Required unless InMemory is set.
	DataDir string

	// InMemory runs BadgerDB in memory-only mode.
	// Useful for testing. Data is not persisted.
	InMemory bool

	// SyncWrites forces fsync after each write.
	SyncWrites bool

	// Logger for BadgerDB internal logging.
	// If nil, BadgerDB logging is disabled.
	Logger badger.Logger

	// Passphrase enables encryption at rest. The key is derived with
	// DeriveKey and a salt kept in DataDir. Ignored for InMemory.
	Passphrase string

	// KDFIterations overrides DefaultKDFIterations.
	KDFIterations int
}

// NewBadgerEngine opens (or creates) a persistent engine in dataDir.
func NewBadgerEngine(dataDir string) (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{DataDir: dataDir})
}

// NewBadgerEngineInMemory creates an in-memory BadgerDB for testing.
func NewBadgerEngineInMemory() (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{InMemory: true})
}

// NewBadgerEngineWithOptions creates a BadgerEngine with custom configuration.
func NewBadgerEngineWithOptions(opts BadgerOptions) (*BadgerEngine, error) {
	dir := opts.DataDir
	if opts.InMemory {
		dir = ""
	}
	badgerOpts := badger.DefaultOptions(dir).
		WithInMemory(opts.InMemory).
		WithSyncWrites(opts.SyncWrites).
		WithLogger(opts.Logger)

	if opts.Passphrase != "" && !opts.InMemory {
		salt, err := LoadOrCreateSalt(dir)
		if err != nil {
			return nil, err
		}
		badgerOpts = badgerOpts.WithEncryptionKey(DeriveKey(opts.Passphrase, salt, opts.KDFIterations))
	}

	// Scene snapshots are small; keep the footprint low.
	badgerOpts = badgerOpts.
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithBlockCacheSize(16 << 20).
		WithIndexCacheSize(8 << 20)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}
	return &BadgerEngine{db: db}, nil
}

// ============================================================================
// Key encoding helpers
// ============================================================================

func collectionKey(id string) []byte {
	return append([]byte{prefixCollection}, id...)
}

func objectKey(id string) []byte {
	return append([]byte{prefixObject}, id...)
}

func sceneKey(seq int) []byte {
	key := make([]byte, 1, 5)
	key[0] = prefixScene
	return binary.BigEndian.AppendUint32(key, uint32(seq))
}

// ============================================================================
// Engine
// ============================================================================

// Save implements Engine.
func (b *BadgerEngine) Save(ctx context.Context, snap *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored, err := prepare(snap)
	if err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrStorageClosed
	}

	return b.db.Update(func(txn *badger.Txn) error {
		for _, prefix := range []byte{prefixCollection, prefixObject, prefixScene, prefixMeta} {
			if err := deleteWithPrefix(txn, []byte{prefix}); err != nil {
				return err
			}
		}

		for _, rec := range stored.Scenes {
			if err := setJSON(txn, sceneKey(rec.Seq), rec); err != nil {
				return err
			}
		}
		for _, rec := range stored.Collections {
			if err := setJSON(txn, collectionKey(rec.ID), rec); err != nil {
				return err
			}
		}
		for _, rec := range stored.Objects {
			if err := setJSON(txn, objectKey(rec.ID), rec); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return txn.Set(digestKey, stored.Digest)
	})
}

// Load implements Engine.
func (b *BadgerEngine) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrStorageClosed
	}

	snap := &Snapshot{}
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(digestKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if snap.Digest, err = item.ValueCopy(nil); err != nil {
			return err
		}

		if err := scanPrefix(ctx, txn, prefixScene, func(data []byte) error {
			var rec SceneRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				return err
			}
			snap.Scenes = append(snap.Scenes, rec)
			return nil
		}); err != nil {
			return err
		}
		if err := scanPrefix(ctx, txn, prefixCollection, func(data []byte) error {
			var rec CollectionRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				return err
			}
			snap.Collections = append(snap.Collections, rec)
			return nil
		}); err != nil {
			return err
		}
		return scanPrefix(ctx, txn, prefixObject, func(data []byte) error {
			var rec ObjectRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				return err
			}
			snap.Objects = append(snap.Objects, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(snap.Scenes, func(a, b SceneRecord) int { return cmp.Compare(a.Seq, b.Seq) })
	slices.SortStableFunc(snap.Collections, func(a, b CollectionRecord) int { return cmp.Compare(a.Seq, b.Seq) })
	slices.SortStableFunc(snap.Objects, func(a, b ObjectRecord) int { return cmp.Compare(a.Seq, b.Seq) })

	if err := snap.VerifyDigest(); err != nil {
		return nil, err
	}
	return snap, nil
}

// Close closes the database. Closing twice is a no-op.
func (b *BadgerEngine) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

// Sync forces a sync of all data to disk.
func (b *BadgerEngine) Sync() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrStorageClosed
	}
	return b.db.Sync()
}

// ZapLogger routes BadgerDB's internal logging to log. Badger is chatty at
// info level, so its info and debug output is logged at debug.
func ZapLogger(log *zap.Logger) badger.Logger {
	return badgerLogger{log.Named("badger").WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(format string, args ...any)   { l.s.Errorf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...any) { l.s.Warnf(format, args...) }
func (l badgerLogger) Infof(format string, args ...any)    { l.s.Debugf(format, args...) }
func (l badgerLogger) Debugf(format string, args ...any)   { l.s.Debugf(format, args...) }

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	return txn.Set(key, data)
}

// deleteWithPrefix deletes every key starting with prefix.
func deleteWithPrefix(txn *badger.Txn, prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	var keys [][]byte
	it := txn.NewIterator(opts)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, key := range keys {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

func scanPrefix(ctx context.Context, txn *badger.Txn, prefix byte, fn func(data []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte{prefix}
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := it.Item().Value(func(val []byte) error {
			if err := fn(val); err != nil {
				return fmt.Errorf("%w: key %x: %v", ErrInvalidData, it.Item().Key(), err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
