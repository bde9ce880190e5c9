package cache

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"
)

// FileName is the default name of the cache database.
const FileName = "cache.db"

// SchemaVersion identifies the Entry layout. Databases written with another
// version are ignored on Load and rewritten on Persist.
const SchemaVersion = "1"

const (
	bucketEntries = "entries"
	bucketMeta    = "meta"
	keySchema     = "schema"
)

var (
	// ErrCacheLoad indicates the database could not be opened or read. Callers
	// treat it as an empty cache.
	ErrCacheLoad = errors.New("failed to load cache")
	// ErrCachePersist indicates the database could not be written.
	ErrCachePersist = errors.New("failed to persist cache")
)

// Entry records that a file with ContentHash was already formatted under the
// configuration identified by ConfigHash.
type Entry struct {
	ContentHash string    `msgpack:"content"`
	ConfigHash  string    `msgpack:"config"`
	Version     string    `msgpack:"version"`
	CheckedAt   time.Time `msgpack:"checkedAt"`
}

// Store is a "known clean" index kept in memory during a run and persisted
// to a bbolt database. Check and Update are safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	index   map[string]Entry
	dirty   map[string]struct{}
	version string
	logger  *slog.Logger
	timeout time.Duration
}

// NewStore creates an empty store. version is the tool version; entries
// written by another non-dev version never hit.
func NewStore(loggerHandler slog.Handler, version string) *Store {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	if version == "" {
		version = "dev"
	}
	return &Store{
		index:   make(map[string]Entry),
		dirty:   make(map[string]struct{}),
		version: version,
		logger:  slog.New(loggerHandler).With(slog.String("component", "cache")),
		timeout: time.Second,
	}
}

func (s *Store) open(path string, readOnly bool) (*bolt.DB, error) {
	return bolt.Open(path, 0o600, &bolt.Options{Timeout: s.timeout, ReadOnly: readOnly})
}

// Load reads every entry from the database at path. A missing file is an
// empty cache; a schema mismatch is logged and leaves the cache empty.
func (s *Store) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = make(map[string]Entry)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		s.logger.Debug("Cache file not found, starting empty", "path", path)
		return nil
	}
	db, err := s.open(path, true)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrCacheLoad, path, err)
	}
	defer db.Close()

	err = db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(bucketMeta))
		if meta == nil || string(meta.Get([]byte(keySchema))) != SchemaVersion {
			s.logger.Warn("Cache schema mismatch, ignoring existing entries", "path", path)
			return nil
		}
		entries := tx.Bucket([]byte(bucketEntries))
		if entries == nil {
			return nil
		}
		return entries.ForEach(func(k, v []byte) error {
			var e Entry
			if err := msgpack.Unmarshal(v, &e); err != nil {
				s.logger.Debug("Skipping undecodable cache entry", "key", string(k), "error", err.Error())
				return nil
			}
			s.index[string(k)] = e
			return nil
		})
	})
	if err != nil {
		s.index = make(map[string]Entry)
		return fmt.Errorf("%w: read %s: %w", ErrCacheLoad, path, err)
	}
	s.logger.Debug("Cache loaded", "path", path, "entries", len(s.index))
	return nil
}

// Check reports whether filePath is known to be clean for contentHash under
// configHash.
func (s *Store) Check(filePath, contentHash, configHash string) bool {
	s.mu.RLock()
	e, ok := s.index[filePath]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Version != s.version && e.Version != "dev" && s.version != "dev" {
		return false
	}
	return e.ContentHash == contentHash && e.ConfigHash == configHash
}

// Update records filePath as clean.
func (s *Store) Update(filePath, contentHash, configHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index[filePath] = Entry{
		ContentHash: contentHash,
		ConfigHash:  configHash,
		Version:     s.version,
		CheckedAt:   time.Now().UTC(),
	}
	s.dirty[filePath] = struct{}{}
	return nil
}

// Len returns the number of entries held in memory.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// Persist writes entries updated since Load to the database at path in a
// single transaction.
func (s *Store) Persist(path string) error {
	s.mu.RLock()
	pending := make(map[string][]byte, len(s.dirty))
	var encErr error
	for k := range s.dirty {
		data, err := msgpack.Marshal(s.index[k])
		if err != nil {
			encErr = err
			break
		}
		pending[k] = data
	}
	s.mu.RUnlock()
	if encErr != nil {
		return fmt.Errorf("%w: encode entry: %w", ErrCachePersist, encErr)
	}
	if len(pending) == 0 {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrCachePersist, err)
	}
	db, err := s.open(path, false)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrCachePersist, path, err)
	}
	defer db.Close()

	err = db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists([]byte(bucketMeta))
		if err != nil {
			return err
		}
		if string(meta.Get([]byte(keySchema))) != SchemaVersion {
			if tx.Bucket([]byte(bucketEntries)) != nil {
				if err := tx.DeleteBucket([]byte(bucketEntries)); err != nil {
					return err
				}
			}
			if err := meta.Put([]byte(keySchema), []byte(SchemaVersion)); err != nil {
				return err
			}
		}
		entries, err := tx.CreateBucketIfNotExists([]byte(bucketEntries))
		if err != nil {
			return err
		}
		for k, v := range pending {
			if err := entries.Put([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrCachePersist, path, err)
	}

	s.mu.Lock()
	for k := range pending {
		delete(s.dirty, k)
	}
	s.mu.Unlock()
	s.logger.Debug("Cache persisted", "path", path, "written", len(pending))
	return nil
}
