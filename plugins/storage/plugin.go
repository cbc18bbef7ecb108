// Package storage provides the study's indexed durable storage as a
// subordinate service on an embedded badger database. Dependent services
// write through Put and Get once Startup has returned.
package storage

import (
	"context"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/juju/errors"

	"github.com/bft-labs/studyctl/pkg/log"
)

const (
	ErrNotFound = errors.ConstError("storage key not found")
	ErrClosed   = errors.ConstError("storage is not open")
	ErrPurged   = errors.ConstError("storage was cleared")
)

// SchemaVersion is written under schemaKey on every open.
const SchemaVersion = "1"

const schemaKey = "meta:schema"

// Config holds configuration options for the storage service.
type Config struct {
	// Dir is the database directory. Empty keeps everything in memory,
	// which loses data on Shutdown.
	Dir string

	// Logger for storage messages. Default: no-op.
	Logger log.Logger
}

// DefaultConfig returns an in-memory configuration.
func DefaultConfig() Config {
	return Config{}
}

// Service implements study.Service and study.StateClearer.
type Service struct {
	mu     sync.RWMutex
	db     *badger.DB
	dir    string
	logger log.Logger

	// purged rejects writes between Clear and the next Startup.
	purged bool
}

// New creates a closed storage service.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Service{dir: cfg.Dir, logger: logger}
}

func (s *Service) open() (*badger.DB, error) {
	opts := badger.DefaultOptions(s.dir).WithLogger(nil)
	if s.dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Annotatef(err, "opening storage at %q", s.dir)
	}
	return db, nil
}

// Startup opens the database and records the schema version. Starting an
// open service is a no-op.
func (s *Service) Startup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purged = false
	if s.db != nil {
		return nil
	}
	db, err := s.open()
	if err != nil {
		return err
	}
	if err := db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(schemaKey), []byte(SchemaVersion))
	}); err != nil {
		_ = db.Close()
		return errors.Annotate(err, "writing schema version")
	}

	s.db = db
	s.logger.Info("storage opened", log.String("dir", s.dir), log.Bool("in_memory", s.dir == ""))
	return nil
}

// Shutdown closes the database. Closing a service that is not open is a no-op.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.logger.Info("storage closed", log.String("dir", s.dir))
	return errors.Annotate(err, "closing storage")
}

// Put stores value under key. After Clear it fails with ErrPurged until
// the next Startup.
func (s *Service) Put(ctx context.Context, key string, value []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return ErrClosed
	}
	if s.purged {
		return errors.Annotate(ErrPurged, key)
	}
	return errors.Trace(s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	}))
}

// Get returns the value under key, or ErrNotFound.
func (s *Service) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrClosed
	}
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errors.Annotate(ErrNotFound, key)
	}
	return out, errors.Trace(err)
}

// Keys returns every key under prefix in order.
func (s *Service) Keys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrClosed
	}
	p := []byte(prefix)
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = p
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, string(it.Item().Key()))
		}
		return nil
	})
	return keys, errors.Trace(err)
}

// Clear drops all stored data and rejects further writes until the next
// Startup. A closed on-disk database is opened for the duration of the
// call; a closed in-memory one has nothing to clear.
func (s *Service) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purged = true
	db := s.db
	if db == nil {
		if s.dir == "" {
			return nil
		}
		var err error
		if db, err = s.open(); err != nil {
			return err
		}
		defer db.Close()
	}

	if err := db.DropAll(); err != nil {
		return errors.Annotate(err, "clearing storage")
	}
	s.logger.Info("storage cleared", log.String("dir", s.dir))
	return nil
}
