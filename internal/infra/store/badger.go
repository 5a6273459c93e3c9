package store

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
)

const gcInterval = 5 * time.Minute

type badgerConfig struct {
	Path               string `mapstructure:"path" validate:"required"`
	SyncWrites         *bool  `mapstructure:"sync_writes" default:"true"`
	ValueLogFileSizeMB int64  `mapstructure:"value_log_file_size_mb" default:"16" validate:"min=1"`
}

type badgerStore struct {
	db     *badger.DB
	stopGC chan struct{}
	wg     sync.WaitGroup
}

func newBadgerStore(settings map[string]any) (*badgerStore, error) {
	var cfg badgerConfig
	if err := mapstructure.Decode(settings, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode badger settings")
	}
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to apply badger defaults")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid badger settings")
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts.Logger = nil
	opts.SyncWrites = *cfg.SyncWrites
	opts.ValueLogFileSize = cfg.ValueLogFileSizeMB << 20

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open badger store at %s", cfg.Path)
	}

	s := &badgerStore{
		db:     db,
		stopGC: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.runGC()

	return s, nil
}

func (s *badgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, errors.Wrapf(err, "failed to read key %s", key)
	}
	return value, nil
}

func (s *badgerStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return errors.Wrapf(err, "failed to write key %s", key)
	}
	return nil
}

func (s *badgerStore) Delete(ctx context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return errors.Wrapf(err, "failed to delete key %s", key)
	}
	return nil
}

func (s *badgerStore) Take(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return txn.Delete([]byte(key))
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, errors.Wrapf(err, "failed to take key %s", key)
	}
	return value, nil
}

func (s *badgerStore) Close() error {
	close(s.stopGC)
	s.wg.Wait()
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, "failed to close badger store")
	}
	return nil
}

// runGC reclaims value log space periodically. Badger does not run GC on
// its own.
func (s *badgerStore) runGC() {
	defer s.wg.Done()

	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			for {
				err := s.db.RunValueLogGC(0.5)
				if err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						zlog.Debug().Msgf("badger gc skipped: error=%v", err)
					}
					break
				}
			}
		}
	}
}
