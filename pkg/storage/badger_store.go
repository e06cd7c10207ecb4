package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"contact-scraper/pkg/log"
	"contact-scraper/pkg/models"
	"contact-scraper/pkg/utils"
)

const (
	targetKeyPrefix = "target:"       // Prefix for target URL keys
	checkpointDBDir = "checkpoint_db" // Subdirectory suffix within stateDir
)

// BadgerStore implements CheckpointStore on BadgerDB
type BadgerStore struct {
	db       *badger.DB
	log      *logrus.Entry
	keyCount atomic.Int64
}

// CheckpointPath returns the database directory for a site within stateDir
func CheckpointPath(stateDir, siteKey string) string {
	return filepath.Join(stateDir, utils.SanitizeFilename(siteKey)+"_"+checkpointDBDir)
}

// NewBadgerStore opens the checkpoint database for siteKey.
// Without resume any existing checkpoint is removed first so the run starts clean.
func NewBadgerStore(stateDir, siteKey string, resume bool, logger *logrus.Entry) (*BadgerStore, error) {
	dbPath := CheckpointPath(stateDir, siteKey)
	store := &BadgerStore{log: logger.WithField("db_path", dbPath)}

	if !resume {
		if _, err := os.Stat(dbPath); err == nil {
			store.log.Warn("Resume disabled, removing existing checkpoint")
		}
		if err := os.RemoveAll(dbPath); err != nil {
			return nil, fmt.Errorf("%w: removing checkpoint %s: %w", utils.ErrFilesystem, dbPath, err)
		}
	}

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating checkpoint dir %s: %w", utils.ErrFilesystem, dbPath, err)
	}

	opts := badger.DefaultOptions(dbPath).
		WithLogger(log.NewBadgerLogrusAdapter(logger)).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: opening checkpoint %s: %w", utils.ErrDatabase, dbPath, err)
	}
	store.db = db

	count, err := store.countKeys()
	if err != nil {
		store.log.Warnf("Failed to count checkpoint entries: %v", err)
	}
	store.keyCount.Store(int64(count))

	store.log.WithFields(logrus.Fields{"resume": resume, "entries": count}).Info("Checkpoint database opened")
	return store, nil
}

func (s *BadgerStore) countKeys() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(targetKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

const maxConflictRetries = 10

// dbUpdate retries db.Update on transaction conflicts
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := 0; i < maxConflictRetries; i++ {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("Transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// CheckTargetStatus implements TargetStore
func (s *BadgerStore) CheckTargetStatus(targetURL string) (models.TargetStatus, *models.TargetDBEntry, error) {
	status := models.TargetStatusNotFound
	var entry *models.TargetDBEntry
	key := []byte(targetKeyPrefix + targetURL)

	err := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return errGet
		}
		return item.Value(func(val []byte) error {
			var decoded models.TargetDBEntry
			if len(val) == 0 || json.Unmarshal(val, &decoded) != nil || !decoded.Status.IsValid() {
				// Unreadable entries are reprocessed
				s.log.Warnf("Unreadable checkpoint entry for '%s', treating as pending", targetURL)
				status = models.TargetStatusPending
				return nil
			}
			entry = &decoded
			status = decoded.Status
			return nil
		})
	})
	if err != nil {
		s.log.Errorf("DB View error for '%s': %v", targetURL, err)
		return models.TargetStatusDBError, nil, fmt.Errorf("%w: reading '%s': %w", utils.ErrDatabase, targetURL, err)
	}
	return status, entry, nil
}

// UpdateTargetStatus implements TargetStore
func (s *BadgerStore) UpdateTargetStatus(targetURL string, entry *models.TargetDBEntry) error {
	key := []byte(targetKeyPrefix + targetURL)
	entryBytes, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: encoding entry for '%s': %w", utils.ErrParsing, targetURL, err)
	}

	isNew := false
	err = s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		isNew = errors.Is(errGet, badger.ErrKeyNotFound)
		return txn.SetEntry(badger.NewEntry(key, entryBytes))
	})
	if err != nil {
		s.log.Errorf("DB Update error for '%s': %v", targetURL, err)
		return fmt.Errorf("%w: writing '%s': %w", utils.ErrDatabase, targetURL, err)
	}
	if isNew {
		s.keyCount.Add(1)
	}
	s.log.Debugf("Checkpointed '%s' as %s", targetURL, entry.Status)
	return nil
}

// GetTargetCount implements StoreAdmin
func (s *BadgerStore) GetTargetCount() (int, error) {
	return int(s.keyCount.Load()), nil
}

// forEach calls fn for every checkpointed target until fn or ctx returns an error
func (s *BadgerStore) forEach(ctx context.Context, fn func(targetURL string, entry *models.TargetDBEntry) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(targetKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			targetURL := string(item.Key()[len(targetKeyPrefix):])
			var entry models.TargetDBEntry
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				entry = models.TargetDBEntry{Status: models.TargetStatusPending}
			}
			if err := fn(targetURL, &entry); err != nil {
				return err
			}
		}
		return nil
	})
}

// CountByStatus implements StoreAdmin
func (s *BadgerStore) CountByStatus(ctx context.Context) (map[models.TargetStatus]int, error) {
	counts := make(map[models.TargetStatus]int)
	err := s.forEach(ctx, func(_ string, entry *models.TargetDBEntry) error {
		counts[entry.Status]++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: scanning checkpoint: %w", utils.ErrDatabase, err)
	}
	return counts, nil
}

// WriteTargetLog implements StoreAdmin
func (s *BadgerStore) WriteTargetLog(ctx context.Context, filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("%w: creating target log '%s': %w", utils.ErrFilesystem, filePath, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	written := 0
	iterErr := s.forEach(ctx, func(targetURL string, entry *models.TargetDBEntry) error {
		if _, err := fmt.Fprintf(writer, "%s\t%s\n", entry.Status, targetURL); err != nil {
			return err
		}
		written++
		return nil
	})
	if iterErr != nil {
		return fmt.Errorf("%w: writing target log: %w", utils.ErrDatabase, iterErr)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("%w: flushing target log '%s': %w", utils.ErrFilesystem, filePath, err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("%w: syncing target log '%s': %w", utils.ErrFilesystem, filePath, err)
	}
	s.log.Infof("Wrote %d checkpoint entries to %s", written, filePath)
	return nil
}

// RunGC runs value log garbage collection every interval until ctx is done
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				continue
			}
			var err error
			for err == nil {
				err = s.db.RunValueLogGC(0.5)
			}
			if !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Errorf("Value log GC error: %v", err)
			}
		case <-ctx.Done():
			s.log.Debugf("Stopping checkpoint GC: %v", ctx.Err())
			return
		}
	}
}

// Close implements StoreAdmin
func (s *BadgerStore) Close() error {
	if s.db == nil || s.db.IsClosed() {
		return nil
	}
	if err := s.db.Close(); err != nil {
		s.log.Errorf("Error closing checkpoint DB: %v", err)
		return fmt.Errorf("%w: closing checkpoint: %w", utils.ErrDatabase, err)
	}
	s.log.Info("Checkpoint database closed")
	return nil
}
