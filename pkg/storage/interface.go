package storage

import (
	"context"
	"time"

	"contact-scraper/pkg/models"
)

// TargetStore checkpoints per-target processing results, keyed by target URL
type TargetStore interface {
	// CheckTargetStatus returns the stored status and entry for a target URL.
	// A missing key yields TargetStatusNotFound and a nil entry.
	CheckTargetStatus(targetURL string) (status models.TargetStatus, entry *models.TargetDBEntry, err error)

	// UpdateTargetStatus stores entry for a target URL, replacing any previous one
	UpdateTargetStatus(targetURL string, entry *models.TargetDBEntry) error
}

// StoreAdmin handles lifecycle and administrative operations
type StoreAdmin interface {
	// GetTargetCount returns the number of checkpointed targets
	GetTargetCount() (int, error)

	// CountByStatus scans all entries and tallies them by status
	CountByStatus(ctx context.Context) (map[models.TargetStatus]int, error)

	// WriteTargetLog writes one "<status>\t<url>" line per checkpointed target to filePath
	WriteTargetLog(ctx context.Context, filePath string) error

	// RunGC runs periodic value log garbage collection until ctx is done
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the database
	Close() error
}

// CheckpointStore combines the store interfaces
type CheckpointStore interface {
	TargetStore
	StoreAdmin
}
