package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contact-scraper/pkg/models"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore(t.TempDir(), "azhca", false, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func successEntry(name string, emails ...string) *models.TargetDBEntry {
	records := make([]models.ContactRecord, 0, len(emails))
	for _, e := range emails {
		records = append(records, models.ContactRecord{
			Target:             models.Target{Name: name, URL: "https://example.org/" + name},
			Email:              e,
			AssociatedEntities: models.NoEntityPlaceholder,
			SourceURL:          "https://example.org/" + name,
		})
	}
	return &models.TargetDBEntry{
		Status:      models.TargetStatusSuccess,
		Name:        name,
		Records:     records,
		Emails:      emails,
		ProcessedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestCheckpointPath(t *testing.T) {
	got := CheckpointPath("/state", "azhca")
	assert.Equal(t, filepath.Join("/state", "azhca_checkpoint_db"), got)
}

func TestNewBadgerStore(t *testing.T) {
	t.Run("fresh start has zero count", func(t *testing.T) {
		store := newTestStore(t)
		count, err := store.GetTargetCount()
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("resume preserves entries", func(t *testing.T) {
		dir := t.TempDir()
		logger := testLogger()

		store1, err := NewBadgerStore(dir, "azhca", false, logger)
		require.NoError(t, err)
		require.NoError(t, store1.UpdateTargetStatus("https://example.org/phoenix", successEntry("Phoenix", "a@x.org")))
		require.NoError(t, store1.Close())

		store2, err := NewBadgerStore(dir, "azhca", true, logger)
		require.NoError(t, err)
		t.Cleanup(func() { store2.Close() })

		count, err := store2.GetTargetCount()
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		status, entry, err := store2.CheckTargetStatus("https://example.org/phoenix")
		require.NoError(t, err)
		assert.Equal(t, models.TargetStatusSuccess, status)
		require.NotNil(t, entry)
		assert.Equal(t, "Phoenix", entry.Name)
		require.Len(t, entry.Records, 1)
		assert.Equal(t, "a@x.org", entry.Records[0].Email)
	})

	t.Run("without resume clears entries", func(t *testing.T) {
		dir := t.TempDir()
		logger := testLogger()

		store1, err := NewBadgerStore(dir, "azhca", false, logger)
		require.NoError(t, err)
		require.NoError(t, store1.UpdateTargetStatus("https://example.org/phoenix", successEntry("Phoenix")))
		require.NoError(t, store1.Close())

		store2, err := NewBadgerStore(dir, "azhca", false, logger)
		require.NoError(t, err)
		t.Cleanup(func() { store2.Close() })

		status, entry, err := store2.CheckTargetStatus("https://example.org/phoenix")
		require.NoError(t, err)
		assert.Equal(t, models.TargetStatusNotFound, status)
		assert.Nil(t, entry)
	})
}

func TestUpdateTargetStatus(t *testing.T) {
	store := newTestStore(t)
	url := "https://example.org/tucson"

	require.NoError(t, store.UpdateTargetStatus(url, &models.TargetDBEntry{
		Status:    models.TargetStatusFailure,
		ErrorType: "TargetFetch",
		Name:      "Tucson",
	}))
	status, entry, err := store.CheckTargetStatus(url)
	require.NoError(t, err)
	assert.Equal(t, models.TargetStatusFailure, status)
	assert.Equal(t, "TargetFetch", entry.ErrorType)

	// Overwrite does not bump the count
	require.NoError(t, store.UpdateTargetStatus(url, successEntry("Tucson", "b@x.org")))
	status, entry, err = store.CheckTargetStatus(url)
	require.NoError(t, err)
	assert.Equal(t, models.TargetStatusSuccess, status)
	assert.Equal(t, []string{"b@x.org"}, entry.Emails)

	count, err := store.GetTargetCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCheckTargetStatus_UnknownStatusIsPending(t *testing.T) {
	store := newTestStore(t)
	url := "https://example.org/globe"

	require.NoError(t, store.UpdateTargetStatus(url, &models.TargetDBEntry{Status: "half_done", Name: "Globe"}))
	status, entry, err := store.CheckTargetStatus(url)
	require.NoError(t, err)
	assert.Equal(t, models.TargetStatusPending, status)
	assert.Nil(t, entry)

	status, entry, err = store.CheckTargetStatus("https://example.org/missing")
	require.NoError(t, err)
	assert.Equal(t, models.TargetStatusNotFound, status)
	assert.Nil(t, entry)
}

func TestCountByStatus(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.UpdateTargetStatus("https://example.org/a", successEntry("A")))
	require.NoError(t, store.UpdateTargetStatus("https://example.org/b", successEntry("B")))
	require.NoError(t, store.UpdateTargetStatus("https://example.org/c", &models.TargetDBEntry{Status: models.TargetStatusSkipped, Name: "C"}))
	require.NoError(t, store.UpdateTargetStatus("https://example.org/d", &models.TargetDBEntry{Status: models.TargetStatusFailure, Name: "D"}))

	counts, err := store.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.TargetStatusSuccess])
	assert.Equal(t, 1, counts[models.TargetStatusSkipped])
	assert.Equal(t, 1, counts[models.TargetStatusFailure])
}

func TestCountByStatus_CancelledContext(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.UpdateTargetStatus("https://example.org/a", successEntry("A")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := store.CountByStatus(ctx)
	assert.Error(t, err)
}

func TestWriteTargetLog(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.UpdateTargetStatus("https://example.org/a", successEntry("A")))
	require.NoError(t, store.UpdateTargetStatus("https://example.org/b", &models.TargetDBEntry{Status: models.TargetStatusSkipped}))

	path := filepath.Join(t.TempDir(), "targets.log")
	require.NoError(t, store.WriteTargetLog(context.Background(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.ElementsMatch(t, []string{
		"success\thttps://example.org/a",
		"skipped\thttps://example.org/b",
	}, lines)
}

func TestRunGC_StopsOnCancel(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		store.RunGC(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunGC did not stop after cancel")
	}
}

func TestClose_Idempotent(t *testing.T) {
	store, err := NewBadgerStore(t.TempDir(), "azhca", false, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}

var _ CheckpointStore = (*BadgerStore)(nil)
