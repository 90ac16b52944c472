package queue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cybertec-postgresql/submitq/internal/log"
	"github.com/cybertec-postgresql/submitq/internal/metrics"
	"github.com/cybertec-postgresql/submitq/internal/settings"
)

// Key is the settings key holding the whole queue
const Key = "offlineProducts"

// Store keeps the queue as one blob in a settings backend. Every operation
// is a read-modify-write of that blob, so all of them serialize on mu.
//
// Corrupt data is treated as an empty queue rather than an error: the
// alternative is a queue that can never accept another record. The price is
// that an externally damaged blob silently drops whatever it held.
type Store struct {
	mu      sync.Mutex
	backend settings.Backend
	logger  *logrus.Entry
}

// NewStore returns a store persisting into backend
func NewStore(backend settings.Backend) *Store {
	return &Store{
		backend: backend,
		logger:  log.WithComponent("queue"),
	}
}

// List returns all pending records in insertion order. Missing, corrupt or
// unreadable data yields an empty list.
func (s *Store) List(ctx context.Context) []PendingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil && !errors.Is(err, ErrCorrupt) {
		s.logger.WithError(err).Warn("Failed to read queue, treating as empty")
		return nil
	}
	metrics.QueueDepth.Set(float64(len(records)))
	return records
}

// Len returns the number of pending records
func (s *Store) Len(ctx context.Context) int {
	return len(s.List(ctx))
}

// Append adds record to the end of the queue. It returns once the backend
// has durably stored the new list.
func (s *Store) Append(ctx context.Context, record PendingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil && !errors.Is(err, ErrCorrupt) {
		// a transient read failure must not overwrite what is stored
		return fmt.Errorf("failed to read queue: %w", err)
	}

	record.Fields = record.Fields.clone()
	records = append(records, record)
	if err := s.save(ctx, records); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"id":    record.ID,
		"depth": len(records),
	}).Info("Queued record")
	return nil
}

// Remove deletes the record with id. Removing an absent id is not an error,
// overlapping drains can legitimately do that.
func (s *Store) Remove(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil && !errors.Is(err, ErrCorrupt) {
		return fmt.Errorf("failed to read queue: %w", err)
	}

	idx := slices.IndexFunc(records, func(r PendingRecord) bool { return r.ID == id })
	if idx < 0 {
		s.logger.WithField("id", id).Debug("Record already removed")
		return nil
	}
	records = slices.Delete(records, idx, idx+1)
	if err := s.save(ctx, records); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"id":    id,
		"depth": len(records),
	}).Info("Removed synced record")
	return nil
}

// load must be called with mu held. A corrupt blob returns an empty list
// together with ErrCorrupt.
func (s *Store) load(ctx context.Context) ([]PendingRecord, error) {
	data, err := s.backend.Get(ctx, Key)
	if errors.Is(err, settings.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	records, err := decodeRecords(data)
	if err != nil {
		metrics.QueueCorruptTotal.Inc()
		s.logger.WithError(err).WithField("size", len(data)).
			Warn("Persisted queue is corrupt, treating as empty")
		return nil, err
	}
	return records, nil
}

// save must be called with mu held
func (s *Store) save(ctx context.Context, records []PendingRecord) error {
	data, err := encodeRecords(records)
	if err != nil {
		return fmt.Errorf("failed to encode queue: %w", err)
	}
	if err := s.backend.Set(ctx, Key, data); err != nil {
		return fmt.Errorf("failed to persist queue: %w", err)
	}
	metrics.QueueDepth.Set(float64(len(records)))
	return nil
}
