package store

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/vyrodovalexey/medtrack/internal/model"
)

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithClock sets the source of the current time.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the location in which "today" is computed.
func WithLocation(loc *time.Location) Option {
	return func(s *MemoryStore) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// MemoryStore implements Store interface with in-memory storage.
type MemoryStore struct {
	mu        sync.RWMutex
	medicines map[model.MedicineKey]model.Date
	now       func() time.Time
	loc       *time.Location
}

// NewMemoryStore creates a new MemoryStore instance.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		medicines: make(map[model.MedicineKey]model.Date),
		now:       time.Now,
		loc:       time.Local,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Today returns the current calendar date in the store's location.
func (s *MemoryStore) Today() model.Date {
	return model.DateOf(s.now().In(s.loc))
}

// Add inserts a record unless one with the same name and date exists.
func (s *MemoryStore) Add(ctx context.Context, name string, expirationDate model.Date) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("add medicine: %w", err)
	}

	key := model.NewMedicineKey(name, expirationDate)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.medicines[key]; exists {
		return false, nil
	}

	s.medicines[key] = expirationDate

	return true, nil
}

// Delete removes the record with exactly this name and date.
func (s *MemoryStore) Delete(ctx context.Context, name string, expirationDate model.Date) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("delete medicine: %w", err)
	}

	key := model.NewMedicineKey(name, expirationDate)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.medicines[key]; !exists {
		return false, nil
	}

	delete(s.medicines, key)

	return true, nil
}

// IsExpired reports whether the record exists and is dated strictly
// before today.
func (s *MemoryStore) IsExpired(ctx context.Context, name string, expirationDate model.Date) (bool, error) {
	status, err := s.Status(ctx, name, expirationDate)
	if err != nil {
		return false, err
	}
	return status.Expired(), nil
}

// Status returns the three-state expiration status of a record.
func (s *MemoryStore) Status(ctx context.Context, name string, expirationDate model.Date) (model.ExpiryStatus, error) {
	if err := ctx.Err(); err != nil {
		return model.StatusNotFound, fmt.Errorf("medicine status: %w", err)
	}

	key := model.NewMedicineKey(name, expirationDate)

	s.mu.RLock()
	stored, exists := s.medicines[key]
	s.mu.RUnlock()

	if !exists {
		return model.StatusNotFound, nil
	}

	if stored.Before(s.Today()) {
		return model.StatusExpired, nil
	}

	return model.StatusNotExpired, nil
}

// Expiring returns every record dated strictly before today + days.
// Records that have already expired are included.
func (s *MemoryStore) Expiring(ctx context.Context, days int) (map[model.MedicineKey]model.Date, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("expiring medicines: %w", err)
	}

	cutoff := s.Today().AddDays(days)

	s.mu.RLock()
	defer s.mu.RUnlock()

	expiring := make(map[model.MedicineKey]model.Date)
	for key, date := range s.medicines {
		if date.Before(cutoff) {
			expiring[key] = date
		}
	}

	return expiring, nil
}

// All returns a copy of every record.
func (s *MemoryStore) All(ctx context.Context) (map[model.MedicineKey]model.Date, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list medicines: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return maps.Clone(s.medicines), nil
}

// Len returns the number of records.
func (s *MemoryStore) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("count medicines: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.medicines), nil
}
