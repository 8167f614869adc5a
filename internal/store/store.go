// Package store provides data storage interfaces and implementations.
package store

import (
	"context"
	"sort"

	"github.com/vyrodovalexey/medtrack/internal/model"
)

// Store defines the medicine record operations.
//
// The boolean results carry the domain outcome: a duplicate add or a
// delete of a missing record returns false and changes nothing. The error
// is non-nil only when the context is done.
type Store interface {
	// Add inserts a record and reports whether it was new.
	Add(ctx context.Context, name string, expirationDate model.Date) (bool, error)

	// Delete removes a record and reports whether it existed.
	Delete(ctx context.Context, name string, expirationDate model.Date) (bool, error)

	// IsExpired reports whether the record exists and its date is before today.
	// A missing record reports false.
	IsExpired(ctx context.Context, name string, expirationDate model.Date) (bool, error)

	// Status distinguishes a missing record from an unexpired one.
	Status(ctx context.Context, name string, expirationDate model.Date) (model.ExpiryStatus, error)

	// Expiring returns a copy of every record dated before today + days.
	Expiring(ctx context.Context, days int) (map[model.MedicineKey]model.Date, error)

	// All returns a copy of every record.
	All(ctx context.Context) (map[model.MedicineKey]model.Date, error)

	// Len returns the number of records.
	Len(ctx context.Context) (int, error)
}

// Sorted returns the records as listing rows ordered by expiration date,
// then name. The result is never nil.
func Sorted(records map[model.MedicineKey]model.Date) []model.Medicine {
	keys := make([]model.MedicineKey, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}

	sort.Slice(keys, func(i, j int) bool {
		if c := keys[i].ExpirationDate.Compare(keys[j].ExpirationDate); c != 0 {
			return c < 0
		}
		return keys[i].Name < keys[j].Name
	})

	rows := make([]model.Medicine, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, model.NewMedicine(k))
	}

	return rows
}
