package model

import (
	"errors"
	"strconv"
	"strings"
)

// Validation errors for medicine input.
var (
	ErrEmptyName   = errors.New("please enter both medicine name and expiration date")
	ErrEmptyDate   = errors.New("please enter both medicine name and expiration date")
	ErrNameTooLong = errors.New("medicine name cannot exceed 255 characters")
	ErrInvalidDays = errors.New("please enter a valid number for days before expiration")
)

// MaxNameLength is the longest accepted medicine name in bytes.
const MaxNameLength = 255

// MedicineKey identifies a record. Two records with the same name but
// different expiration dates are distinct.
type MedicineKey struct {
	Name           string
	ExpirationDate Date
}

// NewMedicineKey returns the key for name and date.
func NewMedicineKey(name string, date Date) MedicineKey {
	return MedicineKey{Name: name, ExpirationDate: date}
}

// String renders the display identity, e.g. "Aspirin-2025-01-01".
// It is not unique and must not be used for lookups.
func (k MedicineKey) String() string {
	return k.Name + "-" + k.ExpirationDate.String()
}

// Medicine is one row of a medicine listing.
type Medicine struct {
	Key            string `json:"key"`
	Name           string `json:"name"`
	ExpirationDate Date   `json:"expiration_date"`
}

// NewMedicine builds the listing row for a key.
func NewMedicine(key MedicineKey) Medicine {
	return Medicine{
		Key:            key.String(),
		Name:           key.Name,
		ExpirationDate: key.ExpirationDate,
	}
}

// MedicineInput is the request body for adding a medicine.
type MedicineInput struct {
	Name           string `json:"name"`
	ExpirationDate string `json:"expiration_date"`
}

// Validate checks the input and returns the key it names.
func (in *MedicineInput) Validate() (MedicineKey, error) {
	return ValidateMedicineInput(in.Name, in.ExpirationDate)
}

// ValidateMedicineInput trims and checks user-supplied name and date text.
// Empty fields are rejected before the date is parsed.
func ValidateMedicineInput(name, dateText string) (MedicineKey, error) {
	name = strings.TrimSpace(name)
	dateText = strings.TrimSpace(dateText)

	if name == "" {
		return MedicineKey{}, ErrEmptyName
	}
	if dateText == "" {
		return MedicineKey{}, ErrEmptyDate
	}
	if len(name) > MaxNameLength {
		return MedicineKey{}, ErrNameTooLong
	}

	date, err := ParseDate(dateText)
	if err != nil {
		return MedicineKey{}, err
	}

	return NewMedicineKey(name, date), nil
}

// ParseDays parses the "days before expiration" input as a 32-bit
// integer. Zero and negative values are accepted.
func ParseDays(text string) (int, error) {
	days, err := strconv.ParseInt(strings.TrimSpace(text), 10, 32)
	if err != nil {
		return 0, ErrInvalidDays
	}
	return int(days), nil
}

// ExpiryStatus is the outcome of an expiration check.
type ExpiryStatus string

// Expiry statuses.
const (
	StatusNotFound   ExpiryStatus = "not_found"
	StatusExpired    ExpiryStatus = "expired"
	StatusNotExpired ExpiryStatus = "not_expired"
)

// Expired reports whether the status is StatusExpired. A missing record
// reports false.
func (s ExpiryStatus) Expired() bool {
	return s == StatusExpired
}
