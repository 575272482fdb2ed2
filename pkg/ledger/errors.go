package ledger

import (
	"errors"

	"github.com/fintrack/backend/pkg/models"
)

var (
	// ErrNotFound is reported when the template or the account is gone.
	ErrNotFound = errors.New("not found")

	// ErrNotDue is reported when a template has already been applied for its
	// current occurrence.
	ErrNotDue = errors.New("not due")

	// ErrStoreConflict is returned when another writer changed a row between
	// reading and writing it.
	ErrStoreConflict = errors.New("concurrent modification of ledger state")

	// ErrExternalCollaborator wraps failures of notification and insight
	// services.
	ErrExternalCollaborator = errors.New("external collaborator failed")

	// ErrValidation is returned for records the ledger cannot process, e.g.
	// an unknown recurring interval.
	ErrValidation = models.ErrValidation
)

// Outcome is the result of applying a recurring transaction.
type Outcome int

const (
	Failed Outcome = iota
	Applied
	SkippedNotDue
	SkippedNotFound
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case SkippedNotDue:
		return "skipped_not_due"
	case SkippedNotFound:
		return "skipped_not_found"
	}
	return "failed"
}

// Err returns the error kind of a skip outcome, nil otherwise.
func (o Outcome) Err() error {
	switch o {
	case SkippedNotDue:
		return ErrNotDue
	case SkippedNotFound:
		return ErrNotFound
	}
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}
