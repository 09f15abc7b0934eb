package screening

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for records that are absent or owned by someone else.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned by stores when an evaluation for the same fingerprint exists.
	ErrDuplicate = errors.New("evaluation already exists")
	// ErrPersistence marks storage failures that are not NotFound or Duplicate.
	ErrPersistence = errors.New("persistence failure")
)

// ValidationError reports malformed input.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// storeErr keeps NotFound visible and folds anything else into ErrPersistence.
func storeErr(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
