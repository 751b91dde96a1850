// Package cortex defines the memory record, bond, entity, and dream-log
// types shared across the engine, plus the error taxonomy every component
// surfaces.
package cortex

import "errors"

// Category is an opaque error classification. Callers should compare with
// errors.Is against the sentinels below, not inspect Category directly.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryValidation
	CategoryConflict
	CategoryNotFound
	CategoryCancelled
	CategoryTimeout
	CategoryCapabilityUnavailable
	CategoryStoreUnavailable
)

// CortexError wraps an underlying cause with a stable category so callers
// can branch with errors.Is(err, cortex.ErrConflict) etc. without depending
// on string matching.
type CortexError struct {
	Category Category
	Msg      string
	Err      error
}

func (e *CortexError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *CortexError) Unwrap() error { return e.Err }

func (e *CortexError) Is(target error) bool {
	t, ok := target.(*CortexError)
	if !ok {
		return false
	}
	return e.Category == t.Category
}

// Sentinels for errors.Is comparisons. Each carries no message of its own;
// construction helpers below attach a message and optional wrapped cause.
var (
	ErrValidation            = &CortexError{Category: CategoryValidation}
	ErrConflict              = &CortexError{Category: CategoryConflict}
	ErrNotFound              = &CortexError{Category: CategoryNotFound}
	ErrCancelled             = &CortexError{Category: CategoryCancelled}
	ErrTimeout               = &CortexError{Category: CategoryTimeout}
	ErrCapabilityUnavailable = &CortexError{Category: CategoryCapabilityUnavailable}
	ErrStoreUnavailable      = &CortexError{Category: CategoryStoreUnavailable}
)

func newErr(sentinel *CortexError, msg string, cause error) *CortexError {
	return &CortexError{Category: sentinel.Category, Msg: msg, Err: cause}
}

func ValidationError(msg string) error             { return newErr(ErrValidation, msg, nil) }
func ConflictError(msg string, cause error) error   { return newErr(ErrConflict, msg, cause) }
func NotFoundError(msg string) error                { return newErr(ErrNotFound, msg, nil) }
func CancelledError(msg string) error               { return newErr(ErrCancelled, msg, nil) }
func TimeoutError(msg string) error                 { return newErr(ErrTimeout, msg, nil) }
func CapabilityUnavailableError(msg string) error   { return newErr(ErrCapabilityUnavailable, msg, nil) }
func StoreUnavailableError(msg string, cause error) error {
	return newErr(ErrStoreUnavailable, msg, cause)
}

// ErrWithExistingID returns a Conflict error that also reports the id of
// the record the conflict was against, per store.insertRecord's documented
// "fail with Conflict, report the existing id when known" behaviour.
func ErrWithExistingID(msg string, existingID int64) error {
	e := newErr(ErrConflict, msg, nil)
	e.Err = &existingIDError{id: existingID}
	return e
}

type existingIDError struct{ id int64 }

func (e *existingIDError) Error() string { return "" }

// ExistingID returns the id carried by a Conflict error produced via
// ErrWithExistingID, and ok=false otherwise.
func ExistingID(err error) (int64, bool) {
	var ce *CortexError
	if !errors.As(err, &ce) {
		return 0, false
	}
	var ie *existingIDError
	if !errors.As(ce.Err, &ie) {
		return 0, false
	}
	return ie.id, true
}
