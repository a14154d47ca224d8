package mailing

import (
	"errors"
	"fmt"
)

var (
	// ErrResolution matches every *ResolutionError via errors.Is.
	ErrResolution = errors.New("addressing resolution failed")

	ErrMalformedHash    = errors.New("malformed verification hash")
	ErrHashMismatch     = errors.New("verification hash does not match")
	ErrUnknownRecipient = errors.New("no addressing for queue entry")
	ErrInvalidAddress   = errors.New("invalid recipient address")
	ErrNoResolver       = errors.New("mailing has no addressing resolver")
)

// ResolutionError reports that the addressing of one task could not be
// resolved. The task must not be delivered.
type ResolutionError struct {
	Lookup Lookup
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve addressing for job %d queue %d: %v", e.Lookup.JobID, e.Lookup.QueueID, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrResolution) hold for every resolution failure.
func (e *ResolutionError) Is(target error) bool { return target == ErrResolution }

func asResolutionError(l Lookup, err error) *ResolutionError {
	var re *ResolutionError
	if errors.As(err, &re) {
		return re
	}
	return &ResolutionError{Lookup: l, Err: err}
}
