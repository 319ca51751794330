package app

import (
	"errors"
	"fmt"
)

// FailKind classifies a join failure so the transport layer can pick the
// right wire event without matching error strings.
type FailKind int

const (
	FailValidation FailKind = iota
	FailConflict
	FailInternal
)

var (
	ErrUsernameTaken     = errors.New("username already taken in room")
	ErrUnknownConnection = errors.New("unknown connection")
)

// JoinError wraps the underlying cause with its failure kind. It is the
// only error type Join returns.
type JoinError struct {
	Kind FailKind
	Err  error
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("join failed: %v", e.Err)
}

func (e *JoinError) Unwrap() error { return e.Err }

func validationErr(err error) *JoinError {
	return &JoinError{Kind: FailValidation, Err: err}
}

func conflictErr(err error) *JoinError {
	return &JoinError{Kind: FailConflict, Err: err}
}

func internalErr(err error) *JoinError {
	return &JoinError{Kind: FailInternal, Err: err}
}

// KindOf extracts the failure kind, defaulting to internal for errors
// that did not come out of the coordinator.
func KindOf(err error) FailKind {
	var je *JoinError
	if errors.As(err, &je) {
		return je.Kind
	}
	return FailInternal
}
