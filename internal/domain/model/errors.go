package model

import (
	"errors"
	"fmt"
)

// Error kinds surfaced to callers of the pipeline. Callers match them with
// errors.Is.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientPlayers = errors.New("insufficient players")
	ErrNoContextDetected   = errors.New("no sport context detected")
	ErrUnresolvedTarget    = errors.New("unresolved target slot")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrInternal            = errors.New("internal error")
	ErrAlreadyInFlight     = errors.New("analysis already in flight")
	ErrNotFound            = errors.New("not found")
)

// Error carries the failing operation and the kind it maps to.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewKind returns an error of the given kind without a cause.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// WrapKind attaches a kind to err. A nil err yields nil.
func WrapKind(op string, kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// KindOf returns the taxonomy kind of err, ErrInternal when none matches.
func KindOf(err error) error {
	for _, k := range []error{
		ErrInvalidInput,
		ErrInsufficientPlayers,
		ErrNoContextDetected,
		ErrUnresolvedTarget,
		ErrUpstreamUnavailable,
		ErrAlreadyInFlight,
		ErrNotFound,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrInternal
}
