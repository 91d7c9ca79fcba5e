package relay

import (
	"errors"
	"fmt"
)

// Kind classifies a relay failure.
type Kind string

// Failure kinds surfaced at the HTTP boundary.
const (
	KindInvalidRequest     Kind = "invalid_request"
	KindInsufficientCredit Kind = "insufficient_credit"
	KindProvider           Kind = "provider_error"
	// KindLedger marks a generation whose debit failed. Generate reports it
	// through Result.Debited rather than as an error.
	KindLedger Kind = "ledger_error"
	KindFault  Kind = "fault"
)

// Sentinels for errors.Is. Each matches any *Error of the same kind.
var (
	ErrInvalidRequest     = &Error{Kind: KindInvalidRequest}
	ErrInsufficientCredit = &Error{Kind: KindInsufficientCredit}
	ErrProvider           = &Error{Kind: KindProvider}
	ErrLedger             = &Error{Kind: KindLedger}
	ErrFault              = &Error{Kind: KindFault}
)

// Error is returned by Relay.Generate.
type Error struct {
	Kind Kind
	// Balance is the caller's credit balance when known (insufficient credit).
	Balance int64
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindInsufficientCredit:
		return fmt.Sprintf("%s: balance %d", e.Kind, e.Balance)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

// KindOf returns the relay kind of err. Errors that did not originate in the
// relay are reported as KindFault.
func KindOf(err error) Kind {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return KindFault
}
