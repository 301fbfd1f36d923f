// Package apperr defines the business error taxonomy surfaced by the engine.
//
// Every rejection carries a Kind (how a transport should treat it), a stable
// Code (what exactly was violated) and a human-readable message. errors.Is
// matches two *Error values by Code, so callers compare against the exported
// sentinels regardless of the message.
package apperr

import (
	"errors"
	"fmt"
)

// Kind groups codes by how callers should react.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindForbidden      Kind = "forbidden"
	KindCapacity       Kind = "capacity"
	KindInvalidState   Kind = "invalid_state"
	KindInfrastructure Kind = "infrastructure"
)

// Code is a stable identifier for one business rule.
type Code string

const (
	CodeInvalidInput     Code = "INVALID_INPUT"
	CodeInvalidSchedule  Code = "INVALID_SCHEDULE"
	CodePastDate         Code = "PAST_DATE"
	CodeInvalidQuantity  Code = "INVALID_QUANTITY"
	CodeNotFound         Code = "NOT_FOUND"
	CodeScheduleConflict Code = "SCHEDULE_CONFLICT"
	CodeAlreadyEnrolled  Code = "ALREADY_ENROLLED"
	CodeAlreadyConfirmed Code = "ALREADY_CONFIRMED"
	CodeAlreadyCompleted Code = "ALREADY_COMPLETED"
	CodeAlreadyScheduled Code = "ALREADY_SCHEDULED"
	CodeNotEnrolled      Code = "NOT_ENROLLED"
	CodeNotEligible      Code = "NOT_ELIGIBLE"
	CodeForbidden        Code = "FORBIDDEN"
	CodeNoSeatsAvailable Code = "NO_SEATS_AVAILABLE"
	CodeInvalidState     Code = "INVALID_STATE"
	CodeInfrastructure   Code = "INFRASTRUCTURE"
)

var codeKinds = map[Code]Kind{
	CodeInvalidInput:     KindValidation,
	CodeInvalidSchedule:  KindValidation,
	CodePastDate:         KindValidation,
	CodeInvalidQuantity:  KindValidation,
	CodeNotFound:         KindNotFound,
	CodeScheduleConflict: KindConflict,
	CodeAlreadyEnrolled:  KindConflict,
	CodeAlreadyConfirmed: KindConflict,
	CodeAlreadyCompleted: KindConflict,
	CodeAlreadyScheduled: KindConflict,
	CodeNotEnrolled:      KindConflict,
	CodeNotEligible:      KindForbidden,
	CodeForbidden:        KindForbidden,
	CodeNoSeatsAvailable: KindCapacity,
	CodeInvalidState:     KindInvalidState,
	CodeInfrastructure:   KindInfrastructure,
}

// Error is a business rejection or an infrastructure failure.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New builds an error for code with a formatted message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Kind: kindOf(code), Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an error for code that keeps err in the chain.
func Wrap(err error, code Code, format string, args ...interface{}) *Error {
	return &Error{Kind: kindOf(code), Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// Infrastructure wraps a store or transport failure. Callers own any retry.
func Infrastructure(err error, op string) *Error {
	return Wrap(err, CodeInfrastructure, "%s failed", op)
}

// KindOf returns the Kind of err, or KindInfrastructure for errors outside the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfrastructure
}

// CodeOf returns the Code of err, or CodeInfrastructure for errors outside the taxonomy.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInfrastructure
}

func kindOf(code Code) Kind {
	if k, ok := codeKinds[code]; ok {
		return k
	}
	return KindInfrastructure
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidInput     = &Error{Code: CodeInvalidInput}
	ErrInvalidSchedule  = &Error{Code: CodeInvalidSchedule}
	ErrPastDate         = &Error{Code: CodePastDate}
	ErrInvalidQuantity  = &Error{Code: CodeInvalidQuantity}
	ErrNotFound         = &Error{Code: CodeNotFound}
	ErrScheduleConflict = &Error{Code: CodeScheduleConflict}
	ErrAlreadyEnrolled  = &Error{Code: CodeAlreadyEnrolled}
	ErrAlreadyConfirmed = &Error{Code: CodeAlreadyConfirmed}
	ErrAlreadyCompleted = &Error{Code: CodeAlreadyCompleted}
	ErrAlreadyScheduled = &Error{Code: CodeAlreadyScheduled}
	ErrNotEnrolled      = &Error{Code: CodeNotEnrolled}
	ErrNotEligible      = &Error{Code: CodeNotEligible}
	ErrForbidden        = &Error{Code: CodeForbidden}
	ErrNoSeatsAvailable = &Error{Code: CodeNoSeatsAvailable}
	ErrInvalidState     = &Error{Code: CodeInvalidState}
	ErrInfrastructure   = &Error{Code: CodeInfrastructure}
)
