package domain

import (
	"errors"
	"fmt"
	"strconv"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a network-related error that may be retriable
type NetworkError struct {
	Op        string // Operation that failed (e.g., "fetch", "decode")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// ConfigError represents a configuration error (never retriable).
// It matches ErrInvalidConfiguration under errors.Is.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

var (
	ErrInvalidConfiguration     = errors.New("invalid configuration")
	ErrInvalidInput             = errors.New("invalid input")
	ErrInvalidPrice             = errors.New("invalid price")
	ErrBelowMinimumLot          = errors.New("below minimum lot")
	ErrExceedsAvailableQuantity = errors.New("exceeds available quantity")
	ErrTerminalStateViolation   = errors.New("terminal state violation")
	ErrIllegalTransition        = errors.New("illegal transition")

	// ErrOutOfTurn is an IllegalTransition: a party acted on terms it authored itself.
	ErrOutOfTurn = fmt.Errorf("%w: out of turn", ErrIllegalTransition)

	ErrListingNotFound  = errors.New("listing not found")
	ErrProposalNotFound = errors.New("proposal not found")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)

// ErrorKind names a failure category callers can map to a user-facing message.
type ErrorKind string

const (
	KindNone                     ErrorKind = ""
	KindInvalidConfiguration     ErrorKind = "InvalidConfiguration"
	KindInvalidInput             ErrorKind = "InvalidInput"
	KindInvalidPrice             ErrorKind = "InvalidPrice"
	KindBelowMinimumLot          ErrorKind = "BelowMinimumLot"
	KindExceedsAvailableQuantity ErrorKind = "ExceedsAvailableQuantity"
	KindTerminalStateViolation   ErrorKind = "TerminalStateViolation"
	KindIllegalTransition        ErrorKind = "IllegalTransition"
	KindNotFound                 ErrorKind = "NotFound"
	KindInternal                 ErrorKind = "Internal"
)

// NegotiationError wraps one of the sentinel errors with the field and limit that failed.
type NegotiationError struct {
	Op    string // submit, counter, accept, ...
	Err   error  // one of the Err* sentinels
	Field string
	Limit string
}

func (e *NegotiationError) Error() string {
	msg := e.Op + ": " + e.Err.Error()
	if e.Field != "" {
		msg += " [" + e.Field
		if e.Limit != "" {
			msg += " limit " + e.Limit
		}
		msg += "]"
	}
	return msg
}

func (e *NegotiationError) Unwrap() error {
	return e.Err
}

func (e *NegotiationError) IsRetriable() bool {
	return false
}

// KindOf classifies err.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidConfiguration):
		return KindInvalidConfiguration
	case errors.Is(err, ErrBelowMinimumLot):
		return KindBelowMinimumLot
	case errors.Is(err, ErrExceedsAvailableQuantity):
		return KindExceedsAvailableQuantity
	case errors.Is(err, ErrInvalidPrice):
		return KindInvalidPrice
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrTerminalStateViolation):
		return KindTerminalStateViolation
	case errors.Is(err, ErrIllegalTransition):
		return KindIllegalTransition
	case errors.Is(err, ErrListingNotFound), errors.Is(err, ErrProposalNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}

// UserMessage turns err into the text shown to the person who triggered it.
func UserMessage(err error) string {
	var ne *NegotiationError
	limit := ""
	if errors.As(err, &ne) {
		limit = ne.Limit
	}

	switch KindOf(err) {
	case KindNone:
		return ""
	case KindBelowMinimumLot:
		return "Minimum lot size is " + limit
	case KindExceedsAvailableQuantity:
		return "Maximum available quantity is " + limit
	case KindInvalidPrice:
		if ne != nil && ne.Field == "priceScale" {
			return "Price can have at most " + limit + " decimal places"
		}
		if ne != nil && ne.Field == "priceMax" {
			return "Price must be below " + limit
		}
		return "Price must be greater than 0"
	case KindInvalidInput:
		if ne != nil && ne.Field == "message" {
			return "Message can be at most " + limit + " characters"
		}
		return "Please check the entered details"
	case KindTerminalStateViolation:
		return "This bid/offer is already closed"
	case KindIllegalTransition:
		if errors.Is(err, ErrOutOfTurn) {
			return "Waiting for the other party to respond"
		}
		return "This action is not allowed right now"
	case KindNotFound:
		return "Listing or bid/offer not found"
	default:
		return "Failed to place bid/offer"
	}
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}
