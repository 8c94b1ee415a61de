package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTerminalSnapshot is returned on any attempt to mutate a snapshot
	// that already reached Success or Failure.
	ErrTerminalSnapshot = errors.New("snapshot already terminal")

	// ErrIncompleteSnapshot marks a snapshot that never reached a terminal
	// status (e.g. the process died mid-run). Readers must treat it as an
	// unusable result, never as Success.
	ErrIncompleteSnapshot = errors.New("snapshot is incomplete")

	// ErrRateNotFound is returned by a rate source when no rate is known
	// for the requested pair at the requested time.
	ErrRateNotFound = errors.New("exchange rate not found")

	// ErrUnknownProvider is returned when no adapter is registered under
	// the requested provider identifier.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrNoHistory is returned when a scope has no available history entry
	// at or before the requested cutoff.
	ErrNoHistory = errors.New("no history entry for scope")
)

// ErrorDetails is the error envelope surfaced by the transport layer.
// UserMessage is stable and safe to show to end users; DebugMessage and
// Trace are internal diagnostics and are never rendered to end users.
type ErrorDetails struct {
	UserMessage  string `json:"user_message"`
	DebugMessage string `json:"debug_message"`
	Trace        string `json:"trace"`
}

// AuthError is raised by a provider adapter when the supplied credentials
// were rejected by the external source. Its message is shown to the user
// verbatim, unlike any other adapter failure.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// NewAuthError creates a credential-rejection error with a user-facing message.
func NewAuthError(message string) *AuthError {
	return &AuthError{Message: message}
}

// AdapterError wraps any non-authentication failure coming out of a provider
// adapter. The wrapped error is kept for debugging only; users see a generic
// message.
type AdapterError struct {
	ProviderID string
	Op         string
	Err        error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.ProviderID, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// UnknownLineItemError marks a requested line item kind the service does not
// understand. It is reported inline per item; the request as a whole still
// succeeds.
type UnknownLineItemError struct {
	Item string
}

func (e *UnknownLineItemError) Error() string {
	return fmt.Sprintf("unknown line item: %q", e.Item)
}

// MissingRateError marks a currency pair for which no conversion rate could
// be resolved. It fails only the valuation nodes depending on that pair.
type MissingRateError struct {
	Pair CurrencyPair
}

func (e *MissingRateError) Error() string {
	return fmt.Sprintf("no exchange rate for %s", e.Pair)
}
