package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SnapshotStatus represents the lifecycle state of a snapshot
type SnapshotStatus string

const (
	SnapshotStatusPending    SnapshotStatus = "PENDING"
	SnapshotStatusProcessing SnapshotStatus = "PROCESSING"
	SnapshotStatusSuccess    SnapshotStatus = "SUCCESS"
	SnapshotStatusFailure    SnapshotStatus = "FAILURE"
)

// Terminal reports whether the status admits no further transitions.
func (s SnapshotStatus) Terminal() bool {
	return s == SnapshotStatusSuccess || s == SnapshotStatusFailure
}

// Snapshot represents one valuation run across all linked accounts of a user account.
// Status transitions are monotonic: Pending -> Processing -> {Success, Failure}.
type Snapshot struct {
	ID                uuid.UUID
	UserAccountID     uuid.UUID
	Status            SnapshotStatus
	ReportingCurrency string
	StartTime         *time.Time
	EndTime           *time.Time
}

// NewSnapshot creates a pending snapshot for the given user account.
func NewSnapshot(userAccountID uuid.UUID, reportingCurrency string) *Snapshot {
	return &Snapshot{
		ID:                uuid.New(),
		UserAccountID:     userAccountID,
		Status:            SnapshotStatusPending,
		ReportingCurrency: reportingCurrency,
	}
}

// AdvanceTo moves the snapshot to the next status, enforcing the state machine.
// Returns an error on any backward or out-of-order transition, and on any
// transition away from a terminal status.
func (s *Snapshot) AdvanceTo(next SnapshotStatus) error {
	if s.Status.Terminal() {
		return fmt.Errorf("snapshot %s is terminal (%s): %w", s.ID, s.Status, ErrTerminalSnapshot)
	}
	switch {
	case s.Status == SnapshotStatusPending && next == SnapshotStatusProcessing:
	case s.Status == SnapshotStatusProcessing && next.Terminal():
	default:
		return fmt.Errorf("invalid snapshot transition %s -> %s", s.Status, next)
	}
	s.Status = next
	return nil
}

// EffectiveAt returns the point in time the snapshot values the portfolio at.
// A snapshot that never completed has no effective time.
func (s *Snapshot) EffectiveAt() (time.Time, error) {
	if !s.Status.Terminal() || s.EndTime == nil {
		return time.Time{}, ErrIncompleteSnapshot
	}
	return *s.EndTime, nil
}

// LinkedAccountEntry is the outcome of collecting one linked account within a
// snapshot. Entries are created once and never updated afterwards.
type LinkedAccountEntry struct {
	ID              uuid.UUID
	SnapshotID      uuid.UUID
	LinkedAccountID uuid.UUID
	Success         bool
	Failure         *FailureDetails
	SubAccounts     []SubAccountEntry
}

// SubAccountEntry is one currency-denominated ledger (cash pocket, loan, ...)
// within a linked account entry.
type SubAccountEntry struct {
	ID                   uuid.UUID
	LinkedAccountEntryID uuid.UUID
	SubAccountID         string
	Currency             string
	Description          string
	Items                []ItemEntry
}

// ItemType discriminates asset and liability line items
type ItemType string

const (
	ItemTypeAsset     ItemType = "ASSET"
	ItemTypeLiability ItemType = "LIABILITY"
)

// ItemEntry is one asset or liability line within a sub-account entry.
// NativeValue is denominated in the sub-account currency; ReportingValue is
// the converted value in the snapshot's reporting currency, nil when no
// usable exchange rate was available (valuation unavailable, not zero).
type ItemEntry struct {
	ID                uuid.UUID
	SubAccountEntryID uuid.UUID
	Type              ItemType
	Name              string
	Subtype           string
	Units             *decimal.Decimal
	NativeValue       decimal.Decimal
	ReportingValue    *decimal.Decimal
}

// FailureDetailsVersion is the current schema version of the persisted
// failure payload.
const FailureDetailsVersion = 1

// FailureDetails is the structured failure payload stored on a failed linked
// account entry. The payload is versioned and validated at the persistence
// boundary rather than trusted as opaque JSON.
type FailureDetails struct {
	Version      int    `json:"version"`
	UserMessage  string `json:"user_message"`
	DebugMessage string `json:"debug_message"`
	Trace        string `json:"trace"`
}

// NewFailureDetails builds a failure payload at the current schema version.
func NewFailureDetails(userMessage, debugMessage, trace string) *FailureDetails {
	return &FailureDetails{
		Version:      FailureDetailsVersion,
		UserMessage:  userMessage,
		DebugMessage: debugMessage,
		Trace:        trace,
	}
}

// Validate checks the payload against its declared schema version.
func (f *FailureDetails) Validate() error {
	if f.Version != FailureDetailsVersion {
		return fmt.Errorf("unsupported failure details version %d", f.Version)
	}
	if f.UserMessage == "" {
		return errors.New("failure details must carry a user message")
	}
	return nil
}

// Details returns the wire-level error envelope for this failure.
func (f *FailureDetails) Details() ErrorDetails {
	return ErrorDetails{
		UserMessage:  f.UserMessage,
		DebugMessage: f.DebugMessage,
		Trace:        f.Trace,
	}
}

// LinkedAccount is a credentialed binding between a user account and one
// external financial source. Credential encryption is owned by an external
// collaborator; this core treats the blob as opaque.
type LinkedAccount struct {
	ID                   uuid.UUID
	UserAccountID        uuid.UUID
	ProviderID           string
	AccountName          string
	EncryptedCredentials []byte
}
