package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LinkedAccountRepository defines the interface for linked account persistence operations
type LinkedAccountRepository interface {
	// GetByID retrieves a linked account by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*LinkedAccount, error)

	// ListByUserAccount retrieves every linked account of a user account
	ListByUserAccount(ctx context.Context, userAccountID uuid.UUID) ([]*LinkedAccount, error)
}

// SnapshotRepository defines the interface for snapshot graph persistence operations
type SnapshotRepository interface {
	// Create persists a freshly created snapshot
	Create(ctx context.Context, snapshot *Snapshot) error

	// Update persists status and end-time changes of a snapshot
	Update(ctx context.Context, snapshot *Snapshot) error

	// GetByID retrieves a snapshot by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*Snapshot, error)

	// SaveLinkedAccountEntry persists one linked account entry together with
	// its sub-account and item entries
	SaveLinkedAccountEntry(ctx context.Context, entry *LinkedAccountEntry) error
}

// RateRepository defines the interface for per-snapshot exchange rate persistence
type RateRepository interface {
	// Save persists one resolved rate; rows are immutable once written
	Save(ctx context.Context, rate *XccyRate) error

	// ListBySnapshot retrieves every rate resolved for a snapshot
	ListBySnapshot(ctx context.Context, snapshotID uuid.UUID) ([]*XccyRate, error)
}

// HistoryRepository defines the interface for historical valuation persistence
type HistoryRepository interface {
	// CreateEntry persists a history entry root (Available = false)
	CreateEntry(ctx context.Context, entry *HistoryEntry) error

	// SaveChange persists one change entry
	SaveChange(ctx context.Context, change *ChangeEntry) error

	// SaveValuation persists one scope valuation row
	SaveValuation(ctx context.Context, valuation *ScopeValuation) error

	// LatestValuation retrieves the most recent available valuation for a
	// scope with effective time at or before the cutoff, ordered by
	// effective time descending, limit one
	LatestValuation(ctx context.Context, scope Scope, cutoff time.Time) (*ScopeValuation, error)

	// MarkAvailable flips the Available flag of a history entry as a single
	// atomic row update, publishing the entry and its subtree to readers
	MarkAvailable(ctx context.Context, entryID uuid.UUID) error
}
