package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/finsight/finsight-backend/internal/domain"
)

// snapshotRepository implements domain.SnapshotRepository
type snapshotRepository struct {
	db *DB
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *DB) domain.SnapshotRepository {
	return &snapshotRepository{db: db}
}

// Create persists a freshly created snapshot
func (r *snapshotRepository) Create(ctx context.Context, snapshot *domain.Snapshot) error {
	query := `
		INSERT INTO snapshots (id, user_account_id, status, reporting_currency, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		snapshot.ID,
		snapshot.UserAccountID,
		string(snapshot.Status),
		snapshot.ReportingCurrency,
		snapshot.StartTime,
		snapshot.EndTime,
	)
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}

	return nil
}

// Update persists status and timestamp changes of a snapshot
func (r *snapshotRepository) Update(ctx context.Context, snapshot *domain.Snapshot) error {
	query := `
		UPDATE snapshots
		SET status = $2, start_time = $3, end_time = $4
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query,
		snapshot.ID,
		string(snapshot.Status),
		snapshot.StartTime,
		snapshot.EndTime,
	)
	if err != nil {
		return fmt.Errorf("failed to update snapshot: %w", err)
	}

	return nil
}

// GetByID retrieves a snapshot by its ID
func (r *snapshotRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Snapshot, error) {
	query := `
		SELECT id, user_account_id, status, reporting_currency, start_time, end_time
		FROM snapshots
		WHERE id = $1
	`

	var snapshot domain.Snapshot
	var status string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&snapshot.ID,
		&snapshot.UserAccountID,
		&status,
		&snapshot.ReportingCurrency,
		&snapshot.StartTime,
		&snapshot.EndTime,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("snapshot not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get snapshot by ID: %w", err)
	}
	snapshot.Status = domain.SnapshotStatus(status)

	return &snapshot, nil
}

// SaveLinkedAccountEntry persists one linked account entry together with its
// sub-account and item entries, atomically.
func (r *snapshotRepository) SaveLinkedAccountEntry(ctx context.Context, entry *domain.LinkedAccountEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var failurePayload sql.NullString
	if entry.Failure != nil {
		if err := entry.Failure.Validate(); err != nil {
			return fmt.Errorf("refusing to persist failure details: %w", err)
		}
		raw, err := json.Marshal(entry.Failure)
		if err != nil {
			return fmt.Errorf("failed to encode failure details: %w", err)
		}
		failurePayload = sql.NullString{String: string(raw), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO linked_account_entries (id, snapshot_id, linked_account_id, success, failure_details)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.ID, entry.SnapshotID, entry.LinkedAccountID, entry.Success, failurePayload)
	if err != nil {
		return fmt.Errorf("failed to insert linked account entry: %w", err)
	}

	for i := range entry.SubAccounts {
		if err := saveSubAccountEntry(ctx, tx, &entry.SubAccounts[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit linked account entry: %w", err)
	}
	return nil
}

func saveSubAccountEntry(ctx context.Context, tx *sql.Tx, sub *domain.SubAccountEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sub_account_entries (id, linked_account_entry_id, sub_account_id, currency, description)
		VALUES ($1, $2, $3, $4, $5)
	`, sub.ID, sub.LinkedAccountEntryID, sub.SubAccountID, sub.Currency, sub.Description)
	if err != nil {
		return fmt.Errorf("failed to insert sub-account entry: %w", err)
	}

	for i := range sub.Items {
		item := &sub.Items[i]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO item_entries (id, sub_account_entry_id, item_type, name, subtype, units, native_value, reporting_value)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`,
			item.ID,
			item.SubAccountEntryID,
			string(item.Type),
			item.Name,
			item.Subtype,
			nullDecimal(item.Units),
			item.NativeValue.String(),
			nullDecimal(item.ReportingValue),
		)
		if err != nil {
			return fmt.Errorf("failed to insert item entry: %w", err)
		}
	}
	return nil
}
