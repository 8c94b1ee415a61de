package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finsight/finsight-backend/internal/domain"
)

// historyRepository implements domain.HistoryRepository
type historyRepository struct {
	db *DB
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *DB) domain.HistoryRepository {
	return &historyRepository{db: db}
}

// CreateEntry persists a history entry root. Entries start unavailable and
// are published separately via MarkAvailable.
func (r *historyRepository) CreateEntry(ctx context.Context, entry *domain.HistoryEntry) error {
	query := `
		INSERT INTO history_entries (id, user_account_id, source_snapshot_id, currency, effective_at, available)
		VALUES ($1, $2, $3, $4, $5, FALSE)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.UserAccountID,
		entry.SourceSnapshotID,
		entry.Currency,
		entry.EffectiveAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}

	return nil
}

// SaveChange persists one change entry
func (r *historyRepository) SaveChange(ctx context.Context, change *domain.ChangeEntry) error {
	query := `
		INSERT INTO change_entries (id, change_1hour, change_1day, change_1week, change_1month, change_6months, change_1year, change_2years)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		change.ID,
		nullDecimal(change.Change1Hour),
		nullDecimal(change.Change1Day),
		nullDecimal(change.Change1Week),
		nullDecimal(change.Change1Month),
		nullDecimal(change.Change6Months),
		nullDecimal(change.Change1Year),
		nullDecimal(change.Change2Years),
	)
	if err != nil {
		return fmt.Errorf("failed to insert change entry: %w", err)
	}

	return nil
}

// SaveValuation persists one scope valuation row
func (r *historyRepository) SaveValuation(ctx context.Context, valuation *domain.ScopeValuation) error {
	query := `
		INSERT INTO valuation_history (
			history_entry_id, scope_kind, user_account_id, linked_account_id,
			sub_account_id, item_type, item_name,
			valuation, total_liabilities, native_currency, native_valuation,
			change_id, effective_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	args := scopeArgs(valuation.Scope)
	var changeID uuid.NullUUID
	if valuation.ChangeID != nil {
		changeID = uuid.NullUUID{UUID: *valuation.ChangeID, Valid: true}
	}
	var nativeCurrency sql.NullString
	if valuation.NativeCurrency != "" {
		nativeCurrency = sql.NullString{String: valuation.NativeCurrency, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		valuation.HistoryEntryID,
		string(valuation.Scope.Kind),
		valuation.Scope.UserAccountID,
		args.linkedAccountID,
		args.subAccountID,
		args.itemType,
		args.itemName,
		valuation.Valuation.String(),
		valuation.TotalLiabilities.String(),
		nativeCurrency,
		nullDecimal(valuation.NativeValuation),
		changeID,
		valuation.EffectiveAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert valuation for %s: %w", valuation.Scope, err)
	}

	return nil
}

// LatestValuation retrieves the most recent available valuation for a scope
// with effective time at or before the cutoff.
func (r *historyRepository) LatestValuation(ctx context.Context, scope domain.Scope, cutoff time.Time) (*domain.ScopeValuation, error) {
	query := `
		SELECT v.history_entry_id, v.valuation, v.total_liabilities,
		       v.native_currency, v.native_valuation, v.change_id, v.effective_at
		FROM valuation_history v
		JOIN history_entries h ON h.id = v.history_entry_id
		WHERE h.available
		  AND v.scope_kind = $1
		  AND v.user_account_id = $2
		  AND v.linked_account_id IS NOT DISTINCT FROM $3
		  AND v.sub_account_id IS NOT DISTINCT FROM $4
		  AND v.item_type IS NOT DISTINCT FROM $5
		  AND v.item_name IS NOT DISTINCT FROM $6
		  AND v.effective_at <= $7
		ORDER BY v.effective_at DESC
		LIMIT 1
	`

	args := scopeArgs(scope)
	var valuation domain.ScopeValuation
	var valuationStr, liabilitiesStr string
	var nativeCurrency, nativeValuationStr sql.NullString
	var changeID uuid.NullUUID

	err := r.db.QueryRowContext(ctx, query,
		string(scope.Kind),
		scope.UserAccountID,
		args.linkedAccountID,
		args.subAccountID,
		args.itemType,
		args.itemName,
		cutoff,
	).Scan(
		&valuation.HistoryEntryID,
		&valuationStr,
		&liabilitiesStr,
		&nativeCurrency,
		&nativeValuationStr,
		&changeID,
		&valuation.EffectiveAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("scope %s before %s: %w", scope, cutoff, domain.ErrNoHistory)
		}
		return nil, fmt.Errorf("failed to get latest valuation for %s: %w", scope, err)
	}

	valuation.Scope = scope
	if valuation.Valuation, err = decimal.NewFromString(valuationStr); err != nil {
		return nil, fmt.Errorf("failed to parse valuation: %w", err)
	}
	if valuation.TotalLiabilities, err = decimal.NewFromString(liabilitiesStr); err != nil {
		return nil, fmt.Errorf("failed to parse total_liabilities: %w", err)
	}
	if valuation.NativeValuation, err = parseNullDecimal(nativeValuationStr); err != nil {
		return nil, err
	}
	valuation.NativeCurrency = nativeCurrency.String
	if changeID.Valid {
		valuation.ChangeID = &changeID.UUID
	}

	return &valuation, nil
}

// MarkAvailable publishes a history entry to readers as a single atomic row
// update. Until this runs, the entry and its whole subtree are invisible to
// availability-filtered reads.
func (r *historyRepository) MarkAvailable(ctx context.Context, entryID uuid.UUID) error {
	query := `
		UPDATE history_entries
		SET available = TRUE
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, entryID)
	if err != nil {
		return fmt.Errorf("failed to mark history entry available: %w", err)
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("history entry %s not found", entryID)
	}

	return nil
}

// scopeColumns holds the nullable scope key columns of a valuation row.
type scopeColumns struct {
	linkedAccountID uuid.NullUUID
	subAccountID    sql.NullString
	itemType        sql.NullString
	itemName        sql.NullString
}

func scopeArgs(scope domain.Scope) scopeColumns {
	var cols scopeColumns
	switch scope.Kind {
	case domain.ScopeKindLinkedAccount:
		cols.linkedAccountID = uuid.NullUUID{UUID: scope.LinkedAccountID, Valid: true}
	case domain.ScopeKindSubAccount:
		cols.linkedAccountID = uuid.NullUUID{UUID: scope.LinkedAccountID, Valid: true}
		cols.subAccountID = sql.NullString{String: scope.SubAccountID, Valid: true}
	case domain.ScopeKindItem:
		cols.linkedAccountID = uuid.NullUUID{UUID: scope.LinkedAccountID, Valid: true}
		cols.subAccountID = sql.NullString{String: scope.SubAccountID, Valid: true}
		cols.itemType = sql.NullString{String: string(scope.ItemType), Valid: true}
		cols.itemName = sql.NullString{String: scope.ItemName, Valid: true}
	}
	return cols
}
