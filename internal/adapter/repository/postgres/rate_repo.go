package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finsight/finsight-backend/internal/domain"
)

// rateRepository implements domain.RateRepository
type rateRepository struct {
	db *DB
}

// NewRateRepository creates a new exchange rate repository
func NewRateRepository(db *DB) domain.RateRepository {
	return &rateRepository{db: db}
}

// Save persists one resolved rate. Rows are keyed by (snapshot, pair) and
// immutable once written.
func (r *rateRepository) Save(ctx context.Context, rate *domain.XccyRate) error {
	query := `
		INSERT INTO xccy_rates (snapshot_id, xccy_pair, rate)
		VALUES ($1, $2, $3)
	`

	_, err := r.db.ExecContext(ctx, query,
		rate.SnapshotID,
		rate.Pair.String(),
		rate.Rate.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert rate %s: %w", rate.Pair, err)
	}

	return nil
}

// ListBySnapshot retrieves every rate resolved for a snapshot
func (r *rateRepository) ListBySnapshot(ctx context.Context, snapshotID uuid.UUID) ([]*domain.XccyRate, error) {
	query := `
		SELECT snapshot_id, xccy_pair, rate
		FROM xccy_rates
		WHERE snapshot_id = $1
		ORDER BY xccy_pair
	`

	rows, err := r.db.QueryContext(ctx, query, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rates: %w", err)
	}
	defer rows.Close()

	var rates []*domain.XccyRate
	for rows.Next() {
		rate, err := scanRate(rows)
		if err != nil {
			return nil, err
		}
		rates = append(rates, rate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rates: %w", err)
	}

	return rates, nil
}

func scanRate(rows *sql.Rows) (*domain.XccyRate, error) {
	var rate domain.XccyRate
	var pairStr, rateStr string
	if err := rows.Scan(&rate.SnapshotID, &pairStr, &rateStr); err != nil {
		return nil, fmt.Errorf("failed to scan rate: %w", err)
	}

	pair, err := domain.ParsePair(pairStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse xccy_pair: %w", err)
	}
	rate.Pair = pair

	value, err := decimal.NewFromString(rateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rate: %w", err)
	}
	rate.Rate = value

	return &rate, nil
}
