package postgres

import (
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
)

// nullDecimal maps an optional decimal onto a nullable text column,
// serialized the same way as non-null decimals (String form).
func nullDecimal(value *decimal.Decimal) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: value.String(), Valid: true}
}

// parseNullDecimal parses a nullable text column back into an optional decimal.
func parseNullDecimal(raw sql.NullString) (*decimal.Decimal, error) {
	if !raw.Valid {
		return nil, nil
	}
	value, err := decimal.NewFromString(raw.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse decimal column: %w", err)
	}
	return &value, nil
}
