package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/finsight/finsight-backend/internal/domain"
)

// linkedAccountRepository implements domain.LinkedAccountRepository
type linkedAccountRepository struct {
	db *DB
}

// NewLinkedAccountRepository creates a new linked account repository
func NewLinkedAccountRepository(db *DB) domain.LinkedAccountRepository {
	return &linkedAccountRepository{db: db}
}

// GetByID retrieves a linked account by its ID
func (r *linkedAccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.LinkedAccount, error) {
	query := `
		SELECT id, user_account_id, provider_id, account_name, encrypted_credentials
		FROM linked_accounts
		WHERE id = $1
	`

	var account domain.LinkedAccount
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&account.ID,
		&account.UserAccountID,
		&account.ProviderID,
		&account.AccountName,
		&account.EncryptedCredentials,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("linked account not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get linked account by ID: %w", err)
	}

	return &account, nil
}

// ListByUserAccount retrieves every linked account of a user account
func (r *linkedAccountRepository) ListByUserAccount(ctx context.Context, userAccountID uuid.UUID) ([]*domain.LinkedAccount, error) {
	query := `
		SELECT id, user_account_id, provider_id, account_name, encrypted_credentials
		FROM linked_accounts
		WHERE user_account_id = $1
		ORDER BY account_name
	`

	rows, err := r.db.QueryContext(ctx, query, userAccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.LinkedAccount
	for rows.Next() {
		var account domain.LinkedAccount
		if err := rows.Scan(
			&account.ID,
			&account.UserAccountID,
			&account.ProviderID,
			&account.AccountName,
			&account.EncryptedCredentials,
		); err != nil {
			return nil, fmt.Errorf("failed to scan linked account: %w", err)
		}
		accounts = append(accounts, &account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate linked accounts: %w", err)
	}

	return accounts, nil
}
