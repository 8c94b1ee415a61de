package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// CredentialsVersion is the current schema version of the credentials payload.
const CredentialsVersion = 1

// Credentials is the tagged credentials payload handed to a provider adapter.
// The payload is versioned and validated at the boundary; the meaning of the
// individual secrets is private to each adapter.
type Credentials struct {
	Version int               `json:"version"`
	UserID  string            `json:"user_id"`
	Secrets map[string]string `json:"secrets"`
}

// Validate checks the payload against its declared schema version.
func (c Credentials) Validate() error {
	if c.Version != CredentialsVersion {
		return fmt.Errorf("unsupported credentials version %d", c.Version)
	}
	if c.UserID == "" {
		return errors.New("credentials must carry a user id")
	}
	return nil
}

// ExternalAccount identifies one account at the external source, as reported
// by the provider adapter.
type ExternalAccount struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Currency string `json:"iso_currency"`
}

// Balance is one account-level balance row returned by an adapter.
type Balance struct {
	Account ExternalAccount `json:"account"`
	Balance decimal.Decimal `json:"balance"`
}

// Asset is one asset position held in an external account.
type Asset struct {
	Name  string           `json:"name"`
	Type  string           `json:"type"`
	Units *decimal.Decimal `json:"units,omitempty"`
	Value decimal.Decimal  `json:"value"`
}

// AccountAssets groups the asset positions of one external account.
type AccountAssets struct {
	Account ExternalAccount `json:"account"`
	Assets  []Asset         `json:"assets"`
}

// Liability is one liability position held in an external account.
// Value is the outstanding amount, reported as a positive magnitude.
type Liability struct {
	Name  string          `json:"name"`
	Type  string          `json:"type"`
	Value decimal.Decimal `json:"value"`
}

// AccountLiabilities groups the liability positions of one external account.
type AccountLiabilities struct {
	Account     ExternalAccount `json:"account"`
	Liabilities []Liability     `json:"liabilities"`
}

// ProviderAdapter is the capability contract every external data source
// implementation exposes.
//
// Authenticate must return *AuthError when the source rejected the
// credentials and any other error otherwise. After a successful
// Authenticate the fetch methods operate on the authenticated session.
// Close releases the session and must be called exactly once, however the
// session ends. Adapters are not assumed safe for concurrent calls on the
// same instance.
type ProviderAdapter interface {
	Authenticate(ctx context.Context, credentials Credentials) error
	GetBalances(ctx context.Context) ([]Balance, error)
	GetAssets(ctx context.Context) ([]AccountAssets, error)
	GetLiabilities(ctx context.Context) ([]AccountLiabilities, error)
	Close() error
}
