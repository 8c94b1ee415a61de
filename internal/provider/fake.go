package provider

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/finsight/finsight-backend/internal/domain"
)

// FakeID is the identifier the deterministic fake adapter registers under.
const FakeID = "fake"

// FakeAdapter is a deterministic in-memory adapter used by tests and by dev
// deployments without real provider integrations. Canned data and failure
// modes are set on the struct before the session starts.
type FakeAdapter struct {
	Balances    []domain.Balance
	Assets      []domain.AccountAssets
	Liabilities []domain.AccountLiabilities

	// Failure injection; nil means the call succeeds.
	AuthErr        error
	BalancesErr    error
	AssetsErr      error
	LiabilitiesErr error

	authenticated bool
	closed        atomic.Int32
}

// NewFakeAdapter returns a fake session preloaded with a small two-currency
// portfolio: a EUR cash account and a USD brokerage account with one asset
// and one loan.
func NewFakeAdapter() *FakeAdapter {
	units := decimal.NewFromInt(10)
	return &FakeAdapter{
		Balances: []domain.Balance{
			{
				Account: domain.ExternalAccount{ID: "cash", Name: "Cash", Currency: "EUR"},
				Balance: decimal.NewFromInt(2500),
			},
			{
				Account: domain.ExternalAccount{ID: "brokerage", Name: "Brokerage", Currency: "USD"},
				Balance: decimal.NewFromInt(400),
			},
		},
		Assets: []domain.AccountAssets{
			{
				Account: domain.ExternalAccount{ID: "brokerage", Name: "Brokerage", Currency: "USD"},
				Assets: []domain.Asset{
					{Name: "WLD ETF", Type: "equity", Units: &units, Value: decimal.NewFromInt(1200)},
				},
			},
		},
		Liabilities: []domain.AccountLiabilities{
			{
				Account: domain.ExternalAccount{ID: "brokerage", Name: "Brokerage", Currency: "USD"},
				Liabilities: []domain.Liability{
					{Name: "margin loan", Type: "loan", Value: decimal.NewFromInt(300)},
				},
			},
		},
	}
}

// Authenticate validates credentials against the configured failure mode.
func (f *FakeAdapter) Authenticate(_ context.Context, credentials domain.Credentials) error {
	if err := credentials.Validate(); err != nil {
		return domain.NewAuthError(err.Error())
	}
	if f.AuthErr != nil {
		return f.AuthErr
	}
	f.authenticated = true
	return nil
}

// GetBalances returns the canned balance rows.
func (f *FakeAdapter) GetBalances(_ context.Context) ([]domain.Balance, error) {
	if err := f.sessionErr(f.BalancesErr); err != nil {
		return nil, err
	}
	return f.Balances, nil
}

// GetAssets returns the canned asset rows.
func (f *FakeAdapter) GetAssets(_ context.Context) ([]domain.AccountAssets, error) {
	if err := f.sessionErr(f.AssetsErr); err != nil {
		return nil, err
	}
	return f.Assets, nil
}

// GetLiabilities returns the canned liability rows.
func (f *FakeAdapter) GetLiabilities(_ context.Context) ([]domain.AccountLiabilities, error) {
	if err := f.sessionErr(f.LiabilitiesErr); err != nil {
		return nil, err
	}
	return f.Liabilities, nil
}

// Close releases the fake session. Closing twice is an error so tests catch
// double-release bugs in the orchestrator.
func (f *FakeAdapter) Close() error {
	if f.closed.Add(1) > 1 {
		return errors.New("fake adapter closed twice")
	}
	return nil
}

// CloseCalls reports how many times Close ran.
func (f *FakeAdapter) CloseCalls() int {
	return int(f.closed.Load())
}

func (f *FakeAdapter) sessionErr(injected error) error {
	if !f.authenticated {
		return errors.New("fetch before successful authenticate")
	}
	return injected
}
