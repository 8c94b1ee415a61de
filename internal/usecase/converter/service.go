package converter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/finsight/finsight-backend/internal/domain"
)

// RateTable holds the reporting-currency rates resolved for one snapshot.
// A currency absent from the table means no usable rate exists; dependent
// valuations must be marked unavailable, never defaulted.
type RateTable struct {
	reporting string
	rates     map[string]decimal.Decimal
}

// Reporting returns the reporting currency the table converts into.
func (t *RateTable) Reporting() string {
	return t.reporting
}

// Has reports whether a native currency can be converted.
func (t *RateTable) Has(currency string) bool {
	if currency == t.reporting {
		return true
	}
	_, ok := t.rates[currency]
	return ok
}

// Convert converts a native-currency value into the reporting currency.
// The boolean is false when no rate is available for the currency.
func (t *RateTable) Convert(value decimal.Decimal, currency string) (decimal.Decimal, bool) {
	if currency == t.reporting {
		return value, true
	}
	rate, ok := t.rates[currency]
	if !ok {
		return decimal.Decimal{}, false
	}
	return value.Mul(rate), true
}

// Rate returns the resolved (native -> reporting) rate for a currency.
func (t *RateTable) Rate(currency string) (decimal.Decimal, bool) {
	if currency == t.reporting {
		return decimal.NewFromInt(1), true
	}
	rate, ok := t.rates[currency]
	return rate, ok
}

// Service resolves exchange rates for a snapshot and records them for audit
type Service struct {
	Source   domain.RateSource
	RateRepo domain.RateRepository
	Logger   *zap.Logger
}

// NewService creates a new converter service instance
func NewService(source domain.RateSource, rateRepo domain.RateRepository, logger *zap.Logger) *Service {
	return &Service{
		Source:   source,
		RateRepo: rateRepo,
		Logger:   logger,
	}
}

// ResolveRates resolves one (native -> reporting) rate per native currency
// present in the snapshot, as of the given time. When only the inverse pair
// is known, its reciprocal is used. Every resolved rate is persisted against
// the snapshot so its valuations stay auditable. A currency with no rate in
// either direction is left out of the table; the valuations depending on it
// fail individually rather than failing the snapshot here.
func (s *Service) ResolveRates(ctx context.Context, snapshot *domain.Snapshot, currencies []string, asOf time.Time) (*RateTable, error) {
	table := &RateTable{
		reporting: snapshot.ReportingCurrency,
		rates:     make(map[string]decimal.Decimal, len(currencies)),
	}

	for _, currency := range currencies {
		pair := domain.NewPair(currency, snapshot.ReportingCurrency)
		if pair.Identity() {
			continue
		}

		rate, err := s.resolvePair(ctx, pair, asOf)
		if err != nil {
			// Dependent valuations are marked unavailable by callers.
			s.Logger.Warn("no exchange rate resolved",
				zap.String("snapshot_id", snapshot.ID.String()),
				zap.String("pair", pair.String()),
				zap.Error(err))
			continue
		}

		table.rates[currency] = rate
		if err := s.RateRepo.Save(ctx, &domain.XccyRate{
			SnapshotID: snapshot.ID,
			Pair:       pair,
			Rate:       rate,
		}); err != nil {
			return nil, fmt.Errorf("failed to persist rate %s: %w", pair, err)
		}
	}

	return table, nil
}

// resolvePair looks up the pair directly, falling back to the reciprocal of
// the inverse pair.
func (s *Service) resolvePair(ctx context.Context, pair domain.CurrencyPair, asOf time.Time) (decimal.Decimal, error) {
	rate, err := s.Source.Lookup(ctx, pair, asOf)
	if err == nil {
		return rate, nil
	}
	if !errors.Is(err, domain.ErrRateNotFound) {
		return decimal.Zero, err
	}

	inverse, invErr := s.Source.Lookup(ctx, pair.Inverse(), asOf)
	if invErr != nil {
		return decimal.Zero, err
	}
	if inverse.IsZero() {
		return decimal.Zero, fmt.Errorf("inverse rate for %s is zero", pair)
	}
	return decimal.NewFromInt(1).Div(inverse), nil
}
