// Package ratesource provides rate source implementations backing the
// currency converter.
package ratesource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finsight/finsight-backend/internal/domain"
)

// Static is an in-memory rate source holding one rate per pair, independent
// of the as-of time. It backs tests and dev deployments; production wires a
// real market data collaborator behind the same interface.
type Static struct {
	mu    sync.RWMutex
	rates map[string]decimal.Decimal
}

// NewStatic creates an empty static rate source.
func NewStatic() *Static {
	return &Static{rates: make(map[string]decimal.Decimal)}
}

// Set stores the rate for one pair.
func (s *Static) Set(pair domain.CurrencyPair, rate decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[pair.String()] = rate
}

// Lookup returns the stored rate for the pair, or domain.ErrRateNotFound.
func (s *Static) Lookup(_ context.Context, pair domain.CurrencyPair, _ time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	rate, ok := s.rates[pair.String()]
	s.mu.RUnlock()
	if !ok {
		return decimal.Zero, fmt.Errorf("pair %s: %w", pair, domain.ErrRateNotFound)
	}
	return rate, nil
}
