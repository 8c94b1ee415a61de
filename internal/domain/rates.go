package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CurrencyPair is an ordered (base, quote) currency pair. The rate of a pair
// expresses how many units of the quote currency one unit of the base
// currency is worth.
type CurrencyPair struct {
	Base  string
	Quote string
}

// NewPair builds a currency pair from two ISO 4217 codes.
func NewPair(base, quote string) CurrencyPair {
	return CurrencyPair{Base: base, Quote: quote}
}

// Inverse returns the reversed pair.
func (p CurrencyPair) Inverse() CurrencyPair {
	return CurrencyPair{Base: p.Quote, Quote: p.Base}
}

// Identity reports whether both legs are the same currency.
func (p CurrencyPair) Identity() bool {
	return p.Base == p.Quote
}

// String renders the pair in its 6-character wire form, e.g. "EURUSD".
func (p CurrencyPair) String() string {
	return p.Base + p.Quote
}

// ParsePair parses the 6-character wire form of a currency pair.
func ParsePair(raw string) (CurrencyPair, error) {
	if len(raw) != 6 {
		return CurrencyPair{}, fmt.Errorf("invalid currency pair %q", raw)
	}
	return CurrencyPair{Base: raw[:3], Quote: raw[3:]}, nil
}

// XccyRate is one exchange rate resolved for one snapshot, keyed by
// (snapshot, pair). Rows are immutable once written so a snapshot's
// valuations can always be audited against the rates it used.
type XccyRate struct {
	SnapshotID uuid.UUID
	Pair       CurrencyPair
	Rate       decimal.Decimal
}

// RateSource is the external collaborator resolving exchange rates.
// Lookup returns ErrRateNotFound (possibly wrapped) when no rate is known
// for the pair at the given time.
type RateSource interface {
	Lookup(ctx context.Context, pair CurrencyPair, asOf time.Time) (decimal.Decimal, error)
}
