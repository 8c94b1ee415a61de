// Package aggregator builds the hierarchical valuation tree of a snapshot
// from the orchestrated linked-account entries and the resolved rate table.
//
// Sign convention: item values are signed. Asset items carry positive
// values, liability items carry negative values. With that convention every
// node satisfies
//
//	valuation     = sum of signed child valuations
//	total_assets  = valuation - total_liabilities
//
// and total assets never needs to be stored.
package aggregator

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finsight/finsight-backend/internal/domain"
	"github.com/finsight/finsight-backend/internal/usecase/converter"
)

// ItemValuation is the valued form of one item entry.
type ItemValuation struct {
	Type        domain.ItemType
	Name        string
	Subtype     string
	Units       *decimal.Decimal
	NativeValue decimal.Decimal
	// Valuation is the reporting-currency value, nil when the item's
	// currency had no usable rate (valuation unavailable, not zero).
	Valuation *decimal.Decimal
}

// SubAccountValuation is the valued form of one sub-account entry.
type SubAccountValuation struct {
	SubAccountID     string
	Currency         string
	Description      string
	NativeValuation  decimal.Decimal
	Valuation        *decimal.Decimal
	TotalLiabilities decimal.Decimal
	Items            []ItemValuation
}

// LinkedAccountValuation is the valued form of one linked account entry.
// A failed linked account contributes zero valuation and zero liabilities
// to its parent, never null.
type LinkedAccountValuation struct {
	LinkedAccountID  uuid.UUID
	Success          bool
	Valuation        decimal.Decimal
	TotalLiabilities decimal.Decimal
	SubAccounts      []SubAccountValuation
}

// AccountValuation is the root of the valuation tree for one snapshot.
type AccountValuation struct {
	SnapshotID       uuid.UUID
	UserAccountID    uuid.UUID
	Currency         string
	Valuation        decimal.Decimal
	TotalLiabilities decimal.Decimal
	LinkedAccounts   []LinkedAccountValuation
}

// TotalAssets returns valuation minus total liabilities.
func (a *AccountValuation) TotalAssets() decimal.Decimal {
	return a.Valuation.Sub(a.TotalLiabilities)
}

// Aggregate runs the bottom-up valuation pass over the snapshot tree.
// Converted reporting-currency values are written back onto the item entries
// so both the native and the converted value are retained for audit.
//
// The only fatal outcome is &domain.MissingRateError when positions exist
// but not a single one could be converted into the reporting currency; in
// every other case partial failures degrade to unavailable nodes and the
// aggregate stays usable.
func Aggregate(snapshot *domain.Snapshot, entries []*domain.LinkedAccountEntry, rates *converter.RateTable) (*AccountValuation, error) {
	account := &AccountValuation{
		SnapshotID:     snapshot.ID,
		UserAccountID:  snapshot.UserAccountID,
		Currency:       snapshot.ReportingCurrency,
		LinkedAccounts: make([]LinkedAccountValuation, 0, len(entries)),
	}

	totalSubAccounts := 0
	convertedSubAccounts := 0

	for _, entry := range entries {
		linked := aggregateLinkedAccount(entry, rates)
		for i := range linked.SubAccounts {
			totalSubAccounts++
			if linked.SubAccounts[i].Valuation != nil {
				convertedSubAccounts++
			}
		}
		if linked.Success {
			account.Valuation = account.Valuation.Add(linked.Valuation)
			account.TotalLiabilities = account.TotalLiabilities.Add(linked.TotalLiabilities)
		}
		account.LinkedAccounts = append(account.LinkedAccounts, linked)
	}

	if totalSubAccounts > 0 && convertedSubAccounts == 0 {
		// No reporting-currency total is derivable at all.
		firstCurrency := firstUnconvertedCurrency(entries, rates)
		return nil, &domain.MissingRateError{
			Pair: domain.NewPair(firstCurrency, snapshot.ReportingCurrency),
		}
	}

	return account, nil
}

func aggregateLinkedAccount(entry *domain.LinkedAccountEntry, rates *converter.RateTable) LinkedAccountValuation {
	linked := LinkedAccountValuation{
		LinkedAccountID: entry.LinkedAccountID,
		Success:         entry.Success,
		SubAccounts:     make([]SubAccountValuation, 0, len(entry.SubAccounts)),
	}

	for i := range entry.SubAccounts {
		sub := aggregateSubAccount(&entry.SubAccounts[i], rates)
		if sub.Valuation != nil {
			linked.Valuation = linked.Valuation.Add(*sub.Valuation)
			linked.TotalLiabilities = linked.TotalLiabilities.Add(sub.TotalLiabilities)
		}
		linked.SubAccounts = append(linked.SubAccounts, sub)
	}

	return linked
}

// aggregateSubAccount sums a sub-account's items. All items of one
// sub-account share its native currency, so rate availability is decided
// once per sub-account: without a rate the whole node is unavailable.
func aggregateSubAccount(entry *domain.SubAccountEntry, rates *converter.RateTable) SubAccountValuation {
	sub := SubAccountValuation{
		SubAccountID: entry.SubAccountID,
		Currency:     entry.Currency,
		Description:  entry.Description,
		Items:        make([]ItemValuation, 0, len(entry.Items)),
	}

	convertible := rates.Has(entry.Currency)
	native := decimal.Zero
	valuation := decimal.Zero
	liabilities := decimal.Zero

	for i := range entry.Items {
		item := &entry.Items[i]
		valued := ItemValuation{
			Type:        item.Type,
			Name:        item.Name,
			Subtype:     item.Subtype,
			Units:       item.Units,
			NativeValue: item.NativeValue,
		}

		native = native.Add(item.NativeValue)
		if convertible {
			converted, _ := rates.Convert(item.NativeValue, entry.Currency)
			item.ReportingValue = &converted
			valued.Valuation = &converted
			valuation = valuation.Add(converted)
			if item.Type == domain.ItemTypeLiability {
				liabilities = liabilities.Add(converted)
			}
		}
		sub.Items = append(sub.Items, valued)
	}

	sub.NativeValuation = native
	if convertible {
		sub.Valuation = &valuation
		sub.TotalLiabilities = liabilities
	}
	return sub
}

func firstUnconvertedCurrency(entries []*domain.LinkedAccountEntry, rates *converter.RateTable) string {
	for _, entry := range entries {
		for i := range entry.SubAccounts {
			if !rates.Has(entry.SubAccounts[i].Currency) {
				return entry.SubAccounts[i].Currency
			}
		}
	}
	return ""
}
