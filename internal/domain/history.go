package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Horizon is a fixed look-back window used for change computation
type Horizon string

const (
	Horizon1Hour   Horizon = "1h"
	Horizon1Day    Horizon = "1d"
	Horizon1Week   Horizon = "1w"
	Horizon1Month  Horizon = "1mo"
	Horizon6Months Horizon = "6mo"
	Horizon1Year   Horizon = "1y"
	Horizon2Years  Horizon = "2y"
)

// Horizons lists every supported horizon, shortest first.
var Horizons = []Horizon{
	Horizon1Hour,
	Horizon1Day,
	Horizon1Week,
	Horizon1Month,
	Horizon6Months,
	Horizon1Year,
	Horizon2Years,
}

// Cutoff returns the point in time `from - horizon`. Month and year horizons
// use calendar arithmetic rather than fixed durations.
func (h Horizon) Cutoff(from time.Time) time.Time {
	switch h {
	case Horizon1Hour:
		return from.Add(-time.Hour)
	case Horizon1Day:
		return from.AddDate(0, 0, -1)
	case Horizon1Week:
		return from.AddDate(0, 0, -7)
	case Horizon1Month:
		return from.AddDate(0, -1, 0)
	case Horizon6Months:
		return from.AddDate(0, -6, 0)
	case Horizon1Year:
		return from.AddDate(-1, 0, 0)
	case Horizon2Years:
		return from.AddDate(-2, 0, 0)
	}
	return from
}

// ChangeEntry carries relative valuation deltas at the fixed horizons.
// A nil horizon value means the change is undefined for that horizon
// (no prior entry, or prior valuation of zero) and is distinct from zero.
type ChangeEntry struct {
	ID            uuid.UUID
	Change1Hour   *decimal.Decimal
	Change1Day    *decimal.Decimal
	Change1Week   *decimal.Decimal
	Change1Month  *decimal.Decimal
	Change6Months *decimal.Decimal
	Change1Year   *decimal.Decimal
	Change2Years  *decimal.Decimal
}

// SetChange records the delta for one horizon.
func (c *ChangeEntry) SetChange(h Horizon, change *decimal.Decimal) {
	switch h {
	case Horizon1Hour:
		c.Change1Hour = change
	case Horizon1Day:
		c.Change1Day = change
	case Horizon1Week:
		c.Change1Week = change
	case Horizon1Month:
		c.Change1Month = change
	case Horizon6Months:
		c.Change6Months = change
	case Horizon1Year:
		c.Change1Year = change
	case Horizon2Years:
		c.Change2Years = change
	}
}

// Change returns the delta recorded for one horizon.
func (c *ChangeEntry) Change(h Horizon) *decimal.Decimal {
	switch h {
	case Horizon1Hour:
		return c.Change1Hour
	case Horizon1Day:
		return c.Change1Day
	case Horizon1Week:
		return c.Change1Week
	case Horizon1Month:
		return c.Change1Month
	case Horizon6Months:
		return c.Change6Months
	case Horizon1Year:
		return c.Change1Year
	case Horizon2Years:
		return c.Change2Years
	}
	return nil
}

// ScopeKind discriminates the four levels of the valuation hierarchy a
// history row can refer to.
type ScopeKind string

const (
	ScopeKindAccount       ScopeKind = "ACCOUNT"
	ScopeKindLinkedAccount ScopeKind = "LINKED_ACCOUNT"
	ScopeKindSubAccount    ScopeKind = "SUB_ACCOUNT"
	ScopeKindItem          ScopeKind = "ITEM"
)

// Scope identifies one node of the valuation hierarchy across snapshots.
// Children carry their parent identifiers; there are no back references.
type Scope struct {
	Kind            ScopeKind
	UserAccountID   uuid.UUID
	LinkedAccountID uuid.UUID
	SubAccountID    string
	ItemType        ItemType
	ItemName        string
}

// AccountScope addresses the whole user account.
func AccountScope(userAccountID uuid.UUID) Scope {
	return Scope{Kind: ScopeKindAccount, UserAccountID: userAccountID}
}

// LinkedAccountScope addresses one linked account of a user account.
func LinkedAccountScope(userAccountID, linkedAccountID uuid.UUID) Scope {
	return Scope{
		Kind:            ScopeKindLinkedAccount,
		UserAccountID:   userAccountID,
		LinkedAccountID: linkedAccountID,
	}
}

// SubAccountScope addresses one sub-account of a linked account.
func SubAccountScope(userAccountID, linkedAccountID uuid.UUID, subAccountID string) Scope {
	return Scope{
		Kind:            ScopeKindSubAccount,
		UserAccountID:   userAccountID,
		LinkedAccountID: linkedAccountID,
		SubAccountID:    subAccountID,
	}
}

// ItemScope addresses one item line of a sub-account. Items have no stable
// external identifier, so the (type, name) pair plays that role, matching
// how item rows are keyed in the historical store.
func ItemScope(userAccountID, linkedAccountID uuid.UUID, subAccountID string, itemType ItemType, itemName string) Scope {
	return Scope{
		Kind:            ScopeKindItem,
		UserAccountID:   userAccountID,
		LinkedAccountID: linkedAccountID,
		SubAccountID:    subAccountID,
		ItemType:        itemType,
		ItemName:        itemName,
	}
}

func (s Scope) String() string {
	switch s.Kind {
	case ScopeKindAccount:
		return fmt.Sprintf("account/%s", s.UserAccountID)
	case ScopeKindLinkedAccount:
		return fmt.Sprintf("account/%s/linked/%s", s.UserAccountID, s.LinkedAccountID)
	case ScopeKindSubAccount:
		return fmt.Sprintf("account/%s/linked/%s/sub/%s", s.UserAccountID, s.LinkedAccountID, s.SubAccountID)
	case ScopeKindItem:
		return fmt.Sprintf("account/%s/linked/%s/sub/%s/item/%s/%s",
			s.UserAccountID, s.LinkedAccountID, s.SubAccountID, s.ItemType, s.ItemName)
	}
	return "scope/unknown"
}

// HistoryEntry is the root of one historical record: one row per completed
// snapshot per user account. Scope valuations hang off it. Available starts
// false and is flipped only once the entry and every descendant scope row
// have been durably written.
type HistoryEntry struct {
	ID               uuid.UUID
	UserAccountID    uuid.UUID
	SourceSnapshotID uuid.UUID
	Currency         string
	EffectiveAt      time.Time
	Available        bool
}

// ScopeValuation is the historical valuation of one scope at one history
// entry. TotalAssets is always derived, never stored, so it can not drift
// from valuation and liabilities.
type ScopeValuation struct {
	HistoryEntryID   uuid.UUID
	Scope            Scope
	Valuation        decimal.Decimal
	TotalLiabilities decimal.Decimal
	NativeCurrency   string
	NativeValuation  *decimal.Decimal
	ChangeID         *uuid.UUID
	EffectiveAt      time.Time
}

// TotalAssets returns valuation minus total liabilities.
func (v *ScopeValuation) TotalAssets() decimal.Decimal {
	return v.Valuation.Sub(v.TotalLiabilities)
}
