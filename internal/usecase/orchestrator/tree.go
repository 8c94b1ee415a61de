package orchestrator

import (
	"github.com/google/uuid"

	"github.com/finsight/finsight-backend/internal/domain"
)

// buildSubAccounts folds the per-item results of one session into the
// sub-account/item tree owned by a linked account entry. Item results that
// carry an inline error contribute nothing; their siblings still do.
//
// Adapters report liability amounts as positive magnitudes; they are stored
// signed (negative) so that summing item values yields net valuations at
// every level of the tree.
func buildSubAccounts(entryID uuid.UUID, items []ItemResult) []domain.SubAccountEntry {
	index := make(map[string]int)
	var subAccounts []domain.SubAccountEntry

	ensure := func(account domain.ExternalAccount) *domain.SubAccountEntry {
		if i, ok := index[account.ID]; ok {
			return &subAccounts[i]
		}
		subAccounts = append(subAccounts, domain.SubAccountEntry{
			ID:                   uuid.New(),
			LinkedAccountEntryID: entryID,
			SubAccountID:         account.ID,
			Currency:             account.Currency,
			Description:          account.Name,
		})
		index[account.ID] = len(subAccounts) - 1
		return &subAccounts[len(subAccounts)-1]
	}

	for _, item := range items {
		if item.Error != nil {
			continue
		}

		for _, balance := range item.Balances {
			sub := ensure(balance.Account)
			sub.Items = append(sub.Items, domain.ItemEntry{
				ID:                uuid.New(),
				SubAccountEntryID: sub.ID,
				Type:              domain.ItemTypeAsset,
				Name:              "cash",
				Subtype:           "balance",
				NativeValue:       balance.Balance,
			})
		}

		for _, accountAssets := range item.Assets {
			sub := ensure(accountAssets.Account)
			for _, asset := range accountAssets.Assets {
				sub.Items = append(sub.Items, domain.ItemEntry{
					ID:                uuid.New(),
					SubAccountEntryID: sub.ID,
					Type:              domain.ItemTypeAsset,
					Name:              asset.Name,
					Subtype:           asset.Type,
					Units:             asset.Units,
					NativeValue:       asset.Value,
				})
			}
		}

		for _, accountLiabilities := range item.Liabilities {
			sub := ensure(accountLiabilities.Account)
			for _, liability := range accountLiabilities.Liabilities {
				sub.Items = append(sub.Items, domain.ItemEntry{
					ID:                uuid.New(),
					SubAccountEntryID: sub.ID,
					Type:              domain.ItemTypeLiability,
					Name:              liability.Name,
					Subtype:           liability.Type,
					NativeValue:       liability.Value.Neg(),
				})
			}
		}
	}

	return subAccounts
}
