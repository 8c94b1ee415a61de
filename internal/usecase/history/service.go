package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/finsight/finsight-backend/internal/domain"
	"github.com/finsight/finsight-backend/internal/usecase/aggregator"
)

// Service derives time-windowed change metrics from the historical store and
// publishes one history entry per successful snapshot
type Service struct {
	History domain.HistoryRepository
	Logger  *zap.Logger
}

// NewService creates a new history roller instance
func NewService(history domain.HistoryRepository, logger *zap.Logger) *Service {
	return &Service{History: history, Logger: logger}
}

// RollUp records the valuation tree of a successful snapshot in the
// historical store.
//
// Write order matters for the no-partial-visibility invariant: the entry
// root is created unavailable, every scope valuation row (with its change
// entry) is written, and only then is the Available flag flipped as a single
// atomic row update. Readers filtering on Available can never observe a
// history entry whose subtree is still being written.
func (s *Service) RollUp(ctx context.Context, snapshot *domain.Snapshot, tree *aggregator.AccountValuation) error {
	effectiveAt, err := snapshot.EffectiveAt()
	if err != nil {
		return err
	}

	entry := &domain.HistoryEntry{
		ID:               uuid.New(),
		UserAccountID:    snapshot.UserAccountID,
		SourceSnapshotID: snapshot.ID,
		Currency:         snapshot.ReportingCurrency,
		EffectiveAt:      effectiveAt,
	}
	if err := s.History.CreateEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to create history entry: %w", err)
	}

	accountScope := domain.AccountScope(snapshot.UserAccountID)
	if err := s.writeValuation(ctx, entry, accountScope, tree.Valuation, tree.TotalLiabilities, "", nil); err != nil {
		return err
	}

	for i := range tree.LinkedAccounts {
		if err := s.rollUpLinkedAccount(ctx, entry, snapshot.UserAccountID, &tree.LinkedAccounts[i]); err != nil {
			return err
		}
	}

	if err := s.History.MarkAvailable(ctx, entry.ID); err != nil {
		return fmt.Errorf("failed to publish history entry: %w", err)
	}

	s.Logger.Info("history entry published",
		zap.String("history_entry_id", entry.ID.String()),
		zap.String("snapshot_id", snapshot.ID.String()),
		zap.Time("effective_at", effectiveAt))
	return nil
}

func (s *Service) rollUpLinkedAccount(ctx context.Context, entry *domain.HistoryEntry, userAccountID uuid.UUID, linked *aggregator.LinkedAccountValuation) error {
	scope := domain.LinkedAccountScope(userAccountID, linked.LinkedAccountID)
	if err := s.writeValuation(ctx, entry, scope, linked.Valuation, linked.TotalLiabilities, "", nil); err != nil {
		return err
	}

	for i := range linked.SubAccounts {
		sub := &linked.SubAccounts[i]
		if sub.Valuation == nil {
			// Valuation unavailable (missing rate): no history this
			// snapshot, prior rows stay the latest available.
			continue
		}
		subScope := domain.SubAccountScope(userAccountID, linked.LinkedAccountID, sub.SubAccountID)
		if err := s.writeValuation(ctx, entry, subScope, *sub.Valuation, sub.TotalLiabilities, sub.Currency, &sub.NativeValuation); err != nil {
			return err
		}

		for j := range sub.Items {
			item := &sub.Items[j]
			if item.Valuation == nil {
				continue
			}
			itemScope := domain.ItemScope(userAccountID, linked.LinkedAccountID, sub.SubAccountID, item.Type, item.Name)
			liabilities := decimal.Zero
			if item.Type == domain.ItemTypeLiability {
				liabilities = *item.Valuation
			}
			if err := s.writeValuation(ctx, entry, itemScope, *item.Valuation, liabilities, sub.Currency, &item.NativeValue); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeValuation computes the change entry for one scope against the
// historical store, then persists the change and the valuation row.
func (s *Service) writeValuation(ctx context.Context, entry *domain.HistoryEntry, scope domain.Scope, valuation, liabilities decimal.Decimal, nativeCurrency string, nativeValuation *decimal.Decimal) error {
	change, err := s.computeChange(ctx, scope, valuation, entry.EffectiveAt)
	if err != nil {
		return err
	}
	if err := s.History.SaveChange(ctx, change); err != nil {
		return fmt.Errorf("failed to save change entry for %s: %w", scope, err)
	}

	row := &domain.ScopeValuation{
		HistoryEntryID:   entry.ID,
		Scope:            scope,
		Valuation:        valuation,
		TotalLiabilities: liabilities,
		NativeCurrency:   nativeCurrency,
		NativeValuation:  nativeValuation,
		ChangeID:         &change.ID,
		EffectiveAt:      entry.EffectiveAt,
	}
	if err := s.History.SaveValuation(ctx, row); err != nil {
		return fmt.Errorf("failed to save valuation for %s: %w", scope, err)
	}
	return nil
}

// computeChange derives the relative change of the current valuation against
// the most recent prior entry at or before each horizon cutoff. A horizon
// with no prior entry, or a prior valuation of zero, stays undefined rather
// than zero.
func (s *Service) computeChange(ctx context.Context, scope domain.Scope, current decimal.Decimal, effectiveAt time.Time) (*domain.ChangeEntry, error) {
	change := &domain.ChangeEntry{ID: uuid.New()}
	for _, horizon := range domain.Horizons {
		cutoff := horizon.Cutoff(effectiveAt)
		prior, err := s.History.LatestValuation(ctx, scope, cutoff)
		if err != nil {
			if errors.Is(err, domain.ErrNoHistory) {
				continue
			}
			return nil, fmt.Errorf("failed to look up prior valuation for %s: %w", scope, err)
		}
		change.SetChange(horizon, RelativeChange(prior.Valuation, current))
	}
	return change, nil
}

// RelativeChange returns (current - prior) / prior, or nil when the change
// is undefined (zero prior valuation).
func RelativeChange(prior, current decimal.Decimal) *decimal.Decimal {
	if prior.IsZero() {
		return nil
	}
	delta := current.Sub(prior).Div(prior)
	return &delta
}
