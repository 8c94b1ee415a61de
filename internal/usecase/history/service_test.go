package history

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finsight/finsight-backend/internal/domain"
	"github.com/finsight/finsight-backend/internal/usecase/aggregator"
)

// memHistoryRepo is an in-memory HistoryRepository honoring the availability
// and cutoff semantics of the real store, recording the operation order so
// tests can assert the publish-last invariant.
type memHistoryRepo struct {
	entries    map[uuid.UUID]*domain.HistoryEntry
	changes    map[uuid.UUID]*domain.ChangeEntry
	valuations []*domain.ScopeValuation
	ops        []string
}

func newMemHistoryRepo() *memHistoryRepo {
	return &memHistoryRepo{
		entries: make(map[uuid.UUID]*domain.HistoryEntry),
		changes: make(map[uuid.UUID]*domain.ChangeEntry),
	}
}

func (m *memHistoryRepo) CreateEntry(_ context.Context, entry *domain.HistoryEntry) error {
	stored := *entry
	m.entries[entry.ID] = &stored
	m.ops = append(m.ops, "create_entry")
	return nil
}

func (m *memHistoryRepo) SaveChange(_ context.Context, change *domain.ChangeEntry) error {
	stored := *change
	m.changes[change.ID] = &stored
	m.ops = append(m.ops, "save_change")
	return nil
}

func (m *memHistoryRepo) SaveValuation(_ context.Context, valuation *domain.ScopeValuation) error {
	stored := *valuation
	m.valuations = append(m.valuations, &stored)
	m.ops = append(m.ops, "save_valuation")
	return nil
}

func (m *memHistoryRepo) LatestValuation(_ context.Context, scope domain.Scope, cutoff time.Time) (*domain.ScopeValuation, error) {
	var latest *domain.ScopeValuation
	for _, v := range m.valuations {
		entry, ok := m.entries[v.HistoryEntryID]
		if !ok || !entry.Available {
			continue
		}
		if v.Scope != scope || v.EffectiveAt.After(cutoff) {
			continue
		}
		if latest == nil || v.EffectiveAt.After(latest.EffectiveAt) {
			latest = v
		}
	}
	if latest == nil {
		return nil, domain.ErrNoHistory
	}
	return latest, nil
}

func (m *memHistoryRepo) MarkAvailable(_ context.Context, entryID uuid.UUID) error {
	entry, ok := m.entries[entryID]
	if !ok {
		return domain.ErrNoHistory
	}
	entry.Available = true
	m.ops = append(m.ops, "mark_available")
	return nil
}

func (m *memHistoryRepo) valuationFor(scope domain.Scope) *domain.ScopeValuation {
	for i := len(m.valuations) - 1; i >= 0; i-- {
		if m.valuations[i].Scope == scope {
			return m.valuations[i]
		}
	}
	return nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func successfulSnapshot(t *testing.T, userAccountID uuid.UUID, endTime time.Time) *domain.Snapshot {
	t.Helper()
	snapshot := domain.NewSnapshot(userAccountID, "EUR")
	require.NoError(t, snapshot.AdvanceTo(domain.SnapshotStatusProcessing))
	require.NoError(t, snapshot.AdvanceTo(domain.SnapshotStatusSuccess))
	snapshot.EndTime = &endTime
	return snapshot
}

func sampleTree(snapshot *domain.Snapshot, linkedAccountID uuid.UUID, cash string) *aggregator.AccountValuation {
	itemValuation := dec(cash)
	subValuation := dec(cash)
	return &aggregator.AccountValuation{
		SnapshotID:    snapshot.ID,
		UserAccountID: snapshot.UserAccountID,
		Currency:      snapshot.ReportingCurrency,
		Valuation:     dec(cash),
		LinkedAccounts: []aggregator.LinkedAccountValuation{
			{
				LinkedAccountID: linkedAccountID,
				Success:         true,
				Valuation:       dec(cash),
				SubAccounts: []aggregator.SubAccountValuation{
					{
						SubAccountID:    "cash",
						Currency:        "EUR",
						NativeValuation: dec(cash),
						Valuation:       &subValuation,
						Items: []aggregator.ItemValuation{
							{
								Type:        domain.ItemTypeAsset,
								Name:        "cash",
								NativeValue: dec(cash),
								Valuation:   &itemValuation,
							},
						},
					},
				},
			},
		},
	}
}

func TestRollUp_IncompleteSnapshotIsRejected(t *testing.T) {
	repo := newMemHistoryRepo()
	service := NewService(repo, zap.NewNop())

	snapshot := domain.NewSnapshot(uuid.New(), "EUR")
	require.NoError(t, snapshot.AdvanceTo(domain.SnapshotStatusProcessing))

	err := service.RollUp(context.Background(), snapshot, &aggregator.AccountValuation{})
	assert.ErrorIs(t, err, domain.ErrIncompleteSnapshot)
	assert.Empty(t, repo.ops)
}

func TestRollUp_WritesEveryScopeAndPublishesLast(t *testing.T) {
	ctx := context.Background()
	repo := newMemHistoryRepo()
	service := NewService(repo, zap.NewNop())

	userAccountID := uuid.New()
	linkedAccountID := uuid.New()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	snapshot := successfulSnapshot(t, userAccountID, now)

	require.NoError(t, service.RollUp(ctx, snapshot, sampleTree(snapshot, linkedAccountID, "1000")))

	// One valuation row per scope level: account, linked account,
	// sub-account, item.
	assert.Len(t, repo.valuations, 4)
	assert.NotNil(t, repo.valuationFor(domain.AccountScope(userAccountID)))
	assert.NotNil(t, repo.valuationFor(domain.LinkedAccountScope(userAccountID, linkedAccountID)))
	assert.NotNil(t, repo.valuationFor(domain.SubAccountScope(userAccountID, linkedAccountID, "cash")))
	assert.NotNil(t, repo.valuationFor(domain.ItemScope(userAccountID, linkedAccountID, "cash", domain.ItemTypeAsset, "cash")))

	require.NotEmpty(t, repo.ops)
	assert.Equal(t, "create_entry", repo.ops[0])
	assert.Equal(t, "mark_available", repo.ops[len(repo.ops)-1])

	for _, entry := range repo.entries {
		assert.True(t, entry.Available)
		assert.Equal(t, snapshot.ID, entry.SourceSnapshotID)
		assert.Equal(t, now, entry.EffectiveAt)
	}
}

func TestRollUp_FirstEntryHasUndefinedChanges(t *testing.T) {
	ctx := context.Background()
	repo := newMemHistoryRepo()
	service := NewService(repo, zap.NewNop())

	userAccountID := uuid.New()
	snapshot := successfulSnapshot(t, userAccountID, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, service.RollUp(ctx, snapshot, sampleTree(snapshot, uuid.New(), "1000")))

	row := repo.valuationFor(domain.AccountScope(userAccountID))
	require.NotNil(t, row)
	require.NotNil(t, row.ChangeID)

	change := repo.changes[*row.ChangeID]
	require.NotNil(t, change)
	for _, horizon := range domain.Horizons {
		assert.Nil(t, change.Change(horizon), "horizon %s", horizon)
	}
}

func TestRollUp_ChangeAgainstPriorEntry(t *testing.T) {
	ctx := context.Background()
	repo := newMemHistoryRepo()
	service := NewService(repo, zap.NewNop())

	userAccountID := uuid.New()
	linkedAccountID := uuid.New()
	first := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(2 * time.Hour)

	snapshot1 := successfulSnapshot(t, userAccountID, first)
	require.NoError(t, service.RollUp(ctx, snapshot1, sampleTree(snapshot1, linkedAccountID, "1000")))

	snapshot2 := successfulSnapshot(t, userAccountID, second)
	require.NoError(t, service.RollUp(ctx, snapshot2, sampleTree(snapshot2, linkedAccountID, "1100")))

	row := repo.valuationFor(domain.AccountScope(userAccountID))
	require.NotNil(t, row)
	change := repo.changes[*row.ChangeID]
	require.NotNil(t, change)

	// (1100 - 1000) / 1000 against the entry two hours back.
	require.NotNil(t, change.Change1Hour)
	assert.True(t, dec("0.1").Equal(*change.Change1Hour), "got %s", change.Change1Hour)

	// No entry exists a full day back.
	assert.Nil(t, change.Change1Day)
}

func TestRollUp_SkipsUnavailableSubAccounts(t *testing.T) {
	ctx := context.Background()
	repo := newMemHistoryRepo()
	service := NewService(repo, zap.NewNop())

	userAccountID := uuid.New()
	linkedAccountID := uuid.New()
	snapshot := successfulSnapshot(t, userAccountID, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	tree := sampleTree(snapshot, linkedAccountID, "1000")
	tree.LinkedAccounts[0].SubAccounts = append(tree.LinkedAccounts[0].SubAccounts, aggregator.SubAccountValuation{
		SubAccountID:    "offshore",
		Currency:        "GBP",
		NativeValuation: dec("9999"),
		Valuation:       nil,
	})

	require.NoError(t, service.RollUp(ctx, snapshot, tree))

	assert.Nil(t, repo.valuationFor(domain.SubAccountScope(userAccountID, linkedAccountID, "offshore")))
	assert.NotNil(t, repo.valuationFor(domain.SubAccountScope(userAccountID, linkedAccountID, "cash")))
}

func TestRollUp_LiabilityItemRowCarriesLiabilities(t *testing.T) {
	ctx := context.Background()
	repo := newMemHistoryRepo()
	service := NewService(repo, zap.NewNop())

	userAccountID := uuid.New()
	linkedAccountID := uuid.New()
	snapshot := successfulSnapshot(t, userAccountID, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	loanValuation := dec("-300")
	tree := sampleTree(snapshot, linkedAccountID, "1000")
	tree.LinkedAccounts[0].SubAccounts[0].Items = append(tree.LinkedAccounts[0].SubAccounts[0].Items, aggregator.ItemValuation{
		Type:        domain.ItemTypeLiability,
		Name:        "margin loan",
		NativeValue: dec("-300"),
		Valuation:   &loanValuation,
	})

	require.NoError(t, service.RollUp(ctx, snapshot, tree))

	row := repo.valuationFor(domain.ItemScope(userAccountID, linkedAccountID, "cash", domain.ItemTypeLiability, "margin loan"))
	require.NotNil(t, row)
	assert.True(t, dec("-300").Equal(row.Valuation))
	assert.True(t, dec("-300").Equal(row.TotalLiabilities))
	assert.True(t, row.TotalAssets().IsZero())
}

func TestRelativeChange(t *testing.T) {
	change := RelativeChange(dec("1000"), dec("1100"))
	require.NotNil(t, change)
	assert.True(t, dec("0.1").Equal(*change))

	change = RelativeChange(dec("1000"), dec("900"))
	require.NotNil(t, change)
	assert.True(t, dec("-0.1").Equal(*change))

	assert.Nil(t, RelativeChange(decimal.Zero, dec("100")), "zero prior valuation is undefined, not infinite")
}
