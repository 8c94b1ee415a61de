package integration

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finsight/finsight-backend/internal/domain"
	"github.com/finsight/finsight-backend/internal/provider"
	"github.com/finsight/finsight-backend/internal/ratesource"
	"github.com/finsight/finsight-backend/internal/usecase/converter"
	"github.com/finsight/finsight-backend/internal/usecase/history"
	"github.com/finsight/finsight-backend/internal/usecase/orchestrator"
)

// In-memory repositories carrying the snapshot pipeline end to end without a
// database. They honor the same semantics the postgres layer does, most
// importantly the availability filter on historical reads.

type memSnapshotRepo struct {
	mu        sync.Mutex
	snapshots map[uuid.UUID]domain.Snapshot
	entries   []*domain.LinkedAccountEntry
}

func newMemSnapshotRepo() *memSnapshotRepo {
	return &memSnapshotRepo{snapshots: make(map[uuid.UUID]domain.Snapshot)}
}

func (m *memSnapshotRepo) Create(_ context.Context, snapshot *domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snapshot.ID] = *snapshot
	return nil
}

func (m *memSnapshotRepo) Update(_ context.Context, snapshot *domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snapshot.ID] = *snapshot
	return nil
}

func (m *memSnapshotRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot, ok := m.snapshots[id]
	if !ok {
		return nil, domain.ErrIncompleteSnapshot
	}
	return &snapshot, nil
}

func (m *memSnapshotRepo) SaveLinkedAccountEntry(_ context.Context, entry *domain.LinkedAccountEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

type memLinkedAccountRepo struct {
	accounts []*domain.LinkedAccount
}

func (m *memLinkedAccountRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.LinkedAccount, error) {
	for _, account := range m.accounts {
		if account.ID == id {
			return account, nil
		}
	}
	return nil, domain.ErrUnknownProvider
}

func (m *memLinkedAccountRepo) ListByUserAccount(_ context.Context, userAccountID uuid.UUID) ([]*domain.LinkedAccount, error) {
	var accounts []*domain.LinkedAccount
	for _, account := range m.accounts {
		if account.UserAccountID == userAccountID {
			accounts = append(accounts, account)
		}
	}
	return accounts, nil
}

type memRateRepo struct {
	mu    sync.Mutex
	rates []*domain.XccyRate
}

func (m *memRateRepo) Save(_ context.Context, rate *domain.XccyRate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates = append(m.rates, rate)
	return nil
}

func (m *memRateRepo) ListBySnapshot(_ context.Context, snapshotID uuid.UUID) ([]*domain.XccyRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rates []*domain.XccyRate
	for _, rate := range m.rates {
		if rate.SnapshotID == snapshotID {
			rates = append(rates, rate)
		}
	}
	return rates, nil
}

type memHistoryRepo struct {
	mu         sync.Mutex
	entries    map[uuid.UUID]*domain.HistoryEntry
	changes    map[uuid.UUID]*domain.ChangeEntry
	valuations []*domain.ScopeValuation
}

func newMemHistoryRepo() *memHistoryRepo {
	return &memHistoryRepo{
		entries: make(map[uuid.UUID]*domain.HistoryEntry),
		changes: make(map[uuid.UUID]*domain.ChangeEntry),
	}
}

func (m *memHistoryRepo) CreateEntry(_ context.Context, entry *domain.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *entry
	m.entries[entry.ID] = &stored
	return nil
}

func (m *memHistoryRepo) SaveChange(_ context.Context, change *domain.ChangeEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *change
	m.changes[change.ID] = &stored
	return nil
}

func (m *memHistoryRepo) SaveValuation(_ context.Context, valuation *domain.ScopeValuation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *valuation
	m.valuations = append(m.valuations, &stored)
	return nil
}

func (m *memHistoryRepo) LatestValuation(_ context.Context, scope domain.Scope, cutoff time.Time) (*domain.ScopeValuation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[entryID]
	if !ok {
		return domain.ErrNoHistory
	}
	entry.Available = true
	return nil
}

func (m *memHistoryRepo) availableEntries() []*domain.HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var entries []*domain.HistoryEntry
	for _, entry := range m.entries {
		if entry.Available {
			entries = append(entries, entry)
		}
	}
	return entries
}

func (m *memHistoryRepo) accountChange(t *testing.T, userAccountID uuid.UUID, effectiveAt time.Time) *domain.ChangeEntry {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	scope := domain.AccountScope(userAccountID)
	for _, v := range m.valuations {
		if v.Scope == scope && v.EffectiveAt.Equal(effectiveAt) {
			require.NotNil(t, v.ChangeID)
			return m.changes[*v.ChangeID]
		}
	}
	t.Fatalf("no account valuation at %s", effectiveAt)
	return nil
}

// TestSnapshotPipeline takes two snapshots of the same portfolio two hours
// apart and checks the full path: collection, conversion, aggregation,
// persistence and the historical change metrics derived from the first run.
func TestSnapshotPipeline(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	// Each provider session gets a fresh adapter; the cash balance is the
	// piece of the portfolio the test moves between runs.
	cashBalance := decimal.NewFromInt(2500)
	registry := provider.NewRegistry()
	require.NoError(t, registry.Register(provider.FakeID, func() domain.ProviderAdapter {
		fake := provider.NewFakeAdapter()
		fake.Balances[0].Balance = cashBalance
		return fake
	}))

	source := ratesource.NewStatic()
	source.Set(domain.NewPair("USD", "EUR"), decimal.RequireFromString("0.8"))

	snapshots := newMemSnapshotRepo()
	rates := &memRateRepo{}
	historyRepo := newMemHistoryRepo()

	userAccountID := uuid.New()
	blob, err := json.Marshal(domain.Credentials{
		Version: domain.CredentialsVersion,
		UserID:  "user-1",
		Secrets: map[string]string{"password": "hunter2"},
	})
	require.NoError(t, err)
	linked := &memLinkedAccountRepo{accounts: []*domain.LinkedAccount{
		{
			ID:                   uuid.New(),
			UserAccountID:        userAccountID,
			ProviderID:           provider.FakeID,
			AccountName:          "Fake Bank",
			EncryptedCredentials: blob,
		},
	}}

	roller := history.NewService(historyRepo, logger)
	conv := converter.NewService(source, rates, logger)
	orc := orchestrator.NewService(snapshots, linked, registry, conv, roller, logger, 4)

	firstRun := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	orc.Now = func() time.Time { return firstRun }

	// First snapshot: 2500 EUR cash plus a USD brokerage at 0.8.
	result, err := orc.TakeSnapshot(ctx, userAccountID, "EUR")
	require.NoError(t, err)
	require.Equal(t, domain.SnapshotStatusSuccess, result.Snapshot.Status)
	require.NotNil(t, result.Valuation)
	assert.True(t, decimal.RequireFromString("3540").Equal(result.Valuation.Valuation))
	assert.True(t, decimal.RequireFromString("3780").Equal(result.Valuation.TotalAssets()))

	// The resolved USD rate was persisted against the snapshot.
	persisted, err := rates.ListBySnapshot(ctx, result.Snapshot.ID)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, "USDEUR", persisted[0].Pair.String())

	require.Len(t, historyRepo.availableEntries(), 1)
	firstChange := historyRepo.accountChange(t, userAccountID, firstRun)
	for _, horizon := range domain.Horizons {
		assert.Nil(t, firstChange.Change(horizon), "no history before the first snapshot")
	}

	// The portfolio gains 10%: cash grows from 2500 to 2854 EUR.
	cashBalance = decimal.RequireFromString("2854")
	secondRun := firstRun.Add(2 * time.Hour)
	orc.Now = func() time.Time { return secondRun }

	result, err = orc.TakeSnapshot(ctx, userAccountID, "EUR")
	require.NoError(t, err)
	require.Equal(t, domain.SnapshotStatusSuccess, result.Snapshot.Status)
	assert.True(t, decimal.RequireFromString("3894").Equal(result.Valuation.Valuation))

	require.Len(t, historyRepo.availableEntries(), 2)
	secondChange := historyRepo.accountChange(t, userAccountID, secondRun)

	// The first run sits two hours back: inside the 1h horizon, outside 1d.
	require.NotNil(t, secondChange.Change1Hour)
	assert.True(t, decimal.RequireFromString("0.1").Equal(*secondChange.Change1Hour),
		"got %s", secondChange.Change1Hour)
	assert.Nil(t, secondChange.Change1Day)

	// Both runs persisted their linked-account entries.
	assert.Len(t, snapshots.entries, 2)
	for _, entry := range snapshots.entries {
		assert.True(t, entry.Success)
	}
}

// TestSnapshotPipeline_FailedRollUpKeepsHistoryInvisible reproduces a crash
// between the valuation writes and the publish flip: the entry must stay
// invisible to historical reads.
func TestSnapshotPipeline_PartialHistoryStaysInvisible(t *testing.T) {
	ctx := context.Background()
	historyRepo := newMemHistoryRepo()

	userAccountID := uuid.New()
	entry := &domain.HistoryEntry{
		ID:            uuid.New(),
		UserAccountID: userAccountID,
		EffectiveAt:   time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, historyRepo.CreateEntry(ctx, entry))
	require.NoError(t, historyRepo.SaveValuation(ctx, &domain.ScopeValuation{
		HistoryEntryID: entry.ID,
		Scope:          domain.AccountScope(userAccountID),
		Valuation:      decimal.RequireFromString("1000"),
		EffectiveAt:    entry.EffectiveAt,
	}))

	// MarkAvailable never ran: the row must not surface.
	_, err := historyRepo.LatestValuation(ctx, domain.AccountScope(userAccountID), time.Now())
	assert.ErrorIs(t, err, domain.ErrNoHistory)
}
