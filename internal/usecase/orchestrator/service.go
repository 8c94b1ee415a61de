package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finsight/finsight-backend/internal/domain"
	"github.com/finsight/finsight-backend/internal/provider"
	"github.com/finsight/finsight-backend/internal/usecase/aggregator"
	"github.com/finsight/finsight-backend/internal/usecase/converter"
)

// DefaultLineItems is the full set of line items a snapshot requests.
var DefaultLineItems = []string{
	string(domain.LineItemBalances),
	string(domain.LineItemAssets),
	string(domain.LineItemLiabilities),
}

const defaultWorkers = 8

// HistoryRoller is triggered once for every snapshot reaching Success.
type HistoryRoller interface {
	RollUp(ctx context.Context, snapshot *domain.Snapshot, tree *aggregator.AccountValuation) error
}

// Service drives snapshots end to end: fan out over linked accounts,
// convert, aggregate, persist, then trigger the history roll-up
type Service struct {
	Snapshots      domain.SnapshotRepository
	LinkedAccounts domain.LinkedAccountRepository
	Providers      *provider.Registry
	Converter      *converter.Service
	Roller         HistoryRoller
	Logger         *zap.Logger

	// LineItems is what each linked account is asked for during a
	// snapshot; defaults to DefaultLineItems.
	LineItems []string

	// TaskTimeout bounds one linked-account collection; zero means no bound.
	TaskTimeout time.Duration

	// Now is swapped out by tests.
	Now func() time.Time

	pool pond.Pool
}

// NewService creates a new orchestrator service with a bounded worker pool
// of the given size (one task per linked account).
func NewService(
	snapshots domain.SnapshotRepository,
	linkedAccounts domain.LinkedAccountRepository,
	providers *provider.Registry,
	conv *converter.Service,
	roller HistoryRoller,
	logger *zap.Logger,
	workers int,
) *Service {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Service{
		Snapshots:      snapshots,
		LinkedAccounts: linkedAccounts,
		Providers:      providers,
		Converter:      conv,
		Roller:         roller,
		Logger:         logger,
		LineItems:      DefaultLineItems,
		Now:            time.Now,
		pool:           pond.NewPool(workers),
	}
}

// SnapshotResult is the outcome of one snapshot run.
type SnapshotResult struct {
	Snapshot  *domain.Snapshot
	Entries   []*domain.LinkedAccountEntry
	Valuation *aggregator.AccountValuation
}

// TakeSnapshot runs one full valuation snapshot for a user account.
//
// Linked accounts are collected concurrently on the worker pool; a failure
// in one task resolves to a failed entry and never cancels its siblings.
// Aggregation acts as a barrier: it only runs once every task reached a
// terminal entry. Partial linked-account failure does not fail the snapshot;
// only an aggregate with no derivable reporting-currency total does.
func (s *Service) TakeSnapshot(ctx context.Context, userAccountID uuid.UUID, reportingCurrency string) (*SnapshotResult, error) {
	snapshot := domain.NewSnapshot(userAccountID, reportingCurrency)
	if err := s.Snapshots.Create(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("failed to create snapshot: %w", err)
	}

	start := s.Now()
	snapshot.StartTime = &start
	if err := snapshot.AdvanceTo(domain.SnapshotStatusProcessing); err != nil {
		return nil, err
	}
	if err := s.Snapshots.Update(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("failed to advance snapshot: %w", err)
	}

	s.Logger.Info("snapshot started",
		zap.String("snapshot_id", snapshot.ID.String()),
		zap.String("user_account_id", userAccountID.String()),
		zap.String("reporting_currency", reportingCurrency))

	linked, err := s.LinkedAccounts.ListByUserAccount(ctx, userAccountID)
	if err != nil {
		// The snapshot stays in Processing: an incomplete result,
		// never promoted, never retried here.
		return nil, fmt.Errorf("failed to list linked accounts: %w", err)
	}

	entries := make([]*domain.LinkedAccountEntry, len(linked))
	group := s.pool.NewGroupContext(ctx)
	for i, account := range linked {
		group.Submit(func() {
			entries[i] = s.collectLinkedAccount(ctx, snapshot.ID, account)
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("snapshot interrupted: %w", err)
	}

	return s.finalize(ctx, snapshot, entries)
}

// finalize converts, aggregates and persists once every linked-account task
// reached a terminal entry.
func (s *Service) finalize(ctx context.Context, snapshot *domain.Snapshot, entries []*domain.LinkedAccountEntry) (*SnapshotResult, error) {
	end := s.Now()

	table, err := s.Converter.ResolveRates(ctx, snapshot, nativeCurrencies(entries), end)
	if err != nil {
		s.Logger.Error("rate resolution failed",
			zap.String("snapshot_id", snapshot.ID.String()),
			zap.Error(err))
		if cErr := s.conclude(ctx, snapshot, end, entries, nil); cErr != nil {
			return nil, cErr
		}
		return &SnapshotResult{Snapshot: snapshot, Entries: entries}, nil
	}

	tree, aggErr := aggregator.Aggregate(snapshot, entries, table)
	if aggErr != nil {
		s.Logger.Error("aggregation failed",
			zap.String("snapshot_id", snapshot.ID.String()),
			zap.Error(aggErr))
	}
	if err := s.conclude(ctx, snapshot, end, entries, tree); err != nil {
		return nil, err
	}

	result := &SnapshotResult{Snapshot: snapshot, Entries: entries, Valuation: tree}
	if snapshot.Status != domain.SnapshotStatusSuccess {
		return result, nil
	}

	if err := s.Roller.RollUp(ctx, snapshot, tree); err != nil {
		// The snapshot itself is terminal; a roll-up failure only
		// leaves the historical rows unavailable.
		s.Logger.Error("history roll-up failed",
			zap.String("snapshot_id", snapshot.ID.String()),
			zap.Error(err))
	}
	return result, nil
}

// conclude persists the collected entries and drives the snapshot to its
// terminal status. A nil tree concludes the snapshot as Failure.
func (s *Service) conclude(ctx context.Context, snapshot *domain.Snapshot, end time.Time, entries []*domain.LinkedAccountEntry, tree *aggregator.AccountValuation) error {
	for _, entry := range entries {
		if err := s.Snapshots.SaveLinkedAccountEntry(ctx, entry); err != nil {
			return fmt.Errorf("failed to save linked account entry: %w", err)
		}
	}

	status := domain.SnapshotStatusSuccess
	if tree == nil {
		status = domain.SnapshotStatusFailure
	}
	snapshot.EndTime = &end
	if err := snapshot.AdvanceTo(status); err != nil {
		return err
	}
	if err := s.Snapshots.Update(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to conclude snapshot: %w", err)
	}

	s.Logger.Info("snapshot concluded",
		zap.String("snapshot_id", snapshot.ID.String()),
		zap.String("status", string(snapshot.Status)))
	return nil
}

// collectLinkedAccount produces the terminal entry for one linked account.
// It never returns an error: every failure mode resolves into a failed
// entry with structured failure details.
func (s *Service) collectLinkedAccount(ctx context.Context, snapshotID uuid.UUID, account *domain.LinkedAccount) *domain.LinkedAccountEntry {
	entry := &domain.LinkedAccountEntry{
		ID:              uuid.New(),
		SnapshotID:      snapshotID,
		LinkedAccountID: account.ID,
	}

	if s.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.TaskTimeout)
		defer cancel()
	}

	credentials, err := decodeCredentials(account.EncryptedCredentials)
	if err != nil {
		entry.Failure = domain.NewFailureDetails(
			"failed to access linked account credentials",
			err.Error(), "")
		return entry
	}

	adapter, err := s.Providers.New(account.ProviderID)
	if err != nil {
		entry.Failure = domain.NewFailureDetails(
			"linked account provider is not supported",
			err.Error(), "")
		return entry
	}
	defer s.closeAdapter(account.ProviderID, adapter)

	data := s.collectFinancialData(ctx, account.ProviderID, adapter, credentials, s.LineItems)
	if data.Error != nil {
		entry.Failure = domain.NewFailureDetails(
			data.Error.UserMessage, data.Error.DebugMessage, data.Error.Trace)
		return entry
	}

	entry.Success = true
	entry.SubAccounts = buildSubAccounts(entry.ID, data.Items)
	return entry
}

// decodeCredentials turns the stored credentials blob into the tagged
// payload adapters consume. Decryption is owned by an external collaborator;
// here the blob is already plaintext JSON.
func decodeCredentials(blob []byte) (domain.Credentials, error) {
	var credentials domain.Credentials
	if err := json.Unmarshal(blob, &credentials); err != nil {
		return domain.Credentials{}, fmt.Errorf("failed to decode credentials payload: %w", err)
	}
	if err := credentials.Validate(); err != nil {
		return domain.Credentials{}, err
	}
	return credentials, nil
}

// nativeCurrencies returns the distinct currencies present in the collected
// entries.
func nativeCurrencies(entries []*domain.LinkedAccountEntry) []string {
	seen := make(map[string]struct{})
	var currencies []string
	for _, entry := range entries {
		for i := range entry.SubAccounts {
			currency := entry.SubAccounts[i].Currency
			if _, ok := seen[currency]; ok {
				continue
			}
			seen[currency] = struct{}{}
			currencies = append(currencies, currency)
		}
	}
	return currencies
}
