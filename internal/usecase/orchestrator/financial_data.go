package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/finsight/finsight-backend/internal/domain"
)

// ItemResult is the outcome of fetching one requested line item: either the
// item's data or an inline error. A failed item never aborts its siblings.
type ItemResult struct {
	LineItem    string
	Balances    []domain.Balance
	Assets      []domain.AccountAssets
	Liabilities []domain.AccountLiabilities
	Error       *domain.ErrorDetails
}

// FinancialData is the outcome of one provider session. Error is the
// request-level envelope set only when authentication failed, in which case
// no items were attempted.
type FinancialData struct {
	Items []ItemResult
	Error *domain.ErrorDetails
}

// FetchRequest describes one financial data fetch against a provider.
type FetchRequest struct {
	ProviderID  string
	Credentials domain.Credentials
	Items       []string
}

// FetchFinancialData drives one adapter session end to end: authenticate
// once, then fetch each requested line item. Items are de-duplicated before
// dispatch. The adapter session is released on every exit path.
func (s *Service) FetchFinancialData(ctx context.Context, req FetchRequest) (*FinancialData, error) {
	adapter, err := s.Providers.New(req.ProviderID)
	if err != nil {
		return nil, err
	}
	defer s.closeAdapter(req.ProviderID, adapter)

	return s.collectFinancialData(ctx, req.ProviderID, adapter, req.Credentials, req.Items), nil
}

// collectFinancialData runs authenticate plus the per-item fetch loop on an
// already acquired session. The caller owns releasing the session.
func (s *Service) collectFinancialData(ctx context.Context, providerID string, adapter domain.ProviderAdapter, credentials domain.Credentials, requestedItems []string) *FinancialData {
	s.Logger.Info("authenticating provider session",
		zap.String("provider_id", providerID),
		zap.String("user_id", credentials.UserID))

	if err := adapter.Authenticate(ctx, credentials); err != nil {
		return &FinancialData{Error: authFailureDetails(err)}
	}

	items := domain.DedupeItems(requestedItems)
	data := &FinancialData{Items: make([]ItemResult, 0, len(items))}
	for _, raw := range items {
		data.Items = append(data.Items, s.fetchItem(ctx, providerID, adapter, raw))
	}
	return data
}

// fetchItem fetches one line item on the authenticated session. Every
// failure, including an unknown item kind, is folded into an inline error.
func (s *Service) fetchItem(ctx context.Context, providerID string, adapter domain.ProviderAdapter, raw string) ItemResult {
	result := ItemResult{LineItem: raw}

	kind, err := domain.ParseLineItem(raw)
	if err != nil {
		s.Logger.Warn("unknown line item requested",
			zap.String("provider_id", providerID),
			zap.String("line_item", raw))
		result.Error = itemFailureDetails(raw, err)
		return result
	}

	s.Logger.Info("handling line item",
		zap.String("provider_id", providerID),
		zap.String("line_item", raw))

	switch kind {
	case domain.LineItemBalances:
		result.Balances, err = adapter.GetBalances(ctx)
	case domain.LineItemAssets:
		result.Assets, err = adapter.GetAssets(ctx)
	case domain.LineItemLiabilities:
		result.Liabilities, err = adapter.GetLiabilities(ctx)
	}
	if err != nil {
		adapterErr := &domain.AdapterError{ProviderID: providerID, Op: "get_" + raw, Err: err}
		s.Logger.Warn("line item fetch failed",
			zap.String("provider_id", providerID),
			zap.String("line_item", raw),
			zap.Error(adapterErr))
		result.Error = itemFailureDetails(raw, adapterErr)
	}
	return result
}

func (s *Service) closeAdapter(providerID string, adapter domain.ProviderAdapter) {
	if err := adapter.Close(); err != nil {
		s.Logger.Warn("failed to release provider session",
			zap.String("provider_id", providerID),
			zap.Error(err))
	}
}

// authFailureDetails maps an authentication error onto the request-level
// envelope. A credential rejection surfaces the adapter's message verbatim;
// anything else gets a generic user message with the raw error kept as
// debug detail only.
func authFailureDetails(err error) *domain.ErrorDetails {
	var authErr *domain.AuthError
	if errors.As(err, &authErr) {
		return &domain.ErrorDetails{
			UserMessage:  authErr.Message,
			DebugMessage: authErr.Message,
			Trace:        string(debug.Stack()),
		}
	}
	return &domain.ErrorDetails{
		UserMessage:  "authentication failure (unknown error)",
		DebugMessage: err.Error(),
		Trace:        string(debug.Stack()),
	}
}

// itemFailureDetails maps a per-item failure onto an inline error.
func itemFailureDetails(lineItem string, err error) *domain.ErrorDetails {
	return &domain.ErrorDetails{
		UserMessage:  fmt.Sprintf("failed to retrieve %s line item", lineItem),
		DebugMessage: err.Error(),
		Trace:        string(debug.Stack()),
	}
}
