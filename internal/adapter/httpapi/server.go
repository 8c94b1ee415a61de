package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/finsight/finsight-backend/internal/domain"
	"github.com/finsight/finsight-backend/internal/usecase/orchestrator"
)

// Server exposes the snapshot core over an HTTP JSON API
type Server struct {
	Orchestrator    *orchestrator.Service
	Logger          *zap.Logger
	DefaultCurrency string
}

// NewServer creates a new HTTP API server instance
func NewServer(orc *orchestrator.Service, logger *zap.Logger, defaultCurrency string) *Server {
	return &Server{
		Orchestrator:    orc,
		Logger:          logger,
		DefaultCurrency: defaultCurrency,
	}
}

// Router builds the route table. Every route except the health check sits
// behind the token middleware.
func (s *Server) Router(apiToken string) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.HandleHealth).Methods("GET")

	api := r.NewRoute().Subrouter()
	api.Use(TokenMiddleware(apiToken))
	api.HandleFunc("/financial_data", s.HandleFinancialData).Methods("POST")
	api.HandleFunc("/snapshots/{userAccountId}", s.HandleTakeSnapshot).Methods("POST")

	return r
}

// HandleHealth reports service liveness.
func (s *Server) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type financialDataRequest struct {
	Provider    string             `json:"provider"`
	Credentials domain.Credentials `json:"credentials"`
	Items       []string           `json:"items"`
}

type financialDataResponse struct {
	FinancialData []itemPayload `json:"financial_data"`
}

type requestErrorResponse struct {
	Error *domain.ErrorDetails `json:"error"`
}

type itemPayload struct {
	LineItem string               `json:"line_item"`
	Results  any                  `json:"results,omitempty"`
	Error    *domain.ErrorDetails `json:"error,omitempty"`
}

// HandleFinancialData drives one provider session for the requested line
// items. Item-level failures are reported inline and do not fail the
// request; only a malformed request or an unknown provider is rejected
// outright.
func (s *Server) HandleFinancialData(w http.ResponseWriter, r *http.Request) {
	var req financialDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request payload", err)
		return
	}
	if req.Provider == "" || len(req.Items) == 0 {
		s.writeError(w, http.StatusBadRequest, "provider and items are required", nil)
		return
	}

	data, err := s.Orchestrator.FetchFinancialData(r.Context(), orchestrator.FetchRequest{
		ProviderID:  req.Provider,
		Credentials: req.Credentials,
		Items:       req.Items,
	})
	if err != nil {
		if errors.Is(err, domain.ErrUnknownProvider) {
			s.writeError(w, http.StatusBadRequest, "unknown provider", err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to retrieve financial data", err)
		return
	}

	// Authentication failure before any item was attempted: a single
	// request-level error envelope, no item results at all.
	if data.Error != nil {
		s.writeJSON(w, http.StatusOK, requestErrorResponse{Error: data.Error})
		return
	}

	response := financialDataResponse{FinancialData: make([]itemPayload, 0, len(data.Items))}
	for _, item := range data.Items {
		response.FinancialData = append(response.FinancialData, itemPayloadOf(item))
	}
	s.writeJSON(w, http.StatusOK, response)
}

func itemPayloadOf(result orchestrator.ItemResult) itemPayload {
	payload := itemPayload{LineItem: result.LineItem, Error: result.Error}
	if result.Error != nil {
		return payload
	}
	switch domain.LineItem(result.LineItem) {
	case domain.LineItemBalances:
		payload.Results = result.Balances
	case domain.LineItemAssets:
		payload.Results = result.Assets
	case domain.LineItemLiabilities:
		payload.Results = result.Liabilities
	}
	return payload
}

type snapshotResponse struct {
	SnapshotID        string `json:"snapshot_id"`
	Status            string `json:"status"`
	ReportingCurrency string `json:"reporting_currency"`
	Valuation         string `json:"valuation,omitempty"`
	TotalLiabilities  string `json:"total_liabilities,omitempty"`
	TotalAssets       string `json:"total_assets,omitempty"`
}

// HandleTakeSnapshot runs one valuation snapshot for a user account.
// The reporting currency defaults to the service-wide setting and can be
// overridden with the `currency` query parameter.
func (s *Server) HandleTakeSnapshot(w http.ResponseWriter, r *http.Request) {
	userAccountID, err := uuid.Parse(mux.Vars(r)["userAccountId"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid user account id", err)
		return
	}

	currency := r.URL.Query().Get("currency")
	if currency == "" {
		currency = s.DefaultCurrency
	}

	result, err := s.Orchestrator.TakeSnapshot(r.Context(), userAccountID, currency)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "snapshot failed", err)
		return
	}

	response := snapshotResponse{
		SnapshotID:        result.Snapshot.ID.String(),
		Status:            string(result.Snapshot.Status),
		ReportingCurrency: result.Snapshot.ReportingCurrency,
	}
	if result.Valuation != nil {
		response.Valuation = result.Valuation.Valuation.String()
		response.TotalLiabilities = result.Valuation.TotalLiabilities.String()
		response.TotalAssets = result.Valuation.TotalAssets().String()
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.Logger.Warn("failed to encode response", zap.Error(err))
	}
}

// writeError responds with the standard error envelope. The user message
// stays stable; the underlying error is only exposed as debug detail.
func (s *Server) writeError(w http.ResponseWriter, status int, userMessage string, err error) {
	details := &domain.ErrorDetails{UserMessage: userMessage}
	if err != nil {
		details.DebugMessage = err.Error()
		s.Logger.Warn("request failed", zap.String("user_message", userMessage), zap.Error(err))
	}
	s.writeJSON(w, status, requestErrorResponse{Error: details})
}
