/*
handlers.go - HTTP API handlers for the rent escalation engine

PURPOSE:
  Exposes the escalation engine via a small operational REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Contracts:
    GET    /api/contracts                 List all contracts
    POST   /api/contracts                 Register contract + seed record
    GET    /api/contracts/{id}            Get contract details
    GET    /api/contracts/{id}/increases  Escalation history

  Admin:
    POST   /api/admin/run-pass            Trigger a pass immediately
    GET    /api/runs                      Recent pass runs

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Contract not found
  - 500: Internal errors

SECURITY NOTE:
  No authentication. This surface is internal/operational; auth lives at
  the gateway in the wider system.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scheduler.go: The ticker that runs passes on a cadence
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/rent-engine/escalation"
	"github.com/warp/rent-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  *sqlite.Store
	Runner *escalation.Runner
}

// NewHandler creates a new handler with the given store and runner.
func NewHandler(store *sqlite.Store, runner *escalation.Runner) *Handler {
	return &Handler{Store: store, Runner: runner}
}

// =============================================================================
// CONTRACT HANDLERS
// =============================================================================

// ListContracts returns all contracts.
func (h *Handler) ListContracts(w http.ResponseWriter, r *http.Request) {
	contracts, err := h.Store.ListContracts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list contracts", err)
		return
	}

	dtos := make([]ContractDTO, len(contracts))
	for i, c := range contracts {
		dtos[i] = toContractDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetContract returns a single contract.
func (h *Handler) GetContract(w http.ResponseWriter, r *http.Request) {
	id := escalation.ContractID(chi.URLParam(r, "id"))

	contract, err := h.Store.Get(r.Context(), id)
	if errors.Is(err, escalation.ErrContractNotFound) {
		writeError(w, http.StatusNotFound, "Contract not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get contract", err)
		return
	}

	writeJSON(w, http.StatusOK, toContractDTO(contract))
}

// CreateContract registers a contract and writes its seed record.
// The seed is the one record the scheduler never creates: every later
// increase compounds off it.
func (h *Handler) CreateContract(w http.ResponseWriter, r *http.Request) {
	var req CreateContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	endDate, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date format (use YYYY-MM-DD)", err)
		return
	}
	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
		return
	}

	pct, err := decimalField(req.IncreasePct)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid increase_pct", err)
		return
	}
	amount, err := decimalField(req.InitialAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid initial_amount", err)
		return
	}

	if req.FrequencyDays <= 0 {
		writeError(w, http.StatusBadRequest, "frequency_days must be positive", nil)
		return
	}
	if pct.IsNegative() {
		writeError(w, http.StatusBadRequest, "increase_pct must be non-negative", nil)
		return
	}
	currency := escalation.Currency(req.Currency)
	if !currency.Valid() {
		writeError(w, http.StatusBadRequest, "Unknown currency", nil)
		return
	}

	contract := escalation.Contract{
		ID:            escalation.ContractID(req.ID),
		Status:        escalation.StatusActive,
		EndDate:       endDate,
		IncreasePct:   pct,
		FrequencyDays: req.FrequencyDays,
	}

	ctx := r.Context()
	if err := h.Store.SaveContract(ctx, contract); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save contract", err)
		return
	}

	seed := escalation.EscalationRecord{
		ID:            escalation.RecordID(uuid.NewString()),
		ContractID:    contract.ID,
		EffectiveDate: startDate,
		Amount:        amount.Round(2),
		Currency:      currency,
		Note:          "seed",
	}
	if _, err := h.Store.InsertIfAbsent(ctx, seed); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to write seed record", err)
		return
	}

	writeJSON(w, http.StatusCreated, toContractDTO(contract))
}

// GetIncreases returns the escalation history for a contract, oldest first.
func (h *Handler) GetIncreases(w http.ResponseWriter, r *http.Request) {
	id := escalation.ContractID(chi.URLParam(r, "id"))
	ctx := r.Context()

	if _, err := h.Store.Get(ctx, id); errors.Is(err, escalation.ErrContractNotFound) {
		writeError(w, http.StatusNotFound, "Contract not found", nil)
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get contract", err)
		return
	}

	records, err := h.Store.History(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load history", err)
		return
	}

	dtos := make([]IncreaseDTO, len(records))
	for i, rec := range records {
		dtos[i] = toIncreaseDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerPass runs an escalation pass immediately and records it.
func (h *Handler) TriggerPass(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now().UTC()

	result, err := RecordedPass(ctx, h.Runner, h.Store, now, "manual")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Pass failed", err)
		return
	}

	writeJSON(w, http.StatusOK, toPassResultDTO(result))
}

// ListRuns returns recent pass runs, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.ListPassRuns(r.Context(), 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}

	dtos := make([]PassRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toPassRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// DTO CONVERSION
// =============================================================================

func toContractDTO(c escalation.Contract) ContractDTO {
	return ContractDTO{
		ID:            string(c.ID),
		Status:        string(c.Status),
		EndDate:       c.EndDate.Format("2006-01-02"),
		IncreasePct:   c.IncreasePct.String(),
		FrequencyDays: c.FrequencyDays,
	}
}

func toIncreaseDTO(rec escalation.EscalationRecord) IncreaseDTO {
	dto := IncreaseDTO{
		ID:            string(rec.ID),
		ContractID:    string(rec.ContractID),
		EffectiveDate: rec.EffectiveDate.Format("2006-01-02"),
		Amount:        rec.Amount.StringFixed(2),
		Currency:      string(rec.Currency),
		Note:          rec.Note,
	}
	if rec.PeriodFrom != nil {
		dto.PeriodFrom = rec.PeriodFrom.Format("2006-01-02")
	}
	if rec.PeriodTo != nil {
		dto.PeriodTo = rec.PeriodTo.Format("2006-01-02")
	}
	return dto
}

func toPassResultDTO(result escalation.PassResult) PassResultDTO {
	dto := PassResultDTO{
		Evaluated: result.Evaluated,
		Created:   result.Created,
		Failed:    []string{},
	}
	for _, id := range result.Failed {
		dto.Failed = append(dto.Failed, string(id))
	}
	return dto
}

func toPassRunDTO(run sqlite.PassRun) PassRunDTO {
	dto := PassRunDTO{
		ID:          run.ID,
		RunAt:       run.RunAt.Format(time.RFC3339),
		TriggerKind: run.TriggerKind,
		Status:      run.Status,
		Evaluated:   run.Evaluated,
		Created:     run.Created,
		Error:       run.Error,
	}
	if run.FailedJSON != "" {
		_ = json.Unmarshal([]byte(run.FailedJSON), &dto.Failed)
	}
	if run.CompletedAt != nil {
		dto.CompletedAt = run.CompletedAt.Format(time.RFC3339)
	}
	return dto
}

func decimalField(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("missing value")
	}
	return decimal.NewFromString(s)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
