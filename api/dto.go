/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

// =============================================================================
// CONTRACT TYPES
// =============================================================================

// ContractDTO represents a contract in API responses.
type ContractDTO struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	EndDate       string `json:"end_date"`
	IncreasePct   string `json:"increase_pct"`
	FrequencyDays int    `json:"frequency_days"`
}

// CreateContractRequest registers a contract together with its seed
// record (the initial rent). The seed is written here, at contract
// creation; the scheduler never produces it.
type CreateContractRequest struct {
	ID            string `json:"id"`
	EndDate       string `json:"end_date"`
	IncreasePct   string `json:"increase_pct"`
	FrequencyDays int    `json:"frequency_days"`
	StartDate     string `json:"start_date"`
	InitialAmount string `json:"initial_amount"`
	Currency      string `json:"currency"`
}

// =============================================================================
// INCREASE TYPES
// =============================================================================

// IncreaseDTO represents one escalation record in API responses.
type IncreaseDTO struct {
	ID            string `json:"id"`
	ContractID    string `json:"contract_id"`
	EffectiveDate string `json:"effective_date"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Note          string `json:"note,omitempty"`
	PeriodFrom    string `json:"period_from,omitempty"`
	PeriodTo      string `json:"period_to,omitempty"`
}

// =============================================================================
// PASS TYPES
// =============================================================================

// PassResultDTO summarizes one scheduler pass.
type PassResultDTO struct {
	Evaluated int      `json:"evaluated"`
	Created   int      `json:"created"`
	Failed    []string `json:"failed"`
}

// PassRunDTO represents a recorded pass run.
type PassRunDTO struct {
	ID          string   `json:"id"`
	RunAt       string   `json:"run_at"`
	TriggerKind string   `json:"trigger_kind"`
	Status      string   `json:"status"`
	Evaluated   int      `json:"evaluated"`
	Created     int      `json:"created"`
	Failed      []string `json:"failed,omitempty"`
	Error       string   `json:"error,omitempty"`
	CompletedAt string   `json:"completed_at,omitempty"`
}

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
