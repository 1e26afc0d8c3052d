/*
errors.go - Centralized error types for the escalation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Store implementations wrap these with additional context.

ERROR CATEGORIES:
  1. Data-integrity errors - Malformed contracts, missing seed records
  2. Ledger errors - Record persistence failures
  3. Lookup errors - Missing contracts

USAGE:
  if errors.Is(err, escalation.ErrMissingSeed) {
      // contract was created without its initial amount
  }
*/
package escalation

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMissingSeed is returned when an active contract has no escalation
	// record at all. Every contract must be seeded at creation; a missing
	// seed is a data-integrity fault isolated to that contract.
	ErrMissingSeed = errors.New("contract has no seed record")

	// ErrInvalidContract is returned when a contract carries a
	// non-positive frequency or a negative percentage. Such contracts
	// are rejected, never silently tolerated.
	ErrInvalidContract = errors.New("invalid contract escalation terms")

	// ErrDuplicateRecord is returned by stores when a record with the same
	// (contract, effective date) already exists. Callers treat this as a
	// successful no-op: it is the expected outcome of the idempotency
	// guarantee, not a failure.
	ErrDuplicateRecord = errors.New("escalation record already exists")

	// ErrContractNotFound is returned when a referenced contract doesn't exist.
	ErrContractNotFound = errors.New("contract not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidContractError reports which contract failed validation and why.
type InvalidContractError struct {
	ContractID    ContractID
	FrequencyDays int
	IncreasePct   string
	Reason        string
}

func (e *InvalidContractError) Error() string {
	return fmt.Sprintf("contract %s: %s (frequency=%dd, pct=%s)",
		e.ContractID, e.Reason, e.FrequencyDays, e.IncreasePct)
}

func (e *InvalidContractError) Unwrap() error {
	return ErrInvalidContract
}

// DuplicateRecordError identifies the conflicting period.
type DuplicateRecordError struct {
	ContractID    ContractID
	EffectiveDate time.Time
}

func (e *DuplicateRecordError) Error() string {
	return fmt.Sprintf("record already exists: contract %s effective %s",
		e.ContractID, e.EffectiveDate.Format("2006-01-02"))
}

func (e *DuplicateRecordError) Unwrap() error {
	return ErrDuplicateRecord
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsDataIntegrity returns true if the error is a per-contract data fault
// (isolated, never fatal to a pass).
func IsDataIntegrity(err error) bool {
	return errors.Is(err, ErrMissingSeed) || errors.Is(err, ErrInvalidContract)
}
