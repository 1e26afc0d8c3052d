/*
Package escalation implements the rent-increase engine for lease contracts.

PURPOSE:
  Every active lease contract carries a fixed escalation policy: a
  percentage applied to the rent once per period (e.g. +10% every 30
  days). This package decides when an increase is due, computes the new
  compounded amount, and records exactly one increase per elapsed period.

KEY CONCEPTS IN THIS FILE (types.go):
  - Contract: The lease terms the scheduler reads (status, end date, policy)
  - EscalationRecord: An immutable ledger entry recording one applied increase
  - Currency / ContractStatus: Closed enums, exhaustively matched
  - Contract/Record IDs: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Immutability: Records are never modified or deleted once written
  2. Precision: Uses decimal.Decimal to avoid floating-point errors;
     HALF_UP rounding to 2 fractional digits at every compounding step
  3. Idempotency: The ledger's (contract, effective date) uniqueness is the
     sole mechanism preventing double-applied increases
  4. Statelessness: Every pass re-derives "which period are we in" from the
     latest record; nothing is remembered between passes

SEE ALSO:
  - calculator.go: Due-date and compounding arithmetic
  - ledger.go: Record persistence interface
  - runner.go: The pass driver orchestrating a full evaluation
*/
package escalation

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ContractID string
type RecordID string

// =============================================================================
// ENUMS - Closed sets, exhaustively matched
// =============================================================================

// ContractStatus is the lifecycle state of a lease contract.
// Only active contracts are evaluated by the scheduler.
type ContractStatus string

const (
	StatusActive   ContractStatus = "active"
	StatusInactive ContractStatus = "inactive"
)

// Currency identifies the denomination of an amount. It is carried verbatim
// from record to record and never converted.
type Currency string

const (
	CurrencyARS Currency = "ARS"
	CurrencyUSD Currency = "USD"
)

// Valid reports whether c is one of the known currencies.
func (c Currency) Valid() bool {
	switch c {
	case CurrencyARS, CurrencyUSD:
		return true
	}
	return false
}

// =============================================================================
// CONTRACT - Lease terms as read by the scheduler
// =============================================================================

// Contract holds the subset of a lease contract the scheduler needs.
// The contract itself is owned by the lease-management service; this
// engine only reads it.
type Contract struct {
	ID     ContractID
	Status ContractStatus

	// EndDate bounds eligibility: a contract is evaluated only while
	// EndDate is in the future.
	EndDate time.Time

	// IncreasePct is the percentage applied per period. 10.5 means x1.105.
	// Must be non-negative; validation upstream, enforced again by the
	// calculator as a data-integrity check.
	IncreasePct decimal.Decimal

	// FrequencyDays is the length of one escalation period in days.
	// Must be positive.
	FrequencyDays int
}

// Eligible reports whether the contract should be evaluated at now.
func (c Contract) Eligible(now time.Time) bool {
	return c.Status == StatusActive && c.EndDate.After(now)
}

// =============================================================================
// ESCALATION RECORD - Immutable ledger entry
// =============================================================================

// EscalationRecord is one applied increase for a contract. Records are
// append-only: corrections are out of scope, and the seed record (the very
// first amount) is created at contract inception, never by the scheduler.
type EscalationRecord struct {
	ID         RecordID
	ContractID ContractID

	// EffectiveDate marks the start of the period this amount applies to.
	// Unique per contract: at most one record per escalation period.
	EffectiveDate time.Time

	// Amount is the rent for the period, fixed-point with 2 fractional digits.
	Amount   decimal.Decimal
	Currency Currency

	Note       string
	PeriodFrom *time.Time
	PeriodTo   *time.Time
}

// NextDue returns the effective date of the increase that follows r
// under the contract's frequency.
func (r EscalationRecord) NextDue(frequencyDays int) time.Time {
	return r.EffectiveDate.AddDate(0, 0, frequencyDays)
}

// =============================================================================
// MONEY HELPERS
// =============================================================================

var oneHundred = decimal.NewFromInt(100)

// Compound applies pct once to amount: amount * (100 + pct) / 100,
// rounded HALF_UP to 2 fractional digits. Rounding happens at every
// step, not only at the end, because each step produces a persisted,
// user-visible record.
func Compound(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(oneHundred.Add(pct)).DivRound(oneHundred, 2)
}

// MustParseDecimal parses s, returning zero on malformed input.
// Convenience for fixtures and seeds.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
