/*
ledger.go - Append-only increase ledger

PURPOSE:
  The Ledger is the source of truth for "what period is this contract in."
  The latest record's effective date anchors the next due date; there is
  no other memory of scheduler progress anywhere in the system.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. ORDERED: Records for a contract are totally ordered by EffectiveDate,
     at most one per escalation period.
  3. SEEDED: The first record for a contract is created at contract
     inception, outside this engine. The scheduler only extends the chain.

WHY RE-DERIVE FROM THE LEDGER?
  - Crash safety: a pass that dies mid-way loses nothing; the next pass
    picks up from the last persisted record
  - Idempotency: a repeated pass recomputes the same records and the
    conditional insert makes the duplicates harmless
  - Auditability: the full escalation history of a contract is its ledger

SEE ALSO:
  - store.go: Low-level persistence interface
  - runner.go: The pass driver writing through this ledger
*/
package escalation

import (
	"context"
	"fmt"
)

// =============================================================================
// LEDGER - Domain wrapper over Store
// =============================================================================

// Ledger exposes the increase history of contracts with seed enforcement
// on reads: a contract without records is an integrity fault, surfaced as
// ErrMissingSeed rather than a silent nil.
type Ledger struct {
	store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// LastRecord returns the contract's most recent record.
// Returns ErrMissingSeed if the contract has no records at all.
func (l *Ledger) LastRecord(ctx context.Context, contractID ContractID) (EscalationRecord, error) {
	rec, err := l.store.Latest(ctx, contractID)
	if err != nil {
		return EscalationRecord{}, fmt.Errorf("load latest record for %s: %w", contractID, err)
	}
	if rec == nil {
		return EscalationRecord{}, fmt.Errorf("contract %s: %w", contractID, ErrMissingSeed)
	}
	return *rec, nil
}

// Append writes rec through the store's conditional insert.
// Returns true if the record is new, false if an identical period was
// already recorded (a successful no-op).
func (l *Ledger) Append(ctx context.Context, rec EscalationRecord) (bool, error) {
	inserted, err := l.store.InsertIfAbsent(ctx, rec)
	if err != nil {
		return false, fmt.Errorf("insert record for %s: %w", rec.ContractID, err)
	}
	return inserted, nil
}

// History returns the contract's full record chain, oldest first.
func (l *Ledger) History(ctx context.Context, contractID ContractID) ([]EscalationRecord, error) {
	return l.store.History(ctx, contractID)
}
