/*
store.go - Persistence interfaces for the escalation engine

PURPOSE:
  Defines the boundary between the engine and its collaborators. The
  engine reads contracts from a ContractStore it does not own, and reads
  and appends escalation records through a Store.

APPEND-ONLY CONTRACT:
  The Store interface has exactly one write operation, InsertIfAbsent.
  No Update. No Delete. Corrections are out of scope for this subsystem.

IDEMPOTENCY:
  InsertIfAbsent is conditional on (ContractID, EffectiveDate). The
  uniqueness MUST be enforced by the store itself (a unique index, a keyed
  map), never by a read-then-write in application code: overlapping passes
  may compute the same pending record, and both writers must be safe.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite store (unique index, WAL)
  - escalation/store: In-memory store for tests and dev

SEE ALSO:
  - ledger.go: Higher-level Ledger wrapping a Store
  - runner.go: The only writer
*/
package escalation

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Escalation record persistence (append-only)
// =============================================================================

// Store persists escalation records.
// IMPORTANT: Store is APPEND-ONLY. InsertIfAbsent is the only write.
type Store interface {
	// InsertIfAbsent persists rec unless a record with the same
	// (ContractID, EffectiveDate) already exists. Returns true if the
	// record was newly inserted, false (and no error) if it was already
	// present. The uniqueness check and the insert are one atomic
	// operation in the store.
	InsertIfAbsent(ctx context.Context, rec EscalationRecord) (bool, error)

	// Latest returns the record with the maximum EffectiveDate for the
	// contract, or nil if the contract has no records.
	Latest(ctx context.Context, contractID ContractID) (*EscalationRecord, error)

	// History returns all records for the contract in ascending
	// EffectiveDate order. Read-only.
	History(ctx context.Context, contractID ContractID) ([]EscalationRecord, error)
}

// =============================================================================
// CONTRACT STORE - Read-only view of the lease subsystem
// =============================================================================

// ContractStore is the engine's read-only window onto contracts.
// The contract CRUD surface lives in the lease-management service.
type ContractStore interface {
	// ListActive returns every contract with StatusActive whose EndDate
	// is after now. Ordering is irrelevant; contracts are processed
	// independently.
	ListActive(ctx context.Context, now time.Time) ([]Contract, error)

	// Get returns the contract or ErrContractNotFound.
	Get(ctx context.Context, id ContractID) (Contract, error)
}

// =============================================================================
// NOTIFIER - Downstream collaborator, fire-and-forget
// =============================================================================

// IncreaseNotice describes one applied (or upcoming) increase.
type IncreaseNotice struct {
	ContractID    ContractID
	Amount        string
	Currency      Currency
	EffectiveDate time.Time
}

// Notifier delivers increase notifications. Failures are logged by the
// caller and never roll back or block ledger writes; retry policy belongs
// to the collaborator, not this engine.
type Notifier interface {
	// IncreaseApplied fires after a contract gained at least one new
	// record in a pass, carrying the newest amount.
	IncreaseApplied(ctx context.Context, notice IncreaseNotice) error

	// IncreaseUpcoming fires when an increase is a fixed number of days
	// away, so tenants get advance warning. Nothing has been written yet.
	IncreaseUpcoming(ctx context.Context, notice IncreaseNotice) error
}
