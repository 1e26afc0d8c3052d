/*
runner.go - The scheduler driver: one full evaluation pass

PURPOSE:
  Orchestrates a pass over every eligible contract: load the latest
  record, compute pending increases, write them in order through the
  ledger, and hand one notification per escalated contract to the
  downstream notifier.

FAILURE MODEL:
  - Listing active contracts fails -> the whole pass aborts (there is
    nothing useful to do without the contract set); the external trigger
    retries on its next tick.
  - Anything failing for ONE contract -> that contract lands in
    PassResult.Failed and the pass continues. One malformed contract
    never starves the rest.
  - A duplicate write -> success. Overlapping passes computing the same
    record is the expected outcome of the idempotency design.

CONCURRENCY:
  Contracts are independent, so the pass fans out over a bounded worker
  pool. Each contract's read-compute-write sequence stays on a single
  worker. Cancellation is cooperative: checked before each contract is
  dispatched; records already written stand (they are valid facts).

SEE ALSO:
  - calculator.go: PendingIncreases
  - ledger.go: Conditional writes
  - api/scheduler.go: The ticker that invokes RunPass on a cadence
*/
package escalation

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// PASS RESULT
// =============================================================================

// PassResult summarizes one pass for operators and monitoring.
// Failed is the only user-visible error signal this subsystem emits.
type PassResult struct {
	Evaluated int
	Created   int
	Failed    []ContractID
}

// =============================================================================
// RUNNER
// =============================================================================

const (
	defaultWorkers    = 4
	defaultMaxRetries = 2
	defaultNoticeLead = 10 // days, matching the legacy advance-notice window
)

// Runner drives escalation passes. Zero value is not usable; construct
// with NewRunner.
type Runner struct {
	contracts ContractStore
	ledger    *Ledger
	notifier  Notifier

	// Workers bounds per-contract parallelism within a pass.
	Workers int

	// MaxRetries bounds retry attempts for transient store errors on a
	// single contract's reads/writes.
	MaxRetries int

	// NoticeLeadDays is how many days before a due date an advance
	// notice fires.
	NoticeLeadDays int
}

func NewRunner(contracts ContractStore, store Store, notifier Notifier) *Runner {
	return &Runner{
		contracts:      contracts,
		ledger:         NewLedger(store),
		notifier:       notifier,
		Workers:        defaultWorkers,
		MaxRetries:     defaultMaxRetries,
		NoticeLeadDays: defaultNoticeLead,
	}
}

// RunPass evaluates every active contract at now.
//
// The returned error is non-nil only when the pass as a whole could not
// run (contract listing failed, or ctx was cancelled part-way). Per-
// contract problems are reported in PassResult.Failed, never as an error.
func (r *Runner) RunPass(ctx context.Context, now time.Time) (PassResult, error) {
	contracts, err := r.contracts.ListActive(ctx, now)
	if err != nil {
		return PassResult{}, err
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		result PassResult
	)

	workers := r.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	sem := make(chan struct{}, workers)

	var cancelled bool
	for _, contract := range contracts {
		// Cooperative cancellation between contracts. Work already done
		// stands; the next pass picks up from the ledger.
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(c Contract) {
			defer wg.Done()
			defer func() { <-sem }()

			created, err := r.processContract(ctx, c, now)

			mu.Lock()
			defer mu.Unlock()
			result.Evaluated++
			result.Created += created
			if err != nil {
				log.Printf("[Pass] contract %s failed: %v", c.ID, err)
				result.Failed = append(result.Failed, c.ID)
			}
		}(contract)
	}

	wg.Wait()

	// Deterministic order for operators and tests.
	sort.Slice(result.Failed, func(i, j int) bool { return result.Failed[i] < result.Failed[j] })

	if cancelled {
		return result, ctx.Err()
	}
	return result, nil
}

// processContract runs the read-compute-write sequence for one contract.
// Returns how many records were newly created.
func (r *Runner) processContract(ctx context.Context, contract Contract, now time.Time) (int, error) {
	var last EscalationRecord
	err := r.withRetry(ctx, func() error {
		var err error
		last, err = r.ledger.LastRecord(ctx, contract.ID)
		return err
	})
	if err != nil {
		return 0, err
	}

	pending, err := PendingIncreases(contract, last, now)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	// Ascending order is required: each record compounds off the previous,
	// and a partial write must leave a valid prefix of the chain.
	created := 0
	var newest *EscalationRecord
	for i := range pending {
		rec := pending[i]
		rec.ID = RecordID(uuid.NewString())

		var inserted bool
		err := r.withRetry(ctx, func() error {
			var err error
			inserted, err = r.ledger.Append(ctx, rec)
			return err
		})
		if err != nil {
			return created, err
		}
		if inserted {
			created++
			newest = &rec
		}
	}

	if created > 0 && newest != nil && r.notifier != nil {
		notice := IncreaseNotice{
			ContractID:    contract.ID,
			Amount:        newest.Amount.StringFixed(2),
			Currency:      newest.Currency,
			EffectiveDate: newest.EffectiveDate,
		}
		// Fire-and-forget: the notifier owns its own retry policy.
		if err := r.notifier.IncreaseApplied(ctx, notice); err != nil {
			log.Printf("[Pass] notify failed for contract %s: %v", contract.ID, err)
		}
	}

	return created, nil
}

// withRetry runs fn up to MaxRetries+1 times, bailing early on
// cancellation or on errors that retrying cannot fix.
func (r *Runner) withRetry(ctx context.Context, fn func() error) error {
	retries := r.MaxRetries
	if retries < 0 {
		retries = 0
	}

	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = fn()
		if err == nil || IsDataIntegrity(err) {
			return err
		}
	}
	return err
}

// =============================================================================
// ADVANCE NOTICES
// =============================================================================

// UpcomingNotices reports contracts whose next increase falls due exactly
// NoticeLeadDays from now (comparing calendar days, as the legacy system
// did). Nothing is written; failures are logged and skipped.
// Returns how many notices were delivered.
func (r *Runner) UpcomingNotices(ctx context.Context, now time.Time) (int, error) {
	contracts, err := r.contracts.ListActive(ctx, now)
	if err != nil {
		return 0, err
	}

	target := truncateDay(now.AddDate(0, 0, r.NoticeLeadDays))

	sent := 0
	for _, contract := range contracts {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}

		last, err := r.ledger.LastRecord(ctx, contract.ID)
		if err != nil {
			log.Printf("[Notice] contract %s skipped: %v", contract.ID, err)
			continue
		}
		due, err := NextDueDate(contract, last)
		if err != nil {
			log.Printf("[Notice] contract %s skipped: %v", contract.ID, err)
			continue
		}
		if !truncateDay(due).Equal(target) {
			continue
		}

		notice := IncreaseNotice{
			ContractID:    contract.ID,
			Amount:        Compound(last.Amount, contract.IncreasePct).StringFixed(2),
			Currency:      last.Currency,
			EffectiveDate: due,
		}
		if err := r.notifier.IncreaseUpcoming(ctx, notice); err != nil {
			log.Printf("[Notice] notify failed for contract %s: %v", contract.ID, err)
			continue
		}
		sent++
	}
	return sent, nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
