/*
scheduler.go - Automated escalation scheduler

PURPOSE:
  Periodically runs an escalation pass over all active contracts and a
  sweep for upcoming-increase notices. This is the in-process equivalent
  of the cron trigger: production deployments may instead hit
  POST /api/admin/run-pass from an external scheduler.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each tick: RunPass(now), then UpcomingNotices(now)
  - Every pass is recorded in pass_runs for audit and UI display
  - The ledger's uniqueness constraint makes overlapping or repeated
    ticks harmless; the scheduler itself keeps no state between ticks

CONFIGURATION:
  - CheckInterval: How often to run (default: 24 hours)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewEscalationScheduler(store, runner)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerPass endpoint (manual passes)
  - escalation/runner.go: The pass driver
*/
package api

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/rent-engine/escalation"
	"github.com/warp/rent-engine/store/sqlite"
)

// EscalationScheduler triggers passes on a fixed cadence.
type EscalationScheduler struct {
	Store         *sqlite.Store
	Runner        *escalation.Runner
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewEscalationScheduler creates a new scheduler.
func NewEscalationScheduler(store *sqlite.Store, runner *escalation.Runner) *EscalationScheduler {
	return &EscalationScheduler{
		Store:         store,
		Runner:        runner,
		CheckInterval: 24 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (s *EscalationScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)

	go s.run()

	log.Printf("[Scheduler] Started with check interval: %v", s.CheckInterval)
}

// Stop stops the scheduler.
func (s *EscalationScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (s *EscalationScheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.checkAndProcess()

	for {
		select {
		case <-s.ticker.C:
			s.checkAndProcess()
		case <-s.stop:
			return
		}
	}
}

func (s *EscalationScheduler) checkAndProcess() {
	ctx := context.Background()
	now := time.Now().UTC()

	log.Printf("[Scheduler] Running escalation pass at %v", now)

	result, err := RecordedPass(ctx, s.Runner, s.Store, now, "scheduled")
	if err != nil {
		log.Printf("[Scheduler] Pass failed: %v", err)
		return
	}

	if result.Created > 0 || len(result.Failed) > 0 {
		log.Printf("[Scheduler] Completed: %d evaluated, %d created, %d failed",
			result.Evaluated, result.Created, len(result.Failed))
	}

	sent, err := s.Runner.UpcomingNotices(ctx, now)
	if err != nil {
		log.Printf("[Scheduler] Notice sweep failed: %v", err)
		return
	}
	if sent > 0 {
		log.Printf("[Scheduler] Sent %d upcoming-increase notices", sent)
	}
}

// RunNow triggers an immediate pass (for testing/admin).
func (s *EscalationScheduler) RunNow() {
	s.checkAndProcess()
}

// =============================================================================
// PASS RECORDING
// =============================================================================

// RecordedPass runs one pass and persists its outcome to pass_runs.
// Shared by the ticker and the manual-trigger endpoint.
func RecordedPass(ctx context.Context, runner *escalation.Runner, store *sqlite.Store, now time.Time, trigger string) (escalation.PassResult, error) {
	startTime := time.Now().UTC()
	run := sqlite.PassRun{
		ID:          uuid.NewString(),
		RunAt:       now,
		TriggerKind: trigger,
		Status:      "running",
		StartedAt:   &startTime,
		CreatedAt:   startTime,
	}

	if err := store.SavePassRun(ctx, run); err != nil {
		// The pass matters more than its audit row.
		log.Printf("[Scheduler] Failed to save run record: %v", err)
	}

	result, passErr := runner.RunPass(ctx, now)

	completed := time.Now().UTC()
	run.Evaluated = result.Evaluated
	run.Created = result.Created
	run.CompletedAt = &completed
	if passErr != nil {
		run.Status = "failed"
		run.Error = passErr.Error()
	} else {
		run.Status = "completed"
	}
	if len(result.Failed) > 0 {
		failed := make([]string, len(result.Failed))
		for i, id := range result.Failed {
			failed[i] = string(id)
		}
		if data, err := json.Marshal(failed); err == nil {
			run.FailedJSON = string(data)
		}
	}

	if err := store.SavePassRun(ctx, run); err != nil {
		log.Printf("[Scheduler] Failed to update run record: %v", err)
	}

	return result, passErr
}
