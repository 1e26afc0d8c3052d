package escalation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/rent-engine/escalation"
	"github.com/warp/rent-engine/escalation/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// recorder captures notices for assertions.
type recorder struct {
	mu       sync.Mutex
	applied  []escalation.IncreaseNotice
	upcoming []escalation.IncreaseNotice
	fail     bool
}

func (r *recorder) IncreaseApplied(_ context.Context, n escalation.IncreaseNotice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("smtp unreachable")
	}
	r.applied = append(r.applied, n)
	return nil
}

func (r *recorder) IncreaseUpcoming(_ context.Context, n escalation.IncreaseNotice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upcoming = append(r.upcoming, n)
	return nil
}

func newRunner(mem *store.Memory, rec *recorder) *escalation.Runner {
	return escalation.NewRunner(mem, mem, rec)
}

func seedContract(t *testing.T, mem *store.Memory, id string, pct string, freq int, seedDate time.Time, amount string) escalation.Contract {
	t.Helper()
	c := contract(id, pct, freq)
	mem.PutContract(c)

	inserted, err := mem.InsertIfAbsent(context.Background(), record(id, seedDate, amount))
	require.NoError(t, err)
	require.True(t, inserted)
	return c
}

// =============================================================================
// PASS BEHAVIOR
// =============================================================================

func TestRunPass_AppliesDueIncrease(t *testing.T) {
	// GIVEN: One active contract one full period past its seed
	// WHEN: RunPass
	// THEN: One record created, amount compounded
	mem := store.NewMemory()
	rec := &recorder{}
	runner := newRunner(mem, rec)
	ctx := context.Background()

	seedContract(t, mem, "c-1", "10", 30, date(2025, time.January, 1), "100000.00")
	now := date(2025, time.February, 5)

	result, err := runner.RunPass(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Evaluated)
	assert.Equal(t, 1, result.Created)
	assert.Empty(t, result.Failed)

	latest, err := mem.Latest(ctx, "c-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "110000.00", latest.Amount.StringFixed(2))
	assert.True(t, latest.EffectiveDate.Equal(date(2025, time.January, 31)))
}

func TestRunPass_Idempotent_SecondRunCreatesNothing(t *testing.T) {
	// GIVEN: A pass already applied everything due
	// WHEN: The same pass runs again with no time change
	// THEN: Zero additional records
	mem := store.NewMemory()
	runner := newRunner(mem, &recorder{})
	ctx := context.Background()

	seedContract(t, mem, "c-1", "10", 30, date(2025, time.January, 1), "100000.00")
	now := date(2025, time.March, 10)

	first, err := runner.RunPass(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)

	second, err := runner.RunPass(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Evaluated)
	assert.Equal(t, 0, second.Created, "repeated pass must not duplicate records")
	assert.Empty(t, second.Failed)
}

func TestRunPass_CatchUp_WritesAscendingChain(t *testing.T) {
	// GIVEN: Last record 3 full periods in the past
	// WHEN: One pass
	// THEN: 3 new records, strictly increasing, each compounding the previous
	mem := store.NewMemory()
	runner := newRunner(mem, &recorder{})
	ctx := context.Background()

	seedContract(t, mem, "c-1", "10", 30, date(2025, time.January, 1), "100000.00")
	now := date(2025, time.January, 1).AddDate(0, 0, 95)

	result, err := runner.RunPass(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Created)

	history, err := mem.History(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, history, 4) // seed + 3

	amounts := []string{"100000.00", "110000.00", "121000.00", "133100.00"}
	for i, rec := range history {
		assert.Equal(t, amounts[i], rec.Amount.StringFixed(2), "record %d", i)
		if i > 0 {
			assert.True(t, rec.EffectiveDate.After(history[i-1].EffectiveDate),
				"effective dates must be strictly increasing")
			assert.True(t, rec.EffectiveDate.Equal(history[i-1].EffectiveDate.AddDate(0, 0, 30)),
				"records must be spaced by the frequency")
		}
	}
}

func TestRunPass_IneligibleContracts_NotEvaluated(t *testing.T) {
	mem := store.NewMemory()
	runner := newRunner(mem, &recorder{})
	ctx := context.Background()

	// Inactive contract
	inactive := contract("c-inactive", "10", 30)
	inactive.Status = escalation.StatusInactive
	mem.PutContract(inactive)

	// Ended contract
	ended := contract("c-ended", "10", 30)
	ended.EndDate = date(2024, time.January, 1)
	mem.PutContract(ended)

	result, err := runner.RunPass(ctx, date(2025, time.June, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, result.Evaluated)
	assert.Equal(t, 0, result.Created)
}

// =============================================================================
// FAILURE ISOLATION
// =============================================================================

func TestRunPass_MissingSeed_FailsContractNotPass(t *testing.T) {
	// GIVEN: One contract without a seed record, one healthy contract
	// WHEN: One pass
	// THEN: The broken contract is in Failed; the healthy one is processed
	mem := store.NewMemory()
	runner := newRunner(mem, &recorder{})
	ctx := context.Background()

	mem.PutContract(contract("c-broken", "10", 30)) // no seed record

	seedContract(t, mem, "c-ok", "10", 30, date(2025, time.January, 1), "500.00")
	now := date(2025, time.February, 5)

	result, err := runner.RunPass(ctx, now)
	require.NoError(t, err, "one malformed contract must not abort the pass")
	assert.Equal(t, 2, result.Evaluated)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, []escalation.ContractID{"c-broken"}, result.Failed)

	latest, err := mem.Latest(ctx, "c-ok")
	require.NoError(t, err)
	assert.Equal(t, "550.00", latest.Amount.StringFixed(2))
}

func TestRunPass_InvalidTerms_FailsContractNotPass(t *testing.T) {
	mem := store.NewMemory()
	runner := newRunner(mem, &recorder{})
	ctx := context.Background()

	seedContract(t, mem, "c-bad", "10", -7, date(2025, time.January, 1), "500.00")
	seedContract(t, mem, "c-ok", "10", 30, date(2025, time.January, 1), "500.00")

	result, err := runner.RunPass(ctx, date(2025, time.February, 5))
	require.NoError(t, err)
	assert.Equal(t, []escalation.ContractID{"c-bad"}, result.Failed)
	assert.Equal(t, 1, result.Created)
}

func TestRunPass_TransientStoreError_RetriedWithinPass(t *testing.T) {
	// GIVEN: A store that fails the first 2 reads per contract
	// WHEN: A pass with MaxRetries = 2 (3 attempts total)
	// THEN: The contract still succeeds
	mem := store.NewMemory()
	flaky := store.NewFlaky(mem, 2, errors.New("connection reset"))
	runner := escalation.NewRunner(mem, flaky, &recorder{})

	seedContract(t, mem, "c-1", "10", 30, date(2025, time.January, 1), "100.00")

	result, err := runner.RunPass(context.Background(), date(2025, time.February, 5))
	require.NoError(t, err)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 1, result.Created)
}

func TestRunPass_PersistentStoreError_ContractFails(t *testing.T) {
	mem := store.NewMemory()
	flaky := store.NewFlaky(mem, 10, errors.New("connection reset"))
	runner := escalation.NewRunner(mem, flaky, &recorder{})

	seedContract(t, mem, "c-1", "10", 30, date(2025, time.January, 1), "100.00")

	result, err := runner.RunPass(context.Background(), date(2025, time.February, 5))
	require.NoError(t, err)
	assert.Equal(t, []escalation.ContractID{"c-1"}, result.Failed)
}

func TestRunPass_ListActiveFails_PassAborts(t *testing.T) {
	// Listing failure leaves nothing to do: fatal to the whole pass.
	mem := store.NewMemory()
	failing := &failingContracts{err: errors.New("db down")}
	runner := escalation.NewRunner(failing, mem, &recorder{})

	_, err := runner.RunPass(context.Background(), date(2025, time.February, 5))
	require.Error(t, err)
}

type failingContracts struct{ err error }

func (f *failingContracts) ListActive(context.Context, time.Time) ([]escalation.Contract, error) {
	return nil, f.err
}

func (f *failingContracts) Get(context.Context, escalation.ContractID) (escalation.Contract, error) {
	return escalation.Contract{}, f.err
}

// =============================================================================
// CANCELLATION
// =============================================================================

func TestRunPass_CancelledContext_StopsEarly(t *testing.T) {
	mem := store.NewMemory()
	runner := newRunner(mem, &recorder{})

	seedContract(t, mem, "c-1", "10", 30, date(2025, time.January, 1), "100.00")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := runner.RunPass(ctx, date(2025, time.February, 5))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, result.Evaluated)
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func TestRunPass_NotifiesOncePerEscalatedContract(t *testing.T) {
	// GIVEN: A contract 2 periods behind, and one not yet due
	// WHEN: One pass
	// THEN: One notice, carrying the newest amount
	mem := store.NewMemory()
	rec := &recorder{}
	runner := newRunner(mem, rec)

	seedContract(t, mem, "c-due", "10", 30, date(2025, time.January, 1), "100000.00")
	seedContract(t, mem, "c-fresh", "10", 30, date(2025, time.February, 20), "200.00")
	now := date(2025, time.March, 5)

	_, err := runner.RunPass(context.Background(), now)
	require.NoError(t, err)

	require.Len(t, rec.applied, 1)
	notice := rec.applied[0]
	assert.Equal(t, escalation.ContractID("c-due"), notice.ContractID)
	assert.Equal(t, "121000.00", notice.Amount, "notice carries the latest new amount")
	assert.Equal(t, escalation.CurrencyARS, notice.Currency)
}

func TestRunPass_NotifierFailure_DoesNotFailContract(t *testing.T) {
	mem := store.NewMemory()
	rec := &recorder{fail: true}
	runner := newRunner(mem, rec)

	seedContract(t, mem, "c-1", "10", 30, date(2025, time.January, 1), "100.00")

	result, err := runner.RunPass(context.Background(), date(2025, time.February, 5))
	require.NoError(t, err)
	assert.Empty(t, result.Failed, "notification failure must not roll back the write")
	assert.Equal(t, 1, result.Created)
}

// =============================================================================
// ADVANCE NOTICES
// =============================================================================

func TestUpcomingNotices_FiresAtExactLead(t *testing.T) {
	// GIVEN: Next due date exactly 10 days out for one contract,
	//        9 days out for another
	// WHEN: The notice sweep runs
	// THEN: Only the 10-day contract is notified, nothing is written
	mem := store.NewMemory()
	rec := &recorder{}
	runner := newRunner(mem, rec)
	ctx := context.Background()

	now := date(2025, time.March, 1)
	// due = seed + 30; seed so that due = now + 10
	seedContract(t, mem, "c-exact", "10", 30, now.AddDate(0, 0, 10-30), "100.00")
	seedContract(t, mem, "c-near", "10", 30, now.AddDate(0, 0, 9-30), "100.00")

	sent, err := runner.UpcomingNotices(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	require.Len(t, rec.upcoming, 1)
	assert.Equal(t, escalation.ContractID("c-exact"), rec.upcoming[0].ContractID)
	assert.Equal(t, "110.00", rec.upcoming[0].Amount)

	history, err := mem.History(ctx, "c-exact")
	require.NoError(t, err)
	assert.Len(t, history, 1, "the sweep must not write records")
}
