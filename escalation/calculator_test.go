/*
calculator_test.go - Executable specification of the escalation arithmetic

ORGANIZATION:
  1. Due-date behavior - when increases fall due
  2. Catch-up behavior - multi-period chains
  3. Numeric behavior - compounding and HALF_UP rounding
  4. Validation - malformed contract terms

Each test has GIVEN/WHEN/THEN comments explaining the scenario.
*/
package escalation_test

import (
	"errors"
	"testing"
	"time"

	"github.com/warp/rent-engine/escalation"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func contract(id string, pct string, frequencyDays int) escalation.Contract {
	return escalation.Contract{
		ID:            escalation.ContractID(id),
		Status:        escalation.StatusActive,
		EndDate:       date(2030, time.January, 1),
		IncreasePct:   escalation.MustParseDecimal(pct),
		FrequencyDays: frequencyDays,
	}
}

func record(contractID string, effective time.Time, amount string) escalation.EscalationRecord {
	return escalation.EscalationRecord{
		ID:            "rec-seed",
		ContractID:    escalation.ContractID(contractID),
		EffectiveDate: effective,
		Amount:        escalation.MustParseDecimal(amount),
		Currency:      escalation.CurrencyARS,
	}
}

// =============================================================================
// DUE-DATE BEHAVIOR
// =============================================================================

func TestPendingIncreases_NotYetDue_ReturnsNone(t *testing.T) {
	// GIVEN: Last increase 20 days ago, 30-day frequency
	// WHEN: Computing pending increases
	// THEN: Nothing is due
	c := contract("c-1", "10", 30)
	last := record("c-1", date(2025, time.March, 1), "100000.00")
	now := date(2025, time.March, 21)

	pending, err := escalation.PendingIncreases(c, last, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected no pending increases, got %d", len(pending))
	}
}

func TestPendingIncreases_DueExactlyToday_Applies(t *testing.T) {
	// GIVEN: Last increase exactly one frequency ago
	// WHEN: Computing at the due date itself
	// THEN: The increase applies (due date is inclusive)
	c := contract("c-1", "10", 30)
	last := record("c-1", date(2025, time.March, 1), "100000.00")
	now := date(2025, time.March, 31)

	pending, err := escalation.PendingIncreases(c, last, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending increase, got %d", len(pending))
	}
	if !pending[0].EffectiveDate.Equal(date(2025, time.March, 31)) {
		t.Errorf("expected effective date 2025-03-31, got %s", pending[0].EffectiveDate)
	}
}

func TestNextDueDate(t *testing.T) {
	c := contract("c-1", "10", 30)
	last := record("c-1", date(2025, time.March, 1), "100000.00")

	due, err := escalation.NextDueDate(c, last)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !due.Equal(date(2025, time.March, 31)) {
		t.Errorf("expected 2025-03-31, got %s", due)
	}
}

// =============================================================================
// CATCH-UP BEHAVIOR
// =============================================================================

func TestPendingIncreases_ThreeElapsedPeriods_EmitsAllThree(t *testing.T) {
	// GIVEN: Last record 3 full periods in the past (95 days, 30-day frequency)
	// WHEN: One computation
	// THEN: Exactly 3 records, strictly increasing dates spaced by 30 days
	c := contract("c-1", "10", 30)
	last := record("c-1", date(2025, time.January, 1), "100000.00")
	now := last.EffectiveDate.AddDate(0, 0, 95)

	pending, err := escalation.PendingIncreases(c, last, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending increases, got %d", len(pending))
	}

	for i, rec := range pending {
		want := last.EffectiveDate.AddDate(0, 0, 30*(i+1))
		if !rec.EffectiveDate.Equal(want) {
			t.Errorf("record %d: expected effective date %s, got %s", i, want, rec.EffectiveDate)
		}
	}
}

func TestPendingIncreases_ConcreteScenario_65DaysElapsed(t *testing.T) {
	// GIVEN: Seed 100000.00, 10% every 30 days, last record 65 days before now
	// WHEN: One computation
	// THEN: Two records: +30d 110000.00, +60d 121000.00; no third (+90d > now)
	c := contract("c-1", "10", 30)
	seed := date(2025, time.January, 1)
	last := record("c-1", seed, "100000.00")
	now := seed.AddDate(0, 0, 65)

	pending, err := escalation.PendingIncreases(c, last, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending increases, got %d", len(pending))
	}

	if got := pending[0].Amount.StringFixed(2); got != "110000.00" {
		t.Errorf("first increase: expected 110000.00, got %s", got)
	}
	if !pending[0].EffectiveDate.Equal(seed.AddDate(0, 0, 30)) {
		t.Errorf("first increase: wrong effective date %s", pending[0].EffectiveDate)
	}
	if got := pending[1].Amount.StringFixed(2); got != "121000.00" {
		t.Errorf("second increase: expected 121000.00, got %s", got)
	}
	if !pending[1].EffectiveDate.Equal(seed.AddDate(0, 0, 60)) {
		t.Errorf("second increase: wrong effective date %s", pending[1].EffectiveDate)
	}
}

func TestPendingIncreases_CurrencyCopiedVerbatim(t *testing.T) {
	c := contract("c-1", "10", 30)
	last := record("c-1", date(2025, time.January, 1), "500.00")
	last.Currency = escalation.CurrencyUSD
	now := date(2025, time.March, 15)

	pending, err := escalation.PendingIncreases(c, last, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, rec := range pending {
		if rec.Currency != escalation.CurrencyUSD {
			t.Errorf("record %d: expected USD, got %s", i, rec.Currency)
		}
	}
}

// =============================================================================
// NUMERIC BEHAVIOR
// =============================================================================

func TestPendingIncreases_RoundingHalfUp(t *testing.T) {
	// GIVEN: Amount 333.33, 10% increase
	// 333.33 x 1.10 = 366.663, HALF_UP to 2 decimals = 366.66
	c := contract("c-1", "10", 30)
	last := record("c-1", date(2025, time.January, 1), "333.33")
	now := date(2025, time.February, 1)

	pending, err := escalation.PendingIncreases(c, last, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending increase, got %d", len(pending))
	}
	if got := pending[0].Amount.StringFixed(2); got != "366.66" {
		t.Errorf("expected 366.66, got %s", got)
	}
}

func TestPendingIncreases_RoundsEveryStep_NotOnlyAtEnd(t *testing.T) {
	// GIVEN: Seed 100.45, 0.5% per period, 2 elapsed periods
	//
	// Stepwise (what the ledger must contain):
	//   100.45 x 1.005 = 100.95225  -> 100.95
	//   100.95 x 1.005 = 101.45475  -> 101.45
	// End-to-end rounding would give a different answer:
	//   100.45 x 1.005^2 = 101.45701... -> 101.46
	//
	// Each period is a persisted, user-visible record, so the stepwise
	// result is the correct one.
	c := contract("c-1", "0.5", 30)
	last := record("c-1", date(2025, time.January, 1), "100.45")
	now := last.EffectiveDate.AddDate(0, 0, 60)

	pending, err := escalation.PendingIncreases(c, last, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending increases, got %d", len(pending))
	}
	if got := pending[0].Amount.StringFixed(2); got != "100.95" {
		t.Errorf("first step: expected 100.95, got %s", got)
	}
	if got := pending[1].Amount.StringFixed(2); got != "101.45" {
		t.Errorf("second step: expected 101.45 (stepwise rounding), got %s", got)
	}
}

func TestPendingIncreases_ZeroPercent_AmountUnchanged(t *testing.T) {
	// A 0% policy still records the period boundary; the amount carries over.
	c := contract("c-1", "0", 30)
	last := record("c-1", date(2025, time.January, 1), "750.00")
	now := date(2025, time.February, 5)

	pending, err := escalation.PendingIncreases(c, last, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending increase, got %d", len(pending))
	}
	if got := pending[0].Amount.StringFixed(2); got != "750.00" {
		t.Errorf("expected 750.00, got %s", got)
	}
}

func TestCompound_HalfUpAtTwoDigits(t *testing.T) {
	cases := []struct {
		amount, pct, want string
	}{
		{"333.33", "10", "366.66"},
		{"100000.00", "10", "110000.00"},
		{"110000.00", "10", "121000.00"},
		{"100.45", "0.5", "100.95"},
		{"0.01", "50", "0.02"}, // 0.015 rounds up
	}

	for _, tc := range cases {
		got := escalation.Compound(
			escalation.MustParseDecimal(tc.amount),
			escalation.MustParseDecimal(tc.pct),
		).StringFixed(2)
		if got != tc.want {
			t.Errorf("Compound(%s, %s%%) = %s, want %s", tc.amount, tc.pct, got, tc.want)
		}
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestPendingIncreases_NonPositiveFrequency_Rejected(t *testing.T) {
	c := contract("c-1", "10", 0)
	last := record("c-1", date(2025, time.January, 1), "100.00")

	_, err := escalation.PendingIncreases(c, last, date(2025, time.June, 1))
	if !errors.Is(err, escalation.ErrInvalidContract) {
		t.Errorf("expected ErrInvalidContract, got %v", err)
	}
}

func TestPendingIncreases_NegativePercentage_Rejected(t *testing.T) {
	c := contract("c-1", "-5", 30)
	last := record("c-1", date(2025, time.January, 1), "100.00")

	_, err := escalation.PendingIncreases(c, last, date(2025, time.June, 1))
	if !errors.Is(err, escalation.ErrInvalidContract) {
		t.Errorf("expected ErrInvalidContract, got %v", err)
	}
}
