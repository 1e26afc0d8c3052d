/*
calculator.go - Due-date and compounding arithmetic

PURPOSE:
  Pure computation: given a contract's escalation terms, its last recorded
  increase, and the current time, produce every increase that has fallen
  due since. No I/O, no clock reads, no persistence.

CATCH-UP POLICY:
  If the scheduler did not run for several periods (e.g. 70 days elapsed
  against a 30-day frequency), the calculator returns the whole chain of
  missed increases, one per fully elapsed period, each compounding off the
  previous. Financial history is never silently lost regardless of how
  infrequently the driver runs.

NUMERIC SEMANTICS:
  All monetary arithmetic is decimal fixed-point. Each step applies
  amount * (100 + pct) / 100 and rounds HALF_UP to 2 fractional digits
  before the next step compounds off it. Intermediate periods are
  themselves rounded because each one is a persisted, user-visible record.

SEE ALSO:
  - types.go: Compound()
  - runner.go: Where the output is written through the ledger
*/
package escalation

import (
	"time"
)

// PendingIncreases computes every increase due for the contract at now,
// compounding off last (the most recent persisted record). Returns an
// empty slice when the next due date is still in the future.
//
// Results are in ascending EffectiveDate order. Record IDs are left empty;
// the caller assigns them at write time.
func PendingIncreases(contract Contract, last EscalationRecord, now time.Time) ([]EscalationRecord, error) {
	if err := validateTerms(contract); err != nil {
		return nil, err
	}

	var pending []EscalationRecord

	prevAmount := last.Amount
	prevDate := last.EffectiveDate

	for {
		due := prevDate.AddDate(0, 0, contract.FrequencyDays)
		if due.After(now) {
			break
		}

		newAmount := Compound(prevAmount, contract.IncreasePct)
		from := due
		to := due.AddDate(0, 0, contract.FrequencyDays)

		pending = append(pending, EscalationRecord{
			ContractID:    contract.ID,
			EffectiveDate: due,
			Amount:        newAmount,
			Currency:      last.Currency,
			PeriodFrom:    &from,
			PeriodTo:      &to,
		})

		prevAmount = newAmount
		prevDate = due
	}

	return pending, nil
}

// NextDueDate returns when the contract's next increase falls due, given
// its last record. Used for advance notices; shares validation with
// PendingIncreases.
func NextDueDate(contract Contract, last EscalationRecord) (time.Time, error) {
	if err := validateTerms(contract); err != nil {
		return time.Time{}, err
	}
	return last.NextDue(contract.FrequencyDays), nil
}

func validateTerms(contract Contract) error {
	if contract.FrequencyDays <= 0 {
		return &InvalidContractError{
			ContractID:    contract.ID,
			FrequencyDays: contract.FrequencyDays,
			IncreasePct:   contract.IncreasePct.String(),
			Reason:        "frequency must be positive",
		}
	}
	if contract.IncreasePct.IsNegative() {
		return &InvalidContractError{
			ContractID:    contract.ID,
			FrequencyDays: contract.FrequencyDays,
			IncreasePct:   contract.IncreasePct.String(),
			Reason:        "percentage must be non-negative",
		}
	}
	return nil
}
