/*
notify.go - Default Notifier implementations

PURPOSE:
  The engine hands notifications to a downstream collaborator (the email
  service in the wider system). That collaborator is out of scope here,
  so the defaults are a structured-log notifier for development and a
  no-op for when notifications are disabled.
*/
package escalation

import (
	"context"
	"log"
)

// LogNotifier writes every notice to the process log. Stands in for the
// real delivery collaborator in dev and single-binary deployments.
type LogNotifier struct{}

func (LogNotifier) IncreaseApplied(_ context.Context, n IncreaseNotice) error {
	log.Printf("[Notify] increase applied: contract=%s amount=%s %s effective=%s",
		n.ContractID, n.Amount, n.Currency, n.EffectiveDate.Format("2006-01-02"))
	return nil
}

func (LogNotifier) IncreaseUpcoming(_ context.Context, n IncreaseNotice) error {
	log.Printf("[Notify] increase upcoming: contract=%s amount=%s %s effective=%s",
		n.ContractID, n.Amount, n.Currency, n.EffectiveDate.Format("2006-01-02"))
	return nil
}

// NopNotifier discards all notices.
type NopNotifier struct{}

func (NopNotifier) IncreaseApplied(context.Context, IncreaseNotice) error  { return nil }
func (NopNotifier) IncreaseUpcoming(context.Context, IncreaseNotice) error { return nil }
