// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Generation outcomes.
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidRequest     = "invalid_request"
	OutcomeInsufficientCredit = "insufficient_credit"
	OutcomeProviderError      = "provider_error"
	OutcomeLedgerError        = "ledger_error"
	OutcomeFault              = "fault"
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Relay metrics
	IncGeneration(outcome string)
	ObserveProviderDuration(provider string, duration time.Duration)
	IncProviderFailure(provider, kind string)
	IncCreditsDebited(amount int64)

	// Account metrics
	IncUserRegistered()
	IncTransactionCreated(plan string)

	// Event stream metrics
	IncEventPublished(status string) // status: "success" or "dropped"
	IncEventProcessed(status string) // status: "success", "failed", "dead_lettered"
	SetEventQueueDepth(depth int64)
	IncCreditsReconciled(amount int64)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
