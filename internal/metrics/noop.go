package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncGeneration is a no-op.
func (n *NoopRecorder) IncGeneration(outcome string) {}

// ObserveProviderDuration is a no-op.
func (n *NoopRecorder) ObserveProviderDuration(provider string, duration time.Duration) {}

// IncProviderFailure is a no-op.
func (n *NoopRecorder) IncProviderFailure(provider, kind string) {}

// IncCreditsDebited is a no-op.
func (n *NoopRecorder) IncCreditsDebited(amount int64) {}

// IncUserRegistered is a no-op.
func (n *NoopRecorder) IncUserRegistered() {}

// IncTransactionCreated is a no-op.
func (n *NoopRecorder) IncTransactionCreated(plan string) {}

// IncEventPublished is a no-op.
func (n *NoopRecorder) IncEventPublished(status string) {}

// IncEventProcessed is a no-op.
func (n *NoopRecorder) IncEventProcessed(status string) {}

// SetEventQueueDepth is a no-op.
func (n *NoopRecorder) SetEventQueueDepth(depth int64) {}

// IncCreditsReconciled is a no-op.
func (n *NoopRecorder) IncCreditsReconciled(amount int64) {}
