package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	Generations           map[string]uint64
	ProviderFailures      map[string]uint64
	ProviderDurationCount uint64
	ProviderDurationTotal time.Duration
	CreditsDebited        int64
	UsersRegistered       uint64
	TransactionsCreated   uint64
	EventsPublished       uint64
	EventsDropped         uint64
	EventsProcessed       map[string]uint64
	EventQueueDepth       int64
	CreditsReconciled     int64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	mu               sync.Mutex
	generations      map[string]uint64
	providerFailures map[string]uint64

	providerDurationCount   uint64
	providerDurationTotalNs int64
	creditsDebited          int64
	usersRegistered         uint64
	transactionsCreated     uint64
	eventsPublished         uint64
	eventsDropped           uint64
	eventsProcessed         map[string]uint64
	eventQueueDepth         int64
	creditsReconciled       int64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		generations:      make(map[string]uint64),
		providerFailures: make(map[string]uint64),
		eventsProcessed:  make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	generations := make(map[string]uint64, len(m.generations))
	for k, v := range m.generations {
		generations[k] = v
	}
	failures := make(map[string]uint64, len(m.providerFailures))
	for k, v := range m.providerFailures {
		failures[k] = v
	}
	processed := make(map[string]uint64, len(m.eventsProcessed))
	for k, v := range m.eventsProcessed {
		processed[k] = v
	}
	m.mu.Unlock()

	return Snapshot{
		Generations:           generations,
		ProviderFailures:      failures,
		ProviderDurationCount: atomic.LoadUint64(&m.providerDurationCount),
		ProviderDurationTotal: time.Duration(atomic.LoadInt64(&m.providerDurationTotalNs)),
		CreditsDebited:        atomic.LoadInt64(&m.creditsDebited),
		UsersRegistered:       atomic.LoadUint64(&m.usersRegistered),
		TransactionsCreated:   atomic.LoadUint64(&m.transactionsCreated),
		EventsPublished:       atomic.LoadUint64(&m.eventsPublished),
		EventsDropped:         atomic.LoadUint64(&m.eventsDropped),
		EventsProcessed:       processed,
		EventQueueDepth:       atomic.LoadInt64(&m.eventQueueDepth),
		CreditsReconciled:     atomic.LoadInt64(&m.creditsReconciled),
	}
}

// IncGeneration counts a relay outcome.
func (m *InMemoryRecorder) IncGeneration(outcome string) {
	m.mu.Lock()
	m.generations[outcome]++
	m.mu.Unlock()
}

// ObserveProviderDuration records provider call duration.
func (m *InMemoryRecorder) ObserveProviderDuration(provider string, duration time.Duration) {
	atomic.AddUint64(&m.providerDurationCount, 1)
	atomic.AddInt64(&m.providerDurationTotalNs, duration.Nanoseconds())
}

// IncProviderFailure counts a provider failure keyed by kind.
func (m *InMemoryRecorder) IncProviderFailure(provider, kind string) {
	m.mu.Lock()
	m.providerFailures[kind]++
	m.mu.Unlock()
}

// IncCreditsDebited adds to the debited credit total.
func (m *InMemoryRecorder) IncCreditsDebited(amount int64) {
	atomic.AddInt64(&m.creditsDebited, amount)
}

// IncUserRegistered increments the registration counter.
func (m *InMemoryRecorder) IncUserRegistered() {
	atomic.AddUint64(&m.usersRegistered, 1)
}

// IncTransactionCreated increments the transaction counter.
func (m *InMemoryRecorder) IncTransactionCreated(plan string) {
	atomic.AddUint64(&m.transactionsCreated, 1)
}

// IncEventPublished counts published or dropped events.
func (m *InMemoryRecorder) IncEventPublished(status string) {
	if status == "success" {
		atomic.AddUint64(&m.eventsPublished, 1)
		return
	}
	atomic.AddUint64(&m.eventsDropped, 1)
}

// IncEventProcessed counts consumed events by status.
func (m *InMemoryRecorder) IncEventProcessed(status string) {
	m.mu.Lock()
	m.eventsProcessed[status]++
	m.mu.Unlock()
}

// SetEventQueueDepth stores the latest consumer backlog.
func (m *InMemoryRecorder) SetEventQueueDepth(depth int64) {
	atomic.StoreInt64(&m.eventQueueDepth, depth)
}

// IncCreditsReconciled adds to the late-debit total.
func (m *InMemoryRecorder) IncCreditsReconciled(amount int64) {
	atomic.AddInt64(&m.creditsReconciled, amount)
}
