package httpapi

import (
	"sort"
	"sync"
)

// Auth event names recorded by the handlers.
const (
	EventGoogleRedirect    = "auth.google.redirect"
	EventCallbackSuccess   = "auth.callback.success"
	EventCallbackRejected  = "auth.callback.rejected"
	EventOneTapSuccess     = "auth.onetap.success"
	EventOneTapRejected    = "auth.onetap.rejected"
	EventReconcileDegraded = "auth.reconcile.degraded"
)

// MetricsRecorder increments counters for auth events.
type MetricsRecorder interface {
	Increment(event string)
}

// CounterMetrics implements MetricsRecorder with in-memory counts. Counts
// survive for the process lifetime only.
type CounterMetrics struct {
	guard  sync.RWMutex
	events map[string]int64
}

// NewCounterMetrics constructs an in-memory metrics recorder.
func NewCounterMetrics() *CounterMetrics {
	return &CounterMetrics{events: make(map[string]int64)}
}

// Increment increases the counter for the given event.
func (recorder *CounterMetrics) Increment(event string) {
	recorder.guard.Lock()
	recorder.events[event]++
	recorder.guard.Unlock()
}

// Count returns the current value for the given event.
func (recorder *CounterMetrics) Count(event string) int64 {
	recorder.guard.RLock()
	defer recorder.guard.RUnlock()
	return recorder.events[event]
}

// EventNames lists every event seen so far in sorted order.
func (recorder *CounterMetrics) EventNames() []string {
	recorder.guard.RLock()
	defer recorder.guard.RUnlock()
	names := make([]string, 0, len(recorder.events))
	for name := range recorder.events {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of all recorded counters.
func (recorder *CounterMetrics) Snapshot() map[string]int64 {
	recorder.guard.RLock()
	defer recorder.guard.RUnlock()
	clone := make(map[string]int64, len(recorder.events))
	for name, value := range recorder.events {
		clone[name] = value
	}
	return clone
}
