// Package metrics defines the minimal instrumentation surface the probe
// pipeline depends on.
//
// Design goals (intentionally opinionated):
//   - Pipeline code depends only on Backend; what happens to the numbers is
//     a backend concern (Datadog, nop, a test fake).
//   - Recording must be cheap and never fail: both methods are fire-and-forget.
//   - A process-wide backend keeps call sites short; SetBackend is expected
//     to run once at startup, before the pipeline starts.
package metrics

import "sync"

// Labels tag a single observation.
type Labels map[string]string

// Backend receives individual observations. Implementations decide how to
// aggregate and where to ship them.
type Backend interface {
	// IncCounter adds delta to the named counter. Non-positive deltas are
	// ignored.
	IncCounter(name string, delta float64, labels Labels)

	// ObserveHistogram records one sample of the named distribution.
	// Negative values are ignored.
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer observations.
type Flusher interface {
	Flush() error
}

// Metric names recorded by the pipeline.
const (
	StepTotal           = "probe_step_total"
	StepDurationSeconds = "probe_step_duration_seconds"
	RecordsTotal        = "probe_records_total"
	CoercionErrorsTotal = "probe_coercion_errors_total"
)

// Nop discards all observations. It is the default backend.
type Nop struct{}

func (Nop) IncCounter(string, float64, Labels)       {}
func (Nop) ObserveHistogram(string, float64, Labels) {}

var (
	mu      sync.RWMutex
	backend Backend = Nop{}
)

// SetBackend installs the process-wide backend. Passing nil restores Nop.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = Nop{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter records a counter increment on the process-wide backend.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records a sample on the process-wide backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush flushes the process-wide backend if it buffers observations.
func Flush() error {
	if f, ok := current().(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// RecordStep records one completed pipeline step with its outcome and
// duration. Step names are free-form ("discover", "flatten", "sink").
func RecordStep(step, status string, seconds float64) {
	l := Labels{"step": step, "status": status}
	IncCounter(StepTotal, 1, l)
	ObserveHistogram(StepDurationSeconds, seconds, l)
}

// RecordRecords counts processed records by kind ("sampled", "flattened",
// "restored", "skipped").
func RecordRecords(kind string, n int) {
	if n <= 0 {
		return
	}
	IncCounter(RecordsTotal, float64(n), Labels{"kind": kind})
}

// RecordCoercionErrors counts schema coercion failures by target type.
func RecordCoercionErrors(target string, n int) {
	if n <= 0 {
		return
	}
	IncCounter(CoercionErrorsTotal, float64(n), Labels{"target": target})
}
