// Package metrics records operational metrics for pipeline runs behind a
// small backend interface.
//
// The default backend is a no-op, so instrumentation is always safe to call.
// Concrete systems (Prometheus Pushgateway, DogStatsD) live in subpackages
// and are installed with SetBackend.
package metrics

import "time"

// Metric names.
const (
	StepTotal           = "dwh_step_total"
	StepDurationSeconds = "dwh_step_duration_seconds"
	RowsTotal           = "dwh_rows_total"
	BatchesTotal        = "dwh_batches_total"
	DefectsTotal        = "dwh_defects_total"
)

// Row kinds recorded with RecordRows.
const (
	RowsLoaded           = "loaded"
	RowsRemoved          = "removed"
	RowsSourceDuplicates = "source_duplicates"
	RowsDerived          = "derived"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStep counts one plan step and observes its duration.
func RecordStep(job, stage, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{
		"job":    job,
		"stage":  stage,
		"step":   step,
		"status": status,
	}
	backend.IncCounter(StepTotal, 1, lbls)
	backend.ObserveHistogram(StepDurationSeconds, d.Seconds(), lbls)
}

// RecordRows adds delta rows of kind for table. Non-positive deltas are
// dropped.
func RecordRows(job, table, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RowsTotal, float64(delta), Labels{
		"job":   job,
		"table": table,
		"kind":  kind,
	})
}

// RecordBatches counts client-side copy batches for table.
func RecordBatches(job, table string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(BatchesTotal, float64(delta), Labels{
		"job":   job,
		"table": table,
	})
}

// RecordDefects counts validation defects of kind found on table.
func RecordDefects(job, table, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(DefectsTotal, float64(delta), Labels{
		"job":   job,
		"table": table,
		"kind":  kind,
	})
}
