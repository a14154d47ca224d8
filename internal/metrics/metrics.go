package metrics

import "expvar"

var (
	BatchesComposed    = expvar.NewInt("flexmailer_batches_total")
	TasksComposed      = expvar.NewInt("flexmailer_tasks_composed_total")
	ResolutionFailures = expvar.NewInt("flexmailer_resolution_failures_total")
	PreviewsSpooled    = expvar.NewInt("flexmailer_previews_spooled_total")
	PreviewFailures    = expvar.NewInt("flexmailer_preview_failures_total")
	lastBatchSize      = expvar.NewInt("flexmailer_last_batch_size")
)

// SetLastBatchSize records the number of tasks in the most recent batch.
func SetLastBatchSize(n int) {
	lastBatchSize.Set(int64(n))
}

// ResetForTests clears counters; intended for use in tests only.
func ResetForTests() {
	BatchesComposed.Set(0)
	TasksComposed.Set(0)
	ResolutionFailures.Set(0)
	PreviewsSpooled.Set(0)
	PreviewFailures.Set(0)
	lastBatchSize.Set(0)
}
