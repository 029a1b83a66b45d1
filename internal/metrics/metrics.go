package metrics

import "expvar"

var (
	JobsEnqueued = expvar.NewInt("tgd_jobs_enqueued_total")
	JobsSent     = expvar.NewInt("tgd_jobs_sent_total")
	JobsFailed   = expvar.NewInt("tgd_jobs_failed_total")
	JobsRetried  = expvar.NewInt("tgd_jobs_retried_total")
	RateLimited  = expvar.NewInt("tgd_rate_limited_total")
	queueDepth   = expvar.NewInt("tgd_queue_depth")
	inflight     = expvar.NewInt("tgd_inflight")
)

// SetQueueDepth records the current queue depth.
func SetQueueDepth(n int) {
	queueDepth.Set(int64(n))
}

// QueueDepth returns the last recorded queue depth.
func QueueDepth() int64 {
	return queueDepth.Value()
}

// IncInflight marks a transport call as started.
func IncInflight() {
	inflight.Add(1)
}

// DecInflight marks a transport call as finished.
func DecInflight() {
	inflight.Add(-1)
}

// ResetForTests clears counters; intended for use in tests only.
func ResetForTests() {
	JobsEnqueued.Set(0)
	JobsSent.Set(0)
	JobsFailed.Set(0)
	JobsRetried.Set(0)
	RateLimited.Set(0)
	queueDepth.Set(0)
	inflight.Set(0)
}
