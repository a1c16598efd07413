package axiosly

// MetricsSink is a pluggable observer for completed records and internal events.
// Implementations must be non-blocking or very fast; the monitor invokes the sink
// synchronously from its hooks and background workers.
type MetricsSink interface {
	ObserveRecord(MetricsRecord)
	ObserveEvent(name string, fields map[string]any)
}

// Event names reported to a MetricsSink.
const (
	EventMonitorAttached = "monitor_attached"
	EventRecordEvicted   = "record_evicted"
	EventSlowResponse    = "slow_response"
	EventForwardDropped  = "forward_dropped"
	EventForwardFailed   = "forward_failed"
	EventFlush           = "flush"
)

// nopSink is used when no sink is configured.
type nopSink struct{}

func (nopSink) ObserveRecord(MetricsRecord) {}
func (nopSink) ObserveEvent(string, map[string]any) {}
