package observability

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the ambient operational counters for the dispatch-and-
// execution core. Metrics has no methods: callers update the fields
// directly and check for a nil *Metrics first, as the Dispatcher does. Only
// DispatchRejections and DispatchDuration are updated in this module;
// ToolRetries, ToolTimeouts and BroadcasterDrops are registered but nothing
// increments them.
type Metrics struct {
	ToolRetries        *prometheus.CounterVec
	ToolTimeouts        *prometheus.CounterVec
	BroadcasterDrops    prometheus.Counter
	DispatchRejections prometheus.Counter
	DispatchDuration    prometheus.Histogram
}

// NewMetrics constructs and registers the core's Prometheus collectors
// against reg. Pass prometheus.NewRegistry() in tests to avoid colliding
// with the global default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ToolRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_tool_retries_total",
			Help: "Number of tool call retry attempts, by tool name.",
		}, []string{"tool"}),
		ToolTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_tool_timeouts_total",
			Help: "Number of tool calls that exceeded their timeout, by tool name.",
		}, []string{"tool"}),
		BroadcasterDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentcore_broadcaster_drops_total",
			Help: "Number of broadcast events dropped due to a full subscriber queue.",
		}),
		DispatchRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentcore_dispatch_rejections_total",
			Help: "Number of dispatch calls rejected because a channel's execution queue was full.",
		}),
		DispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentcore_dispatch_duration_seconds",
			Help:    "Wall-clock duration of one dispatch() call.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.ToolRetries, m.ToolTimeouts, m.BroadcasterDrops, m.DispatchRejections, m.DispatchDuration)
	return m
}
