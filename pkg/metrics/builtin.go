package metrics

// 内置指标名称
const (
	VUsName               = "vus"
	VUsMaxName            = "vus_max"
	IterationsName        = "iterations"
	IterationDurationName = "iteration_duration"
	HTTPReqsName          = "http_reqs"
	HTTPReqDurationName   = "http_req_duration"
	HTTPReqFailedName     = "http_req_failed"
	DataSentName          = "data_sent"
	DataReceivedName      = "data_received"
	ChecksName            = "checks"
)

// BuiltinMetrics holds the metrics every run records.
type BuiltinMetrics struct {
	VUs               *Metric
	VUsMax            *Metric
	Iterations        *Metric
	IterationDuration *Metric
	HTTPReqs          *Metric
	HTTPReqDuration   *Metric
	HTTPReqFailed     *Metric
	DataSent          *Metric
	DataReceived      *Metric
	Checks            *Metric
}

// RegisterBuiltinMetrics registers the built-in metrics with registry.
func RegisterBuiltinMetrics(registry *Registry) *BuiltinMetrics {
	return &BuiltinMetrics{
		VUs:               registry.MustNewMetric(VUsName, Gauge, Default),
		VUsMax:            registry.MustNewMetric(VUsMaxName, Gauge, Default),
		Iterations:        registry.MustNewMetric(IterationsName, Counter, Default),
		IterationDuration: registry.MustNewMetric(IterationDurationName, Trend, Time),
		HTTPReqs:          registry.MustNewMetric(HTTPReqsName, Counter, Default),
		HTTPReqDuration:   registry.MustNewMetric(HTTPReqDurationName, Trend, Time),
		HTTPReqFailed:     registry.MustNewMetric(HTTPReqFailedName, Rate, Default),
		DataSent:          registry.MustNewMetric(DataSentName, Counter, Data),
		DataReceived:      registry.MustNewMetric(DataReceivedName, Counter, Data),
		Checks:            registry.MustNewMetric(ChecksName, Rate, Default),
	}
}
