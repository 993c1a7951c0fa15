package types

// SummaryReport is the final snapshot produced once at the end of a run.
// Every slice is sorted so that identical aggregates marshal identically.
type SummaryReport struct {
	RunID      string `json:"run_id"`
	Name       string `json:"name"`
	Passed     bool   `json:"passed"`
	DurationMs int64  `json:"duration_ms"`
	PeakVUs    int    `json:"peak_vus"`
	Iterations int64  `json:"iterations"`

	Stages     []Stage           `json:"stages"`
	Metrics    []MetricSummary   `json:"metrics"`
	Checks     []CheckSummary    `json:"checks"`
	Thresholds []ThresholdResult `json:"thresholds"`

	Requests []RequestSummary `json:"requests,omitempty"`
	Errors   []ErrorSummary   `json:"errors,omitempty"`
}

// RequestSummary breaks http_req_duration and http_req_failed down by
// request name and method.
type RequestSummary struct {
	Name     string  `json:"name"`
	Method   string  `json:"method"`
	Count    int64   `json:"count"`
	Failures int64   `json:"failures"`
	AvgMs    float64 `json:"avg_ms"`
	MedMs    float64 `json:"med_ms"`
	P95Ms    float64 `json:"p95_ms"`
	MaxMs    float64 `json:"max_ms"`
}

// ErrorSummary counts failed requests with the same message.
type ErrorSummary struct {
	Message string `json:"message"`
	Request string `json:"request"`
	Count   int64  `json:"count"`
}

// MetricSummary holds the final aggregate of one metric.
type MetricSummary struct {
	Name     string             `json:"name"`
	Type     string             `json:"type"`
	Contains string             `json:"contains,omitempty"`
	Values   map[string]float64 `json:"values"`
}

// CheckSummary holds pass/fail counts of one named check.
type CheckSummary struct {
	Name   string  `json:"name"`
	Passes int64   `json:"passes"`
	Fails  int64   `json:"fails"`
	Rate   float64 `json:"rate"`
}

// Metric returns the summary of the named metric, or nil.
func (r *SummaryReport) Metric(name string) *MetricSummary {
	for i := range r.Metrics {
		if r.Metrics[i].Name == name {
			return &r.Metrics[i]
		}
	}
	return nil
}
