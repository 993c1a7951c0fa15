package types

import "time"

// Outcome classifies how a single request ended.
// A check predicate only ever sees an Outcome, never a raw transport error.
type Outcome string

const (
	// OutcomeOK means the response arrived with a success status and a body
	// that decoded as expected.
	OutcomeOK Outcome = "ok"
	// OutcomeTransportError means no response was received (dial, write,
	// read or timeout failure).
	OutcomeTransportError Outcome = "transport_error"
	// OutcomeBadStatus means a response arrived with a non-2xx status.
	OutcomeBadStatus Outcome = "bad_status"
	// OutcomeMalformedBody means the status was fine but the body did not
	// decode.
	OutcomeMalformedBody Outcome = "malformed_body"
)

// Failed reports whether anything went wrong, including a malformed body.
func (o Outcome) Failed() bool {
	return o != OutcomeOK
}

// RequestFailed reports whether the request itself failed: no response or
// an unsuccessful status. This is what http_req_failed records.
func (o Outcome) RequestFailed() bool {
	return o == OutcomeTransportError || o == OutcomeBadStatus
}

// RequestResult holds the timings and outcome of one HTTP call.
type RequestResult struct {
	Name          string
	Method        string
	URL           string
	Status        int
	Duration      time.Duration
	BytesSent     int
	BytesReceived int
	Outcome       Outcome
	Error         string
}

// CheckResult is the verdict of one named check.
type CheckResult struct {
	Name   string
	Passed bool
}

// MetricValue is a value for a custom metric produced by a step.
type MetricValue struct {
	Metric string
	Value  float64
}

// IterationResult collects everything one iteration observed. It is turned
// into metric samples as soon as the iteration ends and then dropped.
type IterationResult struct {
	VU        int
	Iteration int
	StartTime time.Time
	Duration  time.Duration
	Requests  []RequestResult
	Checks    []CheckResult
	Values    []MetricValue
}

// AddRequest appends a request result.
func (r *IterationResult) AddRequest(req RequestResult) {
	r.Requests = append(r.Requests, req)
}

// Check records a named check and returns its verdict, so callers can
// combine verdicts without skipping the record.
func (r *IterationResult) Check(name string, passed bool) bool {
	r.Checks = append(r.Checks, CheckResult{Name: name, Passed: passed})
	return passed
}

// Add records a value for a custom metric.
func (r *IterationResult) Add(metric string, value float64) {
	r.Values = append(r.Values, MetricValue{Metric: metric, Value: value})
}

// AddBool records a boolean value (1 or 0) for a custom rate metric.
func (r *IterationResult) AddBool(metric string, v bool) {
	if v {
		r.Add(metric, 1)
		return
	}
	r.Add(metric, 0)
}
