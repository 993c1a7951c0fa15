// Package summary builds the final SummaryReport of a run. Output is an
// output.Output that collects per-request breakdowns and failed-request
// messages while the run is in progress; Build merges them with the metrics
// engine snapshot and the threshold verdicts.
package summary

import (
	"sort"
	"sync"
	"time"

	"yqhp/loadgen/internal/metrics/engine"
	"yqhp/loadgen/pkg/metrics"
	"yqhp/loadgen/pkg/output"
	"yqhp/loadgen/pkg/types"
)

// Compile-time check.
var _ output.Output = &Output{}

// maxErrors 报告中保留的错误条目上限
const maxErrors = 20

// Output implements output.Output and collects per-request statistics
// for the final report.
type Output struct {
	output.SampleBuffer

	mu           sync.Mutex
	requests     map[requestKey]*requestStats
	errorTracker *errorTracker

	periodicFlusher *output.PeriodicFlusher
}

type requestKey struct {
	name   string
	method string
}

type requestStats struct {
	duration *metrics.TrendSink
	failed   *metrics.RateSink
}

// New creates a new Summary Output.
func New() *Output {
	return &Output{
		requests:     make(map[requestKey]*requestStats),
		errorTracker: newErrorTracker(),
	}
}

func (o *Output) Description() string {
	return "summary (per-request breakdown)"
}

func (o *Output) Start() error {
	pf, err := output.NewPeriodicFlusher(100*time.Millisecond, o.flushSamples)
	if err != nil {
		return err
	}
	o.periodicFlusher = pf
	return nil
}

// Stop flushes the remaining samples.
func (o *Output) Stop() error {
	if o.periodicFlusher != nil {
		o.periodicFlusher.Stop()
	}
	return nil
}

func (o *Output) SetRunStatus(_ output.RunStatus) {}

// flushSamples processes buffered samples into internal aggregation structures.
func (o *Output) flushSamples() {
	containers := o.GetBufferedSamples()
	if len(containers) == 0 {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for _, container := range containers {
		for _, sample := range container.GetSamples() {
			o.processSample(sample)
		}
	}
}

func (o *Output) processSample(sample metrics.Sample) {
	if sample.Metric == nil {
		return
	}

	switch sample.Metric.Name {
	case metrics.HTTPReqDurationName:
		o.stats(sample.Tags).duration.Add(sample)
	case metrics.HTTPReqFailedName:
		o.stats(sample.Tags).failed.Add(sample)
		if sample.Value != 0 {
			o.errorTracker.Record(errorMessage(sample.Tags), sample.Tags["name"])
		}
	}
}

func (o *Output) stats(tags map[string]string) *requestStats {
	key := requestKey{name: tags["name"], method: tags["method"]}
	if s, ok := o.requests[key]; ok {
		return s
	}
	s := &requestStats{
		duration: &metrics.TrendSink{},
		failed:   &metrics.RateSink{},
	}
	o.requests[key] = s
	return s
}

// errorMessage 优先使用传输错误，其次是状态码
func errorMessage(tags map[string]string) string {
	if msg := tags["error"]; msg != "" {
		return msg
	}
	if status := tags["status"]; status != "" && status != "0" {
		return "unexpected status " + status
	}
	return "request failed"
}

// Requests returns the per-request breakdown sorted by name, then method.
func (o *Output) Requests() []types.RequestSummary {
	o.flushSamples()

	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]types.RequestSummary, 0, len(o.requests))
	for key, s := range o.requests {
		d := s.duration.Format(0)
		f := s.failed.Format(0)
		out = append(out, types.RequestSummary{
			Name:     key.name,
			Method:   key.method,
			Count:    int64(d["count"]),
			Failures: int64(f["passes"]),
			AvgMs:    d["avg"],
			MedMs:    d["med"],
			P95Ms:    d["p(95)"],
			MaxMs:    d["max"],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Method < out[j].Method
	})
	return out
}

// Errors returns the most frequent failure messages.
func (o *Output) Errors() []types.ErrorSummary {
	o.flushSamples()
	return o.errorTracker.Top(maxErrors)
}

// State is everything the report is built from.
type State struct {
	RunID      string
	Name       string
	Stages     []types.Stage
	Duration   time.Duration
	PeakVUs    int
	Iterations int64
	Snapshot   *engine.Snapshot
	Thresholds []types.ThresholdResult
	Passed     bool
	// Output is optional; when set the report carries the per-request breakdown.
	Output *Output
}

// Build turns the final state into a SummaryReport. Given the same state it
// always returns an identical report.
func Build(s State) *types.SummaryReport {
	report := &types.SummaryReport{
		RunID:      s.RunID,
		Name:       s.Name,
		Passed:     s.Passed,
		DurationMs: s.Duration.Milliseconds(),
		PeakVUs:    s.PeakVUs,
		Iterations: s.Iterations,
		Stages:     append([]types.Stage{}, s.Stages...),
		Metrics:    []types.MetricSummary{},
		Checks:     []types.CheckSummary{},
		Thresholds: append([]types.ThresholdResult{}, s.Thresholds...),
	}

	if s.Snapshot != nil {
		for _, m := range s.Snapshot.Metrics {
			values := make(map[string]float64, len(m.Values))
			for k, v := range m.Values {
				values[k] = v
			}
			report.Metrics = append(report.Metrics, types.MetricSummary{
				Name:     m.Name,
				Type:     string(m.Type),
				Contains: string(m.Contains),
				Values:   values,
			})
		}
		sort.Slice(report.Metrics, func(i, j int) bool {
			return report.Metrics[i].Name < report.Metrics[j].Name
		})

		for _, c := range s.Snapshot.Checks {
			cs := types.CheckSummary{Name: c.Name, Passes: c.Passes, Fails: c.Fails}
			if total := c.Passes + c.Fails; total > 0 {
				cs.Rate = float64(c.Passes) / float64(total)
			}
			report.Checks = append(report.Checks, cs)
		}
		sort.Slice(report.Checks, func(i, j int) bool {
			return report.Checks[i].Name < report.Checks[j].Name
		})
	}

	if s.Output != nil {
		report.Requests = s.Output.Requests()
		report.Errors = s.Output.Errors()
	}

	return report
}

// --- Error Tracker ---

type errorTracker struct {
	mu     sync.Mutex
	errors map[errorKey]int64
}

type errorKey struct {
	message string
	request string
}

func newErrorTracker() *errorTracker {
	return &errorTracker{errors: make(map[errorKey]int64)}
}

func (et *errorTracker) Record(message, request string) {
	et.mu.Lock()
	defer et.mu.Unlock()
	et.errors[errorKey{message: message, request: request}]++
}

// Top returns at most n entries by count descending; ties by message, then request.
func (et *errorTracker) Top(n int) []types.ErrorSummary {
	et.mu.Lock()
	defer et.mu.Unlock()

	if len(et.errors) == 0 {
		return nil
	}

	entries := make([]types.ErrorSummary, 0, len(et.errors))
	for k, count := range et.errors {
		entries = append(entries, types.ErrorSummary{Message: k.message, Request: k.request, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		if entries[i].Message != entries[j].Message {
			return entries[i].Message < entries[j].Message
		}
		return entries[i].Request < entries[j].Request
	})

	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
