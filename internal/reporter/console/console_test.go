package console

import (
	"bytes"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/loadgen/pkg/types"
)

func sampleReport() *types.SummaryReport {
	return &types.SummaryReport{
		RunID:      "run-1",
		Name:       "logs",
		Passed:     false,
		DurationMs: 12500,
		PeakVUs:    30,
		Iterations: 1200,
		Stages: []types.Stage{
			{Duration: 10 * time.Second, Target: 30},
			{Duration: 2 * time.Second, Target: 0},
		},
		Metrics: []types.MetricSummary{
			{Name: "data_received", Type: "counter", Contains: "data", Values: map[string]float64{"count": 2_500_000, "rate": 200_000}},
			{Name: "errors", Type: "rate", Values: map[string]float64{"rate": 0.05, "passes": 60, "fails": 1140}},
			{Name: "http_req_duration", Type: "trend", Contains: "time", Values: map[string]float64{
				"avg": 12.346, "min": 0.5, "med": 10, "max": 1500, "p(90)": 20, "p(95)": 25.5, "p(99)": 80, "count": 1200,
			}},
			{Name: "http_req_failed", Type: "rate", Values: map[string]float64{"rate": 0.05, "passes": 60, "fails": 1140}},
			{Name: "http_reqs", Type: "counter", Values: map[string]float64{"count": 1200, "rate": 96}},
			{Name: "logs_ingested", Type: "counter", Values: map[string]float64{"count": 3420, "rate": 273.6}},
			{Name: "vus", Type: "gauge", Values: map[string]float64{"value": 0, "min": 0, "max": 30}},
		},
		Checks: []types.CheckSummary{
			{Name: "log ingestion response has accepted field", Passes: 1140, Fails: 60, Rate: 0.95},
			{Name: "log ingestion status is 200", Passes: 1200, Fails: 0, Rate: 1},
		},
		Thresholds: []types.ThresholdResult{
			{Metric: "errors", Expression: "rate<0.01", Passed: false, ActualValue: 0.05},
			{Metric: "http_req_duration", Expression: "p(95)<1000", Passed: true, ActualValue: 25.5},
		},
		Requests: []types.RequestSummary{
			{Name: "POST /api/logs", Method: "POST", Count: 1200, Failures: 60, AvgMs: 12.346, MedMs: 10, P95Ms: 25.5, MaxMs: 1500},
		},
		Errors: []types.ErrorSummary{
			{Message: "unexpected status 503", Request: "POST /api/logs", Count: 60},
		},
	}
}

func TestRender_Layout(t *testing.T) {
	opts := DefaultOptions()
	opts.ColorOutput = false

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleReport(), opts))
	out := buf.String()

	for _, want := range []string{
		"logs load test summary",
		"Duration: 12.5s",
		"VUs: 30",
		"Iterations: 1200",
		"Requests: 1200",
		"Duration (avg): 12.35ms",
		"Duration (p95): 25.50ms",
		"Failed: 5.00%",
		"logs_ingested: 3420",
		"errors: 5.00%",
		"✓ log ingestion status is 200",
		"✗ log ingestion response has accepted field",
		"↳  95% — ✓ 1140 / ✗ 60",
		"2.5 MB 200 kB/s",
		"avg=12.35ms min=500.00µs med=10.00ms max=1.50s p(90)=20.00ms p(95)=25.50ms p(99)=80.00ms",
		"✗ errors rate<0.01 (actual 0.05)",
		"✓ http_req_duration p(95)<1000 (actual 25.5)",
		"60 × unexpected status 503 (POST /api/logs)",
		"Result: FAILED",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "\033[")

	// metric names are padded to a common width
	var dotted []string
	for _, line := range strings.Split(out, "\n") {
		if i := strings.Index(line, "...:"); i >= 0 {
			dotted = append(dotted, line[:i])
		}
	}
	require.NotEmpty(t, dotted)
	for _, d := range dotted {
		assert.Equal(t, utf8.RuneCountInString(dotted[0]), utf8.RuneCountInString(d))
	}
}

func TestRender_ThresholdMarks(t *testing.T) {
	opts := DefaultOptions()
	opts.ColorOutput = false
	out := RenderString(sampleReport(), opts)

	assert.Contains(t, out, "✗ errors....")
	assert.Contains(t, out, "✓ http_req_duration...")
	assert.Contains(t, out, "   http_reqs....")
}

func TestRender_Colors(t *testing.T) {
	out := RenderString(sampleReport(), DefaultOptions())
	assert.Contains(t, out, colorRed+"Result: FAILED"+colorReset)
	assert.Contains(t, out, colorGreen)
}

func TestRender_Passed(t *testing.T) {
	report := sampleReport()
	report.Passed = true
	out := RenderString(report, Options{})
	assert.Contains(t, out, "Result: PASSED")
}

func TestRender_Deterministic(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, RenderString(sampleReport(), opts), RenderString(sampleReport(), opts))
}

func TestRender_EmptyReport(t *testing.T) {
	out := RenderString(&types.SummaryReport{Passed: true}, Options{})
	assert.Contains(t, out, "Load Test Summary")
	assert.NotContains(t, out, "HTTP Metrics")
	assert.NotContains(t, out, "Custom Metrics")
}

func TestTrendStatsSelection(t *testing.T) {
	opts := Options{TrendStats: []string{"min", "p(99)"}}
	out := RenderString(sampleReport(), opts)
	assert.Contains(t, out, "min=500.00µs p(99)=80.00ms")
	assert.NotContains(t, out, "avg=12.35ms")
	assert.Contains(t, out, "POST /api/logs: count=1200 failed=60\n")
}

func TestRequestsFollowTrendStats(t *testing.T) {
	out := RenderString(sampleReport(), DefaultOptions())
	assert.Contains(t, out, "POST /api/logs: count=1200 failed=60 avg=12.35ms med=10.00ms max=1.50s p(95)=25.50ms\n")

	out = RenderString(sampleReport(), Options{TrendStats: []string{"p(95)", "avg"}})
	assert.Contains(t, out, "POST /api/logs: count=1200 failed=60 p(95)=25.50ms avg=12.35ms\n")
}

func TestRender_ThresholdError(t *testing.T) {
	report := &types.SummaryReport{Thresholds: []types.ThresholdResult{
		{Metric: "errors", Expression: "p(95)<1", Error: "stat not valid for rate"},
	}}
	out := RenderString(report, Options{})
	assert.Contains(t, out, "✗ errors p(95)<1 (error: stat not valid for rate)")
}

func TestThresholdVerdicts(t *testing.T) {
	v := thresholdVerdicts([]types.ThresholdResult{
		{Metric: "a", Passed: true},
		{Metric: "a", Passed: false},
		{Metric: "b", Passed: true},
	})
	assert.False(t, v["a"])
	assert.True(t, v["b"])
}

func TestFormatMs(t *testing.T) {
	assert.Equal(t, "250.00µs", formatMs(0.25))
	assert.Equal(t, "12.50ms", formatMs(12.5))
	assert.Equal(t, "1.50s", formatMs(1500))
	assert.Equal(t, "2m0s", formatMs(120_000))
}
