package prometheus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/loadgen/pkg/types"
)

func testReport() *types.SummaryReport {
	return &types.SummaryReport{
		RunID:      "run-7",
		Name:       "logs",
		Passed:     true,
		DurationMs: 2500,
		PeakVUs:    4,
		Iterations: 120,
		Metrics: []types.MetricSummary{
			{Name: "http_req_duration", Type: "trend", Values: map[string]float64{"avg": 12.5, "p(95)": 40}},
			{Name: "errors", Type: "rate", Values: map[string]float64{"rate": 0.05}},
		},
		Thresholds: []types.ThresholdResult{
			{Metric: "errors", Expression: "rate<0.1", Passed: true, ActualValue: 0.05},
		},
		Checks: []types.CheckSummary{
			{Name: "status is 200", Passes: 114, Fails: 6, Rate: 0.95},
		},
	}
}

func TestCollect(t *testing.T) {
	registry, err := Collect(testReport())
	require.NoError(t, err)

	families, err := registry.Gather()
	require.NoError(t, err)
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		byName[f.GetName()] = f
	}

	require.Contains(t, byName, "loadgen_run_passed")
	assert.Equal(t, 1.0, byName["loadgen_run_passed"].GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, 2.5, byName["loadgen_run_duration_seconds"].GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, 4.0, byName["loadgen_peak_vus"].GetMetric()[0].GetGauge().GetValue())
	assert.Len(t, byName["loadgen_metric_value"].GetMetric(), 3)
	assert.Len(t, byName["loadgen_threshold_passed"].GetMetric(), 1)
	assert.Equal(t, 0.95, byName["loadgen_check_pass_rate"].GetMetric()[0].GetGauge().GetValue())

	count, err := testutil.GatherAndCount(registry, "loadgen_metric_value")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestReport_PushesToGateway(t *testing.T) {
	var (
		mu       sync.Mutex
		method   string
		path     string
		families []*dto.MetricFamily
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		method = r.Method
		path = r.URL.Path
		dec := expfmt.NewDecoder(r.Body, expfmt.ResponseFormat(r.Header))
		for {
			var mf dto.MetricFamily
			if err := dec.Decode(&mf); err != nil {
				break
			}
			families = append(families, &mf)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New(&Config{URL: srv.URL, Job: "perf"})
	assert.Equal(t, "prometheus", r.Name())
	require.NoError(t, r.Report(context.Background(), testReport()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/perf/run_id/run-7", path)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "loadgen_run_passed")
	assert.Contains(t, names, "loadgen_threshold_passed")
}

func TestReport_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New(&Config{URL: srv.URL}).Report(context.Background(), testReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "push to pushgateway")
}

func TestReport_RequiresURL(t *testing.T) {
	err := New(&Config{}).Report(context.Background(), testReport())
	assert.Error(t, err)
}
