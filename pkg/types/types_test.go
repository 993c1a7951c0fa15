package types

import (
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageJSON(t *testing.T) {
	data, err := sonic.Marshal(Stage{Duration: 90 * time.Second, Target: 10, Name: "ramp"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"duration":"1m30s","target":10,"name":"ramp"}`, string(data))

	var s Stage
	require.NoError(t, sonic.Unmarshal([]byte(`{"duration":"250ms","target":3}`), &s))
	assert.Equal(t, Stage{Duration: 250 * time.Millisecond, Target: 3}, s)

	assert.Error(t, sonic.Unmarshal([]byte(`{"duration":"soon","target":3}`), &s))
}

func TestStageTotals(t *testing.T) {
	stages := []Stage{
		{Duration: 0, Target: 5},
		{Duration: 30 * time.Second, Target: 20},
		{Duration: time.Minute, Target: 0},
	}
	assert.Equal(t, 90*time.Second, TotalDuration(stages))
	assert.Equal(t, 20, MaxTarget(stages))
	assert.Zero(t, TotalDuration(nil))
	assert.Zero(t, MaxTarget(nil))
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		outcome       Outcome
		failed        bool
		requestFailed bool
	}{
		{OutcomeOK, false, false},
		{OutcomeTransportError, true, true},
		{OutcomeBadStatus, true, true},
		{OutcomeMalformedBody, true, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			assert.Equal(t, tt.failed, tt.outcome.Failed())
			assert.Equal(t, tt.requestFailed, tt.outcome.RequestFailed())
		})
	}
}

func TestIterationResult(t *testing.T) {
	var r IterationResult
	r.AddRequest(RequestResult{Name: "POST /api/logs", Outcome: OutcomeOK})
	assert.True(t, r.Check("status is 200", true))
	assert.False(t, r.Check("body has accepted", false))
	r.Add("logs_ingested", 3)
	r.AddBool("errors", true)
	r.AddBool("errors", false)

	assert.Len(t, r.Requests, 1)
	assert.Equal(t, []CheckResult{{"status is 200", true}, {"body has accepted", false}}, r.Checks)
	assert.Equal(t, []MetricValue{{"logs_ingested", 3}, {"errors", 1}, {"errors", 0}}, r.Values)
}

func TestSummaryReport_Metric(t *testing.T) {
	r := &SummaryReport{Metrics: []MetricSummary{{Name: "http_reqs"}, {Name: "errors"}}}
	require.NotNil(t, r.Metric("errors"))
	assert.Equal(t, "errors", r.Metric("errors").Name)
	assert.Nil(t, r.Metric("missing"))
}
