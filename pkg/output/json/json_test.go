package json

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/loadgen/pkg/metrics"
	"yqhp/loadgen/pkg/output"
)

func readLines(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var lines []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var entry map[string]any
		require.NoError(t, sonic.Unmarshal(scanner.Bytes(), &entry))
		lines = append(lines, entry)
	}
	return lines
}

func TestOutput_WritesMetricThenPoints(t *testing.T) {
	registry := metrics.NewRegistry()
	dur := registry.MustNewMetric("http_req_duration", metrics.Trend, metrics.Time)

	var buf bytes.Buffer
	out := NewWithWriter(&buf)
	require.NoError(t, out.Start())

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	out.AddMetricSamples([]metrics.SampleContainer{
		metrics.Samples{
			{Metric: dur, Time: now, Value: 12.5, Tags: map[string]string{"method": "POST"}},
			{Metric: dur, Time: now, Value: 20},
		},
	})
	out.SetRunStatus(output.RunStatus{Status: "completed"})
	require.NoError(t, out.Stop())

	lines := readLines(t, buf.Bytes())
	require.Len(t, lines, 3)
	assert.Equal(t, "Metric", lines[0]["type"])
	assert.Equal(t, "http_req_duration", lines[0]["metric"])
	assert.Equal(t, "Point", lines[1]["type"])

	data := lines[1]["data"].(map[string]any)
	assert.Equal(t, 12.5, data["value"])
	assert.Equal(t, "POST", data["tags"].(map[string]any)["method"])
}

func TestNew_RequiresFileName(t *testing.T) {
	_, err := New(output.Params{})
	assert.Error(t, err)
}

func TestOutput_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.ndjson")
	out, err := output.Create("json", output.Params{ConfigArgument: path})
	require.NoError(t, err)
	assert.Contains(t, out.Description(), path)

	registry := metrics.NewRegistry()
	iters := registry.MustNewMetric("iterations", metrics.Counter, metrics.Default)

	require.NoError(t, out.Start())
	out.AddMetricSamples([]metrics.SampleContainer{metrics.Samples{{Metric: iters, Time: time.Now(), Value: 1}}})
	require.NoError(t, out.Stop())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, readLines(t, data), 2)
}
