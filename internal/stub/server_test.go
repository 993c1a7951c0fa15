package stub

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/loadgen/internal/payload"
)

func doRequest(t *testing.T, s *Server, method, path string, body []byte) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decode(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, sonic.Unmarshal(data, &out))
	return out
}

func batchBody(t *testing.T, seed uint64) []byte {
	t.Helper()
	body, err := sonic.Marshal(payload.NewGenerator(seed).Batch(time.Now()))
	require.NoError(t, err)
	return body
}

func TestHealthAndRoot(t *testing.T) {
	s := NewServer(nil)

	status, body := doRequest(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", decode(t, body)["status"])

	status, body = doRequest(t, s, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "correlation-engine", decode(t, body)["service"])
}

func TestIngestLogs(t *testing.T) {
	s := NewServer(nil)

	status, body := doRequest(t, s, http.MethodPost, "/api/logs", batchBody(t, 1))
	require.Equal(t, http.StatusOK, status)
	doc := decode(t, body)
	assert.Equal(t, "accepted", doc["status"])
	assert.EqualValues(t, payload.BatchSize, doc["accepted"])
}

func TestIngestLogs_BadRequests(t *testing.T) {
	s := NewServer(nil)

	status, _ := doRequest(t, s, http.MethodPost, "/api/logs", []byte(`{"logs":`))
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := doRequest(t, s, http.MethodPost, "/api/logs", []byte(`{"logs":[]}`))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "bad_request", decode(t, body)["error"])
}

func TestIngestLogs_FailEvery(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailEvery = 3
	s := NewServer(cfg)

	var statuses []int
	for i := 0; i < 9; i++ {
		status, _ := doRequest(t, s, http.MethodPost, "/api/logs", batchBody(t, uint64(i)))
		statuses = append(statuses, status)
	}
	assert.Equal(t, []int{200, 200, 500, 200, 200, 500, 200, 200, 500}, statuses)
}

func TestIngestLogs_FailRatio(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailRatio = 1
	s := NewServer(cfg)

	status, body := doRequest(t, s, http.MethodPost, "/api/logs", batchBody(t, 1))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "ingestion_failed", decode(t, body)["error"])
}

func TestCorrelations(t *testing.T) {
	s := NewServer(nil)

	gen := payload.NewGenerator(7)
	gen.ErrorProbability = 1
	withError, err := sonic.Marshal(gen.Batch(time.Now()))
	require.NoError(t, err)

	gen.ErrorProbability = 0
	withoutError, err := sonic.Marshal(gen.Batch(time.Now()))
	require.NoError(t, err)

	for _, b := range [][]byte{withError, withoutError} {
		status, _ := doRequest(t, s, http.MethodPost, "/api/logs", b)
		require.Equal(t, http.StatusOK, status)
	}

	status, body := doRequest(t, s, http.MethodGet, "/api/correlations", nil)
	require.Equal(t, http.StatusOK, status)

	var resp CorrelationsResponse
	require.NoError(t, sonic.Unmarshal(body, &resp))
	require.Len(t, resp.Correlations, 1)
	assert.Equal(t, payload.BatchSize, resp.Correlations[0].LogCount)
	assert.Equal(t, 1, resp.Correlations[0].ErrorCount)
	assert.Len(t, resp.Correlations[0].TraceID, 32)

	status, _ = doRequest(t, s, http.MethodGet, "/api/correlations?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCorrelations_EmptyIsArray(t *testing.T) {
	s := NewServer(nil)
	status, body := doRequest(t, s, http.MethodGet, "/api/correlations", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"correlations":[]`)
}

func TestReviews(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Reviews = 2
	s := NewServer(cfg)

	status, body := doRequest(t, s, http.MethodGet, "/api/seca-reviews", nil)
	require.Equal(t, http.StatusOK, status)
	var list []Review
	require.NoError(t, sonic.Unmarshal(body, &list))
	require.Len(t, list, 2)
	assert.Equal(t, "1", list[0].ID)

	status, body = doRequest(t, s, http.MethodPut, "/api/seca-reviews/2", []byte(`{"summary":"looked fine"}`))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "looked fine", decode(t, body)["summary"])

	_, body = doRequest(t, s, http.MethodGet, "/api/seca-reviews", nil)
	require.NoError(t, sonic.Unmarshal(body, &list))
	assert.Equal(t, "looked fine", list[1].Summary)

	status, _ = doRequest(t, s, http.MethodPut, "/api/seca-reviews/99", []byte(`{"summary":"x"}`))
	assert.Equal(t, http.StatusNotFound, status)

	status, body = doRequest(t, s, http.MethodPut, "/api/seca-reviews/1", []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "error_400", decode(t, body)["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := NewServer(nil)

	status, _ := doRequest(t, s, http.MethodPost, "/api/logs", batchBody(t, 3))
	require.Equal(t, http.StatusOK, status)

	status, body := doRequest(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, status)

	parser := expfmt.NewTextParser(model.UTF8Validation)
	families, err := parser.TextToMetricFamilies(strings.NewReader(string(body)))
	require.NoError(t, err)
	assert.Contains(t, families, "logs_received_total")
	assert.Contains(t, families, "stub_http_requests_total")

	var total float64
	for _, m := range families["logs_received_total"].GetMetric() {
		total += m.GetCounter().GetValue()
	}
	assert.Equal(t, float64(payload.BatchSize), total)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"negative fail every", func(c *Config) { c.FailEvery = -1 }, true},
		{"ratio above one", func(c *Config) { c.FailRatio = 1.5 }, true},
		{"negative latency", func(c *Config) { c.Latency = -time.Second }, true},
		{"negative reviews", func(c *Config) { c.Reviews = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
