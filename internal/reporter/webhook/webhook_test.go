package webhook

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"yqhp/loadgen/pkg/types"
)

func startServer(t *testing.T, handler fasthttp.RequestHandler) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &fasthttp.Server{Handler: handler}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown() })
	return "http://" + ln.Addr().String()
}

func testReport() *types.SummaryReport {
	return &types.SummaryReport{
		RunID:   "run-1",
		Name:    "logs",
		Passed:  false,
		PeakVUs: 4,
		Thresholds: []types.ThresholdResult{
			{Metric: "errors", Expression: "rate<0.1", Passed: false, ActualValue: 0.5},
		},
	}
}

func TestNew_Defaults(t *testing.T) {
	r := New(nil)
	assert.Equal(t, "webhook", r.Name())
	assert.Equal(t, fasthttp.MethodPost, r.config.Method)
	assert.Equal(t, 10*time.Second, r.config.Timeout)

	r = New(&Config{URL: "http://example.com/hook", Method: fasthttp.MethodPut})
	assert.Equal(t, fasthttp.MethodPut, r.config.Method)
}

func TestReport_PostsSummary(t *testing.T) {
	var (
		mu     sync.Mutex
		body   []byte
		method string
		token  string
		ctype  string
	)
	url := startServer(t, func(ctx *fasthttp.RequestCtx) {
		mu.Lock()
		defer mu.Unlock()
		body = append([]byte(nil), ctx.PostBody()...)
		method = string(ctx.Method())
		token = string(ctx.Request.Header.Peek("X-Token"))
		ctype = string(ctx.Request.Header.ContentType())
		ctx.SetStatusCode(fasthttp.StatusAccepted)
	})

	r := New(&Config{URL: url + "/hooks/load", Headers: map[string]string{"X-Token": "abc"}})
	r.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }
	require.NoError(t, r.Report(context.Background(), testReport()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "POST", method)
	assert.Equal(t, "abc", token)
	assert.Equal(t, "application/json", ctype)

	var payload Payload
	require.NoError(t, sonic.Unmarshal(body, &payload))
	assert.Equal(t, "run.failed", payload.Event)
	assert.True(t, payload.Timestamp.Equal(r.now()))
	require.NotNil(t, payload.Report)
	assert.Equal(t, "run-1", payload.Report.RunID)
	assert.Equal(t, 4, payload.Report.PeakVUs)
	require.Len(t, payload.Report.Thresholds, 1)
	assert.Equal(t, "rate<0.1", payload.Report.Thresholds[0].Expression)
}

func TestReport_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	url := startServer(t, func(ctx *fasthttp.RequestCtx) {
		if calls.Add(1) < 3 {
			ctx.SetStatusCode(fasthttp.StatusBadGateway)
			return
		}
		ctx.SetStatusCode(fasthttp.StatusOK)
	})

	r := New(&Config{URL: url, RetryAttempts: 3, RetryDelay: time.Millisecond})
	require.NoError(t, r.Report(context.Background(), testReport()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestReport_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	url := startServer(t, func(ctx *fasthttp.RequestCtx) {
		calls.Add(1)
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		ctx.SetBodyString("bad payload")
	})

	r := New(&Config{URL: url, RetryAttempts: 3, RetryDelay: time.Millisecond})
	err := r.Report(context.Background(), testReport())
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 400, se.StatusCode)
	assert.Equal(t, "bad payload", se.Body)
	assert.Equal(t, int32(1), calls.Load())
}

func TestReport_GivesUp(t *testing.T) {
	r := New(&Config{URL: "http://127.0.0.1:1/hook", RetryAttempts: 1, RetryDelay: time.Millisecond, Timeout: time.Second})
	err := r.Report(context.Background(), testReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestReport_ContextCancelledBetweenRetries(t *testing.T) {
	url := startServer(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := New(&Config{URL: url, RetryAttempts: 5, RetryDelay: time.Hour})
	err := r.Report(ctx, testReport())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReport_RequiresURL(t *testing.T) {
	assert.Error(t, New(nil).Report(context.Background(), testReport()))
}
