package executor

import (
	"net"
	"testing"
	"time"

	"github.com/ohler55/ojg/jp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"yqhp/loadgen/pkg/types"
)

// startServer serves handler on a loopback port and returns its base URL.
func startServer(t *testing.T, handler fasthttp.RequestHandler) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &fasthttp.Server{Handler: handler}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	return "http://" + ln.Addr().String()
}

func testHandler(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case "/json":
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"status":"healthy","items":[1,2]}`)
	case "/broken":
		ctx.SetBodyString(`{"status":`)
	case "/fail":
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		ctx.SetBodyString(`{"error":"overloaded"}`)
	case "/metrics":
		ctx.SetBodyString("# TYPE up gauge\nup 1\n")
	case "/not-metrics":
		ctx.SetBodyString("this is { not exposition\n")
	case "/slow":
		time.Sleep(300 * time.Millisecond)
		ctx.SetBodyString(`{}`)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

func TestClient_Outcomes(t *testing.T) {
	base := startServer(t, testHandler)
	client := NewClient(ClientConfig{Timeout: 2 * time.Second})
	defer client.Close()

	tests := []struct {
		name    string
		path    string
		expect  BodyKind
		outcome types.Outcome
		failed  bool
	}{
		{"json ok", "/json", BodyJSON, types.OutcomeOK, false},
		{"malformed json", "/broken", BodyJSON, types.OutcomeMalformedBody, false},
		{"bad status", "/fail", BodyJSON, types.OutcomeBadStatus, true},
		{"not found", "/missing", BodyAny, types.OutcomeBadStatus, true},
		{"exposition ok", "/metrics", BodyPrometheus, types.OutcomeOK, false},
		{"invalid exposition", "/not-metrics", BodyPrometheus, types.OutcomeMalformedBody, false},
		{"body ignored", "/broken", BodyAny, types.OutcomeOK, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := client.Do(Request{Name: tt.name, URL: base + tt.path, Expect: tt.expect})
			assert.Equal(t, tt.outcome, resp.Outcome, resp.Error)
			assert.Equal(t, tt.failed, resp.RequestFailed())
			assert.Equal(t, tt.outcome == types.OutcomeOK, resp.OK())
			assert.Greater(t, resp.Duration, time.Duration(0))
			assert.Greater(t, resp.BytesSent, 0)
			assert.Greater(t, resp.BytesReceived, 0)
		})
	}
}

func TestClient_JSONAccess(t *testing.T) {
	base := startServer(t, testHandler)
	client := NewClient(ClientConfig{})

	resp := client.Do(Request{URL: base + "/json", Expect: BodyJSON})
	require.True(t, resp.OK())

	assert.True(t, resp.Has(jp.MustParseString("$.status")))
	assert.True(t, resp.IsString(jp.MustParseString("$.status")))
	assert.True(t, resp.IsArray(jp.MustParseString("$.items")))
	assert.False(t, resp.IsArray(jp.MustParseString("$.status")))
	assert.False(t, resp.Has(jp.MustParseString("$.missing")))

	failed := client.Do(Request{URL: base + "/fail", Expect: BodyJSON})
	assert.True(t, failed.Has(jp.MustParseString("$.error")), "error bodies are still decoded")
}

func TestClient_SendsBodyWithJSONContentType(t *testing.T) {
	type received struct{ body, contentType string }
	got := make(chan received, 1)
	base := startServer(t, func(ctx *fasthttp.RequestCtx) {
		got <- received{string(ctx.PostBody()), string(ctx.Request.Header.ContentType())}
		ctx.SetBodyString(`{"accepted":1}`)
	})
	client := NewClient(ClientConfig{})

	resp := client.Do(Request{Method: "POST", URL: base + "/api/logs", Body: []byte(`{"logs":[]}`), Expect: BodyJSON})
	require.True(t, resp.OK(), resp.Error)
	r := <-got
	assert.Equal(t, `{"logs":[]}`, r.body)
	assert.Equal(t, "application/json", r.contentType)
	assert.Equal(t, "POST", resp.Method)
	assert.Equal(t, 200, resp.Status)
}

func TestClient_TransportError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	client := NewClient(ClientConfig{Timeout: time.Second})
	resp := client.Do(Request{URL: "http://" + addr + "/health", Expect: BodyJSON})
	assert.Equal(t, types.OutcomeTransportError, resp.Outcome)
	assert.True(t, resp.RequestFailed())
	assert.NotEmpty(t, resp.Error)
	assert.Nil(t, resp.Get(jp.MustParseString("$.status")))
}

func TestClient_Timeout(t *testing.T) {
	base := startServer(t, testHandler)
	client := NewClient(ClientConfig{Timeout: 50 * time.Millisecond})

	resp := client.Do(Request{URL: base + "/slow", Expect: BodyJSON})
	assert.Equal(t, types.OutcomeTransportError, resp.Outcome)
	assert.Contains(t, resp.Error, "timed out")
	assert.Less(t, resp.Duration, 300*time.Millisecond)
}

func TestNewClient_ConfigIsPerInstance(t *testing.T) {
	base := startServer(t, testHandler)
	short := NewClient(ClientConfig{Timeout: 50 * time.Millisecond})
	long := NewClient(ClientConfig{Timeout: 2 * time.Second})

	assert.Equal(t, types.OutcomeTransportError, short.Do(Request{URL: base + "/slow", Expect: BodyJSON}).Outcome)
	assert.Equal(t, types.OutcomeOK, long.Do(Request{URL: base + "/slow", Expect: BodyJSON}).Outcome)
}

func TestSuccessStatus(t *testing.T) {
	assert.True(t, SuccessStatus(200))
	assert.True(t, SuccessStatus(204))
	assert.True(t, SuccessStatus(302))
	assert.False(t, SuccessStatus(404))
	assert.False(t, SuccessStatus(500))
	assert.False(t, SuccessStatus(0))
}
