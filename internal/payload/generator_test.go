package payload

import (
	"math/rand/v2"
	"regexp"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var (
	traceIDPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)
	spanIDPattern  = regexp.MustCompile(`^[0-9a-f]{16}$`)
)

func TestIDs_FormatProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		g := NewGenerator(rapid.Uint64().Draw(t, "seed"))
		if id := g.TraceID(); !traceIDPattern.MatchString(id) {
			t.Fatalf("bad trace id %q", id)
		}
		if id := g.SpanID(); !spanIDPattern.MatchString(id) {
			t.Fatalf("bad span id %q", id)
		}
	})
}

func TestBatch_Shape(t *testing.T) {
	g := NewGenerator(42)
	now := time.Date(2024, 5, 6, 7, 8, 9, 123_000_000, time.FixedZone("X", 3600))

	batch := g.Batch(now)
	require.Equal(t, BatchSize, batch.Len())

	first := batch.Logs[0]
	assert.Regexp(t, traceIDPattern, first.TraceID)
	assert.Regexp(t, spanIDPattern, first.SpanID)

	assert.Equal(t, "2024-05-06T06:08:09.123Z", batch.Logs[0].Timestamp)
	assert.Equal(t, "2024-05-06T06:08:09.223Z", batch.Logs[1].Timestamp)
	assert.Equal(t, "2024-05-06T06:08:09.323Z", batch.Logs[2].Timestamp)

	for _, rec := range batch.Logs {
		assert.Equal(t, first.TraceID, rec.TraceID)
		assert.Equal(t, first.SpanID, rec.SpanID)
		assert.Equal(t, DefaultService, rec.Service)
	}

	assert.Equal(t, "info", batch.Logs[0].Level)
	assert.Equal(t, "debug", batch.Logs[1].Level)
	assert.Contains(t, []string{"info", "error"}, batch.Logs[2].Level)
	assert.Equal(t, 3600, batch.Logs[2].Attributes["ttl_seconds"])
	assert.Equal(t, "/api/auth/login", batch.Logs[0].Attributes["endpoint"])
}

func TestBatch_DeterministicForSeed(t *testing.T) {
	now := time.Now()
	a := NewGenerator(7).Batch(now)
	b := NewGenerator(7).Batch(now)
	assert.Equal(t, a, b)

	c := NewGenerator(8).Batch(now)
	assert.NotEqual(t, a.Logs[0].TraceID, c.Logs[0].TraceID)
}

func TestBatch_ErrorProbability(t *testing.T) {
	g := NewGenerator(1)
	now := time.Now()

	const n = 10000
	errorsSeen := 0
	for i := 0; i < n; i++ {
		last := g.Batch(now).Logs[2]
		if last.Level == "error" {
			errorsSeen++
			assert.Equal(t, "Failed to authenticate user", last.Message)
		} else {
			assert.Equal(t, "Session created", last.Message)
		}
	}

	ratio := float64(errorsSeen) / n
	assert.InDelta(t, DefaultErrorProbability, ratio, 0.02)
}

func TestBatch_ErrorProbabilityBounds(t *testing.T) {
	never := New(rand.New(rand.NewPCG(1, 2)))
	never.ErrorProbability = 0
	always := New(rand.New(rand.NewPCG(1, 2)))
	always.ErrorProbability = 1

	for i := 0; i < 100; i++ {
		assert.Equal(t, "info", never.Batch(time.Now()).Logs[2].Level)
		assert.Equal(t, "error", always.Batch(time.Now()).Logs[2].Level)
	}
}

func TestBatch_JSON(t *testing.T) {
	data, err := sonic.Marshal(NewGenerator(3).Batch(time.Now()))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, sonic.Unmarshal(data, &decoded))
	logs, ok := decoded["logs"].([]any)
	require.True(t, ok)
	assert.Len(t, logs, 3)

	rec := logs[0].(map[string]any)
	for _, key := range []string{"timestamp", "level", "message", "service", "trace_id", "span_id", "attributes"} {
		assert.Contains(t, rec, key)
	}
}
