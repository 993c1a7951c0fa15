package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleOf(v float64) Sample {
	return Sample{Time: time.Now(), Value: v}
}

func TestRateSink(t *testing.T) {
	sink := &RateSink{}
	assert.True(t, sink.IsEmpty())
	assert.Equal(t, 0.0, sink.Format(0)["rate"])

	// 3 truthy out of 8
	for _, v := range []float64{1, 0, 0, 1, 0, 1, 0, 0} {
		sink.Add(sampleOf(v))
	}

	stats := sink.Format(0)
	assert.False(t, sink.IsEmpty())
	assert.Equal(t, 3.0/8.0, stats["rate"])
	assert.Equal(t, 3.0, stats["passes"])
	assert.Equal(t, 5.0, stats["fails"])
}

func TestCounterSink(t *testing.T) {
	sink := &CounterSink{}
	assert.True(t, sink.IsEmpty())

	sink.Add(sampleOf(3))
	sink.Add(sampleOf(0))
	sink.Add(sampleOf(4.5))

	stats := sink.Format(2)
	assert.False(t, sink.IsEmpty())
	assert.Equal(t, 7.5, stats["count"])
	assert.Equal(t, 3.75, stats["rate"])
}

func TestCounterSink_ZeroValuedSamplesAreNotEmpty(t *testing.T) {
	sink := &CounterSink{}
	sink.Add(sampleOf(0))
	assert.False(t, sink.IsEmpty())
}

func TestGaugeSink(t *testing.T) {
	sink := &GaugeSink{}
	for _, v := range []float64{5, 20, 3, 7} {
		sink.Add(sampleOf(v))
	}
	stats := sink.Format(0)
	assert.Equal(t, 7.0, stats["value"])
	assert.Equal(t, 3.0, stats["min"])
	assert.Equal(t, 20.0, stats["max"])
}

func TestTrendSink_TenToHundred(t *testing.T) {
	sink := &TrendSink{}
	for v := 10; v <= 100; v += 10 {
		sink.Add(sampleOf(float64(v)))
	}

	stats := sink.Format(0)
	assert.Equal(t, 10.0, stats["count"])
	assert.Equal(t, 10.0, stats["min"])
	assert.Equal(t, 100.0, stats["max"])
	assert.Equal(t, 55.0, stats["avg"])
	assert.GreaterOrEqual(t, stats["p(95)"], 90.0)
	assert.LessOrEqual(t, stats["p(95)"], 100.0)
	assert.InDelta(t, 50.0, stats["med"], 0.05)
}

func TestTrendSink_Empty(t *testing.T) {
	sink := &TrendSink{}
	assert.True(t, sink.IsEmpty())
	assert.Equal(t, 0.0, sink.Percentile(95))
	assert.Equal(t, 0.0, sink.Format(0)["avg"])
}

func TestTrendSink_OutOfRangeValuesAreClamped(t *testing.T) {
	sink := &TrendSink{}
	sink.Add(sampleOf(-5))
	sink.Add(sampleOf(1e12))

	assert.Equal(t, -5.0, sink.Format(0)["min"])
	assert.Equal(t, 1e12, sink.Format(0)["max"])
	p := sink.Percentile(99)
	assert.GreaterOrEqual(t, p, -5.0)
	assert.LessOrEqual(t, p, 1e12)
}

func TestTrendSink_Stat(t *testing.T) {
	sink := &TrendSink{}
	for v := 1; v <= 1000; v++ {
		sink.Add(sampleOf(float64(v)))
	}

	p75, err := sink.Stat("p(75)")
	require.NoError(t, err)
	assert.InDelta(t, 750, p75, 1)

	avg, err := sink.Stat("avg")
	require.NoError(t, err)
	assert.Equal(t, 500.5, avg)

	_, err = sink.Stat("p(101)")
	assert.Error(t, err)
	_, err = sink.Stat("mode")
	assert.Error(t, err)
}

func TestParsePercentile(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		ok      bool
		wantErr bool
	}{
		{"p(95)", 95, true, false},
		{"p(99.9)", 99.9, true, false},
		{"p(0)", 0, true, false},
		{"p(abc)", 0, true, true},
		{"p(-1)", 0, true, true},
		{"avg", 0, false, false},
		{"p95", 0, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, ok, err := ParsePercentile(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p)
		})
	}
}

func TestSinks_ConcurrentAdd(t *testing.T) {
	rate := &RateSink{}
	counter := &CounterSink{}
	trend := &TrendSink{}

	const workers = 16
	const perWorker = 1000

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				rate.Add(sampleOf(float64(i % 2)))
				counter.Add(sampleOf(1))
				trend.Add(sampleOf(float64(i)))
			}
		}(w)
	}
	wg.Wait()

	total := float64(workers * perWorker)
	assert.Equal(t, total, rate.Format(0)["passes"]+rate.Format(0)["fails"])
	assert.Equal(t, 0.5, rate.Format(0)["rate"])
	assert.Equal(t, total, counter.Format(0)["count"])
	assert.Equal(t, total, trend.Format(0)["count"])
}

func TestNewSink(t *testing.T) {
	assert.IsType(t, &CounterSink{}, NewSink(Counter))
	assert.IsType(t, &GaugeSink{}, NewSink(Gauge))
	assert.IsType(t, &RateSink{}, NewSink(Rate))
	assert.IsType(t, &TrendSink{}, NewSink(Trend))
}
