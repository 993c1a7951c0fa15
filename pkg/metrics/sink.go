package metrics

import (
	"fmt"
	"math"
	"strconv"
	"sync"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
)

// Sink 定义指标聚合器接口。
// 所有实现都是增量的、与样本顺序无关的，并且并发安全。
type Sink interface {
	// Add 添加一个样本值
	Add(sample Sample)
	// Format 返回格式化的统计结果，duration 为运行时长（秒）
	Format(duration float64) map[string]float64
	// IsEmpty 检查是否为空
	IsEmpty() bool
}

// NewSink 根据指标类型创建对应的 Sink
func NewSink(metricType MetricType) Sink {
	switch metricType {
	case Counter:
		return &CounterSink{}
	case Gauge:
		return &GaugeSink{}
	case Rate:
		return &RateSink{}
	case Trend:
		return &TrendSink{}
	default:
		return &CounterSink{}
	}
}

// CounterSink 计数器聚合器
type CounterSink struct {
	Value   float64
	Samples int64
	mu      sync.Mutex
}

// Add 添加样本
func (c *CounterSink) Add(sample Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Value += sample.Value
	c.Samples++
}

// Format 返回统计结果
func (c *CounterSink) Format(duration float64) map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := map[string]float64{
		"count": c.Value,
		"rate":  0,
	}
	if duration > 0 {
		result["rate"] = c.Value / duration
	}
	return result
}

// IsEmpty 检查是否为空
func (c *CounterSink) IsEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Samples == 0
}

// GaugeSink 仪表盘聚合器
type GaugeSink struct {
	Value  float64
	Min    float64
	Max    float64
	Count  int64
	minSet bool
	mu     sync.Mutex
}

// Add 添加样本
func (g *GaugeSink) Add(sample Sample) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Value = sample.Value
	g.Count++
	if !g.minSet || sample.Value < g.Min {
		g.Min = sample.Value
		g.minSet = true
	}
	if sample.Value > g.Max {
		g.Max = sample.Value
	}
}

// Format 返回统计结果
func (g *GaugeSink) Format(_ float64) map[string]float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return map[string]float64{
		"value": g.Value,
		"min":   g.Min,
		"max":   g.Max,
	}
}

// IsEmpty 检查是否为空
func (g *GaugeSink) IsEmpty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Count == 0
}

// RateSink 比率聚合器
type RateSink struct {
	Trues int64
	Total int64
	mu    sync.Mutex
}

// Add 添加样本（value != 0 表示 true）
func (r *RateSink) Add(sample Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Total++
	if sample.Value != 0 {
		r.Trues++
	}
}

// Format 返回统计结果
func (r *RateSink) Format(_ float64) map[string]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := map[string]float64{
		"passes": float64(r.Trues),
		"fails":  float64(r.Total - r.Trues),
		"rate":   0,
	}
	if r.Total > 0 {
		result["rate"] = float64(r.Trues) / float64(r.Total)
	}
	return result
}

// IsEmpty 检查是否为空
func (r *RateSink) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Total == 0
}

// Trend values are stored in the histogram as integers scaled by
// trendScale, so a Time trend (milliseconds) has microsecond resolution.
// With trendSigFigs significant digits the relative error of any reported
// percentile is at most 10^-3 before clamping to [Min, Max].
const (
	trendScale   = 1000
	trendLowest  = 1
	trendHighest = 3_600_000_000 // one hour in microseconds
	trendSigFigs = 3
)

// DefaultTrendStats is the default set of statistics shown for a trend.
var DefaultTrendStats = []string{"avg", "min", "med", "max", "p(90)", "p(95)", "p(99)"}

// TrendSink 趋势聚合器。min/max/avg 精确计算，百分位数由 HDR 直方图估算，
// 内存占用与样本数量无关。
type TrendSink struct {
	Count  int64
	Sum    float64
	Min    float64
	Max    float64
	minSet bool
	hist   *hdrhistogram.Histogram
	mu     sync.Mutex
}

// Add 添加样本
func (t *TrendSink) Add(sample Sample) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.hist == nil {
		t.hist = hdrhistogram.New(trendLowest, trendHighest, trendSigFigs)
	}

	v := sample.Value
	t.Count++
	t.Sum += v
	if !t.minSet || v < t.Min {
		t.Min = v
		t.minSet = true
	}
	if v > t.Max {
		t.Max = v
	}

	scaled := int64(math.Round(v * trendScale))
	if scaled < 0 {
		scaled = 0
	}
	if scaled > trendHighest {
		scaled = trendHighest
	}
	// RecordValue only fails for out-of-range values, which were clamped above
	_ = t.hist.RecordValue(scaled)
}

// Format 返回统计结果
func (t *TrendSink) Format(_ float64) map[string]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := map[string]float64{
		"count": float64(t.Count),
		"min":   t.Min,
		"max":   t.Max,
		"avg":   0,
		"med":   0,
		"p(90)": 0,
		"p(95)": 0,
		"p(99)": 0,
	}

	if t.Count > 0 {
		result["avg"] = t.Sum / float64(t.Count)
		result["med"] = t.percentile(50)
		result["p(90)"] = t.percentile(90)
		result["p(95)"] = t.percentile(95)
		result["p(99)"] = t.percentile(99)
	}

	return result
}

// percentile 计算百分位数（需要在持有锁的情况下调用）
func (t *TrendSink) percentile(p float64) float64 {
	if t.Count == 0 || t.hist == nil {
		return 0
	}
	v := float64(t.hist.ValueAtQuantile(p)) / trendScale
	if v < t.Min {
		return t.Min
	}
	if v > t.Max {
		return t.Max
	}
	return v
}

// IsEmpty 检查是否为空
func (t *TrendSink) IsEmpty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Count == 0
}

// Percentile 计算指定百分位数（公开方法，会加锁）
func (t *TrendSink) Percentile(p float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.percentile(p)
}

// Stat returns a single named statistic: count, min, max, avg, med or p(N).
func (t *TrendSink) Stat(name string) (float64, error) {
	if p, ok, err := ParsePercentile(name); ok {
		if err != nil {
			return 0, err
		}
		return t.Percentile(p), nil
	}
	v, ok := t.Format(0)[name]
	if !ok {
		return 0, fmt.Errorf("unknown trend statistic %q", name)
	}
	return v, nil
}

// ParsePercentile parses "p(N)" with 0 <= N <= 100. ok is false when name
// is not of the p(...) form at all.
func ParsePercentile(name string) (p float64, ok bool, err error) {
	if len(name) < 4 || name[:2] != "p(" || name[len(name)-1] != ')' {
		return 0, false, nil
	}
	p, err = strconv.ParseFloat(name[2:len(name)-1], 64)
	if err != nil {
		return 0, true, fmt.Errorf("invalid percentile %q", name)
	}
	if p < 0 || p > 100 {
		return 0, true, fmt.Errorf("percentile %q out of range [0, 100]", name)
	}
	return p, true, nil
}
