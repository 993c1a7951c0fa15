// Package engine contains the internal metrics engine responsible for
// aggregating metrics during the test and evaluating thresholds against them.
package engine

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"yqhp/loadgen/pkg/metrics"
	"yqhp/loadgen/pkg/types"
)

// MetricsEngine aggregates metric samples and evaluates thresholds.
type MetricsEngine struct {
	registry *metrics.Registry

	thresholds              []*ThresholdExpr
	breachedThresholdsCount uint32

	MetricsLock     sync.Mutex
	ObservedMetrics map[string]*metrics.Metric

	// 按 check 名称拆分的通过率
	checks map[string]*metrics.RateSink

	// Time-series snapshots for progress reporting
	timeSeriesMu   sync.Mutex
	timeSeriesData []*TimeSeriesPoint
	snapshotStop   chan struct{}
	snapshotDone   chan struct{}

	startTime time.Time
}

// TimeSeriesPoint is one periodic snapshot of the running test.
type TimeSeriesPoint struct {
	ElapsedMs  int64   `json:"elapsed_ms"`
	ActiveVUs  int64   `json:"active_vus"`
	Iterations int64   `json:"iterations"`
	HTTPReqs   int64   `json:"http_reqs"`
	QPS        float64 `json:"qps"`
	ErrorRate  float64 `json:"error_rate"`
	P95Ms      float64 `json:"p95_ms"`
}

// NewMetricsEngine creates a new MetricsEngine with the given registry.
func NewMetricsEngine(registry *metrics.Registry) *MetricsEngine {
	return &MetricsEngine{
		registry:        registry,
		ObservedMetrics: make(map[string]*metrics.Metric),
		checks:          make(map[string]*metrics.RateSink),
		startTime:       time.Now(),
	}
}

// Registry returns the registry the engine reads from.
func (me *MetricsEngine) Registry() *metrics.Registry {
	return me.registry
}

// CreateIngester returns an OutputIngester (implements output.Output)
// that feeds metric samples into this engine.
func (me *MetricsEngine) CreateIngester() *OutputIngester {
	return &OutputIngester{
		metricsEngine: me,
	}
}

// MarkObserved marks a metric as observed so it shows in the final report.
// Callers must hold MetricsLock.
func (me *MetricsEngine) MarkObserved(m *metrics.Metric) {
	if _, exists := me.ObservedMetrics[m.Name]; !exists {
		me.ObservedMetrics[m.Name] = m
	}
}

// addCheckSample records a checks sample under its check name.
// Callers must hold MetricsLock.
func (me *MetricsEngine) addCheckSample(sample metrics.Sample) {
	name := sample.Tags["check"]
	if name == "" {
		return
	}
	sink, ok := me.checks[name]
	if !ok {
		sink = &metrics.RateSink{}
		me.checks[name] = sink
	}
	sink.Add(sample)
}

// InitThresholds parses and validates the thresholds against the registry.
// Every threshold metric is reported in the summary even when it never
// receives a sample.
func (me *MetricsEngine) InitThresholds(thresholds []types.Threshold) error {
	exprs, err := ValidateThresholds(me.registry, thresholds)
	if err != nil {
		return err
	}

	me.MetricsLock.Lock()
	defer me.MetricsLock.Unlock()

	me.thresholds = exprs
	for _, expr := range exprs {
		me.MarkObserved(me.registry.Get(expr.Metric))
	}
	return nil
}

// EvaluateThresholds evaluates every threshold once against the current
// aggregates. Results keep configuration order; passed is the AND of all.
func (me *MetricsEngine) EvaluateThresholds(duration time.Duration) (results []types.ThresholdResult, passed bool) {
	me.MetricsLock.Lock()
	defer me.MetricsLock.Unlock()

	results, passed = Evaluate(me.registry, me.thresholds, duration.Seconds())

	var breached uint32
	for _, r := range results {
		if !r.Passed {
			breached++
		}
	}
	atomic.StoreUint32(&me.breachedThresholdsCount, breached)
	return results, passed
}

// GetBreachedThresholdsCount returns the number of breached thresholds
// from the last evaluation.
func (me *MetricsEngine) GetBreachedThresholdsCount() uint32 {
	return atomic.LoadUint32(&me.breachedThresholdsCount)
}

// Snapshot returns the aggregates of all observed metrics and checks.
// trendStats selects the statistics reported for trend metrics.
func (me *MetricsEngine) Snapshot(duration time.Duration, trendStats []string) *Snapshot {
	me.MetricsLock.Lock()
	defer me.MetricsLock.Unlock()

	if len(trendStats) == 0 {
		trendStats = metrics.DefaultTrendStats
	}
	seconds := duration.Seconds()

	snap := &Snapshot{
		Duration: duration,
		Metrics:  make([]MetricSnapshot, 0, len(me.ObservedMetrics)),
		Checks:   make([]CheckSnapshot, 0, len(me.checks)),
	}

	for _, m := range me.ObservedMetrics {
		ms := MetricSnapshot{
			Name:     m.Name,
			Type:     m.Type,
			Contains: m.Contains,
			Values:   m.Sink.Format(seconds),
		}
		if ts, ok := m.Sink.(*metrics.TrendSink); ok {
			values := map[string]float64{"count": ms.Values["count"]}
			for _, stat := range trendStats {
				if v, err := ts.Stat(stat); err == nil {
					values[stat] = v
				}
			}
			ms.Values = values
		}
		snap.Metrics = append(snap.Metrics, ms)
	}
	sort.Slice(snap.Metrics, func(i, j int) bool {
		return snap.Metrics[i].Name < snap.Metrics[j].Name
	})

	for name, sink := range me.checks {
		stats := sink.Format(0)
		snap.Checks = append(snap.Checks, CheckSnapshot{
			Name:   name,
			Passes: int64(stats["passes"]),
			Fails:  int64(stats["fails"]),
		})
	}
	sort.Slice(snap.Checks, func(i, j int) bool {
		return snap.Checks[i].Name < snap.Checks[j].Name
	})

	return snap
}

// Snapshot is a point-in-time copy of the aggregated metrics.
type Snapshot struct {
	Duration time.Duration
	Metrics  []MetricSnapshot
	Checks   []CheckSnapshot
}

// MetricSnapshot holds the statistics of one metric.
type MetricSnapshot struct {
	Name     string
	Type     metrics.MetricType
	Contains metrics.ValueType
	Values   map[string]float64
}

// CheckSnapshot holds pass/fail counts of one named check.
type CheckSnapshot struct {
	Name   string
	Passes int64
	Fails  int64
}

// Metric returns the named metric snapshot, or nil.
func (s *Snapshot) Metric(name string) *MetricSnapshot {
	for i := range s.Metrics {
		if s.Metrics[i].Name == name {
			return &s.Metrics[i]
		}
	}
	return nil
}

// StartTimeSeriesCollection starts periodic snapshots of aggregated metrics.
// onPoint, when non-nil, is called with every new point.
func (me *MetricsEngine) StartTimeSeriesCollection(
	interval time.Duration,
	getVUs func() int64,
	onPoint func(*TimeSeriesPoint),
) {
	me.startTime = time.Now()
	me.snapshotStop = make(chan struct{})
	me.snapshotDone = make(chan struct{})

	var lastReqs int64

	go func() {
		defer close(me.snapshotDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				now := time.Now()

				me.MetricsLock.Lock()
				point := &TimeSeriesPoint{
					ElapsedMs: now.Sub(me.startTime).Milliseconds(),
					ActiveVUs: getVUs(),
				}
				if m := me.ObservedMetrics[metrics.IterationsName]; m != nil {
					point.Iterations = int64(m.Sink.Format(0)["count"])
				}
				if m := me.ObservedMetrics[metrics.HTTPReqsName]; m != nil {
					point.HTTPReqs = int64(m.Sink.Format(0)["count"])
				}
				if m := me.ObservedMetrics[metrics.HTTPReqFailedName]; m != nil {
					point.ErrorRate = m.Sink.Format(0)["rate"]
				}
				if m := me.ObservedMetrics[metrics.HTTPReqDurationName]; m != nil {
					if ts, ok := m.Sink.(*metrics.TrendSink); ok {
						point.P95Ms = ts.Percentile(95)
					}
				}
				me.MetricsLock.Unlock()

				point.QPS = float64(point.HTTPReqs-lastReqs) / interval.Seconds()
				lastReqs = point.HTTPReqs

				me.timeSeriesMu.Lock()
				me.timeSeriesData = append(me.timeSeriesData, point)
				me.timeSeriesMu.Unlock()

				if onPoint != nil {
					onPoint(point)
				}

			case <-me.snapshotStop:
				return
			}
		}
	}()
}

// StopTimeSeriesCollection stops the periodic snapshots and waits for the
// collector to exit.
func (me *MetricsEngine) StopTimeSeriesCollection() {
	if me.snapshotStop == nil {
		return
	}
	close(me.snapshotStop)
	<-me.snapshotDone
	me.snapshotStop = nil
}

// GetTimeSeriesData returns a copy of all time-series snapshots.
func (me *MetricsEngine) GetTimeSeriesData() []*TimeSeriesPoint {
	me.timeSeriesMu.Lock()
	defer me.timeSeriesMu.Unlock()
	result := make([]*TimeSeriesPoint, len(me.timeSeriesData))
	copy(result, me.timeSeriesData)
	return result
}

// GetLatestSnapshot returns the most recent time-series snapshot.
func (me *MetricsEngine) GetLatestSnapshot() *TimeSeriesPoint {
	me.timeSeriesMu.Lock()
	defer me.timeSeriesMu.Unlock()
	if len(me.timeSeriesData) == 0 {
		return nil
	}
	return me.timeSeriesData[len(me.timeSeriesData)-1]
}
