// Package prometheus pushes the final aggregates of a run to a Prometheus Pushgateway.
package prometheus

import (
	"context"
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"yqhp/loadgen/pkg/logger"
	"yqhp/loadgen/pkg/types"
)

// Config holds configuration for the Pushgateway reporter.
type Config struct {
	// URL is the Pushgateway base URL.
	URL string `yaml:"url"`
	// Job is the job name used in the grouping key.
	Job string `yaml:"job"`
}

// DefaultConfig returns the default Pushgateway reporter configuration.
func DefaultConfig() *Config {
	return &Config{
		URL: "http://localhost:9091",
		Job: "loadgen",
	}
}

// Reporter implements the Pushgateway reporter.
type Reporter struct {
	config *Config
}

// New creates a new Pushgateway reporter.
func New(config *Config) *Reporter {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Job == "" {
		config.Job = "loadgen"
	}
	return &Reporter{config: config}
}

// Name returns the reporter name.
func (r *Reporter) Name() string {
	return "prometheus"
}

// Report replaces the metric group of this run on the Pushgateway. The
// grouping key is job plus run_id.
func (r *Reporter) Report(ctx context.Context, report *types.SummaryReport) error {
	if r.config.URL == "" {
		return fmt.Errorf("pushgateway URL is required")
	}

	registry, err := Collect(report)
	if err != nil {
		return err
	}

	pusher := push.New(r.config.URL, r.config.Job).Gatherer(registry)
	if report.RunID != "" {
		pusher = pusher.Grouping("run_id", report.RunID)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push to pushgateway: %w", err)
	}
	logger.Info("summary pushed to pushgateway", "url", r.config.URL, "job", r.config.Job)
	return nil
}

// Collect 把汇总报告转换为一个独立的 Prometheus registry
func Collect(report *types.SummaryReport) (*prometheus.Registry, error) {
	registry := prometheus.NewRegistry()

	passed := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "loadgen_run_passed",
		Help: "1 if every threshold passed, 0 otherwise.",
	})
	duration := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "loadgen_run_duration_seconds",
		Help: "Wall-clock duration of the run.",
	})
	peakVUs := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "loadgen_peak_vus",
		Help: "Highest number of concurrently running virtual users.",
	})
	iterations := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "loadgen_iterations",
		Help: "Completed iterations.",
	})
	metricValue := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "loadgen_metric_value",
		Help: "Final aggregate of a load test metric.",
	}, []string{"metric", "type", "stat"})
	thresholdPassed := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "loadgen_threshold_passed",
		Help: "1 if the threshold passed, 0 otherwise.",
	}, []string{"metric", "expression"})
	checkRate := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "loadgen_check_pass_rate",
		Help: "Share of passed evaluations of a named check.",
	}, []string{"check"})

	for _, c := range []prometheus.Collector{passed, duration, peakVUs, iterations, metricValue, thresholdPassed, checkRate} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}

	passed.Set(boolValue(report.Passed))
	duration.Set(float64(report.DurationMs) / 1000)
	peakVUs.Set(float64(report.PeakVUs))
	iterations.Set(float64(report.Iterations))

	for _, m := range report.Metrics {
		stats := make([]string, 0, len(m.Values))
		for stat := range m.Values {
			stats = append(stats, stat)
		}
		sort.Strings(stats)
		for _, stat := range stats {
			metricValue.WithLabelValues(m.Name, m.Type, stat).Set(m.Values[stat])
		}
	}
	for _, th := range report.Thresholds {
		thresholdPassed.WithLabelValues(th.Metric, th.Expression).Set(boolValue(th.Passed))
	}
	for _, c := range report.Checks {
		checkRate.WithLabelValues(c.Name).Set(c.Rate)
	}

	return registry, nil
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
