// Package console renders a SummaryReport as human-readable text.
package console

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"yqhp/loadgen/pkg/metrics"
	"yqhp/loadgen/pkg/types"
)

// Options 控制文本报告的格式。
type Options struct {
	// Title 报告标题，为空时使用默认标题
	Title string
	// Indent 每行的缩进
	Indent string
	// ColorOutput 是否输出 ANSI 颜色
	ColorOutput bool
	// TrendStats 趋势指标显示的统计项，为空时使用默认值
	TrendStats []string
}

// DefaultOptions returns the default rendering options.
func DefaultOptions() Options {
	return Options{
		Indent:      " ",
		ColorOutput: true,
		TrendStats:  metrics.DefaultTrendStats,
	}
}

// Render writes the text summary of report to w. The output depends only on
// report and opts.
func Render(w io.Writer, report *types.SummaryReport, opts Options) error {
	if len(opts.TrendStats) == 0 {
		opts.TrendStats = metrics.DefaultTrendStats
	}
	r := &renderer{opts: opts}
	r.render(report)
	_, err := io.WriteString(w, r.sb.String())
	return err
}

// RenderString returns the text summary as a string.
func RenderString(report *types.SummaryReport, opts Options) string {
	var sb strings.Builder
	_ = Render(&sb, report, opts)
	return sb.String()
}

type renderer struct {
	opts Options
	sb   strings.Builder
}

func (r *renderer) render(report *types.SummaryReport) {
	title := r.opts.Title
	if title == "" {
		title = "Load Test Summary"
		if report.Name != "" {
			title = report.Name + " load test summary"
		}
	}

	r.writeLine("")
	r.writeLine(r.colorize(title, colorCyan))
	r.writeLine(strings.Repeat("=", len(title)))
	r.writeLine("")
	if report.RunID != "" {
		r.writeLine("Run ID: " + report.RunID)
	}
	r.writeLine("Duration: " + formatSeconds(report.DurationMs))
	r.writeLine(fmt.Sprintf("VUs: %d", report.PeakVUs))
	r.writeLine(fmt.Sprintf("Iterations: %d", report.Iterations))
	r.writeLine(fmt.Sprintf("Stages: %d (%s planned)", len(report.Stages), types.TotalDuration(report.Stages)))

	r.renderHTTP(report)
	r.renderCustom(report)
	r.renderChecks(report.Checks)
	r.renderMetrics(report)
	r.renderThresholds(report.Thresholds)
	r.renderRequests(report.Requests)
	r.renderErrors(report.Errors)

	r.writeLine("")
	if report.Passed {
		r.writeLine(r.colorize("Result: PASSED", colorGreen))
	} else {
		r.writeLine(r.colorize("Result: FAILED", colorRed))
	}
	r.writeLine("")
}

// renderHTTP prints the headline HTTP figures.
func (r *renderer) renderHTTP(report *types.SummaryReport) {
	reqs := report.Metric(metrics.HTTPReqsName)
	dur := report.Metric(metrics.HTTPReqDurationName)
	failed := report.Metric(metrics.HTTPReqFailedName)
	if reqs == nil && dur == nil && failed == nil {
		return
	}

	r.writeLine("")
	r.writeLine(r.colorize("HTTP Metrics:", colorBlue))
	if reqs != nil {
		r.writeLine(fmt.Sprintf("  Requests: %d", int64(reqs.Values["count"])))
	}
	if dur != nil {
		r.writeLine(fmt.Sprintf("  Duration (avg): %.2fms", dur.Values["avg"]))
		if v, ok := dur.Values["p(95)"]; ok {
			r.writeLine(fmt.Sprintf("  Duration (p95): %.2fms", v))
		}
		if v, ok := dur.Values["p(99)"]; ok {
			r.writeLine(fmt.Sprintf("  Duration (p99): %.2fms", v))
		}
	}
	if failed != nil {
		r.writeLine(fmt.Sprintf("  Failed: %.2f%%", failed.Values["rate"]*100))
	}
}

// renderCustom prints every metric that is not built in.
func (r *renderer) renderCustom(report *types.SummaryReport) {
	var custom []types.MetricSummary
	for _, m := range report.Metrics {
		if !builtin[m.Name] {
			custom = append(custom, m)
		}
	}
	if len(custom) == 0 {
		return
	}

	r.writeLine("")
	r.writeLine(r.colorize("Custom Metrics:", colorBlue))
	for _, m := range custom {
		switch metrics.MetricType(m.Type) {
		case metrics.Rate:
			r.writeLine(fmt.Sprintf("  %s: %.2f%%", m.Name, m.Values["rate"]*100))
		case metrics.Counter:
			r.writeLine(fmt.Sprintf("  %s: %s", m.Name, formatNumber(m.Values["count"])))
		case metrics.Trend:
			r.writeLine(fmt.Sprintf("  %s (avg): %.2fms", m.Name, m.Values["avg"]))
			if v, ok := m.Values["p(95)"]; ok {
				r.writeLine(fmt.Sprintf("  %s (p95): %.2fms", m.Name, v))
			}
		case metrics.Gauge:
			r.writeLine(fmt.Sprintf("  %s: %s", m.Name, formatNumber(m.Values["value"])))
		}
	}
}

func (r *renderer) renderChecks(checks []types.CheckSummary) {
	if len(checks) == 0 {
		return
	}

	r.writeLine("")
	for _, c := range checks {
		if c.Fails == 0 {
			r.writeLine(r.colorize("  ✓ "+c.Name, colorGreen))
			continue
		}
		r.writeLine(r.colorize("  ✗ "+c.Name, colorRed))
		r.writeLine(fmt.Sprintf("   ↳  %d%% — ✓ %d / ✗ %d", int(math.Floor(c.Rate*100)), c.Passes, c.Fails))
	}
}

// renderMetrics prints every metric in k6's dotted layout.
func (r *renderer) renderMetrics(report *types.SummaryReport) {
	if len(report.Metrics) == 0 {
		return
	}

	verdicts := thresholdVerdicts(report.Thresholds)

	width := 0
	for _, m := range report.Metrics {
		if len(m.Name) > width {
			width = len(m.Name)
		}
	}
	width += 3

	r.writeLine("")
	for _, m := range report.Metrics {
		mark := "  "
		if passed, ok := verdicts[m.Name]; ok {
			if passed {
				mark = r.colorize("✓", colorGreen) + " "
			} else {
				mark = r.colorize("✗", colorRed) + " "
			}
		}
		name := m.Name + strings.Repeat(".", width-len(m.Name))
		r.writeLine(fmt.Sprintf("  %s%s: %s", mark, name, r.formatValues(m)))
	}
}

func (r *renderer) renderThresholds(results []types.ThresholdResult) {
	if len(results) == 0 {
		return
	}

	r.writeLine("")
	r.writeLine(r.colorize("Thresholds:", colorBlue))
	for _, t := range results {
		line := fmt.Sprintf("%s %s (actual %s)", t.Metric, t.Expression, formatNumber(t.ActualValue))
		if t.Error != "" {
			line = fmt.Sprintf("%s %s (error: %s)", t.Metric, t.Expression, t.Error)
		}
		if t.Passed {
			r.writeLine("  " + r.colorize("✓ "+line, colorGreen))
		} else {
			r.writeLine("  " + r.colorize("✗ "+line, colorRed))
		}
	}
}

func (r *renderer) renderRequests(requests []types.RequestSummary) {
	if len(requests) == 0 {
		return
	}

	r.writeLine("")
	r.writeLine(r.colorize("Requests:", colorBlue))
	for _, q := range requests {
		line := fmt.Sprintf("  %s: count=%d failed=%d", q.Name, q.Count, q.Failures)
		stats := map[string]float64{"avg": q.AvgMs, "med": q.MedMs, "p(95)": q.P95Ms, "max": q.MaxMs}
		for _, stat := range r.opts.TrendStats {
			if val, ok := stats[stat]; ok {
				line += " " + stat + "=" + formatMs(val)
			}
		}
		r.writeLine(line)
	}
}

func (r *renderer) renderErrors(errs []types.ErrorSummary) {
	if len(errs) == 0 {
		return
	}

	r.writeLine("")
	r.writeLine(r.colorize("Errors:", colorYellow))
	for _, e := range errs {
		r.writeLine(fmt.Sprintf("  %d × %s (%s)", e.Count, e.Message, e.Request))
	}
}

// formatValues formats a metric's values according to its type.
func (r *renderer) formatValues(m types.MetricSummary) string {
	v := m.Values
	switch metrics.MetricType(m.Type) {
	case metrics.Rate:
		return fmt.Sprintf("%.2f%% ✓ %d ✗ %d", v["rate"]*100, int64(v["passes"]), int64(v["fails"]))

	case metrics.Counter:
		if metrics.ValueType(m.Contains) == metrics.Data {
			return fmt.Sprintf("%s %s/s", formatBytes(v["count"]), formatBytes(v["rate"]))
		}
		return fmt.Sprintf("%s %s/s", formatNumber(v["count"]), formatNumber(v["rate"]))

	case metrics.Gauge:
		return fmt.Sprintf("%s min=%s max=%s", formatNumber(v["value"]), formatNumber(v["min"]), formatNumber(v["max"]))

	case metrics.Trend:
		parts := make([]string, 0, len(r.opts.TrendStats))
		for _, stat := range r.opts.TrendStats {
			val, ok := v[stat]
			if !ok {
				continue
			}
			if metrics.ValueType(m.Contains) == metrics.Time {
				parts = append(parts, stat+"="+formatMs(val))
			} else {
				parts = append(parts, stat+"="+formatNumber(val))
			}
		}
		return strings.Join(parts, " ")
	}

	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+formatNumber(v[k]))
	}
	return strings.Join(parts, " ")
}

// thresholdVerdicts 每个指标的阈值是否全部通过
func thresholdVerdicts(results []types.ThresholdResult) map[string]bool {
	verdicts := make(map[string]bool, len(results))
	for _, t := range results {
		passed, seen := verdicts[t.Metric]
		verdicts[t.Metric] = t.Passed && (passed || !seen)
	}
	return verdicts
}

var builtin = map[string]bool{
	metrics.VUsName:               true,
	metrics.VUsMaxName:            true,
	metrics.IterationsName:        true,
	metrics.IterationDurationName: true,
	metrics.HTTPReqsName:          true,
	metrics.HTTPReqDurationName:   true,
	metrics.HTTPReqFailedName:     true,
	metrics.DataSentName:          true,
	metrics.DataReceivedName:      true,
	metrics.ChecksName:            true,
}

// Helper methods

func (r *renderer) writeLine(s string) {
	r.sb.WriteString(r.opts.Indent)
	r.sb.WriteString(s)
	r.sb.WriteByte('\n')
}

// formatMs formats a millisecond value the way durations are usually read.
func formatMs(ms float64) string {
	d := time.Duration(ms * float64(time.Millisecond))
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%.2fµs", ms*1000)
	case d < time.Second:
		return fmt.Sprintf("%.2fms", ms)
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", ms/1000)
	default:
		return d.Round(time.Millisecond).String()
	}
}

func formatSeconds(ms int64) string {
	return fmt.Sprintf("%gs", float64(ms)/1000)
}

func formatBytes(b float64) string {
	if b < 0 {
		b = 0
	}
	return humanize.Bytes(uint64(math.Round(b)))
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.4g", v)
}

// Color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
)

func (r *renderer) colorize(s string, color string) string {
	if !r.opts.ColorOutput {
		return s
	}
	return color + s + colorReset
}

// Reporter 把文本汇总写到 w
type Reporter struct {
	w    io.Writer
	opts Options
}

// NewReporter creates a text summary reporter.
func NewReporter(w io.Writer, opts Options) *Reporter {
	return &Reporter{w: w, opts: opts}
}

// Name returns the reporter name.
func (r *Reporter) Name() string {
	return "console"
}

// Report renders the summary.
func (r *Reporter) Report(_ context.Context, report *types.SummaryReport) error {
	return Render(r.w, report, r.opts)
}
