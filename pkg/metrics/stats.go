package metrics

import (
	"fmt"
	"sort"
)

// statsByType lists the non-percentile statistics each metric type exposes.
var statsByType = map[MetricType][]string{
	Counter: {"count", "rate"},
	Gauge:   {"value", "min", "max"},
	Rate:    {"rate", "passes", "fails"},
	Trend:   {"count", "min", "max", "avg", "med"},
}

// ValidateStat checks that stat can be read from a metric of type t.
// Trends additionally accept any p(N).
func ValidateStat(t MetricType, stat string) error {
	if t == Trend {
		if _, ok, err := ParsePercentile(stat); ok {
			return err
		}
	}
	for _, s := range statsByType[t] {
		if s == stat {
			return nil
		}
	}
	valid := append([]string(nil), statsByType[t]...)
	sort.Strings(valid)
	if t == Trend {
		valid = append(valid, "p(N)")
	}
	return fmt.Errorf("statistic %q is not available for %s metrics (valid: %v)", stat, t, valid)
}

// StatValue reads one statistic from the metric's sink. duration is the run
// length in seconds, used by per-second rates.
func StatValue(m *Metric, stat string, duration float64) (float64, error) {
	if err := ValidateStat(m.Type, stat); err != nil {
		return 0, err
	}
	if ts, ok := m.Sink.(*TrendSink); ok {
		return ts.Stat(stat)
	}
	return m.Sink.Format(duration)[stat], nil
}
