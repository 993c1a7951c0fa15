package engine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"yqhp/loadgen/pkg/logger"
	"yqhp/loadgen/pkg/metrics"
	"yqhp/loadgen/pkg/types"
)

var (
	// ErrInvalidThreshold 阈值表达式无法解析或统计量与指标类型不匹配
	ErrInvalidThreshold = errors.New("invalid threshold")
	// ErrUnknownMetric 阈值引用了未注册的指标
	ErrUnknownMetric = errors.New("unknown metric")
)

// Comparator 比较运算符
type Comparator string

const (
	Less         Comparator = "<"
	LessEqual    Comparator = "<="
	Greater      Comparator = ">"
	GreaterEqual Comparator = ">="
	Equal        Comparator = "=="
	NotEqual     Comparator = "!="
)

// ThresholdExpr 是解析后的阈值表达式，例如 "p(95)<1000"
type ThresholdExpr struct {
	Metric     string
	Stat       string
	Comparator Comparator
	Bound      float64
	Source     string
}

// String returns the expression as written in the configuration.
func (t *ThresholdExpr) String() string {
	return t.Source
}

// Compare reports whether value satisfies the expression.
func (t *ThresholdExpr) Compare(value float64) bool {
	switch t.Comparator {
	case Less:
		return value < t.Bound
	case LessEqual:
		return value <= t.Bound
	case Greater:
		return value > t.Bound
	case GreaterEqual:
		return value >= t.Bound
	case Equal:
		return value == t.Bound
	case NotEqual:
		return value != t.Bound
	}
	return false
}

// ParseThreshold parses "<stat> <op> <number>". Whitespace around tokens is
// ignored. The stat is not checked against the metric type here.
func ParseThreshold(metric, expr string) (*ThresholdExpr, error) {
	source := strings.TrimSpace(expr)
	if source == "" {
		return nil, fmt.Errorf("%w: empty expression for metric %q", ErrInvalidThreshold, metric)
	}

	idx := strings.IndexAny(source, "<>=!")
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q has no comparison operator", ErrInvalidThreshold, source)
	}

	op := source[idx : idx+1]
	if idx+1 < len(source) && source[idx+1] == '=' {
		op = source[idx : idx+2]
	}

	var cmp Comparator
	switch Comparator(op) {
	case Less, LessEqual, Greater, GreaterEqual, Equal, NotEqual:
		cmp = Comparator(op)
	default:
		return nil, fmt.Errorf("%w: %q has unsupported operator %q", ErrInvalidThreshold, source, op)
	}

	stat := strings.TrimSpace(source[:idx])
	if stat == "" {
		return nil, fmt.Errorf("%w: %q has no statistic", ErrInvalidThreshold, source)
	}

	boundStr := strings.TrimSpace(source[idx+len(op):])
	bound, err := strconv.ParseFloat(boundStr, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q has invalid bound %q", ErrInvalidThreshold, source, boundStr)
	}

	return &ThresholdExpr{
		Metric:     metric,
		Stat:       stat,
		Comparator: cmp,
		Bound:      bound,
		Source:     source,
	}, nil
}

// ValidateThresholds parses every threshold and checks that its metric is
// registered and its statistic exists for the metric type. All problems are
// reported together.
func ValidateThresholds(registry *metrics.Registry, thresholds []types.Threshold) ([]*ThresholdExpr, error) {
	exprs := make([]*ThresholdExpr, 0, len(thresholds))
	var errs []error

	for _, th := range thresholds {
		expr, err := ParseThreshold(th.Metric, th.Condition)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		m := registry.Get(th.Metric)
		if m == nil {
			errs = append(errs, fmt.Errorf("%w: threshold %q references %q (known: %v)",
				ErrUnknownMetric, expr.Source, th.Metric, registry.Names()))
			continue
		}

		if err := metrics.ValidateStat(m.Type, expr.Stat); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s on %s: %v", ErrInvalidThreshold, expr.Source, th.Metric, err))
			continue
		}

		exprs = append(exprs, expr)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return exprs, nil
}

// Evaluate checks every expression against the metric aggregates.
// A metric without samples is read as its zero aggregate. duration is the
// run length in seconds.
func Evaluate(registry *metrics.Registry, exprs []*ThresholdExpr, duration float64) ([]types.ThresholdResult, bool) {
	results := make([]types.ThresholdResult, 0, len(exprs))
	passed := true

	for _, expr := range exprs {
		result := types.ThresholdResult{
			Metric:     expr.Metric,
			Expression: expr.Source,
		}

		m := registry.Get(expr.Metric)
		if m == nil {
			result.Error = fmt.Sprintf("unknown metric %q", expr.Metric)
		} else if v, err := metrics.StatValue(m, expr.Stat, duration); err != nil {
			result.Error = err.Error()
		} else {
			result.ActualValue = v
			result.Passed = expr.Compare(v)
		}
		if result.Error != "" {
			logger.Warn("threshold not evaluated", "metric", expr.Metric, "expression", expr.Source, "error", result.Error)
		}

		if !result.Passed {
			passed = false
		}
		results = append(results, result)
	}

	return results, passed
}
