package stub

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 桩服务自身暴露的 Prometheus 指标
type Metrics struct {
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	LogsReceived    *prometheus.CounterVec
	Correlations    prometheus.Gauge
	registry        *prometheus.Registry
}

// NewMetrics 创建指标，每个实例使用独立的注册表
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stub_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stub_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		LogsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logs_received_total",
				Help: "Total number of log records accepted",
			},
			[]string{"level"},
		),
		Correlations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "correlations_active",
				Help: "Number of traces currently holding an error-level record",
			},
		),
		registry: registry,
	}

	registry.MustRegister(m.Requests)
	registry.MustRegister(m.RequestDuration)
	registry.MustRegister(m.LogsReceived)
	registry.MustRegister(m.Correlations)

	return m
}

// ObserveRequest 记录一次请求
func (m *Metrics) ObserveRequest(method, path string, status int, seconds float64) {
	m.Requests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(seconds)
}

// Handler 返回 Prometheus 文本格式的处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回底层注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
