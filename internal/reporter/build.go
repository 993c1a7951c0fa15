package reporter

import (
	"io"

	"yqhp/loadgen/internal/config"
	"yqhp/loadgen/internal/reporter/console"
	"yqhp/loadgen/internal/reporter/file"
	"yqhp/loadgen/internal/reporter/prometheus"
	"yqhp/loadgen/internal/reporter/webhook"
)

// FromConfig 按汇总配置组装报告器：JSON 文件、文本汇总、Webhook、Pushgateway。
// color 控制文本汇总是否带 ANSI 颜色。
func FromConfig(cfg config.SummaryConfig, w io.Writer, color bool) *Manager {
	m := NewManager()

	if cfg.Export != "" {
		m.AddReporter(file.NewReporter(cfg.Export))
	}

	if !cfg.Quiet {
		opts := console.DefaultOptions()
		opts.ColorOutput = color && !cfg.NoColor
		if len(cfg.TrendStats) > 0 {
			opts.TrendStats = cfg.TrendStats
		}
		m.AddReporter(console.NewReporter(w, opts))
	}

	if cfg.Webhook.URL != "" {
		wc := webhook.DefaultConfig()
		wc.URL = cfg.Webhook.URL
		wc.Timeout = cfg.Webhook.Timeout
		wc.RetryAttempts = cfg.Webhook.Retries
		for k, v := range cfg.Webhook.Headers {
			wc.Headers[k] = v
		}
		m.AddReporter(webhook.New(wc))
	}

	if cfg.Pushgateway.URL != "" {
		m.AddReporter(prometheus.New(&prometheus.Config{
			URL: cfg.Pushgateway.URL,
			Job: cfg.Pushgateway.Job,
		}))
	}

	return m
}
