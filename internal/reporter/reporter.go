// Package reporter 在运行结束后把汇总报告交给各个报告器：
// 文本汇总、JSON 文件、Webhook 和 Prometheus Pushgateway。
package reporter

import (
	"context"

	"yqhp/loadgen/pkg/types"
)

// Reporter 定义了汇总报告输出的接口。
type Reporter interface {
	// Name 返回报告器名称。
	Name() string

	// Report 输出一份汇总报告。
	Report(ctx context.Context, report *types.SummaryReport) error
}

// ReporterType 定义报告器类型。
type ReporterType string

const (
	// ReporterTypeConsole 输出到控制台。
	ReporterTypeConsole ReporterType = "console"
	// ReporterTypeJSON 输出到 JSON 文件。
	ReporterTypeJSON ReporterType = "json"
	// ReporterTypePrometheus 推送到 Prometheus Pushgateway。
	ReporterTypePrometheus ReporterType = "prometheus"
	// ReporterTypeWebhook 发送到 Webhook URL。
	ReporterTypeWebhook ReporterType = "webhook"
)
