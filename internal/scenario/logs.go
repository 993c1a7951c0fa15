package scenario

import (
	"github.com/bytedance/sonic"
	"github.com/ohler55/ojg/jp"
	"github.com/valyala/fasthttp"

	"yqhp/loadgen/internal/executor"
	"yqhp/loadgen/pkg/logger"
	"yqhp/loadgen/pkg/metrics"
	"yqhp/loadgen/pkg/types"
)

// 日志摄取步骤的检查名称和指标名称
const (
	LogsStepName = "logs"

	CheckLogStatus   = "log ingestion status is 200"
	CheckLogAccepted = "log ingestion response has accepted field"

	ErrorsMetric            = "errors"
	LogsIngestedMetric      = "logs_ingested"
	IngestionDurationMetric = "ingestion_duration"
)

var acceptedPath = jp.MustParseString("$.accepted")

func init() {
	DefaultRegistry.MustRegister(LogsStepName, func() Step { return &LogsStep{} })
}

// LogsStep 向 /api/logs 发送一批合成日志
type LogsStep struct{}

// Name 返回步骤名称
func (s *LogsStep) Name() string { return LogsStepName }

// Metrics 返回步骤记录的自定义指标
func (s *LogsStep) Metrics() []MetricDef {
	return []MetricDef{
		{Name: ErrorsMetric, Type: metrics.Rate, Contains: metrics.Default},
		{Name: LogsIngestedMetric, Type: metrics.Counter, Contains: metrics.Default},
		{Name: IngestionDurationMetric, Type: metrics.Trend, Contains: metrics.Time},
	}
}

// Run 发送一批日志。两个检查总是都会记录；errors 在任一检查失败时记 1，否则记 0。
func (s *LogsStep) Run(env *Env, res *types.IterationResult) {
	batch := env.Payload.Batch(env.now())

	body, err := sonic.Marshal(batch)
	if err != nil {
		// 合成数据总能编码，这里只做兜底
		logger.Error("encode log batch failed", "error", err)
		res.Check(CheckLogStatus, false)
		res.Check(CheckLogAccepted, false)
		res.AddBool(ErrorsMetric, true)
		return
	}

	resp := env.Client.Do(executor.Request{
		Name:   "POST /api/logs",
		Method: fasthttp.MethodPost,
		URL:    env.URL("/api/logs"),
		Body:   body,
		Expect: executor.BodyJSON,
	})
	res.AddRequest(resp.RequestResult)

	statusOK := res.Check(CheckLogStatus, resp.Status == fasthttp.StatusOK)
	accepted := res.Check(CheckLogAccepted, resp.Has(acceptedPath))
	success := statusOK && accepted

	res.AddBool(ErrorsMetric, !success)
	if success {
		res.Add(LogsIngestedMetric, float64(batch.Len()))
	} else if logger.IsDebugEnabled() {
		logger.Debug("log ingestion failed", "vu", res.VU, "outcome", resp.Outcome, "status", resp.Status, "error", resp.Error)
	}
	res.Add(IngestionDurationMetric, milliseconds(resp.Duration))
}
