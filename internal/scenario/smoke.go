package scenario

import (
	"github.com/ohler55/ojg/jp"
	"github.com/valyala/fasthttp"

	"yqhp/loadgen/internal/executor"
	"yqhp/loadgen/pkg/types"
)

const (
	SmokeStepName = "smoke"

	CheckHealthStatus      = "health status is 200"
	CheckHealthField       = "health has status field"
	CheckRootService       = "root has service name"
	CheckMetricsStatus     = "metrics status is 200"
	CheckMetricsExposition = "metrics is valid exposition format"
	CheckCorrelationsArray = "correlations is an array"
)

var (
	statusPath       = jp.MustParseString("$.status")
	servicePath      = jp.MustParseString("$.service")
	correlationsPath = jp.MustParseString("$.correlations")
)

func init() {
	DefaultRegistry.MustRegister(SmokeStepName, func() Step { return &SmokeStep{} })
}

// SmokeStep 依次访问服务的健康检查、根路径、指标和关联查询接口
type SmokeStep struct{}

// Name 返回步骤名称
func (s *SmokeStep) Name() string { return SmokeStepName }

// Metrics 冒烟步骤只记录内置指标
func (s *SmokeStep) Metrics() []MetricDef { return nil }

// Run 执行一次冒烟检查
func (s *SmokeStep) Run(env *Env, res *types.IterationResult) {
	health := s.get(env, res, "/health", executor.BodyJSON)
	res.Check(CheckHealthStatus, health.Status == fasthttp.StatusOK)
	res.Check(CheckHealthField, health.Has(statusPath))

	root := s.get(env, res, "/", executor.BodyJSON)
	res.Check(CheckRootService, root.IsString(servicePath))

	m := s.get(env, res, "/metrics", executor.BodyPrometheus)
	res.Check(CheckMetricsStatus, m.Status == fasthttp.StatusOK)
	res.Check(CheckMetricsExposition, m.OK())

	corr := s.get(env, res, "/api/correlations", executor.BodyJSON)
	res.Check(CheckCorrelationsArray, corr.IsArray(correlationsPath))
}

func (s *SmokeStep) get(env *Env, res *types.IterationResult, path string, expect executor.BodyKind) *executor.Response {
	resp := env.Client.Do(executor.Request{
		Name:   "GET " + path,
		Method: fasthttp.MethodGet,
		URL:    env.URL(path),
		Expect: expect,
	})
	res.AddRequest(resp.RequestResult)
	return resp
}
