package scenario

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/ohler55/ojg/jp"
	"github.com/valyala/fasthttp"

	"yqhp/loadgen/internal/executor"
	"yqhp/loadgen/pkg/metrics"
	"yqhp/loadgen/pkg/types"
)

const (
	ReviewsStepName = "reviews"

	CheckReviewsStatus = "reviews status is 200"
	CheckReviewsArray  = "reviews is an array"
	CheckReviewUpdate  = "review update status is 2xx"

	ReviewsUpdatedMetric = "reviews_updated"
)

var rootPath = jp.MustParseString("$")

func init() {
	DefaultRegistry.MustRegister(ReviewsStepName, func() Step { return &ReviewsStep{} })
}

// ReviewsStep 读取评审记录列表，并随机更新其中一条的摘要
type ReviewsStep struct{}

// Name 返回步骤名称
func (s *ReviewsStep) Name() string { return ReviewsStepName }

// Metrics 返回步骤记录的自定义指标
func (s *ReviewsStep) Metrics() []MetricDef {
	return []MetricDef{
		{Name: ReviewsUpdatedMetric, Type: metrics.Counter, Contains: metrics.Default},
	}
}

// Run 执行一次评审读写。列表为空时跳过更新。
func (s *ReviewsStep) Run(env *Env, res *types.IterationResult) {
	list := env.Client.Do(executor.Request{
		Name:   "GET /api/seca-reviews",
		Method: fasthttp.MethodGet,
		URL:    env.URL("/api/seca-reviews"),
		Expect: executor.BodyJSON,
	})
	res.AddRequest(list.RequestResult)

	res.Check(CheckReviewsStatus, list.Status == fasthttp.StatusOK)
	isArray := res.Check(CheckReviewsArray, list.OK() && list.IsArray(rootPath))
	if !isArray {
		return
	}

	doc, _ := list.First(rootPath)
	reviews := doc.([]any)
	if len(reviews) == 0 {
		return
	}

	id, ok := reviewID(reviews[env.Payload.IntN(len(reviews))])
	if !ok {
		res.Check(CheckReviewUpdate, false)
		return
	}

	body, err := sonic.Marshal(map[string]string{"summary": env.Payload.ReviewSummary(env.now())})
	if err != nil {
		res.Check(CheckReviewUpdate, false)
		return
	}

	update := env.Client.Do(executor.Request{
		Name:   "PUT /api/seca-reviews/{id}",
		Method: fasthttp.MethodPut,
		URL:    env.URL("/api/seca-reviews/" + url.PathEscape(id)),
		Body:   body,
	})
	res.AddRequest(update.RequestResult)

	if res.Check(CheckReviewUpdate, update.Status >= 200 && update.Status < 300) {
		res.Add(ReviewsUpdatedMetric, 1)
	}
}

// reviewID 取出记录的 id 字段，支持数字和字符串
func reviewID(record any) (string, bool) {
	m, ok := record.(map[string]any)
	if !ok {
		return "", false
	}
	switch id := m["id"].(type) {
	case string:
		return id, id != ""
	case int64:
		return fmt.Sprintf("%d", id), true
	case int:
		return fmt.Sprintf("%d", id), true
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	}
	return "", false
}
