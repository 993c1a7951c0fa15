// Package payload 生成日志摄取请求使用的合成数据。
// 生成器只依赖注入的随机源，相同种子产生相同的数据。
package payload

import (
	"fmt"
	"math/rand/v2"
	"time"
)

const (
	// DefaultErrorProbability 最后一条日志为 error 级别的概率
	DefaultErrorProbability = 0.1
	// DefaultService 日志所属服务名
	DefaultService = "auth-service"

	// BatchSize 每批日志条数
	BatchSize = 3

	hexDigits = "0123456789abcdef"
)

// LogRecord 单条结构化日志
type LogRecord struct {
	Timestamp  string         `json:"timestamp"`
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	Service    string         `json:"service"`
	TraceID    string         `json:"trace_id"`
	SpanID     string         `json:"span_id"`
	Attributes map[string]any `json:"attributes"`
}

// Batch 一次摄取请求的请求体
type Batch struct {
	Logs []LogRecord `json:"logs"`
}

// Len returns the number of records in the batch.
func (b Batch) Len() int {
	return len(b.Logs)
}

// Generator 合成日志生成器。不是并发安全的，每个 VU 持有一个。
type Generator struct {
	rnd *rand.Rand

	// ErrorProbability 最后一条日志为 error 的概率，取值 [0, 1]
	ErrorProbability float64
	// Service 日志的 service 字段
	Service string
}

// New 使用给定的随机源创建生成器
func New(rnd *rand.Rand) *Generator {
	return &Generator{
		rnd:              rnd,
		ErrorProbability: DefaultErrorProbability,
		Service:          DefaultService,
	}
}

// NewGenerator 使用 PCG 随机源和给定种子创建生成器
func NewGenerator(seed uint64) *Generator {
	return New(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// TraceID 返回 32 位小写十六进制字符串
func (g *Generator) TraceID() string {
	return g.hex(32)
}

// SpanID 返回 16 位小写十六进制字符串
func (g *Generator) SpanID() string {
	return g.hex(16)
}

func (g *Generator) hex(n int) string {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = hexDigits[g.rnd.IntN(16)]
	}
	return string(buf)
}

// Batch 生成一批共享 trace id 和 span id 的日志，时间戳依次为
// now、now+100ms、now+200ms。
func (g *Generator) Batch(now time.Time) Batch {
	traceID := g.TraceID()
	spanID := g.SpanID()
	now = now.UTC()

	level, message := "info", "Session created"
	if g.rnd.Float64() < g.ErrorProbability {
		level, message = "error", "Failed to authenticate user"
	}

	return Batch{
		Logs: []LogRecord{
			{
				Timestamp: formatTime(now),
				Level:     "info",
				Message:   "User login successful",
				Service:   g.Service,
				TraceID:   traceID,
				SpanID:    spanID,
				Attributes: map[string]any{
					"user_id":     fmt.Sprintf("user_%d", g.rnd.IntN(10000)),
					"ip_address":  fmt.Sprintf("192.168.1.%d", g.rnd.IntN(255)),
					"method":      "POST",
					"endpoint":    "/api/auth/login",
					"duration_ms": g.rnd.IntN(200),
				},
			},
			{
				Timestamp: formatTime(now.Add(100 * time.Millisecond)),
				Level:     "debug",
				Message:   "Database query executed",
				Service:   g.Service,
				TraceID:   traceID,
				SpanID:    spanID,
				Attributes: map[string]any{
					"query":         "SELECT * FROM users WHERE id = ?",
					"duration_ms":   g.rnd.IntN(50),
					"rows_returned": 1,
				},
			},
			{
				Timestamp: formatTime(now.Add(200 * time.Millisecond)),
				Level:     level,
				Message:   message,
				Service:   g.Service,
				TraceID:   traceID,
				SpanID:    spanID,
				Attributes: map[string]any{
					"session_id":  fmt.Sprintf("sess_%d", g.rnd.IntN(100000)),
					"ttl_seconds": 3600,
				},
			},
		},
	}
}

// formatTime 格式化为 ISO 8601 毫秒精度的 UTC 时间
func formatTime(t time.Time) string {
	return t.Format("2006-01-02T15:04:05.000Z07:00")
}

// IntN 返回 [0, n) 内的随机整数
func (g *Generator) IntN(n int) int {
	return g.rnd.IntN(n)
}

// ReviewSummary 生成评审记录的摘要文本
func (g *Generator) ReviewSummary(now time.Time) string {
	return fmt.Sprintf("load test update %s at %s", g.hex(8), formatTime(now.UTC()))
}
