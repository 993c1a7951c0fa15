// Package executor 执行单个 HTTP 请求，并把响应解码为显式的结果分类。
// 检查谓词只会看到 Response，不会看到 panic 或原始传输错误。
package executor

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"yqhp/loadgen/pkg/types"
)

const (
	// DefaultTimeout 请求默认超时时间
	DefaultTimeout = 10 * time.Second

	defaultUserAgent = "loadgen/1.0"
)

// BodyKind 期望的响应体格式
type BodyKind int

const (
	// BodyAny 不解析响应体
	BodyAny BodyKind = iota
	// BodyJSON 响应体必须是合法 JSON
	BodyJSON
	// BodyPrometheus 响应体必须是 Prometheus 文本格式，且至少包含一个指标族
	BodyPrometheus
)

// ClientConfig HTTP 客户端配置
type ClientConfig struct {
	Timeout         time.Duration
	MaxConnsPerHost int
	UserAgent       string
}

// Client 基于 fasthttp 的 HTTP 客户端，所有 VU 共享同一连接池。
type Client struct {
	client    *fasthttp.Client
	timeout   time.Duration
	userAgent string
}

// NewClient 创建 HTTP 客户端
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxConnsPerHost <= 0 {
		cfg.MaxConnsPerHost = 1000
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	return &Client{
		client: &fasthttp.Client{
			MaxConnsPerHost:        cfg.MaxConnsPerHost,
			MaxIdleConnDuration:    90 * time.Second,
			ReadTimeout:            cfg.Timeout,
			WriteTimeout:           cfg.Timeout,
			DisablePathNormalizing: true,
		},
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
	}
}

// Request 描述一个待发送的请求
type Request struct {
	// Name 用于标签和日志，例如 "POST /api/logs"
	Name    string
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
	Expect  BodyKind
}

// Do 发送请求并解码响应。传输失败、非成功状态码和无法解析的响应体都
// 体现在返回值的 Outcome 中，Do 本身从不返回错误。请求不会被取消，
// 只受超时限制。
func (c *Client) Do(r Request) *Response {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	method := r.Method
	if method == "" {
		method = fasthttp.MethodGet
	}
	req.Header.SetMethod(method)
	req.SetRequestURI(r.URL)
	req.Header.SetUserAgent(c.userAgent)
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	if len(r.Body) > 0 {
		req.SetBody(r.Body)
		if len(req.Header.ContentType()) == 0 {
			req.Header.SetContentType("application/json")
		}
	}

	out := &Response{
		RequestResult: types.RequestResult{
			Name:   r.Name,
			Method: method,
			URL:    r.URL,
		},
	}

	start := time.Now()
	deadline := start.Add(c.timeout)
	err := c.client.DoDeadline(req, resp, deadline)
	out.Duration = time.Since(start)
	out.BytesSent = len(req.Header.Header()) + len(req.Body())

	if err != nil {
		out.Outcome = types.OutcomeTransportError
		if errors.Is(err, fasthttp.ErrTimeout) || time.Now().After(deadline) {
			out.Error = fmt.Sprintf("request timed out after %s", c.timeout)
		} else {
			out.Error = err.Error()
		}
		return out
	}

	// resp.Body() 引用内部缓冲区，释放前必须复制
	out.Body = bytes.Clone(resp.Body())
	out.Status = resp.StatusCode()
	out.BytesReceived = len(resp.Header.Header()) + len(out.Body)
	out.decode(r.Expect)
	return out
}

// Close 关闭空闲连接
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}
