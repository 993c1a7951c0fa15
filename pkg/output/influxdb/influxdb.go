// Package influxdb 以 Line Protocol 批量写入 InfluxDB (1.x /write 或 2.x /api/v2/write)。
package influxdb

import (
	"bytes"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"

	"yqhp/loadgen/pkg/logger"
	"yqhp/loadgen/pkg/metrics"
	"yqhp/loadgen/pkg/output"
)

func init() {
	output.Register("influxdb", New)
}

const (
	defaultPushInterval = time.Second
	defaultTimeout      = 10 * time.Second
)

// Config InfluxDB 配置
type Config struct {
	// Addr 基础地址，如 http://host:8086
	Addr string
	// Database 数据库名（1.x）
	Database string
	// Token 认证令牌（2.x）
	Token string
	// Organization 组织（2.x）
	Organization string
	// Bucket 存储桶（2.x）
	Bucket string
	// PushInterval 推送间隔
	PushInterval time.Duration
	// Tags 全局标签
	Tags map[string]string
}

// ParseConfig 解析 --out 参数。
// 格式: http://host:8086/dbname 或 http://host:8086?db=dbname 或
// http://host:8086?token=xxx&org=xxx&bucket=xxx，可选 push_interval=2s
func ParseConfig(arg string) (Config, error) {
	cfg := Config{PushInterval: defaultPushInterval}
	if arg == "" {
		return cfg, fmt.Errorf("influxdb output requires a URL, e.g. influxdb=http://localhost:8086/loadgen")
	}

	u, err := url.Parse(arg)
	if err != nil {
		return cfg, fmt.Errorf("parse influxdb url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return cfg, fmt.Errorf("influxdb url must be http or https: %q", arg)
	}
	if u.Host == "" {
		return cfg, fmt.Errorf("influxdb url has no host: %q", arg)
	}
	cfg.Addr = u.Scheme + "://" + u.Host

	q := u.Query()
	cfg.Database = strings.Trim(u.Path, "/")
	if db := q.Get("db"); db != "" {
		cfg.Database = db
	}
	cfg.Token = q.Get("token")
	cfg.Organization = q.Get("org")
	cfg.Bucket = q.Get("bucket")
	if v := q.Get("push_interval"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return cfg, fmt.Errorf("invalid push_interval %q", v)
		}
		cfg.PushInterval = d
	}

	if cfg.Token != "" {
		if cfg.Bucket == "" {
			return cfg, fmt.Errorf("influxdb 2.x output requires bucket")
		}
	} else if cfg.Database == "" {
		cfg.Database = "loadgen"
	}
	return cfg, nil
}

// WriteURL 返回写入端点
func (c Config) WriteURL() string {
	if c.Token != "" {
		q := url.Values{}
		q.Set("org", c.Organization)
		q.Set("bucket", c.Bucket)
		q.Set("precision", "ns")
		return c.Addr + "/api/v2/write?" + q.Encode()
	}
	q := url.Values{}
	q.Set("db", c.Database)
	q.Set("precision", "ns")
	return c.Addr + "/write?" + q.Encode()
}

// Output InfluxDB 输出
type Output struct {
	output.SampleBuffer

	config  Config
	client  *fasthttp.Client
	flusher *output.PeriodicFlusher

	mu        sync.Mutex
	written   int
	runStatus output.RunStatus
}

// New 创建 InfluxDB 输出
func New(params output.Params) (output.Output, error) {
	cfg, err := ParseConfig(params.ConfigArgument)
	if err != nil {
		return nil, err
	}
	if len(params.Tags) > 0 {
		cfg.Tags = make(map[string]string, len(params.Tags)+1)
		for k, v := range params.Tags {
			cfg.Tags[k] = v
		}
	}
	if params.RunID != "" {
		if cfg.Tags == nil {
			cfg.Tags = make(map[string]string, 1)
		}
		cfg.Tags["run_id"] = params.RunID
	}
	return NewWithConfig(cfg), nil
}

// NewWithConfig 按已解析的配置创建输出
func NewWithConfig(cfg Config) *Output {
	if cfg.PushInterval <= 0 {
		cfg.PushInterval = defaultPushInterval
	}
	return &Output{
		config: cfg,
		client: &fasthttp.Client{
			Name:         "loadgen-influxdb",
			ReadTimeout:  defaultTimeout,
			WriteTimeout: defaultTimeout,
		},
	}
}

// Description 返回描述
func (o *Output) Description() string {
	return fmt.Sprintf("influxdb (%s)", o.config.Addr)
}

// Start 启动定期推送
func (o *Output) Start() error {
	pf, err := output.NewPeriodicFlusher(o.config.PushInterval, o.push)
	if err != nil {
		return err
	}
	o.flusher = pf
	return nil
}

// Stop 推送剩余样本
func (o *Output) Stop() error {
	if o.flusher != nil {
		o.flusher.Stop()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	logger.Debug("influxdb output closed", "output", o.Description(), "status", o.runStatus.Status, "points", o.written)
	return nil
}

// SetRunStatus 设置运行状态
func (o *Output) SetRunStatus(status output.RunStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runStatus = status
}

func (o *Output) push() {
	containers := o.GetBufferedSamples()
	if len(containers) == 0 {
		return
	}

	var buf bytes.Buffer
	count := 0
	for _, container := range containers {
		for _, sample := range container.GetSamples() {
			o.writeLine(&buf, sample)
			count++
		}
	}

	if err := o.send(buf.Bytes()); err != nil {
		logger.Warn("push to influxdb failed", "points", count, "error", err)
		return
	}

	o.mu.Lock()
	o.written += count
	o.mu.Unlock()
}

func (o *Output) send(body []byte) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(o.config.WriteURL())
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("text/plain; charset=utf-8")
	if o.config.Token != "" {
		req.Header.Set("Authorization", "Token "+o.config.Token)
	}
	req.SetBody(body)

	if err := o.client.DoTimeout(req, resp, defaultTimeout); err != nil {
		return err
	}
	if code := resp.StatusCode(); code >= 300 {
		return fmt.Errorf("influxdb returned %d: %s", code, bytes.TrimSpace(resp.Body()))
	}
	return nil
}

// writeLine 写入一行 Line Protocol，标签按键名排序
func (o *Output) writeLine(buf *bytes.Buffer, sample metrics.Sample) {
	buf.WriteString(escapeMeasurement(sample.Metric.Name))

	tags := make(map[string]string, len(o.config.Tags)+len(sample.Tags))
	for k, v := range o.config.Tags {
		tags[k] = v
	}
	for k, v := range sample.Tags {
		tags[k] = v
	}
	keys := make([]string, 0, len(tags))
	for k, v := range tags {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf.WriteByte(',')
		buf.WriteString(escapeTag(k))
		buf.WriteByte('=')
		buf.WriteString(escapeTag(tags[k]))
	}

	buf.WriteString(" value=")
	buf.WriteString(strconv.FormatFloat(sample.Value, 'f', -1, 64))
	buf.WriteByte(' ')
	buf.WriteString(strconv.FormatInt(sample.Time.UnixNano(), 10))
	buf.WriteByte('\n')
}

var (
	tagEscaper         = strings.NewReplacer(",", `\,`, "=", `\=`, " ", `\ `)
	measurementEscaper = strings.NewReplacer(",", `\,`, " ", `\ `)
)

func escapeTag(s string) string {
	return tagEscaper.Replace(s)
}

func escapeMeasurement(s string) string {
	return measurementEscaper.Replace(s)
}
