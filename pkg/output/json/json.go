// Package json 将原始指标样本以 NDJSON 格式写入文件，每行一个 JSON 对象。
// 每个指标首次出现时先写一行 Metric 定义，随后每个样本一行 Point。
package json

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"yqhp/loadgen/pkg/logger"
	"yqhp/loadgen/pkg/metrics"
	"yqhp/loadgen/pkg/output"
)

const flushInterval = 200 * time.Millisecond

func init() {
	output.Register("json", New)
}

// MetricEntry 指标定义行
type MetricEntry struct {
	Type   string     `json:"type"`
	Metric string     `json:"metric"`
	Data   MetricData `json:"data"`
}

// MetricData 指标定义
type MetricData struct {
	Type     metrics.MetricType `json:"type"`
	Contains metrics.ValueType  `json:"contains"`
}

// PointEntry 样本行
type PointEntry struct {
	Type   string    `json:"type"`
	Metric string    `json:"metric"`
	Data   PointData `json:"data"`
}

// PointData 样本数据
type PointData struct {
	Time  time.Time         `json:"time"`
	Value float64           `json:"value"`
	Tags  map[string]string `json:"tags,omitempty"`
}

// Output JSON 文件输出
type Output struct {
	output.SampleBuffer

	params  output.Params
	closer  io.Closer
	writer  *bufio.Writer
	encoder sonic.Encoder
	seen    map[string]bool
	flusher *output.PeriodicFlusher
	mu      sync.Mutex

	runStatus output.RunStatus
}

// New 创建 JSON 输出
func New(params output.Params) (output.Output, error) {
	if params.ConfigArgument == "" {
		return nil, fmt.Errorf("json output requires a file name, e.g. json=samples.ndjson")
	}
	return &Output{
		params: params,
		seen:   make(map[string]bool),
	}, nil
}

// NewWithWriter 创建写入任意 io.Writer 的 JSON 输出
func NewWithWriter(w io.Writer) *Output {
	o := &Output{seen: make(map[string]bool)}
	o.attach(w, nil)
	return o
}

// Description 返回描述
func (o *Output) Description() string {
	if o.params.ConfigArgument == "" {
		return "json"
	}
	return fmt.Sprintf("json (%s)", o.params.ConfigArgument)
}

func (o *Output) attach(w io.Writer, c io.Closer) {
	o.closer = c
	o.writer = bufio.NewWriter(w)
	o.encoder = sonic.ConfigStd.NewEncoder(o.writer)
}

// Start 打开文件并启动定期刷新
func (o *Output) Start() error {
	o.mu.Lock()
	if o.writer == nil {
		file, err := os.Create(o.params.ConfigArgument)
		if err != nil {
			o.mu.Unlock()
			return fmt.Errorf("create json output file: %w", err)
		}
		o.attach(file, file)
	}
	o.mu.Unlock()

	pf, err := output.NewPeriodicFlusher(flushInterval, o.flushSamples)
	if err != nil {
		return err
	}
	o.flusher = pf
	return nil
}

// Stop 写出剩余样本并关闭文件
func (o *Output) Stop() error {
	if o.flusher != nil {
		o.flusher.Stop()
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.writer == nil {
		return nil
	}
	if err := o.writer.Flush(); err != nil {
		return fmt.Errorf("flush json output: %w", err)
	}
	logger.Debug("json output closed", "output", o.Description(), "status", o.runStatus.Status, "metrics", len(o.seen))
	if o.closer != nil {
		return o.closer.Close()
	}
	return nil
}

// flushSamples 编码缓冲区中的样本
func (o *Output) flushSamples() {
	containers := o.GetBufferedSamples()
	if len(containers) == 0 {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for _, container := range containers {
		for _, sample := range container.GetSamples() {
			if err := o.writeSample(sample); err != nil {
				logger.Warn("write json sample failed", "metric", sample.Metric.Name, "error", err)
			}
		}
	}
}

func (o *Output) writeSample(sample metrics.Sample) error {
	name := sample.Metric.Name
	if !o.seen[name] {
		o.seen[name] = true
		err := o.encoder.Encode(MetricEntry{
			Type:   "Metric",
			Metric: name,
			Data: MetricData{
				Type:     sample.Metric.Type,
				Contains: sample.Metric.Contains,
			},
		})
		if err != nil {
			return err
		}
	}

	return o.encoder.Encode(PointEntry{
		Type:   "Point",
		Metric: name,
		Data: PointData{
			Time:  sample.Time,
			Value: sample.Value,
			Tags:  sample.Tags,
		},
	})
}

// SetRunStatus 设置运行状态
func (o *Output) SetRunStatus(status output.RunStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runStatus = status
}
