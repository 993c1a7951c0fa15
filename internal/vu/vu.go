// Package vu 实现虚拟用户：一个顺序执行迭代的循环。
// 停止标志只在迭代之间检查，正在进行的请求不会被中断。
package vu

import (
	"math/rand/v2"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"yqhp/loadgen/internal/scenario"
	"yqhp/loadgen/pkg/logger"
	"yqhp/loadgen/pkg/metrics"
	"yqhp/loadgen/pkg/types"
)

// SleepPolicy 迭代之间的等待时间。Max 大于 Min 时在 [Min, Max) 内均匀随机，
// 否则固定为 Min。
type SleepPolicy struct {
	Min time.Duration
	Max time.Duration
}

// Config 虚拟用户配置
type Config struct {
	ID      int
	Seed    uint64
	Script  scenario.Script
	Env     *scenario.Env
	Sleep   SleepPolicy
	Metrics *metrics.BuiltinMetrics
	// Registry 用于查找脚本声明的自定义指标
	Registry *metrics.Registry
	// Samples 样本通道，满时发送阻塞
	Samples chan<- metrics.SampleContainer
	// Tags 附加到每个样本的全局标签
	Tags map[string]string
}

// VirtualUser 虚拟用户
type VirtualUser struct {
	cfg Config
	rnd *rand.Rand

	stopped  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once

	iterations atomic.Int64
	warned     map[string]bool
}

// New 创建虚拟用户
func New(cfg Config) *VirtualUser {
	return &VirtualUser{
		cfg:    cfg,
		rnd:    rand.New(rand.NewPCG(cfg.Seed, uint64(cfg.ID))),
		stopCh: make(chan struct{}),
		warned: make(map[string]bool),
	}
}

// ID 返回虚拟用户编号
func (v *VirtualUser) ID() int {
	return v.cfg.ID
}

// Stop 标记停止。当前迭代（包括进行中的请求）会完成，之后循环退出；
// 迭代间的等待会被提前结束。可重复调用。
func (v *VirtualUser) Stop() {
	v.stopOnce.Do(func() {
		v.stopped.Store(true)
		close(v.stopCh)
	})
}

// Stopped 返回是否已被标记停止
func (v *VirtualUser) Stopped() bool {
	return v.stopped.Load()
}

// Iterations 返回已完成的迭代次数
func (v *VirtualUser) Iterations() int64 {
	return v.iterations.Load()
}

// Run 循环执行迭代，直到被标记停止。每次迭代完成后调用 onIteration。
func (v *VirtualUser) Run(onIteration func()) {
	for iteration := 0; !v.stopped.Load(); iteration++ {
		v.RunIteration(iteration)
		if onIteration != nil {
			onIteration()
		}
		if v.stopped.Load() {
			return
		}
		v.sleep()
	}
}

// RunIteration 执行一次迭代并发送其样本
func (v *VirtualUser) RunIteration(iteration int) *types.IterationResult {
	res := &types.IterationResult{
		VU:        v.cfg.ID,
		Iteration: iteration,
		StartTime: time.Now(),
	}
	v.cfg.Script.Run(v.cfg.Env, res)
	res.Duration = time.Since(res.StartTime)
	v.iterations.Add(1)

	v.emit(res)
	return res
}

func (v *VirtualUser) sleep() {
	d := v.sleepDuration()
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-v.stopCh:
	}
}

func (v *VirtualUser) sleepDuration() time.Duration {
	p := v.cfg.Sleep
	if p.Max <= p.Min {
		return p.Min
	}
	return p.Min + time.Duration(v.rnd.Int64N(int64(p.Max-p.Min)))
}

// emit 把迭代结果转换为样本并发送
func (v *VirtualUser) emit(res *types.IterationResult) {
	if v.cfg.Samples == nil || v.cfg.Metrics == nil {
		return
	}
	b := v.cfg.Metrics
	now := time.Now()
	samples := make(metrics.Samples, 0, len(res.Requests)*5+len(res.Checks)+len(res.Values)+2)

	add := func(m *metrics.Metric, value float64, tags map[string]string) {
		samples = append(samples, metrics.Sample{Metric: m, Time: now, Value: value, Tags: tags})
	}

	for _, req := range res.Requests {
		extra := map[string]string{
			"name":    req.Name,
			"method":  req.Method,
			"status":  strconv.Itoa(req.Status),
			"outcome": string(req.Outcome),
		}
		if req.Error != "" {
			extra["error"] = req.Error
		}
		tags := v.tags(extra)
		add(b.HTTPReqs, 1, tags)
		add(b.HTTPReqDuration, milliseconds(req.Duration), tags)
		add(b.HTTPReqFailed, boolValue(req.Outcome.RequestFailed()), tags)
		add(b.DataSent, float64(req.BytesSent), tags)
		add(b.DataReceived, float64(req.BytesReceived), tags)
	}

	for _, check := range res.Checks {
		add(b.Checks, boolValue(check.Passed), v.tags(map[string]string{"check": check.Name}))
	}

	for _, value := range res.Values {
		var m *metrics.Metric
		if v.cfg.Registry != nil {
			m = v.cfg.Registry.Get(value.Metric)
		}
		if m == nil {
			if !v.warned[value.Metric] {
				v.warned[value.Metric] = true
				logger.Warn("value for unregistered metric dropped", "vu", v.cfg.ID, "metric", value.Metric)
			}
			continue
		}
		add(m, value.Value, v.tags(nil))
	}

	iterTags := v.tags(nil)
	add(b.Iterations, 1, iterTags)
	add(b.IterationDuration, milliseconds(res.Duration), iterTags)

	v.cfg.Samples <- samples
}

func (v *VirtualUser) tags(extra map[string]string) map[string]string {
	if len(v.cfg.Tags) == 0 {
		return extra
	}
	out := make(map[string]string, len(v.cfg.Tags)+len(extra))
	for k, val := range v.cfg.Tags {
		out[k] = val
	}
	for k, val := range extra {
		out[k] = val
	}
	return out
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
