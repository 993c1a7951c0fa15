// Package runner 是一次负载测试运行的统一入口，参照 k6 的 cmd/run.go：
//
//	Validate → Metrics registry → Thresholds → OutputManager
//	→ Scheduler (VUs → samplesChan → [Ingester + Summary + Outputs])
//	→ Evaluate thresholds → SummaryReport
package runner

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"yqhp/loadgen/internal/config"
	"yqhp/loadgen/internal/execution"
	"yqhp/loadgen/internal/executor"
	"yqhp/loadgen/internal/metrics/engine"
	"yqhp/loadgen/internal/output/summary"
	"yqhp/loadgen/internal/payload"
	"yqhp/loadgen/internal/scenario"
	"yqhp/loadgen/internal/vu"
	"yqhp/loadgen/pkg/logger"
	"yqhp/loadgen/pkg/metrics"
	"yqhp/loadgen/pkg/output"
	"yqhp/loadgen/pkg/types"

	// 注册 --out 可用的输出
	_ "yqhp/loadgen/pkg/output/all"
)

// DefaultProgressInterval 进度快照的默认间隔
const DefaultProgressInterval = 5 * time.Second

// Options 运行选项，零值可用
type Options struct {
	// Steps 步骤注册表，为空时使用 scenario.DefaultRegistry
	Steps *scenario.Registry

	// Outputs 除 --out 之外额外接收样本的输出
	Outputs []output.Output

	// OnProgress 每个进度间隔调用一次
	OnProgress func(point *engine.TimeSeriesPoint)

	// ProgressInterval 进度快照间隔，默认 5s
	ProgressInterval time.Duration

	// TickInterval 调度器的调整间隔，为 0 时使用默认值
	TickInterval time.Duration

	// RunID 为空时生成 UUID
	RunID string
}

// Run 使用默认选项执行一次运行
func Run(ctx context.Context, cfg *config.RunConfig) (*types.SummaryReport, error) {
	return RunWithOptions(ctx, cfg, Options{})
}

// RunWithOptions 执行一次运行并返回汇总报告。配置错误（包装 config.ErrConfig）
// 在任何 VU 启动之前返回。阈值未通过不是错误，体现在 report.Passed 中。
// ctx 取消时提前结束调度，已完成的数据仍会生成报告。
func RunWithOptions(ctx context.Context, cfg *config.RunConfig, opts Options) (*types.SummaryReport, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: run config is nil", config.ErrConfig)
	}

	steps := opts.Steps
	if steps == nil {
		steps = scenario.DefaultRegistry
	}
	if err := config.NewValidator().WithSteps(steps).Validate(cfg); err != nil {
		return nil, err
	}

	script, err := steps.Build(cfg.Steps)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfig, err)
	}

	registry := metrics.NewRegistry()
	builtin := metrics.RegisterBuiltinMetrics(registry)
	if err := script.RegisterMetrics(registry); err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfig, err)
	}

	metricsEngine := engine.NewMetricsEngine(registry)
	if err := metricsEngine.InitThresholds(cfg.Thresholds); err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfig, err)
	}

	mode, err := execution.GetModeOrDefault(cfg.Executor)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfig, err)
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	extra, err := output.CreateFromArgs(cfg.Outputs, output.Params{RunID: runID, Tags: cfg.Tags})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfig, err)
	}

	summaryOutput := summary.New()
	outputs := append([]output.Output{metricsEngine.CreateIngester(), summaryOutput}, extra...)
	outputs = append(outputs, opts.Outputs...)
	manager := output.NewManager(outputs...)

	samples := output.NewSamplesChannel(0)
	_, finish, err := manager.Start(samples)
	if err != nil {
		return nil, fmt.Errorf("start outputs: %w", err)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	client := executor.NewClient(executor.ClientConfig{
		Timeout:         cfg.HTTP.Timeout,
		MaxConnsPerHost: cfg.HTTP.MaxConnsPerHost,
		UserAgent:       cfg.HTTP.UserAgent,
	})
	defer client.Close()

	newVU := func(id int) execution.VU {
		gen := payload.NewGenerator(seed + uint64(id))
		gen.ErrorProbability = cfg.Payload.ErrorProbability
		if cfg.Payload.Service != "" {
			gen.Service = cfg.Payload.Service
		}
		return vu.New(vu.Config{
			ID:     id,
			Seed:   seed,
			Script: script,
			Env: &scenario.Env{
				BaseURL: cfg.BaseURL,
				Client:  client,
				Payload: gen,
			},
			Sleep:    vu.SleepPolicy{Min: cfg.Sleep.Min, Max: cfg.Sleep.Max},
			Metrics:  builtin,
			Registry: registry,
			Samples:  samples,
			Tags:     cfg.Tags,
		})
	}

	var active atomic.Int64
	var peak int
	modeConfig := &execution.ModeConfig{
		Stages:       cfg.Stages,
		NewVU:        newVU,
		TickInterval: opts.TickInterval,
		OnVUStart:    func(int) { active.Add(1) },
		OnVUStop:     func(int) { active.Add(-1) },
		OnVUsChanged: func(size int) {
			if size > peak {
				peak = size
			}
			now := time.Now()
			samples <- metrics.Samples{
				{Metric: builtin.VUs, Time: now, Value: float64(size), Tags: cfg.Tags},
				{Metric: builtin.VUsMax, Time: now, Value: float64(peak), Tags: cfg.Tags},
			}
		},
	}

	progressInterval := opts.ProgressInterval
	if progressInterval <= 0 {
		progressInterval = DefaultProgressInterval
	}
	metricsEngine.StartTimeSeriesCollection(progressInterval, active.Load, func(p *engine.TimeSeriesPoint) {
		logger.Info("progress",
			"elapsed", (time.Duration(p.ElapsedMs) * time.Millisecond).String(),
			"vus", p.ActiveVUs,
			"iterations", p.Iterations,
			"http_reqs", p.HTTPReqs,
			"qps", fmt.Sprintf("%.1f", p.QPS),
			"error_rate", fmt.Sprintf("%.4f", p.ErrorRate),
			"p95_ms", fmt.Sprintf("%.2f", p.P95Ms),
		)
		if opts.OnProgress != nil {
			opts.OnProgress(p)
		}
	})

	logger.Info("run started",
		"run_id", runID,
		"executor", string(mode.Name()),
		"base_url", cfg.BaseURL,
		"duration", cfg.TotalDuration().String(),
		"max_vus", cfg.MaxVUs(),
		"steps", cfg.Steps,
		"seed", seed,
	)

	start := time.Now()
	runErr := mode.Run(ctx, modeConfig)
	duration := time.Since(start)

	metricsEngine.StopTimeSeriesCollection()
	// 所有 VU 已退出，不会再有发送方
	close(samples)
	finish(runErr)

	if runErr != nil {
		return nil, fmt.Errorf("run %s: %w", mode.Name(), runErr)
	}
	if ctx.Err() != nil {
		logger.Warn("run interrupted", "run_id", runID, "elapsed", duration.String())
	}

	results, passed := metricsEngine.EvaluateThresholds(duration)
	state := mode.GetState()

	report := summary.Build(summary.State{
		RunID:      runID,
		Name:       strings.Join(cfg.Steps, "+"),
		Stages:     cfg.Stages,
		Duration:   duration,
		PeakVUs:    state.PeakVUs,
		Iterations: state.CompletedIterations,
		Snapshot:   metricsEngine.Snapshot(duration, cfg.Summary.TrendStats),
		Thresholds: results,
		Passed:     passed,
		Output:     summaryOutput,
	})

	logger.Info("run finished",
		"run_id", runID,
		"duration", duration.String(),
		"iterations", report.Iterations,
		"peak_vus", report.PeakVUs,
		"passed", passed,
		"breached_thresholds", metricsEngine.GetBreachedThresholdsCount(),
	)

	return report, nil
}
