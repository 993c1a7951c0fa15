package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"yqhp/loadgen/internal/config"
	"yqhp/loadgen/internal/reporter"
	"yqhp/loadgen/pkg/runner"
	"yqhp/loadgen/pkg/types"
)

var (
	// run 命令的 flags
	runBaseURL       string
	runOutputs       []string
	runSummaryExport string
	runNoSummary     bool
	runNoColor       bool
	runSets          []string
)

// runCmd 是 run 子命令
var runCmd = &cobra.Command{
	Use:   "run [run.yaml]",
	Short: "执行一次负载测试",
	Long: `按运行配置执行一次负载测试。

配置优先级：默认值 < YAML 文件 < 环境变量 (BASE_URL, LOADGEN_*) < 命令行参数。
省略文件时使用默认的日志摄取场景。

退出码：
  0   所有阈值通过
  99  至少一个阈值未通过
  1   配置或启动错误`,
	Example: `  # 基本执行
  loadgen run run.yaml

  # 覆盖被测服务地址
  loadgen run --base-url http://localhost:8080 run.yaml

  # 覆盖任意配置项（按 YAML 路径）
  loadgen run --set http.timeout=5s --set sleep.max=2s run.yaml

  # 输出原始样本到文件
  loadgen run --out json=samples.ndjson run.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLoadTest,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runBaseURL, "base-url", "", "被测服务地址 (覆盖 base_url)")
	runCmd.Flags().StringArrayVarP(&runOutputs, "out", "o", nil, "样本输出目标 (可多次指定)，格式: type=config")
	runCmd.Flags().StringVar(&runSummaryExport, "summary-export", "", "JSON 汇总文件路径 (覆盖 summary.export)")
	runCmd.Flags().BoolVar(&runNoSummary, "no-summary", false, "不输出文本汇总")
	runCmd.Flags().BoolVar(&runNoColor, "no-color", false, "文本汇总不使用颜色")
	runCmd.Flags().StringArrayVar(&runSets, "set", nil, "覆盖配置项，格式: path=value (可多次指定)")
}

func runLoadTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(args, runOverrides())
	if err != nil {
		return &ExitError{Code: ExitCodeError, Err: err}
	}
	if len(runOutputs) > 0 {
		cfg.Outputs = append(cfg.Outputs, runOutputs...)
	}
	if runNoSummary {
		cfg.Summary.Quiet = true
	}
	if runNoColor {
		cfg.Summary.NoColor = true
	}

	setupLogging(cfg.Logging)

	out := cmd.OutOrStdout()
	if !quiet && !cfg.Summary.Quiet {
		printRunInfo(out, cfg)
	}

	report, err := runner.Run(cmd.Context(), cfg)
	if err != nil {
		return &ExitError{Code: ExitCodeError, Err: err}
	}

	reporters := reporter.FromConfig(cfg.Summary, out, isTerminal(out))
	if err := reporters.Report(cmd.Context(), report); err != nil {
		return &ExitError{Code: ExitCodeError, Err: fmt.Errorf("report summary: %w", err)}
	}

	if !report.Passed {
		return &ExitError{Code: ExitThresholdsFailed, Err: ErrThresholdsFailed}
	}
	return nil
}

// runOverrides 把 run 的 flags 转换为按 YAML 路径的覆盖项
func runOverrides() map[string]string {
	overrides := make(map[string]string)
	for _, kv := range runSets {
		key, value, _ := strings.Cut(kv, "=")
		overrides[strings.TrimSpace(key)] = value
	}
	if runBaseURL != "" {
		overrides["base_url"] = runBaseURL
	}
	if runSummaryExport != "" {
		overrides["summary.export"] = runSummaryExport
	}
	return overrides
}

// loadRunConfig 加载并校验运行配置，args 为空时只使用默认值、环境变量和覆盖项
func loadRunConfig(args []string, overrides map[string]string) (*config.RunConfig, error) {
	loader := config.NewLoader().WithCmdArgs(overrides)
	if len(args) > 0 {
		loader = loader.WithConfigPath(args[0])
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func printRunInfo(w io.Writer, cfg *config.RunConfig) {
	fmt.Fprintf(w, Banner, Version)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  执行器: %s\n", cfg.Executor)
	fmt.Fprintf(w, "  被测服务: %s\n", cfg.BaseURL)
	fmt.Fprintf(w, "  步骤: %s\n", strings.Join(cfg.Steps, ", "))
	fmt.Fprintf(w, "  阶段: %s\n", formatStages(cfg.Stages))
	fmt.Fprintf(w, "  最大虚拟用户数: %d, 总时长: %s\n", cfg.MaxVUs(), cfg.TotalDuration())
	if len(cfg.Outputs) > 0 {
		fmt.Fprintf(w, "  输出: %s\n", strings.Join(cfg.Outputs, ", "))
	}
	if cfg.Summary.Export != "" {
		fmt.Fprintf(w, "  汇总文件: %s\n", cfg.Summary.Export)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "执行中...")
	fmt.Fprintln(w)
}

func formatStages(stages []types.Stage) string {
	parts := make([]string, 0, len(stages))
	for _, s := range stages {
		parts = append(parts, fmt.Sprintf("%s→%d", s.Duration, s.Target))
	}
	return strings.Join(parts, ", ")
}
