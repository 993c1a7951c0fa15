package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"yqhp/loadgen/internal/config"
	"yqhp/loadgen/internal/metrics/engine"
	"yqhp/loadgen/internal/scenario"
	"yqhp/loadgen/pkg/metrics"
)

var validatePrint bool

// validateCmd 校验运行配置，不发送任何请求
var validateCmd = &cobra.Command{
	Use:   "validate [run.yaml]",
	Short: "校验运行配置",
	Long: `加载并校验运行配置，包括阈值引用的指标是否存在。不会发送任何请求。
配置无效时退出码为 1。`,
	Example: `  loadgen validate run.yaml

  # 打印合并默认值和覆盖项之后的最终配置
  loadgen validate --print run.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validatePrint, "print", false, "打印最终生效的配置 (YAML)")
	validateCmd.Flags().StringArrayVar(&runSets, "set", nil, "覆盖配置项，格式: path=value (可多次指定)")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(args, runOverrides())
	if err != nil {
		return &ExitError{Code: ExitCodeError, Err: err}
	}
	setupLogging(cfg.Logging)

	if err := checkThresholdMetrics(cfg); err != nil {
		return &ExitError{Code: ExitCodeError, Err: err}
	}

	out := cmd.OutOrStdout()
	if validatePrint {
		data, err := cfg.Serialize()
		if err != nil {
			return &ExitError{Code: ExitCodeError, Err: err}
		}
		fmt.Fprint(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "配置有效: %d 个阶段, 最大 %d 个虚拟用户, 总时长 %s, %d 个阈值\n",
		len(cfg.Stages), cfg.MaxVUs(), cfg.TotalDuration(), len(cfg.Thresholds))
	return nil
}

// checkThresholdMetrics 确认阈值引用的指标都由内置指标或脚本声明
func checkThresholdMetrics(cfg *config.RunConfig) error {
	script, err := scenario.Build(cfg.Steps)
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrConfig, err)
	}
	registry := metrics.NewRegistry()
	metrics.RegisterBuiltinMetrics(registry)
	if err := script.RegisterMetrics(registry); err != nil {
		return fmt.Errorf("%w: %w", config.ErrConfig, err)
	}
	if _, err := engine.ValidateThresholds(registry, cfg.Thresholds); err != nil {
		return fmt.Errorf("%w: %w", config.ErrConfig, err)
	}
	return nil
}
