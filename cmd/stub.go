package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"yqhp/loadgen/internal/config"
	"yqhp/loadgen/internal/stub"
	"yqhp/loadgen/pkg/logger"
)

var (
	// stub 命令的 flags
	stubListen    string
	stubFailEvery int
	stubFailRatio float64
	stubSeed      uint64
	stubLatency   time.Duration
	stubReviews   int
	stubAccessLog bool
)

// stubCmd 启动本地桩服务
var stubCmd = &cobra.Command{
	Use:   "stub",
	Short: "启动被测服务的本地桩",
	Long: `启动一个实现 /health、/、/metrics、/api/logs、/api/correlations 和
/api/seca-reviews 的本地桩服务，用于空跑和调试运行配置。
/api/logs 可以按固定间隔或随机比例返回 500。`,
	Example: `  loadgen stub --listen :8080

  # 每 20 个日志请求失败一次
  loadgen stub --listen 127.0.0.1:8080 --fail-every 20`,
	Args: cobra.NoArgs,
	RunE: runStub,
}

func init() {
	rootCmd.AddCommand(stubCmd)

	defaults := stub.DefaultConfig()
	stubCmd.Flags().StringVar(&stubListen, "listen", defaults.Address, "监听地址")
	stubCmd.Flags().IntVar(&stubFailEvery, "fail-every", 0, "每第 N 个日志请求返回 500，0 表示不启用")
	stubCmd.Flags().Float64Var(&stubFailRatio, "fail-ratio", 0, "日志请求随机返回 500 的概率")
	stubCmd.Flags().Uint64Var(&stubSeed, "seed", defaults.Seed, "随机失败的种子")
	stubCmd.Flags().DurationVar(&stubLatency, "latency", 0, "每个请求额外的延迟")
	stubCmd.Flags().IntVar(&stubReviews, "reviews", defaults.Reviews, "初始评审记录条数")
	stubCmd.Flags().BoolVar(&stubAccessLog, "access-log", false, "输出访问日志")
}

func runStub(cmd *cobra.Command, _ []string) error {
	setupLogging(config.DefaultConfig().Logging)

	if !config.IsValidAddress(stubListen) {
		return &ExitError{Code: ExitCodeError, Err: fmt.Errorf("%w: invalid listen address %q", config.ErrConfig, stubListen)}
	}

	cfg := &stub.Config{
		Address:   stubListen,
		FailEvery: stubFailEvery,
		FailRatio: stubFailRatio,
		Seed:      stubSeed,
		Latency:   stubLatency,
		Reviews:   stubReviews,
		AccessLog: stubAccessLog,
	}
	if err := cfg.Validate(); err != nil {
		return &ExitError{Code: ExitCodeError, Err: fmt.Errorf("%w: %w", config.ErrConfig, err)}
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	server := stub.NewServer(cfg)
	if err := server.StartWithContext(ctx); err != nil && ctx.Err() == nil {
		return &ExitError{Code: ExitCodeError, Err: err}
	}
	logger.Info("stub service stopped")
	return nil
}
