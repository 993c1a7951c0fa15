// Package cmd 提供 loadgen CLI 的命令实现
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"yqhp/loadgen/internal/config"
	"yqhp/loadgen/pkg/logger"
)

const (
	// Version 是当前版本号
	Version = "0.1.0"
	// Banner 是启动时显示的 ASCII 艺术
	Banner = `
          /\      |‾‾| loadgen %s
     /\  /  \     |  |
    /  \/    \    |  |
   /          \   |  |
  / __________ \  |__|
`
)

// 进程退出码
const (
	ExitOK               = 0
	ExitCodeError        = 1
	ExitThresholdsFailed = 99
)

// ErrThresholdsFailed 至少一个阈值未通过
var ErrThresholdsFailed = errors.New("some thresholds have failed")

// ExitError 携带进程退出码的错误
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

var (
	// 全局配置
	debug     bool
	quiet     bool
	logFormat string
	logFile   string
)

// rootCmd 是根命令
var rootCmd = &cobra.Command{
	Use:   "loadgen",
	Short: "按阶段调度虚拟用户的负载测试引擎",
	Long: `loadgen 按配置的阶段调整虚拟用户数量，持续向被测服务发送脚本化的请求，
汇总内置和自定义指标，按阈值判定通过与否，并输出可复现的汇总报告。`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute 执行根命令并返回进程退出码
func Execute() int {
	err := rootCmd.Execute()
	defer logger.Sync()
	return exitCode(rootCmd.ErrOrStderr(), err)
}

// exitCode 把命令错误映射为退出码：阈值失败为 99，其余错误为 1。
func exitCode(w io.Writer, err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if !errors.Is(exitErr.Err, ErrThresholdsFailed) {
			fmt.Fprintln(w, "Error:", exitErr.Err)
		}
		return exitErr.Code
	}
	fmt.Fprintln(w, "Error:", err)
	return ExitCodeError
}

func init() {
	// 全局 flags
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "启用调试日志")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "静默模式，只输出警告和错误")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "日志格式 (console, json)，覆盖配置文件")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "日志文件路径，覆盖配置文件")

	// 禁用默认的 completion 命令
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// 自定义版本模板
	rootCmd.SetVersionTemplate(fmt.Sprintf(Banner, Version) + "\n")
}

// GetRootCmd 返回根命令（用于测试）
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// setupLogging 按配置初始化日志，全局 flags 优先
func setupLogging(cfg config.LoggingConfig) {
	lc := &logger.Config{
		Level:    cfg.Level,
		Format:   cfg.Format,
		FilePath: cfg.File,
	}
	if logFormat != "" {
		lc.Format = logFormat
	}
	if logFile != "" {
		lc.FilePath = logFile
	}
	switch {
	case debug:
		lc.Level = "debug"
	case quiet:
		lc.Level = "warn"
	}
	logger.Init(lc)
}

// isTerminal 判断 w 是否是终端
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
