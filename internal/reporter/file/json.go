// Package file writes the JSON summary artifact.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"

	"yqhp/loadgen/pkg/logger"
	"yqhp/loadgen/pkg/types"
)

// MarshalJSON encodes report as indented JSON with sorted map keys, followed
// by a newline. Identical reports always produce identical bytes.
func MarshalJSON(report *types.SummaryReport) ([]byte, error) {
	if report == nil {
		return nil, fmt.Errorf("summary report is nil")
	}
	data, err := sonic.ConfigStd.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("编码汇总报告失败: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteJSON writes the report to path. The file is written to a temporary
// sibling first and renamed, so path never holds a partial document.
func WriteJSON(path string, report *types.SummaryReport) error {
	data, err := MarshalJSON(report)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("写入汇总报告失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("写入汇总报告失败: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("设置文件权限失败: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("保存汇总报告失败: %w", err)
	}
	return nil
}

// Reporter 把 JSON 汇总写到文件
type Reporter struct {
	path string
}

// NewReporter creates a JSON file reporter.
func NewReporter(path string) *Reporter {
	return &Reporter{path: path}
}

// Name returns the reporter name.
func (r *Reporter) Name() string {
	return "json"
}

// Path returns the target file.
func (r *Reporter) Path() string {
	return r.path
}

// Report writes the summary file.
func (r *Reporter) Report(_ context.Context, report *types.SummaryReport) error {
	if err := WriteJSON(r.path, report); err != nil {
		return err
	}
	logger.Info("summary written", "path", r.path)
	return nil
}
