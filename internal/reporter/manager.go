package reporter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"yqhp/loadgen/pkg/logger"
	"yqhp/loadgen/pkg/types"
)

// Manager 按添加顺序把汇总报告交给所有报告器。
type Manager struct {
	reporters []Reporter
	mu        sync.RWMutex
}

// NewManager creates a new reporter manager.
func NewManager(reporters ...Reporter) *Manager {
	return &Manager{
		reporters: reporters,
	}
}

// AddReporter adds a reporter to the manager.
func (m *Manager) AddReporter(reporter Reporter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reporters = append(m.reporters, reporter)
}

// Report sends the report to every reporter. A failing reporter does not
// stop the ones after it; all failures are returned together.
func (m *Manager) Report(ctx context.Context, report *types.SummaryReport) error {
	if report == nil {
		return fmt.Errorf("summary report is nil")
	}

	var errs []error
	for _, reporter := range m.GetReporters() {
		if err := reporter.Report(ctx, report); err != nil {
			logger.Error("reporter failed", "reporter", reporter.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", reporter.Name(), err))
			continue
		}
		logger.Debug("reporter done", "reporter", reporter.Name())
	}
	return errors.Join(errs...)
}

// GetReporters returns all registered reporters.
func (m *Manager) GetReporters() []Reporter {
	m.mu.RLock()
	defer m.mu.RUnlock()

	reporters := make([]Reporter, len(m.reporters))
	copy(reporters, m.reporters)
	return reporters
}

// GetReporterCount returns the number of registered reporters.
func (m *Manager) GetReporterCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.reporters)
}
