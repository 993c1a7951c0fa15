package execution

import (
	"context"
	"sync"
	"time"

	"yqhp/loadgen/pkg/types"
)

// Mode 定义执行模式的接口。
// 每种模式控制 VU 的管理方式和迭代的执行方式。
type Mode interface {
	// Name 返回执行模式的名称。
	Name() types.ExecutionMode

	// Run 使用给定配置启动执行模式。
	// 阻塞直到所有 VU 退出。
	Run(ctx context.Context, config *ModeConfig) error

	// Stop 请求提前结束并等待 Run 返回。
	Stop(ctx context.Context) error

	// GetState 返回当前执行状态。
	GetState() *ModeState
}

// VU 是调度器管理的虚拟用户。
type VU interface {
	// Run 循环执行迭代直到 Stop 被调用，每次迭代完成后调用 onIteration。
	Run(onIteration func())
	// Stop 标记停止；当前迭代完成后 Run 返回。
	Stop()
}

// VUFactory 创建编号为 id 的 VU，编号从 1 开始。
type VUFactory func(id int) VU

// ModeConfig 包含执行模式的配置。
type ModeConfig struct {
	// Stages 定义执行阶段。
	Stages []types.Stage

	// NewVU 创建新的 VU。
	NewVU VUFactory

	// TickInterval 是调度间隔，默认 50ms。
	TickInterval time.Duration

	// OnVUStart 在 VU 启动时调用。
	OnVUStart func(vuID int)

	// OnVUStop 在 VU 退出时调用。
	OnVUStop func(vuID int)

	// OnVUsChanged 在 VU 池大小变化时调用。
	OnVUsChanged func(vus int)
}

// ModeState 表示执行模式的当前状态。
type ModeState struct {
	// ActiveVUs 是当前仍在运行的 VU 数量（包括正在完成最后一次迭代的 VU）。
	ActiveVUs int

	// TargetVUs 是当前目标 VU 数量。
	TargetVUs int

	// PeakVUs 是运行期间 VU 池的最大规模。
	PeakVUs int

	// CurrentStage 是当前阶段的下标。
	CurrentStage int

	// CompletedIterations 是已完成的迭代次数。
	CompletedIterations int64

	// Running 表示模式是否正在运行。
	Running bool

	// StartTime 是执行开始时间。
	StartTime time.Time

	// ElapsedTime 是已执行时长。
	ElapsedTime time.Duration
}

// BaseMode 为执行模式提供通用功能。
type BaseMode struct {
	name    types.ExecutionMode
	state   ModeState
	stateMu sync.RWMutex
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewBaseMode 创建一个新的基础模式。
func NewBaseMode(name types.ExecutionMode) *BaseMode {
	return &BaseMode{
		name:   name,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Name 返回模式名称。
func (b *BaseMode) Name() types.ExecutionMode {
	return b.name
}

// GetState 返回当前状态的副本。
func (b *BaseMode) GetState() *ModeState {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	state := b.state
	return &state
}

// SetState 更新状态。
func (b *BaseMode) SetState(fn func(*ModeState)) {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	fn(&b.state)
}

// IsStopped 如果已请求停止则返回 true。
func (b *BaseMode) IsStopped() bool {
	select {
	case <-b.stopCh:
		return true
	default:
		return false
	}
}

// RequestStop 发送停止信号。
func (b *BaseMode) RequestStop() {
	select {
	case <-b.stopCh:
		// 已停止
	default:
		close(b.stopCh)
	}
}

// SignalDone 发送完成信号。
func (b *BaseMode) SignalDone() {
	select {
	case <-b.doneCh:
		// 已完成
	default:
		close(b.doneCh)
	}
}

// WaitDone 等待模式完成。
func (b *BaseMode) WaitDone(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.doneCh:
		return nil
	}
}
