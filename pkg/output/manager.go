package output

import (
	"sync"
	"time"

	"yqhp/loadgen/pkg/logger"
	"yqhp/loadgen/pkg/metrics"
)

const (
	// sendBatchToOutputsRate 批量发送到输出的间隔
	sendBatchToOutputsRate = 50 * time.Millisecond
	// defaultSamplesChannelSize 默认样本通道大小
	defaultSamplesChannelSize = 1000
)

// Manager 管理多个输出插件
type Manager struct {
	outputs []Output
	mu      sync.RWMutex
}

// NewManager 创建新的输出管理器
func NewManager(outputs ...Output) *Manager {
	return &Manager{
		outputs: outputs,
	}
}

// Start 启动所有输出并开始分发指标。
// wait 在样本通道关闭且剩余样本全部分发后返回；
// finish 等待分发结束后停止所有输出。
func (m *Manager) Start(samplesChan chan metrics.SampleContainer) (wait func(), finish func(error), err error) {
	if err := m.startOutputs(); err != nil {
		return nil, nil, err
	}

	wg := &sync.WaitGroup{}
	wg.Add(1)

	sendToOutputs := func(sampleContainers []metrics.SampleContainer) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		for _, out := range m.outputs {
			out.AddMetricSamples(sampleContainers)
		}
	}

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(sendBatchToOutputsRate)
		defer ticker.Stop()

		buffer := make([]metrics.SampleContainer, 0, cap(samplesChan))
		for {
			select {
			case sampleContainer, ok := <-samplesChan:
				if !ok {
					// 通道关闭，发送剩余的样本
					if len(buffer) > 0 {
						sendToOutputs(buffer)
					}
					return
				}
				buffer = append(buffer, sampleContainer)
			case <-ticker.C:
				if len(buffer) > 0 {
					sendToOutputs(buffer)
					buffer = make([]metrics.SampleContainer, 0, cap(buffer))
				}
			}
		}
	}()

	var once sync.Once
	wait = wg.Wait
	finish = func(runErr error) {
		once.Do(func() {
			wait()
			m.stopOutputs(runErr)
		})
	}

	return wait, finish, nil
}

// startOutputs 启动所有输出，任一失败时停止已启动的输出
func (m *Manager) startOutputs() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, out := range m.outputs {
		if err := out.Start(); err != nil {
			for j := 0; j < i; j++ {
				_ = m.outputs[j].Stop()
			}
			return err
		}
		logger.Debug("output started", "output", out.Description())
	}
	return nil
}

// stopOutputs 停止所有输出
func (m *Manager) stopOutputs(runErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := RunStatus{Status: "completed"}
	if runErr != nil {
		status.Status = "failed"
		status.Error = runErr
	}

	for _, out := range m.outputs {
		out.SetRunStatus(status)
		if err := out.Stop(); err != nil {
			logger.Error("stop output failed", "output", out.Description(), "error", err)
		}
	}
}

// AddOutput 添加输出（必须在 Start 之前调用）
func (m *Manager) AddOutput(out Output) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs = append(m.outputs, out)
}

// GetOutputs 获取所有输出
func (m *Manager) GetOutputs() []Output {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]Output, len(m.outputs))
	copy(result, m.outputs)
	return result
}

// NewSamplesChannel 创建新的样本通道。发送方在通道满时阻塞，样本不会被丢弃。
func NewSamplesChannel(size int) chan metrics.SampleContainer {
	if size <= 0 {
		size = defaultSamplesChannelSize
	}
	return make(chan metrics.SampleContainer, size)
}
