package execution

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"yqhp/loadgen/pkg/logger"
	"yqhp/loadgen/pkg/types"
)

// DefaultTickInterval 是默认的调度间隔。
const DefaultTickInterval = 50 * time.Millisecond

// RampingVUsMode implements the ramping-vus execution mode.
// On every tick it computes the interpolated target and grows or shrinks the
// VU pool to match. Shrinking stops the most recently started VUs first; a
// stopped VU finishes its current iteration before exiting.
type RampingVUsMode struct {
	*BaseMode

	// VU management
	activeVUs  atomic.Int32
	iterations atomic.Int64

	// Synchronization
	wg     sync.WaitGroup
	pool   []VU
	nextID int
	peak   int
	vuMu   sync.Mutex

	// Stage tracking
	currentStage atomic.Int32
}

// NewRampingVUsMode creates a new ramping VUs mode.
func NewRampingVUsMode() *RampingVUsMode {
	return &RampingVUsMode{
		BaseMode: NewBaseMode(types.ModeRampingVUs),
	}
}

// Run starts the ramping VUs execution and blocks until the last stage ends
// (or ctx is cancelled, or Stop is called) and every VU has exited.
func (m *RampingVUsMode) Run(ctx context.Context, config *ModeConfig) error {
	if config == nil {
		return ErrNilConfig
	}
	if config.NewVU == nil {
		return ErrNilVUFactory
	}
	if err := ValidateStages(config.Stages); err != nil {
		return err
	}
	if m.GetState().Running {
		return ErrModeAlreadyRunning
	}

	interval := config.TickInterval
	if interval <= 0 {
		interval = DefaultTickInterval
	}

	start := time.Now()
	m.SetState(func(s *ModeState) {
		s.Running = true
		s.StartTime = start
	})

	defer func() {
		m.stopAllVUs(config)
		m.wg.Wait()
		m.SetState(func(s *ModeState) {
			s.Running = false
			s.ActiveVUs = 0
			s.ElapsedTime = time.Since(s.StartTime)
			s.CompletedIterations = m.iterations.Load()
		})
		m.SignalDone()
	}()

	logger.Debug("ramping-vus started",
		"stages", len(config.Stages),
		"duration", types.TotalDuration(config.Stages).String(),
	)

	idx, target, finished := stageAt(config.Stages, 0)
	if finished {
		return nil
	}
	m.reconcile(config, idx, target)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.stopCh:
			return nil
		case <-ticker.C:
		}

		idx, target, finished = stageAt(config.Stages, time.Since(start))
		if finished {
			return nil
		}
		m.reconcile(config, idx, target)
	}
}

// reconcile grows or shrinks the pool to target.
func (m *RampingVUsMode) reconcile(config *ModeConfig, stageIdx, target int) {
	if prev := int(m.currentStage.Swap(int32(stageIdx))); prev != stageIdx {
		logger.Debug("stage changed", "stage", stageIdx, "target", target)
	}

	m.vuMu.Lock()
	before := len(m.pool)
	for len(m.pool) < target {
		m.nextID++
		id := m.nextID
		v := config.NewVU(id)
		m.pool = append(m.pool, v)
		m.wg.Add(1)
		m.activeVUs.Add(1)
		if config.OnVUStart != nil {
			config.OnVUStart(id)
		}
		go m.runVU(config, v, id)
	}
	for len(m.pool) > target {
		last := len(m.pool) - 1
		m.pool[last].Stop()
		m.pool[last] = nil
		m.pool = m.pool[:last]
	}
	size := len(m.pool)
	if size > m.peak {
		m.peak = size
	}
	peak := m.peak
	m.vuMu.Unlock()

	m.SetState(func(s *ModeState) {
		s.TargetVUs = target
		s.ActiveVUs = int(m.activeVUs.Load())
		s.PeakVUs = peak
		s.CurrentStage = stageIdx
		s.CompletedIterations = m.iterations.Load()
		s.ElapsedTime = time.Since(s.StartTime)
	})

	if size != before && config.OnVUsChanged != nil {
		config.OnVUsChanged(size)
	}
}

// runVU runs a single VU until it is stopped.
func (m *RampingVUsMode) runVU(config *ModeConfig, v VU, id int) {
	defer func() {
		m.activeVUs.Add(-1)
		if config.OnVUStop != nil {
			config.OnVUStop(id)
		}
		m.wg.Done()
	}()

	v.Run(func() {
		m.iterations.Add(1)
	})
}

// stopAllVUs marks every pooled VU for stop.
func (m *RampingVUsMode) stopAllVUs(config *ModeConfig) {
	m.vuMu.Lock()
	had := len(m.pool)
	for i, v := range m.pool {
		v.Stop()
		m.pool[i] = nil
	}
	m.pool = m.pool[:0]
	m.vuMu.Unlock()

	if had > 0 && config.OnVUsChanged != nil {
		config.OnVUsChanged(0)
	}
}

// Stop requests the mode to stop and waits for Run to return.
func (m *RampingVUsMode) Stop(ctx context.Context) error {
	m.RequestStop()
	return m.WaitDone(ctx)
}

// GetCurrentStage returns the current stage index.
func (m *RampingVUsMode) GetCurrentStage() int {
	return int(m.currentStage.Load())
}

// ActiveVUs returns the number of VUs that have not exited yet.
func (m *RampingVUsMode) ActiveVUs() int {
	return int(m.activeVUs.Load())
}

// PeakVUs returns the largest pool size reached so far.
func (m *RampingVUsMode) PeakVUs() int {
	m.vuMu.Lock()
	defer m.vuMu.Unlock()
	return m.peak
}

// Iterations returns the number of completed iterations.
func (m *RampingVUsMode) Iterations() int64 {
	return m.iterations.Load()
}
