package output

import (
	"fmt"
	"sync"
	"time"

	"yqhp/loadgen/pkg/metrics"
)

// SampleBuffer is a thread-safe buffer for metric samples.
// Outputs embed it and drain it from a PeriodicFlusher.
type SampleBuffer struct {
	mu      sync.Mutex
	samples []metrics.SampleContainer
}

// AddMetricSamples buffers the given sample containers.
func (sb *SampleBuffer) AddMetricSamples(samples []metrics.SampleContainer) {
	sb.mu.Lock()
	sb.samples = append(sb.samples, samples...)
	sb.mu.Unlock()
}

// GetBufferedSamples returns all buffered samples and resets the buffer.
func (sb *SampleBuffer) GetBufferedSamples() []metrics.SampleContainer {
	sb.mu.Lock()
	samples := sb.samples
	sb.samples = nil
	sb.mu.Unlock()
	return samples
}

// PeriodicFlusher calls a flush function at a regular interval.
type PeriodicFlusher struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewPeriodicFlusher starts a PeriodicFlusher that calls flushFunc every
// interval. A final flush is performed on Stop.
func NewPeriodicFlusher(interval time.Duration, flushFunc func()) (*PeriodicFlusher, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("flush interval must be positive, got %s", interval)
	}
	pf := &PeriodicFlusher{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(pf.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				flushFunc()
			case <-pf.stop:
				flushFunc()
				return
			}
		}
	}()

	return pf, nil
}

// Stop signals the flusher to stop and waits for the final flush.
// Calling Stop more than once is a no-op.
func (pf *PeriodicFlusher) Stop() {
	pf.once.Do(func() { close(pf.stop) })
	<-pf.done
}
