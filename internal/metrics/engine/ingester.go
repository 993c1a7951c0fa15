package engine

import (
	"time"

	"yqhp/loadgen/pkg/metrics"
	"yqhp/loadgen/pkg/output"
)

const collectRate = 50 * time.Millisecond

// Compile-time check: OutputIngester implements output.Output.
var _ output.Output = &OutputIngester{}

// OutputIngester implements output.Output and feeds metric samples
// into the MetricsEngine. It sits in the same pipeline as every other
// output, so the engine sees exactly the samples the outputs see.
type OutputIngester struct {
	output.SampleBuffer
	metricsEngine   *MetricsEngine
	periodicFlusher *output.PeriodicFlusher
}

func (oi *OutputIngester) Description() string {
	return "Internal Metrics Engine Ingester"
}

func (oi *OutputIngester) Start() error {
	pf, err := output.NewPeriodicFlusher(collectRate, oi.flushMetrics)
	if err != nil {
		return err
	}
	oi.periodicFlusher = pf
	return nil
}

// Stop performs a final flush; after it returns every delivered sample
// is reflected in the engine's sinks.
func (oi *OutputIngester) Stop() error {
	if oi.periodicFlusher != nil {
		oi.periodicFlusher.Stop()
	}
	return nil
}

func (oi *OutputIngester) SetRunStatus(_ output.RunStatus) {}

// flushMetrics processes buffered samples and updates the MetricsEngine.
func (oi *OutputIngester) flushMetrics() {
	containers := oi.GetBufferedSamples()
	if len(containers) == 0 {
		return
	}

	oi.metricsEngine.MetricsLock.Lock()
	defer oi.metricsEngine.MetricsLock.Unlock()

	for _, container := range containers {
		for _, sample := range container.GetSamples() {
			m := sample.Metric
			oi.metricsEngine.MarkObserved(m)
			m.Sink.Add(sample)

			if m.Name == metrics.ChecksName {
				oi.metricsEngine.addCheckSample(sample)
			}
		}
	}
}
