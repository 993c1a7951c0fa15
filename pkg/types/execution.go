package types

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// ExecutionMode defines the execution mode.
type ExecutionMode string

const (
	// ModeRampingVUs adjusts VU count according to stages.
	ModeRampingVUs ExecutionMode = "ramping-vus"
)

// Stage defines an execution stage.
type Stage struct {
	Duration time.Duration `yaml:"duration" json:"duration"`
	Target   int           `yaml:"target" json:"target"` // Target VU count at the end of the stage
	Name     string        `yaml:"name,omitempty" json:"name,omitempty"`
}

type stageJSON struct {
	Duration string `json:"duration"`
	Target   int    `json:"target"`
	Name     string `json:"name,omitempty"`
}

// MarshalJSON encodes the duration as a Go duration string such as "30s".
func (s Stage) MarshalJSON() ([]byte, error) {
	return sonic.ConfigStd.Marshal(stageJSON{Duration: s.Duration.String(), Target: s.Target, Name: s.Name})
}

// UnmarshalJSON accepts the duration as a Go duration string.
func (s *Stage) UnmarshalJSON(data []byte) error {
	var raw stageJSON
	if err := sonic.ConfigStd.Unmarshal(data, &raw); err != nil {
		return err
	}
	d, err := time.ParseDuration(raw.Duration)
	if err != nil {
		return fmt.Errorf("invalid stage duration %q: %w", raw.Duration, err)
	}
	*s = Stage{Duration: d, Target: raw.Target, Name: raw.Name}
	return nil
}

// TotalDuration returns the cumulative duration of stages.
func TotalDuration(stages []Stage) time.Duration {
	var total time.Duration
	for _, s := range stages {
		total += s.Duration
	}
	return total
}

// MaxTarget returns the highest target across stages.
func MaxTarget(stages []Stage) int {
	max := 0
	for _, s := range stages {
		if s.Target > max {
			max = s.Target
		}
	}
	return max
}

// Threshold defines a performance threshold.
type Threshold struct {
	Metric    string `yaml:"metric" json:"metric"`
	Condition string `yaml:"condition" json:"condition"`
}

// ThresholdResult contains the result of threshold evaluation.
type ThresholdResult struct {
	Metric      string  `json:"metric"`
	Expression  string  `json:"expression"`
	Passed      bool    `json:"passed"`
	ActualValue float64 `json:"actual_value"`
	Error       string  `json:"error,omitempty"`
}
