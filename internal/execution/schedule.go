package execution

import (
	"fmt"
	"time"

	"yqhp/loadgen/pkg/types"
)

// TargetVUsAt returns the target VU count at elapsed time into the run.
// Within a stage the target is interpolated linearly from the previous
// stage's target (0 before the first stage) to the stage's own target.
// A zero-duration stage jumps to its target immediately. Once elapsed
// reaches the total duration the last stage's target is returned with
// finished set.
func TargetVUsAt(stages []types.Stage, elapsed time.Duration) (target int, finished bool) {
	_, target, finished = stageAt(stages, elapsed)
	return target, finished
}

// stageAt is TargetVUsAt plus the index of the active stage.
func stageAt(stages []types.Stage, elapsed time.Duration) (index, target int, finished bool) {
	if len(stages) == 0 {
		return 0, 0, true
	}
	if elapsed < 0 {
		elapsed = 0
	}

	from := 0
	var offset time.Duration
	for i, stage := range stages {
		if stage.Duration <= 0 {
			from = stage.Target
			continue
		}
		if elapsed < offset+stage.Duration {
			progress := float64(elapsed-offset) / float64(stage.Duration)
			return i, from + int(float64(stage.Target-from)*progress), false
		}
		offset += stage.Duration
		from = stage.Target
	}

	last := len(stages) - 1
	return last, stages[last].Target, true
}

// ValidateStages checks that there is at least one stage and that no stage
// has a negative duration or target.
func ValidateStages(stages []types.Stage) error {
	if len(stages) == 0 {
		return ErrNoStages
	}
	for i, s := range stages {
		if s.Duration < 0 {
			return fmt.Errorf("%w: stage %d has negative duration %s", ErrInvalidStage, i, s.Duration)
		}
		if s.Target < 0 {
			return fmt.Errorf("%w: stage %d has negative target %d", ErrInvalidStage, i, s.Target)
		}
	}
	return nil
}
