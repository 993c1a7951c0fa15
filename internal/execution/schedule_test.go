package execution

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"yqhp/loadgen/pkg/types"
)

func TestTargetVUsAt(t *testing.T) {
	stages := []types.Stage{
		{Duration: 10 * time.Second, Target: 10},
		{Duration: 10 * time.Second, Target: 10},
		{Duration: 0, Target: 20},
		{Duration: 10 * time.Second, Target: 0},
	}

	tests := []struct {
		name     string
		elapsed  time.Duration
		target   int
		finished bool
	}{
		{"start", 0, 0, false},
		{"mid ramp", 5 * time.Second, 5, false},
		{"end of ramp", 10 * time.Second, 10, false},
		{"hold", 15 * time.Second, 10, false},
		{"after jump", 20 * time.Second, 20, false},
		{"ramp down", 25 * time.Second, 10, false},
		{"total", 30 * time.Second, 0, true},
		{"past total", time.Minute, 0, true},
		{"negative", -time.Second, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, finished := TargetVUsAt(stages, tt.elapsed)
			assert.Equal(t, tt.target, target)
			assert.Equal(t, tt.finished, finished)
		})
	}
}

func TestTargetVUsAt_Empty(t *testing.T) {
	target, finished := TargetVUsAt(nil, 0)
	assert.Equal(t, 0, target)
	assert.True(t, finished)
}

func TestTargetVUsAt_OnlyZeroDuration(t *testing.T) {
	target, finished := TargetVUsAt([]types.Stage{{Duration: 0, Target: 7}}, 0)
	assert.Equal(t, 7, target)
	assert.True(t, finished)
}

func TestValidateStages(t *testing.T) {
	assert.ErrorIs(t, ValidateStages(nil), ErrNoStages)
	assert.ErrorIs(t, ValidateStages([]types.Stage{{Duration: -1, Target: 1}}), ErrInvalidStage)
	assert.ErrorIs(t, ValidateStages([]types.Stage{{Duration: 1, Target: -1}}), ErrInvalidStage)
	assert.NoError(t, ValidateStages([]types.Stage{{Duration: 0, Target: 0}}))
}

func stagesGen(t *rapid.T) []types.Stage {
	n := rapid.IntRange(1, 6).Draw(t, "n")
	stages := make([]types.Stage, n)
	for i := range stages {
		stages[i] = types.Stage{
			Duration: time.Duration(rapid.IntRange(0, 5000).Draw(t, "ms")) * time.Millisecond,
			Target:   rapid.IntRange(0, 200).Draw(t, "target"),
		}
	}
	return stages
}

func TestTargetVUsAt_WithinStageBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		stages := stagesGen(t)
		total := types.TotalDuration(stages)
		elapsed := time.Duration(rapid.Int64Range(0, int64(total)+int64(time.Second)).Draw(t, "elapsed"))

		idx, target, finished := stageAt(stages, elapsed)

		if finished {
			if elapsed < total {
				t.Fatalf("finished at %s before total %s", elapsed, total)
			}
			if target != stages[len(stages)-1].Target {
				t.Fatalf("finished target %d, want last target %d", target, stages[len(stages)-1].Target)
			}
			return
		}

		from := 0
		for i := 0; i < idx; i++ {
			from = stages[i].Target
		}
		lo, hi := from, stages[idx].Target
		if lo > hi {
			lo, hi = hi, lo
		}
		if target < lo || target > hi {
			t.Fatalf("target %d outside [%d, %d] in stage %d", target, lo, hi, idx)
		}
	})
}

func TestTargetVUsAt_FinishedExactlyAtTotal(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		stages := stagesGen(t)
		total := types.TotalDuration(stages)

		_, finished := TargetVUsAt(stages, total)
		if !finished {
			t.Fatalf("not finished at total %s", total)
		}
		if total > 0 {
			if _, finished := TargetVUsAt(stages, total-time.Nanosecond); finished {
				t.Fatalf("finished before total %s", total)
			}
		}
	})
}

func TestTargetVUsAt_ZeroDurationJump(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("a zero-duration stage sets the starting point of the next ramp", prop.ForAll(
		func(jump, target int, ms int64) bool {
			d := time.Duration(ms) * time.Millisecond
			stages := []types.Stage{
				{Duration: 0, Target: jump},
				{Duration: d, Target: target},
			}
			got, finished := TargetVUsAt(stages, 0)
			return got == jump && !finished
		},
		gen.IntRange(0, 500),
		gen.IntRange(0, 500),
		gen.Int64Range(1, 60_000),
	))

	properties.TestingRun(t)
}
