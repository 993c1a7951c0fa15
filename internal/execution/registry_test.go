package execution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/loadgen/pkg/types"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	assert.NotNil(t, r)
	assert.Equal(t, []types.ExecutionMode{types.ModeRampingVUs}, r.List())
	assert.True(t, r.Has(types.ModeRampingVUs))
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry()

	mode, err := r.Get(types.ModeRampingVUs)
	require.NoError(t, err)
	assert.Equal(t, types.ModeRampingVUs, mode.Name())

	_, err = r.Get("constant-vus")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestRegistry_GetOrDefault(t *testing.T) {
	mode, err := GetModeOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, types.ModeRampingVUs, mode.Name())
}

func TestRegistry_GetReturnsFreshInstance(t *testing.T) {
	r := NewRegistry()
	a, err := r.Get(types.ModeRampingVUs)
	require.NoError(t, err)
	b, err := r.Get(types.ModeRampingVUs)
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}
