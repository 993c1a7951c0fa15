package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLevelFromString(t *testing.T) {
	defer SetLevelFromString("info")

	SetLevelFromString("debug")
	assert.True(t, IsDebugEnabled())

	SetLevelFromString("warn")
	assert.False(t, IsDebugEnabled())

	SetLevelFromString("bogus")
	assert.False(t, IsDebugEnabled())
}

func TestInit_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loadgen.log")
	Init(&Config{Level: "info", Format: "json", FilePath: path, MaxSize: 1})
	defer Init(nil)

	Info("run started", "stages", 3)
	Debug("should not be written")
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "run started")
	assert.Contains(t, string(data), `"stages":3`)
	assert.NotContains(t, string(data), "should not be written")
}

func TestL_LazyInit(t *testing.T) {
	assert.NotNil(t, L())
}
