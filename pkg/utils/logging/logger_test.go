package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitLogger_WritesConsoleAndFile(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	logger, closeFn, err := InitLogger("test", Options{Dir: dir, Console: zapcore.AddSync(&console)})
	require.NoError(t, err)

	logger.Debug("file only")
	logger.Info("both", zap.String("shift_id", "s1"))
	require.NoError(t, closeFn())

	assert.Contains(t, console.String(), "both")
	assert.NotContains(t, console.String(), "file only")

	files, err := filepath.Glob(filepath.Join(dir, "test_*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Equal(t, "both", entry["msg"])
	assert.Equal(t, "s1", entry["shift_id"])
	assert.Equal(t, "test", entry["env"])
	assert.Contains(t, entry, "timestamp")
}

func TestInitLogger_Verbose(t *testing.T) {
	var console bytes.Buffer

	logger, closeFn, err := InitLogger("dev", Options{Dir: t.TempDir(), Verbose: true, Console: zapcore.AddSync(&console)})
	require.NoError(t, err)

	logger.Debug("visible")
	require.NoError(t, closeFn())

	assert.Contains(t, console.String(), "visible")
}
