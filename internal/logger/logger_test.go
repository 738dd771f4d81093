package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesCategoryAndMessage(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	l := New(&buf)

	l.Info("order", "fulfilled 2 units")
	l.LogOrder("CREATE", 42, "ok")

	out := buf.String()
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "[ORDER")
	assert.Contains(t, out, "fulfilled 2 units")
	assert.Contains(t, out, "[CREATE] order=42 ok")
	assert.Contains(t, out, "logger_test.go")
}

func TestLoggerRespectsMinLevel(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	l := New(&buf)
	l.minLevel = WARN

	l.Debug("x", "hidden")
	l.Info("x", "hidden")
	l.Warn("x", "shown")

	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
	assert.Contains(t, buf.String(), "shown")
}

func TestLevelNames(t *testing.T) {
	assert.Equal(t, "WARN", WARN.String())
	assert.Equal(t, "INFO", LogLevel(42).String())

	t.Setenv("LOG_LEVEL", "error")
	assert.Equal(t, ERROR, levelFromEnv())
	t.Setenv("LOG_LEVEL", "chatty")
	assert.Equal(t, INFO, levelFromEnv())
}

func TestNewLoggerWritesJSONFile(t *testing.T) {
	color.NoColor = true
	dir := t.TempDir()
	t.Setenv("LOG_DIR", dir)

	l := NewLogger("svc")
	l.LogArtifact("ISSUE", 9, "stored")
	l.Close()

	files, err := filepath.Glob(filepath.Join(dir, "svc-*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	raw, err := os.ReadFile(files[0])
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	var last LogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &last))
	assert.Equal(t, "svc", last.Service)
	assert.Equal(t, "ARTIFACT", last.Category)
	assert.Equal(t, "[ISSUE] item=9 stored", last.Message)
}
