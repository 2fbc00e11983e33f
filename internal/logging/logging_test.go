package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("chatty")
	assert.Error(t, err)
}

func TestSetupWritesRotatingFile(t *testing.T) {
	dir := t.TempDir()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC))
	var stdout bytes.Buffer

	l, err := Setup(Options{
		File:        filepath.Join(dir, "kiosk_scanner.log"),
		Level:       "info",
		Format:      "json",
		MaxSizeMB:   10,
		BackupCount: 5,
		Stdout:      &stdout,
		Clock:       clock,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	l.Logger.Debug("hidden")
	l.Logger.Info("capture.requested", "finger", "right_index")

	data, err := os.ReadFile(filepath.Join(dir, "kiosk_scanner.log.20261019"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"capture.requested"`)
	assert.NotContains(t, string(data), "hidden")
	assert.Equal(t, data, stdout.Bytes(), "stdout and file carry the same records")

	first := bytes.SplitN(stdout.Bytes(), []byte("\n"), 2)[0]
	var rec map[string]any
	require.NoError(t, json.Unmarshal(first, &rec))
	assert.Equal(t, "logger.initialized", rec["msg"])
}

func TestSetupWithoutFile(t *testing.T) {
	var stdout bytes.Buffer
	l, err := Setup(Options{Format: "text", Debug: true, Stdout: &stdout})
	require.NoError(t, err)
	assert.Empty(t, l.Path)
	assert.NoError(t, l.Close())

	l.Logger.Debug("scanner.session.opened")
	assert.Contains(t, stdout.String(), "msg=scanner.session.opened")
}

func TestAutoFormatIsJSONOffTerminal(t *testing.T) {
	var stdout bytes.Buffer
	_, err := Setup(Options{Format: "auto", Stdout: &stdout})
	require.NoError(t, err)
	assert.True(t, json.Valid(bytes.TrimSpace(stdout.Bytes())))
}

func TestSetupRejectsLevel(t *testing.T) {
	_, err := Setup(Options{Level: "loud"})
	assert.Error(t, err)
}
