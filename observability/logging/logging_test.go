package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupEmitsRenamedKeys(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := Setup("hlbridge", "test", Options{Writer: &buf, RunID: "run-1"})
	defer closer.Close()

	logger.Info("deposit submitted", slog.String("tx_hash", "0xabc"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "deposit submitted", line["message"])
	require.Equal(t, "INFO", line["severity"])
	require.Equal(t, "hlbridge", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, "run-1", line["run_id"])
	require.Contains(t, line, "timestamp")
}

func TestSetupTeesToRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hlbridge.log")
	var buf bytes.Buffer
	logger, closer := Setup("hlbridge", "", Options{Writer: &buf, File: path, Level: slog.LevelDebug})
	logger.Debug("hello")
	require.NoError(t, closer.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"message":"hello"`)
	require.Contains(t, buf.String(), `"message":"hello"`)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestMasking(t *testing.T) {
	key := "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	require.Equal(t, "0x4c08…2318", MaskKey(key))
	require.Equal(t, "****", MaskKey("0x12"))

	require.Equal(t, RedactedValue, MaskField("secret_key", key).Value.String())
	require.Equal(t, "10", MaskField("amount", "10").Value.String())
	require.Equal(t, "0x1234…", Truncate("0x1234567890", 6))
	require.Equal(t, "0xabc", MaskField("run_id", "0xabc").Value.String())
}
