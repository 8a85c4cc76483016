package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xorcare/pointer"
)

func TestLoggerFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grader")
	InitLogger(&Config{
		Level: pointer.Int(LogLevelDebug),
		Path:  pointer.String(path),
	})
	t.Cleanup(func() { InitLogger(nil) })

	Trace("hidden %d", 1)
	Info("visible %d", 2)
	err := Error("broken %s", "checker")
	require.EqualError(t, err, "broken checker")

	_, err = CreateWriter(LogLevelWarn, "interactor:").Write([]byte("stderr line"))
	require.NoError(t, err)

	data, err := os.ReadFile(path + ".log")
	require.NoError(t, err)
	require.NotContains(t, string(data), "hidden 1")
	require.Contains(t, string(data), "[INFO] visible 2")
	require.Contains(t, string(data), "[ERROR] broken checker")
	require.Contains(t, string(data), "[WARN] interactor: stderr line")

	data, err = os.ReadFile(path + ".err")
	require.NoError(t, err)
	require.Contains(t, string(data), "logger_test.go")
	require.Contains(t, string(data), "broken checker")
}
