package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultConfig(t *testing.T) {
	cfg, err := LoadFile(nil, "")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	require.Equal(t, "dispatcher", cfg.Scheduler.Executor.Type)
	require.Equal(t, 5*time.Second, cfg.Scheduler.Executor.Dispatcher.PollInterval.Duration)
	require.Equal(t, 100, cfg.Scheduler.Executor.Dispatcher.Concurrency)
	require.Equal(t, "http://localhost:8081", cfg.Scheduler.Executor.Dispatcher.URL)
	require.Equal(t, "/tmp/zkagg/cids.json", cfg.Scheduler.CircuitIDsPath)
	require.Equal(t, uint(3), cfg.Finalizer.InitialDepth)
	require.Equal(t, 5, cfg.Finalizer.SubmitMaxAttempts)
	require.Equal(t, 3*time.Second, cfg.Finalizer.SubmitRetryDelay.Duration)
	require.Equal(t, "/tmp/zkagg/submitter.keystore", cfg.Etherman.PrivateKey.Path)
	require.Equal(t, []string{"stderr"}, cfg.Log.Outputs)
}

func TestLoadFileOverrides(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "custom.toml")
	require.NoError(t, os.WriteFile(file, []byte(`
PathRWData = "/data"
[Scheduler.Executor.Dispatcher]
  Concurrency = 0
`), 0600))

	files, err := readFiles([]string{file})
	require.NoError(t, err)
	cfg, err := LoadFile(files, dir)
	require.NoError(t, err)
	require.Equal(t, 0, cfg.Scheduler.Executor.Dispatcher.Concurrency)
	require.Equal(t, "/data/jobs.sqlite", cfg.Finalizer.DBPath)
	require.FileExists(t, filepath.Join(dir, SaveConfigFileName))
}

func TestSaveConfigToString(t *testing.T) {
	cfg, err := LoadFile(nil, "")
	require.NoError(t, err)

	dump, err := SaveConfigToString(*cfg)
	require.NoError(t, err)
	require.Contains(t, dump, "[Scheduler]")
	require.Contains(t, dump, "PollInterval")
	require.Contains(t, dump, "5s")
}
