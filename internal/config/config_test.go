package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestShellFromEnv_Defaults(t *testing.T) {
	t.Setenv(EnvBaseURL, "")
	t.Setenv(EnvStartPath, "")
	t.Setenv(EnvSaveTimeout, "")
	t.Setenv(EnvNavigateTimeout, "")
	t.Setenv(EnvCheckpointSchedule, "")
	t.Setenv(EnvVerbose, "")

	c, err := ShellFromEnv()
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8000", c.BaseURL)
	require.Equal(t, "/activity/virtualpatient/", c.StartPath)
	require.Equal(t, 5*time.Second, c.SaveTimeout)
	require.Equal(t, 30*time.Second, c.NavigateTimeout)
	require.Empty(t, c.CheckpointSchedule)
	require.False(t, c.Verbose)
}

func TestShellFromEnv_Overrides(t *testing.T) {
	t.Setenv(EnvBaseURL, "https://tobacco.example.edu")
	t.Setenv(EnvSaveTimeout, "2s")
	t.Setenv(EnvNavigateTimeout, "1m")
	t.Setenv(EnvCheckpointSchedule, "@every 2m")
	t.Setenv(EnvVerbose, "true")
	t.Setenv(EnvUser, "trainee-1")

	c, err := ShellFromEnv()
	require.NoError(t, err)
	require.Equal(t, "https://tobacco.example.edu", c.BaseURL)
	require.Equal(t, 2*time.Second, c.SaveTimeout)
	require.Equal(t, time.Minute, c.NavigateTimeout)
	require.Equal(t, "@every 2m", c.CheckpointSchedule)
	require.Equal(t, "trainee-1", c.User)
	require.True(t, c.Verbose)
}

func TestShellFromEnv_Invalid(t *testing.T) {
	t.Setenv(EnvSaveTimeout, "soon")
	_, err := ShellFromEnv()
	require.ErrorContains(t, err, EnvSaveTimeout)

	t.Setenv(EnvSaveTimeout, "")
	t.Setenv(EnvBaseURL, "ftp://files")
	_, err = ShellFromEnv()
	require.ErrorContains(t, err, "unsupported scheme")

	t.Setenv(EnvBaseURL, "")
	t.Setenv(EnvStartPath, "page/1/")
	_, err = ShellFromEnv()
	require.ErrorContains(t, err, "absolute path")
}

func TestServer_Validate(t *testing.T) {
	c := &Server{}
	require.NoError(t, c.Validate())
	require.Equal(t, ":8000", c.ListenAddr)
	require.Equal(t, "sqlite", c.DBDriver)
	require.NotEmpty(t, c.DBDSN)
	require.Equal(t, 10*time.Second, c.ShutdownTimeout)
	require.EqualValues(t, 1<<20, c.MaxBodySize)

	c = &Server{DBDriver: "postgres"}
	require.ErrorContains(t, c.Validate(), EnvDBDSN)

	c = &Server{DBDriver: "mongo"}
	require.ErrorIs(t, c.Validate(), ErrInvalidDriver)
}

func TestServerFromEnv_MetricsAddr(t *testing.T) {
	t.Setenv(EnvMaxBodySize, "2048")
	t.Setenv(EnvFinalPatient, "4")
	c, err := ServerFromEnv()
	require.NoError(t, err)
	require.EqualValues(t, 2048, c.MaxBodySize)
	require.Equal(t, "4", c.FinalPatient)

	t.Setenv(EnvMetricsAddr, "")
	c, err = ServerFromEnv()
	require.NoError(t, err)
	require.Empty(t, c.MetricsAddr)
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vp.env")
	require.NoError(t, os.WriteFile(path, []byte("VP_TEST_ONLY_KEY=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("VP_TEST_ONLY_KEY") })

	require.NoError(t, LoadEnvFiles(filepath.Join(dir, "missing.env"), path))
	require.Equal(t, "from-file", os.Getenv("VP_TEST_ONLY_KEY"))
}
