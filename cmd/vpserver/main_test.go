package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"vpatient/internal/config"
)

func TestRootCmd_FlagsOverrideEnv(t *testing.T) {
	t.Setenv(config.EnvListenAddr, ":9000")
	t.Setenv(config.EnvDBDriver, "sqlite")
	t.Setenv(config.EnvDBDSN, filepath.Join(t.TempDir(), "env.db"))
	t.Setenv(config.EnvMetricsAddr, "")
	t.Setenv(config.EnvFinalPatient, "4")

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--listen", "127.0.0.1:8123", "--env-file", filepath.Join(t.TempDir(), "none.env")}))
	require.NoError(t, cmd.PreRunE(cmd, nil))

	listen, err := cmd.Flags().GetString("listen")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8123", listen)

	dsn, err := cmd.Flags().GetString("db-dsn")
	require.NoError(t, err)
	require.Equal(t, "env.db", filepath.Base(dsn))

	final, err := cmd.Flags().GetString("final-patient")
	require.NoError(t, err)
	require.Equal(t, "4", final)
}

func TestRootCmd_RejectsUnknownDriver(t *testing.T) {
	t.Setenv(config.EnvDBDriver, "")
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--db-driver", "mongo", "--env-file", filepath.Join(t.TempDir(), "none.env")}))
	require.ErrorIs(t, cmd.PreRunE(cmd, nil), config.ErrInvalidDriver)
}
