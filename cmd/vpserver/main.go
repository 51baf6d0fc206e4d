package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"vpatient/internal/config"
	"vpatient/internal/server"
	"vpatient/internal/storage"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string
	cfg := &config.Server{}

	cmd := &cobra.Command{
		Use:           "vpserver",
		Short:         "Reference server for the virtual patient activity endpoints.",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadEnvFiles(envFile); err != nil {
				return err
			}
			fromEnv, err := config.ServerFromEnv()
			if err != nil {
				return err
			}
			// Flags set on the command line win over the environment.
			flags := cmd.Flags()
			if !flags.Changed("listen") {
				cfg.ListenAddr = fromEnv.ListenAddr
			}
			if !flags.Changed("db-driver") {
				cfg.DBDriver = fromEnv.DBDriver
			}
			if !flags.Changed("db-dsn") {
				cfg.DBDSN = fromEnv.DBDSN
			}
			if !flags.Changed("metrics-addr") {
				cfg.MetricsAddr = fromEnv.MetricsAddr
			}
			if !flags.Changed("final-patient") {
				cfg.FinalPatient = fromEnv.FinalPatient
			}
			if !flags.Changed("verbose") {
				cfg.Verbose = fromEnv.Verbose
			}
			cfg.ShutdownTimeout = fromEnv.ShutdownTimeout
			cfg.MaxBodySize = fromEnv.MaxBodySize
			return cfg.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&envFile, "env-file", ".env", "optional .env file to load")
	flags.StringVar(&cfg.ListenAddr, "listen", "", "address to serve the activity endpoints on")
	flags.StringVar(&cfg.DBDriver, "db-driver", "", "activity state store driver (sqlite, postgres, mysql)")
	flags.StringVar(&cfg.DBDSN, "db-dsn", "", "activity state store DSN (sqlite: file path)")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "address for prometheus metrics, empty to disable")
	flags.StringVar(&cfg.FinalPatient, "final-patient", "", "patient whose results complete the activity")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "set debug logging level")
	return cmd
}

func run(ctx context.Context, cfg *config.Server) error {
	log := newLogger(cfg.Verbose)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.MetricsAddr != "" {
		server.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", cfg.MetricsAddr)
			if err != nil {
				log.Error("Failed to start prometheus metrics server listener", "error", err)
				return
			}
			log.Info("Prometheus metrics server listening", "address", listener.Addr().String())
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Prometheus metrics server stopped", "error", err)
			}
		}()
	}

	db, err := storage.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("failed to open activity store: %w", err)
	}
	defer db.Close()
	log.Info("Activity store ready", "driver", db.Driver())

	srv, err := server.New(log, server.Config{
		Store:           storage.NewActivityStateStore(db, nil),
		ShutdownTimeout: cfg.ShutdownTimeout,
		MaxBodySize:     cfg.MaxBodySize,
		FinalPatient:    cfg.FinalPatient,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	return srv.Serve(ctx, listener)
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}
