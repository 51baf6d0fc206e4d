package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvBaseURL            = "VP_BASE_URL"
	EnvStartPath          = "VP_START_PATH"
	EnvSaveTimeout        = "VP_SAVE_TIMEOUT"
	EnvNavigateTimeout    = "VP_NAVIGATE_TIMEOUT"
	EnvCheckpointSchedule = "VP_CHECKPOINT_SCHEDULE"
	EnvVerbose            = "VP_VERBOSE"
	EnvUser               = "VP_USER"

	EnvListenAddr      = "VP_LISTEN_ADDR"
	EnvDBDriver        = "VP_DB_DRIVER"
	EnvDBDSN           = "VP_DB_DSN"
	EnvMetricsAddr     = "VP_METRICS_ADDR"
	EnvShutdownTimeout = "VP_SHUTDOWN_TIMEOUT"
	EnvMaxBodySize     = "VP_MAX_BODY_SIZE"
	EnvFinalPatient    = "VP_FINAL_PATIENT"
)

const (
	defaultBaseURL         = "http://localhost:8000"
	defaultStartPath       = "/activity/virtualpatient/"
	defaultSaveTimeout     = 5 * time.Second
	defaultNavigateTimeout = 30 * time.Second

	defaultListenAddr      = ":8000"
	defaultDBDriver        = "sqlite"
	defaultMetricsAddr     = ":2112"
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxBodySize     = 1 << 20 // 1 MiB
)

var ErrInvalidDriver = errors.New("invalid database driver")

// LoadEnvFiles loads .env style files into the process environment.
// Missing files are ignored; variables already set win.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load env file %s: %w", p, err)
		}
	}
	return nil
}

// Shell configures the desktop shell hosting the activity pages.
type Shell struct {
	BaseURL            string
	StartPath          string
	SaveTimeout        time.Duration
	NavigateTimeout    time.Duration
	CheckpointSchedule string
	// User identifies the trainee to the activity server. Defaults to the
	// login name of the current OS user.
	User    string
	Verbose bool
}

// ShellFromEnv reads the shell configuration from VP_* variables.
func ShellFromEnv() (*Shell, error) {
	c := &Shell{
		BaseURL:            os.Getenv(EnvBaseURL),
		StartPath:          os.Getenv(EnvStartPath),
		CheckpointSchedule: os.Getenv(EnvCheckpointSchedule),
		User:               os.Getenv(EnvUser),
	}
	var err error
	if c.SaveTimeout, err = durationEnv(EnvSaveTimeout); err != nil {
		return nil, err
	}
	if c.NavigateTimeout, err = durationEnv(EnvNavigateTimeout); err != nil {
		return nil, err
	}
	if c.Verbose, err = boolEnv(EnvVerbose); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Shell) Validate() error {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("%s: %w", EnvBaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: unsupported scheme %q", EnvBaseURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s: host is required", EnvBaseURL)
	}

	// Optional configuration.
	if c.StartPath == "" {
		c.StartPath = defaultStartPath
	}
	if !strings.HasPrefix(c.StartPath, "/") {
		return fmt.Errorf("%s: %q must be an absolute path", EnvStartPath, c.StartPath)
	}
	if c.SaveTimeout <= 0 {
		c.SaveTimeout = defaultSaveTimeout
	}
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = defaultNavigateTimeout
	}
	if c.User == "" {
		if u, err := user.Current(); err == nil {
			c.User = u.Username
		}
	}
	return nil
}

// Server configures the reference activity server.
type Server struct {
	ListenAddr      string
	DBDriver        string
	DBDSN           string
	MetricsAddr     string
	ShutdownTimeout time.Duration
	MaxBodySize     int64
	FinalPatient    string
	Verbose         bool
}

// ServerFromEnv reads the server configuration from VP_* variables.
func ServerFromEnv() (*Server, error) {
	c := &Server{
		ListenAddr:   os.Getenv(EnvListenAddr),
		DBDriver:     os.Getenv(EnvDBDriver),
		DBDSN:        os.Getenv(EnvDBDSN),
		MetricsAddr:  os.Getenv(EnvMetricsAddr),
		FinalPatient: os.Getenv(EnvFinalPatient),
	}
	if _, ok := os.LookupEnv(EnvMetricsAddr); !ok {
		c.MetricsAddr = defaultMetricsAddr
	}
	var err error
	if c.ShutdownTimeout, err = durationEnv(EnvShutdownTimeout); err != nil {
		return nil, err
	}
	if v := os.Getenv(EnvMaxBodySize); v != "" {
		if c.MaxBodySize, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("%s: %w", EnvMaxBodySize, err)
		}
	}
	if c.Verbose, err = boolEnv(EnvVerbose); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate fills defaults. An empty MetricsAddr disables the metrics listener.
func (c *Server) Validate() error {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}
	if c.DBDriver == "" {
		c.DBDriver = defaultDBDriver
	}
	switch c.DBDriver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDriver, c.DBDriver)
	}
	if c.DBDSN == "" {
		if c.DBDriver != "sqlite" {
			return fmt.Errorf("%s is required for driver %s", EnvDBDSN, c.DBDriver)
		}
		homeDir, _ := os.UserHomeDir()
		c.DBDSN = filepath.Join(homeDir, ".local", "share", "vpatient", "vpatient.db")
	}

	// Optional configuration.
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = defaultMaxBodySize
	}
	return nil
}

func durationEnv(key string) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func boolEnv(key string) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
