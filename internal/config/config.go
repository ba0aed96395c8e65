package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config holds client configuration aggregated from env, .env and config files.
type Config struct {
	API struct {
		BaseURL   string
		Timeout   time.Duration
		RateLimit float64
		Burst     int
	}
	Session struct {
		Path    string
		Backend string
	}
	Poll struct {
		Interval time.Duration
		Debounce time.Duration
	}
	List struct {
		Limit int
	}
	Log struct {
		Level string
	}
	Output struct {
		Colors bool
	}
	AWS struct {
		Region   string
		Profile  string
		Endpoint string
	}
}

// Load reads configuration from environment variables and an optional config
// file. When file is empty, "config.*" is looked up in the working directory
// and in ~/.cmsctl.
func Load(file string) (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("CMSCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("api.baseurl", "http://localhost:3000")
	v.SetDefault("api.timeout", 15*time.Second)
	v.SetDefault("api.ratelimit", 10.0)
	v.SetDefault("api.burst", 5)
	v.SetDefault("session.path", defaultStatePath())
	v.SetDefault("session.backend", BackendSQLite)
	v.SetDefault("poll.interval", 10*time.Second)
	v.SetDefault("poll.debounce", 300*time.Millisecond)
	v.SetDefault("list.limit", 9)
	v.SetDefault("log.level", "info")
	v.SetDefault("output.colors", true)
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.profile", "")
	v.SetDefault("aws.endpoint", "")

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".cmsctl"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the client cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("api.baseurl is required")
	}
	switch c.Session.Backend {
	case BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("session.backend must be %s or %s, got %q", BackendSQLite, BackendMemory, c.Session.Backend)
	}
	if c.Session.Backend == BackendSQLite && strings.TrimSpace(c.Session.Path) == "" {
		return errors.New("session.path is required for the sqlite backend")
	}
	if c.List.Limit < 1 {
		return fmt.Errorf("list.limit must be positive, got %d", c.List.Limit)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// LogLevel returns the configured level, or debug when verbose is set.
func (c Config) LogLevel(verbose bool) logrus.Level {
	if verbose {
		return logrus.DebugLevel
	}
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".cmsctl", "state.db")
	}
	return filepath.Join(home, ".cmsctl", "state.db")
}

// loadDotEnv exports the variables of path without overriding ones already
// set. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
