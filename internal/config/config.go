package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix prefixes every environment override, e.g. COLORCARE_HTTP_ADDR.
const EnvPrefix = "COLORCARE"

// Config is the top-level configuration structure.
type Config struct {
	Outline  OutlineConfig  `mapstructure:"outline"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Nudge    NudgeConfig    `mapstructure:"nudge"`
	Report   ReportConfig   `mapstructure:"report"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// OutlineConfig tunes template generation.
type OutlineConfig struct {
	MaxDimension  int           `mapstructure:"max_dimension"`
	LowThreshold  float64       `mapstructure:"low_threshold"`
	HighThreshold float64       `mapstructure:"high_threshold"`
	CacheEntries  int           `mapstructure:"cache_entries"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
	MaxFetchBytes int64         `mapstructure:"max_fetch_bytes"`
}

// MetricsConfig tunes session metric computation.
type MetricsConfig struct {
	TremorThreshold float64 `mapstructure:"tremor_threshold"`
}

// NudgeConfig tunes idle detection.
type NudgeConfig struct {
	Interval             time.Duration `mapstructure:"interval"`
	EncouragementTimeout time.Duration `mapstructure:"encouragement_timeout"`
}

// ReportConfig holds the text-generation settings. An empty APIKey disables
// report generation.
type ReportConfig struct {
	APIKey        string        `mapstructure:"api_key"`
	PrimaryModel  string        `mapstructure:"primary_model"`
	FallbackModel string        `mapstructure:"fallback_model"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// StorageConfig holds object storage settings. Bucket is either a local
// directory or a bucket URL such as "s3://name" or "mem://".
type StorageConfig struct {
	Bucket            string `mapstructure:"bucket"`
	PublicBaseURL     string `mapstructure:"public_base_url"`
	SnapshotTemplates bool   `mapstructure:"snapshot_templates"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// DSN returns the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		d.Host, d.User, d.Password, d.DBName, d.Port)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Addr           string `mapstructure:"addr"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
}

// LoggingConfig holds settings for the logger.
type LoggingConfig struct {
	Directory  string `mapstructure:"directory"`
	Level      string `mapstructure:"level"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// setDefaults sets the default values for the configuration.
func setDefaults(v *viper.Viper) {
	// Outline defaults
	v.SetDefault("outline.max_dimension", 2000)
	v.SetDefault("outline.low_threshold", 20.0)
	v.SetDefault("outline.high_threshold", 40.0)
	v.SetDefault("outline.cache_entries", 32)
	v.SetDefault("outline.fetch_timeout", 15*time.Second)
	v.SetDefault("outline.max_fetch_bytes", 10<<20)

	v.SetDefault("metrics.tremor_threshold", 3.0)

	v.SetDefault("nudge.interval", 60*time.Second)
	v.SetDefault("nudge.encouragement_timeout", 10*time.Second)

	// Report defaults
	v.SetDefault("report.api_key", "")
	v.SetDefault("report.primary_model", "gemini-2.5-flash")
	v.SetDefault("report.fallback_model", "gemini-1.5-flash")
	v.SetDefault("report.timeout", 30*time.Second)

	v.SetDefault("storage.bucket", "data/objects")
	v.SetDefault("storage.public_base_url", "/objects")
	v.SetDefault("storage.snapshot_templates", false)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/coloring-care.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "coloring")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "coloring_care")

	v.SetDefault("http.addr", ":5050")
	v.SetDefault("http.max_upload_bytes", 10<<20)

	// Logging defaults
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.max_size", 10)   // 10 MB
	v.SetDefault("logging.max_backups", 3) // Keep 3 backups
	v.SetDefault("logging.max_age", 7)     // 7 days
	v.SetDefault("logging.compress", true) // Compress old logs
}

// Source reads configuration from defaults, an optional YAML file and the
// environment, in increasing order of precedence.
type Source struct {
	mu sync.Mutex
	v  *viper.Viper
}

// NewSource prepares a Source. With an empty path, config.yaml is looked up
// in ./config and the working directory, and a missing file is not an error.
// An explicit path must exist.
func NewSource(path string) *Source {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("config")
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Source{v: v}
}

// Load reads and validates the configuration.
func (s *Source) Load() (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return s.decode()
}

// File returns the config file in use, or "" when running on defaults.
func (s *Source) File() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v.ConfigFileUsed()
}

// Watch reloads the file whenever it changes and passes each valid result
// to onChange. Invalid edits are logged and ignored. It does nothing when no
// config file is in use.
func (s *Source) Watch(log *zap.Logger, onChange func(*Config)) {
	file := s.File()
	if file == "" {
		log.Debug("No config file in use, hot reload disabled")
		return
	}

	s.v.OnConfigChange(func(e fsnotify.Event) {
		log.Info("Configuration file changed, reloading.", zap.String("file", e.Name))
		s.mu.Lock()
		cfg, err := s.decode()
		s.mu.Unlock()
		if err != nil {
			log.Error("Error reloading configuration", zap.Error(err))
			return
		}
		onChange(cfg)
	})
	s.v.WatchConfig()
	log.Info("Watching configuration file", zap.String("file", filepath.Clean(file)))
}

// decode unmarshals and validates; callers hold s.mu.
func (s *Source) decode() (*Config, error) {
	var cfg Config
	if err := s.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load is shorthand for NewSource(path).Load().
func Load(path string) (*Config, error) {
	return NewSource(path).Load()
}

// Default returns the built-in configuration.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: defaults do not decode: %v", err))
	}
	return &cfg
}

// Validate rejects values the services cannot run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Outline.MaxDimension > 0, "outline.max_dimension must be positive, got %d", c.Outline.MaxDimension)
	check(c.Outline.LowThreshold >= 0, "outline.low_threshold must not be negative, got %v", c.Outline.LowThreshold)
	check(c.Outline.LowThreshold <= c.Outline.HighThreshold,
		"outline.low_threshold (%v) must not exceed outline.high_threshold (%v)", c.Outline.LowThreshold, c.Outline.HighThreshold)
	check(c.Outline.CacheEntries >= 0, "outline.cache_entries must not be negative, got %d", c.Outline.CacheEntries)
	check(c.Outline.FetchTimeout > 0, "outline.fetch_timeout must be positive, got %v", c.Outline.FetchTimeout)
	check(c.Outline.MaxFetchBytes > 0, "outline.max_fetch_bytes must be positive, got %d", c.Outline.MaxFetchBytes)
	check(c.Metrics.TremorThreshold > 0, "metrics.tremor_threshold must be positive, got %v", c.Metrics.TremorThreshold)
	check(c.Nudge.Interval > 0, "nudge.interval must be positive, got %v", c.Nudge.Interval)
	check(c.Nudge.EncouragementTimeout > 0, "nudge.encouragement_timeout must be positive, got %v", c.Nudge.EncouragementTimeout)
	check(c.Report.Timeout > 0, "report.timeout must be positive, got %v", c.Report.Timeout)
	check(c.Storage.Bucket != "", "storage.bucket must be set")
	check(c.Database.Driver == "sqlite" || c.Database.Driver == "postgres",
		"database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	check(c.HTTP.MaxUploadBytes > 0, "http.max_upload_bytes must be positive, got %d", c.HTTP.MaxUploadBytes)

	return errors.Join(errs...)
}
