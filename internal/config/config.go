// Package config loads the pipeline configuration: built-in defaults, then an
// optional YAML file, then environment variables. CLI flags are applied on
// top by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"etlbranching/internal/domain"
)

// Environment variable names.
const (
	EnvConfigFile     = "ETL_CONFIG"
	EnvDataDir        = "DATA_DIR"
	EnvLogLevel       = "LOG_LEVEL"
	EnvLogFormat      = "LOG_FORMAT"
	EnvStoreDriver    = "STORE_DRIVER"
	EnvStoreDSN       = "STORE_DSN"
	EnvMetadataDB     = "METADATA_DB"
	EnvSchedule       = "SCHEDULE"
	EnvWatchStaging   = "WATCH_STAGING"
	EnvHTTPAddr       = "HTTP_ADDR"
	EnvAMQPURL        = "AMQP_URL"
	EnvKaggleEndpoint = "KAGGLE_API_ENDPOINT"
	EnvKaggleCache    = "KAGGLEHUB_CACHE"
	EnvKaggleConfig   = "KAGGLE_CONFIG_DIR"
	EnvRunTimeout     = "RUN_TIMEOUT"
	EnvTaskRetries    = "TASK_RETRIES"
)

// Defaults.
const (
	DefaultDataDir        = "data"
	DefaultLogLevel       = "INFO"
	DefaultLogFormat      = "text"
	DefaultHTTPAddr       = ":8080"
	DefaultKaggleEndpoint = "https://www.kaggle.com/api/v1"
	DefaultRunTimeout     = 30 * time.Minute
	DefaultRetryDelay     = 5 * time.Minute
	metadataDBName        = "airflow.db"
)

// Config holds the application configuration.
type Config struct {
	DataDir    string        `yaml:"data_dir"`
	LogLevel   string        `yaml:"log_level"`
	LogFormat  string        `yaml:"log_format"`
	MetadataDB string        `yaml:"metadata_db"`
	Schedule   string        `yaml:"schedule"`      // cron expression; empty means manual only
	Watch      bool          `yaml:"watch_staging"` // reload when a staged file changes
	HTTPAddr   string        `yaml:"http_addr"`
	AMQPURL    string        `yaml:"amqp_url"`
	RunTimeout time.Duration `yaml:"run_timeout"`
	Retries    int           `yaml:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`

	Store  StoreConfig  `yaml:"store"`
	Kaggle KaggleConfig `yaml:"kaggle"`

	// Datasets overrides or extends the built-in catalog.
	Datasets []domain.DatasetSpec `yaml:"datasets"`
}

// StoreConfig selects where the load task writes.
type StoreConfig struct {
	Driver domain.DatabaseDriver `yaml:"driver"`
	DSN    string                `yaml:"dsn"` // ignored for sqlite, which uses data/{dataset}.db
}

// KaggleConfig holds dataset host client settings.
type KaggleConfig struct {
	Endpoint  string `yaml:"endpoint"`
	CacheDir  string `yaml:"cache_dir"`
	ConfigDir string `yaml:"config_dir"` // directory holding kaggle.json
	Force     bool   `yaml:"force_download"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DataDir:    DefaultDataDir,
		LogLevel:   DefaultLogLevel,
		LogFormat:  DefaultLogFormat,
		HTTPAddr:   DefaultHTTPAddr,
		RunTimeout: DefaultRunTimeout,
		RetryDelay: DefaultRetryDelay,
		Store:      StoreConfig{Driver: domain.DatabaseDriverSQLite},
		Kaggle: KaggleConfig{
			Endpoint:  DefaultKaggleEndpoint,
			CacheDir:  filepath.Join(home, ".cache", "kagglehub"),
			ConfigDir: filepath.Join(home, ".kaggle"),
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (or $ETL_CONFIG
// when path is empty), and the environment. A missing file named only by
// default is not an error; a missing file named explicitly is.
func Load(path string) (*Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = getenv(EnvConfigFile)
	}
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	setString := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&c.DataDir, EnvDataDir)
	setString(&c.LogLevel, EnvLogLevel)
	setString(&c.LogFormat, EnvLogFormat)
	setString(&c.MetadataDB, EnvMetadataDB)
	setString(&c.Schedule, EnvSchedule)
	setString(&c.HTTPAddr, EnvHTTPAddr)
	setString(&c.AMQPURL, EnvAMQPURL)
	setString(&c.Store.DSN, EnvStoreDSN)
	setString(&c.Kaggle.Endpoint, EnvKaggleEndpoint)
	setString(&c.Kaggle.CacheDir, EnvKaggleCache)
	setString(&c.Kaggle.ConfigDir, EnvKaggleConfig)

	if v := getenv(EnvStoreDriver); v != "" {
		c.Store.Driver = domain.DatabaseDriver(v)
	}
	if v := getenv(EnvWatchStaging); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", EnvWatchStaging, v, err)
		}
		c.Watch = b
	}
	if v := getenv(EnvRunTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", EnvRunTimeout, v, err)
		}
		c.RunTimeout = d
	}
	if v := getenv(EnvTaskRetries); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", EnvTaskRetries, v, err)
		}
		c.Retries = n
	}
	return nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir must not be empty")
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must be >= 0, got %d", c.Retries)
	}
	switch c.Store.Driver {
	case domain.DatabaseDriverSQLite:
	case domain.DatabaseDriverPostgres, domain.DatabaseDriverMySQL, domain.DatabaseDriverMongoDB:
		if c.Store.DSN == "" {
			return fmt.Errorf("store driver %s requires a dsn", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unsupported store driver: %q", c.Store.Driver)
	}
	for _, d := range c.Datasets {
		if d.Name == "" || d.Handle == "" || d.File == "" {
			return fmt.Errorf("dataset entry %+v needs name, handle and file", d)
		}
		if !d.Name.Branched() {
			return fmt.Errorf("dataset %q has no branch; only %s and %s can be configured", d.Name, domain.DatasetWalmart, domain.DatasetInstagram)
		}
	}
	return nil
}

// MetadataPath returns the run metadata database path.
func (c *Config) MetadataPath() string {
	if c.MetadataDB != "" {
		return c.MetadataDB
	}
	return filepath.Join(c.DataDir, metadataDBName)
}

// Catalog returns the built-in datasets with configured overrides applied.
func (c *Config) Catalog() domain.Catalog {
	cat := domain.DefaultCatalog()
	for _, d := range c.Datasets {
		cat[d.Name] = d
	}
	return cat
}

// StoreTarget returns where dataset is loaded.
func (c *Config) StoreTarget(dataset domain.Dataset) domain.StoreTarget {
	t := domain.StoreTarget{
		Driver: c.Store.Driver,
		DSN:    c.Store.DSN,
		Table:  string(dataset),
	}
	if t.Driver == domain.DatabaseDriverSQLite || t.Driver == "" {
		t.Driver = domain.DatabaseDriverSQLite
		t.DSN = domain.StorePath(c.DataDir, dataset)
	}
	return t
}
