package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"perftests-app/internal/sampledata"
	"perftests-app/internal/store"
	"perftests-app/internal/telemetry"
)

const envPrefix = "PERFTESTS"

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Log     LogConfig     `mapstructure:"log"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Sample  SampleConfig  `mapstructure:"sample"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StoreConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	SchemaPath      string        `mapstructure:"schema_path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	// Dir enables the log file when non-empty.
	Dir  string `mapstructure:"dir"`
	File string `mapstructure:"file"`
}

type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Exporter string `mapstructure:"exporter"`
}

type SampleConfig struct {
	Count   int    `mapstructure:"count"`
	Name    string `mapstructure:"name"`
	Branch  string `mapstructure:"branch"`
	MinTime int64  `mapstructure:"min_time"`
	MaxTime int64  `mapstructure:"max_time"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":7777")
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 25*time.Second)

	v.SetDefault("store.driver", store.DriverSQLite3)
	v.SetDefault("store.dsn", "../db/perftests.db?_busy_timeout=5000")
	v.SetDefault("store.schema_path", "")
	v.SetDefault("store.max_open_conns", 10)
	v.SetDefault("store.max_idle_conns", 5)
	v.SetDefault("store.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("store.query_timeout", 5*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.dir", "")
	v.SetDefault("log.file", "webService.log")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")

	d := sampledata.DefaultConfig()
	v.SetDefault("sample.count", d.Count)
	v.SetDefault("sample.name", d.Name)
	v.SetDefault("sample.branch", d.Branch)
	v.SetDefault("sample.min_time", d.MinTime)
	v.SetDefault("sample.max_time", d.MaxTime)
}

// Load reads configuration from, in decreasing priority:
//  1. environment variables (PERFTESTS_STORE_DSN, PERFTESTS_LOG_LEVEL, ...)
//  2. a yaml file: path itself when it names a file, otherwise config.yaml
//     in path or ./configs (optional)
//  3. defaults
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := false
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		v.SetConfigFile(path)
		explicit = true
	default:
		if path != "" {
			v.AddConfigPath(path)
		}
		v.AddConfigPath("./configs")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cannot decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case store.DriverSQLite3, store.DriverSQLite, store.DriverPgx:
	default:
		return fmt.Errorf("store.driver %q is not one of sqlite3, sqlite, pgx", c.Store.Driver)
	}
	if c.Store.DSN == "" {
		return errors.New("store.dsn must not be empty")
	}
	if c.Sample.MinTime < 0 || c.Sample.MinTime > c.Sample.MaxTime {
		return fmt.Errorf("sample time range [%d, %d) is invalid", c.Sample.MinTime, c.Sample.MaxTime)
	}
	if c.Sample.Count < 0 {
		return errors.New("sample.count must not be negative")
	}
	return nil
}

func (c *Config) GatewayConfig() store.Config {
	return store.Config{
		Driver:          c.Store.Driver,
		DSN:             c.Store.DSN,
		SchemaPath:      c.Store.SchemaPath,
		MaxOpenConns:    c.Store.MaxOpenConns,
		MaxIdleConns:    c.Store.MaxIdleConns,
		ConnMaxLifetime: c.Store.ConnMaxLifetime,
		QueryTimeout:    c.Store.QueryTimeout,
	}
}

func (c *Config) SampleConfig() sampledata.Config {
	return sampledata.Config{
		Count:   c.Sample.Count,
		Name:    c.Sample.Name,
		Branch:  c.Sample.Branch,
		MinTime: c.Sample.MinTime,
		MaxTime: c.Sample.MaxTime,
	}
}

func (c *Config) TracingConfig() telemetry.TracingConfig {
	return telemetry.TracingConfig{Enabled: c.Tracing.Enabled, Exporter: c.Tracing.Exporter}
}
