// Package config loads runtime settings from the environment, with an
// optional .env file in the working directory.
package config

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

type Config struct {
	ServiceName string
	Version     string

	Port    string
	LogEnv  string
	LogFile string

	// DatabaseURL empty means mock mode: case endpoints answer 503.
	DatabaseURL    string
	DBMaxOpenConns int

	NATSEnabled bool
	NATSPort    int
	NATSDataDir string

	// APIBearerToken empty disables bearer auth.
	APIBearerToken string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "energy-crm")
	v.SetDefault("app_version", "dev")
	v.SetDefault("port", "8080")
	v.SetDefault("log_env", EnvLocal)
	v.SetDefault("log_file", "")
	v.SetDefault("database_url", "")
	v.SetDefault("db_max_open_conns", 10)
	v.SetDefault("nats_enabled", true)
	v.SetDefault("nats_port", 4222)
	v.SetDefault("nats_data_dir", "./data/nats")
	v.SetDefault("api_bearer_token", "")
}

// Load reads .env (when present) into the process environment and returns
// the resolved configuration.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to load .env")
	}
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return v
}

// FromViper resolves a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		ServiceName:    v.GetString("service_name"),
		Version:        v.GetString("app_version"),
		Port:           v.GetString("port"),
		LogEnv:         strings.ToLower(v.GetString("log_env")),
		LogFile:        v.GetString("log_file"),
		DatabaseURL:    strings.TrimSpace(v.GetString("database_url")),
		DBMaxOpenConns: v.GetInt("db_max_open_conns"),
		NATSEnabled:    v.GetBool("nats_enabled"),
		NATSPort:       v.GetInt("nats_port"),
		NATSDataDir:    v.GetString("nats_data_dir"),
		APIBearerToken: v.GetString("api_bearer_token"),
	}

	switch cfg.LogEnv {
	case EnvLocal, EnvDev, EnvProd:
	default:
		return nil, errors.Newf("LOG_ENV must be one of local, dev, prod; got %q", cfg.LogEnv)
	}
	if cfg.Port == "" {
		return nil, errors.New("PORT must not be empty")
	}
	if cfg.DBMaxOpenConns < 1 {
		return nil, errors.Newf("DB_MAX_OPEN_CONNS must be positive; got %d", cfg.DBMaxOpenConns)
	}
	return cfg, nil
}

// Persisted reports whether a case store is configured.
func (c *Config) Persisted() bool {
	return c.DatabaseURL != ""
}
