package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Port          string `mapstructure:"port"`
	AllowedOrigin string `mapstructure:"allowed_origin"`

	DatabaseURL        string `mapstructure:"database_url"`
	SQLitePath         string `mapstructure:"sqlite_path"`
	DataCSV            string `mapstructure:"data_csv"`
	ImportOnStart      bool   `mapstructure:"import_on_start"`
	ImportBatchSize    int    `mapstructure:"import_batch_size"`
	ReadyTimeoutSecond int    `mapstructure:"ready_timeout_seconds"`

	RedisAddr            string `mapstructure:"redis_addr"`
	RedisPassword        string `mapstructure:"redis_password"`
	RedisDB              int    `mapstructure:"redis_db"`
	CatalogTTLSeconds    int    `mapstructure:"catalog_ttl_seconds"`
	SalesCacheTTLSeconds int    `mapstructure:"sales_cache_ttl_seconds"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`

	AdminUsername         string `mapstructure:"admin_username"`
	AdminPassword         string `mapstructure:"admin_password"`
	AuthSecret            string `mapstructure:"auth_secret"`
	AccessTokenTTLMinutes int    `mapstructure:"access_token_ttl_minutes"`
}

// Load reads defaults, then the optional YAML file at configPath, then the
// environment. Keys are the flat upper-case env names (PORT, DATABASE_URL...).
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("allowed_origin", "http://127.0.0.1:3000")

	v.SetDefault("database_url", "")
	v.SetDefault("sqlite_path", "")
	v.SetDefault("data_csv", "")
	v.SetDefault("import_on_start", true)
	v.SetDefault("import_batch_size", 1000)
	v.SetDefault("ready_timeout_seconds", 10)

	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("catalog_ttl_seconds", 600)
	v.SetDefault("sales_cache_ttl_seconds", 30)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	v.SetDefault("rate_limit_rps", 20.0)
	v.SetDefault("rate_limit_burst", 40)

	v.SetDefault("admin_username", "admin")
	v.SetDefault("admin_password", "")
	v.SetDefault("auth_secret", "")
	v.SetDefault("access_token_ttl_minutes", 60)
}

func (c *Config) normalize() {
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	c.SQLitePath = strings.TrimSpace(c.SQLitePath)
	c.DataCSV = strings.TrimSpace(c.DataCSV)
	c.AuthSecret = strings.TrimSpace(c.AuthSecret)
	c.AdminUsername = strings.TrimSpace(c.AdminUsername)
	c.AdminPassword = strings.TrimSpace(c.AdminPassword)

	if c.ImportBatchSize < 1 {
		c.ImportBatchSize = 1000
	}
	if c.ReadyTimeoutSecond < 1 {
		c.ReadyTimeoutSecond = 10
	}
	if c.CatalogTTLSeconds < 1 {
		c.CatalogTTLSeconds = 600
	}
	if c.SalesCacheTTLSeconds < 0 {
		c.SalesCacheTTLSeconds = 0
	}
	if c.AccessTokenTTLMinutes < 1 {
		c.AccessTokenTTLMinutes = 60
	}
	if c.RateLimitBurst < 1 {
		c.RateLimitBurst = 1
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// StoreDriver picks the backing store: postgres when DATABASE_URL is set, then
// sqlite when SQLITE_PATH is set, otherwise the in-memory store.
func (c Config) StoreDriver() string {
	switch {
	case c.DatabaseURL != "":
		return DriverPostgres
	case c.SQLitePath != "":
		return DriverSQLite
	default:
		return DriverMemory
	}
}

func (c Config) ReadyTimeout() time.Duration {
	return time.Duration(c.ReadyTimeoutSecond) * time.Second
}

func (c Config) CatalogTTL() time.Duration {
	return time.Duration(c.CatalogTTLSeconds) * time.Second
}

func (c Config) SalesCacheTTL() time.Duration {
	return time.Duration(c.SalesCacheTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

// AdminEnabled reports whether the admin surface should be mounted.
func (c Config) AdminEnabled() bool {
	return c.AdminPassword != "" || c.AuthSecret != ""
}
