package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// PostgreSQL
	Postgres PostgresConfig `mapstructure:"postgres"`

	// Redis
	Redis RedisConfig `mapstructure:"redis"`

	// NATS
	NATS NATSConfig `mapstructure:"nats"`

	// Prometheus
	Prometheus PrometheusConfig `mapstructure:"prometheus"`

	// Forecast oracle (external LLM endpoint)
	Oracle OracleConfig `mapstructure:"oracle"`

	// SMTP transport for spike alerts
	SMTP SMTPConfig `mapstructure:"smtp"`

	// Forecast pipeline tuning
	Forecast ForecastConfig `mapstructure:"forecast"`
}

type PostgresConfig struct {
	Host              string `mapstructure:"host"`
	User              string `mapstructure:"user"`
	Password          string `mapstructure:"password"`
	Database          string `mapstructure:"database"`
	Port              int    `mapstructure:"port"`
	SSLMode           string `mapstructure:"sslmode"`
	MaxConns          int32  `mapstructure:"max_conns"`
	MinConns          int32  `mapstructure:"min_conns"`
	MaxConnLifetime   string `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   string `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod string `mapstructure:"health_check_period"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATSConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	MonitorPort int    `mapstructure:"monitor_port"`
}

type PrometheusConfig struct {
	Port           int    `mapstructure:"port"`
	Retention      string `mapstructure:"retention"`
	ScrapeInterval string `mapstructure:"scrape_interval"`
	Target         string `mapstructure:"target"`
}

type OracleConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	Timeout  string `mapstructure:"timeout"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type ForecastConfig struct {
	Interval      string  `mapstructure:"interval"`
	HorizonHours  int     `mapstructure:"horizon_hours"`
	LookbackHours int     `mapstructure:"lookback_hours"`
	MinClicks     int64   `mapstructure:"min_clicks"`
	Multiplier    float64 `mapstructure:"multiplier"`
	BaseURL       string  `mapstructure:"base_url"`
}

// Pipeline defaults matching the deployed alerting behaviour.
const (
	DefaultForecastInterval = 3 * time.Hour
	DefaultHorizonHours     = 24
	DefaultLookbackHours    = 24
	DefaultMinClicks        = int64(50)
	DefaultMultiplier       = 2.0
)

// IntervalDuration returns the configured cycle interval, falling back to the default.
func (f ForecastConfig) IntervalDuration() time.Duration {
	if f.Interval == "" {
		return DefaultForecastInterval
	}
	d, err := time.ParseDuration(f.Interval)
	if err != nil || d <= 0 {
		return DefaultForecastInterval
	}
	return d
}

// Horizon returns the forecast horizon in hours, falling back to the default.
func (f ForecastConfig) Horizon() int {
	if f.HorizonHours <= 0 {
		return DefaultHorizonHours
	}
	return f.HorizonHours
}

// Lookback returns the baseline lookback window, falling back to the default.
func (f ForecastConfig) Lookback() time.Duration {
	hours := f.LookbackHours
	if hours <= 0 {
		hours = DefaultLookbackHours
	}
	return time.Duration(hours) * time.Hour
}

// MinClicksThreshold returns the absolute spike floor, falling back to the default.
func (f ForecastConfig) MinClicksThreshold() int64 {
	if f.MinClicks <= 0 {
		return DefaultMinClicks
	}
	return f.MinClicks
}

// SpikeMultiplier returns the baseline multiplier, falling back to the default.
func (f ForecastConfig) SpikeMultiplier() float64 {
	if f.Multiplier <= 0 {
		return DefaultMultiplier
	}
	return f.Multiplier
}

// TimeoutDuration returns the oracle request timeout (default 30s).
func (o OracleConfig) TimeoutDuration() time.Duration {
	if o.Timeout == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(o.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

func Load() (*Config, error) {
	// Load local .env for development (ignored when missing).
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Search for config/config.yaml (plus root for overrides).
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Allow environment variables to override YAML entries.
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Preserve legacy env variable names.
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// PostgreSQL
	v.BindEnv("postgres.host", "PG_HOST")
	v.BindEnv("postgres.user", "PG_USER")
	v.BindEnv("postgres.password", "PG_PASSWORD")
	v.BindEnv("postgres.database", "PG_DB")
	v.BindEnv("postgres.port", "PG_PORT")
	v.BindEnv("postgres.sslmode", "PG_SSLMODE")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	// NATS
	v.BindEnv("nats.host", "NATS_HOST")
	v.BindEnv("nats.port", "NATS_PORT")
	v.BindEnv("nats.user", "NATS_USER")
	v.BindEnv("nats.password", "NATS_PASSWORD")
	v.BindEnv("nats.monitor_port", "NATS_MONITOR_PORT")

	// Prometheus
	v.BindEnv("prometheus.port", "PROM_PORT")
	v.BindEnv("prometheus.retention", "PROM_RETENTION")
	v.BindEnv("prometheus.scrape_interval", "PROM_SCRAPE_INTERVAL")
	v.BindEnv("prometheus.target", "PROM_TARGET")

	// Forecast oracle
	v.BindEnv("oracle.endpoint", "ORACLE_ENDPOINT")
	v.BindEnv("oracle.api_key", "ORACLE_API_KEY")
	v.BindEnv("oracle.model", "ORACLE_MODEL")
	v.BindEnv("oracle.timeout", "ORACLE_TIMEOUT")

	// Alert mail
	v.BindEnv("smtp.host", "SMTP_HOST")
	v.BindEnv("smtp.port", "SMTP_PORT")
	v.BindEnv("smtp.username", "SMTP_USERNAME")
	v.BindEnv("smtp.password", "SMTP_PASSWORD")
	v.BindEnv("smtp.from", "ALERT_FROM_EMAIL")

	// Forecast pipeline
	v.BindEnv("forecast.interval", "FORECAST_INTERVAL")
	v.BindEnv("forecast.horizon_hours", "FORECAST_HORIZON_HOURS")
	v.BindEnv("forecast.lookback_hours", "FORECAST_LOOKBACK_HOURS")
	v.BindEnv("forecast.min_clicks", "FORECAST_MIN_CLICKS")
	v.BindEnv("forecast.multiplier", "FORECAST_MULTIPLIER")
	v.BindEnv("forecast.base_url", "FORECAST_BASE_URL")
}
