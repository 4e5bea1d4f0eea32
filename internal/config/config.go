package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides, e.g. FUNDS_POSTGRES_DSN.
const EnvPrefix = "FUNDS"

// Config top-level struct
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Log       LogConfig       `yaml:"log"`
	Draw      DrawConfig      `yaml:"draw"`
	Profit    ProfitConfig    `yaml:"profit"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr       string        `yaml:"addr"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	BalanceTTL time.Duration `yaml:"balance_ttl" split_words:"true"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	// PollInterval is how often the outbox poller looks for new events.
	PollInterval time.Duration `yaml:"poll_interval" split_words:"true"`
	BatchSize    int           `yaml:"batch_size" split_words:"true"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// DrawConfig controls the due-draw job.
type DrawConfig struct {
	AutoExecute bool   `yaml:"auto_execute" split_words:"true"`
	Schedule    string `yaml:"schedule"`
}

// ProfitConfig holds the parameters of the profit-share calculation.
type ProfitConfig struct {
	// DefaultSharePercent applies to plans without a profit share percentage (5 = 5%).
	DefaultSharePercent decimal.Decimal `yaml:"default_share_percent" split_words:"true"`
	// InvestmentPeriodFactor multiplies a plan's periodic amount into the investment proxy.
	InvestmentPeriodFactor int64 `yaml:"investment_period_factor" split_words:"true"`
}

// Default returns a config with every optional value filled in.
func Default() Config {
	return Config{
		Server:    ServerConfig{Port: 8080},
		Redis:     RedisConfig{Addr: "localhost:6379", BalanceTTL: 5 * time.Minute},
		Kafka:     KafkaConfig{Topic: "funds.notifications", PollInterval: time.Second, BatchSize: 100},
		RateLimit: RateLimitConfig{RPS: 20, Burst: 40},
		Log:       LogConfig{Level: "info"},
		Draw:      DrawConfig{Schedule: "*/5 * * * *"},
		Profit: ProfitConfig{
			DefaultSharePercent:    decimal.NewFromInt(5),
			InvestmentPeriodFactor: 12,
		},
	}
}

// Load reads yaml file, then applies .env and FUNDS_* environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	_ = godotenv.Load()
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	// override DSN password from env if present
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Postgres.DSN = cfg.Postgres.DSN + " password=" + pw
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the services cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.New("server.port must be positive")
	}
	if c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return errors.New("ratelimit.rps and ratelimit.burst must be positive")
	}
	if c.Profit.DefaultSharePercent.IsNegative() || c.Profit.DefaultSharePercent.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("profit.default_share_percent out of range: %s", c.Profit.DefaultSharePercent)
	}
	if c.Profit.InvestmentPeriodFactor <= 0 {
		return errors.New("profit.investment_period_factor must be positive")
	}
	if c.Draw.AutoExecute {
		if _, err := cron.ParseStandard(c.Draw.Schedule); err != nil {
			return fmt.Errorf("draw.schedule: %w", err)
		}
	}
	return nil
}
