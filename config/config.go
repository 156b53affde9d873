package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Fanout    FanoutConfig    `mapstructure:"fanout"`
	Timeline  TimelineConfig  `mapstructure:"timeline"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // postgres, sqlite
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// CacheTTL 关注者集合、用户资料缓存的过期时间
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, console
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// FanoutConfig 扇出配置
type FanoutConfig struct {
	// Mode: sync 在发推请求内同步扇出; async 写 outbox 由 worker 扇出
	Mode         string        `mapstructure:"mode"`
	BatchSize    int           `mapstructure:"batch_size"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	// 同步重试的首次退避间隔，之后指数增长
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	// 以下仅 async 模式使用
	Workers      int           `mapstructure:"workers"`
	ClaimLimit   int           `mapstructure:"claim_limit"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Lease        time.Duration `mapstructure:"lease"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

type TimelineConfig struct {
	Backend         string `mapstructure:"backend"` // sql, redis
	MaxLen          int64  `mapstructure:"max_len"`
	DefaultPageSize int    `mapstructure:"default_page_size"`
	MaxPageSize     int    `mapstructure:"max_page_size"`
}

type RateLimitConfig struct {
	TweetsPerSecond float64 `mapstructure:"tweets_per_second"`
	Burst           int     `mapstructure:"burst"`
}

type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

const (
	FanoutModeSync  = "sync"
	FanoutModeAsync = "async"

	TimelineBackendSQL   = "sql"
	TimelineBackendRedis = "redis"
)

// Load 加载配置：默认值 < 配置文件 < 环境变量（APP_ 前缀）
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=postgres password=postgres dbname=newsfeed port=5432 sslmode=disable")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", 10*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("jwt.secret", "change-me")
	v.SetDefault("jwt.ttl", 24*time.Hour)

	v.SetDefault("fanout.mode", FanoutModeSync)
	v.SetDefault("fanout.batch_size", 1000)
	v.SetDefault("fanout.fetch_timeout", 3*time.Second)
	v.SetDefault("fanout.write_timeout", 10*time.Second)
	v.SetDefault("fanout.max_retries", 2)
	v.SetDefault("fanout.retry_interval", 100*time.Millisecond)
	v.SetDefault("fanout.workers", 4)
	v.SetDefault("fanout.claim_limit", 64)
	v.SetDefault("fanout.poll_interval", 50*time.Millisecond)
	v.SetDefault("fanout.lease", time.Minute)
	v.SetDefault("fanout.max_attempts", 8)

	v.SetDefault("timeline.backend", TimelineBackendSQL)
	v.SetDefault("timeline.max_len", 800)
	v.SetDefault("timeline.default_page_size", 20)
	v.SetDefault("timeline.max_page_size", 100)

	v.SetDefault("rate_limit.tweets_per_second", 1.0)
	v.SetDefault("rate_limit.burst", 5)

	v.SetDefault("tracing.service_name", "newsfeed")
}

// Validate 检查枚举类配置项
func (c *Config) Validate() error {
	switch c.Fanout.Mode {
	case FanoutModeSync, FanoutModeAsync:
	default:
		return fmt.Errorf("invalid fanout.mode %q", c.Fanout.Mode)
	}
	switch c.Timeline.Backend {
	case TimelineBackendSQL, TimelineBackendRedis:
	default:
		return fmt.Errorf("invalid timeline.backend %q", c.Timeline.Backend)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("invalid database.driver %q", c.Database.Driver)
	}
	if c.Fanout.BatchSize <= 0 {
		return fmt.Errorf("fanout.batch_size must be positive")
	}
	return nil
}
