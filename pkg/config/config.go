package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Logger struct {
		Level      string `yaml:"level" default:"info"`
		Format     string `yaml:"format" default:"json"`
		Output     string `yaml:"output" default:"stdout"`
		MaxSizeMB  int    `yaml:"max_size_mb" default:"100"`
		MaxBackups int    `yaml:"max_backups" default:"7"`
		MaxAgeDays int    `yaml:"max_age_days" default:"30"`
		Collector  struct {
			Enabled        bool          `yaml:"enabled"`
			Interval       time.Duration `yaml:"interval" default:"30s"`
			CountThreshold int           `yaml:"count_threshold" default:"100"`
		} `yaml:"collector"`
	} `yaml:"logger"`
	Engine EngineConfig `yaml:"engine"`
	Store  struct {
		Type string `yaml:"type" default:"memory"` // memory, redis, postgres
	} `yaml:"store"`
	Redis struct {
		Addr         string        `yaml:"addr" default:"localhost:6379"`
		Password     string        `yaml:"password"`
		DB           int           `yaml:"db"`
		PoolSize     int           `yaml:"pool_size" default:"10"`
		MinIdleConns int           `yaml:"min_idle_conns" default:"2"`
		PoolTimeout  time.Duration `yaml:"pool_timeout" default:"4s"`
		Prefix       string        `yaml:"prefix" default:"pricewatch"`
	} `yaml:"redis"`
	Postgres struct {
		DSN             string        `yaml:"dsn"`
		MaxOpenConns    int           `yaml:"max_open_conns" default:"10"`
		MaxIdleConns    int           `yaml:"max_idle_conns" default:"5"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" default:"30m"`
	} `yaml:"postgres"`
	Cache struct {
		Type    string        `yaml:"type" default:"memory"` // memory, redis or layered
		MaxSize int           `yaml:"max_size" default:"10000"`
		Cleanup time.Duration `yaml:"cleanup" default:"1m"`
	} `yaml:"cache"`
	Feed     FeedConfig `yaml:"feed"`
	Telegram struct {
		BotToken string        `yaml:"bot_token"`
		ChatID   string        `yaml:"chat_id"`
		APIURL   string        `yaml:"api_url" default:"https://api.telegram.org"`
		Timeout  time.Duration `yaml:"timeout" default:"10s"`
		LogSink  bool          `yaml:"log_sink" default:"true"`
	} `yaml:"telegram"`
	Kafka struct {
		Enabled       bool     `yaml:"enabled"`
		Brokers       []string `yaml:"brokers"`
		EventsTopic   string   `yaml:"events_topic" default:"pricewatch.triggers"`
		CommandsTopic string   `yaml:"commands_topic" default:"pricewatch.commands"`
		LogsTopic     string   `yaml:"logs_topic" default:"pricewatch.logs"`
		RequiredAcks  int      `yaml:"required_acks" default:"1"`
		Compression   string   `yaml:"compression" default:"snappy"`
		Producer      struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id" default:"pricewatch-commands"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"64"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"pricewatch.commands.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Queue struct {
		Enabled    bool          `yaml:"enabled"`
		KeyPrefix  string        `yaml:"key_prefix" default:"pricewatch:commands"`
		Workers    int           `yaml:"workers" default:"2"`
		RetryLimit int           `yaml:"retry_limit" default:"3"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"5s"`
	} `yaml:"queue"`
	NATS struct {
		Enabled       bool          `yaml:"enabled"`
		URL           string        `yaml:"url" default:"nats://localhost:4222"`
		SubjectPrefix string        `yaml:"subject_prefix" default:"pricewatch.triggers"`
		Timeout       time.Duration `yaml:"timeout" default:"5s"`
	} `yaml:"nats"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"pricewatch"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	RateLimit struct {
		Enabled bool          `yaml:"enabled" default:"true"`
		Limit   int           `yaml:"limit" default:"30"`
		Window  time.Duration `yaml:"window" default:"1m"`
	} `yaml:"ratelimit"`
}

// EngineConfig tunes polling, backoff and cooldown.
type EngineConfig struct {
	PollInterval      time.Duration `yaml:"poll_interval" default:"5s"`
	MaxBackoff        time.Duration `yaml:"max_backoff" default:"60s"`
	MaxFailures       int           `yaml:"max_failures" default:"5"`
	Cooldown          time.Duration `yaml:"cooldown" default:"60s"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval" default:"10s"`
	StopGrace         time.Duration `yaml:"stop_grace" default:"2s"`
	FetchTimeout      time.Duration `yaml:"fetch_timeout" default:"10s"`
	MonitorOnStart    bool          `yaml:"monitor_on_start" default:"true"`
	EventBuffer       int           `yaml:"event_buffer" default:"1024"`
	NodeID            int64         `yaml:"node_id" default:"1"` // snowflake node for trigger event ids
}

// FeedConfig selects and tunes the price feed.
type FeedConfig struct {
	Type         string        `yaml:"type" default:"rest"` // rest or websocket
	BaseURL      string        `yaml:"base_url" default:"https://api.bitget.com"`
	WSURL        string        `yaml:"ws_url" default:"wss://ws.bitget.com/v2/ws/public"`
	Timeout      time.Duration `yaml:"timeout" default:"10s"`
	CacheTTL     time.Duration `yaml:"cache_ttl" default:"1s"`
	StaleAfter   time.Duration `yaml:"stale_after" default:"30s"`
	PingInterval time.Duration `yaml:"ping_interval" default:"25s"`
}

// Default returns a config with every default applied.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if err := c.applyEnv(os.Getenv); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("TG_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := getenv("TG_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := getenv("DATABASE_URL"); v != "" {
		c.Postgres.DSN = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
	}
	if v := getenv("STORE_TYPE"); v != "" {
		c.Store.Type = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logger.Level = v
	}
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Store.Type {
	case "memory", "redis":
	case "postgres":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required when store.type is 'postgres'")
		}
	default:
		return fmt.Errorf("store.type must be 'memory', 'redis' or 'postgres', got '%s'", c.Store.Type)
	}
	switch c.Cache.Type {
	case "memory", "redis", "layered":
	default:
		return fmt.Errorf("cache.type must be 'memory', 'redis' or 'layered', got '%s'", c.Cache.Type)
	}
	if c.Feed.Type != "rest" && c.Feed.Type != "websocket" {
		return fmt.Errorf("feed.type must be 'rest' or 'websocket', got '%s'", c.Feed.Type)
	}
	if c.Engine.PollInterval <= 0 {
		return fmt.Errorf("engine.poll_interval must be positive")
	}
	if c.Engine.MaxBackoff < c.Engine.PollInterval {
		return fmt.Errorf("engine.max_backoff must be >= engine.poll_interval")
	}
	if c.Engine.MaxFailures <= 0 {
		return fmt.Errorf("engine.max_failures must be positive")
	}
	if c.Engine.NodeID < 0 || c.Engine.NodeID > 1023 {
		return fmt.Errorf("engine.node_id must be in [0, 1023]")
	}
	if c.Engine.Cooldown <= 0 {
		return fmt.Errorf("engine.cooldown must be positive")
	}
	if (c.Kafka.Enabled || c.Kafka.Consumer.Enabled) && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	return nil
}
