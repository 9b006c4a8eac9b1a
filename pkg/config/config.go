package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Provider struct {
		APIToken     string        `yaml:"api_token"`
		BaseURL      string        `yaml:"base_url"`
		WebSocketURL string        `yaml:"websocket_url"`
		Timeout      time.Duration `yaml:"timeout"`
		Retry        struct {
			MaxAttempts int           `yaml:"max_attempts"`
			BaseDelay   time.Duration `yaml:"base_delay"`
			MaxDelay    time.Duration `yaml:"max_delay"`
			MaxJitter   time.Duration `yaml:"max_jitter"`
		} `yaml:"retry"`
	} `yaml:"provider"`
	RateLimit struct {
		MinuteLimit       int           `yaml:"minute_limit"`
		DayLimit          int           `yaml:"day_limit"`
		ApproachThreshold float64       `yaml:"approach_threshold"`
		MaxBatchDelay     time.Duration `yaml:"max_batch_delay"`
	} `yaml:"ratelimit"`
	Cache struct {
		IndicatorTTL time.Duration `yaml:"indicator_ttl"`
		QuoteTTL     time.Duration `yaml:"quote_ttl"`
		Redis        struct {
			Enabled  bool   `yaml:"enabled"`
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Scoring struct {
		TechnicalWeight float64       `yaml:"technical_weight"`
		SentimentWeight float64       `yaml:"sentiment_weight"`
		LiquidityWeight float64       `yaml:"liquidity_weight"`
		SignalThreshold int           `yaml:"signal_threshold"`
		SignalTTL       time.Duration `yaml:"signal_ttl"`
	} `yaml:"scoring"`
	Analysis struct {
		ChunkSize        int    `yaml:"chunk_size"`
		IntradayInterval string `yaml:"intraday_interval"`
	} `yaml:"analysis"`
	Feed struct {
		Enabled      bool          `yaml:"enabled"`
		Segments     []string      `yaml:"segments"`
		Symbols      []string      `yaml:"symbols"`
		PingInterval time.Duration `yaml:"ping_interval"`
		Reconnect    struct {
			BaseDelay   time.Duration `yaml:"base_delay"`
			MaxDelay    time.Duration `yaml:"max_delay"`
			MaxAttempts int           `yaml:"max_attempts"`
		} `yaml:"reconnect"`
	} `yaml:"feed"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		SignalTopic  string   `yaml:"signal_topic"`
		ScanTopic    string   `yaml:"scan_topic"`
		TickTopic    string   `yaml:"tick_topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		MaxAttempts  int      `yaml:"max_attempts"`
	} `yaml:"kafka"`
	Queue struct {
		Workers    int           `yaml:"workers"`
		RetryLimit int           `yaml:"retry_limit"`
		RetryDelay time.Duration `yaml:"retry_delay"`
	} `yaml:"queue"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables
	if v := os.Getenv("EODHD_API_TOKEN"); v != "" {
		c.Provider.APIToken = v
	}
	if v := os.Getenv("FEED_SEGMENTS"); v != "" {
		c.Feed.Segments = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Cache.Redis.Host = v
	}
	if v := os.Getenv("MINUTE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.RateLimit.MinuteLimit = n
		}
	}
	if v := os.Getenv("DAY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.RateLimit.DayLimit = n
		}
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = "https://eodhd.com/api"
	}
	if c.Provider.WebSocketURL == "" {
		c.Provider.WebSocketURL = "wss://ws.eodhistoricaldata.com/ws"
	}
	if c.Provider.Timeout <= 0 {
		c.Provider.Timeout = 15 * time.Second
	}
	if c.Provider.Retry.MaxAttempts <= 0 {
		c.Provider.Retry.MaxAttempts = 3
	}
	if c.Provider.Retry.BaseDelay <= 0 {
		c.Provider.Retry.BaseDelay = 500 * time.Millisecond
	}
	if c.Provider.Retry.MaxDelay <= 0 {
		c.Provider.Retry.MaxDelay = 4 * time.Second
	}
	if c.Provider.Retry.MaxJitter <= 0 {
		c.Provider.Retry.MaxJitter = time.Second
	}
	if c.RateLimit.MinuteLimit <= 0 {
		c.RateLimit.MinuteLimit = 60
	}
	if c.RateLimit.DayLimit <= 0 {
		c.RateLimit.DayLimit = 100000
	}
	if c.RateLimit.ApproachThreshold <= 0 {
		c.RateLimit.ApproachThreshold = 0.8
	}
	if c.RateLimit.MaxBatchDelay <= 0 {
		c.RateLimit.MaxBatchDelay = 30 * time.Second
	}
	if c.Cache.IndicatorTTL <= 0 {
		c.Cache.IndicatorTTL = 15 * time.Minute
	}
	if c.Cache.QuoteTTL <= 0 {
		c.Cache.QuoteTTL = time.Minute
	}
	if c.Scoring.TechnicalWeight == 0 && c.Scoring.SentimentWeight == 0 && c.Scoring.LiquidityWeight == 0 {
		c.Scoring.TechnicalWeight = 0.4
		c.Scoring.SentimentWeight = 0.3
		c.Scoring.LiquidityWeight = 0.3
	}
	if c.Scoring.SignalThreshold <= 0 {
		c.Scoring.SignalThreshold = 70
	}
	if c.Scoring.SignalTTL <= 0 {
		c.Scoring.SignalTTL = 24 * time.Hour
	}
	if c.Analysis.ChunkSize <= 0 {
		c.Analysis.ChunkSize = 10
	}
	if c.Analysis.IntradayInterval == "" {
		c.Analysis.IntradayInterval = "5m"
	}
	if len(c.Feed.Segments) == 0 {
		c.Feed.Segments = []string{"us"}
	}
	if c.Feed.PingInterval <= 0 {
		c.Feed.PingInterval = 30 * time.Second
	}
	if c.Feed.Reconnect.BaseDelay <= 0 {
		c.Feed.Reconnect.BaseDelay = time.Second
	}
	if c.Feed.Reconnect.MaxDelay <= 0 {
		c.Feed.Reconnect.MaxDelay = 30 * time.Second
	}
	if c.Feed.Reconnect.MaxAttempts <= 0 {
		c.Feed.Reconnect.MaxAttempts = 10
	}
	if c.Kafka.SignalTopic == "" {
		c.Kafka.SignalTopic = "tradepulse.signals"
	}
	if c.Kafka.ScanTopic == "" {
		c.Kafka.ScanTopic = "tradepulse.scans"
	}
	if c.Kafka.TickTopic == "" {
		c.Kafka.TickTopic = "tradepulse.ticks"
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 2
	}
	if c.Queue.RetryLimit <= 0 {
		c.Queue.RetryLimit = 3
	}
	if c.Queue.RetryDelay <= 0 {
		c.Queue.RetryDelay = 10 * time.Second
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Provider.APIToken == "" && os.Getenv("EODHD_API_TOKEN") == "" {
		return fmt.Errorf("provider.api_token is required")
	}
	sum := c.Scoring.TechnicalWeight + c.Scoring.SentimentWeight + c.Scoring.LiquidityWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("scoring weights must sum to 1.0, got %.3f", sum)
	}
	if c.RateLimit.MinuteLimit > c.RateLimit.DayLimit {
		return fmt.Errorf("ratelimit.minute_limit cannot exceed ratelimit.day_limit")
	}
	return nil
}
