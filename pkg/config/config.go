package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string   `yaml:"environment"`
	Symbols     []string `yaml:"symbols"`

	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Stream struct {
		URL               string        `yaml:"url"`
		Suffixes          []string      `yaml:"suffixes"`
		MaxStreamsPerConn int           `yaml:"max_streams_per_conn"`
		ReadTimeout       time.Duration `yaml:"read_timeout"`
		StopTimeout       time.Duration `yaml:"stop_timeout"`
		MaxDispatch       int           `yaml:"max_dispatch"`
	} `yaml:"stream"`

	Poll struct {
		BaseURL     string        `yaml:"base_url"`
		Interval    time.Duration `yaml:"interval"`
		Concurrency int           `yaml:"concurrency"`
		Cooldown    time.Duration `yaml:"cooldown"`
		Timeout     time.Duration `yaml:"timeout"`
	} `yaml:"poll"`

	Pipeline struct {
		QueueCapacity int           `yaml:"queue_capacity"`
		BatchSize     int           `yaml:"batch_size"`
		FlushInterval time.Duration `yaml:"flush_interval"`
		Timeframe     string        `yaml:"timeframe"`
	} `yaml:"pipeline"`

	Features struct {
		Window       int           `yaml:"window"`
		ReturnWindow int           `yaml:"return_window"`
		Interval     time.Duration `yaml:"interval"`
		Workers      int           `yaml:"workers"`
	} `yaml:"features"`

	Engine struct {
		Interval      time.Duration `yaml:"interval"`
		History       int           `yaml:"history"`
		MoveThreshold float64       `yaml:"move_threshold"`
		Thresholds    Thresholds    `yaml:"thresholds"`
	} `yaml:"engine"`

	Retention struct {
		MaxAge        time.Duration `yaml:"max_age"`
		PruneInterval time.Duration `yaml:"prune_interval"`
	} `yaml:"retention"`

	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		MaxOpenConns     int           `yaml:"max_open_conns"`
		MaxIdleConns     int           `yaml:"max_idle_conns"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`

	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		MaxAttempts  int      `yaml:"max_attempts"`
	} `yaml:"kafka"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"log"`
}

// Thresholds holds the tunable constants for the family signal heuristics.
type Thresholds struct {
	AccumulationOIVol     float64 `yaml:"accumulation_oi_vol"`
	AccumulationPriceVol  float64 `yaml:"accumulation_price_vol"`
	AccumulationTopTrader float64 `yaml:"accumulation_top_trader"`
	AccumulationImbalance float64 `yaml:"accumulation_imbalance"`
	DistributionOIVol     float64 `yaml:"distribution_oi_vol"`
	DistributionImbalance float64 `yaml:"distribution_imbalance"`
	MomentumMove          float64 `yaml:"momentum_move"`
	MomentumTakerRatio    float64 `yaml:"momentum_taker_ratio"`
	ExhaustionZScore      float64 `yaml:"exhaustion_zscore"`
	OrderflowTakerRatio   float64 `yaml:"orderflow_taker_ratio"`
	OrderflowImbalance    float64 `yaml:"orderflow_imbalance"`
	DivergenceGap         float64 `yaml:"divergence_gap"`
}

// Load reads and parses a YAML configuration file. A .env file in the
// working directory is loaded first (best-effort) so local development gets
// the same overrides containers get from their environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()
	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if len(c.Stream.Suffixes) == 0 {
		c.Stream.Suffixes = []string{"ticker", "markPrice", "openInterest", "depth@100ms", "aggTrade"}
	}
	if c.Stream.MaxStreamsPerConn == 0 {
		c.Stream.MaxStreamsPerConn = 40
	}
	if c.Stream.ReadTimeout == 0 {
		c.Stream.ReadTimeout = 60 * time.Second
	}
	if c.Stream.StopTimeout == 0 {
		c.Stream.StopTimeout = time.Second
	}
	if c.Stream.MaxDispatch == 0 {
		c.Stream.MaxDispatch = 4096
	}
	if c.Poll.Interval == 0 {
		c.Poll.Interval = 10 * time.Second
	}
	if c.Poll.Concurrency == 0 {
		c.Poll.Concurrency = 10
	}
	if c.Poll.Cooldown == 0 {
		c.Poll.Cooldown = 10 * time.Second
	}
	if c.Poll.Timeout == 0 {
		c.Poll.Timeout = 10 * time.Second
	}
	if c.Pipeline.QueueCapacity == 0 {
		c.Pipeline.QueueCapacity = 1024
	}
	if c.Pipeline.BatchSize == 0 {
		c.Pipeline.BatchSize = 200
	}
	if c.Pipeline.FlushInterval == 0 {
		c.Pipeline.FlushInterval = 2 * time.Second
	}
	if c.Pipeline.Timeframe == "" {
		c.Pipeline.Timeframe = "1m"
	}
	if c.Features.Window == 0 {
		c.Features.Window = 120
	}
	if c.Features.ReturnWindow == 0 {
		c.Features.ReturnWindow = 20
	}
	if c.Features.Interval == 0 {
		c.Features.Interval = 15 * time.Second
	}
	if c.ClickHouse.MaxOpenConns == 0 {
		c.ClickHouse.MaxOpenConns = 10
	}
	if c.ClickHouse.MaxIdleConns == 0 {
		c.ClickHouse.MaxIdleConns = 5
	}
	// Feature worker pool sized to the persistence pool unless overridden.
	if c.Features.Workers == 0 {
		c.Features.Workers = c.ClickHouse.MaxOpenConns
	}
	if c.Engine.Interval == 0 {
		c.Engine.Interval = 30 * time.Second
	}
	if c.Engine.History == 0 {
		c.Engine.History = 60
	}
	if c.Engine.MoveThreshold == 0 {
		c.Engine.MoveThreshold = 0.002
	}
	c.Engine.Thresholds.applyDefaults()
	if c.Retention.MaxAge == 0 {
		c.Retention.MaxAge = 72 * time.Hour
	}
	if c.Retention.PruneInterval == 0 {
		c.Retention.PruneInterval = time.Hour
	}
	if c.Kafka.Compression == "" {
		c.Kafka.Compression = "gzip"
	}
	if c.Kafka.MaxAttempts == 0 {
		c.Kafka.MaxAttempts = 3
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
}

// DefaultThresholds returns the stock heuristic thresholds.
func DefaultThresholds() Thresholds {
	var t Thresholds
	t.applyDefaults()
	return t
}

func (t *Thresholds) applyDefaults() {
	if t.AccumulationOIVol == 0 {
		t.AccumulationOIVol = 1.0
	}
	if t.AccumulationPriceVol == 0 {
		t.AccumulationPriceVol = 0.05
	}
	if t.AccumulationTopTrader == 0 {
		t.AccumulationTopTrader = 1.5
	}
	if t.AccumulationImbalance == 0 {
		t.AccumulationImbalance = 0.55
	}
	if t.DistributionOIVol == 0 {
		t.DistributionOIVol = 1.0
	}
	if t.DistributionImbalance == 0 {
		t.DistributionImbalance = 0.45
	}
	if t.MomentumMove == 0 {
		t.MomentumMove = 0.5
	}
	if t.MomentumTakerRatio == 0 {
		t.MomentumTakerRatio = 1.2
	}
	if t.ExhaustionZScore == 0 {
		t.ExhaustionZScore = 2.0
	}
	if t.OrderflowTakerRatio == 0 {
		t.OrderflowTakerRatio = 1.5
	}
	if t.OrderflowImbalance == 0 {
		t.OrderflowImbalance = 0.6
	}
	if t.DivergenceGap == 0 {
		t.DivergenceGap = 1.0
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Symbols = splitTrim(v)
	}
	if v := os.Getenv("STREAM_URL"); v != "" {
		c.Stream.URL = v
	}
	if v := os.Getenv("API_BASE_URL"); v != "" {
		c.Poll.BaseURL = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitTrim(v)
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REST_POLL_INTERVAL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			c.Poll.Interval = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("symbols cannot be empty")
	}
	if c.Stream.URL == "" {
		return fmt.Errorf("stream.url is required")
	}
	if c.Poll.BaseURL == "" {
		return fmt.Errorf("poll.base_url is required")
	}
	if c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers required when kafka is enabled")
	}
	if c.Kafka.Enabled && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic required when kafka is enabled")
	}
	return nil
}

func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
