package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	xhttp "PolyEdge/pkg/http"
	applogger "PolyEdge/pkg/logger"
	"PolyEdge/pkg/tracing"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string             `yaml:"environment" default:"development" validate:"oneof=development staging production test"`
	Server      xhttp.ServerConfig `yaml:"server"`
	RateLimit   RateLimitConfig    `yaml:"rate_limit"`
	Log         applogger.Config   `yaml:"log"`
	Collector   CollectorConfig    `yaml:"log_collector"`
	Metrics     MetricsConfig      `yaml:"metrics"`
	Tracing     tracing.Config     `yaml:"tracing"`
	Strategy    StrategyConfig     `yaml:"strategy"`
	Engine      EngineConfig       `yaml:"engine"`
	Paper       PaperConfig        `yaml:"paper"`
	SQLite      SQLiteConfig       `yaml:"sqlite"`
	ClickHouse  ClickHouseConfig   `yaml:"clickhouse"`
	Kafka       KafkaConfig        `yaml:"kafka"`
	Redis       RedisConfig        `yaml:"redis"`
	Queue       QueueConfig        `yaml:"queue"`
}

type RateLimitConfig struct {
	Enabled  bool    `yaml:"enabled" default:"true"`
	Capacity float64 `yaml:"capacity" default:"20" validate:"gt=0"`
	Refill   float64 `yaml:"refill_per_sec" default:"5" validate:"gt=0"`
}

type CollectorConfig struct {
	Enabled   bool          `yaml:"enabled" default:"false"`
	Interval  time.Duration `yaml:"interval" default:"30s"`
	Threshold int           `yaml:"threshold" default:"100" validate:"gte=1"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" default:"true"`
	Namespace string `yaml:"namespace" default:"polyedge"`
}

type TAWeights struct {
	RSI        float64 `yaml:"rsi" default:"0.20"`
	MACD       float64 `yaml:"macd" default:"0.25"`
	VWAP       float64 `yaml:"vwap" default:"0.15"`
	HeikenAshi float64 `yaml:"heiken_ashi" default:"0.25"`
	Regime     float64 `yaml:"regime" default:"0.15"`
}

func (w TAWeights) Sum() float64 { return w.RSI + w.MACD + w.VWAP + w.HeikenAshi + w.Regime }

type StrategyConfig struct {
	EdgeThreshold   float64   `yaml:"edge_threshold" default:"0.05" validate:"gte=0,lt=1"`
	RSIPeriod       int       `yaml:"rsi_period" default:"14" validate:"gte=2"`
	RSIOverbought   float64   `yaml:"rsi_overbought" default:"70" validate:"gt=0,lt=100"`
	RSIOversold     float64   `yaml:"rsi_oversold" default:"30" validate:"gt=0,lt=100"`
	MinCandles      int       `yaml:"min_candles" default:"30" validate:"gte=1"`
	MinConfluence   float64   `yaml:"min_confluence" default:"0.15" validate:"gte=0,lte=1"`
	Weights         TAWeights `yaml:"weights"`
	IncludeBaseline bool      `yaml:"include_baseline" default:"true"`
	IncludeRandom   bool      `yaml:"include_random" default:"false"`
	RandomSeed      int64     `yaml:"random_seed" default:"0"`
}

type EngineConfig struct {
	MinEdge  float64 `yaml:"min_edge" default:"0.05" validate:"gte=0"`
	MaxStake float64 `yaml:"max_stake" default:"100" validate:"gt=0"`
	Bankroll float64 `yaml:"bankroll" default:"1000" validate:"gt=0"`
}

type PaperMarket struct {
	Name           string `yaml:"name" validate:"required"`
	Asset          string `yaml:"asset"`
	CandleInterval string `yaml:"candle_interval" default:"1m" validate:"oneof=1m 5m"`
}

type PaperConfig struct {
	Enabled      bool          `yaml:"enabled" default:"true"`
	PollInterval time.Duration `yaml:"poll_interval" default:"60s"`
	CandleLimit  int           `yaml:"candle_limit" default:"200" validate:"gte=1,lte=5000"`
	LockTTL      time.Duration `yaml:"lock_ttl" default:"30s"`
	Markets      []PaperMarket `yaml:"markets" validate:"dive"`
}

type SQLiteConfig struct {
	Path        string        `yaml:"path" default:"data/paper_trades.db" validate:"required"`
	BusyTimeout time.Duration `yaml:"busy_timeout" default:"5s"`
	MaxOpen     int           `yaml:"max_open_conns" default:"1"`
}

type ClickHouseConfig struct {
	Enabled         bool          `yaml:"enabled" default:"false"`
	Host            string        `yaml:"host" default:"localhost"`
	Port            int           `yaml:"port" default:"9000"`
	Database        string        `yaml:"database" default:"polyedge"`
	User            string        `yaml:"user" default:"default"`
	Password        string        `yaml:"password"`
	UseHTTP         bool          `yaml:"use_http" default:"false"`
	AsyncInsert     bool          `yaml:"async_insert" default:"true"`
	WaitForAsync    bool          `yaml:"wait_for_async_insert" default:"false"`
	DialTimeout     time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"30s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
	CandleTable     string        `yaml:"candle_table"`
	EvaluationTable string        `yaml:"evaluation_table"`
	CandleCacheTTL  time.Duration `yaml:"candle_cache_ttl" default:"15s"`
}

type KafkaTopics struct {
	Decisions   string `yaml:"decisions" default:"polyedge.decisions"`
	Trades      string `yaml:"trades" default:"polyedge.trades"`
	Resolutions string `yaml:"resolutions" default:"polyedge.resolutions"`
	Logs        string `yaml:"logs" default:"polyedge.logs"`
}

type KafkaProducerConfig struct {
	RequiredAcks int           `yaml:"required_acks" default:"-1"`
	Compression  string        `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
	MaxAttempts  int           `yaml:"max_attempts" default:"5"`
	BatchSize    int           `yaml:"batch_size" default:"100"`
	BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
	Linger       time.Duration `yaml:"linger" default:"10ms"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
	Async        bool          `yaml:"async" default:"false"`
}

type KafkaConsumerConfig struct {
	GroupID     string        `yaml:"group_id" default:"polyedge"`
	StartOffset string        `yaml:"start_offset" default:"earliest" validate:"oneof=earliest latest"`
	Workers     int           `yaml:"workers" default:"2" validate:"gte=1"`
	BufferSize  int           `yaml:"buffer_size" default:"100"`
	RetryMax    int           `yaml:"retry_max" default:"3"`
	BackoffMin  time.Duration `yaml:"backoff_min" default:"100ms"`
	BackoffMax  time.Duration `yaml:"backoff_max" default:"5s"`
	DLQTopic    string        `yaml:"dlq_topic"`
	MinBytes    int           `yaml:"min_bytes" default:"1"`
	MaxBytes    int           `yaml:"max_bytes" default:"10485760"`
}

type KafkaConfig struct {
	Enabled  bool                `yaml:"enabled" default:"false"`
	Brokers  []string            `yaml:"brokers"`
	Topics   KafkaTopics         `yaml:"topics"`
	Producer KafkaProducerConfig `yaml:"producer"`
	Consumer KafkaConsumerConfig `yaml:"consumer"`
	// Pipeline bounds decision publishing.
	PipelineMaxRPS int `yaml:"pipeline_max_rps" default:"5"`
	PipelineBuffer int `yaml:"pipeline_buffer" default:"1000"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled" default:"false"`
	Host     string        `yaml:"host" default:"localhost"`
	Port     int           `yaml:"port" default:"6379"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db" default:"0"`
	PoolSize int           `yaml:"pool_size" default:"10"`
	Prefix   string        `yaml:"prefix" default:"polyedge"`
	Timeout  time.Duration `yaml:"timeout" default:"3s"`
}

type QueueConfig struct {
	Enabled    bool          `yaml:"enabled" default:"false"`
	Backend    string        `yaml:"backend" default:"redis" validate:"oneof=redis memory"`
	Workers    int           `yaml:"workers" default:"2" validate:"gte=1"`
	QueueSize  int           `yaml:"queue_size" default:"100"`
	RetryLimit int           `yaml:"retry_limit" default:"3"`
	RetryDelay time.Duration `yaml:"retry_delay" default:"5s"`
}

var validate = validator.New()

// Default returns a configuration with every default applied.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Parse applies defaults, overlays the YAML document b and validates.
func Parse(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := c.overlay(b); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// overlay decodes b over the defaults. List entries only exist after
// decoding, so their defaults are applied here.
func (c *Config) overlay(b []byte) error {
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	for i := range c.Paper.Markets {
		if err := defaults.Set(&c.Paper.Markets[i]); err != nil {
			return fmt.Errorf("apply defaults: %w", err)
		}
	}
	return nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// LoadWithEnv loads .env (if present) and the YAML file, then applies
// environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := c.overlay(b); err != nil {
		return nil, err
	}
	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides selected fields from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && v != "" {
			parts := strings.Split(v, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			*dst = parts
		}
	}
	flag := func(key string, dst *bool) error {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("env %s: %w", key, err)
			}
			*dst = b
		}
		return nil
	}
	num := func(key string, dst *int) error {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("env %s: %w", key, err)
			}
			*dst = n
		}
		return nil
	}

	str("ENVIRONMENT", &c.Environment)
	str("LOG_LEVEL", &c.Log.Level)
	str("DATABASE_PATH", &c.SQLite.Path)
	list("KAFKA_BROKERS", &c.Kafka.Brokers)
	str("REDIS_HOST", &c.Redis.Host)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("CLICKHOUSE_HOST", &c.ClickHouse.Host)
	str("CLICKHOUSE_PASSWORD", &c.ClickHouse.Password)

	for _, e := range []struct {
		key string
		dst *bool
	}{
		{"KAFKA_ENABLED", &c.Kafka.Enabled},
		{"REDIS_ENABLED", &c.Redis.Enabled},
		{"CLICKHOUSE_ENABLED", &c.ClickHouse.Enabled},
		{"PAPER_ENABLED", &c.Paper.Enabled},
		{"TRACING_ENABLED", &c.Tracing.Enabled},
	} {
		if err := flag(e.key, e.dst); err != nil {
			return err
		}
	}
	if err := num("HTTP_PORT", &c.Server.Port); err != nil {
		return err
	}
	return num("REDIS_PORT", &c.Redis.Port)
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	s := c.Strategy
	if s.RSIOversold >= s.RSIOverbought {
		return fmt.Errorf("strategy.rsi_oversold must be below rsi_overbought")
	}
	if math.Abs(s.Weights.Sum()-1) > 1e-6 {
		return fmt.Errorf("strategy.weights must sum to 1, got %.4f", s.Weights.Sum())
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Queue.Enabled && c.Queue.Backend == "redis" && !c.Redis.Enabled {
		return fmt.Errorf("queue backend redis requires redis.enabled")
	}
	seen := make(map[string]bool, len(c.Paper.Markets))
	for _, m := range c.Paper.Markets {
		key := strings.ToUpper(m.Name)
		if seen[key] {
			return fmt.Errorf("paper.markets: duplicate market %q", m.Name)
		}
		seen[key] = true
	}
	return nil
}

// RedisAddr is host:port of the Redis server.
func (c RedisConfig) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }
