package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the full engine configuration. Defaults come from `default:`
// tags, structural checks from `validate:` tags; secrets may be overridden
// from the environment (see LoadWithEnv).
type Config struct {
	Environment string `yaml:"environment" default:"dev" validate:"required"`

	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`

	Exchange struct {
		Name      string `yaml:"name" default:"binance" validate:"oneof=binance paper"`
		APIKey    string `yaml:"api_key"`
		APISecret string `yaml:"api_secret"`
		Testnet   bool   `yaml:"testnet"`
	} `yaml:"exchange"`

	Symbols []string `yaml:"symbols" validate:"min=1,dive,required"`

	Engine struct {
		TickInterval   time.Duration `yaml:"tick_interval" default:"3s"`
		CandleCapacity int           `yaml:"candle_capacity" default:"1500" validate:"gte=200,lte=10000"`
		BackfillBars   int           `yaml:"backfill_bars" default:"200" validate:"gte=0"`
		SyncInterval   time.Duration `yaml:"sync_interval" default:"5m"`
	} `yaml:"engine"`

	Indicator struct {
		MAWindow         int     `yaml:"ma_window" default:"100" validate:"gte=2"`
		MinThreshold     float64 `yaml:"min_threshold" default:"0.001" validate:"gt=0"`
		MaxThreshold     float64 `yaml:"max_threshold" default:"0.05" validate:"gt=0"`
		TargetCross      int     `yaml:"target_cross" default:"8" validate:"gte=1"`
		CrossGapBars     int     `yaml:"cross_gap_bars" default:"5" validate:"gte=0"`
		QuantizeDecimals int     `yaml:"quantize_decimals" default:"4" validate:"gte=1,lte=8"`
		MomentumFraction float64 `yaml:"momentum_fraction" default:"0.2" validate:"gt=0,lte=1"`
	} `yaml:"indicator"`

	Jump struct {
		HistoryNum    int           `yaml:"history_num" default:"10" validate:"gte=2"`
		PollInterval  time.Duration `yaml:"poll_interval" default:"3s"`
		MaxAge        time.Duration `yaml:"max_age" default:"60s"`
		SkewAllowance time.Duration `yaml:"skew_allowance" default:"2s"`
		JumpPct       float64       `yaml:"jump_pct" default:"0.005" validate:"gte=0"`
	} `yaml:"jump"`

	Strategy struct {
		MaxOpen          int           `yaml:"max_open" default:"4" validate:"gte=1,lte=16"`
		EasingFraction   float64       `yaml:"easing_fraction" default:"0.1" validate:"gte=0,lt=1"`
		WatchWindow      time.Duration `yaml:"watch_window" default:"15m"`
		ReentryCooldown  time.Duration `yaml:"reentry_cooldown" default:"30m"`
		TimeLimit        time.Duration `yaml:"time_limit" default:"24h"`
		NearWindow       time.Duration `yaml:"near_window" default:"1h"`
		ScaleOutCooldown time.Duration `yaml:"scaleout_cooldown" default:"10m"`
		RiskControlPct   float64       `yaml:"risk_control_pct" default:"0.003" validate:"gt=0"`
	} `yaml:"strategy"`

	Execution struct {
		OrderQty     float64       `yaml:"order_qty" default:"0.001" validate:"gt=0"`
		FillChecks   int           `yaml:"fill_checks" default:"10" validate:"gte=1"`
		FillInterval time.Duration `yaml:"fill_interval" default:"1s"`
		TakerFee     float64       `yaml:"taker_fee" default:"0.0004" validate:"gte=0"`
		Cooldown     time.Duration `yaml:"cooldown" default:"10s"`
	} `yaml:"execution"`

	Ledger struct {
		Type   string `yaml:"type" default:"redis" validate:"oneof=redis memory"`
		Prefix string `yaml:"prefix" default:"tradepulse"`
	} `yaml:"ledger"`

	Redis struct {
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379" validate:"gt=0,lte=65535"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" default:"0"`
		PoolSize int    `yaml:"pool_size" default:"10" validate:"gte=1"`
	} `yaml:"redis"`

	ClickHouse struct {
		Enabled      bool          `yaml:"enabled"`
		Host         string        `yaml:"host" default:"localhost"`
		Port         int           `yaml:"port" default:"9000"`
		Database     string        `yaml:"database" default:"tradepulse"`
		User         string        `yaml:"user" default:"default"`
		Password     string        `yaml:"password"`
		DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"clickhouse"`

	Kafka struct {
		Brokers      []string      `yaml:"brokers"`
		FillsTopic   string        `yaml:"fills_topic" default:"tradepulse.fills"`
		RequiredAcks int           `yaml:"required_acks" default:"-1"`
		Compression  string        `yaml:"compression" default:"gzip"`
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"kafka"`

	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file, applies defaults and
// validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides secrets and addresses
// from environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("EXCHANGE_API_KEY"); v != "" {
		c.Exchange.APIKey = v
	}
	if v := os.Getenv("EXCHANGE_API_SECRET"); v != "" {
		c.Exchange.APISecret = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port, splitErr := splitHostPort(v)
		if splitErr != nil {
			return nil, splitErr
		}
		c.Redis.Host, c.Redis.Port = host, port
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	return c, nil
}

// Validate checks tag rules plus the relations the tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Indicator.MinThreshold >= c.Indicator.MaxThreshold {
		return fmt.Errorf("indicator.min_threshold must be below max_threshold")
	}
	if c.Engine.CandleCapacity < c.Indicator.MAWindow {
		return fmt.Errorf("engine.candle_capacity must cover indicator.ma_window")
	}
	if c.Exchange.Name == "binance" && c.Exchange.APIKey == "" {
		return fmt.Errorf("exchange.api_key is required for binance")
	}
	return nil
}

func splitHostPort(addr string) (string, int, error) {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return addr, 6379, nil
	}
	var port int
	if _, err := fmt.Sscanf(addr[i+1:], "%d", &port); err != nil {
		return "", 0, fmt.Errorf("bad addr %q: %w", addr, err)
	}
	return addr[:i], port, nil
}
