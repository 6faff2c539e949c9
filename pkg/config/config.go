package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"SpotAgent/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Enabled         bool          `yaml:"enabled" default:"true"`
		Port            int           `yaml:"port" default:"8080" validate:"min=1,max=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CORS            bool          `yaml:"cors" default:"false"`
	} `yaml:"server"`
	Log struct {
		Level        string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format       string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output       string `yaml:"output" default:"stdout"`
		MaxSizeMB    int    `yaml:"max_size_mb" default:"100"`
		MaxBackups   int    `yaml:"max_backups" default:"5"`
		MaxAgeDays   int    `yaml:"max_age_days" default:"14"`
		Compress     bool   `yaml:"compress" default:"true"`
		Collect      bool   `yaml:"collect" default:"false"`
		CollectTopic string `yaml:"collect_topic" default:"agent.errors"`
	} `yaml:"log"`
	Exchange struct {
		Name         string        `yaml:"name" default:"kraken" validate:"oneof=kraken"`
		BaseURL      string        `yaml:"base_url" default:"https://api.kraken.com" validate:"url"`
		WebSocketURL string        `yaml:"websocket_url" default:"wss://ws.kraken.com/v2"`
		UseWebSocket bool          `yaml:"use_websocket" default:"false"`
		WSMaxAge     time.Duration `yaml:"ws_max_age" default:"15s"`
		APIKey       string        `yaml:"api_key"`
		APISecret    string        `yaml:"api_secret"`
		Timeout      time.Duration `yaml:"timeout" default:"10s"`
		BuyByCost    bool          `yaml:"buy_by_cost" default:"true"`
		TakerFee     float64       `yaml:"taker_fee" default:"0.0026" validate:"gte=0,lt=0.1"`
		MakerFee     float64       `yaml:"maker_fee" default:"0.0016" validate:"gte=0,lt=0.1"`
	} `yaml:"exchange"`
	Trading struct {
		Symbols            []string      `yaml:"symbols" default:"[\"BTC/USD\",\"ETH/USD\"]" validate:"min=1,dive,required"`
		QuoteCurrency      string        `yaml:"quote_currency" default:"USD" validate:"required"`
		Timeframe          string        `yaml:"timeframe" default:"1m" validate:"oneof=1m 5m 15m 1h"`
		CandleLimit        int           `yaml:"candle_limit" default:"220" validate:"min=30"`
		RiskPerTrade       float64       `yaml:"risk_per_trade" default:"50" validate:"gt=0"`
		MaxDailyLoss       float64       `yaml:"max_daily_loss" default:"100" validate:"gt=0"`
		MaxDailyTrades     int           `yaml:"max_daily_trades" default:"10" validate:"gt=0"`
		CooldownMinutes    int           `yaml:"cooldown_minutes" default:"30" validate:"min=0"`
		SideBias           string        `yaml:"side_bias" default:"LONG_ONLY" validate:"oneof=LONG_ONLY BOTH"`
		LoopIntervalMS     int           `yaml:"loop_interval_ms" default:"60000" validate:"min=1000"`
		EnableTrading      bool          `yaml:"enable_trading" default:"false"`
		DryRun             bool          `yaml:"dry_run" default:"true"`
		PaperQuoteBalance  float64       `yaml:"paper_quote_balance" default:"1000" validate:"gte=0"`
		DustThreshold      float64       `yaml:"dust_threshold" default:"1" validate:"gte=0"`
		DustSweepInterval  time.Duration `yaml:"dust_sweep_interval" default:"10m"`
		FeeRefreshInterval time.Duration `yaml:"fee_refresh_interval" default:"24h"`
		TimeExitCandles    int           `yaml:"time_exit_candles" default:"45" validate:"min=1"`
		TrailTriggerR      float64       `yaml:"trail_trigger_r" default:"1.0" validate:"gt=0"`
		TrailBuffer        float64       `yaml:"trail_buffer" default:"0.1" validate:"gte=0,lt=1"`
		TrailTightBuffer   float64       `yaml:"trail_tight_buffer" default:"0.25" validate:"gte=0,lt=1"`
		TrailTightenATRPct float64       `yaml:"trail_tighten_atr_pct" default:"0.10" validate:"gte=0"`
	} `yaml:"trading"`
	Strategy struct {
		RSIPeriod           int     `yaml:"rsi_period" default:"14" validate:"min=2"`
		RSIOversold         float64 `yaml:"rsi_oversold" default:"35" validate:"gte=30,lte=70"`
		RSIOverbought       float64 `yaml:"rsi_overbought" default:"65" validate:"gte=30,lte=70"`
		EMAFast             int     `yaml:"ema_fast" default:"20" validate:"min=2"`
		EMASlow             int     `yaml:"ema_slow" default:"50" validate:"min=2"`
		EMATrend            int     `yaml:"ema_trend" default:"200" validate:"min=2"`
		ATRPeriod           int     `yaml:"atr_period" default:"14" validate:"min=2"`
		ATRAvgWindow        int     `yaml:"atr_avg_window" default:"10" validate:"min=1"`
		VolPeriod           int     `yaml:"vol_period" default:"20" validate:"min=2"`
		ATRLowPct           float64 `yaml:"atr_low_pct" default:"0.05" validate:"gte=0"`
		ATRHighPct          float64 `yaml:"atr_high_pct" default:"2.0" validate:"gt=0"`
		VolZMin             float64 `yaml:"vol_z_min" default:"0.5"`
		ConfidenceThreshold float64 `yaml:"confidence_threshold" default:"0.35" validate:"gte=0,lte=1"`
		MomentumConfirm     bool    `yaml:"momentum_confirm" default:"true"`
		TPMultiplier        float64 `yaml:"tp_multiplier" default:"2.4" validate:"gte=0.8,lte=3.5"`
		SLMultiplier        float64 `yaml:"sl_multiplier" default:"1.2" validate:"gte=0.8,lte=3.5"`
	} `yaml:"strategy"`
	Tuner struct {
		AdaptiveVolatility  bool    `yaml:"adaptive_volatility" default:"true"`
		OptimizationMinutes int     `yaml:"optimization_interval_minutes" default:"360" validate:"min=1"`
		LearningRate        float64 `yaml:"learning_rate" default:"0.01" validate:"gt=0,lte=0.1"`
		LowRiskWindow       int     `yaml:"low_risk_window" default:"10" validate:"min=1"`
		LowRiskLosses       int     `yaml:"low_risk_losses" default:"5" validate:"min=1"`
	} `yaml:"tuner"`
	Postgres struct {
		DSN             string        `yaml:"dsn" validate:"required"`
		MaxOpenConns    int           `yaml:"max_open_conns" default:"10" validate:"min=1"`
		MaxIdleConns    int           `yaml:"max_idle_conns" default:"5" validate:"min=0"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" default:"30m"`
	} `yaml:"postgres"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled" default:"false"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"spotagent"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http" default:"false"`
		AsyncInsert      bool          `yaml:"async_insert" default:"true"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert" default:"false"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled" default:"false"`
		Brokers      []string `yaml:"brokers"`
		EventsTopic  string   `yaml:"events_topic" default:"agent.trade-events"`
		SignalsTopic string   `yaml:"signals_topic" default:"agent.signals"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy" validate:"oneof=gzip snappy lz4 zstd"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"200ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"5s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"5s"`
			Async        bool          `yaml:"async" default:"true"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled" default:"false"`
			GroupID    string        `yaml:"group_id" default:"spotagent-journal"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"64"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"agent.journal-dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Redis struct {
		Enabled  bool   `yaml:"enabled" default:"false"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" default:"0"`
		Prefix   string `yaml:"prefix" default:"spotagent"`
	} `yaml:"redis"`
	Notify struct {
		QueueWorkers int           `yaml:"queue_workers" default:"1" validate:"min=1"`
		RetryLimit   int           `yaml:"retry_limit" default:"3" validate:"min=0"`
		RetryDelay   time.Duration `yaml:"retry_delay" default:"15s"`
		RSIAlertTTL  time.Duration `yaml:"rsi_alert_ttl" default:"10m"`
	} `yaml:"notify"`
	Telegram struct {
		Enabled      bool    `yaml:"enabled" default:"false"`
		Token        string  `yaml:"token"`
		AllowedChats []int64 `yaml:"allowed_chats"`
	} `yaml:"telegram"`
	Operator struct {
		APITokens          []string `yaml:"api_tokens"`
		RateLimitPerMinute int      `yaml:"rate_limit_per_minute" default:"30" validate:"min=1"`
	} `yaml:"operator"`
	Files struct {
		Dir           string `yaml:"dir" default:"data"`
		RuntimeConfig string `yaml:"runtime_config" default:"runtime_config.json"`
		Weights       string `yaml:"weights" default:"weights.json"`
		LearningLog   string `yaml:"learning_log" default:"learning_log.json"`
	} `yaml:"files"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file on top of the defaults.
// A missing file is not an error: the environment may carry the whole surface.
func Load(path string) (*Config, error) {
	c, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func load(path string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if path == "" {
		return &c, nil
	}

	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return &c, nil
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyEnv() {
	c.Exchange.APIKey = util.EnvString("EXCHANGE_API_KEY", c.Exchange.APIKey)
	c.Exchange.APISecret = util.EnvString("EXCHANGE_API_SECRET", c.Exchange.APISecret)
	c.Trading.Symbols = util.EnvList("SYMBOLS", c.Trading.Symbols)
	c.Trading.Timeframe = util.EnvString("TIMEFRAME", c.Trading.Timeframe)
	c.Trading.RiskPerTrade = util.EnvFloat("RISK_PER_TRADE", c.Trading.RiskPerTrade)
	c.Trading.MaxDailyLoss = util.EnvFloat("MAX_DAILY_LOSS", c.Trading.MaxDailyLoss)
	c.Trading.MaxDailyTrades = util.EnvInt("MAX_DAILY_TRADES", c.Trading.MaxDailyTrades)
	c.Trading.CooldownMinutes = util.EnvInt("COOLDOWN_MINUTES", c.Trading.CooldownMinutes)
	c.Trading.LoopIntervalMS = util.EnvInt("LOOP_INTERVAL_MS", c.Trading.LoopIntervalMS)
	c.Trading.EnableTrading = util.EnvBool("ENABLE_TRADING", c.Trading.EnableTrading)
	c.Trading.DryRun = util.EnvBool("DRY_RUN", c.Trading.DryRun)
	c.Trading.SideBias = util.EnvString("SIDE_BIAS", c.Trading.SideBias)
	c.Strategy.RSIOversold = util.EnvFloat("RSI_OVERSOLD", c.Strategy.RSIOversold)
	c.Strategy.RSIOverbought = util.EnvFloat("RSI_OVERBOUGHT", c.Strategy.RSIOverbought)
	c.Strategy.EMAFast = util.EnvInt("EMA_FAST", c.Strategy.EMAFast)
	c.Strategy.EMASlow = util.EnvInt("EMA_SLOW", c.Strategy.EMASlow)
	c.Strategy.EMATrend = util.EnvInt("EMA_TREND", c.Strategy.EMATrend)
	c.Strategy.ATRLowPct = util.EnvFloat("ATR_LOW_PCT", c.Strategy.ATRLowPct)
	c.Strategy.ATRHighPct = util.EnvFloat("ATR_HIGH_PCT", c.Strategy.ATRHighPct)
	c.Strategy.VolZMin = util.EnvFloat("VOL_Z_MIN", c.Strategy.VolZMin)
	c.Strategy.ConfidenceThreshold = util.EnvFloat("CONFIDENCE_THRESHOLD", c.Strategy.ConfidenceThreshold)
	c.Tuner.OptimizationMinutes = util.EnvInt("OPTIMIZATION_INTERVAL_MINUTES", c.Tuner.OptimizationMinutes)
	c.Tuner.LearningRate = util.EnvFloat("LEARNING_RATE", c.Tuner.LearningRate)
	c.Postgres.DSN = util.EnvString("POSTGRES_DSN", c.Postgres.DSN)
	c.Telegram.Token = util.EnvString("TELEGRAM_TOKEN", c.Telegram.Token)
	if chats := util.EnvInt64List("TELEGRAM_ALLOWED_CHATS"); len(chats) > 0 {
		c.Telegram.AllowedChats = chats
	}
	if c.Telegram.Token != "" && len(c.Telegram.AllowedChats) > 0 {
		c.Telegram.Enabled = true
	}
	c.Operator.APITokens = util.EnvList("OPERATOR_API_TOKENS", c.Operator.APITokens)
	c.Kafka.Brokers = util.EnvList("KAFKA_BROKERS", c.Kafka.Brokers)
	c.Redis.Host = util.EnvString("REDIS_HOST", c.Redis.Host)
}

// Validate checks tags first, then the rules that span several fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	s := c.Strategy
	if s.RSIOversold >= s.RSIOverbought {
		return fmt.Errorf("strategy.rsi_oversold (%.1f) must be below strategy.rsi_overbought (%.1f)", s.RSIOversold, s.RSIOverbought)
	}
	if s.ATRLowPct >= s.ATRHighPct {
		return fmt.Errorf("strategy.atr_low_pct must be below strategy.atr_high_pct")
	}
	if !(s.EMAFast < s.EMASlow && s.EMASlow < s.EMATrend) {
		return fmt.Errorf("strategy ema periods must satisfy fast < slow < trend")
	}
	if c.Trading.EnableTrading && !c.Trading.DryRun && (c.Exchange.APIKey == "" || c.Exchange.APISecret == "") {
		return fmt.Errorf("exchange.api_key and exchange.api_secret are required for live trading")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Kafka.Consumer.Enabled && !c.ClickHouse.Enabled {
		return fmt.Errorf("kafka.consumer requires clickhouse to be enabled")
	}
	if c.Telegram.Enabled && (c.Telegram.Token == "" || len(c.Telegram.AllowedChats) == 0) {
		return fmt.Errorf("telegram.token and telegram.allowed_chats are required when telegram is enabled")
	}
	return nil
}

// LoopInterval returns the control loop period.
func (c *Config) LoopInterval() time.Duration {
	return time.Duration(c.Trading.LoopIntervalMS) * time.Millisecond
}

// FilePath joins a persisted-file name with the files directory.
func (c *Config) FilePath(name string) string {
	return filepath.Join(c.Files.Dir, name)
}
