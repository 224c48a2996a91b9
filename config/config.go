package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/llmtrader/internal/domain"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del trader.
type Config struct {
	Trading TradingConfig `yaml:"trading"`
	Risk    RiskConfig    `yaml:"risk"`
	Oracle  OracleConfig  `yaml:"oracle"`
	Market  MarketConfig  `yaml:"market"`
	Gateway GatewayConfig `yaml:"gateway"`
	Storage StorageConfig `yaml:"storage"`
	Cache   CacheConfig   `yaml:"cache"`
	Notify  NotifyConfig  `yaml:"notify"`
	API     APIConfig     `yaml:"api"`
	Log     LogConfig     `yaml:"log"`
	Trace   TraceConfig   `yaml:"trace"`
}

// TradingConfig controla el loop de trading.
type TradingConfig struct {
	IntervalSeconds       int      `yaml:"interval_seconds"`
	Tokens                []string `yaml:"tokens"`
	InitialBalance        float64  `yaml:"initial_balance"` // quote units, solo si no hay ledger persistido
	Workers               int      `yaml:"workers"`
	ConfirmTimeoutSeconds int      `yaml:"confirm_timeout_seconds"`
}

// RiskConfig es la postura de riesgo. Los porcentajes son fracciones (0.05 = 5%).
type RiskConfig struct {
	Environment         string  `yaml:"environment"` // development | paper_trading | production
	MaxPositionSize     float64 `yaml:"max_position_size"`
	MaxDailyLoss        float64 `yaml:"max_daily_loss"`
	StopLossPercentage  float64 `yaml:"stop_loss_percentage"`
	MaxOpenPositions    int     `yaml:"max_open_positions"`
	MinTradeAmount      float64 `yaml:"min_trade_amount"`
	SlippageTolerance   float64 `yaml:"slippage_tolerance"`
	ReserveBalance      float64 `yaml:"reserve_balance"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// OracleConfig selecciona el proveedor LLM.
type OracleConfig struct {
	Provider       string  `yaml:"provider"` // openai | anthropic | mock
	Model          string  `yaml:"model"`
	APIKey         string  `yaml:"-"` // solo desde env
	BaseURL        string  `yaml:"base_url"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	MaxAttempts    int     `yaml:"max_attempts"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
}

// MarketConfig controla la fuente de datos de mercado.
type MarketConfig struct {
	BinanceBase         string `yaml:"binance_base"`
	QuoteAsset          string `yaml:"quote_asset"` // p.ej. USDT; símbolo = token + quote
	Interval            string `yaml:"interval"`    // intervalo de velas: 1m, 5m, 1h...
	HistoryLimit        int    `yaml:"history_limit"`
	MaxStalenessMinutes int    `yaml:"max_staleness_minutes"`
}

// GatewayConfig controla la liquidación de swaps (Jupiter + Solana RPC).
type GatewayConfig struct {
	JupiterBase      string                 `yaml:"jupiter_base"`
	RPCURL           string                 `yaml:"rpc_url"`
	KeypairPath      string                 `yaml:"-"` // solo desde env
	QuoteMint        string                 `yaml:"quote_mint"`
	QuoteDecimals    int32                  `yaml:"quote_decimals"`
	Tokens           map[string]TokenConfig `yaml:"tokens"`
	PollIntervalMs   int                    `yaml:"poll_interval_ms"`
	PaperLatencyMs   int                    `yaml:"paper_latency_ms"`
	PaperSlippageBps int                    `yaml:"paper_slippage_bps"`
}

// TokenConfig describe un token SPL operable.
type TokenConfig struct {
	Mint     string `yaml:"mint"`
	Decimals int32  `yaml:"decimals"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// CacheConfig controla la caché Redis de datos de mercado. Addr vacío la desactiva.
type CacheConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"-"`
	DB         int    `yaml:"db"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// NotifyConfig controla los canales de notificación. Los secretos vienen del env.
type NotifyConfig struct {
	Console        bool   `yaml:"console"`
	ConsoleSignals bool   `yaml:"console_signals"`
	DiscordWebhook string `yaml:"-"`
	TelegramBase   string `yaml:"telegram_base"`
	TelegramToken  string `yaml:"-"`
	TelegramChatID string `yaml:"-"`
	QueueSize      int    `yaml:"queue_size"`
}

// APIConfig controla el servidor HTTP de proyecciones. Addr vacío lo desactiva.
type APIConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// TraceConfig activa el exporter de OpenTelemetry a stdout.
type TraceConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las variables de entorno sobreescriben los valores del YAML.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: env: %w", err)
	}
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// TradeInterval devuelve el intervalo entre ciclos como time.Duration.
func (c *Config) TradeInterval() time.Duration {
	return time.Duration(c.Trading.IntervalSeconds) * time.Second
}

// ConfirmTimeout es el tiempo máximo de espera de una liquidación.
func (c *Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.Trading.ConfirmTimeoutSeconds) * time.Second
}

// OracleTimeout es el timeout por intento de una llamada al oráculo.
func (c *Config) OracleTimeout() time.Duration {
	return time.Duration(c.Oracle.TimeoutSeconds) * time.Second
}

// MaxStaleness es la edad máxima aceptada del ticker.
func (c *Config) MaxStaleness() time.Duration {
	return time.Duration(c.Market.MaxStalenessMinutes) * time.Minute
}

// CacheTTL es la vida de una entrada de la caché.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// Environment devuelve el entorno tipado.
func (c *Config) Environment() domain.Environment {
	return domain.Environment(c.Risk.Environment)
}

// RiskConfig convierte la sección risk al tipo de dominio.
func (c *Config) RiskConfig() domain.RiskConfig {
	r := c.Risk
	return domain.RiskConfig{
		MaxPositionSize:     r.MaxPositionSize,
		MaxDailyLoss:        r.MaxDailyLoss,
		StopLossPercentage:  r.StopLossPercentage,
		MaxOpenPositions:    r.MaxOpenPositions,
		MinTradeAmount:      r.MinTradeAmount,
		SlippageTolerance:   r.SlippageTolerance,
		ReserveBalance:      r.ReserveBalance,
		ConfidenceThreshold: r.ConfidenceThreshold,
		Environment:         c.Environment(),
	}
}

// Validate comprueba que la configuración es coherente.
func (c *Config) Validate() error {
	var errs []error
	if !c.Environment().Valid() {
		errs = append(errs, fmt.Errorf("risk.environment: unknown %q", c.Risk.Environment))
	}
	if len(c.Trading.Tokens) == 0 {
		errs = append(errs, errors.New("trading.tokens: at least one token is required"))
	}
	if r := c.Risk; r.MaxPositionSize <= 0 || r.MaxPositionSize > 1 {
		errs = append(errs, fmt.Errorf("risk.max_position_size: %v not in (0,1]", r.MaxPositionSize))
	}
	if r := c.Risk; r.MaxDailyLoss <= 0 || r.MaxDailyLoss > 1 {
		errs = append(errs, fmt.Errorf("risk.max_daily_loss: %v not in (0,1]", r.MaxDailyLoss))
	}
	if r := c.Risk; r.StopLossPercentage < 0 || r.StopLossPercentage >= 1 {
		errs = append(errs, fmt.Errorf("risk.stop_loss_percentage: %v not in [0,1)", r.StopLossPercentage))
	}
	if r := c.Risk; r.ConfidenceThreshold < 0 || r.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("risk.confidence_threshold: %v not in [0,1]", r.ConfidenceThreshold))
	}
	switch c.Oracle.Provider {
	case "openai", "anthropic":
		if c.Oracle.APIKey == "" {
			errs = append(errs, fmt.Errorf("oracle: provider %s needs an API key", c.Oracle.Provider))
		}
	case "mock":
	default:
		errs = append(errs, fmt.Errorf("oracle.provider: unknown %q", c.Oracle.Provider))
	}
	if c.Environment() == domain.EnvProduction {
		if c.Gateway.KeypairPath == "" {
			errs = append(errs, errors.New("gateway: production needs SOLANA_KEYPAIR_PATH"))
		}
		for _, tok := range c.Trading.Tokens {
			if _, ok := c.Gateway.Tokens[tok]; !ok {
				errs = append(errs, fmt.Errorf("gateway.tokens: no mint configured for %s", tok))
			}
		}
	}
	return errors.Join(errs...)
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) error {
	str := map[string]*string{
		"ENVIRONMENT":         &cfg.Risk.Environment,
		"LOG_LEVEL":           &cfg.Log.Level,
		"LOG_FORMAT":          &cfg.Log.Format,
		"ORACLE_PROVIDER":     &cfg.Oracle.Provider,
		"ORACLE_MODEL":        &cfg.Oracle.Model,
		"REDIS_ADDR":          &cfg.Cache.Addr,
		"REDIS_PASSWORD":      &cfg.Cache.Password,
		"DISCORD_WEBHOOK_URL": &cfg.Notify.DiscordWebhook,
		"TELEGRAM_BOT_TOKEN":  &cfg.Notify.TelegramToken,
		"TELEGRAM_CHAT_ID":    &cfg.Notify.TelegramChatID,
		"SOLANA_KEYPAIR_PATH": &cfg.Gateway.KeypairPath,
		"SOLANA_RPC_URL":      &cfg.Gateway.RPCURL,
		"STORAGE_DSN":         &cfg.Storage.DSN,
		"API_ADDR":            &cfg.API.Addr,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	floats := map[string]*float64{
		"MAX_POSITION_SIZE":    &cfg.Risk.MaxPositionSize,
		"MAX_DAILY_LOSS":       &cfg.Risk.MaxDailyLoss,
		"STOP_LOSS_PERCENTAGE": &cfg.Risk.StopLossPercentage,
		"MIN_TRADE_AMOUNT":     &cfg.Risk.MinTradeAmount,
		"TRADE_SLIPPAGE":       &cfg.Risk.SlippageTolerance,
		"RESERVE_BALANCE":      &cfg.Risk.ReserveBalance,
		"CONFIDENCE_THRESHOLD": &cfg.Risk.ConfidenceThreshold,
	}
	for key, dst := range floats {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s=%q: %w", key, v, err)
		}
		*dst = f
	}

	if v := os.Getenv("MAX_OPEN_POSITIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAX_OPEN_POSITIONS=%q: %w", v, err)
		}
		cfg.Risk.MaxOpenPositions = n
	}
	if v := os.Getenv("TRADING_TOKENS"); v != "" {
		cfg.Trading.Tokens = splitTokens(v)
	}

	// La API key depende del proveedor elegido.
	switch cfg.Oracle.Provider {
	case "openai":
		if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			cfg.Oracle.APIKey = v
		}
	case "anthropic":
		if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
			cfg.Oracle.APIKey = v
		}
	}
	return nil
}

func splitTokens(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	d := domain.DefaultRiskConfig()

	if cfg.Trading.IntervalSeconds <= 0 {
		cfg.Trading.IntervalSeconds = 300
	}
	if cfg.Trading.InitialBalance <= 0 {
		cfg.Trading.InitialBalance = 1000
	}
	if cfg.Trading.ConfirmTimeoutSeconds <= 0 {
		cfg.Trading.ConfirmTimeoutSeconds = 60
	}
	for i, t := range cfg.Trading.Tokens {
		cfg.Trading.Tokens[i] = strings.ToUpper(strings.TrimSpace(t))
	}

	if cfg.Risk.Environment == "" {
		cfg.Risk.Environment = string(d.Environment)
	}
	if cfg.Risk.MaxPositionSize == 0 {
		cfg.Risk.MaxPositionSize = d.MaxPositionSize
	}
	if cfg.Risk.MaxDailyLoss == 0 {
		cfg.Risk.MaxDailyLoss = d.MaxDailyLoss
	}
	if cfg.Risk.StopLossPercentage == 0 {
		cfg.Risk.StopLossPercentage = d.StopLossPercentage
	}
	if cfg.Risk.MaxOpenPositions <= 0 {
		cfg.Risk.MaxOpenPositions = d.MaxOpenPositions
	}
	if cfg.Risk.MinTradeAmount <= 0 {
		cfg.Risk.MinTradeAmount = d.MinTradeAmount
	}
	if cfg.Risk.SlippageTolerance <= 0 {
		cfg.Risk.SlippageTolerance = d.SlippageTolerance
	}
	if cfg.Risk.ReserveBalance <= 0 {
		cfg.Risk.ReserveBalance = d.ReserveBalance
	}
	if cfg.Risk.ConfidenceThreshold == 0 {
		cfg.Risk.ConfidenceThreshold = d.ConfidenceThreshold
	}

	if cfg.Oracle.Provider == "" {
		cfg.Oracle.Provider = "mock"
	}
	if cfg.Oracle.Model == "" {
		switch cfg.Oracle.Provider {
		case "openai":
			cfg.Oracle.Model = "gpt-4o-mini"
		case "anthropic":
			cfg.Oracle.Model = "claude-3-5-haiku-latest"
		}
	}
	if cfg.Oracle.TimeoutSeconds <= 0 {
		cfg.Oracle.TimeoutSeconds = 30
	}
	if cfg.Oracle.MaxAttempts <= 0 {
		cfg.Oracle.MaxAttempts = 3
	}
	if cfg.Oracle.Temperature == 0 {
		cfg.Oracle.Temperature = 0.2
	}
	if cfg.Oracle.MaxTokens <= 0 {
		cfg.Oracle.MaxTokens = 800
	}

	if cfg.Market.BinanceBase == "" {
		cfg.Market.BinanceBase = "https://api.binance.com"
	}
	if cfg.Market.QuoteAsset == "" {
		cfg.Market.QuoteAsset = "USDT"
	}
	if cfg.Market.Interval == "" {
		cfg.Market.Interval = "1h"
	}
	if cfg.Market.HistoryLimit <= 0 {
		cfg.Market.HistoryLimit = 100
	}
	if cfg.Market.MaxStalenessMinutes <= 0 {
		cfg.Market.MaxStalenessMinutes = 10
	}

	if cfg.Gateway.JupiterBase == "" {
		cfg.Gateway.JupiterBase = "https://quote-api.jup.ag/v6"
	}
	if cfg.Gateway.RPCURL == "" {
		cfg.Gateway.RPCURL = "https://api.mainnet-beta.solana.com"
	}
	if cfg.Gateway.QuoteMint == "" {
		cfg.Gateway.QuoteMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v" // USDC
	}
	if cfg.Gateway.QuoteDecimals <= 0 {
		cfg.Gateway.QuoteDecimals = 6
	}
	if cfg.Gateway.PollIntervalMs <= 0 {
		cfg.Gateway.PollIntervalMs = 2000
	}
	if cfg.Gateway.PaperLatencyMs <= 0 {
		cfg.Gateway.PaperLatencyMs = 200
	}

	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "llmtrader.db"
	}
	if cfg.Cache.TTLSeconds <= 0 {
		cfg.Cache.TTLSeconds = 60
	}
	if cfg.Notify.TelegramBase == "" {
		cfg.Notify.TelegramBase = "https://api.telegram.org"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
