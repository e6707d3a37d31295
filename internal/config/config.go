package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"stockbt/internal/domain"
	"stockbt/internal/engine"
	"stockbt/internal/util"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for stockbt.
type Config struct {
	Storage  Storage  `yaml:"storage"`
	Server   Server   `yaml:"server"`
	Alpaca   Alpaca   `yaml:"alpaca"`
	Logging  Logging  `yaml:"logging"`
	Feed     Feed     `yaml:"feed"`
	Backtest Backtest `yaml:"backtest"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
	Market     string `yaml:"market"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// HTTPAddr returns the host:port of the HTTP listener.
func (s Server) HTTPAddr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// GRPCAddr returns the host:port of the gRPC listener, or "" when disabled.
func (s Server) GRPCAddr() string {
	if s.GRPCPort <= 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", s.Host, s.GRPCPort)
}

// Alpaca holds credentials and endpoints for the Alpaca market data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Feed selects and tunes the market data source.
type Feed struct {
	Source          string `yaml:"source"` // parquet | alpaca
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
	Retries         int    `yaml:"retries"`
	BackoffMS       int    `yaml:"backoff_ms"`
	Lookback        int    `yaml:"lookback"`
}

// Backoff returns the retry backoff as a duration.
func (f Feed) Backoff() time.Duration { return time.Duration(f.BackoffMS) * time.Millisecond }

// Backtest holds the default run parameters. Requests and CLI flags
// override individual fields.
type Backtest struct {
	Name          string            `yaml:"name"`
	Strategy      string            `yaml:"strategy"`
	Params        map[string]string `yaml:"params"`
	Tickers       []string          `yaml:"tickers"`
	Start         string            `yaml:"start"`
	End           string            `yaml:"end"`
	Frequency     string            `yaml:"frequency"`
	Balance       float64           `yaml:"balance"`
	Commission    float64           `yaml:"commission"`
	AutoFill      *bool             `yaml:"auto_fill"`
	Live          bool              `yaml:"live"`
	DefaultShares int               `yaml:"default_shares"`
	RaiseOnErr    *bool             `yaml:"raise_on_err"`
	Parallelism   int               `yaml:"parallelism"`
}

// EngineConfig converts the backtest section into an engine configuration.
// Dates are parsed as "2006-01-02"; the result is validated by the engine.
func (b Backtest) EngineConfig() (engine.Config, error) {
	cfg := engine.Config{
		Name:          b.Name,
		Tickers:       append([]string(nil), b.Tickers...),
		Frequency:     domain.Frequency(b.Frequency),
		Balance:       b.Balance,
		Commission:    b.Commission,
		AutoFill:      boolOr(b.AutoFill, true),
		Live:          b.Live,
		DefaultShares: b.DefaultShares,
		ContinueOnErr: !boolOr(b.RaiseOnErr, true),
	}
	var err error
	if b.Start != "" {
		if cfg.Start, err = util.ParseDate(b.Start); err != nil {
			return engine.Config{}, fmt.Errorf("config.EngineConfig: start: %w", err)
		}
	}
	if b.End != "" {
		if cfg.End, err = util.ParseDate(b.End); err != nil {
			return engine.Config{}, fmt.Errorf("config.EngineConfig: end: %w", err)
		}
	}
	return cfg, nil
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, and then applies .env and environment variable overrides
// followed by defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

// Default returns a configuration built from the environment and defaults
// only, for running without a config file.
func Default() *Config {
	_ = godotenv.Load()
	cfg := &Config{}
	applyEnvOverrides(cfg)
	setDefaults(cfg)
	return cfg
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}
	if v := os.Getenv("ALPACA_FEED"); v != "" {
		cfg.Alpaca.Feed = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("STOCKBT_FEED_SOURCE"); v != "" {
		cfg.Feed.Source = v
	}
	if v := os.Getenv("STOCKBT_TICKERS"); v != "" {
		cfg.Backtest.Tickers = splitList(v)
	}
	if v := os.Getenv("STOCKBT_STRATEGY"); v != "" {
		cfg.Backtest.Strategy = v
	}
	if v := os.Getenv("STOCKBT_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("STOCKBT_GRPC_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.GRPCPort = n
		}
	}

	// Standard Alpaca env vars take precedence, they are the names the SDK uses.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = cfg.Storage.DataDir + "/stockbt.db"
	}
	if cfg.Storage.Market == "" {
		cfg.Storage.Market = "us"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Alpaca.Feed == "" {
		cfg.Alpaca.Feed = "iex"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Feed.Source == "" {
		cfg.Feed.Source = "parquet"
	}
	if cfg.Feed.RateLimitPerMin == 0 {
		cfg.Feed.RateLimitPerMin = 200
	}
	if cfg.Feed.Retries == 0 {
		cfg.Feed.Retries = 3
	}
	if cfg.Feed.BackoffMS == 0 {
		cfg.Feed.BackoffMS = 500
	}
	if cfg.Backtest.Frequency == "" {
		cfg.Backtest.Frequency = string(domain.FrequencyDaily)
	}
	if cfg.Backtest.Balance == 0 {
		cfg.Backtest.Balance = 10000
	}
	if cfg.Backtest.Parallelism == 0 {
		cfg.Backtest.Parallelism = 4
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}
