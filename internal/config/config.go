// Package config provides configuration management functionality.
//
// Configuration is resolved in four layers, each overriding the previous one:
//
//  1. Struct defaults declared with `default` tags
//  2. An optional YAML file (path argument or FORECAST_CONFIG)
//  3. A .env file in the working directory, if present
//  4. Environment variables
//
// The result is validated with `validate` tags before it is returned.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/aristath/forecaster/internal/utils"
)

// Config holds application configuration
type Config struct {
	DataDir   string `yaml:"data_dir" default:"./data" validate:"required"` // Base directory, always absolute after Load
	CacheDir  string `yaml:"cache_dir"`                                     // Defaults to <DataDir>/cache
	ModelDir  string `yaml:"model_dir"`                                     // Defaults to <DataDir>/models
	LogLevel  string `yaml:"log_level" default:"info" validate:"oneof=debug info warn error"`
	LogPretty bool   `yaml:"log_pretty"`

	Cache        CacheConfig        `yaml:"cache"`
	ExchangeRate ExchangeRateConfig `yaml:"exchange_rate"`
	News         NewsConfig         `yaml:"news"`
	Quotes       QuotesConfig       `yaml:"quotes"`
	Training     TrainingConfig     `yaml:"training"`
	Prediction   PredictionConfig   `yaml:"prediction"`
	Mirror       MirrorConfig       `yaml:"mirror"`
	Server       ServerConfig       `yaml:"server"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Ledger       LedgerConfig       `yaml:"ledger"`
}

// CacheConfig holds freshness windows of the file caches
type CacheConfig struct {
	SentimentTTL    time.Duration `yaml:"sentiment_ttl" default:"24h" validate:"gt=0"`
	ExchangeRateTTL time.Duration `yaml:"exchange_rate_ttl" default:"24h" validate:"gt=0"`
	PredictionTTL   time.Duration `yaml:"prediction_ttl" default:"30m" validate:"gt=0"`
	NewsTTL         time.Duration `yaml:"news_ttl" default:"12h" validate:"gt=0"`
}

// ExchangeRateConfig configures the USD/VND rate source
type ExchangeRateConfig struct {
	URL      string        `yaml:"url" default:"https://open.er-api.com/v6/latest/USD" validate:"required,url"`
	Fallback float64       `yaml:"fallback" default:"25400" validate:"gt=0"`
	Timeout  time.Duration `yaml:"timeout" default:"10s" validate:"gt=0"`
}

// NewsConfig configures headline scraping and scoring
type NewsConfig struct {
	CafeFURL     string        `yaml:"cafef_url" default:"https://cafef.vn/tim-kiem/%s.chn" validate:"required"`
	VnExpressURL string        `yaml:"vnexpress_url" default:"https://vnexpress.net/tim-kiem?q=%s" validate:"required"`
	UserAgent    string        `yaml:"user_agent" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"`
	MaxHeadlines int           `yaml:"max_headlines" default:"10" validate:"gte=2"`
	Pause        time.Duration `yaml:"pause" default:"1s"`
	Timeout      time.Duration `yaml:"timeout" default:"10s" validate:"gt=0"`
	TranslateURL string        `yaml:"translate_url"` // LibreTranslate-compatible endpoint, empty disables translation
}

// QuotesConfig configures the market data provider
type QuotesConfig struct {
	Suffix    string            `yaml:"suffix" default:".VN"`
	Benchmark string            `yaml:"benchmark" default:"VNINDEX" validate:"required"`
	Aliases   map[string]string `yaml:"aliases"` // Local symbol -> provider symbol, merged over built-in index aliases
	Timeout   time.Duration     `yaml:"timeout" default:"10s" validate:"gt=0"`
}

// TrainingConfig configures model fitting
type TrainingConfig struct {
	HistoryDays           int      `yaml:"history_days" default:"730" validate:"gte=120"`
	TestFraction          float64  `yaml:"test_fraction" default:"0.2" validate:"gt=0,lt=1"`
	BestParamsFile        string   `yaml:"best_params_file" default:"best_params.json"`
	ForeignParamsFallback bool     `yaml:"foreign_params_fallback" default:"true"`
	Symbols               []string `yaml:"symbols" default:"[\"VCB\",\"FPT\",\"HPG\",\"VIC\",\"VNM\",\"TCB\",\"MSN\",\"VPB\",\"MBB\",\"ACB\",\"VHM\",\"GAS\",\"CTG\",\"BID\",\"VRE\",\"PLX\",\"POW\",\"SSI\",\"GVR\",\"SAB\"]"`
}

// PredictionConfig configures inference and the market overview
type PredictionConfig struct {
	WindowDays       int      `yaml:"window_days" default:"90" validate:"gte=60"`
	HistoryPoints    int      `yaml:"history_points" default:"30" validate:"gte=1"`
	TopFeatures      int      `yaml:"top_features" default:"5" validate:"gte=1"`
	MarketWindowDays int      `yaml:"market_window_days" default:"5" validate:"gte=2"`
	MarketIndices    []string `yaml:"market_indices" default:"[\"VNINDEX\",\"HNXINDEX\",\"UPINDEX\"]"`
	MarketStocks     []string `yaml:"market_stocks" default:"[\"VCB\",\"VHM\",\"VIC\",\"HPG\",\"FPT\",\"MSN\",\"MWG\",\"VPB\",\"TCB\",\"VNM\"]"`
}

// MirrorConfig configures the optional S3-compatible artifact mirror
type MirrorConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket" validate:"required_if=Enabled true"`
	Endpoint        string `yaml:"endpoint"` // Empty uses the AWS default endpoint
	Region          string `yaml:"region" default:"auto"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Prefix          string `yaml:"prefix" default:"models/"`
}

// ServerConfig configures the HTTP surface
type ServerConfig struct {
	Port    int  `yaml:"port" default:"8001" validate:"gt=0,lte=65535"`
	DevMode bool `yaml:"dev_mode"`
}

// SchedulerConfig holds cron expressions (with seconds field)
type SchedulerConfig struct {
	RetrainSchedule string `yaml:"retrain_schedule" default:"0 30 18 * * MON-FRI" validate:"required"`
	PruneSchedule   string `yaml:"prune_schedule" default:"0 0 3 * * *" validate:"required"`
	BackupSchedule  string `yaml:"backup_schedule" default:"0 0 4 * * SUN" validate:"required"` // Only used with the mirror and ledger enabled
}

// LedgerConfig configures the prediction history database
type LedgerConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path"` // Defaults to <DataDir>/ledger.db
}

var validate = validator.New()

// Load reads configuration from defaults, the optional YAML file at path,
// .env and the environment. An empty path falls back to FORECAST_CONFIG.
func Load(path string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	if path == "" {
		path = getEnv("FORECAST_CONFIG", "")
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.resolveDirs(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration against its validation tags
func (c *Config) Validate() error {
	return validate.Struct(c)
}

func (c *Config) applyEnv() {
	c.DataDir = getEnv("FORECAST_DATA_DIR", c.DataDir)
	c.CacheDir = getEnv("FORECAST_CACHE_DIR", c.CacheDir)
	c.ModelDir = getEnv("FORECAST_MODEL_DIR", c.ModelDir)
	c.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", c.LogLevel))
	c.LogPretty = getEnvAsBool("LOG_PRETTY", c.LogPretty)

	c.ExchangeRate.URL = getEnv("EXCHANGE_RATE_URL", c.ExchangeRate.URL)
	c.News.TranslateURL = getEnv("TRANSLATE_URL", c.News.TranslateURL)
	c.Training.ForeignParamsFallback = getEnvAsBool("FORECAST_PARAMS_FOREIGN_FALLBACK", c.Training.ForeignParamsFallback)
	if symbols := getEnv("RETRAIN_SYMBOLS", ""); symbols != "" {
		c.Training.Symbols = utils.ParseSymbols(symbols)
	}

	c.Mirror.Enabled = getEnvAsBool("MIRROR_ENABLED", c.Mirror.Enabled)
	c.Mirror.Bucket = getEnv("MIRROR_BUCKET", c.Mirror.Bucket)
	c.Mirror.Endpoint = getEnv("MIRROR_ENDPOINT", c.Mirror.Endpoint)
	c.Mirror.AccessKeyID = getEnv("MIRROR_ACCESS_KEY_ID", c.Mirror.AccessKeyID)
	c.Mirror.SecretAccessKey = getEnv("MIRROR_SECRET_ACCESS_KEY", c.Mirror.SecretAccessKey)

	c.Server.Port = getEnvAsInt("FORECAST_PORT", c.Server.Port)
	c.Server.DevMode = getEnvAsBool("DEV_MODE", c.Server.DevMode)
	c.Scheduler.RetrainSchedule = getEnv("RETRAIN_SCHEDULE", c.Scheduler.RetrainSchedule)
	c.Ledger.Enabled = getEnvAsBool("LEDGER_ENABLED", c.Ledger.Enabled)
}

// resolveDirs makes every directory absolute and ensures it exists
func (c *Config) resolveDirs() error {
	absDataDir, err := filepath.Abs(c.DataDir)
	if err != nil {
		return fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	c.DataDir = absDataDir

	if c.CacheDir == "" {
		c.CacheDir = filepath.Join(c.DataDir, "cache")
	}
	if c.ModelDir == "" {
		c.ModelDir = filepath.Join(c.DataDir, "models")
	}
	if c.Ledger.Path == "" {
		c.Ledger.Path = filepath.Join(c.DataDir, "ledger.db")
	}

	for _, dir := range []*string{&c.CacheDir, &c.ModelDir} {
		abs, err := filepath.Abs(*dir)
		if err != nil {
			return fmt.Errorf("failed to resolve directory %s: %w", *dir, err)
		}
		*dir = abs
	}

	for _, dir := range []string{c.DataDir, c.CacheDir, c.ModelDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// BestParamsPath returns the absolute path of the tuned hyperparameter file
func (c *Config) BestParamsPath() string {
	if filepath.IsAbs(c.Training.BestParamsFile) {
		return c.Training.BestParamsFile
	}
	return filepath.Join(c.ModelDir, c.Training.BestParamsFile)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
