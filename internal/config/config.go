package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // subscription read cache
}

type GatewayConfig struct {
	Provider         string        `yaml:"provider"` // hosted | sandbox
	MerchantID       string        `yaml:"merchant_id"`
	TerminalID       string        `yaml:"terminal_id"`
	SecretKey        string        `yaml:"secret_key"` // hex encoded
	CurrencyID       int           `yaml:"currency_id"`
	LanguageID       string        `yaml:"language_id"`
	ViewType         int           `yaml:"view_type"` // 1 popup, 2 full page
	ContactInfoType  int           `yaml:"contact_info_type"`
	CancelGrace      time.Duration `yaml:"cancel_grace"`
	SessionRetention time.Duration `yaml:"session_retention"`
	ReferenceTTL     time.Duration `yaml:"reference_ttl"`
	SandboxScript    string        `yaml:"sandbox_script"`
}

type PlanConfig struct {
	Name        string `yaml:"name"`
	Amount      string `yaml:"amount"`
	Currency    string `yaml:"currency"`
	Description string `yaml:"description"`
}

type CheckoutConfig struct {
	Workers        int           `yaml:"workers"`
	PersistTimeout time.Duration `yaml:"persist_timeout"`
	RateLimit      int           `yaml:"rate_limit"` // checkout starts per user per window
	RateWindow     time.Duration `yaml:"rate_window"`
	AbandonAfter   time.Duration `yaml:"abandon_after"` // unresolved sessions are dropped after this
}

type SchedulerConfig struct {
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	ReconcileMaxTries int           `yaml:"reconcile_max_tries"`
	StatsInterval     time.Duration `yaml:"stats_interval"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

type AlertConfig struct {
	BotToken string  `yaml:"bot_token"`
	ChatIDs  []int64 `yaml:"chat_ids"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Plans     []PlanConfig    `yaml:"plans"`
	Checkout  CheckoutConfig  `yaml:"checkout"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Auth      AuthConfig      `yaml:"auth"`
	Alert     AlertConfig     `yaml:"alert"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, applies a .env file if present and
// environment overrides for secrets, then fills defaults.
func LoadConfig(path string, dev bool) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse decodes raw YAML and finishes the config the same way LoadConfig does.
func Parse(raw []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("GATEWAY_SECRET_KEY"); v != "" {
		cfg.Gateway.SecretKey = v
	}
	if v := os.Getenv("GATEWAY_MERCHANT_ID"); v != "" {
		cfg.Gateway.MerchantID = v
	}
	if v := os.Getenv("AUTH_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("ALERT_BOT_TOKEN"); v != "" {
		cfg.Alert.BotToken = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.Port = n
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 15 * time.Second
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	g := &cfg.Gateway
	if g.Provider == "" {
		g.Provider = "hosted"
	}
	g.Provider = strings.ToLower(g.Provider)
	if g.LanguageID == "" {
		g.LanguageID = "en"
	}
	if g.ViewType == 0 {
		g.ViewType = 1
	}
	if g.ContactInfoType == 0 {
		g.ContactInfoType = 1
	}
	if g.CancelGrace <= 0 {
		g.CancelGrace = 500 * time.Millisecond
	}
	if g.SessionRetention <= 0 {
		g.SessionRetention = 10 * time.Minute
	}
	if g.ReferenceTTL <= 0 {
		g.ReferenceTTL = 90 * 24 * time.Hour
	}
	if g.SandboxScript == "" {
		g.SandboxScript = "success"
	}

	c := &cfg.Checkout
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = 10 * time.Second
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 10
	}
	if c.RateWindow <= 0 {
		c.RateWindow = time.Minute
	}
	if c.AbandonAfter <= 0 {
		c.AbandonAfter = time.Hour
	}

	s := &cfg.Scheduler
	if s.ReconcileInterval <= 0 {
		s.ReconcileInterval = time.Minute
	}
	if s.ReconcileMaxTries <= 0 {
		s.ReconcileMaxTries = 20
	}
	if s.StatsInterval <= 0 {
		s.StatsInterval = 5 * time.Minute
	}
}

// Minimal validation
func validate(cfg *Config) error {
	if cfg.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if cfg.Gateway.SecretKey == "" {
		return errors.New("gateway.secret_key is required")
	}
	if cfg.Gateway.MerchantID == "" || cfg.Gateway.TerminalID == "" {
		return errors.New("gateway.merchant_id and gateway.terminal_id are required")
	}
	if cfg.Gateway.ViewType != 1 && cfg.Gateway.ViewType != 2 {
		return fmt.Errorf("gateway.view_type must be 1 or 2, got %d", cfg.Gateway.ViewType)
	}
	switch cfg.Gateway.Provider {
	case "hosted", "sandbox":
	default:
		return fmt.Errorf("gateway.provider %q not supported", cfg.Gateway.Provider)
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if len(cfg.Plans) == 0 {
		return errors.New("at least one plan is required")
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
