package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	ModeWebhook = "webhook"
	ModePolling = "polling"

	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Env             string           `yaml:"env"`
	HTTPAddr        string           `yaml:"http_addr"`
	Mode            string           `yaml:"mode"`
	Storage         string           `yaml:"storage"`
	DBDSN           string           `yaml:"db_dsn"`
	BotToken        string           `yaml:"bot_token"`
	TelegramAPI     string           `yaml:"telegram_api"`
	WebhookSecret   string           `yaml:"webhook_secret"`
	Timezone        string           `yaml:"timezone"`
	Completion      CompletionConfig `yaml:"completion"`
	OutboundTimeout time.Duration    `yaml:"outbound_timeout"`
	SendRate        float64          `yaml:"send_rate"`
	TickBatch       int              `yaml:"tick_batch"`
	TickInterval    time.Duration    `yaml:"tick_interval"`
	ListLimit       int              `yaml:"list_limit"`
	ShutdownTimeout time.Duration    `yaml:"shutdown_timeout"`
	LogLevel        string           `yaml:"log_level"`
	LogFormat       string           `yaml:"log_format"`

	// Location is resolved from Timezone by Load.
	Location *time.Location `yaml:"-"`
}

type CompletionConfig struct {
	Backend     string `yaml:"backend"`
	APIKey      string `yaml:"api_key"`
	Model       string `yaml:"model"`
	BaseURL     string `yaml:"base_url"`
	SystemStyle string `yaml:"system_style"`
}

func Defaults() Config {
	return Config{
		Env:             "dev",
		HTTPAddr:        ":8080",
		Mode:            ModeWebhook,
		Storage:         StorageSQLite,
		TelegramAPI:     "https://api.telegram.org",
		Timezone:        "UTC",
		Completion:      CompletionConfig{Backend: "echo"},
		OutboundTimeout: 20 * time.Second,
		SendRate:        25,
		TickBatch:       200,
		ListLimit:       50,
		ShutdownTimeout: 5 * time.Second,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getdur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getint(key string, def int) int {
	i, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return i
}

func getfloat(key string, def float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return def
	}
	return f
}

// Load builds the configuration from, in increasing precedence: built-in
// defaults, the YAML file named by --config or REMINDBOT_CONFIG, environment
// variables, and command-line flags. args excludes the program name.
func Load(args []string) (Config, error) {
	cfg := Defaults()

	path := configPath(args, os.Getenv("REMINDBOT_CONFIG"))
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)

	fs := pflag.NewFlagSet("remindbot", pflag.ContinueOnError)
	fs.String("config", path, "YAML config file")
	fs.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.Env, "env", cfg.Env, "environment (dev, prod)")
	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "inbound transport: webhook or polling")
	fs.StringVar(&cfg.Storage, "storage", cfg.Storage, "task store: sqlite, postgres or memory")
	fs.StringVar(&cfg.DBDSN, "db-dsn", cfg.DBDSN, "database file (sqlite) or connection string (postgres)")
	fs.StringVar(&cfg.Timezone, "timezone", cfg.Timezone, "IANA timezone or +HH:MM offset used for due times")
	fs.StringVar(&cfg.Completion.Backend, "completion", cfg.Completion.Backend, "completion backend: echo, gemini or openai")
	fs.StringVar(&cfg.Completion.Model, "completion-model", cfg.Completion.Model, "completion model name")
	fs.DurationVar(&cfg.OutboundTimeout, "outbound-timeout", cfg.OutboundTimeout, "timeout for each Telegram or completion call")
	fs.Float64Var(&cfg.SendRate, "send-rate", cfg.SendRate, "max Telegram messages per second")
	fs.IntVar(&cfg.TickBatch, "tick-batch", cfg.TickBatch, "max tasks evaluated per tick")
	fs.DurationVar(&cfg.TickInterval, "tick-interval", cfg.TickInterval, "run ticks in-process at this interval (0 disables)")
	fs.IntVar(&cfg.ListLimit, "list-limit", cfg.ListLimit, "max tasks shown by /list")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "graceful shutdown timeout")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "text or json")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.Storage == StorageSQLite && cfg.DBDSN == "" {
		p, err := defaultDBPath()
		if err != nil {
			return Config{}, fmt.Errorf("determine db path: %w", err)
		}
		cfg.DBDSN = p
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func configPath(args []string, def string) string {
	for i, a := range args {
		if v, ok := strings.CutPrefix(a, "--config="); ok {
			return v
		}
		if a == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return def
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Env = getenv("APP_ENV", cfg.Env)
	cfg.HTTPAddr = getenv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.Mode = getenv("MODE", cfg.Mode)
	cfg.Storage = getenv("STORAGE", cfg.Storage)
	cfg.DBDSN = getenv("DB_DSN", cfg.DBDSN)
	cfg.BotToken = getenv("BOT_TOKEN", cfg.BotToken)
	cfg.TelegramAPI = getenv("TELEGRAM_API", cfg.TelegramAPI)
	cfg.WebhookSecret = getenv("WEBHOOK_SECRET", cfg.WebhookSecret)
	cfg.Timezone = getenv("APP_TIMEZONE", cfg.Timezone)
	cfg.Completion.Backend = getenv("COMPLETION_BACKEND", cfg.Completion.Backend)
	cfg.Completion.APIKey = getenv("COMPLETION_API_KEY", getenv("GEMINI_API_KEY", cfg.Completion.APIKey))
	cfg.Completion.Model = getenv("COMPLETION_MODEL", cfg.Completion.Model)
	cfg.Completion.BaseURL = getenv("COMPLETION_BASE_URL", cfg.Completion.BaseURL)
	cfg.Completion.SystemStyle = getenv("SYSTEM_STYLE", cfg.Completion.SystemStyle)
	cfg.OutboundTimeout = getdur("OUTBOUND_TIMEOUT", cfg.OutboundTimeout)
	cfg.SendRate = getfloat("SEND_RATE", cfg.SendRate)
	cfg.TickBatch = getint("TICK_BATCH", cfg.TickBatch)
	cfg.TickInterval = getdur("TICK_INTERVAL", cfg.TickInterval)
	cfg.ListLimit = getint("LIST_LIMIT", cfg.ListLimit)
	cfg.ShutdownTimeout = getdur("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getenv("LOG_FORMAT", cfg.LogFormat)
}

// Validate checks enum fields and resolves Location.
func (c *Config) Validate() error {
	var errs []error
	switch c.Mode {
	case ModeWebhook, ModePolling:
	default:
		errs = append(errs, fmt.Errorf("unknown mode %q", c.Mode))
	}
	switch c.Storage {
	case StorageSQLite, StoragePostgres:
		if c.DBDSN == "" {
			errs = append(errs, fmt.Errorf("storage %s needs a db dsn", c.Storage))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown storage %q", c.Storage))
	}
	switch c.Completion.Backend {
	case "echo", "gemini", "openai":
	default:
		errs = append(errs, fmt.Errorf("unknown completion backend %q", c.Completion.Backend))
	}
	if c.Env != "dev" {
		if c.BotToken == "" {
			errs = append(errs, errors.New("BOT_TOKEN is required"))
		}
		if c.Mode == ModeWebhook && c.WebhookSecret == "" {
			errs = append(errs, errors.New("WEBHOOK_SECRET is required"))
		}
	}
	// Polling has no inbound webhook, so reminders need either the in-process
	// ticker or a secret for an external pinger to reach /tick.
	if c.Mode == ModePolling && c.TickInterval <= 0 && c.WebhookSecret == "" {
		errs = append(errs, errors.New("polling mode needs tick_interval > 0 or WEBHOOK_SECRET for /tick"))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	loc, err := LocationFromTZ(c.Timezone)
	if err != nil {
		errs = append(errs, err)
	}
	c.Location = loc
	return errors.Join(errs...)
}

// Logger builds the process logger described by LogLevel and LogFormat.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.LogLevel)
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

func defaultDBPath() (string, error) {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	dir := filepath.Join(dataHome, "remindbot")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, "remindbot.db"), nil
}
