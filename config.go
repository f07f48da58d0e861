package roleadmin

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the settings of a process running the role administration service.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL"` // Empty selects the in-memory persistence.
	RedisURL    string `env:"REDIS_URL"`    // Empty selects the in-process locker.

	LockTTL   time.Duration `env:"ROLEADMIN_LOCK_TTL" envDefault:"10s"`
	LockRetry time.Duration `env:"ROLEADMIN_LOCK_RETRY" envDefault:"25ms"`

	AuditRetryAttempts int           `env:"ROLEADMIN_AUDIT_RETRY_ATTEMPTS" envDefault:"3"`
	AuditRetryBackoff  time.Duration `env:"ROLEADMIN_AUDIT_RETRY_BACKOFF" envDefault:"100ms"`

	Bootstrap bool `env:"ROLEADMIN_BOOTSTRAP" envDefault:"true"`

	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	RequestTimeout  time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Headers set by the fronting auth proxy.
	RoleHeader string `env:"AUTH_ROLE_HEADER" envDefault:"X-Role"`
	UserHeader string `env:"AUTH_USER_HEADER" envDefault:"X-User-ID"`

	LogFormat string `env:"LOG_FORMAT" envDefault:"json"` // json or text
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	Pool PoolConfig `envPrefix:"DB_POOL_"`
}

// LoadConfig reads .env when present, then parses the environment.
func LoadConfig() (Config, error) {
	// The .env file is optional.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values env parsing cannot.
func (c Config) Validate() error {
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("config: LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.AuditRetryAttempts < 1 {
		return fmt.Errorf("config: ROLEADMIN_AUDIT_RETRY_ATTEMPTS must be at least 1")
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("config: ROLEADMIN_LOCK_TTL must be positive")
	}
	return nil
}

// NewLogger builds the process logger from the configured format and level.
func NewLogger(w io.Writer, cfg Config) *slog.Logger {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level, AddSource: level == slog.LevelDebug}
	if strings.EqualFold(cfg.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: invalid LOG_LEVEL %q", s)
	}
	return level, nil
}
