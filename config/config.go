package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type DatabaseOptions struct {
	URL      string `env:"DATABASE_URL"`
	MaxConns int32  `env:"DB_MAX_CONNS" envDefault:"16"`
}

type SearchOptions struct {
	RedisURL       string        `env:"REDIS_URL"`
	QueueKey       string        `env:"SEARCH_QUEUE_KEY" envDefault:"caseflow:reindex"`
	ReindexTimeout time.Duration `env:"REINDEX_TIMEOUT" envDefault:"2s"`
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	Endpoint    string `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"caseflow"`
}

type Configuration struct {
	Database      DatabaseOptions
	Search        SearchOptions
	OpenTelemetry OpenTelemetryOptions

	JWTSecret      string `env:"JWT_SECRET"`
	ServerPort     int    `env:"PORT" envDefault:"8080"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	PageSize       int    `env:"PAGE_SIZE" envDefault:"20"`
	MaxPageSize    int    `env:"MAX_PAGE_SIZE" envDefault:"100"`
	PrometheusPath string `env:"PROMETHEUS_PATH" envDefault:"/metrics"`

	logger *logrus.Logger
}

// Load reads the optional env files then parses the environment.
func Load(envFiles ...string) (*Configuration, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env", ".env.local"}
	}
	existing := make([]string, 0, len(envFiles))
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return nil, fmt.Errorf("config: load env files: %w", err)
		}
	}

	c := &Configuration{}
	if err := env.Parse(c); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.logger = NewLogger(c.LogrusLevel())
	return c, nil
}

func (c *Configuration) Validate() error {
	if c.PageSize <= 0 {
		return fmt.Errorf("config: PAGE_SIZE must be positive, got %d", c.PageSize)
	}
	if c.MaxPageSize < c.PageSize {
		return fmt.Errorf("config: MAX_PAGE_SIZE (%d) must be >= PAGE_SIZE (%d)", c.MaxPageSize, c.PageSize)
	}
	if c.Search.ReindexTimeout <= 0 {
		return fmt.Errorf("config: REINDEX_TIMEOUT must be positive")
	}
	switch strings.ToLower(c.LogLevel) {
	case "silent", "error", "warn", "info", "debug":
	default:
		return fmt.Errorf("config: invalid LOG_LEVEL=%q (expected silent|error|warn|info|debug)", c.LogLevel)
	}
	return nil
}

func (c *Configuration) Logger() *logrus.Logger {
	if c.logger == nil {
		c.logger = NewLogger(c.LogrusLevel())
	}
	return c.logger
}

func (c *Configuration) LogrusLevel() logrus.Level {
	switch strings.ToLower(c.LogLevel) {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}

func (c *Configuration) ListenAddress() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

// NewLogger returns a JSON logger writing to stdout.
func NewLogger(level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(level)
	l.SetOutput(os.Stdout)
	return l
}
