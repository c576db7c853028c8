package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Port           int    `env:"PORT,default=3001"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS,default=http://localhost:5173"`
	StoreDriver    string `env:"STORE_DRIVER,default=postgres"`

	DatabaseHost     string `env:"DATABASE_HOST"`
	DatabasePort     string `env:"DATABASE_PORT,default=5432"`
	DatabaseUser     string `env:"DATABASE_USER"`
	DatabasePassword string `env:"DATABASE_PASSWORD"`
	DatabaseName     string `env:"DATABASE_NAME"`
	DatabaseMaxConns int    `env:"DATABASE_MAX_CONNS,default=10"`

	JWTSecret string `env:"JWT_SECRET,required=true"`

	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB,default=0"`
	PresenceTTL   time.Duration `env:"PRESENCE_TTL,default=90s"`

	MaxMessageLength int           `env:"MAX_MESSAGE_LENGTH,default=5000"`
	WSSendBuffer     int           `env:"WS_SEND_BUFFER,default=64"`
	WSPingInterval   time.Duration `env:"WS_PING_INTERVAL,default=30s"`
	WSMaxFrameBytes  int           `env:"WS_MAX_FRAME_BYTES,default=16384"`
	WSRateLimit      int           `env:"WS_RATE_LIMIT,default=20"`
	HTTPMaxBodyBytes int           `env:"HTTP_MAX_BODY_BYTES,default=10240"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`

	LogDevelopment bool `env:"LOG_DEVELOPMENT,default=false"`
}

// Load reads an optional .env file and binds the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("binding environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must not be empty")
	}
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseHost == "" || c.DatabaseUser == "" || c.DatabaseName == "" {
			return fmt.Errorf("DATABASE_HOST, DATABASE_USER and DATABASE_NAME are required for the %s driver", DriverPostgres)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("MAX_MESSAGE_LENGTH must be positive, got %d", c.MaxMessageLength)
	}
	if c.WSRateLimit <= 0 {
		return fmt.Errorf("WS_RATE_LIMIT must be positive, got %d", c.WSRateLimit)
	}
	if c.WSSendBuffer <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive, got %d", c.WSSendBuffer)
	}
	if c.HTTPMaxBodyBytes <= 0 {
		return fmt.Errorf("HTTP_MAX_BODY_BYTES must be positive, got %d", c.HTTPMaxBodyBytes)
	}
	if c.WSPingInterval <= 0 {
		return fmt.Errorf("WS_PING_INTERVAL must be positive, got %s", c.WSPingInterval)
	}
	// a session refreshes presence on every pong, so the TTL has to outlive one ping round
	if c.PresenceTTL <= c.WSPingInterval {
		return fmt.Errorf("PRESENCE_TTL (%s) must be longer than WS_PING_INTERVAL (%s)", c.PresenceTTL, c.WSPingInterval)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %s", c.ShutdownTimeout)
	}
	return nil
}

// Origins splits ALLOWED_ORIGINS into the list expected by the CORS middleware.
func (c Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// DatabaseDSN builds the keyword/value connection string used by pgxpool.
func (c Config) DatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s",
		c.DatabaseHost, c.DatabasePort, c.DatabaseUser, c.DatabasePassword, c.DatabaseName)
}
