package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config is read once at startup and never mutated afterwards.
type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=production"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	JWT      JWTConfig
	Database DatabaseConfig
	Redis    RedisConfig
	SMTP     SMTPConfig
	Seed     SeedConfig
	Auth     AuthConfig
}

type JWTConfig struct {
	Issuer string `env:"JWT_ISSUER, required"`
	Key    string `env:"JWT_KEY,    required"`
	// Audience falls back to Issuer.
	Audience  string        `env:"JWT_AUDIENCE"`
	TTL       time.Duration `env:"JWT_TTL,        default=24h"`
	ClockSkew time.Duration `env:"JWT_CLOCK_SKEW, default=0s"`
}

type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER,     default=sqlite"`
	// Connection is a file path for sqlite and a URI for mongo.
	Connection string `env:"DB_CONNECTION, required"`
	MongoDB    string `env:"MONGO_DB,      default=estate"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,     default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,       default=0"`
}

type SMTPConfig struct {
	Server      string        `env:"SMTP_SERVER,       required"`
	Port        int           `env:"SMTP_PORT,         required"`
	Username    string        `env:"SMTP_USERNAME,     required"`
	Password    string        `env:"SMTP_PASSWORD,     required"`
	FromName    string        `env:"SMTP_FROM_NAME,    default=Support CareApp"`
	FromAddress string        `env:"SMTP_FROM_ADDRESS"`
	TLSPolicy   string        `env:"SMTP_TLS_POLICY,   default=mandatory"`
	Timeout     time.Duration `env:"SMTP_TIMEOUT,      default=30s"`
}

// SeedConfig drives startup seeding. Manager, Admin and User are always
// seeded; ExtraRoles only adds to them.
type SeedConfig struct {
	ExtraRoles    []string `env:"SEED_EXTRA_ROLES"`
	AdminEmail    string   `env:"SEED_ADMIN_EMAIL,    default=ceorealfinance@gmail.com"`
	AdminPassword string   `env:"SEED_ADMIN_PASSWORD"`
}

type AuthConfig struct {
	ResetTokenTTL time.Duration `env:"RESET_TOKEN_TTL,  default=1h"`
	RateLimit     float64       `env:"AUTH_RATE_LIMIT,  default=5"`
	RateBurst     int           `env:"AUTH_RATE_BURST,  default=10"`
}

// IsDevelopment reports whether development-only surfaces may be enabled.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development")
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith reads configuration from an arbitrary lookuper and validates it.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.SMTP.FromAddress == "" {
		cfg.SMTP.FromAddress = cfg.SMTP.Username
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that would leave authentication or mail
// half-configured.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.JWT.Issuer) == "" {
		errs = append(errs, errors.New("JWT_ISSUER must not be blank"))
	}
	if len(c.JWT.Key) < 32 {
		errs = append(errs, fmt.Errorf("JWT_KEY must be at least 32 bytes for HS256, got %d", len(c.JWT.Key)))
	}
	if c.JWT.TTL <= 0 {
		errs = append(errs, errors.New("JWT_TTL must be positive"))
	}
	if c.JWT.ClockSkew < 0 {
		errs = append(errs, errors.New("JWT_CLOCK_SKEW must not be negative"))
	}

	switch c.Database.Driver {
	case "sqlite", "mongo":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be sqlite or mongo, got %q", c.Database.Driver))
	}

	if strings.TrimSpace(c.SMTP.Server) == "" {
		errs = append(errs, errors.New("SMTP_SERVER must not be blank"))
	}
	if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("SMTP_PORT out of range: %d", c.SMTP.Port))
	}
	switch strings.ToLower(c.SMTP.TLSPolicy) {
	case "mandatory", "opportunistic", "none":
	default:
		errs = append(errs, fmt.Errorf("SMTP_TLS_POLICY must be mandatory, opportunistic or none, got %q", c.SMTP.TLSPolicy))
	}

	for _, r := range c.Seed.ExtraRoles {
		if strings.TrimSpace(r) == "" {
			errs = append(errs, errors.New("SEED_EXTRA_ROLES must not contain blank names"))
			break
		}
	}
	if strings.TrimSpace(c.Seed.AdminEmail) == "" {
		errs = append(errs, errors.New("SEED_ADMIN_EMAIL must not be blank"))
	}

	if c.Auth.RateLimit <= 0 || c.Auth.RateBurst <= 0 {
		errs = append(errs, errors.New("AUTH_RATE_LIMIT and AUTH_RATE_BURST must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
