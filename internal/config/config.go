// Package config loads server settings from the environment.
//
// A .env file in the working directory is read first when present; real
// environment variables always win over it.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/sakif/readme-studio/internal/auth"
)

// Storage backends selectable with DB_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

type Config struct {
	Port           int           `envconfig:"PORT" default:"5000"`
	JWTSecret      string        `envconfig:"JWT_SECRET" required:"true"`
	TokenTTL       time.Duration `envconfig:"TOKEN_TTL" default:"168h"`
	FrontendOrigin string        `envconfig:"FRONTEND_ORIGIN" default:"http://localhost:5173"`

	DBDriver        string        `envconfig:"DB_DRIVER" default:"sqlite"`
	DBPath          string        `envconfig:"DB_PATH" default:"data/readme-studio.db"`
	DatabaseURL     string        `envconfig:"DATABASE_URL"`
	MongoURI        string        `envconfig:"MONGODB_CONN"`
	MongoDatabase   string        `envconfig:"MONGODB_DATABASE" default:"readme_studio"`
	CookieSecure    bool          `envconfig:"COOKIE_SECURE" default:"false"`
	CookieSameSite  string        `envconfig:"COOKIE_SAMESITE" default:"lax"`
	BcryptCost      int           `envconfig:"BCRYPT_COST" default:"10"`
	PhoneRegion     string        `envconfig:"PHONE_REGION" default:"US"`
	RedisAddr       string        `envconfig:"REDIS_ADDR"`
	RedisPassword   string        `envconfig:"REDIS_PASSWORD"`
	RedisDB         int           `envconfig:"REDIS_DB" default:"0"`
	LoginRateLimit  int           `envconfig:"LOGIN_RATE_LIMIT" default:"20"`
	LoginRateWindow time.Duration `envconfig:"LOGIN_RATE_WINDOW" default:"1m"`

	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Enable only behind a proxy that overwrites those headers.
	TrustProxy bool `envconfig:"TRUST_PROXY" default:"false"`

	GitHubAPIURL    string        `envconfig:"GITHUB_API_URL" default:"https://api.github.com"`
	GeminiAPIKey    string        `envconfig:"GEMINI_API_KEY"`
	GeminiModel     string        `envconfig:"GEMINI_MODEL" default:"gemini-1.5-flash"`
	GeminiEndpoint  string        `envconfig:"GEMINI_ENDPOINT"`
	UpstreamTimeout time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"15s"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
}

// Load reads .env (if any) and the process environment, then validates.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: reading .env: %w", err)
	}
	return FromEnv()
}

// FromEnv reads the process environment only.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate collects every problem instead of stopping at the first.
func (c *Config) Validate() error {
	var problems []string

	if len(c.JWTSecret) < 16 {
		problems = append(problems, "JWT_SECRET must be at least 16 characters")
	}
	if c.Port <= 0 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("PORT %d out of range", c.Port))
	}
	if c.TokenTTL <= 0 {
		problems = append(problems, "TOKEN_TTL must be positive")
	}
	if _, err := url.ParseRequestURI(c.FrontendOrigin); err != nil {
		problems = append(problems, "FRONTEND_ORIGIN must be a valid URL")
	}

	c.DBDriver = strings.ToLower(c.DBDriver)
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			problems = append(problems, "DB_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			problems = append(problems, "DATABASE_URL is required for the postgres driver")
		}
	case DriverMongo:
		if c.MongoURI == "" {
			problems = append(problems, "MONGODB_CONN is required for the mongo driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("DB_DRIVER %q is not one of sqlite, postgres, mongo", c.DBDriver))
	}

	sameSite, err := auth.ParseSameSite(c.CookieSameSite)
	if err != nil {
		problems = append(problems, err.Error())
	} else if sameSite == http.SameSiteNoneMode && !c.CookieSecure {
		problems = append(problems, "COOKIE_SAMESITE=none requires COOKIE_SECURE=true")
	}

	if c.LoginRateLimit < 0 {
		problems = append(problems, "LOGIN_RATE_LIMIT must not be negative")
	}
	if c.UpstreamTimeout <= 0 {
		problems = append(problems, "UPSTREAM_TIMEOUT must be positive")
	}
	if _, err := c.SlogLevel(); err != nil {
		problems = append(problems, err.Error())
	}
	if f := strings.ToLower(c.LogFormat); f != "text" && f != "json" {
		problems = append(problems, fmt.Sprintf("LOG_FORMAT %q is not text or json", c.LogFormat))
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: invalid environment:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

// Cookie returns the session cookie attributes. Call it on a validated Config.
func (c *Config) Cookie() auth.CookieConfig {
	sameSite, _ := auth.ParseSameSite(c.CookieSameSite)
	return auth.CookieConfig{
		Secure:   c.CookieSecure,
		SameSite: sameSite,
		MaxAge:   c.TokenTTL,
	}
}

func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL %q is not debug, info, warn or error", c.LogLevel)
	}
	return level, nil
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c *Config) NewLogger() *slog.Logger {
	level, _ := c.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// MaskSecret keeps just enough of a secret to recognise it in logs.
func MaskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

// LogValue renders the config for startup logs with secrets masked.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("port", c.Port),
		slog.String("dbDriver", c.DBDriver),
		slog.String("frontendOrigin", c.FrontendOrigin),
		slog.Duration("tokenTTL", c.TokenTTL),
		slog.String("jwtSecret", MaskSecret(c.JWTSecret)),
		slog.Bool("cookieSecure", c.CookieSecure),
		slog.String("cookieSameSite", c.CookieSameSite),
		slog.Bool("redis", c.RedisAddr != ""),
		slog.Int("loginRateLimit", c.LoginRateLimit),
		slog.Bool("trustProxy", c.TrustProxy),
		slog.Bool("readmeGenerator", c.GeminiAPIKey != ""),
	)
}
