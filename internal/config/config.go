package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/goliatone/go-portal"
)

// Config is the process configuration, read from PORTAL_* environment
// variables.
type Config struct {
	SigningKey      string   `env:"PORTAL_SIGNING_KEY,required"`
	ContextKey      string   `env:"PORTAL_CONTEXT_KEY"       envDefault:"portal_session"`
	TokenExpiration int      `env:"PORTAL_TOKEN_EXPIRATION"  envDefault:"24"`
	TokenLookup     string   `env:"PORTAL_TOKEN_LOOKUP"      envDefault:"header:Authorization,cookie:portal_session"`
	AuthScheme      string   `env:"PORTAL_AUTH_SCHEME"       envDefault:"Bearer"`
	Issuer          string   `env:"PORTAL_ISSUER"            envDefault:"go-portal"`
	Audience        []string `env:"PORTAL_AUDIENCE"          envDefault:"portal" envSeparator:","`
	LoginRoute      string   `env:"PORTAL_LOGIN_ROUTE"       envDefault:"/login"`
	HomeRoute       string   `env:"PORTAL_HOME_ROUTE"        envDefault:"/"`

	// JWKSURLs switches session validation to a hosted identity provider.
	JWKSURLs     []string `env:"PORTAL_JWKS_URLS"    envSeparator:","`
	JWKSIssuer   string   `env:"PORTAL_JWKS_ISSUER"`
	JWKSAudience []string `env:"PORTAL_JWKS_AUDIENCE" envSeparator:","`

	Persistence Persistence

	HTTPAddr    string `env:"PORTAL_HTTP_ADDR"    envDefault:":8080"`
	MetricsAddr string `env:"PORTAL_METRICS_ADDR" envDefault:":9090"`
	LogLevel    string `env:"PORTAL_LOG_LEVEL"    envDefault:"info"`
	LogFormat   string `env:"PORTAL_LOG_FORMAT"   envDefault:"text"`

	InviteTTL   time.Duration `env:"PORTAL_INVITE_TTL"   envDefault:"168h"`
	RedeemEvery time.Duration `env:"PORTAL_REDEEM_EVERY" envDefault:"10s"`
	RedeemBurst int           `env:"PORTAL_REDEEM_BURST" envDefault:"5"`
	PhoneRegion string        `env:"PORTAL_PHONE_REGION" envDefault:"US"`
}

// Persistence configures the database client.
type Persistence struct {
	DSN            string        `env:"PORTAL_DATABASE_DSN"          envDefault:"file:portal.db?cache=shared"`
	Driver         string        `env:"PORTAL_DATABASE_DRIVER"       envDefault:"sqlite"`
	Debug          bool          `env:"PORTAL_DATABASE_DEBUG"        envDefault:"false"`
	PingTimeout    time.Duration `env:"PORTAL_DATABASE_PING_TIMEOUT" envDefault:"5s"`
	OtelIdentifier string        `env:"PORTAL_DATABASE_OTEL_ID"      envDefault:"portal"`
}

var _ portal.Config = (*Config)(nil)

// Load reads the given .env files, when present, and parses the
// environment. Variables already set in the environment win over file
// values.
func Load(envFiles ...string) (*Config, error) {
	for _, file := range envFiles {
		if file == "" {
			continue
		}
		if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.PhoneRegion = strings.ToUpper(strings.TrimSpace(cfg.PhoneRegion))
	return cfg, nil
}

func (c *Config) GetPersistence() Persistence {
	return c.Persistence
}

func (c *Config) GetSigningKey() string {
	return c.SigningKey
}

func (c *Config) GetContextKey() string {
	return c.ContextKey
}

func (c *Config) GetTokenExpiration() int {
	return c.TokenExpiration
}

func (c *Config) GetTokenLookup() string {
	return c.TokenLookup
}

func (c *Config) GetAuthScheme() string {
	return c.AuthScheme
}

func (c *Config) GetIssuer() string {
	return c.Issuer
}

func (c *Config) GetAudience() []string {
	return c.Audience
}

func (c *Config) GetLoginRoute() string {
	return c.LoginRoute
}

func (c *Config) GetHomeRoute() string {
	return c.HomeRoute
}

// UsesHostedIdentity reports whether sessions are validated against a
// hosted identity provider's key set.
func (c *Config) UsesHostedIdentity() bool {
	return len(c.JWKSURLs) > 0
}

func (p Persistence) GetDSN() string {
	return p.DSN
}

// GetServer returns the DSN. The sqlite driver has no separate server.
func (p Persistence) GetServer() string {
	return p.DSN
}

func (p Persistence) GetDriver() string {
	return p.Driver
}

func (p Persistence) GetDebug() bool {
	return p.Debug
}

func (p Persistence) GetPingTimeout() time.Duration {
	return p.PingTimeout
}

func (p Persistence) GetOtelIdentifier() string {
	return p.OtelIdentifier
}
