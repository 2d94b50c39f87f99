package jwks

import (
	"strings"
	"time"

	"github.com/goliatone/go-portal"
)

// SigningKey is a locally configured verification key.
type SigningKey struct {
	Algorithm string
	Key       any
}

// Config holds hosted identity provider settings for token validation.
type Config struct {
	// URLs are the JWK Set endpoints. When more than one is given the first
	// set holding the token's kid wins.
	URLs []string

	// GivenKeys are merged with the remote sets, keyed by kid.
	GivenKeys map[string]SigningKey

	// Issuer is compared against the iss claim when set.
	Issuer string

	// Audience is compared against the aud claim when set.
	Audience []string

	// Algorithms restricts accepted signing methods.
	// Default: RS256.
	Algorithms []string

	// RefreshInterval is how often remote key sets are refreshed.
	// Default: 1 hour.
	RefreshInterval time.Duration

	Logger portal.Logger
}

func (c Config) algorithms() []string {
	if len(c.Algorithms) == 0 {
		return []string{"RS256"}
	}
	return c.Algorithms
}

func (c Config) refreshInterval() time.Duration {
	if c.RefreshInterval <= 0 {
		return time.Hour
	}
	return c.RefreshInterval
}

func (c Config) urls() []string {
	out := make([]string, 0, len(c.URLs))
	for _, u := range c.URLs {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}
