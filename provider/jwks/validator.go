package jwks

import (
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-portal"
)

// Validator validates tokens issued by a hosted identity provider.
type Validator struct {
	keyfunc  jwt.Keyfunc
	issuer   string
	audience []string
	methods  []string
	now      func() time.Time
	stop     func()
}

var _ portal.TokenValidator = (*Validator)(nil)

// New builds a validator. Remote key sets are fetched once up front and
// refreshed in the background until Close is called.
func New(cfg Config) (*Validator, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = portal.NewLogrusLogger(nil, "jwks")
	}

	var givenKeys map[string]keyfunc.GivenKey
	if len(cfg.GivenKeys) > 0 {
		givenKeys = make(map[string]keyfunc.GivenKey, len(cfg.GivenKeys))
		for kid, key := range cfg.GivenKeys {
			givenKeys[kid] = keyfunc.NewGivenCustom(key.Key, keyfunc.GivenKeyOptions{
				Algorithm: key.Algorithm,
			})
		}
	}

	v := &Validator{
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		methods:  cfg.algorithms(),
		now:      time.Now,
		stop:     func() {},
	}

	urls := cfg.urls()
	switch {
	case len(urls) == 1:
		set, err := keyfunc.Get(urls[0], keyfuncOptions(givenKeys, cfg.refreshInterval(), logger))
		if err != nil {
			return nil, fmt.Errorf("jwks: failed to get key set: %w", err)
		}
		v.keyfunc = set.Keyfunc
		v.stop = set.EndBackground
	case len(urls) > 1:
		opts := keyfuncOptions(givenKeys, cfg.refreshInterval(), logger)
		m := make(map[string]keyfunc.Options, len(urls))
		for _, url := range urls {
			m[url] = opts
		}
		multi, err := keyfunc.GetMultiple(m, keyfunc.MultipleOptions{
			KeySelector: keyfunc.KeySelectorFirst,
		})
		if err != nil {
			return nil, fmt.Errorf("jwks: failed to get key sets: %w", err)
		}
		v.keyfunc = multi.Keyfunc
		v.stop = func() {
			for _, set := range multi.JWKSets() {
				set.EndBackground()
			}
		}
	case len(givenKeys) > 0:
		v.keyfunc = keyfunc.NewGiven(givenKeys).Keyfunc
	default:
		return nil, fmt.Errorf("jwks: at least one key set URL or given key is required")
	}

	return v, nil
}

// WithClock overrides the clock used for expiry checks.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	if now != nil {
		v.now = now
	}
	return v
}

// Validate implements portal.TokenValidator.
func (v *Validator) Validate(tokenString string) (*portal.SessionClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.methods),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if len(v.audience) > 0 {
		opts = append(opts, jwt.WithAudience(v.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &portal.SessionClaims{}, v.keyfunc, opts...)
	if err != nil {
		return nil, normalizeValidationError(err)
	}

	claims, ok := token.Claims.(*portal.SessionClaims)
	if !ok || !token.Valid {
		return nil, portal.ErrTokenMalformed
	}
	return claims, nil
}

// Close stops background key refreshes.
func (v *Validator) Close() {
	if v != nil && v.stop != nil {
		v.stop()
	}
}

func keyfuncOptions(givenKeys map[string]keyfunc.GivenKey, refresh time.Duration, logger portal.Logger) keyfunc.Options {
	return keyfunc.Options{
		GivenKeys: givenKeys,
		RefreshErrorHandler: func(err error) {
			logger.Warn("failed to refresh JWK set", "error", err)
		},
		RefreshInterval:   refresh,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	}
}

func normalizeValidationError(err error) error {
	clone := portal.ErrTokenMalformed.Clone()
	if goerrors.Is(err, jwt.ErrTokenExpired) {
		clone = portal.ErrTokenExpired.Clone()
	}
	if clone == nil {
		return err
	}

	clone.Source = err
	return clone.WithMetadata(map[string]any{
		"provider": "jwks",
		"cause":    err.Error(),
	})
}
