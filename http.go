package portal

import (
	"net/http"
	"strings"

	"github.com/goliatone/go-router"

	"github.com/goliatone/go-portal/middleware/jwtware"
)

// RouteGuard is the HTTP middleware that resolves the session principal
// and applies the guard table before a protected handler runs.
type RouteGuard struct {
	guard       *Guard
	validator   TokenValidator
	resolver    *Resolver
	metrics     Metrics
	logger      Logger
	contextKey  string
	tokenLookup string
	authScheme  string
}

// RouteGuardOption customizes the middleware.
type RouteGuardOption func(*RouteGuard)

// WithRouteGuardMetrics records every decision.
func WithRouteGuardMetrics(m Metrics) RouteGuardOption {
	return func(rg *RouteGuard) {
		if m != nil {
			rg.metrics = m
		}
	}
}

// WithRouteGuardLogger sets the logger.
func WithRouteGuardLogger(logger Logger) RouteGuardOption {
	return func(rg *RouteGuard) {
		if logger != nil {
			rg.logger = logger
		}
	}
}

// WithRouteGuardTokenLookup overrides where the session token is read from.
func WithRouteGuardTokenLookup(lookup, scheme string) RouteGuardOption {
	return func(rg *RouteGuard) {
		if lookup != "" {
			rg.tokenLookup = lookup
		}
		if scheme != "" {
			rg.authScheme = scheme
		}
	}
}

// NewRouteGuard creates the middleware. Routes and token lookup come from cfg.
func NewRouteGuard(cfg Config, validator TokenValidator, resolver *Resolver, opts ...RouteGuardOption) *RouteGuard {
	rg := &RouteGuard{
		guard:     NewGuardFromConfig(cfg),
		validator: validator,
		resolver:  resolver,
		metrics:   noopMetrics{},
		logger:    defLogger(),
	}
	if cfg != nil {
		rg.contextKey = cfg.GetContextKey()
		rg.tokenLookup = cfg.GetTokenLookup()
		rg.authScheme = cfg.GetAuthScheme()
	}
	for _, opt := range opts {
		if opt != nil {
			opt(rg)
		}
	}
	return rg
}

// Guard returns the underlying guard.
func (rg *RouteGuard) Guard() *Guard {
	return rg.guard
}

// Require gates a route on role. RoleNone only needs a session.
func (rg *RouteGuard) Require(role Role) router.MiddlewareFunc {
	return jwtware.New(jwtware.Config{
		Optional:       true,
		ContextKey:     rg.contextKey,
		TokenLookup:    rg.tokenLookup,
		AuthScheme:     rg.authScheme,
		TokenValidator: jwtwareValidator(rg.validator),
		SuccessHandler: func(c router.Context, claims jwtware.Claims) error {
			return rg.authorize(c, claims, role)
		},
	})
}

// Session resolves the principal when a valid session is present but
// never blocks the request. Public pages use it to personalize output.
func (rg *RouteGuard) Session() router.MiddlewareFunc {
	return jwtware.New(jwtware.Config{
		Optional:       true,
		ContextKey:     rg.contextKey,
		TokenLookup:    rg.tokenLookup,
		AuthScheme:     rg.authScheme,
		TokenValidator: jwtwareValidator(rg.validator),
		SuccessHandler: func(c router.Context, claims jwtware.Claims) error {
			if principal, sc := rg.resolve(c, claims); principal != nil {
				c.SetContext(WithClaimsContext(WithPrincipal(c.Context(), principal), sc))
			}
			return c.Next()
		},
	})
}

func (rg *RouteGuard) authorize(c router.Context, claims jwtware.Claims, required Role) error {
	principal, sc := rg.resolve(c, claims)

	decision := rg.guard.Authorize(principal, required)
	rg.metrics.GuardDecision(decision.Reason)

	if decision.Allowed {
		if principal != nil {
			c.SetContext(WithClaimsContext(WithPrincipal(c.Context(), principal), sc))
		}
		return c.Next()
	}

	return rg.deny(c, decision)
}

func (rg *RouteGuard) resolve(c router.Context, claims jwtware.Claims) (*Principal, *SessionClaims) {
	sc, ok := claims.(*SessionClaims)
	if !ok || sc == nil {
		return nil, nil
	}

	principal, err := rg.resolver.Resolve(c.Context(), sc)
	if err != nil {
		rg.logger.Warn("route guard could not resolve principal", "subject", sc.Subject(), "error", err)
		return nil, nil
	}
	return principal, sc
}

// deny issues a single redirect. A redirect back to the requested path
// would loop, so that case is answered with 403 instead.
func (rg *RouteGuard) deny(c router.Context, decision Decision) error {
	target := decision.Redirect
	if target == "" || samePath(c.Path(), target) {
		rg.logger.Info("route guard denied request", "path", c.Path(), "reason", decision.Reason)
		return c.JSON(router.StatusForbidden, map[string]any{
			"error":  ErrForbidden.Message,
			"code":   TextCodeForbidden,
			"reason": decision.Reason,
		})
	}

	rg.logger.Debug("route guard redirect", "path", c.Path(), "to", target, "reason", decision.Reason)

	status := http.StatusSeeOther
	if c.Method() == string(router.GET) {
		status = http.StatusFound
	}
	return c.Redirect(target, status)
}

func samePath(current, target string) bool {
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		target = target[:i]
	}
	trim := func(p string) string {
		if p == "/" {
			return p
		}
		return strings.TrimSuffix(p, "/")
	}
	return trim(current) == trim(target)
}

func jwtwareValidator(v TokenValidator) jwtware.TokenValidator {
	return jwtware.TokenValidatorFunc(func(raw string) (jwtware.Claims, error) {
		claims, err := v.Validate(raw)
		if err != nil {
			return nil, err
		}
		return claims, nil
	})
}
