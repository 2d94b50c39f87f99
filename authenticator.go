package portal

import (
	"context"
	"time"
)

// Authenticator signs principals in with local credentials and resolves
// session tokens back into principals.
type Authenticator struct {
	provider  IdentityProvider
	lookup    PrincipalLookup
	tokens    *TokenService
	validator TokenValidator
	resolver  *Resolver
	audit     *AuditRecorder
	limiter   *AttemptLimiter
	logger    Logger
}

// AuthenticatorOption customizes the authenticator.
type AuthenticatorOption func(*Authenticator)

// WithAuthenticatorLogger sets the logger.
func WithAuthenticatorLogger(logger Logger) AuthenticatorOption {
	return func(a *Authenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithAuthenticatorAudit records login outcomes.
func WithAuthenticatorAudit(audit *AuditRecorder) AuthenticatorOption {
	return func(a *Authenticator) {
		a.audit = audit
	}
}

// WithAuthenticatorLimiter throttles login attempts per email.
func WithAuthenticatorLimiter(limiter *AttemptLimiter) AuthenticatorOption {
	return func(a *Authenticator) {
		a.limiter = limiter
	}
}

// WithTokenValidator validates sessions issued by a hosted identity
// provider instead of the local token service.
func WithTokenValidator(validator TokenValidator) AuthenticatorOption {
	return func(a *Authenticator) {
		if validator != nil {
			a.validator = validator
		}
	}
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, lookup PrincipalLookup, tokens *TokenService, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{
		provider:  provider,
		lookup:    lookup,
		tokens:    tokens,
		validator: tokens,
		logger:    defLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	a.resolver = NewResolver(lookup, a.logger)
	return a
}

// TokenService returns the local token service.
func (a *Authenticator) TokenService() *TokenService {
	return a.tokens
}

// SessionTTL is how long an issued session stays valid.
func (a *Authenticator) SessionTTL() time.Duration {
	if a.tokens == nil {
		return 24 * time.Hour
	}
	return a.tokens.TTL()
}

// Login verifies credentials and returns a signed session token.
func (a *Authenticator) Login(ctx context.Context, email, password string) (string, *Principal, error) {
	email = normalizeEmail(email)

	if !a.limiter.Allow("login:" + email) {
		err := newError(ErrRateLimited, map[string]any{"email": email})
		a.loginFailed(ctx, email, err)
		return "", nil, err
	}

	credential, err := a.provider.VerifyIdentity(ctx, email, password)
	if err != nil {
		a.logger.Warn("login verify identity failed", "email", email, "error", err)
		a.loginFailed(ctx, email, err)
		return "", nil, err
	}

	principal, err := a.lookup.GetByID(ctx, credential.ID)
	if err != nil {
		if !HasTextCode(err, TextCodeNotFound) {
			a.logger.Error("login principal lookup failed", "email", email, "error", err)
			return "", nil, err
		}
		principal = &Principal{ID: credential.ID, Email: credential.Email, Role: RoleUser}
	}

	token, err := a.tokens.Generate(principal)
	if err != nil {
		a.logger.Error("login token generation failed", "error", err)
		return "", nil, err
	}

	a.audit.Record(ctx, AuditLoginSuccess, principal.ActorRef(), map[string]any{
		"email": principal.Email,
	}, WithAuditTarget(principal.ID.String(), "principal"))

	return token, principal, nil
}

// PrincipalFromToken validates a raw token and resolves its principal.
func (a *Authenticator) PrincipalFromToken(ctx context.Context, token string) (*Principal, error) {
	claims, err := a.validator.Validate(token)
	if err != nil {
		return nil, err
	}
	return a.resolver.Resolve(ctx, claims)
}

// Resolver returns the claims resolver.
func (a *Authenticator) Resolver() *Resolver {
	return a.resolver
}

// Validator returns the session token validator in use.
func (a *Authenticator) Validator() TokenValidator {
	return a.validator
}

func (a *Authenticator) loginFailed(ctx context.Context, email string, err error) {
	a.audit.Record(ctx, AuditLoginFailure, ActorRef{Type: "anonymous"}, map[string]any{
		"email": email,
		"error": err.Error(),
	})
}
