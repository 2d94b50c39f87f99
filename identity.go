package portal

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// CredentialIdentityProvider verifies email and password against the
// local credentials collection.
type CredentialIdentityProvider struct {
	credentials Credentials
	hasher      PasswordAuthenticator
	logger      Logger
}

var _ IdentityProvider = (*CredentialIdentityProvider)(nil)

// NewCredentialIdentityProvider creates the local identity provider.
func NewCredentialIdentityProvider(credentials Credentials, hasher PasswordAuthenticator, logger Logger) *CredentialIdentityProvider {
	if hasher == nil {
		hasher = BcryptHasher{}
	}
	return &CredentialIdentityProvider{
		credentials: credentials,
		hasher:      hasher,
		logger:      normalizeLogger(logger),
	}
}

// VerifyIdentity returns the credential when password matches. Unknown
// emails and wrong passwords both yield ErrInvalidCredentials.
func (p *CredentialIdentityProvider) VerifyIdentity(ctx context.Context, email, password string) (*Credential, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	credential, err := p.credentials.GetByEmail(ctx, email)
	if err != nil {
		if HasTextCode(err, TextCodeNotFound) {
			return nil, ErrInvalidCredentials
		}
		p.logger.Error("verify identity lookup failed", "error", err)
		return nil, err
	}

	if err := p.hasher.ComparePasswordAndHash(password, credential.PasswordHash); err != nil {
		if goerrors.Is(err, ErrInvalidCredentials) {
			return nil, ErrInvalidCredentials
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to compare password hash")
	}

	return credential, nil
}

// Resolver turns validated session claims into a principal. The stored
// profile decides role and approval; a session without a profile is an
// ordinary user.
type Resolver struct {
	principals PrincipalLookup
	logger     Logger
}

// NewResolver creates a resolver backed by lookup.
func NewResolver(lookup PrincipalLookup, logger Logger) *Resolver {
	return &Resolver{principals: lookup, logger: normalizeLogger(logger)}
}

// Resolve loads the principal for claims.
func (r *Resolver) Resolve(ctx context.Context, claims *SessionClaims) (*Principal, error) {
	if claims == nil {
		return nil, ErrUnauthenticated
	}

	id := PrincipalIDFromSubject(claims.Subject())
	if id == uuid.Nil {
		return nil, ErrUnauthenticated
	}

	principal, err := r.principals.GetByID(ctx, id)
	if err == nil {
		principal.Role = ParseRole(string(principal.Role))
		return principal, nil
	}

	if !HasTextCode(err, TextCodeNotFound) {
		r.logger.Error("resolve principal failed", "subject", claims.Subject(), "error", err)
		return nil, err
	}

	return &Principal{
		ID:          id,
		Email:       normalizeEmail(claims.Email),
		DisplayName: claims.Name,
		Role:        RoleUser,
	}, nil
}
