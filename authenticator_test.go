package portal_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-portal"
)

func newTestTokens() *portal.TokenService {
	return portal.NewTokenService([]byte("test-signing-key"), 2, "go-portal", []string{"portal"}, nil)
}

func TestTokenServiceRoundTrip(t *testing.T) {
	tokens := newTestTokens()
	principal := &portal.Principal{ID: uuid.New(), Email: "ana@example.com", DisplayName: "Ana"}

	token, err := tokens.Generate(principal)
	require.NoError(t, err)

	claims, err := tokens.Validate(token)
	require.NoError(t, err)

	assert.Equal(t, principal.ID.String(), claims.Subject())
	assert.Equal(t, principal.ID.String(), claims.UserID())
	assert.Equal(t, "ana@example.com", claims.Email)
	assert.Equal(t, "Ana", claims.Name)
	assert.WithinDuration(t, claims.IssuedAt().Add(2*time.Hour), claims.Expires(), time.Second)
	assert.Equal(t, 2*time.Hour, tokens.TTL())
}

func TestTokenServiceRejectsExpiredToken(t *testing.T) {
	issued := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	tokens := newTestTokens().WithClock(fixedClock(issued))

	token, err := tokens.Generate(&portal.Principal{ID: uuid.New()})
	require.NoError(t, err)

	tokens.WithClock(fixedClock(issued.Add(3 * time.Hour)))
	_, err = tokens.Validate(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, portal.ErrTokenExpired)
	assert.True(t, portal.HasTextCode(err, portal.TextCodeUnauthenticated))
}

func TestTokenServiceRejectsForeignTokens(t *testing.T) {
	tokens := newTestTokens()

	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{
			name: "garbage",
			token: func(*testing.T) string {
				return "not.a.jwt"
			},
		},
		{
			name: "different key",
			token: func(t *testing.T) string {
				other := portal.NewTokenService([]byte("another-key"), 2, "go-portal", []string{"portal"}, nil)
				s, err := other.Generate(&portal.Principal{ID: uuid.New()})
				require.NoError(t, err)
				return s
			},
		},
		{
			name: "wrong audience",
			token: func(t *testing.T) string {
				other := portal.NewTokenService([]byte("test-signing-key"), 2, "go-portal", []string{"billing"}, nil)
				s, err := other.Generate(&portal.Principal{ID: uuid.New()})
				require.NoError(t, err)
				return s
			},
		},
		{
			name: "unsigned",
			token: func(t *testing.T) string {
				s, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
					Subject:  uuid.NewString(),
					Issuer:   "go-portal",
					Audience: jwt.ClaimStrings{"portal"},
				}).SignedString(jwt.UnsafeAllowNoneSignatureType)
				require.NoError(t, err)
				return s
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tokens.Validate(tt.token(t))
			require.Error(t, err)
			assert.True(t, portal.HasTextCode(err, portal.TextCodeUnauthenticated))
		})
	}
}

func TestCredentialIdentityProvider(t *testing.T) {
	repo := newTestRepo(t)
	member := seedPrincipal(t, repo, "member@example.com", portal.RoleTeam, true)
	seedCredential(t, repo, member, "s3cret-pass")

	provider := portal.NewCredentialIdentityProvider(repo.Credentials(), fastHasher, nil)

	credential, err := provider.VerifyIdentity(context.Background(), "member@example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, member.ID, credential.ID)

	_, err = provider.VerifyIdentity(context.Background(), "member@example.com", "wrong")
	assert.ErrorIs(t, err, portal.ErrInvalidCredentials)

	_, err = provider.VerifyIdentity(context.Background(), "nobody@example.com", "s3cret-pass")
	assert.ErrorIs(t, err, portal.ErrInvalidCredentials)

	_, err = provider.VerifyIdentity(context.Background(), "", "")
	assert.ErrorIs(t, err, portal.ErrInvalidCredentials)
}

func TestResolver(t *testing.T) {
	repo := newTestRepo(t)
	owner := seedPrincipal(t, repo, "owner@example.com", portal.RoleOwner, true)
	resolver := portal.NewResolver(repo.Principals(), nil)

	t.Run("stored profile", func(t *testing.T) {
		p, err := resolver.Resolve(context.Background(), sessionClaims(owner.ID.String(), "owner@example.com"))
		require.NoError(t, err)
		assert.Equal(t, portal.RoleOwner, p.Role)
		assert.True(t, p.IsApproved)
	})

	t.Run("session without profile is a user", func(t *testing.T) {
		id := uuid.New()
		p, err := resolver.Resolve(context.Background(), sessionClaims(id.String(), " Visitor@Example.com "))
		require.NoError(t, err)
		assert.Equal(t, id, p.ID)
		assert.Equal(t, portal.RoleUser, p.Role)
		assert.Equal(t, "visitor@example.com", p.Email)
	})

	t.Run("unusable subject", func(t *testing.T) {
		_, err := resolver.Resolve(context.Background(), sessionClaims("", ""))
		assert.True(t, portal.HasTextCode(err, portal.TextCodeUnauthenticated))

		_, err = resolver.Resolve(context.Background(), nil)
		assert.True(t, portal.HasTextCode(err, portal.TextCodeUnauthenticated))
	})

	t.Run("store failure surfaces", func(t *testing.T) {
		failing := portal.NewResolver(stubLookup{err: assert.AnError}, nil)
		_, err := failing.Resolve(context.Background(), sessionClaims(uuid.NewString(), ""))
		assert.ErrorIs(t, err, assert.AnError)
	})
}

func sessionClaims(subject, email string) *portal.SessionClaims {
	return &portal.SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
		Email:            email,
	}
}

type authFixture struct {
	repo   portal.RepositoryManager
	auther *portal.Authenticator
	member *portal.Principal
}

func newAuthFixture(t *testing.T, opts ...portal.AuthenticatorOption) *authFixture {
	t.Helper()

	repo := newTestRepo(t)
	member := seedPrincipal(t, repo, "member@example.com", portal.RoleTeam, true)
	seedCredential(t, repo, member, "s3cret-pass")

	provider := portal.NewCredentialIdentityProvider(repo.Credentials(), fastHasher, nil)
	base := []portal.AuthenticatorOption{portal.WithAuthenticatorAudit(newTestAudit(repo))}

	return &authFixture{
		repo:   repo,
		auther: portal.NewAuthenticator(provider, repo.Principals(), newTestTokens(), append(base, opts...)...),
		member: member,
	}
}

func TestAuthenticatorLogin(t *testing.T) {
	f := newAuthFixture(t)

	token, principal, err := f.auther.Login(context.Background(), " Member@Example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, f.member.ID, principal.ID)
	assert.Equal(t, portal.RoleTeam, principal.Role)

	resolved, err := f.auther.PrincipalFromToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, f.member.ID, resolved.ID)

	entries := auditActions(t, f.repo, portal.AuditLoginSuccess)
	require.Len(t, entries, 1)
	assert.Equal(t, f.member.ID.String(), entries[0].PerformedBy)
}

func TestAuthenticatorLoginFailureIsAudited(t *testing.T) {
	f := newAuthFixture(t)

	token, principal, err := f.auther.Login(context.Background(), "member@example.com", "nope")
	require.Error(t, err)
	assert.Empty(t, token)
	assert.Nil(t, principal)
	assert.True(t, portal.HasTextCode(err, portal.TextCodeInvalidCredentials))

	entries := auditActions(t, f.repo, portal.AuditLoginFailure)
	require.Len(t, entries, 1)
	assert.Equal(t, "member@example.com", entries[0].Details["email"])
}

func TestAuthenticatorLoginRateLimited(t *testing.T) {
	f := newAuthFixture(t, portal.WithAuthenticatorLimiter(portal.NewAttemptLimiter(time.Hour, 2)))

	for i := 0; i < 2; i++ {
		_, _, err := f.auther.Login(context.Background(), "member@example.com", "nope")
		require.True(t, portal.HasTextCode(err, portal.TextCodeInvalidCredentials))
	}

	_, _, err := f.auther.Login(context.Background(), "member@example.com", "s3cret-pass")
	assert.True(t, portal.HasTextCode(err, portal.TextCodeRateLimited))
}

func TestAuthenticatorLoginWithoutProfile(t *testing.T) {
	repo := newTestRepo(t)
	ghost := &portal.Principal{ID: uuid.New(), Email: "ghost@example.com"}
	seedCredential(t, repo, ghost, "s3cret-pass")

	provider := portal.NewCredentialIdentityProvider(repo.Credentials(), fastHasher, nil)
	auther := portal.NewAuthenticator(provider, repo.Principals(), newTestTokens())

	_, principal, err := auther.Login(context.Background(), "ghost@example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, portal.RoleUser, principal.Role)
	assert.Equal(t, ghost.ID, principal.ID)
}
