package portal_test

import (
	"context"
	"net/http"
	"sync"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-portal"
	"github.com/goliatone/go-portal/internal/routertest"
)

type pathContext struct {
	*routertest.MockContext
	path string
}

func (c *pathContext) Path() string {
	return c.path
}

type stubLookup struct {
	records map[uuid.UUID]*portal.Principal
	err     error
}

func (s stubLookup) GetByID(_ context.Context, id uuid.UUID) (*portal.Principal, error) {
	if s.err != nil {
		return nil, s.err
	}
	if p, ok := s.records[id]; ok {
		clone := *p
		return &clone, nil
	}
	return nil, portal.ErrNotFound
}

type countingMetrics struct {
	mu        sync.Mutex
	decisions map[string]int
	redeemed  map[string]int
	moves     map[string]int
	failures  int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{
		decisions: map[string]int{},
		redeemed:  map[string]int{},
		moves:     map[string]int{},
	}
}

func (m *countingMetrics) InviteRedemption(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redeemed[result]++
}

func (m *countingMetrics) Transition(kind, status, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.moves[kind+":"+status+":"+result]++
}

func (m *countingMetrics) GuardDecision(decision string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions[decision]++
}

func (m *countingMetrics) AuditFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

type guardFixture struct {
	tokens  *portal.TokenService
	guard   *portal.RouteGuard
	metrics *countingMetrics
	owner   *portal.Principal
	team    *portal.Principal
	pending *portal.Principal
}

func newGuardFixture() *guardFixture {
	owner := &portal.Principal{ID: uuid.New(), Email: "owner@example.com", Role: portal.RoleOwner, IsApproved: true}
	team := &portal.Principal{ID: uuid.New(), Email: "team@example.com", Role: portal.RoleTeam, IsApproved: true}
	pending := &portal.Principal{ID: uuid.New(), Email: "pending@example.com", Role: portal.RoleTeam}

	lookup := stubLookup{records: map[uuid.UUID]*portal.Principal{
		owner.ID:   owner,
		team.ID:    team,
		pending.ID: pending,
	}}

	tokens := portal.NewTokenService([]byte("route-guard-secret"), 1, "go-portal", []string{"portal"}, nil)
	metrics := newCountingMetrics()
	guard := portal.NewRouteGuard(nil, tokens, portal.NewResolver(lookup, nil),
		portal.WithRouteGuardMetrics(metrics),
	)

	return &guardFixture{
		tokens:  tokens,
		guard:   guard,
		metrics: metrics,
		owner:   owner,
		team:    team,
		pending: pending,
	}
}

func (f *guardFixture) request(t *testing.T, path string, principal *portal.Principal) *pathContext {
	t.Helper()

	ctx := &pathContext{MockContext: routertest.NewMockContext(), path: path}
	header := ""
	if principal != nil {
		token, err := f.tokens.Generate(principal)
		require.NoError(t, err)
		header = "Bearer " + token
		ctx.HeadersM["Authorization"] = header
	}
	ctx.On("Context").Return(context.Background()).Maybe()
	ctx.On("SetContext", mock.Anything).Return().Maybe()
	ctx.On("Method").Return("GET").Maybe()
	return ctx
}

func noop(router.Context) error { return nil }

func TestRouteGuardRedirectsAnonymousToLogin(t *testing.T) {
	f := newGuardFixture()
	ctx := f.request(t, "/dashboard", nil)

	var redirects []string
	ctx.On("Redirect", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		redirects = append(redirects, args.String(0))
	}).Return(nil)

	err := f.guard.Require(portal.RoleTeam)(noop)(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"/login"}, redirects)
	assert.False(t, ctx.NextCalled)
	assert.Equal(t, 1, f.metrics.decisions[portal.ReasonNoPrincipal])
}

func TestRouteGuardRedirectsUnapprovedTeamHome(t *testing.T) {
	f := newGuardFixture()
	ctx := f.request(t, "/dashboard", f.pending)

	var redirects []string
	ctx.On("Redirect", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		redirects = append(redirects, args.String(0))
	}).Return(nil)

	require.NoError(t, f.guard.Require(portal.RoleTeam)(noop)(ctx))

	assert.Equal(t, []string{"/"}, redirects)
	assert.False(t, ctx.NextCalled)
	assert.Equal(t, 1, f.metrics.decisions[portal.ReasonNotApproved])
}

func TestRouteGuardAllowsApprovedTeam(t *testing.T) {
	f := newGuardFixture()
	ctx := f.request(t, "/dashboard", f.team)

	require.NoError(t, f.guard.Require(portal.RoleTeam)(noop)(ctx))

	assert.True(t, ctx.NextCalled)
	assert.Equal(t, 1, f.metrics.decisions[portal.ReasonAllowed])
}

func TestRouteGuardOwnerOnTeamRoute(t *testing.T) {
	f := newGuardFixture()
	ctx := f.request(t, "/dashboard", f.owner)

	require.NoError(t, f.guard.Require(portal.RoleTeam)(noop)(ctx))
	assert.True(t, ctx.NextCalled)
}

func TestRouteGuardAvoidsRedirectLoop(t *testing.T) {
	f := newGuardFixture()
	// The home route is gated on the user role, owners are sent home.
	ctx := f.request(t, "/", f.owner)

	var status int
	ctx.On("JSON", router.StatusForbidden, mock.Anything).Run(func(args mock.Arguments) {
		status = args.Int(0)
	}).Return(nil)

	require.NoError(t, f.guard.Require(portal.RoleUser)(noop)(ctx))

	assert.Equal(t, http.StatusForbidden, status)
	assert.False(t, ctx.NextCalled)
	ctx.AssertNotCalled(t, "Redirect", mock.Anything, mock.Anything)
}

func TestRouteGuardSessionOnlyRequirement(t *testing.T) {
	f := newGuardFixture()

	ctx := f.request(t, "/me", f.pending)
	require.NoError(t, f.guard.Require(portal.RoleNone)(noop)(ctx))
	assert.True(t, ctx.NextCalled)

	ctx = f.request(t, "/me", nil)
	ctx.On("Redirect", "/login", mock.Anything).Return(nil)
	require.NoError(t, f.guard.Require(portal.RoleNone)(noop)(ctx))
	assert.False(t, ctx.NextCalled)
}

func TestRouteGuardTreatsForeignTokenAsAnonymous(t *testing.T) {
	f := newGuardFixture()
	other := portal.NewTokenService([]byte("some-other-secret"), 1, "go-portal", []string{"portal"}, nil)
	token, err := other.Generate(f.owner)
	require.NoError(t, err)

	ctx := &pathContext{MockContext: routertest.NewMockContext(), path: "/admin"}
	ctx.HeadersM["Authorization"] = "Bearer " + token
	ctx.On("Context").Return(context.Background()).Maybe()
	ctx.On("Method").Return("GET").Maybe()
	ctx.On("Redirect", "/login", mock.Anything).Return(nil)

	require.NoError(t, f.guard.Require(portal.RoleOwner)(noop)(ctx))
	assert.False(t, ctx.NextCalled)
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "unauthenticated", err: portal.ErrUnauthenticated, want: http.StatusUnauthorized},
		{name: "forbidden", err: portal.ErrForbidden, want: http.StatusForbidden},
		{name: "not found", err: portal.ErrNotFound, want: http.StatusNotFound},
		{name: "expired invite", err: portal.ErrInviteExpired, want: http.StatusGone},
		{name: "used invite", err: portal.ErrInviteAlreadyUsed, want: http.StatusConflict},
		{name: "email mismatch", err: portal.ErrInviteEmailMismatch, want: http.StatusBadRequest},
		{name: "invalid transition", err: portal.ErrInvalidTransition, want: http.StatusConflict},
		{name: "email taken", err: portal.ErrEmailTaken, want: http.StatusConflict},
		{name: "rate limited", err: portal.ErrRateLimited, want: http.StatusTooManyRequests},
		{name: "plain error", err: assert.AnError, want: http.StatusInternalServerError},
		{
			name: "store failure",
			err: goerrors.Wrap(assert.AnError, goerrors.CategoryInternal, "write failed").
				WithTextCode(portal.TextCodeTransientStoreFailure),
			want: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, portal.StatusForError(tt.err))
		})
	}
}
