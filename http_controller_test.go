package portal_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-portal"
	"github.com/goliatone/go-portal/internal/routertest"
)

type recordingRegistrar struct {
	routes map[string]int
}

func (r *recordingRegistrar) add(method, path string, mw []router.MiddlewareFunc) router.RouteInfo {
	if r.routes == nil {
		r.routes = map[string]int{}
	}
	r.routes[method+" "+path] = len(mw)
	return nil
}

func (r *recordingRegistrar) Get(path string, _ router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo {
	return r.add("GET", path, mw)
}

func (r *recordingRegistrar) Post(path string, _ router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo {
	return r.add("POST", path, mw)
}

func (r *recordingRegistrar) Put(path string, _ router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo {
	return r.add("PUT", path, mw)
}

func (r *recordingRegistrar) Delete(path string, _ router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo {
	return r.add("DELETE", path, mw)
}

func newTestController(t *testing.T) *portal.Controller {
	t.Helper()

	repo := newTestRepo(t)
	audit := newTestAudit(repo)
	tokens := newTestTokens()
	provider := portal.NewCredentialIdentityProvider(repo.Credentials(), fastHasher, nil)
	auther := portal.NewAuthenticator(provider, repo.Principals(), tokens)
	guard := portal.NewRouteGuard(nil, tokens, auther.Resolver())

	return portal.NewController(
		repo,
		auther,
		guard,
		portal.NewRedeemInviteHandler(repo, portal.WithRedeemPasswordHasher(fastHasher)),
		portal.NewIssueInviteHandler(repo, audit),
		portal.NewRecordStateMachine(repo, portal.WithStateMachineAuditRecorder(audit)),
		portal.NewWorkflows(repo, audit),
		portal.NewWatermarks(repo),
	)
}

func TestControllerRegistersRoutes(t *testing.T) {
	c := newTestController(t)
	reg := &recordingRegistrar{}
	c.RegisterRoutes(reg)

	public := []string{"POST /login", "POST /logout", "POST /register", "GET /content/:key"}
	for _, route := range public {
		mw, ok := reg.routes[route]
		require.True(t, ok, route)
		assert.Zero(t, mw, route)
	}

	guarded := []string{
		"GET /me",
		"GET /team",
		"POST /invites",
		"GET /orders",
		"POST /orders/:id/approve",
		"POST /ideas/:id/reject",
		"POST /applications/:id/assign",
		"DELETE /projects/:id",
		"GET /notifications/:feed",
		"PUT /content/:key",
	}
	for _, route := range guarded {
		mw, ok := reg.routes[route]
		require.True(t, ok, route)
		assert.Equal(t, 1, mw, route)
	}
}

func TestControllerMeReturnsPrincipal(t *testing.T) {
	c := newTestController(t)
	principal := &portal.Principal{Email: "member@example.com", Role: portal.RoleTeam, IsApproved: true}

	ctx := &pathContext{MockContext: routertest.NewMockContext(), path: "/me"}
	ctx.On("Context").Return(portal.WithPrincipal(context.Background(), principal))

	var body map[string]any
	ctx.On("JSON", router.StatusOK, mock.Anything).Run(func(args mock.Arguments) {
		body = args.Get(1).(map[string]any)
	}).Return(nil)

	require.NoError(t, c.Me(ctx))
	assert.Same(t, principal, body["principal"])
}

func TestControllerErrorsAsJSON(t *testing.T) {
	c := newTestController(t)

	ctx := &pathContext{MockContext: routertest.NewMockContext(), path: "/me"}
	ctx.On("Context").Return(context.Background())
	ctx.On("Method").Return("POST").Maybe()

	var status int
	var body map[string]any
	ctx.On("JSON", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		status = args.Int(0)
		body = args.Get(1).(map[string]any)
	}).Return(nil)

	require.NoError(t, c.Me(ctx))
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, portal.TextCodeUnauthenticated, body["code"])
	ctx.AssertNotCalled(t, "Redirect", mock.Anything, mock.Anything)
}

func TestControllerRedirectsPageRequests(t *testing.T) {
	c := newTestController(t)

	ctx := &pathContext{MockContext: routertest.NewMockContext(), path: "/me"}
	ctx.On("Context").Return(context.Background())
	ctx.On("Method").Return("GET")
	ctx.On("Redirect", "/login", mock.Anything).Return(nil)

	require.NoError(t, c.Me(ctx))
	ctx.AssertCalled(t, "Redirect", "/login", mock.Anything)
}
