package portal_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/goliatone/go-portal"
)

func TestGuardAuthorizeTable(t *testing.T) {
	owner := &portal.Principal{ID: uuid.New(), Role: portal.RoleOwner, IsApproved: true}
	team := &portal.Principal{ID: uuid.New(), Role: portal.RoleTeam, IsApproved: true}
	pending := &portal.Principal{ID: uuid.New(), Role: portal.RoleTeam}
	user := &portal.Principal{ID: uuid.New(), Role: portal.RoleUser}
	odd := &portal.Principal{ID: uuid.New(), Role: portal.Role("Owner ")}

	tests := []struct {
		name      string
		principal *portal.Principal
		required  portal.Role
		allowed   bool
		redirect  string
		reason    string
	}{
		{name: "anonymous on owner route", principal: nil, required: portal.RoleOwner, redirect: "/login", reason: portal.ReasonNoPrincipal},
		{name: "anonymous on session route", principal: nil, required: portal.RoleNone, redirect: "/login", reason: portal.ReasonNoPrincipal},
		{name: "owner on owner route", principal: owner, required: portal.RoleOwner, allowed: true, reason: portal.ReasonAllowed},
		{name: "owner on team route", principal: owner, required: portal.RoleTeam, allowed: true, reason: portal.ReasonAllowed},
		{name: "owner on user route", principal: owner, required: portal.RoleUser, redirect: "/", reason: portal.ReasonRoleMismatch},
		{name: "team on team route", principal: team, required: portal.RoleTeam, allowed: true, reason: portal.ReasonAllowed},
		{name: "team on owner route", principal: team, required: portal.RoleOwner, redirect: "/", reason: portal.ReasonRoleMismatch},
		{name: "unapproved team", principal: pending, required: portal.RoleTeam, redirect: "/", reason: portal.ReasonNotApproved},
		{name: "unapproved team needs only a session", principal: pending, required: portal.RoleNone, allowed: true, reason: portal.ReasonNoRequirement},
		{name: "user on user route", principal: user, required: portal.RoleUser, allowed: true, reason: portal.ReasonAllowed},
		{name: "user on team route", principal: user, required: portal.RoleTeam, redirect: "/", reason: portal.ReasonRoleMismatch},
		{name: "role is normalized", principal: odd, required: portal.RoleOwner, allowed: true, reason: portal.ReasonAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := portal.Authorize(tt.principal, tt.required)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.redirect, d.Redirect)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestGuardCustomRoutes(t *testing.T) {
	g := portal.NewGuard(portal.WithGuardRoutes("/signin", "/dashboard"))

	assert.Equal(t, "/signin", g.Authorize(nil, portal.RoleTeam).Redirect)
	assert.Equal(t, "/dashboard", g.Authorize(&portal.Principal{Role: portal.RoleUser}, portal.RoleTeam).Redirect)
	assert.Equal(t, "/signin", g.LoginRoute())
	assert.Equal(t, "/dashboard", g.HomeRoute())
}

func TestParseRole(t *testing.T) {
	assert.Equal(t, portal.RoleOwner, portal.ParseRole(" OWNER "))
	assert.Equal(t, portal.RoleTeam, portal.ParseRole("team"))
	assert.Equal(t, portal.RoleUser, portal.ParseRole("admin"))
	assert.Equal(t, portal.RoleUser, portal.ParseRole(""))
}
