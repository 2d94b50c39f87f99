package portal

// Decision is the outcome of an authorization check. When Allowed is false
// Redirect holds the path the caller should be sent to.
type Decision struct {
	Allowed  bool
	Redirect string
	Reason   string
}

const (
	ReasonNoPrincipal   = "no_principal"
	ReasonNotApproved   = "not_approved"
	ReasonRoleMismatch  = "role_mismatch"
	ReasonAllowed       = "allowed"
	ReasonNoRequirement = "no_requirement"
)

const (
	defaultLoginRoute = "/login"
	defaultHomeRoute  = "/"
)

// permissions[held][required] reports whether a principal holding a role may
// access a resource gated on the required role.
var permissions = map[Role]map[Role]bool{
	RoleOwner: {
		RoleOwner: true,
		RoleTeam:  true,
	},
	RoleTeam: {
		RoleTeam: true,
	},
	RoleUser: {
		RoleUser: true,
	},
}

// Guard evaluates the role table against a principal.
type Guard struct {
	loginRoute string
	homeRoute  string
}

// GuardOption customizes the guard.
type GuardOption func(*Guard)

// WithGuardRoutes overrides the redirect targets.
func WithGuardRoutes(login, home string) GuardOption {
	return func(g *Guard) {
		if login != "" {
			g.loginRoute = login
		}
		if home != "" {
			g.homeRoute = home
		}
	}
}

// NewGuard creates a guard. Redirect routes default to /login and /.
func NewGuard(opts ...GuardOption) *Guard {
	g := &Guard{
		loginRoute: defaultLoginRoute,
		homeRoute:  defaultHomeRoute,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// NewGuardFromConfig reads the redirect routes from cfg.
func NewGuardFromConfig(cfg Config) *Guard {
	if cfg == nil {
		return NewGuard()
	}
	return NewGuard(WithGuardRoutes(cfg.GetLoginRoute(), cfg.GetHomeRoute()))
}

// Authorize decides whether principal may access a resource gated on required.
// It is a pure function of its inputs.
func (g *Guard) Authorize(principal *Principal, required Role) Decision {
	if principal == nil {
		return Decision{Redirect: g.loginRoute, Reason: ReasonNoPrincipal}
	}

	if required == RoleNone {
		return Decision{Allowed: true, Reason: ReasonNoRequirement}
	}

	held := ParseRole(string(principal.Role))
	if !permissions[held][required] {
		return Decision{Redirect: g.homeRoute, Reason: ReasonRoleMismatch}
	}

	if held == RoleTeam && !principal.IsApproved {
		return Decision{Redirect: g.homeRoute, Reason: ReasonNotApproved}
	}

	return Decision{Allowed: true, Reason: ReasonAllowed}
}

// LoginRoute returns the configured login route.
func (g *Guard) LoginRoute() string {
	return g.loginRoute
}

// HomeRoute returns the configured home route.
func (g *Guard) HomeRoute() string {
	return g.homeRoute
}

// Authorize runs the default guard.
func Authorize(principal *Principal, required Role) Decision {
	return defaultGuard.Authorize(principal, required)
}

var defaultGuard = NewGuard()
