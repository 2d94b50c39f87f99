package portal

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Put(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Delete(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// ControllerConfig configures the HTTP controller.
type ControllerConfig struct {
	// CookieName for storing the session token (default: Config.GetContextKey)
	CookieName string

	// CookieSecure sets the Secure flag on cookies
	CookieSecure bool

	// DefaultInviteTTL applies when an issue request carries no ttl.
	DefaultInviteTTL time.Duration
}

// Controller exposes the portal over JSON routes.
type Controller struct {
	Logger       Logger
	Repo         RepositoryManager
	Auther       *Authenticator
	Guard        *RouteGuard
	Redeem       *RedeemInviteHandler
	Issue        *IssueInviteHandler
	Transitions  RecordStateMachine
	Workflows    *Workflows
	Watermarks   *Watermarks
	ErrorHandler router.ErrorHandler

	config ControllerConfig
}

// ControllerOption customizes the controller.
type ControllerOption func(*Controller)

// WithControllerLogger sets the logger.
func WithControllerLogger(logger Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithControllerConfig sets cookie and invite defaults.
func WithControllerConfig(cfg ControllerConfig) ControllerOption {
	return func(c *Controller) {
		c.config = cfg
	}
}

// WithControllerErrorHandler overrides the JSON error responder.
func WithControllerErrorHandler(h router.ErrorHandler) ControllerOption {
	return func(c *Controller) {
		if h != nil {
			c.ErrorHandler = h
		}
	}
}

// NewController wires the controller. All collaborators are required.
func NewController(
	repo RepositoryManager,
	auther *Authenticator,
	guard *RouteGuard,
	redeem *RedeemInviteHandler,
	issue *IssueInviteHandler,
	transitions RecordStateMachine,
	workflows *Workflows,
	watermarks *Watermarks,
	opts ...ControllerOption,
) *Controller {
	c := &Controller{
		Logger:      defLogger(),
		Repo:        repo,
		Auther:      auther,
		Guard:       guard,
		Redeem:      redeem,
		Issue:       issue,
		Transitions: transitions,
		Workflows:   workflows,
		Watermarks:  watermarks,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	if c.ErrorHandler == nil {
		c.ErrorHandler = c.defaultErrHandler
	}
	if c.config.CookieName == "" {
		c.config.CookieName = "portal_session"
	}
	if c.config.DefaultInviteTTL <= 0 {
		c.config.DefaultInviteTTL = DefaultInviteTTL
	}

	if c.Repo == nil || c.Auther == nil || c.Guard == nil {
		panic("PORTAL: controller requires RepositoryManager, Authenticator and RouteGuard")
	}

	return c
}

// RegisterRoutes registers the portal routes.
func (c *Controller) RegisterRoutes(app RouteRegistrar) {
	session := c.Guard.Require(RoleNone)
	owner := c.Guard.Require(RoleOwner)
	team := c.Guard.Require(RoleTeam)
	public := c.Guard.Session()

	app.Post("/login", c.Login)
	app.Post("/logout", c.Logout)
	app.Post("/register", c.Register)

	app.Get("/me", c.Me, session)
	app.Put("/me", c.UpdateMe, team)

	app.Get("/team", c.ListTeam, owner)
	app.Post("/team/:id/approve", c.ApproveMember, owner)
	app.Post("/team/:id/role", c.ChangeRole, owner)

	app.Get("/invites", c.ListInvites, owner)
	app.Post("/invites", c.IssueInvite, owner)

	app.Post("/join-requests", c.SubmitJoinRequest, public)
	app.Post("/orders", c.SubmitOrder, public)
	app.Post("/applications", c.SubmitApplication, team)
	app.Post("/ideas", c.SubmitIdea, team)

	for _, kind := range []RecordKind{KindJoinRequest, KindOrder, KindApplication, KindIdea} {
		base := "/" + collectionPath(kind)
		app.Get(base, c.listRecords(kind), owner)
		app.Post(base+"/:id/approve", c.transition(kind, true), owner)
		app.Post(base+"/:id/reject", c.transition(kind, false), owner)
	}
	app.Post("/applications/:id/assign", c.AssignMember, owner)

	app.Get("/projects", c.ListProjects, team)
	app.Post("/projects", c.CreateProject, owner)
	app.Delete("/projects/:id", c.DeleteProject, owner)

	app.Get("/audit", c.ListAudit, owner)

	app.Get("/notifications/:feed", c.Unread, owner)
	app.Post("/notifications/:feed/viewed", c.MarkViewed, owner)

	app.Get("/content/:key", c.GetContent)
	app.Put("/content/:key", c.PutContent, owner)
}

func collectionPath(kind RecordKind) string {
	switch kind {
	case KindJoinRequest:
		return "join-requests"
	case KindOrder:
		return "orders"
	case KindApplication:
		return "applications"
	case KindIdea:
		return "ideas"
	default:
		return string(kind)
	}
}

type loginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

func (c *Controller) Login(ctx router.Context) error {
	payload := &loginRequest{}
	if err := ctx.Bind(payload); err != nil {
		return c.ErrorHandler(ctx, validationFailure(err, "invalid login payload"))
	}

	token, principal, err := c.Auther.Login(ctx.Context(), payload.Email, payload.Password)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	c.setSessionCookie(ctx, token, c.Auther.SessionTTL())
	return ctx.JSON(router.StatusOK, map[string]any{
		"principal": principal,
		"token":     token,
	})
}

func (c *Controller) Logout(ctx router.Context) error {
	c.setSessionCookie(ctx, "", -24*365*time.Hour)
	return ctx.JSON(router.StatusOK, map[string]string{
		"redirect": c.Guard.Guard().LoginRoute(),
	})
}

func (c *Controller) Register(ctx router.Context) error {
	payload := &RedeemInviteMessage{}
	if err := ctx.Bind(payload); err != nil {
		return c.ErrorHandler(ctx, validationFailure(err, "invalid registration payload"))
	}
	payload.ClientKey = clientKey(ctx)

	principal, err := c.Redeem.Execute(ctx.Context(), *payload)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	token, err := c.Auther.TokenService().Generate(principal)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	c.setSessionCookie(ctx, token, c.Auther.SessionTTL())
	return ctx.JSON(router.StatusCreated, map[string]any{
		"principal": principal,
	})
}

func (c *Controller) Me(ctx router.Context) error {
	principal, ok := PrincipalFromRouter(ctx)
	if !ok {
		return c.ErrorHandler(ctx, ErrUnauthenticated)
	}
	return ctx.JSON(router.StatusOK, map[string]any{
		"principal": principal,
	})
}

func (c *Controller) UpdateMe(ctx router.Context) error {
	principal, _ := PrincipalFromRouter(ctx)
	payload := &UpdateProfileMessage{}
	if err := ctx.Bind(payload); err != nil {
		return c.ErrorHandler(ctx, validationFailure(err, "invalid profile payload"))
	}

	updated, err := c.Workflows.UpdateProfile(ctx.Context(), principal, *payload)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return ctx.JSON(router.StatusOK, map[string]any{
		"principal": updated,
	})
}

func (c *Controller) ListTeam(ctx router.Context) error {
	filter := PrincipalFilter{Role: RoleTeam}
	if raw := ctx.Query("approved", ""); raw != "" {
		approved, err := strconv.ParseBool(raw)
		if err != nil {
			return c.ErrorHandler(ctx, validationFailure(err, "approved must be a boolean"))
		}
		filter.IsApproved = &approved
	}

	records, err := c.Repo.Principals().List(ctx.Context(), filter)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return ctx.JSON(router.StatusOK, map[string]any{
		"team": records,
	})
}

func (c *Controller) ApproveMember(ctx router.Context) error {
	actor, _ := PrincipalFromRouter(ctx)
	id, err := paramUUID(ctx, "id")
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	principal, err := c.Workflows.ApprovePrincipal(ctx.Context(), actor, id)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return ctx.JSON(router.StatusOK, map[string]any{
		"principal": principal,
	})
}

type changeRoleRequest struct {
	Role string `json:"role" form:"role"`
}

func (c *Controller) ChangeRole(ctx router.Context) error {
	actor, _ := PrincipalFromRouter(ctx)
	id, err := paramUUID(ctx, "id")
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	payload := &changeRoleRequest{}
	if err := ctx.Bind(payload); err != nil {
		return c.ErrorHandler(ctx, validationFailure(err, "invalid role payload"))
	}

	principal, err := c.Workflows.ChangeRole(ctx.Context(), actor, id, Role(strings.ToLower(strings.TrimSpace(payload.Role))))
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return ctx.JSON(router.StatusOK, map[string]any{
		"principal": principal,
	})
}

func (c *Controller) ListInvites(ctx router.Context) error {
	includeUsed := ctx.Query("include_used", "") == "true"
	codes, err := c.Repo.InviteCodes().List(ctx.Context(), includeUsed)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return ctx.JSON(router.StatusOK, map[string]any{
		"invites": codes,
	})
}

type issueInviteRequest struct {
	Email         string     `json:"email" form:"email"`
	TTLHours      int        `json:"ttl_hours" form:"ttl_hours"`
	JoinRequestID *uuid.UUID `json:"join_request_id,omitempty"`
}

func (c *Controller) IssueInvite(ctx router.Context) error {
	actor, _ := PrincipalFromRouter(ctx)
	payload := &issueInviteRequest{}
	if err := ctx.Bind(payload); err != nil {
		return c.ErrorHandler(ctx, validationFailure(err, "invalid invite payload"))
	}

	ttl := c.config.DefaultInviteTTL
	if payload.TTLHours > 0 {
		ttl = time.Duration(payload.TTLHours) * time.Hour
	}

	code, err := c.Issue.Execute(ctx.Context(), actor, IssueInviteMessage{
		Email:         payload.Email,
		TTL:           ttl,
		JoinRequestID: payload.JoinRequestID,
	})
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return ctx.JSON(router.StatusCreated, map[string]any{
		"invite": code,
	})
}

func (c *Controller) SubmitJoinRequest(ctx router.Context) error {
	payload := &JoinRequestMessage{}
	if err := ctx.Bind(payload); err != nil {
		return c.ErrorHandler(ctx, validationFailure(err, "invalid join request payload"))
	}
	record, err := c.Workflows.SubmitJoinRequest(ctx.Context(), *payload)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return ctx.JSON(router.StatusCreated, map[string]any{"join_request": record})
}

func (c *Controller) SubmitOrder(ctx router.Context) error {
	payload := &OrderMessage{}
	if err := ctx.Bind(payload); err != nil {
		return c.ErrorHandler(ctx, validationFailure(err, "invalid order payload"))
	}
	record, err := c.Workflows.SubmitOrder(ctx.Context(), *payload)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return ctx.JSON(router.StatusCreated, map[string]any{"order": record})
}

func (c *Controller) SubmitApplication(ctx router.Context) error {
	actor, _ := PrincipalFromRouter(ctx)
	payload := &ApplicationMessage{}
	if err := ctx.Bind(payload); err != nil {
		return c.ErrorHandler(ctx, validationFailure(err, "invalid application payload"))
	}
	record, err := c.Workflows.SubmitApplication(ctx.Context(), actor, *payload)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return ctx.JSON(router.StatusCreated, map[string]any{"application": record})
}

func (c *Controller) SubmitIdea(ctx router.Context) error {
	actor, _ := PrincipalFromRouter(ctx)
	payload := &IdeaMessage{}
	if err := ctx.Bind(payload); err != nil {
		return c.ErrorHandler(ctx, validationFailure(err, "invalid idea payload"))
	}
	record, err := c.Workflows.SubmitIdea(ctx.Context(), actor, *payload)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return ctx.JSON(router.StatusCreated, map[string]any{"idea": record})
}

func (c *Controller) listRecords(kind RecordKind) router.HandlerFunc {
	return func(ctx router.Context) error {
		status := RecordStatus(ctx.Query("status", ""))
		reviews := c.Repo.Reviews()

		var (
			records any
			err     error
		)
		switch kind {
		case KindJoinRequest:
			records, err = reviews.ListJoinRequests(ctx.Context(), status)
		case KindOrder:
			records, err = reviews.ListOrders(ctx.Context(), status)
		case KindApplication:
			records, err = reviews.ListApplications(ctx.Context(), status)
		case KindIdea:
			records, err = reviews.ListIdeas(ctx.Context(), status)
		}
		if err != nil {
			return c.ErrorHandler(ctx, err)
		}
		return ctx.JSON(router.StatusOK, map[string]any{
			"kind":    kind,
			"records": records,
		})
	}
}

type transitionRequest struct {
	Reason string `json:"reason" form:"reason"`
}

func (c *Controller) transition(kind RecordKind, approve bool) router.HandlerFunc {
	return func(ctx router.Context) error {
		actor, _ := PrincipalFromRouter(ctx)
		id, err := paramUUID(ctx, "id")
		if err != nil {
			return c.ErrorHandler(ctx, err)
		}

		payload := &transitionRequest{}
		if len(ctx.Body()) > 0 {
			if err := ctx.Bind(payload); err != nil {
				return c.ErrorHandler(ctx, validationFailure(err, "invalid transition payload"))
			}
		}

		target := StatusRejected
		if approve {
			target = kind.ApprovedStatus()
		}

		result, err := c.Transitions.Transition(ctx.Context(), actor, RecordRef{Kind: kind, ID: id}, target,
			WithTransitionReason(payload.Reason),
		)
		if err != nil {
			return c.ErrorHandler(ctx, err)
		}
		return ctx.JSON(router.StatusOK, map[string]any{
			"transition": map[string]any{
				"record":      result.Record.String(),
				"from":        result.From,
				"to":          result.To,
				"reviewed_at": result.ReviewedAt,
			},
		})
	}
}

func (c *Controller) AssignMember(ctx router.Context) error {
	actor, _ := PrincipalFromRouter(ctx)
	id, err := paramUUID(ctx, "id")
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	project, err := c.Workflows.AssignMember(ctx.Context(), actor, id)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return ctx.JSON(router.StatusOK, map[string]any{"project": project})
}

func (c *Controller) ListProjects(ctx router.Context) error {
	projects, err := c.Workflows.ListProjects(ctx.Context())
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return ctx.JSON(router.StatusOK, map[string]any{"projects": projects})
}

func (c *Controller) CreateProject(ctx router.Context) error {
	actor, _ := PrincipalFromRouter(ctx)
	payload := &CreateProjectMessage{}
	if err := ctx.Bind(payload); err != nil {
		return c.ErrorHandler(ctx, validationFailure(err, "invalid project payload"))
	}
	project, err := c.Workflows.CreateProject(ctx.Context(), actor, *payload)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return ctx.JSON(router.StatusCreated, map[string]any{"project": project})
}

func (c *Controller) DeleteProject(ctx router.Context) error {
	actor, _ := PrincipalFromRouter(ctx)
	id, err := paramUUID(ctx, "id")
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	if err := c.Workflows.DeleteProject(ctx.Context(), actor, id); err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return ctx.JSON(router.StatusOK, map[string]any{"deleted": id})
}

func (c *Controller) ListAudit(ctx router.Context) error {
	filter := AuditFilter{
		Action:      AuditAction(ctx.Query("action", "")),
		PerformedBy: ctx.Query("performed_by", ""),
		TargetID:    ctx.Query("target_id", ""),
	}
	if raw := ctx.Query("limit", ""); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return c.ErrorHandler(ctx, newError(ErrInvalidLimit, map[string]any{"limit": raw}))
		}
		filter.Limit = limit
	}

	entries, err := c.Repo.AuditLogs().List(ctx.Context(), filter)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return ctx.JSON(router.StatusOK, map[string]any{"entries": entries})
}

func (c *Controller) Unread(ctx router.Context) error {
	actor, _ := PrincipalFromRouter(ctx)
	feed := ctx.Param("feed")
	count, err := c.Watermarks.UnreadForFeed(ctx.Context(), actor.ID, feed)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return ctx.JSON(router.StatusOK, map[string]any{
		"feed":   feed,
		"unread": count,
	})
}

func (c *Controller) MarkViewed(ctx router.Context) error {
	actor, _ := PrincipalFromRouter(ctx)
	feed := ctx.Param("feed")
	c.Watermarks.MarkViewed(ctx.Context(), actor.ID, feed)
	return ctx.JSON(router.StatusOK, map[string]any{"feed": feed})
}

func (c *Controller) GetContent(ctx router.Context) error {
	content, err := c.Workflows.Content(ctx.Context(), ctx.Param("key"))
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return ctx.JSON(router.StatusOK, map[string]any{"content": content})
}

type contentRequest struct {
	Body string `json:"body" form:"body"`
}

func (c *Controller) PutContent(ctx router.Context) error {
	actor, _ := PrincipalFromRouter(ctx)
	payload := &contentRequest{}
	if err := ctx.Bind(payload); err != nil {
		return c.ErrorHandler(ctx, validationFailure(err, "invalid content payload"))
	}
	content, err := c.Workflows.SetContent(ctx.Context(), actor, ctx.Param("key"), payload.Body)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return ctx.JSON(router.StatusOK, map[string]any{"content": content})
}

func (c *Controller) setSessionCookie(ctx router.Context, token string, duration time.Duration) {
	ctx.Cookie(&router.Cookie{
		Name:     c.config.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(duration),
		HTTPOnly: true,
		Secure:   c.config.CookieSecure,
		SameSite: "Lax",
	})
}

// ErrInvalidLimit is returned for a malformed list limit.
var ErrInvalidLimit = goerrors.New("limit must be a non negative integer", goerrors.CategoryBadInput).
	WithTextCode(TextCodeValidationFailed).
	WithCode(goerrors.CodeBadRequest)

// clientKey identifies the caller for attempt limiting. Redemption falls
// back to the email when no proxy header is present.
func clientKey(ctx router.Context) string {
	if fwd := ctx.Header("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	return strings.TrimSpace(ctx.Header("X-Real-IP"))
}

func paramUUID(ctx router.Context, name string) (uuid.UUID, error) {
	raw := ctx.Param(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, newError(ErrNotFound, map[string]any{name: raw})
	}
	return id, nil
}

var statusByTextCode = map[string]int{
	TextCodeUnauthenticated:       http.StatusUnauthorized,
	TextCodeInvalidCredentials:    http.StatusUnauthorized,
	TextCodeForbidden:             http.StatusForbidden,
	TextCodeNotFound:              http.StatusNotFound,
	TextCodeInviteExpired:         http.StatusGone,
	TextCodeInviteAlreadyUsed:     http.StatusConflict,
	TextCodeInviteEmailMismatch:   http.StatusBadRequest,
	TextCodeInvalidTransition:     http.StatusConflict,
	TextCodeValidationFailed:      http.StatusBadRequest,
	TextCodeRateLimited:           http.StatusTooManyRequests,
	TextCodeTransientStoreFailure: http.StatusServiceUnavailable,
}

// StatusForError maps an error to the HTTP status it is answered with.
func StatusForError(err error) int {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return http.StatusInternalServerError
	}
	if richErr.TextCode == TextCodeValidationFailed && richErr.Code == goerrors.CodeConflict {
		return http.StatusConflict
	}
	if status, ok := statusByTextCode[richErr.TextCode]; ok {
		return status
	}
	if richErr.Code >= 400 && richErr.Code < 600 {
		return richErr.Code
	}
	return http.StatusInternalServerError
}

func (c *Controller) defaultErrHandler(ctx router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	status := StatusForError(richErr)
	c.Logger.Info(
		"portal request error",
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"status", status,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	if IsRedirectable(richErr) && ctx.Method() == string(router.GET) {
		target := c.Guard.Guard().HomeRoute()
		if HasTextCode(richErr, TextCodeUnauthenticated) {
			target = c.Guard.Guard().LoginRoute()
		}
		if !samePath(ctx.Path(), target) {
			return ctx.Redirect(target, http.StatusFound)
		}
	}

	body := map[string]any{
		"error": richErr.Message,
		"code":  richErr.TextCode,
	}
	if IsUserFacing(richErr) && len(richErr.Metadata) > 0 {
		body["details"] = richErr.Metadata
	}
	if status >= http.StatusInternalServerError {
		body["error"] = "the request could not be completed, try again"
	}
	return ctx.JSON(status, body)
}
