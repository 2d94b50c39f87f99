package portal

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// IssueInviteMessage creates a new invite code.
type IssueInviteMessage struct {
	// Email binds the code to one address. Empty or "*" allows any email.
	Email         string        `json:"email"`
	TTL           time.Duration `json:"ttl"`
	JoinRequestID *uuid.UUID    `json:"join_request_id,omitempty"`
	// Code is optional, a random code is generated when empty.
	Code string `json:"code,omitempty"`
}

func (e IssueInviteMessage) Type() string { return "invite.issue" }

func (e IssueInviteMessage) Validate() error {
	if e.Email == InviteWildcardEmail {
		e.Email = ""
	}
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, is.EmailFormat),
		validation.Field(&e.Code, validation.Match(inviteCodePattern)),
		validation.Field(&e.TTL, validation.Min(time.Duration(0))),
	)
}

// IssueInviteHandler lets owners create invite codes.
type IssueInviteHandler struct {
	repo    RepositoryManager
	audit   *AuditRecorder
	now     func() time.Time
	timeout time.Duration
}

func NewIssueInviteHandler(repo RepositoryManager, audit *AuditRecorder) *IssueInviteHandler {
	if audit == nil {
		audit = NewAuditRecorder(nil)
	}
	return &IssueInviteHandler{
		repo:    repo,
		audit:   audit,
		now:     time.Now,
		timeout: 10 * time.Second,
	}
}

// WithClock injects a custom clock.
func (h *IssueInviteHandler) WithClock(clock func() time.Time) *IssueInviteHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

// Execute issues a code on behalf of an owner.
func (h *IssueInviteHandler) Execute(ctx context.Context, actor *Principal, msg IssueInviteMessage) (*InviteCode, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	if !actor.IsOwner() {
		return nil, newError(ErrForbidden, map[string]any{"actor": actor.ID.String()})
	}

	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during invite issue")
	default:
		return h.execute(ctx, actor.ActorRef(), &actor.ID, msg)
	}
}

// ExecuteAsSystem issues a code from an operational tool.
func (h *IssueInviteHandler) ExecuteAsSystem(ctx context.Context, msg IssueInviteMessage) (*InviteCode, error) {
	return h.execute(ctx, ActorRef{Type: ActorTypeSystem}, nil, msg)
}

func (h *IssueInviteHandler) execute(ctx context.Context, actor ActorRef, createdBy *uuid.UUID, msg IssueInviteMessage) (*InviteCode, error) {
	msg.Email = normalizeEmail(msg.Email)
	msg.Code = NormalizeInviteCode(msg.Code)

	if err := msg.Validate(); err != nil {
		return nil, validationFailure(err, "invalid invite payload")
	}

	code := msg.Code
	if code == "" {
		generated, err := GenerateInviteCode()
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate invite code")
		}
		code = generated
	}

	ttl := msg.TTL
	if ttl == 0 {
		ttl = DefaultInviteTTL
	}

	now := h.now().UTC()
	record := &InviteCode{
		Code:          code,
		Email:         msg.Email,
		JoinRequestID: msg.JoinRequestID,
		ExpiresAt:     now.Add(ttl),
		CreatedBy:     createdBy,
		CreatedAt:     &now,
	}

	txCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	err := h.repo.RunInTx(txCtx, nil, func(ctx context.Context, tx bun.Tx) error {
		if msg.JoinRequestID != nil {
			if _, err := h.repo.Reviews().GetJoinRequestTx(ctx, tx, *msg.JoinRequestID); err != nil {
				return err
			}
		}
		created, err := h.repo.InviteCodes().CreateTx(ctx, tx, record)
		if err != nil {
			return err
		}
		record = created
		return nil
	})
	if err != nil {
		return nil, storeFailure(err, "invite issue transaction failed")
	}

	details := map[string]any{
		"code":       record.Code,
		"expires_at": record.ExpiresAt,
	}
	if record.Email != "" {
		details["email"] = record.Email
	}
	if record.JoinRequestID != nil {
		details["join_request_id"] = record.JoinRequestID.String()
	}
	h.audit.Record(ctx, AuditInviteCreated, actor, details, WithAuditTarget(record.ID.String(), "invite_code"))

	return record, nil
}
