package portal

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RedeemInviteMessage registers a team member with an invite code.
type RedeemInviteMessage struct {
	Code        string `json:"code"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	// ClientKey identifies the caller for attempt limiting, usually the remote IP.
	ClientKey string `json:"-"`
}

func (e RedeemInviteMessage) Type() string { return "invite.redeem" }

// Validate checks the payload shape. Code is expected to be normalized.
func (e RedeemInviteMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Code, validation.Required),
		validation.Field(&e.Email, validation.Required, validation.Length(3, 254), is.EmailFormat),
		validation.Field(&e.Password, validation.Required, validation.Length(8, 72)),
		validation.Field(&e.DisplayName, validation.Length(0, 120)),
	)
}

// RedeemInviteHandler validates and consumes single use invite codes.
type RedeemInviteHandler struct {
	repo    RepositoryManager
	hasher  PasswordAuthenticator
	audit   *AuditRecorder
	limiter *AttemptLimiter
	metrics Metrics
	logger  Logger
	now     func() time.Time
	timeout time.Duration
}

// RedeemInviteOption customizes the handler.
type RedeemInviteOption func(*RedeemInviteHandler)

// WithRedeemAuditRecorder sets the recorder for redemption entries.
func WithRedeemAuditRecorder(audit *AuditRecorder) RedeemInviteOption {
	return func(h *RedeemInviteHandler) {
		if audit != nil {
			h.audit = audit
		}
	}
}

// WithRedeemLimiter enables attempt limiting per client key.
func WithRedeemLimiter(limiter *AttemptLimiter) RedeemInviteOption {
	return func(h *RedeemInviteHandler) {
		h.limiter = limiter
	}
}

// WithRedeemPasswordHasher overrides the password hasher.
func WithRedeemPasswordHasher(hasher PasswordAuthenticator) RedeemInviteOption {
	return func(h *RedeemInviteHandler) {
		if hasher != nil {
			h.hasher = hasher
		}
	}
}

// WithRedeemMetrics sets the metrics collector.
func WithRedeemMetrics(m Metrics) RedeemInviteOption {
	return func(h *RedeemInviteHandler) {
		h.metrics = normalizeMetrics(m)
	}
}

// WithRedeemLogger overrides the logger.
func WithRedeemLogger(logger Logger) RedeemInviteOption {
	return func(h *RedeemInviteHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithRedeemClock injects a custom clock.
func WithRedeemClock(clock func() time.Time) RedeemInviteOption {
	return func(h *RedeemInviteHandler) {
		if clock != nil {
			h.now = clock
		}
	}
}

func NewRedeemInviteHandler(repo RepositoryManager, opts ...RedeemInviteOption) *RedeemInviteHandler {
	h := &RedeemInviteHandler{
		repo:    repo,
		hasher:  BcryptHasher{},
		audit:   NewAuditRecorder(nil),
		metrics: noopMetrics{},
		logger:  defLogger(),
		now:     time.Now,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Execute redeems the code and returns the new team principal.
func (h *RedeemInviteHandler) Execute(ctx context.Context, msg RedeemInviteMessage) (*Principal, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during invite redemption",
		)
	default:
	}

	principal, err := h.execute(ctx, msg)
	h.metrics.InviteRedemption(redemptionResult(err))
	return principal, err
}

func (h *RedeemInviteHandler) execute(ctx context.Context, msg RedeemInviteMessage) (*Principal, error) {
	msg.Code = NormalizeInviteCode(msg.Code)
	msg.Email = normalizeEmail(msg.Email)
	msg.DisplayName = strings.TrimSpace(msg.DisplayName)

	if err := msg.Validate(); err != nil {
		return nil, validationFailure(err, "invalid invite redemption payload")
	}

	key := msg.ClientKey
	if key == "" {
		key = msg.Email
	}
	if !h.limiter.Allow(key) {
		h.logger.Warn("invite redemption rate limited", "client", key)
		return nil, newError(ErrRateLimited, map[string]any{"client": key})
	}

	hash, err := h.hasher.HashPassword(msg.Password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	now := h.now().UTC()
	var principal *Principal
	var invite *InviteCode

	txCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	err = h.repo.RunInTx(txCtx, nil, func(ctx context.Context, tx bun.Tx) error {
		code, err := h.repo.InviteCodes().GetByCodeTx(ctx, tx, msg.Code)
		if err != nil {
			return err
		}

		if err := CheckRedeemable(code, msg.Email, now); err != nil {
			return err
		}

		if _, err := h.repo.Principals().GetByEmailTx(ctx, tx, msg.Email); err == nil {
			return newError(ErrEmailTaken, map[string]any{"email": msg.Email})
		} else if !HasTextCode(err, TextCodeNotFound) {
			return err
		}

		approved, err := h.linkedRequestApproved(ctx, tx, code)
		if err != nil {
			return err
		}

		id := uuid.New()

		consumed, err := h.repo.InviteCodes().MarkUsedTx(ctx, tx, code.Code, id, now)
		if err != nil {
			return err
		}
		if !consumed {
			return newError(ErrInviteAlreadyUsed, map[string]any{"code": code.Code})
		}

		if _, err := h.repo.Credentials().CreateTx(ctx, tx, &Credential{
			ID:           id,
			Email:        msg.Email,
			PasswordHash: hash,
		}); err != nil {
			return err
		}

		principal, err = h.repo.Principals().CreateTx(ctx, tx, &Principal{
			ID:             id,
			Email:          msg.Email,
			DisplayName:    displayNameOrDefault(msg.DisplayName, msg.Email),
			Role:           RoleTeam,
			IsApproved:     approved,
			InviteCodeUsed: code.Code,
			CreatedAt:      &now,
			UpdatedAt:      &now,
		})
		if err != nil {
			return err
		}

		invite = code
		return nil
	})

	if err != nil {
		return nil, storeFailure(err, "invite redemption transaction failed")
	}

	h.audit.Record(ctx, AuditInviteRedeemed, principal.ActorRef(), map[string]any{
		"code":        invite.Code,
		"email":       principal.Email,
		"is_approved": principal.IsApproved,
	}, WithAuditTarget(invite.ID.String(), "invite_code"))

	return principal, nil
}

func (h *RedeemInviteHandler) linkedRequestApproved(ctx context.Context, tx bun.IDB, code *InviteCode) (bool, error) {
	if code.JoinRequestID == nil {
		return false, nil
	}
	req, err := h.repo.Reviews().GetJoinRequestTx(ctx, tx, *code.JoinRequestID)
	if err != nil {
		if HasTextCode(err, TextCodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return req.Status == StatusApproved, nil
}

func displayNameOrDefault(name, email string) string {
	if name != "" {
		return name
	}
	if i := strings.Index(email, "@"); i > 0 {
		return email[:i]
	}
	return email
}

func redemptionResult(err error) string {
	if err == nil {
		return ResultSuccess
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode != "" {
		return strings.ToLower(richErr.TextCode)
	}
	return ResultFailure
}
