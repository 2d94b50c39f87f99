package portal

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// InviteCodes stores registration invite codes.
type InviteCodes interface {
	GetByCode(ctx context.Context, code string) (*InviteCode, error)
	GetByCodeTx(ctx context.Context, tx bun.IDB, code string) (*InviteCode, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *InviteCode) (*InviteCode, error)
	// MarkUsedTx consumes code only if it is still unused. It reports
	// whether this call consumed it.
	MarkUsedTx(ctx context.Context, tx bun.IDB, code string, usedBy uuid.UUID, at time.Time) (bool, error)
	List(ctx context.Context, includeUsed bool) ([]*InviteCode, error)
}

type inviteCodes struct {
	repo repository.Repository[*InviteCode]
	db   *bun.DB
}

func NewInviteCodesRepository(db *bun.DB) InviteCodes {
	return &inviteCodes{
		repo: repository.NewRepository[*InviteCode](db, modelHandlers(
			func() *InviteCode { return &InviteCode{} },
			func(c *InviteCode) uuid.UUID {
				if c == nil {
					return uuid.Nil
				}
				return c.ID
			},
			func(c *InviteCode, id uuid.UUID) {
				if c != nil {
					c.ID = id
				}
			},
			"code",
		)),
		db: db,
	}
}

func (r *inviteCodes) GetByCode(ctx context.Context, code string) (*InviteCode, error) {
	return r.GetByCodeTx(ctx, r.db, code)
}

func (r *inviteCodes) GetByCodeTx(ctx context.Context, tx bun.IDB, code string) (*InviteCode, error) {
	record := &InviteCode{}
	err := tx.NewSelect().Model(record).
		Where("?TableAlias.code = ?", NormalizeInviteCode(code)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, map[string]any{"code": code}, "failed to load invite code")
	}
	return record, nil
}

func (r *inviteCodes) CreateTx(ctx context.Context, tx bun.IDB, record *InviteCode) (*InviteCode, error) {
	record.Code = NormalizeInviteCode(record.Code)
	if record.ID == uuid.Nil {
		record.ID = InviteCodeID(record.Code)
	}
	created, err := r.repo.CreateTx(ctx, tx, record)
	if err != nil {
		return nil, storeFailure(err, "failed to create invite code")
	}
	return created, nil
}

func (r *inviteCodes) MarkUsedTx(ctx context.Context, tx bun.IDB, code string, usedBy uuid.UUID, at time.Time) (bool, error) {
	res, err := tx.NewUpdate().Model((*InviteCode)(nil)).
		Set("is_used = ?", true).
		Set("used_by = ?", usedBy).
		Set("used_at = ?", at).
		Where("code = ?", NormalizeInviteCode(code)).
		Where("is_used = ?", false).
		Exec(ctx)
	if err != nil {
		return false, storeFailure(err, "failed to consume invite code")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeFailure(err, "failed to consume invite code")
	}
	return n == 1, nil
}

func (r *inviteCodes) List(ctx context.Context, includeUsed bool) ([]*InviteCode, error) {
	records := []*InviteCode{}
	q := r.db.NewSelect().Model(&records).OrderExpr("?TableAlias.created_at DESC")
	if !includeUsed {
		q = q.Where("?TableAlias.is_used = ?", false)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, storeFailure(err, "failed to list invite codes")
	}
	return records, nil
}

// NormalizeInviteCode upper-cases and trims a user supplied code.
func NormalizeInviteCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
