package portal

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Principals stores team profiles.
type Principals interface {
	PrincipalLookup
	GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Principal, error)
	GetByEmail(ctx context.Context, email string) (*Principal, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Principal, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Principal) (*Principal, error)
	List(ctx context.Context, filter PrincipalFilter) ([]*Principal, error)
	UpdateProfileTx(ctx context.Context, tx bun.IDB, record *Principal) error
	SetApprovedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, approved bool) error
	SetRoleTx(ctx context.Context, tx bun.IDB, id uuid.UUID, role Role) error
	DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

// PrincipalFilter narrows principal listings.
type PrincipalFilter struct {
	Role       Role
	IsApproved *bool
}

type principals struct {
	repo repository.Repository[*Principal]
	db   *bun.DB
	now  func() time.Time
}

var _ Principals = (*principals)(nil)

func NewPrincipalsRepository(db *bun.DB) Principals {
	return &principals{
		repo: repository.NewRepository[*Principal](db, modelHandlers(
			func() *Principal { return &Principal{} },
			func(p *Principal) uuid.UUID {
				if p == nil {
					return uuid.Nil
				}
				return p.ID
			},
			func(p *Principal, id uuid.UUID) {
				if p != nil {
					p.ID = id
				}
			},
			"email",
		)),
		db:  db,
		now: time.Now,
	}
}

func (p *principals) GetByID(ctx context.Context, id uuid.UUID) (*Principal, error) {
	return p.GetByIDTx(ctx, p.db, id)
}

func (p *principals) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Principal, error) {
	record := &Principal{}
	err := tx.NewSelect().Model(record).Where("?TableAlias.id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, map[string]any{"id": id.String()}, "failed to load principal")
	}
	return record, nil
}

func (p *principals) GetByEmail(ctx context.Context, email string) (*Principal, error) {
	return p.GetByEmailTx(ctx, p.db, email)
}

func (p *principals) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Principal, error) {
	record := &Principal{}
	err := tx.NewSelect().Model(record).
		Where("?TableAlias.email = ?", normalizeEmail(email)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, map[string]any{"email": email}, "failed to load principal")
	}
	return record, nil
}

func (p *principals) CreateTx(ctx context.Context, tx bun.IDB, record *Principal) (*Principal, error) {
	preparePrincipalDefaults(record)
	created, err := p.repo.CreateTx(ctx, tx, record)
	if err != nil {
		return nil, storeFailure(err, "failed to create principal")
	}
	return created, nil
}

func (p *principals) List(ctx context.Context, filter PrincipalFilter) ([]*Principal, error) {
	records := []*Principal{}
	q := p.db.NewSelect().Model(&records).OrderExpr("?TableAlias.created_at ASC")
	if filter.Role != RoleNone {
		q = q.Where("?TableAlias.role = ?", filter.Role)
	}
	if filter.IsApproved != nil {
		q = q.Where("?TableAlias.is_approved = ?", *filter.IsApproved)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, storeFailure(err, "failed to list principals")
	}
	return records, nil
}

func (p *principals) UpdateProfileTx(ctx context.Context, tx bun.IDB, record *Principal) error {
	now := p.now().UTC()
	record.UpdatedAt = &now
	res, err := tx.NewUpdate().Model(record).
		Column("display_name", "bio", "phone_number", "updated_at").
		WherePK().
		Exec(ctx)
	return expectRow(res, err, map[string]any{"id": record.ID.String()}, "failed to update profile")
}

func (p *principals) SetApprovedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, approved bool) error {
	res, err := tx.NewUpdate().Model((*Principal)(nil)).
		Set("is_approved = ?", approved).
		Set("updated_at = ?", p.now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	return expectRow(res, err, map[string]any{"id": id.String()}, "failed to update approval")
}

func (p *principals) SetRoleTx(ctx context.Context, tx bun.IDB, id uuid.UUID, role Role) error {
	res, err := tx.NewUpdate().Model((*Principal)(nil)).
		Set("role = ?", role).
		Set("updated_at = ?", p.now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	return expectRow(res, err, map[string]any{"id": id.String()}, "failed to update role")
}

func (p *principals) DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	res, err := tx.NewDelete().Model((*Principal)(nil)).Where("id = ?", id).Exec(ctx)
	return expectRow(res, err, map[string]any{"id": id.String()}, "failed to delete principal")
}

func preparePrincipalDefaults(record *Principal) {
	if record == nil {
		return
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if !record.Role.IsValid() {
		record.Role = RoleUser
	}
	record.Email = normalizeEmail(record.Email)
}

// Credentials stores local password credentials.
type Credentials interface {
	CreateTx(ctx context.Context, tx bun.IDB, record *Credential) (*Credential, error)
	GetByEmail(ctx context.Context, email string) (*Credential, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Credential, error)
	// ReassignTx moves the credential of one profile to another. It reports
	// false when the source profile has no credential.
	ReassignTx(ctx context.Context, tx bun.IDB, from, to uuid.UUID) (bool, error)
	// DeleteTx removes the credential of a profile, if any.
	DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type credentials struct {
	repo repository.Repository[*Credential]
	db   *bun.DB
}

func NewCredentialsRepository(db *bun.DB) Credentials {
	return &credentials{
		repo: repository.NewRepository[*Credential](db, modelHandlers(
			func() *Credential { return &Credential{} },
			func(c *Credential) uuid.UUID {
				if c == nil {
					return uuid.Nil
				}
				return c.ID
			},
			func(c *Credential, id uuid.UUID) {
				if c != nil {
					c.ID = id
				}
			},
			"email",
		)),
		db: db,
	}
}

func (c *credentials) CreateTx(ctx context.Context, tx bun.IDB, record *Credential) (*Credential, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.Email = normalizeEmail(record.Email)
	created, err := c.repo.CreateTx(ctx, tx, record)
	if err != nil {
		return nil, storeFailure(err, "failed to create credential")
	}
	return created, nil
}

func (c *credentials) GetByEmail(ctx context.Context, email string) (*Credential, error) {
	record := &Credential{}
	err := c.db.NewSelect().Model(record).
		Where("?TableAlias.email = ?", normalizeEmail(email)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, map[string]any{"email": email}, "failed to load credential")
	}
	return record, nil
}

func (c *credentials) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Credential, error) {
	record := &Credential{}
	if err := tx.NewSelect().Model(record).Where("?TableAlias.id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, notFoundOr(err, map[string]any{"id": id.String()}, "failed to load credential")
	}
	return record, nil
}

func (c *credentials) ReassignTx(ctx context.Context, tx bun.IDB, from, to uuid.UUID) (bool, error) {
	res, err := tx.NewUpdate().Model((*Credential)(nil)).
		Set("id = ?", to).
		Where("id = ?", from).
		Exec(ctx)
	if err != nil {
		return false, storeFailure(err, "failed to reassign credential")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeFailure(err, "failed to reassign credential")
	}
	return n == 1, nil
}

func (c *credentials) DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	if _, err := tx.NewDelete().Model((*Credential)(nil)).Where("id = ?", id).Exec(ctx); err != nil {
		return storeFailure(err, "failed to delete credential")
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
