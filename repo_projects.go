package portal

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Projects stores projects and their member lists.
type Projects interface {
	CreateTx(ctx context.Context, tx bun.IDB, record *Project) (*Project, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Project, error)
	UpdateMembersTx(ctx context.Context, tx bun.IDB, record *Project) error
	DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
	List(ctx context.Context) ([]*Project, error)
}

type projects struct {
	repo repository.Repository[*Project]
	db   *bun.DB
	now  func() time.Time
}

func NewProjectsRepository(db *bun.DB) Projects {
	return &projects{
		repo: repository.NewRepository[*Project](db, modelHandlers(
			func() *Project { return &Project{} },
			func(p *Project) uuid.UUID {
				if p == nil {
					return uuid.Nil
				}
				return p.ID
			},
			func(p *Project, id uuid.UUID) {
				if p != nil {
					p.ID = id
				}
			},
			"id",
		)),
		db:  db,
		now: time.Now,
	}
}

func (p *projects) CreateTx(ctx context.Context, tx bun.IDB, record *Project) (*Project, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.MemberIDs == nil {
		record.MemberIDs = []uuid.UUID{}
	}
	created, err := p.repo.CreateTx(ctx, tx, record)
	if err != nil {
		return nil, storeFailure(err, "failed to create project")
	}
	return created, nil
}

func (p *projects) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Project, error) {
	record := &Project{}
	if err := tx.NewSelect().Model(record).Where("?TableAlias.id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, notFoundOr(err, map[string]any{"id": id.String()}, "failed to load project")
	}
	return record, nil
}

func (p *projects) UpdateMembersTx(ctx context.Context, tx bun.IDB, record *Project) error {
	now := p.now().UTC()
	record.UpdatedAt = &now
	res, err := tx.NewUpdate().Model(record).
		Column("member_ids", "updated_at").
		WherePK().
		Exec(ctx)
	return expectRow(res, err, map[string]any{"id": record.ID.String()}, "failed to update project members")
}

func (p *projects) DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	res, err := tx.NewDelete().Model((*Project)(nil)).Where("id = ?", id).Exec(ctx)
	return expectRow(res, err, map[string]any{"id": id.String()}, "failed to delete project")
}

func (p *projects) List(ctx context.Context) ([]*Project, error) {
	records := []*Project{}
	if err := p.db.NewSelect().Model(&records).OrderExpr("?TableAlias.name ASC").Scan(ctx); err != nil {
		return nil, storeFailure(err, "failed to list projects")
	}
	return records, nil
}
