package portal

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Reviews stores the reviewable collections and performs status changes.
type Reviews interface {
	StatusTx(ctx context.Context, tx bun.IDB, ref RecordRef) (RecordStatus, error)
	// CompareAndSetStatusTx moves ref from one status to another. It reports
	// false when the record was not in the expected status.
	CompareAndSetStatusTx(ctx context.Context, tx bun.IDB, ref RecordRef, from, to RecordStatus, reviewer uuid.UUID, at time.Time) (bool, error)
	CreatedTimes(ctx context.Context, kind RecordKind) ([]time.Time, error)

	CreateApplication(ctx context.Context, record *ApplicationRecord) (*ApplicationRecord, error)
	CreateOrder(ctx context.Context, record *OrderRecord) (*OrderRecord, error)
	CreateIdea(ctx context.Context, record *ProjectIdeaRecord) (*ProjectIdeaRecord, error)
	CreateJoinRequest(ctx context.Context, record *JoinRequest) (*JoinRequest, error)

	GetApplicationTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*ApplicationRecord, error)
	GetJoinRequestTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*JoinRequest, error)

	ListApplications(ctx context.Context, status RecordStatus) ([]*ApplicationRecord, error)
	ListOrders(ctx context.Context, status RecordStatus) ([]*OrderRecord, error)
	ListIdeas(ctx context.Context, status RecordStatus) ([]*ProjectIdeaRecord, error)
	ListJoinRequests(ctx context.Context, status RecordStatus) ([]*JoinRequest, error)
}

type reviews struct {
	db           *bun.DB
	applications repository.Repository[*ApplicationRecord]
	orders       repository.Repository[*OrderRecord]
	ideas        repository.Repository[*ProjectIdeaRecord]
	joinRequests repository.Repository[*JoinRequest]
}

func NewReviewsRepository(db *bun.DB) Reviews {
	return &reviews{
		db: db,
		applications: repository.NewRepository[*ApplicationRecord](db, modelHandlers(
			func() *ApplicationRecord { return &ApplicationRecord{} },
			func(r *ApplicationRecord) uuid.UUID { return r.ID },
			func(r *ApplicationRecord, id uuid.UUID) { r.ID = id },
			"id",
		)),
		orders: repository.NewRepository[*OrderRecord](db, modelHandlers(
			func() *OrderRecord { return &OrderRecord{} },
			func(r *OrderRecord) uuid.UUID { return r.ID },
			func(r *OrderRecord, id uuid.UUID) { r.ID = id },
			"id",
		)),
		ideas: repository.NewRepository[*ProjectIdeaRecord](db, modelHandlers(
			func() *ProjectIdeaRecord { return &ProjectIdeaRecord{} },
			func(r *ProjectIdeaRecord) uuid.UUID { return r.ID },
			func(r *ProjectIdeaRecord, id uuid.UUID) { r.ID = id },
			"id",
		)),
		joinRequests: repository.NewRepository[*JoinRequest](db, modelHandlers(
			func() *JoinRequest { return &JoinRequest{} },
			func(r *JoinRequest) uuid.UUID { return r.ID },
			func(r *JoinRequest, id uuid.UUID) { r.ID = id },
			"id",
		)),
	}
}

func (r *reviews) StatusTx(ctx context.Context, tx bun.IDB, ref RecordRef) (RecordStatus, error) {
	spec, ok := kindSpecs[ref.Kind]
	if !ok {
		return "", newError(ErrNotFound, map[string]any{"kind": ref.Kind})
	}

	var status string
	err := tx.NewSelect().
		Table(spec.table).
		Column("status").
		Where("id = ?", ref.ID).
		Limit(1).
		Scan(ctx, &status)
	if err != nil {
		return "", notFoundOr(err, map[string]any{"record": ref.String()}, "failed to load record status")
	}
	return RecordStatus(status), nil
}

func (r *reviews) CompareAndSetStatusTx(ctx context.Context, tx bun.IDB, ref RecordRef, from, to RecordStatus, reviewer uuid.UUID, at time.Time) (bool, error) {
	spec, ok := kindSpecs[ref.Kind]
	if !ok {
		return false, newError(ErrNotFound, map[string]any{"kind": ref.Kind})
	}

	res, err := tx.NewUpdate().
		Table(spec.table).
		Set("status = ?", to).
		Set("reviewed_by = ?", reviewer).
		Set("reviewed_at = ?", at).
		Where("id = ?", ref.ID).
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return false, storeFailure(err, "failed to update record status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeFailure(err, "failed to update record status")
	}
	return n == 1, nil
}

func (r *reviews) CreatedTimes(ctx context.Context, kind RecordKind) ([]time.Time, error) {
	spec, ok := kindSpecs[kind]
	if !ok {
		return nil, newError(ErrNotFound, map[string]any{"kind": kind})
	}
	var stamps []time.Time
	if err := r.db.NewSelect().Table(spec.table).Column("created_at").Scan(ctx, &stamps); err != nil {
		return nil, storeFailure(err, "failed to load feed items")
	}
	return stamps, nil
}

func (r *reviews) CreateApplication(ctx context.Context, record *ApplicationRecord) (*ApplicationRecord, error) {
	prepareReview(&record.ID, &record.Review, &record.CreatedAt)
	return wrapCreate(r.applications.CreateTx(ctx, r.db, record))
}

func (r *reviews) CreateOrder(ctx context.Context, record *OrderRecord) (*OrderRecord, error) {
	prepareReview(&record.ID, &record.Review, &record.CreatedAt)
	return wrapCreate(r.orders.CreateTx(ctx, r.db, record))
}

func (r *reviews) CreateIdea(ctx context.Context, record *ProjectIdeaRecord) (*ProjectIdeaRecord, error) {
	prepareReview(&record.ID, &record.Review, &record.CreatedAt)
	return wrapCreate(r.ideas.CreateTx(ctx, r.db, record))
}

func (r *reviews) CreateJoinRequest(ctx context.Context, record *JoinRequest) (*JoinRequest, error) {
	prepareReview(&record.ID, &record.Review, &record.CreatedAt)
	record.Email = normalizeEmail(record.Email)
	return wrapCreate(r.joinRequests.CreateTx(ctx, r.db, record))
}

func (r *reviews) GetApplicationTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*ApplicationRecord, error) {
	record := &ApplicationRecord{}
	if err := tx.NewSelect().Model(record).Where("?TableAlias.id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, notFoundOr(err, map[string]any{"id": id.String()}, "failed to load application")
	}
	return record, nil
}

func (r *reviews) GetJoinRequestTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*JoinRequest, error) {
	record := &JoinRequest{}
	if err := tx.NewSelect().Model(record).Where("?TableAlias.id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, notFoundOr(err, map[string]any{"id": id.String()}, "failed to load join request")
	}
	return record, nil
}

func (r *reviews) ListApplications(ctx context.Context, status RecordStatus) ([]*ApplicationRecord, error) {
	return listReviewable[ApplicationRecord](ctx, r.db, status)
}

func (r *reviews) ListOrders(ctx context.Context, status RecordStatus) ([]*OrderRecord, error) {
	return listReviewable[OrderRecord](ctx, r.db, status)
}

func (r *reviews) ListIdeas(ctx context.Context, status RecordStatus) ([]*ProjectIdeaRecord, error) {
	return listReviewable[ProjectIdeaRecord](ctx, r.db, status)
}

func (r *reviews) ListJoinRequests(ctx context.Context, status RecordStatus) ([]*JoinRequest, error) {
	return listReviewable[JoinRequest](ctx, r.db, status)
}

func listReviewable[T any](ctx context.Context, db bun.IDB, status RecordStatus) ([]*T, error) {
	records := []*T{}
	q := db.NewSelect().Model(&records).OrderExpr("?TableAlias.created_at DESC")
	if status != "" {
		q = q.Where("?TableAlias.status = ?", status)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, storeFailure(err, "failed to list records")
	}
	return records, nil
}

// prepareReview resets a new record to pending. created_at is stamped here
// so it keeps sub-second precision, matching the watermarks it is compared to.
func prepareReview(id *uuid.UUID, review *Review, created **time.Time) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
	if *created == nil {
		now := time.Now().UTC()
		*created = &now
	}
	review.Status = StatusPending
	review.ReviewedBy = nil
	review.ReviewedAt = nil
}

func wrapCreate[T any](record T, err error) (T, error) {
	if err != nil {
		var zero T
		return zero, storeFailure(err, "failed to create record")
	}
	return record, nil
}
