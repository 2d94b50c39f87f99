package portal

import (
	"context"

	"github.com/goliatone/go-portal/activitymap"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AuditLogs is the append only audit store. It exposes no update or delete.
type AuditLogs interface {
	AuditSink
	Append(ctx context.Context, entry *AuditLogEntry) error
	List(ctx context.Context, filter AuditFilter) ([]*AuditLogEntry, error)
}

// AuditFilter narrows audit listings.
type AuditFilter struct {
	Action      AuditAction
	PerformedBy string
	TargetID    string
	Limit       int
}

const defaultAuditListLimit = 100

type auditLogs struct {
	db      bun.IDB
	options []activitymap.Option
}

// NewAuditLogsRepository creates the bun backed audit store.
func NewAuditLogsRepository(db bun.IDB, opts ...activitymap.Option) AuditLogs {
	return &auditLogs{db: db, options: opts}
}

// Record implements AuditSink by normalizing the event into an entry.
func (a *auditLogs) Record(ctx context.Context, event AuditEvent) error {
	normalized := activitymap.Normalize(activitymap.Event{
		Action:     string(event.Action),
		ActorID:    event.Actor.ID,
		ActorType:  event.Actor.Type,
		TargetID:   event.TargetID,
		TargetType: event.TargetType,
		Metadata:   event.Details,
		OccurredAt: event.OccurredAt,
	}, a.options...)

	return a.Append(ctx, &AuditLogEntry{
		Action:      normalized.Verb,
		PerformedBy: normalized.ActorID,
		ActorType:   event.Actor.Type,
		TargetID:    normalized.ObjectID,
		TargetType:  normalized.ObjectType,
		Channel:     normalized.Channel,
		Details:     normalized.Metadata,
		Timestamp:   normalized.OccurredAt.UTC(),
	})
}

func (a *auditLogs) Append(ctx context.Context, entry *AuditLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if _, err := a.db.NewInsert().Model(entry).Exec(ctx); err != nil {
		return storeFailure(err, "failed to append audit entry")
	}
	return nil
}

func (a *auditLogs) List(ctx context.Context, filter AuditFilter) ([]*AuditLogEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAuditListLimit
	}

	entries := []*AuditLogEntry{}
	q := a.db.NewSelect().Model(&entries).
		OrderExpr("?TableAlias.occurred_at DESC").
		Limit(limit)
	if filter.Action != "" {
		q = q.Where("?TableAlias.action = ?", filter.Action)
	}
	if filter.PerformedBy != "" {
		q = q.Where("?TableAlias.performed_by = ?", filter.PerformedBy)
	}
	if filter.TargetID != "" {
		q = q.Where("?TableAlias.target_id = ?", filter.TargetID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, storeFailure(err, "failed to list audit entries")
	}
	return entries, nil
}
