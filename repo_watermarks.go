package portal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// WatermarkStore persists per user per feed last viewed timestamps.
type WatermarkStore interface {
	Get(ctx context.Context, userID uuid.UUID, feed string) (*NotificationWatermark, error)
	// AdvanceTx stores at unless an equal or later watermark exists.
	AdvanceTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, feed string, at time.Time) (*NotificationWatermark, error)
}

type watermarkStore struct {
	db bun.IDB
}

func NewWatermarkStore(db bun.IDB) WatermarkStore {
	return &watermarkStore{db: db}
}

func (s *watermarkStore) Get(ctx context.Context, userID uuid.UUID, feed string) (*NotificationWatermark, error) {
	return s.getTx(ctx, s.db, userID, feed)
}

func (s *watermarkStore) getTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, feed string) (*NotificationWatermark, error) {
	record := &NotificationWatermark{}
	err := tx.NewSelect().Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.feed = ?", feed).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, map[string]any{"user_id": userID.String(), "feed": feed}, "failed to load watermark")
	}
	return record, nil
}

func (s *watermarkStore) AdvanceTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, feed string, at time.Time) (*NotificationWatermark, error) {
	existing, err := s.getTx(ctx, tx, userID, feed)
	if err != nil && !HasTextCode(err, TextCodeNotFound) {
		return nil, err
	}

	if existing == nil {
		record := &NotificationWatermark{UserID: userID, Feed: feed, LastViewed: at}
		if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
			return nil, storeFailure(err, "failed to store watermark")
		}
		return record, nil
	}

	if !at.After(existing.LastViewed) {
		return existing, nil
	}

	existing.LastViewed = at
	res, err := tx.NewUpdate().Model(existing).Column("last_viewed").WherePK().Exec(ctx)
	if err := expectRow(res, err, map[string]any{"user_id": userID.String(), "feed": feed}, "failed to store watermark"); err != nil {
		return nil, err
	}
	return existing, nil
}
