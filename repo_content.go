package portal

import (
	"context"
	"strings"

	"github.com/uptrace/bun"
)

// ContentStore is the editable site copy collection.
type ContentStore interface {
	Get(ctx context.Context, key string) (*SiteContent, error)
	Put(ctx context.Context, record *SiteContent) (*SiteContent, error)
	List(ctx context.Context) ([]*SiteContent, error)
}

type contentStore struct {
	db bun.IDB
}

func NewContentStore(db bun.IDB) ContentStore {
	return &contentStore{db: db}
}

func (s *contentStore) Get(ctx context.Context, key string) (*SiteContent, error) {
	record := &SiteContent{}
	err := s.db.NewSelect().Model(record).
		Where("?TableAlias.content_key = ?", strings.TrimSpace(key)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, map[string]any{"key": key}, "failed to load content")
	}
	return record, nil
}

func (s *contentStore) Put(ctx context.Context, record *SiteContent) (*SiteContent, error) {
	record.Key = strings.TrimSpace(record.Key)
	_, err := s.db.NewInsert().Model(record).
		On("CONFLICT (content_key) DO UPDATE").
		Set("body = EXCLUDED.body").
		Set("updated_by = EXCLUDED.updated_by").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return nil, storeFailure(err, "failed to store content")
	}
	return record, nil
}

func (s *contentStore) List(ctx context.Context) ([]*SiteContent, error) {
	records := []*SiteContent{}
	if err := s.db.NewSelect().Model(&records).OrderExpr("?TableAlias.content_key ASC").Scan(ctx); err != nil {
		return nil, storeFailure(err, "failed to list content")
	}
	return records, nil
}
