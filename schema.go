package portal

import (
	"context"

	"github.com/uptrace/bun"
)

var schemaModels = []any{
	(*Principal)(nil),
	(*Credential)(nil),
	(*InviteCode)(nil),
	(*JoinRequest)(nil),
	(*ApplicationRecord)(nil),
	(*OrderRecord)(nil),
	(*ProjectIdeaRecord)(nil),
	(*Project)(nil),
	(*AuditLogEntry)(nil),
	(*NotificationWatermark)(nil),
	(*SiteContent)(nil),
}

// SchemaModels returns the models backing every collection, for
// registration with the persistence client.
func SchemaModels() []any {
	return append([]any(nil), schemaModels...)
}

// CreateSchema creates every collection table if missing.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, model := range schemaModels {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return storeFailure(err, "failed to create schema")
		}
	}
	return nil
}
