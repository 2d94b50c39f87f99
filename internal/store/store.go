// Package store opens the portal database through the persistence client
// and applies the embedded migrations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sync"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/goliatone/go-portal"
)

const migrationsRoot = "data/sql/migrations"

var registerOnce sync.Once

// Open connects to the database described by cfg, registers the portal
// models and runs pending migrations. The caller owns the returned handle.
func Open(ctx context.Context, cfg persistence.Config, logger portal.Logger) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.GetServer())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// sqlite serializes writers; one connection keeps tx semantics simple.
	sqldb.SetMaxOpenConns(1)

	registerOnce.Do(func() {
		for _, model := range portal.SchemaModels() {
			persistence.RegisterModel(model)
		}
	})

	client, err := persistence.New(cfg, sqldb, sqlitedialect.New())
	if err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("persistence client: %w", err)
	}

	if logger != nil {
		client.SetLogger(logger)
	}

	migrationsFS, err := fs.Sub(portal.GetMigrationsFS(), migrationsRoot)
	if err != nil {
		_ = sqldb.Close()
		return nil, err
	}

	client.RegisterDialectMigrations(
		migrationsFS,
		persistence.WithDialectSourceLabel(migrationsRoot),
		persistence.WithValidationTargets("sqlite"),
	)
	if err := client.ValidateDialects(ctx); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("validate migrations: %w", err)
	}

	if err := client.Migrate(ctx); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return client.DB(), nil
}
