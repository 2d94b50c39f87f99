package portal_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"

	"github.com/goliatone/go-portal"
)

var fastHasher = portal.BcryptHasher{Cost: bcrypt.MinCost}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, portal.CreateSchema(context.Background(), db))
	return db
}

func newTestRepo(t *testing.T) portal.RepositoryManager {
	t.Helper()
	return portal.NewRepositoryManager(newTestDB(t))
}

func newTestAudit(repo portal.RepositoryManager) *portal.AuditRecorder {
	return portal.NewAuditRecorder(repo.AuditLogs())
}

func seedPrincipal(t *testing.T, repo portal.RepositoryManager, email string, role portal.Role, approved bool) *portal.Principal {
	t.Helper()

	now := time.Now().UTC()
	record := &portal.Principal{
		ID:          uuid.New(),
		Email:       email,
		DisplayName: email,
		Role:        role,
		IsApproved:  approved,
		CreatedAt:   &now,
		UpdatedAt:   &now,
	}

	var created *portal.Principal
	err := repo.RunInTx(context.Background(), nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		created, err = repo.Principals().CreateTx(ctx, tx, record)
		return err
	})
	require.NoError(t, err)
	return created
}

func seedCredential(t *testing.T, repo portal.RepositoryManager, principal *portal.Principal, password string) {
	t.Helper()

	hash, err := fastHasher.HashPassword(password)
	require.NoError(t, err)

	err = repo.RunInTx(context.Background(), nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := repo.Credentials().CreateTx(ctx, tx, &portal.Credential{
			ID:           principal.ID,
			Email:        principal.Email,
			PasswordHash: hash,
		})
		return err
	})
	require.NoError(t, err)
}

func auditActions(t *testing.T, repo portal.RepositoryManager, action portal.AuditAction) []*portal.AuditLogEntry {
	t.Helper()

	entries, err := repo.AuditLogs().List(context.Background(), portal.AuditFilter{Action: action})
	require.NoError(t, err)
	return entries
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
