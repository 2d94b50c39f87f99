package portal

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	DB() bun.IDB
	Principals() Principals
	Credentials() Credentials
	InviteCodes() InviteCodes
	Reviews() Reviews
	Projects() Projects
	AuditLogs() AuditLogs
	Watermarks() WatermarkStore
	Content() ContentStore
}

type mngr struct {
	db          *bun.DB
	principals  Principals
	credentials Credentials
	inviteCodes InviteCodes
	reviews     Reviews
	projects    Projects
	auditLogs   AuditLogs
	watermarks  WatermarkStore
	content     ContentStore
}

// NewRepositoryManager wires every collection against db.
func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:          db,
		principals:  NewPrincipalsRepository(db),
		credentials: NewCredentialsRepository(db),
		inviteCodes: NewInviteCodesRepository(db),
		reviews:     NewReviewsRepository(db),
		projects:    NewProjectsRepository(db),
		auditLogs:   NewAuditLogsRepository(db),
		watermarks:  NewWatermarkStore(db),
		content:     NewContentStore(db),
	}
}

func (m mngr) Validate() error {
	switch {
	case m.db == nil:
		return errors.New("database should be initialized")
	case m.principals == nil:
		return errors.New("repository principals should be initialized")
	case m.credentials == nil:
		return errors.New("repository credentials should be initialized")
	case m.inviteCodes == nil:
		return errors.New("repository invite codes should be initialized")
	case m.reviews == nil:
		return errors.New("repository reviews should be initialized")
	case m.projects == nil:
		return errors.New("repository projects should be initialized")
	case m.auditLogs == nil:
		return errors.New("repository audit logs should be initialized")
	case m.watermarks == nil:
		return errors.New("repository watermarks should be initialized")
	case m.content == nil:
		return errors.New("repository content should be initialized")
	}
	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) DB() bun.IDB {
	return m.db
}

func (m mngr) Principals() Principals {
	return m.principals
}

func (m mngr) Credentials() Credentials {
	return m.credentials
}

func (m mngr) InviteCodes() InviteCodes {
	return m.inviteCodes
}

func (m mngr) Reviews() Reviews {
	return m.reviews
}

func (m mngr) Projects() Projects {
	return m.projects
}

func (m mngr) AuditLogs() AuditLogs {
	return m.auditLogs
}

func (m mngr) Watermarks() WatermarkStore {
	return m.watermarks
}

func (m mngr) Content() ContentStore {
	return m.content
}

func modelHandlers[T any](newRecord func() T, getID func(T) uuid.UUID, setID func(T, uuid.UUID), identifier string) repository.ModelHandlers[T] {
	return repository.ModelHandlers[T]{
		NewRecord: newRecord,
		GetID:     getID,
		SetID:     setID,
		GetIdentifier: func() string {
			return identifier
		},
	}
}

func isNotFound(err error) bool {
	return repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows)
}

func notFoundOr(err error, metadata map[string]any, message string) error {
	if isNotFound(err) {
		return newError(ErrNotFound, metadata)
	}
	return storeFailure(err, message)
}

func expectRow(res sql.Result, err error, metadata map[string]any, message string) error {
	if err != nil {
		return storeFailure(err, message)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeFailure(err, message)
	}
	if n == 0 {
		return newError(ErrNotFound, metadata)
	}
	return nil
}
