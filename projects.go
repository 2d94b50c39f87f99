package portal

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CreateProjectMessage describes a new project.
type CreateProjectMessage struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (m CreateProjectMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&m.Description, validation.Length(0, 4000)),
	)
}

// CreateProject stores a new project owned by actor.
func (w *Workflows) CreateProject(ctx context.Context, actor *Principal, msg CreateProjectMessage) (*Project, error) {
	if err := requireOwner(actor); err != nil {
		return nil, err
	}

	msg.Name = strings.TrimSpace(msg.Name)
	if err := msg.Validate(); err != nil {
		return nil, validationFailure(err, "invalid project payload")
	}

	now := w.now().UTC()
	project := &Project{
		Name:        msg.Name,
		Description: strings.TrimSpace(msg.Description),
		OwnerID:     actor.ID,
		MemberIDs:   []uuid.UUID{},
		CreatedAt:   &now,
		UpdatedAt:   &now,
	}

	err := w.runInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		created, err := w.repo.Projects().CreateTx(ctx, tx, project)
		if err != nil {
			return err
		}
		project = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.audit.Record(ctx, AuditProjectCreated, actor.ActorRef(), map[string]any{
		"name": project.Name,
	}, WithAuditTarget(project.ID.String(), "project"))

	return project, nil
}

// DeleteProject removes a project. Deletion is intentionally not audited,
// matching the observed product behavior.
func (w *Workflows) DeleteProject(ctx context.Context, actor *Principal, id uuid.UUID) error {
	if err := requireOwner(actor); err != nil {
		return err
	}
	return w.runInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return w.repo.Projects().DeleteTx(ctx, tx, id)
	})
}

// ListProjects returns every project.
func (w *Workflows) ListProjects(ctx context.Context) ([]*Project, error) {
	return w.repo.Projects().List(ctx)
}

// SetContent stores a block of site copy.
func (w *Workflows) SetContent(ctx context.Context, actor *Principal, key, body string) (*SiteContent, error) {
	if err := requireOwner(actor); err != nil {
		return nil, err
	}
	key = strings.TrimSpace(key)
	if err := validation.Validate(key, validation.Required, validation.Length(1, 120)); err != nil {
		return nil, validationFailure(err, "invalid content key")
	}

	now := w.now().UTC()
	return w.repo.Content().Put(ctx, &SiteContent{
		Key:       key,
		Body:      body,
		UpdatedBy: &actor.ID,
		UpdatedAt: &now,
	})
}

// Content returns a block of site copy.
func (w *Workflows) Content(ctx context.Context, key string) (*SiteContent, error) {
	return w.repo.Content().Get(ctx, key)
}
