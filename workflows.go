package portal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Workflows groups the owner actions that sit next to the record
// lifecycle: member assignment, principal approval and role changes,
// projects and site content.
type Workflows struct {
	repo    RepositoryManager
	audit   *AuditRecorder
	logger  Logger
	now     func() time.Time
	timeout time.Duration
}

// WorkflowsOption customizes Workflows.
type WorkflowsOption func(*Workflows)

// WithWorkflowsClock injects a custom clock.
func WithWorkflowsClock(clock func() time.Time) WorkflowsOption {
	return func(w *Workflows) {
		if clock != nil {
			w.now = clock
		}
	}
}

// WithWorkflowsLogger overrides the logger.
func WithWorkflowsLogger(logger Logger) WorkflowsOption {
	return func(w *Workflows) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func NewWorkflows(repo RepositoryManager, audit *AuditRecorder, opts ...WorkflowsOption) *Workflows {
	if audit == nil {
		audit = NewAuditRecorder(nil)
	}
	w := &Workflows{
		repo:    repo,
		audit:   audit,
		logger:  defLogger(),
		now:     time.Now,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

func requireOwner(actor *Principal) error {
	if actor == nil {
		return ErrUnauthenticated
	}
	if !actor.IsOwner() {
		return newError(ErrForbidden, map[string]any{"actor": actor.ID.String()})
	}
	return nil
}

func requireApprovedTeam(actor *Principal) error {
	if actor == nil {
		return ErrUnauthenticated
	}
	if actor.IsOwner() {
		return nil
	}
	if actor.Role != RoleTeam || !actor.IsApproved {
		return newError(ErrForbidden, map[string]any{"actor": actor.ID.String()})
	}
	return nil
}

func (w *Workflows) stamp() *time.Time {
	now := w.now().UTC()
	return &now
}

func (w *Workflows) runInTx(ctx context.Context, f func(ctx context.Context, tx bun.Tx) error) error {
	txCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	if err := w.repo.RunInTx(txCtx, nil, f); err != nil {
		return storeFailure(err, "workflow transaction failed")
	}
	return nil
}

// AssignMember adds the applicant of an approved application to its project.
// Assigning an already assigned member is a no-op.
func (w *Workflows) AssignMember(ctx context.Context, actor *Principal, applicationID uuid.UUID) (*Project, error) {
	if err := requireOwner(actor); err != nil {
		return nil, err
	}

	var project *Project
	assigned := false

	err := w.runInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		app, err := w.repo.Reviews().GetApplicationTx(ctx, tx, applicationID)
		if err != nil {
			return err
		}
		if app.Status != StatusApproved {
			return newError(ErrInvalidTransition, map[string]any{
				"application": applicationID.String(),
				"status":      app.Status,
				"reason":      "application must be approved before assignment",
			})
		}

		project, err = w.repo.Projects().GetByIDTx(ctx, tx, app.ProjectID)
		if err != nil {
			return err
		}
		if project.HasMember(app.ApplicantID) {
			return nil
		}

		project.MemberIDs = append(project.MemberIDs, app.ApplicantID)
		if err := w.repo.Projects().UpdateMembersTx(ctx, tx, project); err != nil {
			return err
		}
		assigned = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if assigned {
		w.audit.Record(ctx, AuditProjectMemberAssigned, actor.ActorRef(), map[string]any{
			"application_id": applicationID.String(),
			"member_id":      project.MemberIDs[len(project.MemberIDs)-1].String(),
		}, WithAuditTarget(project.ID.String(), "project"))
	}

	return project, nil
}

// ApprovePrincipal marks a team principal as approved.
func (w *Workflows) ApprovePrincipal(ctx context.Context, actor *Principal, principalID uuid.UUID) (*Principal, error) {
	if err := requireOwner(actor); err != nil {
		return nil, err
	}

	var target *Principal
	changed := false

	err := w.runInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		target, err = w.repo.Principals().GetByIDTx(ctx, tx, principalID)
		if err != nil {
			return err
		}
		if target.IsApproved {
			return nil
		}
		if err := w.repo.Principals().SetApprovedTx(ctx, tx, principalID, true); err != nil {
			return err
		}
		target.IsApproved = true
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		w.audit.Record(ctx, AuditPrincipalApproved, actor.ActorRef(), map[string]any{
			"email": target.Email,
		}, WithAuditTarget(target.ID.String(), "principal"))
	}

	return target, nil
}

// ChangeRole sets the role of another principal.
func (w *Workflows) ChangeRole(ctx context.Context, actor *Principal, principalID uuid.UUID, role Role) (*Principal, error) {
	if err := requireOwner(actor); err != nil {
		return nil, err
	}
	if !role.IsValid() {
		return nil, newError(ErrInvalidTransition, map[string]any{
			"role":   role,
			"reason": "unknown role",
		})
	}
	if actor.ID == principalID {
		return nil, newError(ErrForbidden, map[string]any{
			"reason": "owners cannot change their own role",
		})
	}

	var target *Principal
	var from Role

	err := w.runInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		target, err = w.repo.Principals().GetByIDTx(ctx, tx, principalID)
		if err != nil {
			return err
		}
		from = target.Role
		if from == role {
			return nil
		}
		if err := w.repo.Principals().SetRoleTx(ctx, tx, principalID, role); err != nil {
			return err
		}
		target.Role = role
		return nil
	})
	if err != nil {
		return nil, err
	}

	if from != role {
		w.audit.Record(ctx, AuditPrincipalRoleChanged, actor.ActorRef(), map[string]any{
			"from_role": string(from),
			"to_role":   string(role),
		}, WithAuditTarget(target.ID.String(), "principal"))
	}

	return target, nil
}
