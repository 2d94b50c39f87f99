package portal

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
)

// JoinRequestMessage is a public request to join the team.
type JoinRequestMessage struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

func (m JoinRequestMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Name, validation.Required, validation.Length(1, 120)),
		validation.Field(&m.Email, validation.Required, is.EmailFormat),
		validation.Field(&m.Message, validation.Length(0, 4000)),
	)
}

// OrderMessage is a public service order.
type OrderMessage struct {
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	Service       string `json:"service"`
	Details       string `json:"details"`
	Budget        string `json:"budget"`
}

func (m OrderMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.CustomerName, validation.Required, validation.Length(1, 120)),
		validation.Field(&m.CustomerEmail, validation.Required, is.EmailFormat),
		validation.Field(&m.Service, validation.Required, validation.Length(1, 120)),
		validation.Field(&m.Details, validation.Length(0, 4000)),
		validation.Field(&m.Budget, validation.Length(0, 64)),
	)
}

// ApplicationMessage is a team member applying to a project.
type ApplicationMessage struct {
	ProjectID uuid.UUID `json:"project_id"`
	Message   string    `json:"message"`
}

func (m ApplicationMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.ProjectID, validation.By(requireUUID)),
		validation.Field(&m.Message, validation.Length(0, 4000)),
	)
}

// IdeaMessage is a team member proposing a project.
type IdeaMessage struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (m IdeaMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&m.Description, validation.Length(0, 4000)),
	)
}

// SubmitJoinRequest stores a pending join request.
func (w *Workflows) SubmitJoinRequest(ctx context.Context, msg JoinRequestMessage) (*JoinRequest, error) {
	msg.Name = strings.TrimSpace(msg.Name)
	msg.Email = normalizeEmail(msg.Email)
	if err := msg.Validate(); err != nil {
		return nil, validationFailure(err, "invalid join request")
	}
	return w.repo.Reviews().CreateJoinRequest(ctx, &JoinRequest{
		Name:      msg.Name,
		Email:     msg.Email,
		Message:   strings.TrimSpace(msg.Message),
		CreatedAt: w.stamp(),
	})
}

// SubmitOrder stores a pending order.
func (w *Workflows) SubmitOrder(ctx context.Context, msg OrderMessage) (*OrderRecord, error) {
	msg.CustomerEmail = normalizeEmail(msg.CustomerEmail)
	msg.CustomerName = strings.TrimSpace(msg.CustomerName)
	if err := msg.Validate(); err != nil {
		return nil, validationFailure(err, "invalid order")
	}
	return w.repo.Reviews().CreateOrder(ctx, &OrderRecord{
		CustomerName:  msg.CustomerName,
		CustomerEmail: msg.CustomerEmail,
		Service:       strings.TrimSpace(msg.Service),
		Details:       strings.TrimSpace(msg.Details),
		Budget:        strings.TrimSpace(msg.Budget),
		CreatedAt:     w.stamp(),
	})
}

// SubmitApplication stores a pending application for an approved team member.
func (w *Workflows) SubmitApplication(ctx context.Context, actor *Principal, msg ApplicationMessage) (*ApplicationRecord, error) {
	if err := requireApprovedTeam(actor); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, validationFailure(err, "invalid application")
	}
	if _, err := w.repo.Projects().GetByIDTx(ctx, w.repo.DB(), msg.ProjectID); err != nil {
		return nil, err
	}
	return w.repo.Reviews().CreateApplication(ctx, &ApplicationRecord{
		ProjectID:   msg.ProjectID,
		ApplicantID: actor.ID,
		Message:     strings.TrimSpace(msg.Message),
		CreatedAt:   w.stamp(),
	})
}

// SubmitIdea stores a pending project idea for an approved team member.
func (w *Workflows) SubmitIdea(ctx context.Context, actor *Principal, msg IdeaMessage) (*ProjectIdeaRecord, error) {
	if err := requireApprovedTeam(actor); err != nil {
		return nil, err
	}
	msg.Title = strings.TrimSpace(msg.Title)
	if err := msg.Validate(); err != nil {
		return nil, validationFailure(err, "invalid idea")
	}
	return w.repo.Reviews().CreateIdea(ctx, &ProjectIdeaRecord{
		SubmittedBy: actor.ID,
		Title:       msg.Title,
		Description: strings.TrimSpace(msg.Description),
		CreatedAt:   w.stamp(),
	})
}

func requireUUID(value any) error {
	if id, ok := value.(uuid.UUID); ok && id != uuid.Nil {
		return nil
	}
	return validation.NewError("validation_required", "cannot be blank")
}
