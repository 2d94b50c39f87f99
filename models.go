package portal

import (
	"strings"
	"time"

	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Principal is a signed-in person together with their stored profile.
type Principal struct {
	bun.BaseModel  `bun:"table:team_profiles,alias:tp"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id"`
	Email          string     `bun:"email,notnull,unique" json:"email"`
	DisplayName    string     `bun:"display_name" json:"display_name,omitempty"`
	Role           Role       `bun:"role,notnull" json:"role"`
	IsApproved     bool       `bun:"is_approved,notnull,default:false" json:"is_approved"`
	Phone          string     `bun:"phone_number" json:"phone_number,omitempty"`
	Bio            string     `bun:"bio" json:"bio,omitempty"`
	InviteCodeUsed string     `bun:"invite_code_used" json:"invite_code_used,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// IsOwner reports whether the principal holds the owner role.
func (p *Principal) IsOwner() bool {
	return p != nil && p.Role == RoleOwner
}

// ActorRef returns the audit actor for the principal.
func (p *Principal) ActorRef() ActorRef {
	if p == nil {
		return ActorRef{Type: ActorTypeSystem}
	}
	return ActorRef{ID: p.ID.String(), Type: string(p.Role)}
}

// PrincipalIDFromSubject maps an identity provider subject to a stable
// principal id. Subjects that already are uuids are used as is.
func PrincipalIDFromSubject(subject string) uuid.UUID {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return uuid.Nil
	}
	if id, err := uuid.Parse(subject); err == nil {
		return id
	}
	id, err := hashid.NewUUID(subject)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// Credential is the local identity provider record.
type Credential struct {
	bun.BaseModel `bun:"table:credentials,alias:crd"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id"`
	Email         string     `bun:"email,notnull,unique" json:"email"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// InviteWildcardEmail marks an invite code that any email may redeem.
const InviteWildcardEmail = "*"

// InviteCode is a single use registration code.
type InviteCode struct {
	bun.BaseModel `bun:"table:invite_codes,alias:inv"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id"`
	Code          string     `bun:"code,notnull,unique" json:"code"`
	Email         string     `bun:"email" json:"email,omitempty"`
	JoinRequestID *uuid.UUID `bun:"join_request_id,type:uuid" json:"join_request_id,omitempty"`
	IsUsed        bool       `bun:"is_used,notnull,default:false" json:"is_used"`
	UsedBy        *uuid.UUID `bun:"used_by,type:uuid" json:"used_by,omitempty"`
	UsedAt        *time.Time `bun:"used_at,nullzero" json:"used_at,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	CreatedBy     *uuid.UUID `bun:"created_by,type:uuid" json:"created_by,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// BoundTo reports whether the code is restricted to a specific email.
func (c *InviteCode) BoundTo() (string, bool) {
	email := strings.TrimSpace(c.Email)
	if email == "" || email == InviteWildcardEmail {
		return "", false
	}
	return email, true
}

// RecordStatus is the lifecycle status shared by reviewable records.
type RecordStatus string

const (
	StatusPending   RecordStatus = "pending"
	StatusApproved  RecordStatus = "approved"
	StatusRejected  RecordStatus = "rejected"
	StatusConverted RecordStatus = "converted"
)

// Review holds the reviewer columns shared by reviewable records.
type Review struct {
	Status     RecordStatus `bun:"status,notnull,default:'pending'" json:"status"`
	ReviewedBy *uuid.UUID   `bun:"reviewed_by,type:uuid" json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time   `bun:"reviewed_at,nullzero" json:"reviewed_at,omitempty"`
}

// JoinRequest is a prospective team member asking for an invite.
type JoinRequest struct {
	bun.BaseModel `bun:"table:join_requests,alias:jr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id"`
	Name          string     `bun:"name,notnull" json:"name"`
	Email         string     `bun:"email,notnull" json:"email"`
	Message       string     `bun:"message" json:"message,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`

	Review
}

// ApplicationRecord is a team member applying to join a project.
type ApplicationRecord struct {
	bun.BaseModel `bun:"table:project_applications,alias:pa"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id"`
	ProjectID     uuid.UUID  `bun:"project_id,notnull,type:uuid" json:"project_id"`
	ApplicantID   uuid.UUID  `bun:"applicant_id,notnull,type:uuid" json:"applicant_id"`
	Message       string     `bun:"message" json:"message,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`

	Review
}

// OrderRecord is a customer order for a service.
type OrderRecord struct {
	bun.BaseModel `bun:"table:orders,alias:ord"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id"`
	CustomerName  string     `bun:"customer_name,notnull" json:"customer_name"`
	CustomerEmail string     `bun:"customer_email,notnull" json:"customer_email"`
	Service       string     `bun:"service,notnull" json:"service"`
	Details       string     `bun:"details" json:"details,omitempty"`
	Budget        string     `bun:"budget" json:"budget,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`

	Review
}

// ProjectIdeaRecord is an idea submitted by a team member.
type ProjectIdeaRecord struct {
	bun.BaseModel `bun:"table:project_ideas,alias:pi"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id"`
	SubmittedBy   uuid.UUID  `bun:"submitted_by,notnull,type:uuid" json:"submitted_by"`
	Title         string     `bun:"title,notnull" json:"title"`
	Description   string     `bun:"description" json:"description,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`

	Review
}

// Project groups team members working together.
type Project struct {
	bun.BaseModel `bun:"table:projects,alias:prj"`
	ID            uuid.UUID   `bun:"id,pk,nullzero,type:uuid" json:"id"`
	Name          string      `bun:"name,notnull" json:"name"`
	Description   string      `bun:"description" json:"description,omitempty"`
	OwnerID       uuid.UUID   `bun:"owner_id,notnull,type:uuid" json:"owner_id"`
	MemberIDs     []uuid.UUID `bun:"member_ids,type:jsonb" json:"member_ids"`
	CreatedAt     *time.Time  `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time  `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// HasMember reports whether id is already assigned to the project.
func (p *Project) HasMember(id uuid.UUID) bool {
	for _, member := range p.MemberIDs {
		if member == id {
			return true
		}
	}
	return false
}

// AuditLogEntry is an append only audit record.
type AuditLogEntry struct {
	bun.BaseModel `bun:"table:audit_logs,alias:al"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id"`
	Action        string         `bun:"action,notnull" json:"action"`
	PerformedBy   string         `bun:"performed_by,notnull" json:"performed_by"`
	ActorType     string         `bun:"actor_type" json:"actor_type,omitempty"`
	TargetID      string         `bun:"target_id" json:"target_id,omitempty"`
	TargetType    string         `bun:"target_type" json:"target_type,omitempty"`
	Channel       string         `bun:"channel" json:"channel,omitempty"`
	Details       map[string]any `bun:"details,type:jsonb" json:"details,omitempty"`
	Timestamp     time.Time      `bun:"occurred_at,notnull" json:"timestamp"`
}

// NotificationWatermark stores when a user last viewed a feed.
type NotificationWatermark struct {
	bun.BaseModel `bun:"table:user_notifications,alias:un"`
	UserID        uuid.UUID `bun:"user_id,pk,type:uuid" json:"user_id"`
	Feed          string    `bun:"feed,pk" json:"feed"`
	LastViewed    time.Time `bun:"last_viewed,notnull" json:"last_viewed"`
}

// SiteContent is an editable block of site copy.
type SiteContent struct {
	bun.BaseModel `bun:"table:site_content,alias:sc"`
	Key           string     `bun:"content_key,pk" json:"key"`
	Body          string     `bun:"body" json:"body"`
	UpdatedBy     *uuid.UUID `bun:"updated_by,type:uuid" json:"updated_by,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}
