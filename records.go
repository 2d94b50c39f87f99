package portal

import (
	"strings"

	"github.com/google/uuid"
)

// RecordKind names a reviewable collection.
type RecordKind string

const (
	KindApplication RecordKind = "application"
	KindOrder       RecordKind = "order"
	KindIdea        RecordKind = "idea"
	KindJoinRequest RecordKind = "join_request"
)

// RecordRef points at one reviewable record.
type RecordRef struct {
	Kind RecordKind
	ID   uuid.UUID
}

func (r RecordRef) String() string {
	return string(r.Kind) + ":" + r.ID.String()
}

type kindSpec struct {
	table          string
	feed           string
	approvedStatus RecordStatus
	approvedAction AuditAction
	rejectedAction AuditAction
}

var kindSpecs = map[RecordKind]kindSpec{
	KindApplication: {
		table:          "project_applications",
		feed:           "applications",
		approvedStatus: StatusApproved,
		approvedAction: AuditTeamApproved,
		rejectedAction: AuditTeamRejected,
	},
	KindOrder: {
		table:          "orders",
		feed:           "orders",
		approvedStatus: StatusApproved,
		approvedAction: AuditOrderApproved,
		rejectedAction: AuditOrderRejected,
	},
	KindIdea: {
		table:          "project_ideas",
		feed:           "ideas",
		approvedStatus: StatusConverted,
		approvedAction: AuditIdeaConverted,
		rejectedAction: AuditIdeaRejected,
	},
	KindJoinRequest: {
		table:          "join_requests",
		feed:           "join_requests",
		approvedStatus: StatusApproved,
		approvedAction: AuditJoinApproved,
		rejectedAction: AuditJoinRejected,
	},
}

// IsValid reports whether the kind is known.
func (k RecordKind) IsValid() bool {
	_, ok := kindSpecs[k]
	return ok
}

// ApprovedStatus returns the status a pending record moves to on approval.
func (k RecordKind) ApprovedStatus() RecordStatus {
	return kindSpecs[k].approvedStatus
}

// Feed returns the notification feed listing records of this kind.
func (k RecordKind) Feed() string {
	return kindSpecs[k].feed
}

// ParseRecordKind accepts a kind or its feed name.
func ParseRecordKind(s string) (RecordKind, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for kind, spec := range kindSpecs {
		if string(kind) == s || spec.feed == s {
			return kind, true
		}
	}
	return "", false
}

// KindForFeed returns the kind whose records populate feed.
func KindForFeed(feed string) (RecordKind, bool) {
	for kind, spec := range kindSpecs {
		if spec.feed == feed {
			return kind, true
		}
	}
	return "", false
}
