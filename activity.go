package portal

import (
	"context"
	"time"
)

// AuditAction enumerates the recorded actions.
type AuditAction string

const (
	AuditInviteCreated         AuditAction = "invite.created"
	AuditInviteRedeemed        AuditAction = "invite.redeemed"
	AuditTeamApproved          AuditAction = "team.approved"
	AuditTeamRejected          AuditAction = "team.rejected"
	AuditOrderApproved         AuditAction = "order.approved"
	AuditOrderRejected         AuditAction = "order.rejected"
	AuditIdeaConverted         AuditAction = "idea.converted"
	AuditIdeaRejected          AuditAction = "idea.rejected"
	AuditJoinApproved          AuditAction = "join.approved"
	AuditJoinRejected          AuditAction = "join.rejected"
	AuditProjectCreated        AuditAction = "project.created"
	AuditProjectMemberAssigned AuditAction = "project.member_assigned"
	AuditPrincipalApproved     AuditAction = "principal.approved"
	AuditPrincipalRoleChanged  AuditAction = "principal.role_changed"
	AuditLoginSuccess          AuditAction = "auth.login.success"
	AuditLoginFailure          AuditAction = "auth.login.failure"
)

const (
	ActorTypeSystem = "system"
)

// ActorRef identifies who/what performed an action.
type ActorRef struct {
	ID   string
	Type string
}

// AuditEvent captures audit-friendly information about an action.
type AuditEvent struct {
	Action     AuditAction
	Actor      ActorRef
	TargetID   string
	TargetType string
	Details    map[string]any
	OccurredAt time.Time
}

// AuditSink consumes audit events.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent) error
}

// AuditSinkFunc adapts a function to the AuditSink interface.
type AuditSinkFunc func(ctx context.Context, event AuditEvent) error

// Record implements AuditSink.
func (f AuditSinkFunc) Record(ctx context.Context, event AuditEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopAuditSink struct{}

func (noopAuditSink) Record(context.Context, AuditEvent) error {
	return nil
}

func normalizeAuditSink(s AuditSink) AuditSink {
	if s == nil {
		return noopAuditSink{}
	}
	return s
}

// AuditOption customizes a single audit record.
type AuditOption func(*AuditEvent)

// WithAuditTarget sets the record the action was performed on.
func WithAuditTarget(id, targetType string) AuditOption {
	return func(e *AuditEvent) {
		e.TargetID = id
		e.TargetType = targetType
	}
}

// WithAuditTime overrides the event timestamp.
func WithAuditTime(t time.Time) AuditOption {
	return func(e *AuditEvent) {
		e.OccurredAt = t
	}
}

// AuditRecorder appends audit entries. Recording is best effort: a sink
// failure is logged and counted, never returned to the caller.
type AuditRecorder struct {
	sink    AuditSink
	logger  Logger
	metrics Metrics
	now     func() time.Time
}

// AuditRecorderOption customizes the recorder.
type AuditRecorderOption func(*AuditRecorder)

// WithAuditLogger overrides the logger used for sink failures.
func WithAuditLogger(logger Logger) AuditRecorderOption {
	return func(r *AuditRecorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithAuditMetrics sets the metrics collector.
func WithAuditMetrics(m Metrics) AuditRecorderOption {
	return func(r *AuditRecorder) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithAuditClock injects a custom clock.
func WithAuditClock(clock func() time.Time) AuditRecorderOption {
	return func(r *AuditRecorder) {
		if clock != nil {
			r.now = clock
		}
	}
}

// NewAuditRecorder creates a recorder writing to sink.
func NewAuditRecorder(sink AuditSink, opts ...AuditRecorderOption) *AuditRecorder {
	r := &AuditRecorder{
		sink:    normalizeAuditSink(sink),
		logger:  defLogger(),
		metrics: noopMetrics{},
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Record appends an audit entry for action.
func (r *AuditRecorder) Record(ctx context.Context, action AuditAction, performedBy ActorRef, details map[string]any, opts ...AuditOption) {
	if r == nil {
		return
	}

	if performedBy == (ActorRef{}) {
		performedBy = ActorRef{Type: ActorTypeSystem}
	}

	event := AuditEvent{
		Action:  action,
		Actor:   performedBy,
		Details: cloneDetails(details),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&event)
		}
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = r.now()
	}

	if err := normalizeAuditSink(r.sink).Record(ctx, event); err != nil {
		r.metrics.AuditFailure()
		r.logger.Warn("audit sink error",
			"action", string(action),
			"actor", performedBy.ID,
			"target", event.TargetID,
			"error", err,
		)
	}
}

func cloneDetails(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
