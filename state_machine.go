package portal

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionContext is passed into hooks for additional processing.
type TransitionContext struct {
	Actor  *Principal
	Record RecordRef
	From   RecordStatus
	To     RecordStatus
	Meta   TransitionMetadata
}

// TransitionResult describes a completed transition.
type TransitionResult struct {
	Record     RecordRef
	From       RecordStatus
	To         RecordStatus
	ReviewedAt time.Time
}

// TransitionHook is executed before or after a transition.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// TransitionHookPhase identifies whether a hook ran before or after persistence.
type TransitionHookPhase string

const (
	HookPhaseBefore TransitionHookPhase = "before_transition"
	HookPhaseAfter  TransitionHookPhase = "after_transition"
)

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

// RecordStateMachine moves reviewable records through their lifecycle.
type RecordStateMachine interface {
	Transition(ctx context.Context, actor *Principal, ref RecordRef, target RecordStatus, opts ...TransitionOption) (*TransitionResult, error)
	CanTransition(kind RecordKind, from, to RecordStatus) bool
}

// HookErrorHandler handles errors surfaced by transition hooks.
type HookErrorHandler func(ctx context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*recordStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *recordStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineAuditRecorder sets the recorder used for transition entries.
func WithStateMachineAuditRecorder(audit *AuditRecorder) StateMachineOption {
	return func(sm *recordStateMachine) {
		if audit != nil {
			sm.audit = audit
		}
	}
}

// WithStateMachineHookErrorHandler overrides how hook failures are propagated.
// By default the hook error is returned as is.
func WithStateMachineHookErrorHandler(handler HookErrorHandler) StateMachineOption {
	return func(sm *recordStateMachine) {
		if handler != nil {
			sm.hookErrorHandler = handler
		}
	}
}

// WithStateMachineMetrics sets the metrics collector.
func WithStateMachineMetrics(m Metrics) StateMachineOption {
	return func(sm *recordStateMachine) {
		sm.metrics = normalizeMetrics(m)
	}
}

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.metadata.Reason = reason
	}
}

// WithTransitionMetadata merges metadata into the transition context.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata.Metadata == nil {
			opts.metadata.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata.Metadata[k] = v
		}
	}
}

// WithBeforeTransitionHook adds a hook executed inside the transaction
// before the status update. A hook error aborts the transition.
func WithBeforeTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.beforeHooks = append(opts.beforeHooks, h)
		}
	}
}

// WithAfterTransitionHook adds a hook executed after the update committed.
func WithAfterTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.afterHooks = append(opts.afterHooks, h)
		}
	}
}

// NewRecordStateMachine returns the default implementation backed by repo.
func NewRecordStateMachine(repo RepositoryManager, opts ...StateMachineOption) RecordStateMachine {
	sm := &recordStateMachine{
		repo:        repo,
		transitions: buildTransitions(),
		now:         time.Now,
		audit:       NewAuditRecorder(nil),
		metrics:     noopMetrics{},
		hookErrorHandler: func(_ context.Context, _ TransitionHookPhase, err error, _ TransitionContext) error {
			return err
		},
		timeout: 10 * time.Second,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

// buildTransitions allows pending -> approved status and pending -> rejected
// for every kind. There are no other edges.
func buildTransitions() map[RecordKind]map[RecordStatus]map[RecordStatus]struct{} {
	out := make(map[RecordKind]map[RecordStatus]map[RecordStatus]struct{}, len(kindSpecs))
	for kind, spec := range kindSpecs {
		out[kind] = map[RecordStatus]map[RecordStatus]struct{}{
			StatusPending: {
				spec.approvedStatus: {},
				StatusRejected:      {},
			},
		}
	}
	return out
}

type recordStateMachine struct {
	repo             RepositoryManager
	transitions      map[RecordKind]map[RecordStatus]map[RecordStatus]struct{}
	now              func() time.Time
	audit            *AuditRecorder
	metrics          Metrics
	hookErrorHandler HookErrorHandler
	timeout          time.Duration
}

type transitionOptions struct {
	metadata    TransitionMetadata
	beforeHooks []TransitionHook
	afterHooks  []TransitionHook
}

func (o *transitionOptions) cloneMetadata() TransitionMetadata {
	var cloned map[string]any
	if len(o.metadata.Metadata) > 0 {
		cloned = make(map[string]any, len(o.metadata.Metadata))
		for k, v := range o.metadata.Metadata {
			cloned[k] = v
		}
	}

	return TransitionMetadata{
		Reason:   o.metadata.Reason,
		Metadata: cloned,
	}
}

func (sm *recordStateMachine) Transition(ctx context.Context, actor *Principal, ref RecordRef, target RecordStatus, opts ...TransitionOption) (*TransitionResult, error) {
	result, err := sm.transition(ctx, actor, ref, target, opts...)
	sm.metrics.Transition(string(ref.Kind), string(target), transitionResult(err))
	return result, err
}

func (sm *recordStateMachine) transition(ctx context.Context, actor *Principal, ref RecordRef, target RecordStatus, opts ...TransitionOption) (*TransitionResult, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}

	if !actor.IsOwner() {
		return nil, newError(ErrForbidden, map[string]any{
			"actor":  actor.ID.String(),
			"record": ref.String(),
		})
	}

	if !ref.Kind.IsValid() {
		return nil, newError(ErrInvalidTransition, map[string]any{
			"kind":   ref.Kind,
			"reason": "unknown record kind",
		})
	}

	if target == "" {
		return nil, newError(ErrInvalidTransition, map[string]any{
			"reason": "target status is empty",
		})
	}

	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during transition")
	default:
	}

	options := sm.buildTransitionOptions(opts...)
	reviewedAt := sm.now().UTC()

	var tc TransitionContext
	hookFailed := false

	txCtx, cancel := context.WithTimeout(ctx, sm.timeout)
	defer cancel()

	err := sm.repo.RunInTx(txCtx, nil, func(ctx context.Context, tx bun.Tx) error {
		from, err := sm.repo.Reviews().StatusTx(ctx, tx, ref)
		if err != nil {
			return err
		}

		if !sm.CanTransition(ref.Kind, from, target) {
			return newError(ErrInvalidTransition, map[string]any{
				"record": ref.String(),
				"from":   from,
				"to":     target,
			})
		}

		tc = TransitionContext{
			Actor:  actor,
			Record: ref,
			From:   from,
			To:     target,
			Meta:   options.cloneMetadata(),
		}

		if err := sm.runHooks(ctx, options.beforeHooks, tc, HookPhaseBefore); err != nil {
			hookFailed = true
			return err
		}

		updated, err := sm.repo.Reviews().CompareAndSetStatusTx(ctx, tx, ref, from, target, actor.ID, reviewedAt)
		if err != nil {
			return err
		}
		if !updated {
			return newError(ErrInvalidTransition, map[string]any{
				"record": ref.String(),
				"from":   from,
				"to":     target,
				"reason": "status changed concurrently",
			})
		}
		return nil
	})
	if err != nil {
		if hookFailed {
			return nil, err
		}
		return nil, storeFailure(err, "status transition failed")
	}

	sm.recordAudit(ctx, tc)

	if err := sm.runHooks(ctx, options.afterHooks, tc, HookPhaseAfter); err != nil {
		return nil, err
	}

	return &TransitionResult{
		Record:     ref,
		From:       tc.From,
		To:         target,
		ReviewedAt: reviewedAt,
	}, nil
}

func (sm *recordStateMachine) CanTransition(kind RecordKind, from, to RecordStatus) bool {
	if allowed, ok := sm.transitions[kind][from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func (sm *recordStateMachine) runHooks(ctx context.Context, hooks []TransitionHook, data TransitionContext, phase TransitionHookPhase) error {
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, data); err != nil {
			if sm.hookErrorHandler == nil {
				return err
			}
			return sm.hookErrorHandler(ctx, phase, err, data)
		}
	}
	return nil
}

func (sm *recordStateMachine) buildTransitionOptions(opts ...TransitionOption) *transitionOptions {
	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	return options
}

func (sm *recordStateMachine) recordAudit(ctx context.Context, tc TransitionContext) {
	spec := kindSpecs[tc.Record.Kind]
	action := spec.rejectedAction
	if tc.To == spec.approvedStatus {
		action = spec.approvedAction
	}

	details := map[string]any{
		"from_status": string(tc.From),
		"to_status":   string(tc.To),
	}
	if tc.Meta.Reason != "" {
		details["reason"] = tc.Meta.Reason
	}
	for k, v := range tc.Meta.Metadata {
		details[k] = v
	}

	sm.audit.Record(ctx, action, tc.Actor.ActorRef(), details,
		WithAuditTarget(tc.Record.ID.String(), string(tc.Record.Kind)),
	)
}

func transitionResult(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case HasTextCode(err, TextCodeInvalidTransition):
		return "invalid"
	case HasTextCode(err, TextCodeForbidden), HasTextCode(err, TextCodeUnauthenticated):
		return "denied"
	default:
		return ResultFailure
	}
}

// String renders a transition for logs.
func (r TransitionResult) String() string {
	return fmt.Sprintf("%s %s -> %s", r.Record, r.From, r.To)
}
