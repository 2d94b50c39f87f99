package metrics_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-portal"
	"github.com/goliatone/go-portal/metrics"
)

func TestCollectorCountsPolicyEvents(t *testing.T) {
	c := metrics.New()

	c.InviteRedemption(portal.ResultSuccess)
	c.InviteRedemption(portal.ResultSuccess)
	c.InviteRedemption("invite_expired")
	c.Transition("order", "approved", portal.ResultSuccess)
	c.GuardDecision(portal.ReasonNoPrincipal)

	count, err := testutil.GatherAndCount(c.Registry(), "portal_invite_redemptions_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	expected := `
# HELP portal_transitions_total Record status transitions by kind, target status and result.
# TYPE portal_transitions_total counter
portal_transitions_total{kind="order",result="success",status="approved"} 1
`
	require.NoError(t, testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "portal_transitions_total"))
}

func TestAuditFailuresAreCounted(t *testing.T) {
	c := metrics.New()
	recorder := portal.NewAuditRecorder(
		portal.AuditSinkFunc(func(context.Context, portal.AuditEvent) error {
			return errors.New("store unavailable")
		}),
		portal.WithAuditMetrics(c),
	)

	recorder.Record(context.Background(), portal.AuditOrderApproved, portal.ActorRef{ID: "owner-1", Type: "owner"}, nil)

	expected := `
# HELP portal_audit_failures_total Audit entries that could not be written.
# TYPE portal_audit_failures_total counter
portal_audit_failures_total 1
`
	require.NoError(t, testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "portal_audit_failures_total"))
}

func TestHandlerServesMetrics(t *testing.T) {
	c := metrics.New()
	c.GuardDecision(portal.ReasonAllowed)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `portal_guard_decisions_total{decision="allowed"} 1`)
}
