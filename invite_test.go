package portal_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-portal"
)

var inviteNow = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type inviteFixture struct {
	repo    portal.RepositoryManager
	issue   *portal.IssueInviteHandler
	metrics *countingMetrics
}

func newInviteFixture(t *testing.T) *inviteFixture {
	t.Helper()
	repo := newTestRepo(t)
	return &inviteFixture{
		repo:    repo,
		issue:   portal.NewIssueInviteHandler(repo, newTestAudit(repo)).WithClock(fixedClock(inviteNow)),
		metrics: newCountingMetrics(),
	}
}

func (f *inviteFixture) redeemer(at time.Time, opts ...portal.RedeemInviteOption) *portal.RedeemInviteHandler {
	base := []portal.RedeemInviteOption{
		portal.WithRedeemAuditRecorder(newTestAudit(f.repo)),
		portal.WithRedeemPasswordHasher(fastHasher),
		portal.WithRedeemMetrics(f.metrics),
		portal.WithRedeemClock(fixedClock(at)),
	}
	return portal.NewRedeemInviteHandler(f.repo, append(base, opts...)...)
}

func (f *inviteFixture) issueCode(t *testing.T, code, email string, ttl time.Duration) *portal.InviteCode {
	t.Helper()
	invite, err := f.issue.ExecuteAsSystem(context.Background(), portal.IssueInviteMessage{
		Code:  code,
		Email: email,
		TTL:   ttl,
	})
	require.NoError(t, err)
	return invite
}

func TestRedeemBoundInvite(t *testing.T) {
	f := newInviteFixture(t)
	f.issueCode(t, "ABC123XYZ987", "new.member@example.com", 48*time.Hour)

	principal, err := f.redeemer(inviteNow.Add(time.Hour)).Execute(context.Background(), portal.RedeemInviteMessage{
		Code:        "abc123xyz987",
		Email:       "New.Member@example.com",
		Password:    "correct horse",
		DisplayName: "New Member",
	})
	require.NoError(t, err)

	assert.Equal(t, portal.RoleTeam, principal.Role)
	assert.False(t, principal.IsApproved)
	assert.Equal(t, "new.member@example.com", principal.Email)
	assert.Equal(t, "ABC123XYZ987", principal.InviteCodeUsed)

	stored, err := f.repo.InviteCodes().GetByCode(context.Background(), "ABC123XYZ987")
	require.NoError(t, err)
	assert.True(t, stored.IsUsed)
	require.NotNil(t, stored.UsedBy)
	assert.Equal(t, principal.ID, *stored.UsedBy)

	entries := auditActions(t, f.repo, portal.AuditInviteRedeemed)
	require.Len(t, entries, 1)
	assert.Equal(t, principal.ID.String(), entries[0].PerformedBy)
	assert.Equal(t, 1, f.metrics.redeemed[portal.ResultSuccess])

	_, err = f.redeemer(inviteNow.Add(2*time.Hour)).Execute(context.Background(), portal.RedeemInviteMessage{
		Code:     "ABC123XYZ987",
		Email:    "new.member@example.com",
		Password: "correct horse",
	})
	require.Error(t, err)
	assert.True(t, portal.HasTextCode(err, portal.TextCodeInviteAlreadyUsed))
	assert.Equal(t, 1, f.metrics.redeemed["invite_already_used"])
}

func TestRedeemExpiredInvite(t *testing.T) {
	f := newInviteFixture(t)
	f.issueCode(t, "EXP1RED00001", "", time.Hour)

	_, err := f.redeemer(inviteNow.Add(2*time.Hour)).Execute(context.Background(), portal.RedeemInviteMessage{
		Code:     "EXP1RED00001",
		Email:    "late@example.com",
		Password: "password123",
	})
	require.Error(t, err)
	assert.True(t, portal.HasTextCode(err, portal.TextCodeInviteExpired))

	stored, err := f.repo.InviteCodes().GetByCode(context.Background(), "EXP1RED00001")
	require.NoError(t, err)
	assert.False(t, stored.IsUsed)

	_, err = f.repo.Principals().GetByEmail(context.Background(), "late@example.com")
	assert.True(t, portal.HasTextCode(err, portal.TextCodeNotFound))
}

func TestRedeemEmailMismatch(t *testing.T) {
	f := newInviteFixture(t)
	f.issueCode(t, "B0UND0000001", "invited@example.com", 0)

	_, err := f.redeemer(inviteNow).Execute(context.Background(), portal.RedeemInviteMessage{
		Code:     "B0UND0000001",
		Email:    "someone.else@example.com",
		Password: "password123",
	})
	require.Error(t, err)
	assert.True(t, portal.HasTextCode(err, portal.TextCodeInviteEmailMismatch))
}

func TestRedeemWildcardInviteAcceptsAnyEmail(t *testing.T) {
	f := newInviteFixture(t)
	f.issueCode(t, "W1LDCARD0001", portal.InviteWildcardEmail, 0)

	principal, err := f.redeemer(inviteNow).Execute(context.Background(), portal.RedeemInviteMessage{
		Code:     "W1LDCARD0001",
		Email:    "anyone@example.com",
		Password: "password123",
	})
	require.NoError(t, err)
	assert.Equal(t, "anyone", principal.DisplayName)
}

func TestRedeemUnknownCode(t *testing.T) {
	f := newInviteFixture(t)

	for _, code := range []string{"N0TAC0DE0000", "SHORT", "lower-case-ish"} {
		_, err := f.redeemer(inviteNow).Execute(context.Background(), portal.RedeemInviteMessage{
			Code:     code,
			Email:    "who@example.com",
			Password: "password123",
		})
		assert.True(t, portal.HasTextCode(err, portal.TextCodeNotFound), code)
	}
}

func TestRedeemRejectsMalformedPayload(t *testing.T) {
	f := newInviteFixture(t)

	_, err := f.redeemer(inviteNow).Execute(context.Background(), portal.RedeemInviteMessage{
		Code:     "short",
		Email:    "not-an-email",
		Password: "pw",
	})
	assert.True(t, portal.HasTextCode(err, portal.TextCodeValidationFailed))
}

func TestConcurrentRedemptionConsumesOnce(t *testing.T) {
	f := newInviteFixture(t)
	f.issueCode(t, "RACE00000001", "", 0)

	redeem := f.redeemer(inviteNow)
	emails := []string{"first@example.com", "second@example.com"}

	var wg sync.WaitGroup
	errs := make([]error, len(emails))
	for i, email := range emails {
		wg.Add(1)
		go func(i int, email string) {
			defer wg.Done()
			_, errs[i] = redeem.Execute(context.Background(), portal.RedeemInviteMessage{
				Code:     "RACE00000001",
				Email:    email,
				Password: "password123",
			})
		}(i, email)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, portal.HasTextCode(err, portal.TextCodeInviteAlreadyUsed), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	team, err := f.repo.Principals().List(context.Background(), portal.PrincipalFilter{Role: portal.RoleTeam})
	require.NoError(t, err)
	assert.Len(t, team, 1)
}

func TestRedeemLinkedToApprovedJoinRequest(t *testing.T) {
	f := newInviteFixture(t)
	owner := seedPrincipal(t, f.repo, "owner@example.com", portal.RoleOwner, true)

	req, err := f.repo.Reviews().CreateJoinRequest(context.Background(), &portal.JoinRequest{
		Name:  "Applicant",
		Email: "applicant@example.com",
	})
	require.NoError(t, err)

	sm := portal.NewRecordStateMachine(f.repo)
	_, err = sm.Transition(context.Background(), owner, portal.RecordRef{Kind: portal.KindJoinRequest, ID: req.ID}, portal.StatusApproved)
	require.NoError(t, err)

	invite, err := f.issue.Execute(context.Background(), owner, portal.IssueInviteMessage{
		Email:         "applicant@example.com",
		JoinRequestID: &req.ID,
	})
	require.NoError(t, err)
	assert.Len(t, invite.Code, portal.InviteCodeLength)
	require.NotNil(t, invite.CreatedBy)
	assert.Equal(t, owner.ID, *invite.CreatedBy)

	principal, err := f.redeemer(inviteNow).Execute(context.Background(), portal.RedeemInviteMessage{
		Code:     invite.Code,
		Email:    "applicant@example.com",
		Password: "password123",
	})
	require.NoError(t, err)
	assert.True(t, principal.IsApproved)
}

func TestRedeemRateLimited(t *testing.T) {
	f := newInviteFixture(t)
	redeem := f.redeemer(inviteNow, portal.WithRedeemLimiter(portal.NewAttemptLimiter(time.Hour, 1)))

	msg := portal.RedeemInviteMessage{
		Code:      "N0TAC0DE0000",
		Email:     "guess@example.com",
		Password:  "password123",
		ClientKey: "10.0.0.7",
	}

	_, err := redeem.Execute(context.Background(), msg)
	assert.True(t, portal.HasTextCode(err, portal.TextCodeNotFound))

	_, err = redeem.Execute(context.Background(), msg)
	assert.True(t, portal.HasTextCode(err, portal.TextCodeRateLimited))
}

func TestIssueInviteRequiresOwner(t *testing.T) {
	f := newInviteFixture(t)
	member := seedPrincipal(t, f.repo, "member@example.com", portal.RoleTeam, true)

	_, err := f.issue.Execute(context.Background(), member, portal.IssueInviteMessage{})
	assert.True(t, portal.HasTextCode(err, portal.TextCodeForbidden))

	_, err = f.issue.Execute(context.Background(), nil, portal.IssueInviteMessage{})
	assert.True(t, portal.HasTextCode(err, portal.TextCodeUnauthenticated))
}

func TestCheckRedeemableOrder(t *testing.T) {
	now := inviteNow

	tests := []struct {
		name  string
		code  *portal.InviteCode
		email string
		want  string
	}{
		{
			name: "expiry wins over prior use",
			code: &portal.InviteCode{Code: "A", IsUsed: true, Email: "x@example.com", ExpiresAt: now.Add(-time.Minute)},
			want: portal.TextCodeInviteExpired,
		},
		{
			name:  "prior use wins over email",
			code:  &portal.InviteCode{Code: "B", IsUsed: true, Email: "x@example.com", ExpiresAt: now.Add(time.Hour)},
			email: "y@example.com",
			want:  portal.TextCodeInviteAlreadyUsed,
		},
		{
			name:  "bound email compared case insensitively",
			code:  &portal.InviteCode{Code: "C", Email: "X@Example.com", ExpiresAt: now.Add(time.Hour)},
			email: "x@example.com",
		},
		{
			name:  "zero expiry never expires",
			code:  &portal.InviteCode{Code: "D"},
			email: "z@example.com",
		},
		{
			name: "missing code",
			want: portal.TextCodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := portal.CheckRedeemable(tt.code, tt.email, now)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, portal.HasTextCode(err, tt.want), "got %v", err)
		})
	}
}

func TestGenerateInviteCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := portal.GenerateInviteCode()
		require.NoError(t, err)
		assert.Regexp(t, `^[A-Z0-9]{12}$`, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 45)
}
