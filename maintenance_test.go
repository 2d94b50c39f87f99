package portal_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-portal"
)

func insertRawPrincipal(t *testing.T, repo portal.RepositoryManager, email string, role portal.Role, approved bool, created time.Time) *portal.Principal {
	t.Helper()
	record := &portal.Principal{
		ID:         uuid.New(),
		Email:      email,
		Role:       role,
		IsApproved: approved,
		CreatedAt:  &created,
		UpdatedAt:  &created,
	}
	_, err := repo.DB().NewInsert().Model(record).Exec(context.Background())
	require.NoError(t, err)
	return record
}

func TestDeduplicateProfiles(t *testing.T) {
	repo := newTestRepo(t)
	base := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)

	oldest := insertRawPrincipal(t, repo, "dup@example.com", portal.RoleUser, false, base)
	insertRawPrincipal(t, repo, "Dup@Example.com", portal.RoleTeam, true, base.Add(time.Hour))
	insertRawPrincipal(t, repo, " DUP@example.com", portal.RoleUser, false, base.Add(2*time.Hour))
	single := insertRawPrincipal(t, repo, "solo@example.com", portal.RoleTeam, true, base)

	groups, err := portal.FindDuplicateProfiles(context.Background(), repo.Principals())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "dup@example.com", groups[0].Email)
	assert.Equal(t, oldest.ID, groups[0].Keep.ID)
	assert.Len(t, groups[0].Removed, 2)

	removed, err := portal.MergeDuplicateProfiles(context.Background(), repo, newTestAudit(repo), groups)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	all, err := repo.Principals().List(context.Background(), portal.PrincipalFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	kept, err := repo.Principals().GetByID(context.Background(), oldest.ID)
	require.NoError(t, err)
	assert.Equal(t, portal.RoleTeam, kept.Role)
	assert.True(t, kept.IsApproved)

	_, err = repo.Principals().GetByID(context.Background(), single.ID)
	require.NoError(t, err)

	groups, err = portal.FindDuplicateProfiles(context.Background(), repo.Principals())
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestMergeDuplicateProfilesMovesCredentialToKeptProfile(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)

	kept := insertRawPrincipal(t, repo, "moved@example.com", portal.RoleTeam, true, base)
	dup := insertRawPrincipal(t, repo, "Moved@example.com", portal.RoleTeam, true, base.Add(time.Hour))
	seedCredential(t, repo, dup, "secret-pass")

	groups, err := portal.FindDuplicateProfiles(ctx, repo.Principals())
	require.NoError(t, err)
	require.Len(t, groups, 1)

	_, err = portal.MergeDuplicateProfiles(ctx, repo, newTestAudit(repo), groups)
	require.NoError(t, err)

	cred, err := repo.Credentials().GetByIDTx(ctx, repo.DB(), kept.ID)
	require.NoError(t, err)
	assert.Equal(t, kept.ID, cred.ID)

	_, err = repo.Credentials().GetByIDTx(ctx, repo.DB(), dup.ID)
	assert.True(t, portal.HasTextCode(err, portal.TextCodeNotFound))
}

func TestMergeDuplicateProfilesDropsExtraCredentials(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)

	kept := insertRawPrincipal(t, repo, "both@example.com", portal.RoleUser, false, base)
	dup := insertRawPrincipal(t, repo, "BOTH@example.com", portal.RoleUser, false, base.Add(time.Hour))
	seedCredential(t, repo, kept, "kept-pass")
	seedCredential(t, repo, dup, "dup-pass")

	groups, err := portal.FindDuplicateProfiles(ctx, repo.Principals())
	require.NoError(t, err)

	removed, err := portal.MergeDuplicateProfiles(ctx, repo, newTestAudit(repo), groups)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	cred, err := repo.Credentials().GetByIDTx(ctx, repo.DB(), kept.ID)
	require.NoError(t, err)
	assert.Equal(t, "both@example.com", cred.Email)

	_, err = repo.Credentials().GetByIDTx(ctx, repo.DB(), dup.ID)
	assert.True(t, portal.HasTextCode(err, portal.TextCodeNotFound))
}

func TestMergeDuplicateProfilesAuditsRoleChange(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)

	kept := insertRawPrincipal(t, repo, "promo@example.com", portal.RoleUser, false, base)
	insertRawPrincipal(t, repo, "Promo@example.com", portal.RoleTeam, true, base.Add(time.Hour))
	same := insertRawPrincipal(t, repo, "flat@example.com", portal.RoleTeam, true, base)
	insertRawPrincipal(t, repo, "FLAT@example.com", portal.RoleUser, false, base.Add(time.Hour))

	groups, err := portal.FindDuplicateProfiles(ctx, repo.Principals())
	require.NoError(t, err)
	require.Len(t, groups, 2)

	_, err = portal.MergeDuplicateProfiles(ctx, repo, newTestAudit(repo), groups)
	require.NoError(t, err)

	entries := auditActions(t, repo, portal.AuditPrincipalRoleChanged)
	require.Len(t, entries, 1)
	assert.Equal(t, kept.ID.String(), entries[0].TargetID)
	assert.Equal(t, portal.ActorTypeSystem, entries[0].ActorType)
	assert.Equal(t, string(portal.RoleUser), entries[0].Details["from_role"])
	assert.Equal(t, string(portal.RoleTeam), entries[0].Details["to_role"])

	flat, err := repo.Principals().GetByID(ctx, same.ID)
	require.NoError(t, err)
	assert.Equal(t, portal.RoleTeam, flat.Role)
}

func TestMergeDuplicateProfilesWithoutRecorder(t *testing.T) {
	repo := newTestRepo(t)
	base := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)

	insertRawPrincipal(t, repo, "quiet@example.com", portal.RoleUser, false, base)
	insertRawPrincipal(t, repo, "QUIET@example.com", portal.RoleOwner, true, base.Add(time.Hour))

	groups, err := portal.FindDuplicateProfiles(context.Background(), repo.Principals())
	require.NoError(t, err)

	removed, err := portal.MergeDuplicateProfiles(context.Background(), repo, nil, groups)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestSplitEmails(t *testing.T) {
	got := portal.SplitEmails(" A@example.com,b@example.com\n;c@example.com ,, ")
	assert.Equal(t, []string{"a@example.com", "b@example.com", "c@example.com"}, got)
	assert.Empty(t, portal.SplitEmails(""))
}
