package portal

import (
	"context"
	"strings"

	"github.com/uptrace/bun"
)

// DuplicateGroup is a set of profiles sharing one normalized email.
type DuplicateGroup struct {
	Email   string
	Keep    *Principal
	Removed []*Principal
}

// FindDuplicateProfiles groups profiles whose emails only differ by case
// or surrounding whitespace. The oldest profile in each group is kept.
func FindDuplicateProfiles(ctx context.Context, principals Principals) ([]DuplicateGroup, error) {
	records, err := principals.List(ctx, PrincipalFilter{})
	if err != nil {
		return nil, err
	}

	order := []string{}
	byEmail := map[string][]*Principal{}
	for _, record := range records {
		key := normalizeEmail(record.Email)
		if _, ok := byEmail[key]; !ok {
			order = append(order, key)
		}
		byEmail[key] = append(byEmail[key], record)
	}

	groups := []DuplicateGroup{}
	for _, key := range order {
		members := byEmail[key]
		if len(members) < 2 {
			continue
		}
		// List is ordered by created_at, the first entry is the oldest.
		groups = append(groups, DuplicateGroup{
			Email:   key,
			Keep:    members[0],
			Removed: members[1:],
		})
	}
	return groups, nil
}

// MergeDuplicateProfiles deletes the extra profiles of every group. The
// kept profile inherits the strongest role and any approval held by a
// removed duplicate, and takes over a duplicate's credential when it has
// none of its own. Each group is merged in its own transaction. Role
// changes are audited with a system actor.
func MergeDuplicateProfiles(ctx context.Context, repo RepositoryManager, audit *AuditRecorder, groups []DuplicateGroup) (int, error) {
	removed := 0
	for _, group := range groups {
		from := ParseRole(string(group.Keep.Role))
		role := from
		err := repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			approved := group.Keep.IsApproved

			hasCredential := true
			if _, err := repo.Credentials().GetByIDTx(ctx, tx, group.Keep.ID); err != nil {
				if !HasTextCode(err, TextCodeNotFound) {
					return err
				}
				hasCredential = false
			}

			for _, dup := range group.Removed {
				if roleRank(ParseRole(string(dup.Role))) > roleRank(role) {
					role = ParseRole(string(dup.Role))
				}
				approved = approved || dup.IsApproved

				if !hasCredential {
					moved, err := repo.Credentials().ReassignTx(ctx, tx, dup.ID, group.Keep.ID)
					if err != nil {
						return err
					}
					hasCredential = moved
				} else if err := repo.Credentials().DeleteTx(ctx, tx, dup.ID); err != nil {
					return err
				}

				if err := repo.Principals().DeleteTx(ctx, tx, dup.ID); err != nil {
					return err
				}
			}

			if role != group.Keep.Role {
				if err := repo.Principals().SetRoleTx(ctx, tx, group.Keep.ID, role); err != nil {
					return err
				}
			}
			if approved != group.Keep.IsApproved {
				if err := repo.Principals().SetApprovedTx(ctx, tx, group.Keep.ID, approved); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return removed, storeFailure(err, "failed to merge duplicate profiles")
		}
		removed += len(group.Removed)

		if role != from {
			audit.Record(ctx, AuditPrincipalRoleChanged, ActorRef{ID: "dedup-profiles", Type: ActorTypeSystem}, map[string]any{
				"from_role": string(from),
				"to_role":   string(role),
				"reason":    "duplicate_merge",
			}, WithAuditTarget(group.Keep.ID.String(), "principal"))
		}
	}
	return removed, nil
}

func roleRank(r Role) int {
	switch r {
	case RoleOwner:
		return 3
	case RoleTeam:
		return 2
	case RoleUser:
		return 1
	default:
		return 0
	}
}

// SplitEmails parses a comma or newline separated list of emails.
func SplitEmails(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n' || r == ';'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = normalizeEmail(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
