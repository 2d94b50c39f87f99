package portal

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

const (
	// InviteCodeLength is the number of characters in a generated code.
	InviteCodeLength = 12
	// DefaultInviteTTL is how long an issued code stays redeemable.
	DefaultInviteTTL = 7 * 24 * time.Hour

	inviteAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var inviteCodePattern = regexp.MustCompile(`^[A-Z0-9]{12}$`)

// GenerateInviteCode returns a random code drawn from A-Z0-9.
func GenerateInviteCode() (string, error) {
	var b strings.Builder
	b.Grow(InviteCodeLength)
	max := big.NewInt(int64(len(inviteAlphabet)))
	for i := 0; i < InviteCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(inviteAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// InviteCodeID derives the stable record id of a code.
func InviteCodeID(code string) uuid.UUID {
	id, err := hashid.NewUUID(NormalizeInviteCode(code))
	if err != nil {
		return uuid.New()
	}
	return id
}

// CheckRedeemable applies the redemption rules to code in order: expiry,
// prior use and bound email.
func CheckRedeemable(code *InviteCode, email string, now time.Time) error {
	if code == nil {
		return ErrNotFound
	}

	if !code.ExpiresAt.IsZero() && now.After(code.ExpiresAt) {
		return newError(ErrInviteExpired, map[string]any{
			"code":       code.Code,
			"expires_at": code.ExpiresAt,
		})
	}

	if code.IsUsed {
		return newError(ErrInviteAlreadyUsed, map[string]any{
			"code": code.Code,
		})
	}

	if bound, ok := code.BoundTo(); ok && !strings.EqualFold(bound, strings.TrimSpace(email)) {
		return newError(ErrInviteEmailMismatch, map[string]any{
			"code": code.Code,
		})
	}

	return nil
}
