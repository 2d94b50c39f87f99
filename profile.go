package portal

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

// DefaultPhoneRegion is used to parse phone numbers without a country
// prefix. Set it once at startup.
var DefaultPhoneRegion = "US"

// UpdateProfileMessage edits the caller's own profile.
type UpdateProfileMessage struct {
	DisplayName string `json:"display_name"`
	Bio         string `json:"bio"`
	Phone       string `json:"phone_number"`
}

func (m UpdateProfileMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.DisplayName, validation.Required, validation.Length(1, 120)),
		validation.Field(&m.Bio, validation.Length(0, 2000)),
		validation.Field(&m.Phone, validation.By(validatePhone)),
	)
}

func validatePhone(value any) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if _, err := NormalizePhone(s); err != nil {
		return validation.NewError("validation_phone_invalid", "must be a valid phone number")
	}
	return nil
}

// NormalizePhone parses number and formats it as E.164.
func NormalizePhone(number string) (string, error) {
	parsed, err := phonenumbers.Parse(strings.TrimSpace(number), DefaultPhoneRegion)
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", validation.NewError("validation_phone_invalid", "must be a valid phone number")
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}

// UpdateProfile lets a principal edit their display name, bio and phone.
func (w *Workflows) UpdateProfile(ctx context.Context, actor *Principal, msg UpdateProfileMessage) (*Principal, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}

	msg.DisplayName = strings.TrimSpace(msg.DisplayName)
	msg.Bio = strings.TrimSpace(msg.Bio)
	if err := msg.Validate(); err != nil {
		return nil, validationFailure(err, "invalid profile payload")
	}

	phone := ""
	if strings.TrimSpace(msg.Phone) != "" {
		normalized, err := NormalizePhone(msg.Phone)
		if err != nil {
			return nil, validationFailure(err, "invalid phone number")
		}
		phone = normalized
	}

	var updated *Principal
	err := w.runInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		current, err := w.repo.Principals().GetByIDTx(ctx, tx, actor.ID)
		if err != nil {
			return err
		}
		current.DisplayName = msg.DisplayName
		current.Bio = msg.Bio
		current.Phone = phone
		if err := w.repo.Principals().UpdateProfileTx(ctx, tx, current); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
