package portal

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeUnauthenticated       = "UNAUTHENTICATED"
	TextCodeForbidden             = "FORBIDDEN"
	TextCodeNotFound              = "NOT_FOUND"
	TextCodeInviteExpired         = "INVITE_EXPIRED"
	TextCodeInviteAlreadyUsed     = "INVITE_ALREADY_USED"
	TextCodeInviteEmailMismatch   = "INVITE_EMAIL_MISMATCH"
	TextCodeInvalidTransition     = "INVALID_TRANSITION"
	TextCodeTransientStoreFailure = "TRANSIENT_STORE_FAILURE"
	TextCodeValidationFailed      = "VALIDATION_FAILED"
	TextCodeRateLimited           = "RATE_LIMITED"
	TextCodeInvalidCredentials    = "INVALID_CREDENTIALS"
)

// ErrUnauthenticated is returned when an operation requires a principal and none was resolved.
var ErrUnauthenticated = goerrors.New("authentication required", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(goerrors.CodeUnauthorized)

// ErrForbidden is returned on role or ownership mismatch.
var ErrForbidden = goerrors.New("insufficient privileges", goerrors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(goerrors.CodeForbidden)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = goerrors.New("record not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrInviteExpired is returned when an invite code is redeemed after its expiry.
var ErrInviteExpired = goerrors.New("invite code has expired", goerrors.CategoryValidation).
	WithTextCode(TextCodeInviteExpired).
	WithCode(goerrors.CodeBadRequest)

// ErrInviteAlreadyUsed is returned when an invite code was already redeemed.
var ErrInviteAlreadyUsed = goerrors.New("invite code has already been used", goerrors.CategoryConflict).
	WithTextCode(TextCodeInviteAlreadyUsed).
	WithCode(goerrors.CodeConflict)

// ErrInviteEmailMismatch is returned when the code is bound to a different email.
var ErrInviteEmailMismatch = goerrors.New("invite code is bound to a different email", goerrors.CategoryValidation).
	WithTextCode(TextCodeInviteEmailMismatch).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidTransition is returned when a requested status change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid status transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// ErrRateLimited is returned when a client exceeds the redemption attempt budget.
var ErrRateLimited = goerrors.New("too many attempts, try again later", goerrors.CategoryBadInput).
	WithTextCode(TextCodeRateLimited).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidCredentials is returned when login fails.
var ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// newError clones a sentinel and attaches metadata, leaving the shared value untouched.
func newError(base *goerrors.Error, metadata map[string]any) *goerrors.Error {
	clone := base.Clone()
	if clone == nil {
		return base
	}
	if len(metadata) > 0 {
		clone = clone.WithMetadata(metadata)
	}
	return clone
}

// storeFailure wraps an error coming from the persistence layer.
func storeFailure(err error, message string) error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode != "" {
		return err
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, message).
		WithTextCode(TextCodeTransientStoreFailure).
		WithCode(goerrors.CodeInternal)
}

func validationFailure(err error, message string) error {
	return goerrors.Wrap(err, goerrors.CategoryValidation, message).
		WithTextCode(TextCodeValidationFailed).
		WithCode(goerrors.CodeBadRequest)
}

// HasTextCode reports whether err carries the given text code.
func HasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

// IsUserFacing reports whether err is a validation outcome meant to be shown to the caller.
func IsUserFacing(err error) bool {
	switch {
	case HasTextCode(err, TextCodeInviteExpired),
		HasTextCode(err, TextCodeInviteAlreadyUsed),
		HasTextCode(err, TextCodeInviteEmailMismatch),
		HasTextCode(err, TextCodeInvalidTransition),
		HasTextCode(err, TextCodeValidationFailed),
		HasTextCode(err, TextCodeNotFound),
		HasTextCode(err, TextCodeRateLimited),
		HasTextCode(err, TextCodeInvalidCredentials):
		return true
	default:
		return false
	}
}

// IsRedirectable reports whether err should be answered with a redirect instead of a message.
func IsRedirectable(err error) bool {
	return HasTextCode(err, TextCodeUnauthenticated) || HasTextCode(err, TextCodeForbidden)
}

// ErrEmailTaken is returned when registering an email that already has a profile.
var ErrEmailTaken = goerrors.New("email is already registered", goerrors.CategoryConflict).
	WithTextCode(TextCodeValidationFailed).
	WithCode(goerrors.CodeConflict)
