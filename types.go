package portal

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Logger is the structured logger used across the package. Args are
// key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds portal options
type Config interface {
	GetSigningKey() string
	GetContextKey() string
	GetTokenExpiration() int
	GetTokenLookup() string
	GetAuthScheme() string
	GetIssuer() string
	GetAudience() []string
	GetLoginRoute() string
	GetHomeRoute() string
}

// Session holds the attributes of a validated session token
type Session interface {
	Subject() string
	UserID() string
	Expires() time.Time
	IssuedAt() time.Time
}

// TokenValidator validates a raw session token.
type TokenValidator interface {
	Validate(token string) (*SessionClaims, error)
}

// IdentityProvider verifies local credentials.
type IdentityProvider interface {
	VerifyIdentity(ctx context.Context, email, password string) (*Credential, error)
}

// PrincipalLookup loads a stored principal record.
type PrincipalLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Principal, error)
}

// PasswordAuthenticator hashes and compares passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

type logrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger adapts a logrus logger to Logger. A nil logger
// falls back to a text logger on stderr.
func NewLogrusLogger(l *logrus.Logger, component string) Logger {
	if l == nil {
		l = logrus.New()
		l.SetOutput(os.Stderr)
	}
	entry := logrus.NewEntry(l)
	if component != "" {
		entry = entry.WithField("component", component)
	}
	return logrusLogger{entry: entry}
}

func (l logrusLogger) Debug(msg string, args ...any) {
	l.entry.WithFields(toFields(args)).Debug(msg)
}

func (l logrusLogger) Info(msg string, args ...any) {
	l.entry.WithFields(toFields(args)).Info(msg)
}

func (l logrusLogger) Warn(msg string, args ...any) {
	l.entry.WithFields(toFields(args)).Warn(msg)
}

func (l logrusLogger) Error(msg string, args ...any) {
	l.entry.WithFields(toFields(args)).Error(msg)
}

func toFields(args []any) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = "arg"
		}
		if i+1 >= len(args) {
			fields[key] = "(missing)"
			break
		}
		fields[key] = args[i+1]
	}
	return fields
}

func defLogger() Logger {
	return NewLogrusLogger(logrus.StandardLogger(), "portal")
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger()
	}
	return l
}
