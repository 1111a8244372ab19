// Package operator signs in the gate staff who run admission scanners and
// resolves their session tokens.
package operator

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/adapters/mongo"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

type Directory interface {
	// FindOperator returns nil without an error for an unknown username.
	FindOperator(ctx context.Context, username string) (*domain.ScannerOperator, error)
}

var _ Directory = (*mongo.OperatorRepository)(nil)

type SessionStore interface {
	PutSession(ctx context.Context, token, username string, ttl time.Duration) error
	GetSession(ctx context.Context, token string) (string, bool, error)
}

type Session struct {
	Token     string
	Username  string
	ExpiresAt time.Time
}

type Authenticator struct {
	directory Directory
	sessions  SessionStore
	ttl       time.Duration
	now       func() time.Time
}

func NewAuthenticator(directory Directory, sessions SessionStore, ttl time.Duration) *Authenticator {
	return &Authenticator{
		directory: directory,
		sessions:  sessions,
		ttl:       ttl,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Login checks the password against the stored bcrypt hash and opens a
// session. Unknown, inactive and wrong-password logins look the same.
func (a *Authenticator) Login(ctx context.Context, username, password string) (Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Session{}, domain.Validationf("username and password are required")
	}
	op, err := a.directory.FindOperator(ctx, username)
	if err != nil {
		return Session{}, domain.Unavailable(err, "operator directory")
	}
	if op == nil || !op.Active || bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)) != nil {
		return Session{}, domain.Unauthorizedf("invalid username or password")
	}

	s := Session{Token: uuid.NewString(), Username: op.Username, ExpiresAt: a.now().Add(a.ttl)}
	if err := a.sessions.PutSession(ctx, s.Token, s.Username, a.ttl); err != nil {
		return Session{}, domain.Unavailable(err, "store scanner session")
	}
	return s, nil
}

// Authenticate returns the operator holding token.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", domain.Unauthorizedf("missing scanner session token")
	}
	username, ok, err := a.sessions.GetSession(ctx, token)
	if err != nil {
		return "", domain.Unavailable(err, "load scanner session")
	}
	if !ok {
		return "", domain.Unauthorizedf("invalid or expired scanner session")
	}
	return username, nil
}
