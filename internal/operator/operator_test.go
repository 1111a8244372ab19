package operator

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func hash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

type brokenDirectory struct{}

func (brokenDirectory) FindOperator(ctx context.Context, username string) (*domain.ScannerOperator, error) {
	return nil, errors.New("mongo down")
}

func TestAuthenticator_LoginAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	dir, err := ParseOperators("gate1:" + hash(t, "open-sesame") + ", gate2:" + hash(t, "other"))
	require.NoError(t, err)
	require.Equal(t, 2, dir.Len())
	auth := NewAuthenticator(dir, NewMemorySessions(), time.Hour)

	s, err := auth.Login(ctx, " gate1 ", "open-sesame")
	require.NoError(t, err)
	assert.Equal(t, "gate1", s.Username)
	assert.NotEmpty(t, s.Token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), s.ExpiresAt, time.Minute)

	name, err := auth.Authenticate(ctx, s.Token)
	require.NoError(t, err)
	assert.Equal(t, "gate1", name)
}

func TestAuthenticator_LoginRejections(t *testing.T) {
	ctx := context.Background()
	dir, err := ParseOperators("gate1:" + hash(t, "open-sesame"))
	require.NoError(t, err)
	dir.operators["retired"] = domain.ScannerOperator{Username: "retired", PasswordHash: hash(t, "pw"), Active: false}
	auth := NewAuthenticator(dir, NewMemorySessions(), time.Hour)

	cases := map[string]struct {
		user, pass string
		kind       error
	}{
		"wrong password": {"gate1", "guess", domain.ErrUnauthorized},
		"unknown user":   {"nobody", "open-sesame", domain.ErrUnauthorized},
		"inactive":       {"retired", "pw", domain.ErrUnauthorized},
		"empty password": {"gate1", "", domain.ErrValidation},
		"empty username": {"  ", "open-sesame", domain.ErrValidation},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := auth.Login(ctx, tc.user, tc.pass)
			assert.True(t, errors.Is(err, tc.kind), "got %v", err)
		})
	}

	_, err = NewAuthenticator(brokenDirectory{}, NewMemorySessions(), time.Hour).Login(ctx, "gate1", "open-sesame")
	assert.Equal(t, domain.KindDependencyUnavailable, domain.KindOf(err))
}

func TestAuthenticator_RejectsUnknownAndExpiredSessions(t *testing.T) {
	ctx := context.Background()
	dir, err := ParseOperators("gate1:" + hash(t, "open-sesame"))
	require.NoError(t, err)
	sessions := NewMemorySessions()
	clock := time.Now()
	sessions.now = func() time.Time { return clock }
	auth := NewAuthenticator(dir, sessions, time.Hour)

	_, err = auth.Authenticate(ctx, "")
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	_, err = auth.Authenticate(ctx, "made-up")
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))

	s, err := auth.Login(ctx, "gate1", "open-sesame")
	require.NoError(t, err)
	clock = clock.Add(2 * time.Hour)
	_, err = auth.Authenticate(ctx, s.Token)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestParseOperators_Malformed(t *testing.T) {
	_, err := ParseOperators("gate1")
	assert.True(t, errors.Is(err, domain.ErrValidation))

	dir, err := ParseOperators("")
	require.NoError(t, err)
	assert.Zero(t, dir.Len())
}
