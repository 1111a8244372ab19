package operator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robertarktes/ticket-issuance-and-admission/internal/domain"
)

// StaticDirectory holds operators read from configuration.
type StaticDirectory struct {
	operators map[string]domain.ScannerOperator
}

// ParseOperators reads "name:bcrypt-hash" pairs separated by commas.
func ParseOperators(list string) (*StaticDirectory, error) {
	d := &StaticDirectory{operators: map[string]domain.ScannerOperator{}}
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, hash, ok := strings.Cut(entry, ":")
		if !ok || name == "" || hash == "" {
			return nil, domain.Validationf("malformed scanner operator entry %q", entry)
		}
		d.operators[name] = domain.ScannerOperator{Username: name, PasswordHash: hash, Active: true}
	}
	return d, nil
}

func (d *StaticDirectory) Len() int {
	return len(d.operators)
}

func (d *StaticDirectory) FindOperator(ctx context.Context, username string) (*domain.ScannerOperator, error) {
	op, ok := d.operators[username]
	if !ok {
		return nil, nil
	}
	return &op, nil
}

type memorySession struct {
	username  string
	expiresAt time.Time
}

// MemorySessions keeps sessions in process; for development and tests.
type MemorySessions struct {
	mu       sync.Mutex
	sessions map[string]memorySession
	now      func() time.Time
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{sessions: map[string]memorySession{}, now: time.Now}
}

func (m *MemorySessions) PutSession(ctx context.Context, token, username string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[token] = memorySession{username: username, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemorySessions) GetSession(ctx context.Context, token string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return "", false, nil
	}
	if !m.now().Before(s.expiresAt) {
		delete(m.sessions, token)
		return "", false, nil
	}
	return s.username, true, nil
}
