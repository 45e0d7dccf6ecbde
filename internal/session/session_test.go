package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("session-test-secret-0123456789abcdef")

type memRepo struct {
	mu       sync.Mutex
	sessions map[string]*Session
	err      error
}

func newMemRepo() *memRepo { return &memRepo{sessions: map[string]*Session{}} }

func (m *memRepo) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memRepo) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memRepo) DeleteByUserID(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *memRepo) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.ExpiresAt.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func newTestManager(t *testing.T, now *time.Time) *Manager {
	t.Helper()
	m, err := NewManager(testSecret, time.Hour, newMemRepo())
	require.NoError(t, err)
	m.now = func() time.Time { return *now }
	return m
}

// TestPurpose: Validates the session round trip and expiry.
// Scope: Unit Test
// Security: Session lifetime enforcement
// Expected: Parse returns the issued user id until expiry, ErrSessionExpired afterwards.
// Test Case ID: SES-01
func TestManager_IssueParse(t *testing.T) {
	now := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	m := newTestManager(t, &now)

	ctx := context.Background()

	token, sess, err := m.Issue(ctx, "user-1", Client{IPAddress: "10.0.0.1", UserAgent: "test"})
	require.NoError(t, err)
	assert.Len(t, sess.ID, 32)
	assert.Equal(t, now.Add(time.Hour), sess.ExpiresAt)

	got, err := m.Parse(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, "10.0.0.1", got.IPAddress)
	assert.False(t, got.IsExpired(now))

	now = now.Add(time.Hour + time.Minute)
	_, err = m.Parse(ctx, token)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

// TestPurpose: Validates that forged or altered sessions are rejected.
// Scope: Unit Test
// Security: Session forgery
// Expected: Wrong key, alg "none", tampered payload and garbage all yield ErrSessionInvalid.
// Test Case ID: SES-02
func TestManager_RejectsForgery(t *testing.T) {
	now := time.Now()
	ctx := context.Background()
	m := newTestManager(t, &now)
	token, _, err := m.Issue(ctx, "user-1", Client{})
	require.NoError(t, err)

	other, err := NewManager([]byte("another-secret-0123456789abcdef-xyz"), time.Hour, newMemRepo())
	require.NoError(t, err)
	foreign, _, err := other.Issue(ctx, "user-1", Client{})
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   "root",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	for name, tok := range map[string]string{
		"foreign key": foreign,
		"alg none":    unsigned,
		"tampered":    tampered,
		"garbage":     "abc",
		"empty":       "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := m.Parse(ctx, tok)
			assert.ErrorIs(t, err, ErrSessionInvalid)
		})
	}
}

func TestNewManager_WeakSecret(t *testing.T) {
	_, err := NewManager([]byte("short"), time.Hour, newMemRepo())
	assert.ErrorIs(t, err, ErrWeakSecret)

	_, err = NewManager(testSecret, time.Hour, nil)
	assert.ErrorIs(t, err, ErrNoRepository)

	m, err := NewManager(testSecret, 0, newMemRepo())
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, m.Lifetime())

	_, _, err = m.Issue(context.Background(), "", Client{})
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

// TestPurpose: Validates that revoked sessions stop working before they expire.
// Scope: Unit Test
// Security: Session revocation on logout (CWE-613)
// Expected: Parse fails with ErrSessionInvalid after Revoke; RevokeAll ends every session of the user only.
// Test Case ID: SES-03
func TestManager_Revoke(t *testing.T) {
	now := time.Now()
	ctx := context.Background()
	m := newTestManager(t, &now)

	token, sess, err := m.Issue(ctx, "user-1", Client{})
	require.NoError(t, err)
	_, err = m.Parse(ctx, token)
	require.NoError(t, err)

	require.NoError(t, m.Revoke(ctx, sess.ID))
	_, err = m.Parse(ctx, token)
	assert.ErrorIs(t, err, ErrSessionInvalid)

	laptop, _, err := m.Issue(ctx, "user-1", Client{})
	require.NoError(t, err)
	phone, _, err := m.Issue(ctx, "user-1", Client{})
	require.NoError(t, err)
	other, _, err := m.Issue(ctx, "user-2", Client{})
	require.NoError(t, err)

	require.NoError(t, m.RevokeAll(ctx, "user-1"))
	for _, tok := range []string{laptop, phone} {
		_, err = m.Parse(ctx, tok)
		assert.ErrorIs(t, err, ErrSessionInvalid)
	}
	_, err = m.Parse(ctx, other)
	assert.NoError(t, err)
}

func TestManager_RepositoryFailure(t *testing.T) {
	now := time.Now()
	ctx := context.Background()
	repo := newMemRepo()
	m, err := NewManager(testSecret, time.Hour, repo)
	require.NoError(t, err)
	m.now = func() time.Time { return now }

	token, _, err := m.Issue(ctx, "user-1", Client{})
	require.NoError(t, err)

	repo.err = errors.New("db down")
	_, err = m.Parse(ctx, token)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionInvalid)

	_, _, err = m.Issue(ctx, "user-1", Client{})
	assert.Error(t, err)
}
