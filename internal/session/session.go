// Package session issues, verifies and revokes session cookies.
//
// The cookie value is an HS256 JWT whose jti names a server-side session
// record. A token is only honoured while its record exists, so logout and
// "sign out everywhere" take effect at once. The principal is reloaded on
// every request, so role and grant changes apply immediately.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Domain errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrSessionInvalid  = errors.New("session invalid")
	ErrWeakSecret      = errors.New("session secret must be at least 32 bytes")
	ErrNoRepository    = errors.New("session repository is required")
)

const issuer = "embedgate"

// Session represents a user session
type Session struct {
	ID        string
	UserID    string
	IPAddress string
	UserAgent string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IsExpired checks if the session has expired at now
func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Client describes where a session was opened from
type Client struct {
	IPAddress string
	UserAgent string
}

// Repository defines the interface for session persistence
type Repository interface {
	// Create stores a new session
	Create(ctx context.Context, sess *Session) error

	// Get retrieves a session by ID
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, sessionID string) error

	// DeleteByUserID removes every session of a user
	DeleteByUserID(ctx context.Context, userID string) error

	// DeleteExpired removes sessions that expired before cutoff
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// Manager signs, parses and revokes session tokens
type Manager struct {
	secret   []byte
	lifetime time.Duration
	repo     Repository
	now      func() time.Time
}

// NewManager creates a manager. secret must be at least 32 bytes.
func NewManager(secret []byte, lifetime time.Duration, repo Repository) (*Manager, error) {
	if len(secret) < 32 {
		return nil, ErrWeakSecret
	}
	if repo == nil {
		return nil, ErrNoRepository
	}
	if lifetime <= 0 {
		lifetime = 24 * time.Hour
	}
	return &Manager{secret: secret, lifetime: lifetime, repo: repo, now: time.Now}, nil
}

// Lifetime returns the session lifetime, used for the cookie Max-Age.
func (m *Manager) Lifetime() time.Duration {
	return m.lifetime
}

// Issue stores a new session for userID and returns its signed token
func (m *Manager) Issue(ctx context.Context, userID string, client Client) (string, *Session, error) {
	if userID == "" {
		return "", nil, ErrSessionInvalid
	}

	jti := make([]byte, 16)
	if _, err := rand.Read(jti); err != nil {
		return "", nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	now := m.now().Truncate(time.Second)
	sess := &Session{
		ID:        hex.EncodeToString(jti),
		UserID:    userID,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.lifetime),
	}

	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   sess.UserID,
		ID:        sess.ID,
		IssuedAt:  jwt.NewNumericDate(sess.IssuedAt),
		ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign session: %w", err)
	}

	if err := m.repo.Create(ctx, sess); err != nil {
		return "", nil, fmt.Errorf("failed to store session: %w", err)
	}
	return signed, sess, nil
}

// Parse verifies token and returns its stored session. A validly signed
// token whose session was revoked is ErrSessionInvalid.
func (m *Manager) Parse(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrSessionInvalid
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, ErrSessionInvalid
	}

	sess, err := m.repo.Get(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, fmt.Errorf("%w: revoked", ErrSessionInvalid)
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if sess.UserID != claims.Subject {
		return nil, ErrSessionInvalid
	}
	if sess.IsExpired(m.now()) {
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// Revoke deletes one session
func (m *Manager) Revoke(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := m.repo.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// RevokeAll deletes every session of userID
func (m *Manager) RevokeAll(ctx context.Context, userID string) error {
	if err := m.repo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}
	return nil
}
