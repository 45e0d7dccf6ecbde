// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package embedtoken issues and validates the short-lived encrypted tokens
// that bind an access decision to one dashboard.
//
// Wire format: base64url(nonce[24] || XChaCha20-Poly1305(cbor(Payload))).
// The key is derived from the application secret with HKDF-SHA256.
//
// Tokens are not individually revocable and carry no replay protection:
// the payload nonce is random per issuance but is never checked against a
// store, so a token may be used any number of times until it expires.
package embedtoken

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/opentrusty/embedgate/internal/dashboard"
	"github.com/opentrusty/embedgate/internal/identity"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

var (
	ErrExpired      = errors.New("embed token expired")
	ErrMalformed    = errors.New("embed token malformed")
	ErrNoPrincipal  = errors.New("embed token requires an authorized principal")
	ErrWeakSecret   = errors.New("embed token secret must be at least 32 bytes")
	ErrNoEmbedURL   = errors.New("dashboard has no embed url")
	ErrNoDashboard  = errors.New("dashboard is required")
	errShortPayload = errors.New("payload shorter than nonce")
)

// Default lifetimes
const (
	DefaultTenantTTL = time.Hour
	DefaultAdminTTL  = 2 * time.Hour
)

const (
	payloadNonceSize = 16
	keyInfo          = "embedgate embed token v1"
)

// additional authenticated data binds ciphertexts to this token type
var aad = []byte("embedgate/embed-token/v1")

// Payload is the decrypted content of an embed token
type Payload struct {
	DashboardID int64  `cbor:"dashboard_id"`
	EmbedURL    string `cbor:"embed_url"`
	Expires     int64  `cbor:"expires"`
	Nonce       []byte `cbor:"nonce"`
	IsAdmin     bool   `cbor:"is_admin,omitempty"`
}

// ExpiresAt returns the expiry instant.
func (p *Payload) ExpiresAt() time.Time {
	return time.Unix(p.Expires, 0)
}

// Config holds token service configuration
type Config struct {
	Secret    []byte
	TenantTTL time.Duration
	AdminTTL  time.Duration
}

// Service issues and validates embed tokens
type Service struct {
	aead      cipher.AEAD
	enc       cbor.EncMode
	dec       cbor.DecMode
	tenantTTL time.Duration
	adminTTL  time.Duration
	now       func() time.Time
	random    io.Reader
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService derives the token key from cfg.Secret and returns a ready service.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	if len(cfg.Secret) < 32 {
		return nil, ErrWeakSecret
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, cfg.Secret, nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive token key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create cbor encoder: %w", err)
	}
	dec, err := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create cbor decoder: %w", err)
	}

	s := &Service{
		aead:      aead,
		enc:       enc,
		dec:       dec,
		tenantTTL: cfg.TenantTTL,
		adminTTL:  cfg.AdminTTL,
		now:       time.Now,
		random:    rand.Reader,
	}
	if s.tenantTTL <= 0 {
		s.tenantTTL = DefaultTenantTTL
	}
	if s.adminTTL <= 0 {
		s.adminTTL = DefaultAdminTTL
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL returns the lifetime used for the given issuance context.
func (s *Service) TTL(adminContext bool) time.Duration {
	if adminContext {
		return s.adminTTL
	}
	return s.tenantTTL
}

// Issue seals a token for d. The caller must already have authorized p for
// one of d's tenants (or for the admin preview when adminContext is set).
func (s *Service) Issue(d *dashboard.Dashboard, p *identity.Principal, adminContext bool) (string, error) {
	if p == nil {
		return "", ErrNoPrincipal
	}
	if d == nil {
		return "", ErrNoDashboard
	}
	if d.EmbedURL == "" {
		return "", ErrNoEmbedURL
	}

	payload := Payload{
		DashboardID: d.ID,
		EmbedURL:    d.EmbedURL,
		Expires:     s.now().Add(s.TTL(adminContext)).Unix(),
		Nonce:       make([]byte, payloadNonceSize),
		IsAdmin:     adminContext,
	}
	if _, err := io.ReadFull(s.random, payload.Nonce); err != nil {
		return "", fmt.Errorf("failed to generate payload nonce: %w", err)
	}

	plaintext, err := s.enc.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}

	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+chacha20poly1305.Overhead)
	if _, err := io.ReadFull(s.random, nonce); err != nil {
		return "", fmt.Errorf("failed to generate cipher nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, plaintext, aad)

	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Validate opens token and checks expiry. Any decoding, authentication or
// structural failure is ErrMalformed; a well-formed token past its expiry is
// ErrExpired. No payload is returned alongside an error.
func (s *Service) Validate(token string) (*Payload, error) {
	payload, err := s.open(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if s.now().Unix() > payload.Expires {
		return nil, ErrExpired
	}
	return payload, nil
}

func (s *Service) open(token string) (*Payload, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	ns := s.aead.NonceSize()
	if len(raw) < ns+chacha20poly1305.Overhead {
		return nil, errShortPayload
	}

	plaintext, err := s.aead.Open(nil, raw[:ns], raw[ns:], aad)
	if err != nil {
		return nil, err
	}

	var payload Payload
	if err := s.dec.Unmarshal(plaintext, &payload); err != nil {
		return nil, err
	}
	if payload.DashboardID <= 0 || payload.EmbedURL == "" || len(payload.Nonce) != payloadNonceSize || payload.Expires == 0 {
		return nil, errors.New("incomplete payload")
	}
	return &payload, nil
}
