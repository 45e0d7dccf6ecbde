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

package identity

import (
	"context"
	"errors"
	"time"
)

// Domain errors
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUserAlreadyExists    = errors.New("user already exists")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInvalidEmail         = errors.New("invalid email address")
	ErrWeakPassword         = errors.New("password does not meet security requirements")
	ErrAccountLocked        = errors.New("account is locked")
	ErrAccountInactive      = errors.New("account is inactive")
	ErrInvalidRole          = errors.New("invalid role")
	ErrConflictingRoleFlags = errors.New("user cannot be both global admin and tenant admin")
	ErrGlobalAdminHasTenant = errors.New("global admin must not have a primary tenant")
	ErrTenantRequired       = errors.New("tenant admin and regular user require a primary tenant")
)

// Tenant Boundary Principles:
// 1. A global admin belongs to no tenant
// 2. Every other principal belongs to exactly one primary tenant
// 3. Additional grants only ever widen access, they never replace the primary tenant

// Principal is an authenticated actor with a role and tenant associations.
type Principal struct {
	ID                  string
	Email               string
	Name                string
	Role                Role
	PrimaryTenantID     *string
	AdditionalTenantIDs []string
	PasswordHash        string
	Active              bool
	FailedLoginAttempts int
	LockedUntil         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NewPrincipal builds a principal and rejects role/tenant combinations that
// violate the tenant boundary rules.
func NewPrincipal(id, email, name string, role Role, primaryTenantID *string, grants ...string) (*Principal, error) {
	p := &Principal{
		ID:                  id,
		Email:               email,
		Name:                name,
		Role:                role,
		PrimaryTenantID:     primaryTenantID,
		AdditionalTenantIDs: grants,
		Active:              true,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the role invariant. It never mutates the principal.
func (p *Principal) Validate() error {
	if !p.Role.Valid() {
		return ErrInvalidRole
	}
	hasTenant := p.PrimaryTenantID != nil && *p.PrimaryTenantID != ""
	if p.Role == RoleGlobalAdmin && hasTenant {
		return ErrGlobalAdminHasTenant
	}
	if p.Role.RequiresTenant() && !hasTenant {
		return ErrTenantRequired
	}
	return nil
}

// PrimaryTenant returns the primary tenant ID or "" for global admins.
func (p *Principal) PrimaryTenant() string {
	if p == nil || p.PrimaryTenantID == nil {
		return ""
	}
	return *p.PrimaryTenantID
}

// HasGrant reports whether tenantID is among the additional tenant grants.
func (p *Principal) HasGrant(tenantID string) bool {
	for _, g := range p.AdditionalTenantIDs {
		if g == tenantID {
			return true
		}
	}
	return false
}

// IsLocked reports whether the account is locked at the given instant.
func (p *Principal) IsLocked(now time.Time) bool {
	return p.LockedUntil != nil && p.LockedUntil.After(now)
}

// Repository is the identity lookup contract.
type Repository interface {
	// Create persists a new principal together with its grants
	Create(ctx context.Context, p *Principal) error

	// GetByID retrieves a principal with role and grants resolved
	GetByID(ctx context.Context, id string) (*Principal, error)

	// GetByEmail retrieves a principal by email
	GetByEmail(ctx context.Context, email string) (*Principal, error)

	// List returns all principals
	List(ctx context.Context) ([]*Principal, error)

	// UpdateLockout updates failed login attempts and lock expiry
	UpdateLockout(ctx context.Context, id string, failedAttempts int, lockedUntil *time.Time) error

	// ExistsGlobalAdmin reports whether any global admin exists
	ExistsGlobalAdmin(ctx context.Context) (bool, error)
}
