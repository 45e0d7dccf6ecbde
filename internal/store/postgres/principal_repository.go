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

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/opentrusty/embedgate/internal/identity"
)

// grants are folded into the principal row so one query resolves the full
// tenant association set
const principalColumns = `
	u.id, u.email, u.name, u.role, u.tenant_id, u.password_hash, u.is_active,
	u.failed_login_attempts, u.locked_until, u.created_at, u.updated_at,
	ARRAY(SELECT a.tenant_id FROM tenant_user_access a WHERE a.user_id = u.id ORDER BY a.tenant_id)`

// PrincipalRepository implements identity.Repository
type PrincipalRepository struct {
	db *DB
}

// NewPrincipalRepository creates a new principal repository
func NewPrincipalRepository(db *DB) *PrincipalRepository {
	return &PrincipalRepository{db: db}
}

// Create inserts the principal and its additional tenant grants in one transaction
func (r *PrincipalRepository) Create(ctx context.Context, p *identity.Principal) error {
	if err := p.Validate(); err != nil {
		return err
	}
	now := time.Now()

	err := pgx.BeginFunc(ctx, r.db.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO users (
				id, email, name, role, tenant_id, password_hash, is_active,
				failed_login_attempts, locked_until, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`,
			p.ID, p.Email, p.Name, p.Role.String(), p.PrimaryTenantID, p.PasswordHash, p.Active,
			p.FailedLoginAttempts, p.LockedUntil, now, now,
		); err != nil {
			return err
		}

		for _, tenantID := range p.AdditionalTenantIDs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO tenant_user_access (user_id, tenant_id, granted_at)
				VALUES ($1, $2, $3)
				ON CONFLICT DO NOTHING
			`, p.ID, tenantID, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return identity.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to insert principal: %w", err)
	}

	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

// GetByID retrieves a principal by ID
func (r *PrincipalRepository) GetByID(ctx context.Context, id string) (*identity.Principal, error) {
	row := r.db.pool.QueryRow(ctx, `SELECT `+principalColumns+` FROM users u WHERE u.id = $1`, id)
	return scanPrincipal(row)
}

// GetByEmail retrieves a principal by email
func (r *PrincipalRepository) GetByEmail(ctx context.Context, email string) (*identity.Principal, error) {
	row := r.db.pool.QueryRow(ctx, `SELECT `+principalColumns+` FROM users u WHERE u.email = $1`, email)
	return scanPrincipal(row)
}

// List returns all principals ordered by email
func (r *PrincipalRepository) List(ctx context.Context) ([]*identity.Principal, error) {
	rows, err := r.db.pool.Query(ctx, `SELECT `+principalColumns+` FROM users u ORDER BY u.email`)
	if err != nil {
		return nil, fmt.Errorf("failed to list principals: %w", err)
	}
	defer rows.Close()

	var principals []*identity.Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		principals = append(principals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate principals: %w", err)
	}
	return principals, nil
}

// UpdateLockout updates user lockout status
func (r *PrincipalRepository) UpdateLockout(ctx context.Context, id string, failedAttempts int, lockedUntil *time.Time) error {
	query := `
		UPDATE users
		SET failed_login_attempts = $1, locked_until = $2, updated_at = NOW()
		WHERE id = $3
	`
	_, err := r.db.pool.Exec(ctx, query, failedAttempts, lockedUntil, id)
	if err != nil {
		return fmt.Errorf("failed to update user lockout status: %w", err)
	}
	return nil
}

// ExistsGlobalAdmin reports whether any global admin exists
func (r *PrincipalRepository) ExistsGlobalAdmin(ctx context.Context) (bool, error) {
	var exists bool
	err := r.db.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM users WHERE role = $1)
	`, identity.RoleGlobalAdmin.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check global admin: %w", err)
	}
	return exists, nil
}

// scanPrincipal does not call Validate: stored rows that break the role
// invariant must stay readable so the security audit can report them.
func scanPrincipal(row pgx.Row) (*identity.Principal, error) {
	var (
		p    identity.Principal
		role string
	)
	err := row.Scan(
		&p.ID, &p.Email, &p.Name, &role, &p.PrimaryTenantID, &p.PasswordHash, &p.Active,
		&p.FailedLoginAttempts, &p.LockedUntil, &p.CreatedAt, &p.UpdatedAt,
		&p.AdditionalTenantIDs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get principal: %w", err)
	}

	if p.Role, err = identity.ParseRole(role); err != nil {
		return nil, fmt.Errorf("principal %s: %w", p.ID, err)
	}
	return &p, nil
}
