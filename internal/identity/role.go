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

import "fmt"

// Role is the single role a principal holds. The zero value is invalid.
type Role uint8

// -----------------------------------------------------------------------------
// Roles
// -----------------------------------------------------------------------------

const (
	roleUnknown Role = iota
	RoleGlobalAdmin
	RoleTenantAdmin
	RoleRegularUser
)

// Persisted role names
const (
	RoleNameGlobalAdmin = "global_admin"
	RoleNameTenantAdmin = "tenant_admin"
	RoleNameRegularUser = "regular_user"
)

// String returns the persisted name of the role.
func (r Role) String() string {
	switch r {
	case RoleGlobalAdmin:
		return RoleNameGlobalAdmin
	case RoleTenantAdmin:
		return RoleNameTenantAdmin
	case RoleRegularUser:
		return RoleNameRegularUser
	default:
		return "unknown"
	}
}

// Valid reports whether r is one of the three defined roles.
func (r Role) Valid() bool {
	return r >= RoleGlobalAdmin && r <= RoleRegularUser
}

// RequiresTenant reports whether principals holding r must have a primary tenant.
func (r Role) RequiresTenant() bool {
	return r == RoleTenantAdmin || r == RoleRegularUser
}

// ParseRole converts a persisted role name into a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case RoleNameGlobalAdmin:
		return RoleGlobalAdmin, nil
	case RoleNameTenantAdmin:
		return RoleTenantAdmin, nil
	case RoleNameRegularUser:
		return RoleRegularUser, nil
	default:
		return roleUnknown, fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// RoleFromFlags maps the legacy is_admin / is_tenant_admin column pair to a Role.
// Both flags set is a data error and is rejected rather than resolved.
func RoleFromFlags(isAdmin, isTenantAdmin bool) (Role, error) {
	switch {
	case isAdmin && isTenantAdmin:
		return roleUnknown, ErrConflictingRoleFlags
	case isAdmin:
		return RoleGlobalAdmin, nil
	case isTenantAdmin:
		return RoleTenantAdmin, nil
	default:
		return RoleRegularUser, nil
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, ErrInvalidRole
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
