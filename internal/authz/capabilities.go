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

package authz

import (
	"github.com/opentrusty/embedgate/internal/identity"
	"github.com/opentrusty/embedgate/internal/tenant"
)

// -----------------------------------------------------------------------------
// Capability Predicates
// Every visibility or routing decision outside tenant access goes through one
// of these. Handlers never inspect Role directly.
// -----------------------------------------------------------------------------

// CanUseAdminPanel reports whether p may enter the admin panel.
// Scope: Global admins only
func CanUseAdminPanel(p *identity.Principal) bool {
	return p != nil && p.Role == identity.RoleGlobalAdmin
}

// CanPreviewAsAdmin reports whether p may open admin-context embed tokens.
// Scope: Global admins and tenant admins
func CanPreviewAsAdmin(p *identity.Principal) bool {
	if p == nil {
		return false
	}
	return p.Role == identity.RoleGlobalAdmin || p.Role == identity.RoleTenantAdmin
}

// CanManageTenant reports whether p may perform mutating operations inside t.
// Tenant admins manage only tenants they can access; regular users never do.
func CanManageTenant(p *identity.Principal, t *tenant.Tenant) bool {
	if p == nil {
		return false
	}
	switch p.Role {
	case identity.RoleGlobalAdmin:
		return true
	case identity.RoleTenantAdmin:
		return CanAccess(p, t)
	default:
		return false
	}
}
