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

// Package authz decides whether a principal may act on a tenant's resources.
//
// CanAccess is the single source of truth consumed by the gate, the tenant
// panel and the embed relay. It is pure and safe for concurrent use.
package authz

import (
	"context"
	"fmt"

	"github.com/opentrusty/embedgate/internal/identity"
	"github.com/opentrusty/embedgate/internal/tenant"
)

// CanAccess reports whether p may act on t. First match wins:
//  1. global admin
//  2. t is the primary tenant
//  3. t is an additional grant
//
// A nil principal or tenant is never granted access.
func CanAccess(p *identity.Principal, t *tenant.Tenant) bool {
	if p == nil || t == nil || t.ID == "" {
		return false
	}
	if p.Role == identity.RoleGlobalAdmin {
		return true
	}
	if p.PrimaryTenantID != nil && *p.PrimaryTenantID == t.ID {
		return true
	}
	return p.HasGrant(t.ID)
}

// AccessibleTenants filters all down to the tenants p can access,
// preserving the input order.
func AccessibleTenants(p *identity.Principal, all []*tenant.Tenant) []*tenant.Tenant {
	out := make([]*tenant.Tenant, 0, len(all))
	for _, t := range all {
		if CanAccess(p, t) {
			out = append(out, t)
		}
	}
	return out
}

// TenantLister is the subset of the tenant service the resolver needs
type TenantLister interface {
	List(ctx context.Context) ([]*tenant.Tenant, error)
}

// Resolver binds the pure predicates to tenant storage
type Resolver struct {
	tenants TenantLister
}

// NewResolver creates a new resolver
func NewResolver(tenants TenantLister) *Resolver {
	return &Resolver{tenants: tenants}
}

// AccessibleTenants returns every tenant p can access.
func (r *Resolver) AccessibleTenants(ctx context.Context, p *identity.Principal) ([]*tenant.Tenant, error) {
	if p == nil {
		return nil, nil
	}
	all, err := r.tenants.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	return AccessibleTenants(p, all), nil
}
