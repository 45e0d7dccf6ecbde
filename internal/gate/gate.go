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

// Package gate turns resolver output into a per-request outcome for
// tenant-scoped routes. The HTTP binding lives in the transport layer.
package gate

import (
	"github.com/opentrusty/embedgate/internal/authz"
	"github.com/opentrusty/embedgate/internal/identity"
	"github.com/opentrusty/embedgate/internal/tenant"
)

// Outcome is the terminal state of the gate for one request
type Outcome int

const (
	Unauthenticated Outcome = iota
	Authorized
	Denied
)

func (o Outcome) String() string {
	switch o {
	case Authorized:
		return "authorized"
	case Denied:
		return "denied"
	default:
		return "unauthenticated"
	}
}

// Denial is the operator-facing detail of a Denied outcome.
// It names only the principal, the requested tenant, and the principal's own
// primary tenant. Other tenants' names and slugs are never included.
type Denial struct {
	PrincipalID       string `json:"principal_id"`
	RequestedTenantID string `json:"requested_tenant_id"`
	PrimaryTenantID   string `json:"primary_tenant_id,omitempty"`
}

// Decision is the result of Evaluate
type Decision struct {
	Outcome Outcome
	Denial  *Denial
}

// Evaluate decides the outcome for principal p requesting tenant t.
// A nil tenant with an authenticated principal is Denied.
func Evaluate(p *identity.Principal, t *tenant.Tenant) Decision {
	if p == nil {
		return Decision{Outcome: Unauthenticated}
	}
	if authz.CanAccess(p, t) {
		return Decision{Outcome: Authorized}
	}

	requested := ""
	if t != nil {
		requested = t.ID
	}
	return Decision{
		Outcome: Denied,
		Denial: &Denial{
			PrincipalID:       p.ID,
			RequestedTenantID: requested,
			PrimaryTenantID:   p.PrimaryTenant(),
		},
	}
}

// HomeFor picks where an authenticated principal lands when it hits a panel
// it cannot use: its primary tenant, else the first accessible tenant.
// Returns nil when the principal can access nothing.
func HomeFor(p *identity.Principal, accessible []*tenant.Tenant) *tenant.Tenant {
	if p == nil {
		return nil
	}
	primary := p.PrimaryTenant()
	for _, t := range accessible {
		if t.ID == primary && t.Active {
			return t
		}
	}
	for _, t := range accessible {
		if t.Active && authz.CanAccess(p, t) {
			return t
		}
	}
	return nil
}
