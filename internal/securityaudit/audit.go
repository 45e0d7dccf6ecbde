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

// Package securityaudit checks stored principals, tenants and dashboards
// against the tenant boundary rules and reports every violation.
package securityaudit

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/opentrusty/embedgate/internal/audit"
	"github.com/opentrusty/embedgate/internal/authz"
	"github.com/opentrusty/embedgate/internal/dashboard"
	"github.com/opentrusty/embedgate/internal/identity"
	"github.com/opentrusty/embedgate/internal/tenant"
)

// Severity grades a finding. Only SeverityError counts as a violation.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Check names
const (
	CheckRoleInvariant   = "role_invariant"
	CheckPrimaryTenant   = "primary_tenant"
	CheckGrants          = "grants"
	CheckDashboardLinks  = "dashboard_links"
	CheckPanelAccess     = "panel_access"
	CheckTenantIsolation = "tenant_isolation"
)

// Principals lists every stored principal
type Principals interface {
	List(ctx context.Context) ([]*identity.Principal, error)
}

// Tenants lists every stored tenant
type Tenants interface {
	List(ctx context.Context) ([]*tenant.Tenant, error)
}

// Dashboards lists every stored dashboard
type Dashboards interface {
	List(ctx context.Context) ([]*dashboard.Dashboard, error)
}

// Finding is one problem found by a check
type Finding struct {
	Check    string   `json:"check"`
	Severity Severity `json:"severity"`
	Subject  string   `json:"subject"`
	Message  string   `json:"message"`
}

// MatrixCell is one principal × tenant access result
type MatrixCell struct {
	Principal string `json:"principal"`
	Tenant    string `json:"tenant"`
	Expected  bool   `json:"expected"`
	Actual    bool   `json:"actual"`
}

// Stats summarises the audited population
type Stats struct {
	Principals   int `json:"principals"`
	GlobalAdmins int `json:"global_admins"`
	TenantAdmins int `json:"tenant_admins"`
	RegularUsers int `json:"regular_users"`
	Tenants      int `json:"tenants"`
	Dashboards   int `json:"dashboards"`
}

// Report is the result of Run
type Report struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Stats       Stats        `json:"stats"`
	Findings    []Finding    `json:"findings"`
	Matrix      []MatrixCell `json:"matrix,omitempty"`
}

// Violations counts error-level findings
func (r *Report) Violations() int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			n++
		}
	}
	return n
}

// Options tune a run
type Options struct {
	// IncludeMatrix keeps every matrix cell in the report, not just mismatches.
	IncludeMatrix bool
}

// Auditor runs the checks
type Auditor struct {
	principals  Principals
	tenants     Tenants
	dashboards  Dashboards
	auditLogger audit.Logger
	now         func() time.Time
}

// NewAuditor creates a new auditor
func NewAuditor(principals Principals, tenants Tenants, dashboards Dashboards, auditLogger audit.Logger) *Auditor {
	return &Auditor{
		principals:  principals,
		tenants:     tenants,
		dashboards:  dashboards,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// Run loads everything and applies each check
func (a *Auditor) Run(ctx context.Context, opts Options) (*Report, error) {
	principals, err := a.principals.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list principals: %w", err)
	}
	tenants, err := a.tenants.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	dashboards, err := a.dashboards.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list dashboards: %w", err)
	}

	sort.Slice(principals, func(i, j int) bool { return principals[i].Email < principals[j].Email })
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].Slug < tenants[j].Slug })
	sort.Slice(dashboards, func(i, j int) bool { return dashboards[i].ID < dashboards[j].ID })

	byID := make(map[string]*tenant.Tenant, len(tenants))
	for _, t := range tenants {
		byID[t.ID] = t
	}

	report := &Report{
		GeneratedAt: a.now().UTC(),
		Stats:       stats(principals, tenants, dashboards),
		Findings:    []Finding{},
	}

	for _, p := range principals {
		report.Findings = append(report.Findings, checkPrincipal(p, byID)...)
	}
	for _, d := range dashboards {
		report.Findings = append(report.Findings, checkDashboard(d, byID)...)
	}

	cells, findings := isolationMatrix(principals, tenants)
	report.Findings = append(report.Findings, findings...)
	if opts.IncludeMatrix {
		report.Matrix = cells
	}

	if a.auditLogger != nil {
		a.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeSecurityAuditRun,
			Resource: "security_audit",
			Metadata: map[string]any{audit.AttrViolations: report.Violations()},
		})
	}

	return report, nil
}

func stats(principals []*identity.Principal, tenants []*tenant.Tenant, dashboards []*dashboard.Dashboard) Stats {
	s := Stats{Principals: len(principals), Tenants: len(tenants), Dashboards: len(dashboards)}
	for _, p := range principals {
		switch p.Role {
		case identity.RoleGlobalAdmin:
			s.GlobalAdmins++
		case identity.RoleTenantAdmin:
			s.TenantAdmins++
		case identity.RoleRegularUser:
			s.RegularUsers++
		}
	}
	return s
}

func checkPrincipal(p *identity.Principal, tenants map[string]*tenant.Tenant) []Finding {
	var out []Finding

	if err := p.Validate(); err != nil {
		out = append(out, Finding{CheckRoleInvariant, SeverityError, p.Email, err.Error()})
	}

	if admin := p.Role == identity.RoleGlobalAdmin; authz.CanUseAdminPanel(p) != admin {
		out = append(out, Finding{CheckPanelAccess, SeverityError, p.Email,
			fmt.Sprintf("admin panel access is %t for role %s", !admin, p.Role)})
	}

	if primary := p.PrimaryTenant(); primary != "" {
		t, ok := tenants[primary]
		switch {
		case !ok:
			out = append(out, Finding{CheckPrimaryTenant, SeverityError, p.Email, "primary tenant does not exist"})
		case !t.Active:
			out = append(out, Finding{CheckPrimaryTenant, SeverityWarning, p.Email,
				fmt.Sprintf("primary tenant %s is inactive", t.Slug)})
		}
	}

	for _, g := range p.AdditionalTenantIDs {
		if _, ok := tenants[g]; !ok {
			out = append(out, Finding{CheckGrants, SeverityError, p.Email,
				fmt.Sprintf("grant references missing tenant %s", g)})
		}
	}
	return out
}

func checkDashboard(d *dashboard.Dashboard, tenants map[string]*tenant.Tenant) []Finding {
	subject := fmt.Sprintf("dashboard %d (%s)", d.ID, d.Title)
	if len(d.TenantIDs) == 0 {
		return []Finding{{CheckDashboardLinks, SeverityWarning, subject, "not linked to any tenant"}}
	}
	var out []Finding
	for _, id := range d.TenantIDs {
		if _, ok := tenants[id]; !ok {
			out = append(out, Finding{CheckDashboardLinks, SeverityError, subject,
				fmt.Sprintf("linked to missing tenant %s", id)})
		}
	}
	return out
}

// isolationMatrix compares the resolver against the raw associations
func isolationMatrix(principals []*identity.Principal, tenants []*tenant.Tenant) ([]MatrixCell, []Finding) {
	cells := make([]MatrixCell, 0, len(principals)*len(tenants))
	var findings []Finding

	for _, p := range principals {
		for _, t := range tenants {
			cell := MatrixCell{
				Principal: p.Email,
				Tenant:    t.Slug,
				Expected:  expectedAccess(p, t),
				Actual:    authz.CanAccess(p, t),
			}
			cells = append(cells, cell)

			if cell.Expected != cell.Actual {
				msg := "access denied incorrectly"
				if cell.Actual {
					msg = "access granted without association"
				}
				findings = append(findings, Finding{CheckTenantIsolation, SeverityError,
					p.Email, fmt.Sprintf("%s: %s", t.Slug, msg)})
			}
		}
	}
	return cells, findings
}

func expectedAccess(p *identity.Principal, t *tenant.Tenant) bool {
	if p.Role == identity.RoleGlobalAdmin {
		return true
	}
	if p.PrimaryTenant() == t.ID {
		return true
	}
	for _, g := range p.AdditionalTenantIDs {
		if g == t.ID {
			return true
		}
	}
	return false
}
