package gate

import (
	"encoding/json"
	"testing"

	"github.com/opentrusty/embedgate/internal/identity"
	"github.com/opentrusty/embedgate/internal/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPrincipal(t *testing.T, id string, role identity.Role, primary string, grants ...string) *identity.Principal {
	t.Helper()
	var ptr *string
	if primary != "" {
		ptr = &primary
	}
	p, err := identity.NewPrincipal(id, id+"@example.com", id, role, ptr, grants...)
	require.NoError(t, err)
	return p
}

// TestPurpose: Validates the gate state machine for each request class.
// Scope: Unit Test
// Security: Tenant boundary enforcement on every tenant-scoped route
// Expected: nil principal is Unauthenticated, accessible tenant is Authorized, anything else is Denied.
// Test Case ID: GAT-01
func TestEvaluate(t *testing.T) {
	orgA := &tenant.Tenant{ID: "t-a", Slug: "org-a", Name: "Org A", Active: true}
	orgB := &tenant.Tenant{ID: "t-b", Slug: "org-b", Name: "Org B Secret Name", Active: true}
	userB := mustPrincipal(t, "user-b", identity.RoleRegularUser, "t-b")

	assert.Equal(t, Unauthenticated, Evaluate(nil, orgA).Outcome)
	assert.Equal(t, Authorized, Evaluate(userB, orgB).Outcome)

	d := Evaluate(userB, orgA)
	require.Equal(t, Denied, d.Outcome)
	require.NotNil(t, d.Denial)
	assert.Equal(t, Denial{PrincipalID: "user-b", RequestedTenantID: "t-a", PrimaryTenantID: "t-b"}, *d.Denial)

	body, err := json.Marshal(d.Denial)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "Org A")
	assert.NotContains(t, string(body), "org-a")
	assert.NotContains(t, string(body), "Secret Name")

	nilTenant := Evaluate(userB, nil)
	assert.Equal(t, Denied, nilTenant.Outcome)
	assert.Equal(t, "", nilTenant.Denial.RequestedTenantID)
}

func TestHomeFor(t *testing.T) {
	orgA := &tenant.Tenant{ID: "t-a", Slug: "org-a", Active: true}
	orgB := &tenant.Tenant{ID: "t-b", Slug: "org-b", Active: true}
	inactive := &tenant.Tenant{ID: "t-x", Slug: "org-x", Active: false}

	user := mustPrincipal(t, "u", identity.RoleRegularUser, "t-b", "t-a")
	assert.Equal(t, orgB, HomeFor(user, []*tenant.Tenant{orgA, orgB}))

	stranded := mustPrincipal(t, "s", identity.RoleRegularUser, "t-x", "t-a")
	assert.Equal(t, orgA, HomeFor(stranded, []*tenant.Tenant{inactive, orgA}))

	admin := mustPrincipal(t, "a", identity.RoleGlobalAdmin, "")
	assert.Equal(t, orgA, HomeFor(admin, []*tenant.Tenant{orgA, orgB}))

	assert.Nil(t, HomeFor(user, nil))
	assert.Nil(t, HomeFor(nil, []*tenant.Tenant{orgA}))
	assert.Equal(t, "denied", Denied.String())
}
