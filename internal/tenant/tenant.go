package tenant

import (
	"regexp"
	"time"
)

// Tenant represents an isolated organization boundary
type Tenant struct {
	ID        string    `json:"id" validate:"required"`
	Name      string    `json:"name" validate:"required,max=255"`
	Slug      string    `json:"slug" validate:"required,max=64,tenantslug"`
	Active    bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HomePath is the URL path of the tenant's landing page.
func (t *Tenant) HomePath() string {
	return "/" + t.Slug
}

// Reserved slugs collide with top-level routes
var reservedSlugs = map[string]struct{}{
	"admin":   {},
	"login":   {},
	"logout":  {},
	"me":      {},
	"health":  {},
	"swagger": {},
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// ValidSlug reports whether s is usable as a tenant URL segment.
func ValidSlug(s string) bool {
	if _, reserved := reservedSlugs[s]; reserved {
		return false
	}
	return slugPattern.MatchString(s)
}
