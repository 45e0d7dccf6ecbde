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

// Package dashboard models the embeddable report resources shared between tenants.
package dashboard

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("dashboard not found")
	ErrNotLinked = errors.New("dashboard is not linked to tenant")
	ErrInactive  = errors.New("dashboard is inactive")
	ErrInvalid   = errors.New("invalid dashboard")
)

// Dashboard is an upstream report exposed to one or more tenants.
// EmbedURL is never sent to browsers.
type Dashboard struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title" validate:"required,max=255"`
	EmbedURL    string    `json:"-" validate:"required,url,startswith=https://"`
	ReportID    string    `json:"report_id,omitempty" validate:"max=255"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty" validate:"max=255"`
	Thumbnail   string    `json:"thumbnail,omitempty"`
	Active      bool      `json:"is_active"`
	TenantIDs   []string  `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LinkedTo reports whether the dashboard is shared with tenantID.
func (d *Dashboard) LinkedTo(tenantID string) bool {
	for _, t := range d.TenantIDs {
		if t == tenantID {
			return true
		}
	}
	return false
}

// Repository defines the interface for dashboard storage
type Repository interface {
	// Create persists a dashboard and its tenant links
	Create(ctx context.Context, d *Dashboard) error

	// GetByID retrieves a dashboard with TenantIDs populated
	GetByID(ctx context.Context, id int64) (*Dashboard, error)

	// ListActiveForTenant returns active dashboards linked to the tenant, ordered by title
	ListActiveForTenant(ctx context.Context, tenantID string) ([]*Dashboard, error)

	// List returns all dashboards with TenantIDs populated
	List(ctx context.Context) ([]*Dashboard, error)
}
