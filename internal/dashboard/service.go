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

package dashboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Service provides read access to dashboards for the tenant panel and the relay
type Service struct {
	repo     Repository
	validate *validator.Validate
}

// NewService creates a new dashboard service
func NewService(repo Repository) *Service {
	return &Service{
		repo:     repo,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Create validates and persists a dashboard. Used by seeding and tests;
// regular editing happens in the external admin workflow.
func (s *Service) Create(ctx context.Context, d *Dashboard) error {
	if err := s.validate.StructCtx(ctx, d); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return s.repo.Create(ctx, d)
}

// Get retrieves a dashboard regardless of tenant. Admin paths only.
func (s *Service) Get(ctx context.Context, dashboardID int64) (*Dashboard, error) {
	d, err := s.repo.GetByID(ctx, dashboardID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get dashboard: %w", err)
	}
	return d, nil
}

// ListForTenant returns the active dashboards visible in a tenant.
func (s *Service) ListForTenant(ctx context.Context, tenantID string) ([]*Dashboard, error) {
	return s.repo.ListActiveForTenant(ctx, tenantID)
}

// FirstForTenant returns the tenant's first active dashboard, used by the direct view.
func (s *Service) FirstForTenant(ctx context.Context, tenantID string) (*Dashboard, error) {
	list, err := s.repo.ListActiveForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return list[0], nil
}

// GetForTenant returns the dashboard only if it is linked to tenantID and active.
func (s *Service) GetForTenant(ctx context.Context, dashboardID int64, tenantID string) (*Dashboard, error) {
	d, err := s.Get(ctx, dashboardID)
	if err != nil {
		return nil, err
	}
	if !d.LinkedTo(tenantID) {
		return nil, ErrNotLinked
	}
	if !d.Active {
		return nil, ErrInactive
	}
	return d, nil
}

// List returns every dashboard. Used by the security audit.
func (s *Service) List(ctx context.Context) ([]*Dashboard, error) {
	return s.repo.List(ctx)
}
