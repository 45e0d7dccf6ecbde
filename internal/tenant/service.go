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

package tenant

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/opentrusty/embedgate/internal/id"
	"github.com/viccon/sturdyc"
)

// CacheConfig controls the tenant lookup cache
type CacheConfig struct {
	Capacity int
	Shards   int
	TTL      time.Duration
}

// DefaultCacheConfig keeps lookups fresh enough that deactivation is seen within seconds.
var DefaultCacheConfig = CacheConfig{Capacity: 10000, Shards: 10, TTL: 10 * time.Second}

// Service provides tenant lookups for routing and authorization
type Service struct {
	repo     Repository
	cache    *sturdyc.Client[*Tenant]
	validate *validator.Validate
}

// NewService creates a new tenant service
func NewService(repo Repository, cacheCfg CacheConfig) *Service {
	if cacheCfg.Capacity <= 0 {
		cacheCfg = DefaultCacheConfig
	}
	if cacheCfg.Shards <= 0 {
		cacheCfg.Shards = 1
	}

	return &Service{
		repo:     repo,
		cache:    sturdyc.New[*Tenant](cacheCfg.Capacity, cacheCfg.Shards, cacheCfg.TTL, 10),
		validate: NewValidator(),
	}
}

// NewValidator returns a validator with the tenantslug tag registered.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("tenantslug", func(fl validator.FieldLevel) bool {
		return ValidSlug(fl.Field().String())
	})
	return v
}

// CreateTenant creates a new active tenant
func (s *Service) CreateTenant(ctx context.Context, name, slug string) (*Tenant, error) {
	now := time.Now()
	t := &Tenant{
		ID:        id.NewUUIDv7(),
		Name:      name,
		Slug:      slug,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.validate.StructCtx(ctx, t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTenant, err)
	}

	if _, err := s.repo.GetBySlug(ctx, slug); err == nil {
		return nil, ErrTenantAlreadyExists
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	return t, nil
}

// GetBySlug resolves the tenant named in a route.
func (s *Service) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	if !ValidSlug(slug) {
		return nil, ErrTenantNotFound
	}
	return s.cache.GetOrFetch(ctx, "slug:"+slug, func(ctx context.Context) (*Tenant, error) {
		return s.repo.GetBySlug(ctx, slug)
	})
}

// GetByID retrieves a tenant by ID
func (s *Service) GetByID(ctx context.Context, tenantID string) (*Tenant, error) {
	if tenantID == "" {
		return nil, ErrTenantNotFound
	}
	return s.cache.GetOrFetch(ctx, "id:"+tenantID, func(ctx context.Context) (*Tenant, error) {
		return s.repo.GetByID(ctx, tenantID)
	})
}

// List returns every tenant. It bypasses the cache.
func (s *Service) List(ctx context.Context) ([]*Tenant, error) {
	return s.repo.List(ctx)
}

// SetActive activates or deactivates a tenant. A deactivated tenant
// disappears from routing once its cache entries are dropped.
func (s *Service) SetActive(ctx context.Context, tenantID string, active bool) (*Tenant, error) {
	t, err := s.repo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetActive(ctx, t.ID, active); err != nil {
		return nil, fmt.Errorf("failed to update tenant: %w", err)
	}

	updated := *t
	updated.Active = active
	updated.UpdatedAt = time.Now()
	s.Invalidate(&updated)
	return &updated, nil
}

// Invalidate drops any cached entries for t.
func (s *Service) Invalidate(t *Tenant) {
	s.cache.Delete("slug:" + t.Slug)
	s.cache.Delete("id:" + t.ID)
}
