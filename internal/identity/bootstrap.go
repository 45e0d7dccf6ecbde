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

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opentrusty/embedgate/internal/audit"
)

const (
	EnvBootstrapAdminEmail    = "BOOTSTRAP_ADMIN_EMAIL"
	EnvBootstrapAdminPassword = "BOOTSTRAP_ADMIN_PASSWORD"
	EnvBootstrapAdminName     = "BOOTSTRAP_ADMIN_NAME"
)

// BootstrapConfig carries the initial global admin credentials
type BootstrapConfig struct {
	Email    string
	Password string
	Name     string
}

// BootstrapService creates the first global admin when none exists
type BootstrapService struct {
	identityService *Service
	auditLogger     audit.Logger
}

// NewBootstrapService creates a new bootstrap service
func NewBootstrapService(identityService *Service, auditLogger audit.Logger) *BootstrapService {
	return &BootstrapService{
		identityService: identityService,
		auditLogger:     auditLogger,
	}
}

// Bootstrap is a no-op when cfg.Email is empty or a global admin already exists.
func (s *BootstrapService) Bootstrap(ctx context.Context, cfg BootstrapConfig) error {
	if cfg.Email == "" {
		return nil
	}

	exists, err := s.identityService.repo.ExistsGlobalAdmin(ctx)
	if err != nil {
		return fmt.Errorf("failed to check for existing global admin: %w", err)
	}
	if exists {
		return nil
	}

	name := cfg.Name
	if name == "" {
		name = "Administrator"
	}

	p, err := s.identityService.CreatePrincipal(ctx, CreateRequest{
		Email:    cfg.Email,
		Name:     name,
		Password: cfg.Password,
		Role:     RoleGlobalAdmin,
	})
	if err != nil {
		return fmt.Errorf("failed to create bootstrap global admin: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeGlobalAdminBootstrap,
		ActorID:  audit.ActorSystemBootstrap,
		Resource: "principal",
		Metadata: map[string]any{
			audit.AttrEmail:       p.Email,
			audit.AttrPrincipalID: p.ID,
		},
	})

	slog.InfoContext(ctx, "bootstrapped initial global admin", slog.String("principal_id", p.ID))
	return nil
}
