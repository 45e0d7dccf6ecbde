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

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/opentrusty/embedgate/internal/dashboard"
)

const dashboardColumns = `
	d.id, d.title, d.embed_url, COALESCE(d.report_id, ''), COALESCE(d.description, ''),
	COALESCE(d.category, ''), COALESCE(d.thumbnail, ''), d.is_active, d.created_at, d.updated_at,
	ARRAY(SELECT l.tenant_id FROM power_bi_dashboard_tenant l WHERE l.dashboard_id = d.id ORDER BY l.tenant_id)`

// DashboardRepository implements dashboard.Repository
type DashboardRepository struct {
	db *DB
}

// NewDashboardRepository creates a new dashboard repository
func NewDashboardRepository(db *DB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

// Create inserts a dashboard and links it to its tenants
func (r *DashboardRepository) Create(ctx context.Context, d *dashboard.Dashboard) error {
	now := time.Now()

	err := pgx.BeginFunc(ctx, r.db.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO power_bi_dashboards (
				title, embed_url, report_id, description, category, thumbnail, is_active, created_at, updated_at
			) VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9)
			RETURNING id
		`,
			d.Title, d.EmbedURL, d.ReportID, d.Description, d.Category, d.Thumbnail, d.Active, now, now,
		).Scan(&d.ID); err != nil {
			return err
		}

		for _, tenantID := range d.TenantIDs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO power_bi_dashboard_tenant (dashboard_id, tenant_id, created_at)
				VALUES ($1, $2, $3)
				ON CONFLICT DO NOTHING
			`, d.ID, tenantID, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to insert dashboard: %w", err)
	}

	d.CreatedAt = now
	d.UpdatedAt = now
	return nil
}

// GetByID retrieves a dashboard with its tenant links
func (r *DashboardRepository) GetByID(ctx context.Context, id int64) (*dashboard.Dashboard, error) {
	return scanDashboard(r.db.pool.QueryRow(ctx,
		`SELECT `+dashboardColumns+` FROM power_bi_dashboards d WHERE d.id = $1`, id))
}

// ListActiveForTenant returns active dashboards linked to tenantID, ordered by title
func (r *DashboardRepository) ListActiveForTenant(ctx context.Context, tenantID string) ([]*dashboard.Dashboard, error) {
	return r.query(ctx, `
		SELECT `+dashboardColumns+`
		FROM power_bi_dashboards d
		JOIN power_bi_dashboard_tenant t ON t.dashboard_id = d.id
		WHERE t.tenant_id = $1 AND d.is_active
		ORDER BY d.title, d.id
	`, tenantID)
}

// List returns all dashboards
func (r *DashboardRepository) List(ctx context.Context) ([]*dashboard.Dashboard, error) {
	return r.query(ctx, `SELECT `+dashboardColumns+` FROM power_bi_dashboards d ORDER BY d.id`)
}

func (r *DashboardRepository) query(ctx context.Context, sql string, args ...any) ([]*dashboard.Dashboard, error) {
	rows, err := r.db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list dashboards: %w", err)
	}
	defer rows.Close()

	dashboards := []*dashboard.Dashboard{}
	for rows.Next() {
		d, err := scanDashboard(rows)
		if err != nil {
			return nil, err
		}
		dashboards = append(dashboards, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate dashboards: %w", err)
	}
	return dashboards, nil
}

func scanDashboard(row pgx.Row) (*dashboard.Dashboard, error) {
	var d dashboard.Dashboard
	err := row.Scan(
		&d.ID, &d.Title, &d.EmbedURL, &d.ReportID, &d.Description,
		&d.Category, &d.Thumbnail, &d.Active, &d.CreatedAt, &d.UpdatedAt,
		&d.TenantIDs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, dashboard.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get dashboard: %w", err)
	}
	return &d, nil
}
