package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/opentrusty/embedgate/internal/accesslog"
)

// AccessLogRepository implements accesslog.Sink
type AccessLogRepository struct {
	db *DB
}

// NewAccessLogRepository creates a new access log repository
func NewAccessLogRepository(db *DB) *AccessLogRepository {
	return &AccessLogRepository{db: db}
}

// Append inserts one access row
func (r *AccessLogRepository) Append(ctx context.Context, e accesslog.Entry) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO power_bi_dashboard_access_logs (
			dashboard_id, tenant_id, user_id, access_ip, is_admin_access, accessed_at
		) VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
	`, e.DashboardID, e.TenantID, e.UserID, e.IP, e.AdminAccess, e.AccessedAt)
	if err != nil {
		return fmt.Errorf("failed to insert access log: %w", err)
	}
	return nil
}

// DeleteOlderThan removes access rows recorded before cutoff
func (r *AccessLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM power_bi_dashboard_access_logs WHERE accessed_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete access logs: %w", err)
	}
	return result.RowsAffected(), nil
}
