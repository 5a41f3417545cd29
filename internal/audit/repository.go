package audit

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository persists activity logs in PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Insert stores one activity log row.
func (r *PGRepository) Insert(ctx context.Context, log ActivityLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_activity_logs (id, user_id, action, description, ip_address, device, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)`,
		log.ID, log.UserID, log.Action, log.Description, log.IPAddress, log.Device, log.CreatedAt)
	return err
}

// List returns rows newest first with optional user/action filters.
func (r *PGRepository) List(ctx context.Context, filters Filters, limit, offset int) ([]ActivityLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, user_id::text, action, description, COALESCE(ip_address::text, ''), device, created_at
		FROM user_activity_logs
		WHERE ($1 = '' OR user_id::text = $1)
		  AND ($2 = '' OR action = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		filters.UserID, filters.Action, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []ActivityLog
	for rows.Next() {
		var log ActivityLog
		if err := rows.Scan(&log.ID, &log.UserID, &log.Action, &log.Description, &log.IPAddress, &log.Device, &log.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

var _ Repository = (*PGRepository)(nil)
