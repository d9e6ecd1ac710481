package notify

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pulsecare/platform/internal/shared/errors"
	"github.com/pulsecare/platform/internal/shared/types"
)

// Repository provides database operations for notifications
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new notification repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Save persists a notification
func (r *Repository) Save(ctx context.Context, n *HealthNotification) error {
	query := `
		INSERT INTO notifications (
			id, subject_id, type, severity, message,
			action_required, acknowledged, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		n.ID, n.SubjectID, n.Type, n.Severity, n.Message,
		n.ActionRequired, n.Acknowledged, n.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save notification")
	}

	return nil
}

// ListBySubject returns a subject's notifications, newest first
func (r *Repository) ListBySubject(ctx context.Context, subjectID types.ID, unackedOnly bool, limit int) ([]HealthNotification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `
		SELECT id, subject_id, type, severity, message,
			action_required, acknowledged, created_at
		FROM notifications
		WHERE subject_id = $1 AND ($2 = FALSE OR NOT acknowledged)
		ORDER BY created_at DESC
		LIMIT $3`

	rows, err := r.pool.Query(ctx, query, subjectID, unackedOnly, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list notifications")
	}
	defer rows.Close()

	var notifications []HealthNotification
	for rows.Next() {
		var n HealthNotification
		if err := rows.Scan(
			&n.ID, &n.SubjectID, &n.Type, &n.Severity, &n.Message,
			&n.ActionRequired, &n.Acknowledged, &n.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan notification")
		}
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

// Acknowledge marks a notification acknowledged. The transition is
// one-way and idempotent: acknowledging an already-acknowledged
// notification is a no-op, not an error.
func (r *Repository) Acknowledge(ctx context.Context, id types.ID) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE notifications SET acknowledged = TRUE WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "failed to acknowledge notification")
	}

	if result.RowsAffected() == 0 {
		// Distinguish "missing" from "already acknowledged": the update
		// above matches acknowledged rows too, so zero rows means the
		// notification does not exist.
		return errors.NotFound("notification", id.String())
	}

	return nil
}
