package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medihub/access-api/internal/model"
	"github.com/medihub/access-api/internal/repository"
)

const notificationColumns = `id, patient_id, doctor_id, grant_id, type, title, message,
	doctor_name, passkey, is_read, created_at, expires_at`

type notificationRepository struct {
	ext sqlx.ExtContext
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	query := `
		INSERT INTO patient_notifications (
			id, patient_id, doctor_id, grant_id, type, title, message,
			doctor_name, passkey, is_read, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}

	_, err := r.ext.ExecContext(ctx, query,
		n.ID,
		n.PatientID,
		n.DoctorID,
		n.GrantID,
		n.Type,
		n.Title,
		n.Message,
		n.DoctorName,
		n.Passkey,
		n.IsRead,
		n.CreatedAt,
		n.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *notificationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM patient_notifications WHERE id = $1`

	var n model.Notification
	if err := sqlx.GetContext(ctx, r.ext, &n, query, id); err != nil {
		return nil, notFound(err)
	}
	return &n, nil
}

func (r *notificationRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM patient_notifications
		WHERE patient_id = $1
		ORDER BY created_at DESC, id DESC
	`

	notifications := []*model.Notification{}
	if err := sqlx.SelectContext(ctx, r.ext, &notifications, query, patientID); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

// MarkRead is idempotent; an already read entry still reports success.
func (r *notificationRepository) MarkRead(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE patient_notifications SET is_read = TRUE WHERE id = $1`

	result, err := r.ext.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *notificationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM patient_notifications WHERE id = $1`

	result, err := r.ext.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *notificationRepository) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM patient_notifications
		WHERE is_read = TRUE
		AND created_at < $1
	`

	result, err := r.ext.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge notifications: %w", err)
	}
	return result.RowsAffected()
}
