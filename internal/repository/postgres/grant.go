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

const grantColumns = `id, doctor_id, patient_id, passkey, status, created_at, expires_at, consumed_at`

type grantRepository struct {
	ext sqlx.ExtContext
}

func (r *grantRepository) Create(ctx context.Context, grant *model.AccessGrant) error {
	query := `
		INSERT INTO access_grants (
			id, doctor_id, patient_id, passkey, status, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if grant.ID == uuid.Nil {
		grant.ID = uuid.New()
	}

	_, err := r.ext.ExecContext(ctx, query,
		grant.ID,
		grant.DoctorID,
		grant.PatientID,
		grant.Passkey,
		grant.Status,
		grant.CreatedAt,
		grant.ExpiresAt,
	)
	if isUniqueViolation(err) {
		return repository.ErrPasskeyCollision
	}
	if err != nil {
		return fmt.Errorf("failed to create access grant: %w", err)
	}
	return nil
}

func (r *grantRepository) FindLive(ctx context.Context, doctorID, patientID uuid.UUID, now time.Time) (*model.AccessGrant, error) {
	query := `
		SELECT ` + grantColumns + `
		FROM access_grants
		WHERE doctor_id = $1
		AND patient_id = $2
		AND status = 'pending'
		AND expires_at >= $3
		ORDER BY created_at DESC
		LIMIT 1
	`

	var grant model.AccessGrant
	if err := sqlx.GetContext(ctx, r.ext, &grant, query, doctorID, patientID, now); err != nil {
		return nil, notFound(err)
	}
	return &grant, nil
}

func (r *grantRepository) FindByPasskey(ctx context.Context, doctorID, patientID uuid.UUID, passkey string) (*model.AccessGrant, error) {
	query := `
		SELECT ` + grantColumns + `
		FROM access_grants
		WHERE doctor_id = $1
		AND patient_id = $2
		AND passkey = $3
		ORDER BY created_at DESC
		LIMIT 1
	`

	var grant model.AccessGrant
	if err := sqlx.GetContext(ctx, r.ext, &grant, query, doctorID, patientID, passkey); err != nil {
		return nil, notFound(err)
	}
	return &grant, nil
}

func (r *grantRepository) LivePasskeyExists(ctx context.Context, patientID uuid.UUID, passkey string, now time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM access_grants
			WHERE patient_id = $1
			AND passkey = $2
			AND status = 'pending'
			AND expires_at >= $3
		)
	`

	var exists bool
	if err := sqlx.GetContext(ctx, r.ext, &exists, query, patientID, passkey, now); err != nil {
		return false, fmt.Errorf("failed to check passkey collision: %w", err)
	}
	return exists, nil
}

// ConsumeIfLive is the single check-and-set for pending -> consumed. Of any
// number of racing callers at most one sees true.
func (r *grantRepository) ConsumeIfLive(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	query := `
		UPDATE access_grants
		SET status = 'consumed', consumed_at = $2
		WHERE id = $1
		AND status = 'pending'
		AND expires_at >= $2
	`

	result, err := r.ext.ExecContext(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("failed to consume access grant: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

func (r *grantRepository) ExpireStale(ctx context.Context, patientID, doctorID uuid.UUID, now time.Time) (int64, error) {
	query := `
		UPDATE access_grants
		SET status = 'expired'
		WHERE patient_id = $1
		AND status = 'pending'
		AND expires_at < $2
	`
	args := []interface{}{patientID, now}
	if doctorID != uuid.Nil {
		query += ` AND doctor_id = $3`
		args = append(args, doctorID)
	}

	result, err := r.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale grants: %w", err)
	}
	return result.RowsAffected()
}

func (r *grantRepository) ExpireAllStale(ctx context.Context, now time.Time, limit int) (int64, error) {
	query := `
		UPDATE access_grants
		SET status = 'expired'
		WHERE id IN (
			SELECT id FROM access_grants
			WHERE status = 'pending'
			AND expires_at < $1
			ORDER BY expires_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		AND status = 'pending'
	`

	result, err := r.ext.ExecContext(ctx, query, now, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale grants: %w", err)
	}
	return result.RowsAffected()
}
