package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/medihub/access-api/internal/model"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrPasskeyCollision is returned when a passkey is already held by a
	// live grant of the same patient.
	ErrPasskeyCollision = errors.New("passkey collides with a live grant")
)

// All repository interfaces in one file
type (
	// GrantRepository owns access_grants. Every status transition is a single
	// conditional update against the current status.
	GrantRepository interface {
		Create(ctx context.Context, grant *model.AccessGrant) error
		FindLive(ctx context.Context, doctorID, patientID uuid.UUID, now time.Time) (*model.AccessGrant, error)
		FindByPasskey(ctx context.Context, doctorID, patientID uuid.UUID, passkey string) (*model.AccessGrant, error)
		LivePasskeyExists(ctx context.Context, patientID uuid.UUID, passkey string, now time.Time) (bool, error)
		ConsumeIfLive(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
		// ExpireStale moves pending grants past expiry to expired. uuid.Nil as doctorID
		// matches every doctor.
		ExpireStale(ctx context.Context, patientID, doctorID uuid.UUID, now time.Time) (int64, error)
		ExpireAllStale(ctx context.Context, now time.Time, limit int) (int64, error)
	}

	NotificationRepository interface {
		Create(ctx context.Context, notification *model.Notification) error
		Get(ctx context.Context, id uuid.UUID) (*model.Notification, error)
		ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Notification, error)
		MarkRead(ctx context.Context, id uuid.UUID) error
		Delete(ctx context.Context, id uuid.UUID) error
		DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}

	// UserRepository is the read side of the portal's user directory.
	UserRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
	}

	// RecordsRepository is the read side of the records subsystem.
	RecordsRepository interface {
		GetPatientBundle(ctx context.Context, patientID uuid.UUID) (*model.PatientRecordBundle, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, maxRetries int) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	// Store groups the repositories that must change together. WithTx runs fn
	// against a Store bound to one transaction.
	Store interface {
		Grants() GrantRepository
		Notifications() NotificationRepository
		Outbox() OutboxRepository
		WithTx(ctx context.Context, fn func(Store) error) error
	}
)
