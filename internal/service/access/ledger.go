// Package access issues and redeems the one-time passkeys that let a doctor
// read a patient's records.
package access

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medihub/access-api/internal/model"
	"github.com/medihub/access-api/internal/repository"
	"github.com/medihub/access-api/internal/service/directory"
	"github.com/medihub/access-api/internal/service/passkey"
	apperrors "github.com/medihub/access-api/pkg/errors"
	"github.com/medihub/access-api/pkg/logger"
	"github.com/medihub/access-api/pkg/metrics"
)

const DefaultMaxGenerationAttempts = 5

type Config struct {
	PasskeyTTL            time.Duration
	MaxGenerationAttempts int
}

type Option func(*options)

type options struct {
	now       func() time.Time
	generator passkey.Generator
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithGenerator replaces the crypto/rand passkey generator.
func WithGenerator(g passkey.Generator) Option {
	return func(o *options) { o.generator = g }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, generator: passkey.NewGenerator()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type LedgerService interface {
	RequestAccess(ctx context.Context, doctorID uuid.UUID, patientEmail string) (*model.AccessRequestResult, error)
	InvalidateExpired(ctx context.Context, patientID, doctorID uuid.UUID) (int64, error)
}

// Ledger owns the lifecycle of access grants from issue to expiry.
type Ledger struct {
	store       repository.Store
	directory   directory.Directory
	generator   passkey.Generator
	metrics     *metrics.Metrics
	logger      *logger.Logger
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
}

func NewLedger(store repository.Store, dir directory.Directory, cfg Config, m *metrics.Metrics, log *logger.Logger, opts ...Option) *Ledger {
	o := buildOptions(opts)
	if cfg.PasskeyTTL <= 0 {
		cfg.PasskeyTTL = model.PasskeyTTL
	}
	if cfg.MaxGenerationAttempts < 1 {
		cfg.MaxGenerationAttempts = DefaultMaxGenerationAttempts
	}
	return &Ledger{
		store:       store,
		directory:   dir,
		generator:   o.generator,
		metrics:     m,
		logger:      log,
		ttl:         cfg.PasskeyTTL,
		maxAttempts: cfg.MaxGenerationAttempts,
		now:         o.now,
	}
}

// RequestAccess issues a grant for the doctor on the patient registered under
// patientEmail. A live grant for the same pair is returned as is, with
// Reused set.
func (l *Ledger) RequestAccess(ctx context.Context, doctorID uuid.UUID, patientEmail string) (*model.AccessRequestResult, error) {
	log := l.logger.WithContext(ctx)

	doctor, err := l.directory.Doctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	patient, err := l.directory.PatientByEmail(ctx, patientEmail)
	if err != nil {
		return nil, err
	}

	now := l.now()
	live, err := l.store.Grants().FindLive(ctx, doctor.ID, patient.ID, now)
	switch {
	case err == nil:
		l.metrics.GrantsReused.Inc()
		log.Info("reusing live access grant",
			"grant_id", live.ID.String(), "doctor_id", doctor.ID.String(), "patient_id", patient.ID.String())
		return &model.AccessRequestResult{Grant: live, PatientName: patient.Name, Reused: true}, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NewInternal(fmt.Errorf("failed to look up live grant: %w", err))
	}

	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		code, err := l.generator.Generate()
		if err != nil {
			return nil, apperrors.NewInternal(err)
		}

		grant, err := l.issue(ctx, doctor, patient, code, now)
		if errors.Is(err, repository.ErrPasskeyCollision) {
			l.metrics.GenerationRetries.Inc()
			log.Debug("passkey collided with a live grant", "attempt", attempt, "patient_id", patient.ID.String())
			continue
		}
		if err != nil {
			return nil, apperrors.NewInternal(err)
		}

		l.metrics.GrantsIssued.Inc()
		log.Info("access grant issued",
			"grant_id", grant.ID.String(), "doctor_id", doctor.ID.String(), "patient_id", patient.ID.String(),
			"expires_at", grant.ExpiresAt)
		return &model.AccessRequestResult{Grant: grant, PatientName: patient.Name}, nil
	}

	log.Warn("passkey generation exhausted", "attempts", l.maxAttempts, "patient_id", patient.ID.String())
	return nil, apperrors.NewGenerationExhausted(l.maxAttempts)
}

// issue writes the grant, its notification and the outbox event in one
// transaction. Stale pending grants of the patient are expired first so
// they cannot hold a passkey.
func (l *Ledger) issue(ctx context.Context, doctor, patient *model.User, code string, now time.Time) (*model.AccessGrant, error) {
	grant := &model.AccessGrant{
		DoctorID:  doctor.ID,
		PatientID: patient.ID,
		Passkey:   code,
		Status:    model.GrantStatusPending,
		ExpiresAt: now.Add(l.ttl),
	}
	grant.ID = uuid.New()
	grant.CreatedAt = now

	var expired int64
	err := l.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		expired, err = tx.Grants().ExpireStale(ctx, patient.ID, uuid.Nil, now)
		if err != nil {
			return err
		}

		taken, err := tx.Grants().LivePasskeyExists(ctx, patient.ID, code, now)
		if err != nil {
			return err
		}
		if taken {
			return repository.ErrPasskeyCollision
		}

		if err := tx.Grants().Create(ctx, grant); err != nil {
			return err
		}
		if err := tx.Notifications().Create(ctx, newPasskeyNotification(grant, doctor)); err != nil {
			return err
		}

		return createEvent(ctx, tx, model.EventAccessRequested, now, model.AccessRequestedEvent{
			GrantID:      grant.ID,
			DoctorID:     doctor.ID,
			DoctorName:   doctor.Name,
			PatientID:    patient.ID,
			PatientName:  patient.Name,
			PatientEmail: patient.Email,
			Passkey:      grant.Passkey,
			ExpiresAt:    grant.ExpiresAt,
		})
	})
	if err != nil {
		return nil, err
	}
	if expired > 0 {
		l.metrics.GrantsExpired.Add(float64(expired))
	}
	return grant, nil
}

// InvalidateExpired moves the patient's pending grants that are past expiry
// to expired. uuid.Nil as doctorID covers every doctor.
func (l *Ledger) InvalidateExpired(ctx context.Context, patientID, doctorID uuid.UUID) (int64, error) {
	n, err := l.store.Grants().ExpireStale(ctx, patientID, doctorID, l.now())
	if err != nil {
		return 0, apperrors.NewInternal(err)
	}
	if n > 0 {
		l.metrics.GrantsExpired.Add(float64(n))
	}
	return n, nil
}

func newPasskeyNotification(grant *model.AccessGrant, doctor *model.User) *model.Notification {
	grantID := grant.ID
	expiresAt := grant.ExpiresAt
	n := &model.Notification{
		PatientID:  grant.PatientID,
		DoctorID:   doctor.ID,
		GrantID:    &grantID,
		Type:       model.NotificationTypePasskeyRequest,
		Title:      "Doctor Access Request",
		Message:    fmt.Sprintf("%s has requested access to view your medical records. Share the access code with the doctor to allow it.", doctor.Name),
		DoctorName: doctor.Name,
		Passkey:    grant.Passkey,
		ExpiresAt:  &expiresAt,
	}
	n.ID = uuid.New()
	n.CreatedAt = grant.CreatedAt
	return n
}

func createEvent(ctx context.Context, tx repository.Store, eventType string, now time.Time, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}
	return tx.Outbox().Create(ctx, &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   data,
		CreatedAt: now,
	})
}
