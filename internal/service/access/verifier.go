package access

import (
	"context"
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

// Verification outcomes recorded in metrics.
const (
	outcomeGranted       = "granted"
	outcomeInvalidFormat = "invalid_format"
	outcomeNotFound      = "patient_not_found"
	outcomeInvalidCode   = "invalid_code"
	outcomeExpired       = "expired"
	outcomeError         = "error"
)

type VerifierService interface {
	Verify(ctx context.Context, doctorID uuid.UUID, patientEmail, passkeyInput string) (*model.PatientRecordBundle, error)
}

// Verifier redeems passkeys. A grant is consumed at most once; the records
// bundle is the capability handed out for it.
type Verifier struct {
	store     repository.Store
	directory directory.Directory
	records   repository.RecordsRepository
	metrics   *metrics.Metrics
	logger    *logger.Logger
	now       func() time.Time
}

func NewVerifier(store repository.Store, dir directory.Directory, records repository.RecordsRepository, m *metrics.Metrics, log *logger.Logger, opts ...Option) *Verifier {
	o := buildOptions(opts)
	return &Verifier{
		store:     store,
		directory: dir,
		records:   records,
		metrics:   m,
		logger:    log,
		now:       o.now,
	}
}

func (v *Verifier) Verify(ctx context.Context, doctorID uuid.UUID, patientEmail, passkeyInput string) (*model.PatientRecordBundle, error) {
	code := passkey.Normalize(passkeyInput)
	if !passkey.ValidFormat(code) {
		v.record(outcomeInvalidFormat)
		return nil, apperrors.NewInvalidFormat(fmt.Sprintf("access code must be %d letters or digits", passkey.Length))
	}

	patient, err := v.directory.PatientByEmail(ctx, patientEmail)
	if err != nil {
		if errors.Is(err, apperrors.NotFoundError) {
			v.record(outcomeNotFound)
		} else {
			v.record(outcomeError)
		}
		return nil, err
	}

	log := v.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"doctor_id":  doctorID.String(),
		"patient_id": patient.ID.String(),
	})

	grants := v.store.Grants()
	grant, err := grants.FindByPasskey(ctx, doctorID, patient.ID, code)
	if errors.Is(err, repository.ErrNotFound) {
		v.record(outcomeInvalidCode)
		log.Info("access code rejected")
		return nil, apperrors.NewInvalidCode()
	}
	if err != nil {
		v.record(outcomeError)
		return nil, apperrors.NewInternal(err)
	}

	now := v.now()
	if grant.EffectiveStatus(now) != model.GrantStatusPending {
		if grant.Status == model.GrantStatusPending {
			if n, err := grants.ExpireStale(ctx, patient.ID, doctorID, now); err != nil {
				log.Error(err, "failed to expire stale grants")
			} else if n > 0 {
				v.metrics.GrantsExpired.Add(float64(n))
			}
		}
		v.record(outcomeExpired)
		log.Info("access code no longer usable", "grant_id", grant.ID.String(), "status", string(grant.Status))
		return nil, apperrors.NewExpired()
	}

	consumed, err := grants.ConsumeIfLive(ctx, grant.ID, now)
	if err != nil {
		v.record(outcomeError)
		return nil, apperrors.NewInternal(err)
	}
	if !consumed {
		// Lost the race to another verification or crossed the expiry.
		v.record(outcomeExpired)
		return nil, apperrors.NewExpired()
	}

	bundle, err := v.records.GetPatientBundle(ctx, patient.ID)
	if err != nil {
		v.record(outcomeError)
		log.Error(err, "failed to load records for consumed grant", "grant_id", grant.ID.String())
		return nil, apperrors.NewInternal(err)
	}

	event := model.AccessVerifiedEvent{
		GrantID:    grant.ID,
		DoctorID:   doctorID,
		PatientID:  patient.ID,
		VerifiedAt: now,
	}
	if err := createEvent(ctx, v.store, model.EventAccessVerified, now, event); err != nil {
		log.Error(err, "failed to record verification event", "grant_id", grant.ID.String())
	}

	v.record(outcomeGranted)
	log.Info("access granted", "grant_id", grant.ID.String())
	return bundle, nil
}

func (v *Verifier) record(outcome string) {
	v.metrics.VerificationResults.WithLabelValues(outcome).Inc()
}
