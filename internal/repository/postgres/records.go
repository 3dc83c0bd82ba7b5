package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medihub/access-api/internal/model"
	"github.com/medihub/access-api/internal/repository"
)

type recordsRepository struct {
	db *sqlx.DB
}

func NewRecordsRepository(db *sqlx.DB) repository.RecordsRepository {
	return &recordsRepository{db: db}
}

func (r *recordsRepository) GetPatientBundle(ctx context.Context, patientID uuid.UUID) (*model.PatientRecordBundle, error) {
	bundle := &model.PatientRecordBundle{}

	profileQuery := `
		SELECT id, name, email, age, condition, medications, allergies
		FROM users
		WHERE id = $1 AND role = 'patient'
	`
	if err := r.db.GetContext(ctx, &bundle.Patient, profileQuery, patientID); err != nil {
		return nil, notFound(err)
	}

	if err := r.db.SelectContext(ctx, &bundle.MedicalRecords, `
		SELECT id, patient_id, hospital, doctor_name, record_type, category,
			description, details, record_date, attachment_ref, created_at
		FROM medical_records
		WHERE patient_id = $1
		ORDER BY created_at DESC
	`, patientID); err != nil {
		return nil, fmt.Errorf("failed to load medical records: %w", err)
	}

	if err := r.db.SelectContext(ctx, &bundle.Prescriptions, `
		SELECT id, patient_id, hospital, doctor_name, medicine_name, instructions,
			notes, status, prescription_date, attachment_ref, created_at
		FROM prescriptions
		WHERE patient_id = $1
		ORDER BY created_at DESC
	`, patientID); err != nil {
		return nil, fmt.Errorf("failed to load prescriptions: %w", err)
	}

	if err := r.db.SelectContext(ctx, &bundle.LabResults, `
		SELECT id, patient_id, hospital_name, doctor_name, instructions, report,
			result_date, attachment_ref, created_at
		FROM lab_results
		WHERE patient_id = $1
		ORDER BY created_at DESC
	`, patientID); err != nil {
		return nil, fmt.Errorf("failed to load lab results: %w", err)
	}

	if err := r.db.SelectContext(ctx, &bundle.Appointments, `
		SELECT id, patient_id, doctor_id, scheduled_at, status, type, reason, notes, created_at
		FROM appointments
		WHERE patient_id = $1
		ORDER BY created_at DESC
	`, patientID); err != nil {
		return nil, fmt.Errorf("failed to load appointments: %w", err)
	}

	bundle.FillCounts()
	return bundle, nil
}
