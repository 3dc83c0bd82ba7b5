package model

import (
	"time"

	"github.com/google/uuid"
)

type MedicalRecord struct {
	Base
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	Hospital    string     `db:"hospital" json:"hospital"`
	DoctorName  string     `db:"doctor_name" json:"doctor_name"`
	RecordType  string     `db:"record_type" json:"record_type"`
	Category    string     `db:"category" json:"category"`
	Description string     `db:"description" json:"description"`
	Details     string     `db:"details" json:"details"`
	RecordDate  *time.Time `db:"record_date" json:"record_date,omitempty"`
	// Opaque reference into the file hosting service.
	AttachmentRef *string `db:"attachment_ref" json:"attachment_ref,omitempty"`
}

type Prescription struct {
	Base
	PatientID        uuid.UUID  `db:"patient_id" json:"patient_id"`
	Hospital         string     `db:"hospital" json:"hospital"`
	DoctorName       string     `db:"doctor_name" json:"doctor_name"`
	MedicineName     string     `db:"medicine_name" json:"medicine_name"`
	Instructions     string     `db:"instructions" json:"instructions"`
	Notes            string     `db:"notes" json:"notes"`
	Status           string     `db:"status" json:"status"`
	PrescriptionDate *time.Time `db:"prescription_date" json:"prescription_date,omitempty"`
	AttachmentRef    *string    `db:"attachment_ref" json:"attachment_ref,omitempty"`
}

type LabResult struct {
	Base
	PatientID     uuid.UUID  `db:"patient_id" json:"patient_id"`
	HospitalName  string     `db:"hospital_name" json:"hospital_name"`
	DoctorName    string     `db:"doctor_name" json:"doctor_name"`
	Instructions  string     `db:"instructions" json:"instructions"`
	Report        string     `db:"report" json:"report"`
	ResultDate    *time.Time `db:"result_date" json:"result_date,omitempty"`
	AttachmentRef *string    `db:"attachment_ref" json:"attachment_ref,omitempty"`
}
