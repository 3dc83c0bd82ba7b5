package model

import (
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PatientProfile is the profile part of a record bundle.
type PatientProfile struct {
	ID          uuid.UUID      `json:"id" db:"id"`
	Name        string         `json:"name" db:"name"`
	Email       string         `json:"email" db:"email"`
	Age         *int           `json:"age,omitempty" db:"age"`
	Condition   *string        `json:"condition,omitempty" db:"condition"`
	Medications pq.StringArray `json:"medications" db:"medications"`
	Allergies   pq.StringArray `json:"allergies" db:"allergies"`
}

// PatientRecordBundle is the capability returned by a successful passkey
// verification: everything a doctor may read about one patient.
type PatientRecordBundle struct {
	Patient            PatientProfile   `json:"patient"`
	MedicalRecords     []*MedicalRecord `json:"medical_records"`
	MedicalRecordCount int              `json:"medical_records_count"`
	Prescriptions      []*Prescription  `json:"prescriptions"`
	PrescriptionCount  int              `json:"prescriptions_count"`
	LabResults         []*LabResult     `json:"lab_results"`
	LabResultCount     int              `json:"lab_results_count"`
	Appointments       []*Appointment   `json:"appointments"`
	AppointmentCount   int              `json:"appointments_count"`
}

// FillCounts sets the count fields from the list lengths and replaces nil
// lists with empty ones so clients always see arrays.
func (b *PatientRecordBundle) FillCounts() {
	if b.MedicalRecords == nil {
		b.MedicalRecords = []*MedicalRecord{}
	}
	if b.Prescriptions == nil {
		b.Prescriptions = []*Prescription{}
	}
	if b.LabResults == nil {
		b.LabResults = []*LabResult{}
	}
	if b.Appointments == nil {
		b.Appointments = []*Appointment{}
	}
	if b.Patient.Medications == nil {
		b.Patient.Medications = pq.StringArray{}
	}
	if b.Patient.Allergies == nil {
		b.Patient.Allergies = pq.StringArray{}
	}
	b.MedicalRecordCount = len(b.MedicalRecords)
	b.PrescriptionCount = len(b.Prescriptions)
	b.LabResultCount = len(b.LabResults)
	b.AppointmentCount = len(b.Appointments)
}
