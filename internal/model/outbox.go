package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusProcessed OutboxStatus = "processed"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// Outbox event types
const (
	EventAccessRequested = "access.requested"
	EventAccessVerified  = "access.verified"
)

type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       string          `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
}

// AccessRequestedEvent is the payload of EventAccessRequested.
type AccessRequestedEvent struct {
	GrantID      uuid.UUID `json:"grant_id"`
	DoctorID     uuid.UUID `json:"doctor_id"`
	DoctorName   string    `json:"doctor_name"`
	PatientID    uuid.UUID `json:"patient_id"`
	PatientName  string    `json:"patient_name"`
	PatientEmail string    `json:"patient_email"`
	Passkey      string    `json:"passkey"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// AccessRequestedNotice is the broadcast form of AccessRequestedEvent. It
// never carries the passkey or the patient's contact details.
type AccessRequestedNotice struct {
	GrantID   uuid.UUID `json:"grant_id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	PatientID uuid.UUID `json:"patient_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (e *AccessRequestedEvent) Notice() AccessRequestedNotice {
	return AccessRequestedNotice{
		GrantID:   e.GrantID,
		DoctorID:  e.DoctorID,
		PatientID: e.PatientID,
		ExpiresAt: e.ExpiresAt,
	}
}

// AccessVerifiedEvent is the payload of EventAccessVerified.
type AccessVerifiedEvent struct {
	GrantID    uuid.UUID `json:"grant_id"`
	DoctorID   uuid.UUID `json:"doctor_id"`
	PatientID  uuid.UUID `json:"patient_id"`
	VerifiedAt time.Time `json:"verified_at"`
}
