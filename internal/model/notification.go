package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	NotificationTypePasskeyRequest = "passkey_request"
)

// Notification is a patient-owned inbox entry.
type Notification struct {
	Base
	PatientID  uuid.UUID  `json:"patient_id" db:"patient_id"`
	DoctorID   uuid.UUID  `json:"doctor_id" db:"doctor_id"`
	GrantID    *uuid.UUID `json:"grant_id,omitempty" db:"grant_id"`
	Type       string     `json:"type" db:"type"`
	Title      string     `json:"title" db:"title"`
	Message    string     `json:"message" db:"message"`
	DoctorName string     `json:"doctor_name" db:"doctor_name"`
	Passkey    string     `json:"passkey,omitempty" db:"passkey"`
	IsRead     bool       `json:"is_read" db:"is_read"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" db:"expires_at"`
}

// IsExpired reports whether the entry's validity display has ended.
func (n *Notification) IsExpired(now time.Time) bool {
	return n.ExpiresAt != nil && now.After(*n.ExpiresAt)
}

// Feed is one snapshot of a patient's inbox.
type Feed struct {
	Notifications       []*Notification `json:"notifications"`
	UnreadCount         int             `json:"unread_count"`
	PollIntervalSeconds int             `json:"poll_interval_seconds"`
}
