package model

import (
	"time"

	"github.com/google/uuid"
)

type GrantStatus string

const (
	GrantStatusPending  GrantStatus = "pending"
	GrantStatusConsumed GrantStatus = "consumed"
	GrantStatusExpired  GrantStatus = "expired"
)

// PasskeyTTL is the fixed validity window of an access grant.
const PasskeyTTL = 30 * time.Minute

// AccessGrant is one doctor's request for one patient's records, gated by a
// one-time passkey.
type AccessGrant struct {
	Base
	DoctorID   uuid.UUID   `json:"doctor_id" db:"doctor_id"`
	PatientID  uuid.UUID   `json:"patient_id" db:"patient_id"`
	Passkey    string      `json:"passkey" db:"passkey"`
	Status     GrantStatus `json:"status" db:"status"`
	ExpiresAt  time.Time   `json:"expires_at" db:"expires_at"`
	ConsumedAt *time.Time  `json:"consumed_at,omitempty" db:"consumed_at"`
}

// IsLive reports whether the grant is pending and not past its expiry at now.
func (g *AccessGrant) IsLive(now time.Time) bool {
	return g.Status == GrantStatusPending && !now.After(g.ExpiresAt)
}

// EffectiveStatus applies lazy expiry: a pending grant past its expiry reads as expired.
func (g *AccessGrant) EffectiveStatus(now time.Time) GrantStatus {
	if g.Status == GrantStatusPending && now.After(g.ExpiresAt) {
		return GrantStatusExpired
	}
	return g.Status
}

// AccessRequestResult is handed back to the requesting doctor.
type AccessRequestResult struct {
	Grant       *AccessGrant `json:"-"`
	PatientName string       `json:"patient_name"`
	Reused      bool         `json:"reused"`
}

type RequestAccessRequest struct {
	PatientEmail string `json:"patient_email" binding:"required,email"`
}

type VerifyPasskeyRequest struct {
	PatientEmail string `json:"patient_email" binding:"required,email"`
	Passkey      string `json:"passkey" binding:"required,passkey"`
}

type AccessRequestResponse struct {
	Message       string    `json:"message"`
	PassKeySentTo string    `json:"passkey_sent_to"`
	PatientName   string    `json:"patient_name"`
	Passkey       string    `json:"passkey"`
	ExpiresAt     time.Time `json:"expires_at"`
	ExpiresIn     string    `json:"expires_in"`
	Reused        bool      `json:"reused"`
}
