package email

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medihub/access-api/internal/config"
	"github.com/medihub/access-api/internal/model"
)

func TestNewAccessCodeMessage(t *testing.T) {
	event := &model.AccessRequestedEvent{
		GrantID:      uuid.New(),
		DoctorName:   "Dr. Ada Lovelace",
		PatientName:  "Jane Roe",
		PatientEmail: "jane@example.com",
		Passkey:      "K7M2P",
		ExpiresAt:    time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}

	var buf bytes.Buffer
	_, err := NewAccessCodeMessage("no-reply@medihub.local", event).WriteTo(&buf)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "To: \"Jane Roe\" <jane@example.com>")
	assert.Contains(t, out, "Subject: Doctor Access Request")
	assert.Contains(t, out, "K7M2P")
	assert.Contains(t, out, "2026-03-14 09:30 UTC")
}

func TestSMTPService_RejectsMissingRecipient(t *testing.T) {
	svc := NewSMTPService(config.EmailConfig{Host: "localhost", Port: 2525})

	err := svc.SendAccessCode(context.Background(), &model.AccessRequestedEvent{GrantID: uuid.New()})
	assert.Error(t, err)
}

func TestSMTPService_HonoursCancelledContext(t *testing.T) {
	svc := NewSMTPService(config.EmailConfig{Host: "localhost", Port: 2525})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.SendAccessCode(ctx, &model.AccessRequestedEvent{PatientEmail: "jane@example.com"})
	assert.ErrorIs(t, err, context.Canceled)
}
