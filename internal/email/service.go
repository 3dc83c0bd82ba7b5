// Package email delivers access codes to patients by mail.
package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/medihub/access-api/internal/config"
	"github.com/medihub/access-api/internal/model"
)

type Service interface {
	SendAccessCode(ctx context.Context, event *model.AccessRequestedEvent) error
}

type smtpService struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPService(cfg config.EmailConfig) Service {
	return &smtpService{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (s *smtpService) SendAccessCode(ctx context.Context, event *model.AccessRequestedEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.PatientEmail == "" {
		return fmt.Errorf("access code event %s has no recipient", event.GrantID)
	}
	if err := s.dialer.DialAndSend(NewAccessCodeMessage(s.from, event)); err != nil {
		return fmt.Errorf("failed to send access code email: %w", err)
	}
	return nil
}

// NewAccessCodeMessage renders the mail sent for an access request.
func NewAccessCodeMessage(from string, event *model.AccessRequestedEvent) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetAddressHeader("To", event.PatientEmail, event.PatientName)
	m.SetHeader("Subject", "Doctor Access Request")
	m.SetBody("text/plain", fmt.Sprintf(
		"Hello %s,\n\n%s has requested access to view your medical records.\n"+
			"Share this access code with the doctor to allow it: %s\n\n"+
			"The code expires at %s.\n",
		event.PatientName,
		event.DoctorName,
		event.Passkey,
		event.ExpiresAt.UTC().Format("2006-01-02 15:04 MST"),
	))
	return m
}
