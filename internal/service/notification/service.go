package notification

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/medihub/access-api/internal/model"
	"github.com/medihub/access-api/internal/repository"
	apperrors "github.com/medihub/access-api/pkg/errors"
	"github.com/medihub/access-api/pkg/logger"
	"github.com/medihub/access-api/pkg/metrics"
)

// DefaultPollInterval is how often clients are told to refresh the feed.
const DefaultPollInterval = 30 * time.Second

type Service interface {
	ListForPatient(ctx context.Context, patientID uuid.UUID) (*model.Feed, error)
	Iterate(ctx context.Context, patientID uuid.UUID, fn func(*model.Notification) bool) error
	MarkRead(ctx context.Context, patientID, notificationID uuid.UUID) error
	Delete(ctx context.Context, patientID, notificationID uuid.UUID) error
}

type service struct {
	repo         repository.NotificationRepository
	metrics      *metrics.Metrics
	logger       *logger.Logger
	pollInterval time.Duration
	now          func() time.Time
}

func NewService(repo repository.NotificationRepository, pollInterval time.Duration, m *metrics.Metrics, log *logger.Logger) Service {
	return newService(repo, pollInterval, m, log, time.Now)
}

func newService(repo repository.NotificationRepository, pollInterval time.Duration, m *metrics.Metrics, log *logger.Logger, now func() time.Time) *service {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &service{
		repo:         repo,
		metrics:      m,
		logger:       log,
		pollInterval: pollInterval,
		now:          now,
	}
}

// ListForPatient returns the patient's entries newest first. Listing has no
// side effects, so clients may poll it freely.
func (s *service) ListForPatient(ctx context.Context, patientID uuid.UUID) (*model.Feed, error) {
	feed := &model.Feed{
		Notifications:       []*model.Notification{},
		PollIntervalSeconds: int(s.pollInterval / time.Second),
	}

	err := s.Iterate(ctx, patientID, func(n *model.Notification) bool {
		feed.Notifications = append(feed.Notifications, n)
		if !n.IsRead {
			feed.UnreadCount++
		}
		return true
	})
	if err != nil {
		s.record("list", err)
		return nil, err
	}

	s.record("list", nil)
	return feed, nil
}

// Iterate calls fn for each entry, newest first, until fn returns false.
// Every call runs a fresh query. Passkeys of expired entries are masked.
func (s *service) Iterate(ctx context.Context, patientID uuid.UUID, fn func(*model.Notification) bool) error {
	notifications, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return apperrors.NewInternal(err)
	}

	now := s.now()
	for _, n := range notifications {
		if n.IsExpired(now) {
			n.Passkey = ""
		}
		if !fn(n) {
			return nil
		}
	}
	return nil
}

// MarkRead is idempotent.
func (s *service) MarkRead(ctx context.Context, patientID, notificationID uuid.UUID) error {
	if err := s.owned(ctx, patientID, notificationID); err != nil {
		s.record("mark_read", err)
		return err
	}

	err := s.repo.MarkRead(ctx, notificationID)
	if errors.Is(err, repository.ErrNotFound) {
		err = apperrors.NewNotFound("notification", err)
	} else if err != nil {
		err = apperrors.NewInternal(err)
	}
	s.record("mark_read", err)
	return err
}

// Delete removes the entry only. The grant it announced is unaffected.
func (s *service) Delete(ctx context.Context, patientID, notificationID uuid.UUID) error {
	if err := s.owned(ctx, patientID, notificationID); err != nil {
		s.record("delete", err)
		return err
	}

	err := s.repo.Delete(ctx, notificationID)
	if errors.Is(err, repository.ErrNotFound) {
		err = apperrors.NewNotFound("notification", err)
	} else if err != nil {
		err = apperrors.NewInternal(err)
	}
	if err == nil {
		s.logger.WithContext(ctx).Info("notification deleted",
			"notification_id", notificationID.String(), "patient_id", patientID.String())
	}
	s.record("delete", err)
	return err
}

func (s *service) owned(ctx context.Context, patientID, notificationID uuid.UUID) error {
	n, err := s.repo.Get(ctx, notificationID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound("notification", err)
	}
	if err != nil {
		return apperrors.NewInternal(err)
	}
	if n.PatientID != patientID {
		return apperrors.NewForbidden("notification belongs to another patient")
	}
	return nil
}

func (s *service) record(operation string, err error) {
	status := "success"
	if err != nil {
		status = apperrors.CodeOf(err).String()
	}
	s.metrics.NotificationOperations.WithLabelValues(operation, status).Inc()
}
