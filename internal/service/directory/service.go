// Package directory resolves doctors and patients through the portal's user
// store, caching email lookups for a short time.
package directory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/medihub/access-api/internal/model"
	"github.com/medihub/access-api/internal/repository"
	apperrors "github.com/medihub/access-api/pkg/errors"
)

type Directory interface {
	Doctor(ctx context.Context, id uuid.UUID) (*model.User, error)
	PatientByEmail(ctx context.Context, email string) (*model.User, error)
}

type Service struct {
	users repository.UserRepository
	cache *cache.Cache
}

// NewService wraps users. A ttl of zero disables caching.
func NewService(users repository.UserRepository, ttl time.Duration) *Service {
	s := &Service{users: users}
	if ttl > 0 {
		s.cache = cache.New(ttl, 2*ttl)
	}
	return s
}

// Doctor returns the user with id when it holds the doctor role.
func (s *Service) Doctor(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.users.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("doctor", err)
	}
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	if !user.IsDoctor() {
		return nil, apperrors.NewNotFound("doctor", nil)
	}
	return user, nil
}

// PatientByEmail resolves email to a patient. Misses are not cached so a
// newly registered patient is visible immediately.
func (s *Service) PatientByEmail(ctx context.Context, email string) (*model.User, error) {
	key := strings.ToLower(strings.TrimSpace(email))
	if key == "" {
		return nil, apperrors.NewNotFound("patient", nil)
	}

	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			return cached.(*model.User), nil
		}
	}

	user, err := s.users.GetByEmail(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("patient", err)
	}
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	if !user.IsPatient() {
		return nil, apperrors.NewNotFound("patient", nil)
	}

	if s.cache != nil {
		s.cache.SetDefault(key, user)
	}
	return user, nil
}
