package directory

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medihub/access-api/internal/model"
	"github.com/medihub/access-api/internal/repository"
	apperrors "github.com/medihub/access-api/pkg/errors"
)

type mockUserRepo struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*model.User
	lookups int
}

func newMockUserRepo(users ...*model.User) *mockUserRepo {
	r := &mockUserRepo{byID: make(map[uuid.UUID]*model.User)}
	for _, u := range users {
		r.byID[u.ID] = u
	}
	return r
}

func (r *mockUserRepo) Get(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (r *mockUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	for _, u := range r.byID {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func newUser(role, email string) *model.User {
	u := &model.User{Email: email, Name: "User " + email, Role: role}
	u.ID = uuid.New()
	return u
}

func TestService_Doctor(t *testing.T) {
	doctor := newUser(model.UserRoleDoctor, "doc@example.com")
	patient := newUser(model.UserRolePatient, "pat@example.com")
	svc := NewService(newMockUserRepo(doctor, patient), 0)

	got, err := svc.Doctor(context.Background(), doctor.ID)
	require.NoError(t, err)
	assert.Equal(t, doctor.ID, got.ID)

	_, err = svc.Doctor(context.Background(), patient.ID)
	assert.ErrorIs(t, err, apperrors.NotFoundError)

	_, err = svc.Doctor(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.NotFoundError)
}

func TestService_PatientByEmail(t *testing.T) {
	doctor := newUser(model.UserRoleDoctor, "doc@example.com")
	patient := newUser(model.UserRolePatient, "pat@example.com")
	svc := NewService(newMockUserRepo(doctor, patient), 0)

	got, err := svc.PatientByEmail(context.Background(), "  PAT@example.com ")
	require.NoError(t, err)
	assert.Equal(t, patient.ID, got.ID)

	_, err = svc.PatientByEmail(context.Background(), "doc@example.com")
	assert.ErrorIs(t, err, apperrors.NotFoundError)

	_, err = svc.PatientByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, apperrors.NotFoundError)

	_, err = svc.PatientByEmail(context.Background(), "   ")
	assert.ErrorIs(t, err, apperrors.NotFoundError)
}

func TestService_PatientByEmailCachesHits(t *testing.T) {
	patient := newUser(model.UserRolePatient, "pat@example.com")
	repo := newMockUserRepo(patient)
	svc := NewService(repo, time.Minute)

	for i := 0; i < 3; i++ {
		_, err := svc.PatientByEmail(context.Background(), "pat@example.com")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, repo.lookups)

	_, err := svc.PatientByEmail(context.Background(), "new@example.com")
	assert.Error(t, err)
	_, err = svc.PatientByEmail(context.Background(), "new@example.com")
	assert.Error(t, err)
	assert.Equal(t, 3, repo.lookups)
}
