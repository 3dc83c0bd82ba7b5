package access

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medihub/access-api/internal/model"
	"github.com/medihub/access-api/internal/repository"
	apperrors "github.com/medihub/access-api/pkg/errors"
)

// memStore is an in-memory repository.Store. WithTx serializes transactions
// and restores a snapshot when fn fails.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	grants        map[uuid.UUID]*model.AccessGrant
	notifications map[uuid.UUID]*model.Notification
	events        []*model.OutboxEvent

	lookups            int
	failNotification   error
	failOutboxVerified error
}

func newMemStore() *memStore {
	return &memStore{
		grants:        make(map[uuid.UUID]*model.AccessGrant),
		notifications: make(map[uuid.UUID]*model.Notification),
	}
}

func (s *memStore) Grants() repository.GrantRepository               { return memGrants{s} }
func (s *memStore) Notifications() repository.NotificationRepository { return memNotifications{s} }
func (s *memStore) Outbox() repository.OutboxRepository              { return memOutbox{s} }

func (s *memStore) WithTx(ctx context.Context, fn func(repository.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	grants := make(map[uuid.UUID]*model.AccessGrant, len(s.grants))
	for id, g := range s.grants {
		cp := *g
		grants[id] = &cp
	}
	notifications := make(map[uuid.UUID]*model.Notification, len(s.notifications))
	for id, n := range s.notifications {
		cp := *n
		notifications[id] = &cp
	}
	events := append([]*model.OutboxEvent(nil), s.events...)
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.grants, s.notifications, s.events = grants, notifications, events
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) grantList() []*model.AccessGrant {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.AccessGrant
	for _, g := range s.grants {
		cp := *g
		out = append(out, &cp)
	}
	return out
}

func (s *memStore) notificationList() []*model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Notification
	for _, n := range s.notifications {
		cp := *n
		out = append(out, &cp)
	}
	return out
}

func (s *memStore) eventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

func (s *memStore) grant(id uuid.UUID) *model.AccessGrant {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.grants[id]
	return &cp
}

func (s *memStore) storageLookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

type memGrants struct{ s *memStore }

func (r memGrants) Create(_ context.Context, g *model.AccessGrant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, other := range r.s.grants {
		if other.PatientID == g.PatientID && other.Passkey == g.Passkey && other.Status == model.GrantStatusPending {
			return repository.ErrPasskeyCollision
		}
	}
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	cp := *g
	r.s.grants[g.ID] = &cp
	return nil
}

func (r memGrants) newest(match func(*model.AccessGrant) bool) (*model.AccessGrant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.lookups++
	var found []*model.AccessGrant
	for _, g := range r.s.grants {
		if match(g) {
			found = append(found, g)
		}
	}
	if len(found) == 0 {
		return nil, repository.ErrNotFound
	}
	sort.Slice(found, func(i, j int) bool { return found[i].CreatedAt.After(found[j].CreatedAt) })
	cp := *found[0]
	return &cp, nil
}

func (r memGrants) FindLive(_ context.Context, doctorID, patientID uuid.UUID, now time.Time) (*model.AccessGrant, error) {
	return r.newest(func(g *model.AccessGrant) bool {
		return g.DoctorID == doctorID && g.PatientID == patientID && g.IsLive(now)
	})
}

func (r memGrants) FindByPasskey(_ context.Context, doctorID, patientID uuid.UUID, passkey string) (*model.AccessGrant, error) {
	return r.newest(func(g *model.AccessGrant) bool {
		return g.DoctorID == doctorID && g.PatientID == patientID && g.Passkey == passkey
	})
}

func (r memGrants) LivePasskeyExists(_ context.Context, patientID uuid.UUID, passkey string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, g := range r.s.grants {
		if g.PatientID == patientID && g.Passkey == passkey && g.IsLive(now) {
			return true, nil
		}
	}
	return false, nil
}

func (r memGrants) ConsumeIfLive(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.grants[id]
	if !ok || !g.IsLive(now) {
		return false, nil
	}
	g.Status = model.GrantStatusConsumed
	consumedAt := now
	g.ConsumedAt = &consumedAt
	return true, nil
}

func (r memGrants) ExpireStale(_ context.Context, patientID, doctorID uuid.UUID, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, g := range r.s.grants {
		if g.PatientID != patientID || (doctorID != uuid.Nil && g.DoctorID != doctorID) {
			continue
		}
		if g.Status == model.GrantStatusPending && now.After(g.ExpiresAt) {
			g.Status = model.GrantStatusExpired
			n++
		}
	}
	return n, nil
}

func (r memGrants) ExpireAllStale(_ context.Context, now time.Time, limit int) (int64, error) {
	return 0, errors.New("not used")
}

type memNotifications struct{ s *memStore }

func (r memNotifications) Create(_ context.Context, n *model.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failNotification != nil {
		return r.s.failNotification
	}
	cp := *n
	r.s.notifications[n.ID] = &cp
	return nil
}

func (r memNotifications) Get(_ context.Context, id uuid.UUID) (*model.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n, ok := r.s.notifications[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (r memNotifications) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*model.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.Notification{}
	for _, n := range r.s.notifications {
		if n.PatientID == patientID {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r memNotifications) MarkRead(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n, ok := r.s.notifications[id]
	if !ok {
		return repository.ErrNotFound
	}
	n.IsRead = true
	return nil
}

func (r memNotifications) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.notifications[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.notifications, id)
	return nil
}

func (r memNotifications) DeleteReadBefore(_ context.Context, cutoff time.Time) (int64, error) {
	return 0, errors.New("not used")
}

type memOutbox struct{ s *memStore }

func (r memOutbox) Create(_ context.Context, e *model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if e.EventType == model.EventAccessVerified && r.s.failOutboxVerified != nil {
		return r.s.failOutboxVerified
	}
	r.s.events = append(r.s.events, e)
	return nil
}

func (r memOutbox) GetPendingEvents(context.Context, int) ([]*model.OutboxEvent, error) {
	return nil, errors.New("not used")
}

func (r memOutbox) MarkProcessed(context.Context, uuid.UUID) error { return errors.New("not used") }

func (r memOutbox) MarkFailed(context.Context, uuid.UUID, string, int) error {
	return errors.New("not used")
}

func (r memOutbox) DeleteProcessedBefore(context.Context, time.Time) (int64, error) {
	return 0, errors.New("not used")
}

// fakeDirectory resolves users from a fixed list.
type fakeDirectory struct {
	users []*model.User
}

func (d *fakeDirectory) add(role, name, email string) *model.User {
	u := &model.User{Email: email, Name: name, Role: role}
	u.ID = uuid.New()
	d.users = append(d.users, u)
	return u
}

func (d *fakeDirectory) Doctor(_ context.Context, id uuid.UUID) (*model.User, error) {
	for _, u := range d.users {
		if u.ID == id && u.IsDoctor() {
			return u, nil
		}
	}
	return nil, apperrors.NewNotFound("doctor", nil)
}

func (d *fakeDirectory) PatientByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range d.users {
		if strings.EqualFold(u.Email, strings.TrimSpace(email)) && u.IsPatient() {
			return u, nil
		}
	}
	return nil, apperrors.NewNotFound("patient", nil)
}

type fakeRecords struct {
	err error
}

func (r *fakeRecords) GetPatientBundle(_ context.Context, patientID uuid.UUID) (*model.PatientRecordBundle, error) {
	if r.err != nil {
		return nil, r.err
	}
	b := &model.PatientRecordBundle{Patient: model.PatientProfile{ID: patientID, Name: "Jane Roe"}}
	b.FillCounts()
	return b, nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// codeSequence returns the given codes in order, repeating the last one.
type codeSequence struct {
	mu    sync.Mutex
	codes []string
	calls int
}

func sequence(codes ...string) *codeSequence {
	return &codeSequence{codes: codes}
}

func (g *codeSequence) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.calls
	if i >= len(g.codes) {
		i = len(g.codes) - 1
	}
	g.calls++
	return g.codes[i], nil
}
