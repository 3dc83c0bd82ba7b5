package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medihub/access-api/internal/model"
	"github.com/medihub/access-api/internal/repository"
	"github.com/medihub/access-api/pkg/logger"
	"github.com/medihub/access-api/pkg/messaging"
	"github.com/medihub/access-api/pkg/metrics"
)

type mockOutbox struct {
	mu        sync.Mutex
	events    []*model.OutboxEvent
	processed map[uuid.UUID]bool
	failed    map[uuid.UUID]string
}

func newMockOutbox(events ...*model.OutboxEvent) *mockOutbox {
	return &mockOutbox{events: events, processed: map[uuid.UUID]bool{}, failed: map[uuid.UUID]string{}}
}

func (m *mockOutbox) Create(_ context.Context, e *model.OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *mockOutbox) GetPendingEvents(_ context.Context, limit int) ([]*model.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.OutboxEvent
	for _, e := range m.events {
		if !m.processed[e.ID] && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockOutbox) MarkProcessed(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed[id] = true
	return nil
}

func (m *mockOutbox) MarkFailed(_ context.Context, id uuid.UUID, errMsg string, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[id] = errMsg
	return nil
}

func (m *mockOutbox) DeleteProcessedBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type mockStore struct {
	outbox *mockOutbox
}

func (s *mockStore) Grants() repository.GrantRepository               { return nil }
func (s *mockStore) Notifications() repository.NotificationRepository { return nil }
func (s *mockStore) Outbox() repository.OutboxRepository              { return s.outbox }
func (s *mockStore) WithTx(_ context.Context, fn func(repository.Store) error) error {
	return fn(s)
}

type recordingBroker struct {
	mu        sync.Mutex
	published []messaging.Message
	failures  int
}

func (b *recordingBroker) Publish(_ context.Context, channel string, message interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures > 0 {
		b.failures--
		return errors.New("broker unavailable")
	}
	b.published = append(b.published, message.(messaging.Message))
	return nil
}

func (b *recordingBroker) Close() error { return nil }

type recordingMailer struct {
	sent []*model.AccessRequestedEvent
}

func (m *recordingMailer) SendAccessCode(_ context.Context, e *model.AccessRequestedEvent) error {
	m.sent = append(m.sent, e)
	return nil
}

func newEvent(t *testing.T, eventType string, payload interface{}) *model.OutboxEvent {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &model.OutboxEvent{ID: uuid.New(), EventType: eventType, Payload: data, CreatedAt: time.Now()}
}

func testConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{BatchSize: 10, PollInterval: time.Second, RetryAttempts: 3, RetryDelay: 0}
}

func TestOutboxProcessor_DeliversToSinks(t *testing.T) {
	requested := newEvent(t, model.EventAccessRequested, model.AccessRequestedEvent{
		PatientEmail: "jane@example.com",
		Passkey:      "K7M2P",
	})
	verified := newEvent(t, model.EventAccessVerified, model.AccessVerifiedEvent{})
	outbox := newMockOutbox(requested, verified)
	broker := &recordingBroker{}
	mailer := &recordingMailer{}

	p, err := NewOutboxProcessor(&mockStore{outbox: outbox},
		[]Sink{BrokerSink{Broker: broker}, EmailSink{Mailer: mailer}},
		testConfig(), logger.Nop(), metrics.NewNop())
	require.NoError(t, err)

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, broker.published, 2)
	assert.Equal(t, model.EventAccessRequested, broker.published[0].Type)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "K7M2P", mailer.sent[0].Passkey)
	assert.True(t, outbox.processed[requested.ID])
	assert.True(t, outbox.processed[verified.ID])
}

func TestOutboxProcessor_RetriesTransientFailures(t *testing.T) {
	event := newEvent(t, model.EventAccessVerified, model.AccessVerifiedEvent{})
	outbox := newMockOutbox(event)
	broker := &recordingBroker{failures: 2}

	p, err := NewOutboxProcessor(&mockStore{outbox: outbox}, []Sink{BrokerSink{Broker: broker}},
		testConfig(), logger.Nop(), metrics.NewNop())
	require.NoError(t, err)

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, outbox.processed[event.ID])
}

func TestOutboxProcessor_MarksFailedAfterRetries(t *testing.T) {
	event := newEvent(t, model.EventAccessVerified, model.AccessVerifiedEvent{})
	outbox := newMockOutbox(event)
	broker := &recordingBroker{failures: 10}

	p, err := NewOutboxProcessor(&mockStore{outbox: outbox}, []Sink{BrokerSink{Broker: broker}},
		testConfig(), logger.Nop(), metrics.NewNop())
	require.NoError(t, err)

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, outbox.processed[event.ID])
	assert.Contains(t, outbox.failed[event.ID], "broker unavailable")
}

func TestNewOutboxProcessor_ValidatesConfig(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 0
	_, err := NewOutboxProcessor(&mockStore{outbox: newMockOutbox()}, nil, cfg, logger.Nop(), metrics.NewNop())
	assert.Error(t, err)
}

func TestBrokerSink_PublishesNoticeWithoutPasskey(t *testing.T) {
	grantID, doctorID, patientID := uuid.New(), uuid.New(), uuid.New()
	expiresAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	event := newEvent(t, model.EventAccessRequested, model.AccessRequestedEvent{
		GrantID:      grantID,
		DoctorID:     doctorID,
		PatientID:    patientID,
		PatientEmail: "jane@example.com",
		Passkey:      "K7M2P",
		ExpiresAt:    expiresAt,
	})
	broker := &recordingBroker{}

	require.NoError(t, BrokerSink{Broker: broker}.Deliver(context.Background(), event))
	require.Len(t, broker.published, 1)

	wire, err := json.Marshal(broker.published[0])
	require.NoError(t, err)
	assert.NotContains(t, string(wire), "K7M2P")
	assert.NotContains(t, string(wire), "jane@example.com")
	assert.NotContains(t, string(wire), "passkey")

	assert.Equal(t, model.AccessRequestedNotice{
		GrantID:   grantID,
		DoctorID:  doctorID,
		PatientID: patientID,
		ExpiresAt: expiresAt,
	}, broker.published[0].Payload)
}

func TestBrokerSink_RejectsUndecodableAccessRequest(t *testing.T) {
	event := &model.OutboxEvent{ID: uuid.New(), EventType: model.EventAccessRequested, Payload: []byte("{")}
	err := BrokerSink{Broker: &recordingBroker{}}.Deliver(context.Background(), event)
	assert.ErrorContains(t, err, "decode")
}
