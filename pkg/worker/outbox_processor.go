package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/medihub/access-api/internal/email"
	"github.com/medihub/access-api/internal/model"
	"github.com/medihub/access-api/internal/repository"
	"github.com/medihub/access-api/pkg/logger"
	"github.com/medihub/access-api/pkg/messaging"
	"github.com/medihub/access-api/pkg/metrics"
)

type OutboxProcessorConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// Sink delivers one outbox event somewhere outside the database.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event *model.OutboxEvent) error
}

// BrokerSink publishes every event on the access channel. Access requests
// go out as notices; the code itself only leaves through EmailSink.
type BrokerSink struct {
	Broker messaging.Broker
}

func (s BrokerSink) Name() string { return "broker" }

func (s BrokerSink) Deliver(ctx context.Context, event *model.OutboxEvent) error {
	var payload interface{} = event.Payload
	if event.EventType == model.EventAccessRequested {
		var requested model.AccessRequestedEvent
		if err := json.Unmarshal(event.Payload, &requested); err != nil {
			return fmt.Errorf("failed to decode %s payload: %w", event.EventType, err)
		}
		payload = requested.Notice()
	}
	return s.Broker.Publish(ctx, messaging.ChannelAccessEvents, messaging.Message{
		Type:    event.EventType,
		Payload: payload,
	})
}

// EmailSink mails the access code of access.requested events to the patient.
// Other events are ignored.
type EmailSink struct {
	Mailer email.Service
}

func (s EmailSink) Name() string { return "email" }

func (s EmailSink) Deliver(ctx context.Context, event *model.OutboxEvent) error {
	if event.EventType != model.EventAccessRequested {
		return nil
	}
	var payload model.AccessRequestedEvent
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", event.EventType, err)
	}
	return s.Mailer.SendAccessCode(ctx, &payload)
}

type OutboxProcessor struct {
	store   repository.Store
	sinks   []Sink
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewOutboxProcessor(
	store repository.Store,
	sinks []Sink,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) (*OutboxProcessor, error) {
	if config.BatchSize <= 0 {
		return nil, fmt.Errorf("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		return nil, fmt.Errorf("PollInterval must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		return nil, fmt.Errorf("RetryAttempts must be greater than 0")
	}
	if config.RetryDelay < 0 {
		return nil, fmt.Errorf("RetryDelay must not be negative")
	}

	return &OutboxProcessor{
		store:   store,
		sinks:   sinks,
		config:  config,
		logger:  logger,
		metrics: metrics,
	}, nil
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor", "sinks", len(p.sinks))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
		}
	}
}

// ProcessBatch delivers up to BatchSize pending events. The rows stay locked
// for the duration so concurrent processors skip them.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	processed := 0
	err := p.store.WithTx(ctx, func(tx repository.Store) error {
		events, err := tx.Outbox().GetPendingEvents(ctx, p.config.BatchSize)
		if err != nil {
			p.metrics.DatabaseOperations.WithLabelValues("get_pending_events", "error").Inc()
			return fmt.Errorf("failed to get pending events: %w", err)
		}
		p.metrics.DatabaseOperations.WithLabelValues("get_pending_events", "success").Inc()

		for _, event := range events {
			if err := p.processEvent(ctx, tx.Outbox(), event); err != nil {
				p.logger.Error(err, "Failed to process event",
					"event_id", event.ID.String(),
					"event_type", event.EventType)
				continue
			}
			processed++
		}
		return nil
	})
	return processed, err
}

func (p *OutboxProcessor) processEvent(ctx context.Context, repo repository.OutboxRepository, event *model.OutboxEvent) error {
	var deliverErr error
	for _, sink := range p.sinks {
		err := retry(ctx, p.config.RetryAttempts, p.config.RetryDelay, func() error {
			return sink.Deliver(ctx, event)
		}, func() {
			p.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()
		})
		if err != nil {
			deliverErr = fmt.Errorf("%s: %w", sink.Name(), err)
			break
		}
	}

	if deliverErr != nil {
		p.metrics.OutboxEventsFailed.Inc()
		if err := repo.MarkFailed(ctx, event.ID, deliverErr.Error(), p.config.RetryAttempts); err != nil {
			p.logger.Error(err, "Failed to update event status", "event_id", event.ID.String())
		}
		return deliverErr
	}

	p.metrics.OutboxEventsProcessed.Inc()
	if err := repo.MarkProcessed(ctx, event.ID); err != nil {
		p.logger.Error(err, "Failed to update event status", "event_id", event.ID.String())
		return err
	}

	return nil
}

func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error, onRetry func()) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		onRetry()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
