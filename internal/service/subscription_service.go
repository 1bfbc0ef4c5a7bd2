package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/logging"
	"newsletter-go/internal/metrics"
	"newsletter-go/internal/models"
	"newsletter-go/internal/repository"
)

type SubscriptionService struct {
	repo    repository.SubscriberRepository
	logger  *logging.ContextLogger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	now   func() time.Time
	newID func() uuid.UUID
}

type Option func(*SubscriptionService)

// WithClock replaces the source of subscription timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *SubscriptionService) { s.now = now }
}

// WithIDGenerator replaces the source of subscriber identifiers.
func WithIDGenerator(newID func() uuid.UUID) Option {
	return func(s *SubscriptionService) { s.newID = newID }
}

// WithTracerProvider sets the provider spans are created from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *SubscriptionService) { s.tracer = tp.Tracer("subscription-service") }
}

// WithMetrics records insert outcomes and latency on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *SubscriptionService) { s.metrics = m }
}

func NewSubscriptionService(repo repository.SubscriberRepository, logger *logging.ContextLogger, opts ...Option) *SubscriptionService {
	s := &SubscriptionService{
		repo:   repo,
		logger: logger,
		tracer: otel.Tracer("subscription-service"),
		now:    time.Now,
		newID:  uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe builds a new record for req and inserts it. The returned error
// is whatever the repository reported; nothing is retried.
func (s *SubscriptionService) Subscribe(ctx context.Context, req models.SubscriptionRequest) (*models.Subscriber, error) {
	ctx, span := s.tracer.Start(ctx, "subscription.service.subscribe")
	defer span.End()

	subscriber := models.NewSubscriber(s.newID(), req, s.now())
	span.SetAttributes(
		attribute.String("subscriber.id", subscriber.ID.String()),
		attribute.String("subscriber.subscribed_at", subscriber.SubscribedAt.Format(time.RFC3339Nano)),
	)

	s.logger.DebugWithTracing(ctx, "Saving new subscriber details in the database", logrus.Fields{
		"subscriber_id": subscriber.ID.String(),
	})

	start := time.Now()
	err := s.repo.Insert(ctx, subscriber)
	if s.metrics != nil {
		s.metrics.ObserveInsert(time.Since(start), err)
	}
	if err != nil {
		s.logger.ErrorWithTracing(ctx, "Failed to execute query", err, logrus.Fields{
			"subscriber_id": subscriber.ID.String(),
			"subscribed_at": subscriber.SubscribedAt,
		})
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.logger.InfoWithTracing(ctx, "New subscriber details have been saved", logrus.Fields{
		"subscriber_id": subscriber.ID.String(),
	})
	span.SetAttributes(attribute.Bool("success", true))

	return subscriber, nil
}
