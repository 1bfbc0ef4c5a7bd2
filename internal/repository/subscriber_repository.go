package repository

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/apperr"
	"newsletter-go/internal/models"
)

const insertOp = "subscriber.repository.insert"

// SubscriberRepository is the boundary between the handler and the durable
// store. Insert writes one record atomically; any failure is returned as an
// apperr.KindPersistence error and is never retried here.
type SubscriberRepository interface {
	Insert(ctx context.Context, subscriber *models.Subscriber) error
}

func tracerFrom(tp trace.TracerProvider, name string) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(name)
}

func startInsertSpan(ctx context.Context, tracer trace.Tracer, subscriber *models.Subscriber, extra ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs := append([]attribute.KeyValue{
		attribute.String("subscriber.id", subscriber.ID.String()),
		attribute.String("subscriber.email", subscriber.Email),
		attribute.String("operation", "database.write"),
	}, extra...)
	return tracer.Start(ctx, insertOp, trace.WithAttributes(attrs...), trace.WithSpanKind(trace.SpanKindClient))
}

func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

type InMemorySubscriberRepository struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]*models.Subscriber
	order       []uuid.UUID
	tracer      trace.Tracer
}

func NewInMemorySubscriberRepository(tp trace.TracerProvider) *InMemorySubscriberRepository {
	return &InMemorySubscriberRepository{
		subscribers: make(map[uuid.UUID]*models.Subscriber),
		tracer:      tracerFrom(tp, "subscriber-repository"),
	}
}

func (r *InMemorySubscriberRepository) Insert(ctx context.Context, subscriber *models.Subscriber) error {
	_, span := startInsertSpan(ctx, r.tracer, subscriber, attribute.String("db.system", "memory"))
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.subscribers[subscriber.ID]; exists {
		err := apperr.Persistence(insertOp, errors.New("duplicate subscriber id "+subscriber.ID.String()))
		failSpan(span, err)
		return err
	}

	stored := *subscriber
	r.subscribers[subscriber.ID] = &stored
	r.order = append(r.order, subscriber.ID)
	span.SetAttributes(attribute.Bool("success", true))
	return nil
}

// All returns copies of the stored records in insertion order.
func (r *InMemorySubscriberRepository) All() []models.Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]models.Subscriber, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, *r.subscribers[id])
	}
	return result
}
