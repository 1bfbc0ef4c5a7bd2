package repository

import (
	"context"
	"encoding/json"
	"fmt"

	dapr "github.com/dapr/go-sdk/client"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/apperr"
	"newsletter-go/internal/models"
)

// DaprSubscriberRepository stores subscribers as JSON documents in a Dapr
// state store, keyed by subscriber id. The write uses first-write
// concurrency, so an existing key is never overwritten.
type DaprSubscriberRepository struct {
	client    dapr.Client
	tracer    trace.Tracer
	storeName string
}

func NewDaprSubscriberRepository(client dapr.Client, storeName string, tp trace.TracerProvider) *DaprSubscriberRepository {
	return &DaprSubscriberRepository{
		client:    client,
		tracer:    tracerFrom(tp, "dapr.repository"),
		storeName: storeName,
	}
}

func (r *DaprSubscriberRepository) Insert(ctx context.Context, subscriber *models.Subscriber) error {
	ctx, span := startInsertSpan(ctx, r.tracer, subscriber,
		attribute.String("db.system", "dapr"),
		attribute.String("dapr.store", r.storeName),
	)
	defer span.End()

	data, err := json.Marshal(subscriber)
	if err != nil {
		err = apperr.Persistence(insertOp, fmt.Errorf("failed to marshal subscriber: %w", err))
		failSpan(span, err)
		return err
	}

	err = r.client.SaveState(ctx, r.storeName, subscriber.ID.String(), data,
		map[string]string{"contentType": "application/json"},
		dapr.WithConcurrency(dapr.StateConcurrencyFirstWrite),
		dapr.WithConsistency(dapr.StateConsistencyStrong),
	)
	if err != nil {
		err = apperr.Persistence(insertOp, fmt.Errorf("failed to save subscriber to dapr state store: %w", err))
		failSpan(span, err)
		return err
	}

	span.SetAttributes(attribute.Bool("success", true))
	return nil
}
