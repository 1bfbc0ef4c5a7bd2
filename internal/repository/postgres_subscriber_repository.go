package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/apperr"
	"newsletter-go/internal/models"
)

const insertSubscriberSQL = `INSERT INTO subscriptions (id, email, name, subscribed_at) VALUES ($1, $2, $3, $4)`

// PostgresSubscriberRepository writes subscribers to the subscriptions
// table. The *sql.DB is shared by all requests; database/sql handles
// concurrent checkout of connections.
type PostgresSubscriberRepository struct {
	db     *sql.DB
	tracer trace.Tracer
}

func NewPostgresSubscriberRepository(db *sql.DB, tp trace.TracerProvider) *PostgresSubscriberRepository {
	return &PostgresSubscriberRepository{
		db:     db,
		tracer: tracerFrom(tp, "postgres.repository"),
	}
}

func (r *PostgresSubscriberRepository) Insert(ctx context.Context, subscriber *models.Subscriber) error {
	ctx, span := startInsertSpan(ctx, r.tracer, subscriber,
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "subscriptions"),
	)
	defer span.End()

	_, err := r.db.ExecContext(ctx, insertSubscriberSQL,
		subscriber.ID,
		subscriber.Email,
		subscriber.Name,
		subscriber.SubscribedAt,
	)
	if err != nil {
		err = apperr.Persistence(insertOp, fmt.Errorf("failed to insert subscriber: %w", err))
		failSpan(span, err)
		return err
	}

	span.SetAttributes(attribute.Bool("success", true))
	return nil
}
