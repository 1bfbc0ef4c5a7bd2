package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	dapr "github.com/dapr/go-sdk/client"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"

	"newsletter-go/internal/apperr"
	"newsletter-go/internal/models"
	"newsletter-go/internal/telemetry"
)

func newTestSubscriber() *models.Subscriber {
	return models.NewSubscriber(uuid.New(), models.SubscriptionRequest{
		Name:  "the test guy",
		Email: "the_test_guy@gmail.com",
	}, time.Now())
}

func TestPostgresInsertExecutesSingleStatement(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	recorder := telemetry.NewTestSpanRecorder()
	repo := NewPostgresSubscriberRepository(db, telemetry.InitTestTracing(recorder))
	subscriber := newTestSubscriber()

	mock.ExpectExec(`INSERT INTO subscriptions \(id, email, name, subscribed_at\) VALUES \(\$1, \$2, \$3, \$4\)`).
		WithArgs(subscriber.ID.String(), subscriber.Email, subscriber.Name, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Insert(context.Background(), subscriber))
	assert.NoError(t, mock.ExpectationsWereMet())

	spans := recorder.GetSpansByName(insertOp)
	require.Len(t, spans, 1)
	system, ok := telemetry.SpanAttribute(spans[0], "db.system")
	require.True(t, ok)
	assert.Equal(t, "postgresql", system.AsString())
	id, _ := telemetry.SpanAttribute(spans[0], "subscriber.id")
	assert.Equal(t, subscriber.ID.String(), id.AsString())
}

func TestPostgresInsertFailureIsPersistenceKind(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	recorder := telemetry.NewTestSpanRecorder()
	repo := NewPostgresSubscriberRepository(db, telemetry.InitTestTracing(recorder))

	mock.ExpectExec(`INSERT INTO subscriptions`).WillReturnError(driver.ErrBadConn)

	err = repo.Insert(context.Background(), newTestSubscriber())
	require.Error(t, err)
	assert.Equal(t, apperr.KindPersistence, apperr.KindOf(err))

	spans := recorder.GetSpansByName(insertOp)
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.NotEmpty(t, spans[0].Events(), "expected the error to be recorded on the span")
}

func TestInMemoryInsertKeepsOrderAndRejectsDuplicateID(t *testing.T) {
	repo := NewInMemorySubscriberRepository(nil)
	first, second := newTestSubscriber(), newTestSubscriber()

	require.NoError(t, repo.Insert(context.Background(), first))
	require.NoError(t, repo.Insert(context.Background(), second))

	err := repo.Insert(context.Background(), first)
	assert.Equal(t, apperr.KindPersistence, apperr.KindOf(err))

	all := repo.All()
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, second.ID, all[1].ID)
}

type fakeDaprClient struct {
	dapr.Client
	err   error
	store string
	key   string
	data  []byte
	opts  dapr.StateOptions
}

func (f *fakeDaprClient) SaveState(ctx context.Context, storeName, key string, data []byte, meta map[string]string, so ...dapr.StateOption) error {
	f.store, f.key, f.data = storeName, key, data
	for _, o := range so {
		o(&f.opts)
	}
	return f.err
}

func TestDaprInsertSavesFirstWriteDocument(t *testing.T) {
	client := &fakeDaprClient{}
	repo := NewDaprSubscriberRepository(client, "subscriptions", nil)
	subscriber := newTestSubscriber()

	require.NoError(t, repo.Insert(context.Background(), subscriber))

	assert.Equal(t, "subscriptions", client.store)
	assert.Equal(t, subscriber.ID.String(), client.key)
	assert.Contains(t, string(client.data), `"email":"the_test_guy@gmail.com"`)
	assert.Equal(t, dapr.StateConcurrencyFirstWrite, client.opts.Concurrency)
}

func TestDaprInsertFailureIsPersistenceKind(t *testing.T) {
	client := &fakeDaprClient{err: errors.New("sidecar unavailable")}
	repo := NewDaprSubscriberRepository(client, "subscriptions", nil)

	err := repo.Insert(context.Background(), newTestSubscriber())

	assert.Equal(t, apperr.KindPersistence, apperr.KindOf(err))
	assert.ErrorContains(t, err, "sidecar unavailable")
}
