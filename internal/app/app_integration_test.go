//go:build integration

package app_test

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"newsletter-go/internal/app"
	"newsletter-go/internal/logging"
	"newsletter-go/internal/migrations"
	"newsletter-go/internal/repository"
	"newsletter-go/internal/telemetry"
	"newsletter-go/internal/testdb"
)

type savedSubscription struct {
	ID           uuid.UUID
	Name         string
	Email        string
	SubscribedAt time.Time
}

type PostgresAppSuite struct {
	suite.Suite
	db     *testdb.Database
	server *httptest.Server
}

func TestPostgresAppSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresAppSuite))
}

func (s *PostgresAppSuite) SetupTest() {
	s.db = testdb.New(s.T())

	base, _ := logtest.NewNullLogger()
	tp := telemetry.InitTestTracing(telemetry.NewTestSpanRecorder())
	application := app.Build(&app.Config{
		ServiceName:    "test-newsletter",
		Logger:         &logging.ContextLogger{Logger: base},
		TracerProvider: tp,
		GinMode:        gin.TestMode,
		Repository:     repository.NewPostgresSubscriberRepository(s.db.DB, tp),
	})
	s.server = httptest.NewServer(application.GetRouter())
	s.T().Cleanup(s.server.Close)
}

func (s *PostgresAppSuite) post(body string) int {
	resp, err := http.Post(s.server.URL+"/subscriptions", "application/x-www-form-urlencoded", strings.NewReader(body))
	s.Require().NoError(err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func (s *PostgresAppSuite) saved() []savedSubscription {
	rows, err := s.db.DB.QueryContext(context.Background(),
		`SELECT id, name, email, subscribed_at FROM subscriptions ORDER BY subscribed_at, id`)
	s.Require().NoError(err)
	defer rows.Close()

	var result []savedSubscription
	for rows.Next() {
		var r savedSubscription
		s.Require().NoError(rows.Scan(&r.ID, &r.Name, &r.Email, &r.SubscribedAt))
		result = append(result, r)
	}
	s.Require().NoError(rows.Err())
	return result
}

func (s *PostgresAppSuite) TestSubscribePersistsValidFormData() {
	s.Equal(http.StatusOK, s.post(validBody))

	saved := s.saved()
	s.Require().Len(saved, 1)
	s.Equal("the test guy", saved[0].Name)
	s.Equal("the_test_guy@gmail.com", saved[0].Email)
}

func (s *PostgresAppSuite) TestMissingFieldsCreateNothing() {
	for _, body := range []string{"name=te%20test%40guy", "email=the_test_guy%40gmail.com", ""} {
		s.Equal(http.StatusBadRequest, s.post(body), "payload %q", body)
	}
	s.Empty(s.saved())
}

func (s *PostgresAppSuite) TestRepeatedSubmissionsAreDistinctAndOrdered() {
	s.Equal(http.StatusOK, s.post(validBody))
	s.Equal(http.StatusOK, s.post(validBody))

	saved := s.saved()
	s.Require().Len(saved, 2)
	s.NotEqual(saved[0].ID, saved[1].ID)
	s.False(saved[1].SubscribedAt.Before(saved[0].SubscribedAt))
}

func (s *PostgresAppSuite) TestClosedPoolReturns500AndHealthStaysUp() {
	s.Require().NoError(s.db.DB.Close())

	s.Equal(http.StatusInternalServerError, s.post(validBody))

	resp, err := http.Get(s.server.URL + "/health_check")
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	check, err := sql.Open("postgres", s.db.Settings.ConnectionString())
	s.Require().NoError(err)
	defer check.Close()
	var n int
	s.Require().NoError(check.QueryRow(`SELECT count(*) FROM subscriptions`).Scan(&n))
	s.Zero(n)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	db := testdb.New(t)

	base, _ := logtest.NewNullLogger()
	runner, err := migrations.NewRunner(db.DB, &logging.ContextLogger{Logger: base})
	require.NoError(t, err)

	applied, err := runner.Up(context.Background())
	require.NoError(t, err)
	require.Empty(t, applied)
}
