//go:build integration

// Package testdb provisions an isolated PostgreSQL database per test. The
// server comes from TEST_DATABASE_URL when set, otherwise from a postgres
// container started once per test process.
package testdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	logtest "github.com/sirupsen/logrus/hooks/test"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"newsletter-go/internal/config"
	"newsletter-go/internal/logging"
	"newsletter-go/internal/migrations"
)

var (
	serverOnce sync.Once
	serverURL  string
	serverErr  error
)

func server(ctx context.Context) (string, error) {
	serverOnce.Do(func() {
		if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
			serverURL = url
			return
		}

		container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
			tcpostgres.WithDatabase("newsletter"),
			tcpostgres.WithUsername("postgres"),
			tcpostgres.WithPassword("password"),
			tcpostgres.BasicWaitStrategies(),
		)
		if err != nil {
			serverErr = fmt.Errorf("start postgres container: %w", err)
			return
		}
		// Ryuk reaps the container when the test process exits.
		serverURL, serverErr = container.ConnectionString(ctx, "sslmode=disable")
	})
	return serverURL, serverErr
}

// Database is a freshly created, migrated database.
type Database struct {
	DB       *sql.DB
	Name     string
	Settings config.DatabaseSettings
}

// New creates a uniquely named database, applies the migration set and
// returns a pool connected to it. The database is dropped on cleanup.
func New(t *testing.T) *Database {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	url, err := server(ctx)
	if err != nil {
		t.Fatalf("postgres unavailable: %v", err)
	}

	base := config.DatabaseSettings{URL: url}
	name := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	settings := base.WithDatabase(name)

	admin, err := sql.Open("postgres", base.ConnectionStringWithoutDB())
	if err != nil {
		t.Fatalf("open maintenance connection: %v", err)
	}
	defer admin.Close()

	if _, err := admin.ExecContext(ctx, fmt.Sprintf(`CREATE DATABASE "%s"`, name)); err != nil {
		t.Fatalf("create database %s: %v", name, err)
	}

	db, err := sql.Open("postgres", settings.ConnectionString())
	if err != nil {
		t.Fatalf("open %s: %v", name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping %s: %v", name, err)
	}

	nullLogger, _ := logtest.NewNullLogger()
	runner, err := migrations.NewRunner(db, &logging.ContextLogger{Logger: nullLogger})
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	if _, err := runner.Up(ctx); err != nil {
		t.Fatalf("migrate %s: %v", name, err)
	}

	t.Cleanup(func() {
		_ = db.Close()
		dropCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		admin, err := sql.Open("postgres", base.ConnectionStringWithoutDB())
		if err != nil {
			return
		}
		defer admin.Close()
		_, _ = admin.ExecContext(dropCtx, fmt.Sprintf(`DROP DATABASE IF EXISTS "%s" WITH (FORCE)`, name))
	})

	return &Database{DB: db, Name: name, Settings: settings}
}
