package storage

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/docker/go-connections/nat"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/pgx"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ExecuteAndTrace runs a single database operation inside a client span.
// Errors from the operation are recorded on the span and returned as-is.
func ExecuteAndTrace(
	ctx context.Context,
	tracer trace.Tracer,
	spanName string,
	attributes []attribute.KeyValue,
	operation func(ctx context.Context) error,
) error {
	ctx, span := tracer.Start(
		ctx,
		spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attributes...),
	)
	defer span.End()

	if err := operation(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

const (
	testDBImage = "postgres:17-alpine"
	testDBName  = "campusd"
	testDBUser  = "test"
	testDBPass  = "test"
)

// SetupTestContainer starts a throwaway postgres container, applies the
// repository migrations, and returns a pool connected to it. The returned
// cleanup terminates the container.
func SetupTestContainer(t *testing.T) (*pgxpool.Pool, func()) {
	t.Helper()

	ctx := context.Background()

	waitForSQL := wait.ForSQL("5432/tcp", "postgres", func(host string, port nat.Port) string {
		return testDSN(host, port.Port())
	})
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        testDBImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     testDBUser,
				"POSTGRES_PASSWORD": testDBPass,
				"POSTGRES_DB":       testDBName,
			},
			WaitingFor: waitForSQL,
		},
		Started: true,
	})
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, testDSN("localhost", port.Port()))
	require.NoError(t, err)

	// migrate needs a database/sql handle, so borrow one from the pool.
	db := stdlib.OpenDBFromPool(pool)
	migrateTestDB(t, db)

	return pool, func() {
		_ = db.Close()
		_ = container.Terminate(ctx)
	}
}

func testDSN(host, port string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		testDBUser, testDBPass, host, port, testDBName)
}

func migrateTestDB(t *testing.T, db *sql.DB) {
	t.Helper()

	driver, err := pgx.WithInstance(db, &pgx.Config{})
	require.NoError(t, err)

	_, currentFile, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(currentFile), "..", "..", "..")
	migrationsPath := fmt.Sprintf("file://%s", filepath.Join(projectRoot, "db", "migrations"))

	migrations, err := migrate.NewWithDatabaseInstance(migrationsPath, "postgres", driver)
	require.NoError(t, err)
	require.NoError(t, migrations.Up())
}

// NoOpTracer returns a tracer that records nothing, for tests.
func NoOpTracer() trace.Tracer { return noop.NewTracerProvider().Tracer("test") }
