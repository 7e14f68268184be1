package database

import (
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/G-Research/phonehome/internal/common/armadacontext"
)

// TestPostgresEnvVar holds a libpq connection string for a server the tests may create databases on.
const TestPostgresEnvVar = "PHONEHOME_TEST_POSTGRES"

// TestPostgresAvailable reports whether WithTestDb can connect to anything.
func TestPostgresAvailable() bool {
	return os.Getenv(TestPostgresEnvVar) != ""
}

// WithTestDb creates a dedicated database on the server named by PHONEHOME_TEST_POSTGRES, applies migrations,
// calls action and drops the database afterwards.
func WithTestDb(migrations []Migration, action func(db *pgxpool.Pool) error) error {
	ctx := armadacontext.Background()
	connectionString := os.Getenv(TestPostgresEnvVar)
	if connectionString == "" {
		return errors.Errorf("%s is not set", TestPostgresEnvVar)
	}

	db, err := pgx.Connect(ctx, connectionString)
	if err != nil {
		return errors.WithStack(err)
	}
	defer db.Close(ctx)

	dbName := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := db.Exec(ctx, "CREATE DATABASE "+dbName); err != nil {
		return errors.WithStack(err)
	}
	defer func() {
		_, err := db.Exec(ctx,
			`SELECT pg_terminate_backend(pg_stat_activity.pid)
			 FROM pg_stat_activity WHERE pg_stat_activity.datname = '`+dbName+`';`)
		if err != nil {
			ctx.Log.WithError(err).Warn("Failed to disconnect users")
		}
		if _, err := db.Exec(ctx, "DROP DATABASE "+dbName); err != nil {
			ctx.Log.WithError(err).Warn("Failed to drop database")
		}
	}()

	testDbPool, err := pgxpool.New(ctx, connectionString+" dbname="+dbName)
	if err != nil {
		return errors.WithStack(err)
	}
	defer testDbPool.Close()

	if err := UpdateDatabase(ctx, testDbPool, migrations); err != nil {
		return err
	}
	return action(testDbPool)
}
