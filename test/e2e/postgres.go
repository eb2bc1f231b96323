//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/arcafs/arca/pkg/store"
)

// PostgresHelper manages the PostgreSQL container shared by the E2E run.
type PostgresHelper struct {
	Container testcontainers.Container
	Host      string
	Port      int
	Database  string
	User      string
	Password  string
}

// Shared PostgreSQL container (started once per test run).
var sharedPostgresHelper *PostgresHelper

// NewPostgresHelper returns the shared PostgreSQL helper, starting a
// container on first use. An external server configured via POSTGRES_HOST
// (plus optional POSTGRES_PORT/DATABASE/USER/PASSWORD) is used instead when
// present.
func NewPostgresHelper(t *testing.T) *PostgresHelper {
	t.Helper()

	if sharedPostgresHelper != nil {
		return sharedPostgresHelper
	}

	ctx := context.Background()

	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		port := 5432
		if p := os.Getenv("POSTGRES_PORT"); p != "" {
			fmt.Sscanf(p, "%d", &port)
		}
		helper := &PostgresHelper{
			Host:     host,
			Port:     port,
			Database: envOr("POSTGRES_DATABASE", "arca_e2e"),
			User:     envOr("POSTGRES_USER", "arca"),
			Password: envOr("POSTGRES_PASSWORD", "arca"),
		}
		sharedPostgresHelper = helper
		return helper
	}

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "arca_e2e",
			"POSTGRES_USER":     "arca_e2e",
			"POSTGRES_PASSWORD": "arca_e2e",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
			wait.ForListeningPort("5432/tcp"),
		),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("failed to get container port: %v", err)
	}

	helper := &PostgresHelper{
		Container: container,
		Host:      host,
		Port:      port.Int(),
		Database:  "arca_e2e",
		User:      "arca_e2e",
		Password:  "arca_e2e",
	}

	// No t.Cleanup here: the container is shared across tests, and the
	// Ryuk reaper removes it when the test process exits.
	sharedPostgresHelper = helper
	return helper
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// StoreConfig returns a catalog configuration pointing at the helper's
// database.
func (ph *PostgresHelper) StoreConfig() *store.Config {
	return &store.Config{
		Type: store.DatabaseTypePostgres,
		Postgres: store.PostgresConfig{
			Host:     ph.Host,
			Port:     ph.Port,
			Database: ph.Database,
			User:     ph.User,
			Password: ph.Password,
			SSLMode:  "disable",
		},
	}
}

// ConnectionString returns a PostgreSQL connection string.
func (ph *PostgresHelper) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		ph.User, ph.Password, ph.Host, ph.Port, ph.Database)
}

// TruncateTables clears the catalog tables so tests sharing the container
// start from an empty database. The schema_migrations table is left alone;
// the schema itself survives across tests.
func (ph *PostgresHelper) TruncateTables() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, ph.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to connect for truncation: %w", err)
	}
	defer pool.Close()

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE
			object_version_tags,
			object_versions,
			parts,
			multipart_objects,
			bucket_tags,
			buckets,
			file_instances,
			locations
		CASCADE
	`)
	if err != nil {
		// Tables do not exist before the first store.New run; that is fine.
		return nil
	}
	return nil
}
