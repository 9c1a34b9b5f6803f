// Package integration runs the ledger against real PostgreSQL, Redis and
// S3-compatible containers started with testcontainers.
package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/coopledger/backend/internal/infrastructure/config"
	"github.com/coopledger/backend/internal/infrastructure/migration"
	"github.com/coopledger/backend/internal/infrastructure/persistence"
	"github.com/coopledger/backend/internal/infrastructure/persistence/persistencetest"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testDBName     = "coop_ledger_test"
	testDBUser     = "postgres"
	testDBPassword = "postgres"
)

var (
	sharedContainer   *tcpostgres.PostgresContainer
	sharedContainerMu sync.Mutex
	sharedDSN         string
)

// TestDB is a connection to the shared, migrated PostgreSQL container
type TestDB struct {
	DB  *gorm.DB
	DSN string
	t   *testing.T
}

// skipWithoutDocker skips container tests in -short mode
func skipWithoutDocker(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test needs Docker; skipped in -short mode")
	}
}

// NewTestDB returns a fresh connection to the shared container with every
// table truncated. The container is started and migrated on first use.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	skipWithoutDocker(t)

	dsn := ensureContainer(t)
	tdb := &TestDB{DB: connect(t), DSN: dsn, t: t}
	tdb.CleanTables()
	return tdb
}

// NewFixture seeds a cooperative into a clean database
func NewFixture(t *testing.T) (*TestDB, *persistencetest.Fixture) {
	t.Helper()
	tdb := NewTestDB(t)
	return tdb, persistencetest.NewFixtureOn(t, tdb.DB)
}

func ensureContainer(t *testing.T) string {
	t.Helper()
	sharedContainerMu.Lock()
	defer sharedContainerMu.Unlock()

	if sharedContainer != nil {
		return sharedDSN
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase(testDBName),
		tcpostgres.WithUsername(testDBUser),
		tcpostgres.WithPassword(testDBPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get connection string")

	m, err := migration.NewFromURL(dsn, findMigrationsPath(t), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up(), "Failed to run migrations")
	require.NoError(t, m.Close())

	sharedContainer = container
	sharedDSN = dsn
	return dsn
}

// databaseConfig points the application's connection settings at the container
func databaseConfig(t *testing.T) *config.DatabaseConfig {
	t.Helper()
	ctx := context.Background()
	host, err := sharedContainer.Host(ctx)
	require.NoError(t, err)
	port, err := sharedContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return &config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		User:            testDBUser,
		Password:        testDBPassword,
		DBName:          testDBName,
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5,
	}
}

func connect(t *testing.T) *gorm.DB {
	t.Helper()
	level := logger.Silent
	if os.Getenv("TEST_DB_DEBUG") != "" {
		level = logger.Info
	}
	db, err := persistence.NewDatabase(databaseConfig(t), persistence.WithGormLogger(logger.Default.LogMode(level)))
	require.NoError(t, err, "Failed to connect to database")
	t.Cleanup(func() { _ = db.Close() })
	return db.DB
}

// CleanTables truncates every table except the migration bookkeeping
func (tdb *TestDB) CleanTables() {
	tdb.t.Helper()

	var tables []string
	err := tdb.DB.Raw(`
		SELECT tablename FROM pg_tables
		WHERE schemaname = 'public'
		AND tablename != 'schema_migrations'
	`).Scan(&tables).Error
	require.NoError(tdb.t, err, "Failed to get table names")

	for _, table := range tables {
		require.NoError(tdb.t, tdb.DB.Exec(fmt.Sprintf("TRUNCATE TABLE %q CASCADE", table)).Error)
	}
}

func findMigrationsPath(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok)

	dir := filepath.Dir(filename)
	for range 5 {
		path := filepath.Join(dir, "migrations")
		if _, err := os.Stat(path); err == nil {
			return path
		}
		dir = filepath.Dir(dir)
	}
	t.Fatal("Could not find migrations directory")
	return ""
}
