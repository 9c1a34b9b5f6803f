// Package persistencetest provides an in-memory database with the full schema
// for tests of services that run on the GORM repositories.
package persistencetest

import (
	"context"
	"testing"
	"time"

	"github.com/coopledger/backend/internal/domain/cooperative"
	"github.com/coopledger/backend/internal/domain/equipment"
	"github.com/coopledger/backend/internal/domain/shared"
	"github.com/coopledger/backend/internal/infrastructure/persistence"
	"github.com/coopledger/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens an in-memory SQLite database and migrates every model.
// The pool is pinned to one connection so all queries see the same database.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// Fixture seeds one cooperative with an acting administrator
type Fixture struct {
	DB *gorm.DB
	Op shared.OperationContext
}

// NewFixture creates a database and a cooperative to operate on
func NewFixture(t *testing.T) *Fixture {
	t.Helper()
	return NewFixtureOn(t, NewDB(t))
}

// NewFixtureOn seeds a cooperative into an existing database, such as a
// migrated PostgreSQL container
func NewFixtureOn(t *testing.T, db *gorm.DB) *Fixture {
	t.Helper()
	coop, err := cooperative.NewCooperative("Maschinenring Nord", cooperative.BankDetails{})
	require.NoError(t, err)
	require.NoError(t, persistence.NewGormCooperativeRepository(db).Save(context.Background(), coop))

	return &Fixture{
		DB: db,
		Op: shared.OperationContext{CooperativeID: coop.ID, AdminID: uuid.New()},
	}
}

// AddMember links an active member to the fixture's cooperative
func (f *Fixture) AddMember(t *testing.T, firstName, lastName string) uuid.UUID {
	t.Helper()
	member := &cooperative.Member{
		BaseEntity: shared.NewBaseEntity(),
		FirstName:  firstName,
		LastName:   lastName,
		Active:     true,
	}
	require.NoError(t, persistence.NewGormMemberDirectory(f.DB).SaveMember(context.Background(), f.Op.CooperativeID, member))
	return member.ID
}

// AddMachine registers a machine with the given billing mode and unit price
func (f *Fixture) AddMachine(t *testing.T, name string, mode equipment.BillingMode, unitPrice string) *equipment.Machine {
	t.Helper()
	machine := &equipment.Machine{
		BaseEntity:        shared.NewBaseEntity(),
		CooperativeID:     f.Op.CooperativeID,
		Name:              name,
		BillingMode:       mode,
		UnitPrice:         decimal.RequireFromString(unitPrice),
		FuelPricePerLiter: decimal.Zero,
		Active:            true,
	}
	require.NoError(t, persistence.NewGormMachineRegistry(f.DB).Save(context.Background(), machine))
	return machine
}

// Date returns midnight UTC of the given day
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
