package integration

import (
	"testing"

	"github.com/coopledger/backend/internal/infrastructure/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMigrations_RoundTrip(t *testing.T) {
	tdb := NewTestDB(t)

	m, err := migration.NewFromURL(tdb.DSN, findMigrationsPath(t), zap.NewNop())
	require.NoError(t, err)
	defer m.Close()

	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.NotZero(t, version)

	tables := func() []string {
		var names []string
		require.NoError(t, tdb.DB.Raw(`
			SELECT tablename FROM pg_tables
			WHERE schemaname = 'public' AND tablename != 'schema_migrations'
			ORDER BY tablename
		`).Scan(&names).Error)
		return names
	}
	assert.Subset(t, tables(), []string{
		"account_balances", "bank_transactions", "cooperatives", "invoices",
		"ledger_postings", "machines", "payment_allocations", "usage_events",
	})

	require.NoError(t, m.Down())
	assert.Empty(t, tables())
	v, _, err := m.Version()
	require.NoError(t, err)
	assert.Zero(t, v)

	require.NoError(t, m.Up())
	// already current
	require.NoError(t, m.Up())
	again, _, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, version, again)
}

func TestMigrations_SchemaMatchesModels(t *testing.T) {
	_, f := NewFixture(t)

	// the fixture inserted through the GORM models
	var count int64
	require.NoError(t, f.DB.Raw("SELECT count(*) FROM cooperatives WHERE id = ?", f.Op.CooperativeID).Scan(&count).Error)
	assert.Equal(t, int64(1), count)

	member := f.AddMember(t, "Gerd", "Gruber")
	var linked int64
	require.NoError(t, f.DB.Raw("SELECT count(*) FROM cooperative_members WHERE cooperative_id = ? AND member_id = ?",
		f.Op.CooperativeID, member).Scan(&linked).Error)
	assert.Equal(t, int64(1), linked)
}
