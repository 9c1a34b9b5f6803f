package persistence_test

import (
	"context"
	"testing"

	"github.com/coopledger/backend/internal/domain/banking"
	"github.com/coopledger/backend/internal/domain/ledger"
	"github.com/coopledger/backend/internal/domain/shared"
	"github.com/coopledger/backend/internal/infrastructure/persistence"
	"github.com/coopledger/backend/internal/infrastructure/persistence/persistencetest"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func posting(t *testing.T, op shared.OperationContext, member uuid.UUID, typ ledger.PostingType, day int, amount, ref string) *ledger.Posting {
	t.Helper()
	p, err := ledger.NewPosting(op, member, typ, persistencetest.Date(2025, 1, day), decimal.RequireFromString(amount), "test", ref)
	require.NoError(t, err)
	return p
}

func TestGormPostingRepository(t *testing.T) {
	f := persistencetest.NewFixture(t)
	repo := persistence.NewGormPostingRepository(f.DB)
	ctx := context.Background()
	anna := f.AddMember(t, "Anna", "Lund")
	bernd := f.AddMember(t, "Bernd", "Hoff")

	invoiceRef := uuid.NewString()
	require.NoError(t, repo.Create(ctx, posting(t, f.Op, anna, ledger.PostingTypeInvoice, 10, "-80.10", invoiceRef)))
	require.NoError(t, repo.Create(ctx, posting(t, f.Op, anna, ledger.PostingTypeDeposit, 12, "50", "tx-1")))
	require.NoError(t, repo.Create(ctx, posting(t, f.Op, bernd, ledger.PostingTypeDeposit, 20, "20.05", "tx-2")))

	t.Run("one invoice posting per invoice", func(t *testing.T) {
		err := repo.Create(ctx, posting(t, f.Op, anna, ledger.PostingTypeInvoice, 11, "-80.10", invoiceRef))
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})

	t.Run("deposits may share a reference", func(t *testing.T) {
		// only invoice postings are covered by the partial index
		p := posting(t, f.Op, bernd, ledger.PostingTypeCorrection, 21, "1", "tx-2")
		require.NoError(t, repo.Create(ctx, p))
		require.NoError(t, repo.Delete(ctx, p.ID))
	})

	t.Run("sum per member", func(t *testing.T) {
		sums, err := repo.SumByMember(ctx, f.Op.CooperativeID, nil)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("-30.10").Equal(sums[anna]), "got %s", sums[anna])
		assert.True(t, decimal.RequireFromString("20.05").Equal(sums[bernd]))

		until := persistencetest.Date(2025, 1, 11)
		sums, err = repo.SumByMember(ctx, f.Op.CooperativeID, &until)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("-80.10").Equal(sums[anna]))
		_, ok := sums[bernd]
		assert.False(t, ok)
	})

	t.Run("find by member with type filter", func(t *testing.T) {
		typ := ledger.PostingTypeDeposit
		items, total, err := repo.FindByMember(ctx, f.Op.CooperativeID, anna, ledger.PostingFilter{Filter: shared.DefaultFilter(), Type: &typ})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, items, 1)
		assert.Equal(t, "tx-1", items[0].Reference)
	})

	t.Run("other cooperatives see nothing", func(t *testing.T) {
		_, err := repo.FindByReference(ctx, uuid.New(), ledger.PostingTypeInvoice, invoiceRef)
		assert.ErrorIs(t, err, shared.ErrNotFound)
		count, err := repo.CountByMember(ctx, uuid.New(), anna)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("delete unknown posting", func(t *testing.T) {
		assert.ErrorIs(t, repo.Delete(ctx, uuid.New()), shared.ErrNotFound)
	})
}

func TestGormBalanceRepository(t *testing.T) {
	f := persistencetest.NewFixture(t)
	repo := persistence.NewGormBalanceRepository(f.DB)
	ctx := context.Background()
	key := ledger.AccountKey{CooperativeID: f.Op.CooperativeID, MemberID: f.AddMember(t, "Carla", "Vos")}

	_, err := repo.Find(ctx, key)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	require.NoError(t, repo.Init(ctx, key))
	balance, err := repo.Find(ctx, key)
	require.NoError(t, err)
	assert.True(t, balance.Balance.IsZero())

	balance.Balance = decimal.RequireFromString("12.34")
	require.NoError(t, repo.Save(ctx, balance))

	// Init leaves an existing row untouched
	require.NoError(t, repo.Init(ctx, key))
	balance, err = repo.Find(ctx, key)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("12.34").Equal(balance.Balance))

	all, err := repo.FindAll(ctx, f.Op.CooperativeID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGormBankTransactionRepository(t *testing.T) {
	f := persistencetest.NewFixture(t)
	repo := persistence.NewGormBankTransactionRepository(f.DB)
	ctx := context.Background()
	date := persistencetest.Date(2025, 2, 3)

	first := banking.NewBankTransaction(f.Op, date, decimal.RequireFromString("99.90"), "Beitrag", "Hof Meyer")
	require.NoError(t, repo.Create(ctx, first))

	t.Run("same content is rejected per cooperative", func(t *testing.T) {
		again := banking.NewBankTransaction(f.Op, date, decimal.RequireFromString("99.90"), "Beitrag", "Hof Meyer")
		assert.ErrorIs(t, repo.Create(ctx, again), shared.ErrAlreadyExists)

		other := shared.OperationContext{CooperativeID: uuid.New(), AdminID: uuid.New()}
		assert.NoError(t, repo.Create(ctx, banking.NewBankTransaction(other, date, decimal.RequireFromString("99.90"), "Beitrag", "Hof Meyer")))
	})

	t.Run("existing hashes", func(t *testing.T) {
		found, err := repo.FindExistingHashes(ctx, f.Op.CooperativeID, []string{first.ContentHash, "unknown"})
		require.NoError(t, err)
		assert.True(t, found[first.ContentHash])
		assert.False(t, found["unknown"])
	})

	t.Run("classification state is stored", func(t *testing.T) {
		member := uuid.New()
		require.NoError(t, first.Classify(banking.MatchTargetMember, member))
		require.NoError(t, repo.Update(ctx, first))

		stored, err := repo.FindForUpdate(ctx, f.Op.CooperativeID, first.ID)
		require.NoError(t, err)
		assert.True(t, stored.Matched)
		require.NotNil(t, stored.MatchedID)
		assert.Equal(t, member, *stored.MatchedID)

		items, total, err := repo.FindAll(ctx, f.Op.CooperativeID, banking.BankTransactionFilter{Filter: shared.DefaultFilter(), UnmatchedOnly: true})
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, items)
	})

	t.Run("update of a foreign transaction", func(t *testing.T) {
		foreign := *first
		foreign.CooperativeID = uuid.New()
		assert.ErrorIs(t, repo.Update(ctx, &foreign), shared.ErrNotFound)
	})
}
