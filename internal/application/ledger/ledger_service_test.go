package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	appledger "github.com/coopledger/backend/internal/application/ledger"
	"github.com/coopledger/backend/internal/domain/approval"
	"github.com/coopledger/backend/internal/domain/billing"
	"github.com/coopledger/backend/internal/domain/ledger"
	"github.com/coopledger/backend/internal/domain/shared"
	"github.com/coopledger/backend/internal/infrastructure/persistence"
	"github.com/coopledger/backend/internal/infrastructure/persistence/models"
	"github.com/coopledger/backend/internal/infrastructure/persistence/persistencetest"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockApprovalGate is a mock implementation of ApprovalGate
type MockApprovalGate struct {
	mock.Mock
}

func (m *MockApprovalGate) Confirm(ctx context.Context, op shared.OperationContext, code string, action approval.Action, subject string) error {
	args := m.Called(ctx, op, code, action, subject)
	return args.Error(0)
}

type ledgerHarness struct {
	*persistencetest.Fixture
	svc    *appledger.LedgerService
	scope  *persistence.GormTransactionScope
	writer *appledger.PostingWriter
	gate   *MockApprovalGate
}

func newLedgerHarness(t *testing.T) *ledgerHarness {
	t.Helper()
	f := persistencetest.NewFixture(t)
	scope := persistence.NewGormTransactionScope(f.DB)
	writer := appledger.NewPostingWriter(nil)
	gate := new(MockApprovalGate)
	svc := appledger.NewLedgerService(
		scope,
		persistence.NewGormPostingRepository(f.DB),
		persistence.NewGormBalanceRepository(f.DB),
		persistence.NewGormMemberDirectory(f.DB),
		writer,
		gate,
		nil,
	)
	return &ledgerHarness{Fixture: f, svc: svc, scope: scope, writer: writer, gate: gate}
}

// bill creates an open invoice for the period and posts its debit
func (h *ledgerHarness) bill(t *testing.T, memberID uuid.UUID, from, to time.Time, amount string) *billing.Invoice {
	t.Helper()
	period, err := billing.NewPeriod(from, to)
	require.NoError(t, err)
	inv, err := billing.NewInvoice(h.Op, memberID, period, decimal.RequireFromString(amount), decimal.Zero)
	require.NoError(t, err)

	ctx := context.Background()
	err = h.scope.Execute(ctx, func(repos appledger.TransactionalRepositories) error {
		if err := repos.Invoices().Create(ctx, inv); err != nil {
			return err
		}
		posting, err := ledger.NewPosting(h.Op, memberID, ledger.PostingTypeInvoice, period.To, inv.Total().Neg(), inv.Description(), inv.Reference())
		if err != nil {
			return err
		}
		_, err = h.writer.Post(ctx, repos, posting)
		return err
	})
	require.NoError(t, err)
	return inv
}

func (h *ledgerHarness) invoiceStatus(t *testing.T, id uuid.UUID) billing.InvoiceStatus {
	t.Helper()
	inv, err := persistence.NewGormInvoiceRepository(h.DB).FindByID(context.Background(), h.Op.CooperativeID, id)
	require.NoError(t, err)
	return inv.Status
}

func (h *ledgerHarness) postingSum(t *testing.T, memberID uuid.UUID) decimal.Decimal {
	t.Helper()
	sums, err := persistence.NewGormPostingRepository(h.DB).SumByMember(context.Background(), h.Op.CooperativeID, nil)
	require.NoError(t, err)
	return sums[memberID]
}

func amountEq(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(expected).Equal(actual), "expected %s, got %s", expected, actual.StringFixed(2))
}

func TestLedgerService_RecordPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("pays oldest invoice in full and keeps the rest as credit", func(t *testing.T) {
		h := newLedgerHarness(t)
		member := h.AddMember(t, "Anna", "Berg")
		older := h.bill(t, member, persistencetest.Date(2025, 1, 1), persistencetest.Date(2025, 3, 31), "100")
		newer := h.bill(t, member, persistencetest.Date(2025, 4, 1), persistencetest.Date(2025, 6, 30), "80")

		result, err := h.svc.RecordPayment(ctx, h.Op, appledger.PaymentInput{
			MemberID: member,
			Amount:   decimal.NewFromInt(150),
			Date:     persistencetest.Date(2025, 7, 10),
		})
		require.NoError(t, err)

		require.Len(t, result.PaidInvoices, 1)
		assert.Equal(t, older.ID, result.PaidInvoices[0].InvoiceID)
		amountEq(t, "50", result.RemainingCredit)
		amountEq(t, "30", result.Shortfall)
		require.NotNil(t, result.NextOpenInvoice)
		assert.Equal(t, newer.ID, *result.NextOpenInvoice)
		amountEq(t, "-30", result.Balance)

		assert.Equal(t, billing.InvoiceStatusPaid, h.invoiceStatus(t, older.ID))
		assert.Equal(t, billing.InvoiceStatusOpen, h.invoiceStatus(t, newer.ID))

		allocations, err := persistence.NewGormAllocationRepository(h.DB).FindByDeposit(ctx, result.PostingID)
		require.NoError(t, err)
		require.Len(t, allocations, 1)
		assert.Equal(t, older.ID, allocations[0].InvoiceID)
	})

	t.Run("earlier credit settles the next invoice", func(t *testing.T) {
		h := newLedgerHarness(t)
		member := h.AddMember(t, "Bernd", "Claussen")
		first := h.bill(t, member, persistencetest.Date(2025, 1, 1), persistencetest.Date(2025, 3, 31), "100")
		second := h.bill(t, member, persistencetest.Date(2025, 4, 1), persistencetest.Date(2025, 6, 30), "80")

		_, err := h.svc.RecordPayment(ctx, h.Op, appledger.PaymentInput{MemberID: member, Amount: decimal.NewFromInt(150), Date: persistencetest.Date(2025, 7, 1)})
		require.NoError(t, err)
		result, err := h.svc.RecordPayment(ctx, h.Op, appledger.PaymentInput{MemberID: member, Amount: decimal.NewFromInt(30), Date: persistencetest.Date(2025, 7, 2)})
		require.NoError(t, err)

		require.Len(t, result.PaidInvoices, 1)
		assert.Equal(t, second.ID, result.PaidInvoices[0].InvoiceID)
		amountEq(t, "0", result.RemainingCredit)
		assert.Nil(t, result.NextOpenInvoice)
		assert.Equal(t, billing.InvoiceStatusPaid, h.invoiceStatus(t, first.ID))
		assert.Equal(t, billing.InvoiceStatusPaid, h.invoiceStatus(t, second.ID))
	})

	t.Run("payment without open invoices is plain credit", func(t *testing.T) {
		h := newLedgerHarness(t)
		member := h.AddMember(t, "Carla", "Dietz")

		result, err := h.svc.RecordPayment(ctx, h.Op, appledger.PaymentInput{MemberID: member, Amount: decimal.NewFromInt(40), Date: persistencetest.Date(2025, 2, 1)})
		require.NoError(t, err)
		assert.Empty(t, result.PaidInvoices)
		amountEq(t, "40", result.RemainingCredit)
		amountEq(t, "40", result.Balance)
	})

	t.Run("rejects member of another cooperative", func(t *testing.T) {
		h := newLedgerHarness(t)
		_, err := h.svc.RecordPayment(ctx, h.Op, appledger.PaymentInput{MemberID: uuid.New(), Amount: decimal.NewFromInt(10), Date: time.Now()})
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		h := newLedgerHarness(t)
		member := h.AddMember(t, "Dora", "Eck")
		_, err := h.svc.RecordPayment(ctx, h.Op, appledger.PaymentInput{MemberID: member, Amount: decimal.NewFromInt(-5), Date: time.Now()})
		require.Error(t, err)
	})
}

func TestLedgerService_BalanceMatchesPostings(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	member := h.AddMember(t, "Emil", "Falk")

	h.bill(t, member, persistencetest.Date(2025, 1, 1), persistencetest.Date(2025, 1, 31), "12.34")
	h.bill(t, member, persistencetest.Date(2025, 2, 1), persistencetest.Date(2025, 2, 28), "56.78")
	_, err := h.svc.RecordPayment(ctx, h.Op, appledger.PaymentInput{MemberID: member, Amount: decimal.RequireFromString("20.01"), Date: persistencetest.Date(2025, 3, 3)})
	require.NoError(t, err)

	view, err := h.svc.GetBalance(ctx, h.Op, member)
	require.NoError(t, err)
	amountEq(t, "-49.11", view.Balance)
	assert.True(t, view.Balance.Equal(h.postingSum(t, member)))

	report, err := h.svc.VerifyBalances(ctx, h.Op)
	require.NoError(t, err)
	assert.Equal(t, 1, report.AccountsChecked)
	assert.Empty(t, report.Divergences)
}

func TestLedgerService_GetBalance(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()

	t.Run("member without postings reads zero", func(t *testing.T) {
		member := h.AddMember(t, "Frida", "Gans")
		view, err := h.svc.GetBalance(ctx, h.Op, member)
		require.NoError(t, err)
		assert.True(t, view.Balance.IsZero())
		assert.False(t, view.Halted)
	})

	t.Run("unknown member", func(t *testing.T) {
		_, err := h.svc.GetBalance(ctx, h.Op, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestLedgerService_ListPostings(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	member := h.AddMember(t, "Gerd", "Hahn")
	h.bill(t, member, persistencetest.Date(2025, 1, 1), persistencetest.Date(2025, 1, 31), "10")
	_, err := h.svc.RecordPayment(ctx, h.Op, appledger.PaymentInput{MemberID: member, Amount: decimal.NewFromInt(10), Date: persistencetest.Date(2025, 2, 5)})
	require.NoError(t, err)

	page, err := h.svc.ListPostings(ctx, h.Op, member, ledger.PostingFilter{Filter: shared.DefaultFilter()})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, ledger.PostingTypeInvoice, page.Items[0].Type)
	assert.Equal(t, ledger.PostingTypeDeposit, page.Items[1].Type)
	assert.Equal(t, "Payment received", page.Items[1].Description)

	deposits := ledger.PostingTypeDeposit
	page, err = h.svc.ListPostings(ctx, h.Op, member, ledger.PostingFilter{Filter: shared.DefaultFilter(), Type: &deposits})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}

func TestLedgerService_Divergence(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	member := h.AddMember(t, "Hanna", "Iske")
	healthy := h.AddMember(t, "Ida", "Jung")

	_, err := h.svc.RecordPayment(ctx, h.Op, appledger.PaymentInput{MemberID: member, Amount: decimal.NewFromInt(100), Date: persistencetest.Date(2025, 5, 1)})
	require.NoError(t, err)
	_, err = h.svc.RecordPayment(ctx, h.Op, appledger.PaymentInput{MemberID: healthy, Amount: decimal.NewFromInt(20), Date: persistencetest.Date(2025, 5, 1)})
	require.NoError(t, err)

	// corrupt the cache behind the service's back
	require.NoError(t, h.DB.Model(&models.AccountBalanceModel{}).
		Where("cooperative_id = ? AND member_id = ?", h.Op.CooperativeID, member).
		Update("balance", decimal.NewFromInt(999)).Error)

	report, err := h.svc.VerifyBalances(ctx, h.Op)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrBalanceDivergence)

	var divErr *ledger.DivergenceError
	require.True(t, errors.As(err, &divErr))
	require.Len(t, divErr.Divergences, 1)
	assert.Equal(t, member, divErr.Divergences[0].MemberID)
	amountEq(t, "999", divErr.Divergences[0].Cached)
	amountEq(t, "100", divErr.Divergences[0].Ledger)
	assert.Equal(t, 2, report.AccountsChecked)
	assert.Equal(t, 1, report.NewlyHalted)

	t.Run("cache is halted, not repaired", func(t *testing.T) {
		view, err := h.svc.GetBalance(ctx, h.Op, member)
		require.NoError(t, err)
		assert.True(t, view.Halted)
		amountEq(t, "999", view.Balance)
	})

	t.Run("halted account rejects postings", func(t *testing.T) {
		_, err := h.svc.RecordPayment(ctx, h.Op, appledger.PaymentInput{MemberID: member, Amount: decimal.NewFromInt(5), Date: persistencetest.Date(2025, 5, 2)})
		assert.ErrorIs(t, err, shared.ErrAccountHalted)
	})

	t.Run("halted account keeps the approval of a gated posting", func(t *testing.T) {
		_, err := h.svc.PostCorrection(ctx, h.Op, appledger.GatedPostingInput{
			MemberID: member, Amount: decimal.NewFromInt(-5), Date: persistencetest.Date(2025, 5, 2),
			Description: "Fee", ApprovalCode: "kept",
		})
		assert.ErrorIs(t, err, shared.ErrAccountHalted)
		h.gate.AssertNotCalled(t, "Confirm", mock.Anything, h.Op, "kept", mock.Anything, mock.Anything)
	})

	t.Run("other accounts keep working", func(t *testing.T) {
		_, err := h.svc.RecordPayment(ctx, h.Op, appledger.PaymentInput{MemberID: healthy, Amount: decimal.NewFromInt(5), Date: persistencetest.Date(2025, 5, 2)})
		assert.NoError(t, err)
	})

	t.Run("second verification does not halt again", func(t *testing.T) {
		report, err := h.svc.VerifyBalances(ctx, h.Op)
		assert.ErrorIs(t, err, shared.ErrBalanceDivergence)
		assert.Equal(t, 0, report.NewlyHalted)
	})

	t.Run("resolving an unknown account keeps the approval", func(t *testing.T) {
		stranger := h.AddMember(t, "Jonas", "Kern")
		_, err := h.svc.ResolveDivergence(ctx, h.Op, stranger, "unused")
		assert.ErrorIs(t, err, shared.ErrNotFound)
		h.gate.AssertNotCalled(t, "Confirm", mock.Anything, h.Op, "unused", mock.Anything, mock.Anything)
	})

	t.Run("resolve needs a confirmed approval", func(t *testing.T) {
		h.gate.On("Confirm", mock.Anything, h.Op, "bad", approval.ActionResolveDivergence, approval.ResolveSubject(member)).
			Return(approval.ErrNotFound).Once()
		_, err := h.svc.ResolveDivergence(ctx, h.Op, member, "bad")
		assert.ErrorIs(t, err, approval.ErrNotFound)
	})

	t.Run("resolve resets the cache to the ledger", func(t *testing.T) {
		h.gate.On("Confirm", mock.Anything, h.Op, "ok", approval.ActionResolveDivergence, approval.ResolveSubject(member)).
			Return(nil).Once()
		view, err := h.svc.ResolveDivergence(ctx, h.Op, member, "ok")
		require.NoError(t, err)
		assert.False(t, view.Halted)
		amountEq(t, "100", view.Balance)

		_, err = h.svc.VerifyBalances(ctx, h.Op)
		assert.NoError(t, err)
	})

	h.gate.AssertExpectations(t)
}

func TestLedgerService_PostCorrection(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	member := h.AddMember(t, "Jan", "Kurz")
	date := persistencetest.Date(2025, 8, 1)
	in := appledger.GatedPostingInput{
		MemberID:     member,
		Amount:       decimal.RequireFromString("-12.50"),
		Date:         date,
		Description:  "Double billed hours",
		ApprovalCode: "code",
	}
	subject := approval.PostingSubject(member, in.Amount, date, in.Description)

	t.Run("rejected without approval", func(t *testing.T) {
		h.gate.On("Confirm", mock.Anything, h.Op, "code", approval.ActionPostCorrection, subject).
			Return(approval.ErrSameIdentity).Once()
		_, err := h.svc.PostCorrection(ctx, h.Op, in)
		assert.ErrorIs(t, err, approval.ErrSameIdentity)
		assert.True(t, h.postingSum(t, member).IsZero())
	})

	t.Run("posted once approved", func(t *testing.T) {
		h.gate.On("Confirm", mock.Anything, h.Op, "code", approval.ActionPostCorrection, subject).Return(nil).Once()
		posting, err := h.svc.PostCorrection(ctx, h.Op, in)
		require.NoError(t, err)
		assert.Equal(t, ledger.PostingTypeCorrection, posting.Type)

		view, err := h.svc.GetBalance(ctx, h.Op, member)
		require.NoError(t, err)
		amountEq(t, "-12.50", view.Balance)
	})
}

func TestLedgerService_RecordWithdrawal(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	member := h.AddMember(t, "Karl", "Lenz")
	_, err := h.svc.RecordPayment(ctx, h.Op, appledger.PaymentInput{MemberID: member, Amount: decimal.NewFromInt(60), Date: persistencetest.Date(2025, 1, 10)})
	require.NoError(t, err)

	t.Run("more than the credit is refused before the approval is used", func(t *testing.T) {
		_, err := h.svc.RecordWithdrawal(ctx, h.Op, appledger.GatedPostingInput{
			MemberID: member, Amount: decimal.NewFromInt(61), Date: persistencetest.Date(2025, 2, 1),
			Description: "Payout", ApprovalCode: "payout",
		})
		assert.ErrorIs(t, err, appledger.ErrInsufficientCredit)
		h.gate.AssertNotCalled(t, "Confirm", mock.Anything, h.Op, "payout", mock.Anything, mock.Anything)
	})

	h.gate.On("Confirm", mock.Anything, h.Op, mock.Anything, approval.ActionRecordWithdrawal, mock.Anything).Return(nil)

	t.Run("negative input is refused", func(t *testing.T) {
		_, err := h.svc.RecordWithdrawal(ctx, h.Op, appledger.GatedPostingInput{
			MemberID: member, Amount: decimal.NewFromInt(-1), Date: persistencetest.Date(2025, 2, 1),
		})
		require.Error(t, err)
	})

	t.Run("credit is paid out as a negative posting", func(t *testing.T) {
		posting, err := h.svc.RecordWithdrawal(ctx, h.Op, appledger.GatedPostingInput{
			MemberID: member, Amount: decimal.NewFromInt(60), Date: persistencetest.Date(2025, 2, 1), Description: "Payout",
		})
		require.NoError(t, err)
		amountEq(t, "-60", posting.Amount)
		assert.True(t, h.postingSum(t, member).IsZero())
	})
}

func TestLedgerService_RecordOpeningBalance(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	member := h.AddMember(t, "Lea", "Moll")

	t.Run("zero is refused", func(t *testing.T) {
		_, err := h.svc.RecordOpeningBalance(ctx, h.Op, appledger.OpeningBalanceInput{MemberID: member, Amount: decimal.Zero, Date: persistencetest.Date(2024, 12, 31)})
		require.Error(t, err)
	})

	t.Run("seeds an empty account", func(t *testing.T) {
		posting, err := h.svc.RecordOpeningBalance(ctx, h.Op, appledger.OpeningBalanceInput{
			MemberID: member, Amount: decimal.RequireFromString("-75.20"), Date: persistencetest.Date(2024, 12, 31),
		})
		require.NoError(t, err)
		assert.Equal(t, ledger.PostingTypeYearCarryover, posting.Type)
		amountEq(t, "-75.20", h.postingSum(t, member))
	})

	t.Run("only once", func(t *testing.T) {
		_, err := h.svc.RecordOpeningBalance(ctx, h.Op, appledger.OpeningBalanceInput{MemberID: member, Amount: decimal.NewFromInt(1), Date: persistencetest.Date(2024, 12, 31)})
		assert.ErrorIs(t, err, appledger.ErrOpeningBalanceExists)
	})
}

func TestLedgerService_CloseYear(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	member := h.AddMember(t, "Max", "Noll")

	_, err := h.svc.RecordPayment(ctx, h.Op, appledger.PaymentInput{MemberID: member, Amount: decimal.NewFromInt(100), Date: persistencetest.Date(2024, 12, 31)})
	require.NoError(t, err)
	_, err = h.svc.RecordPayment(ctx, h.Op, appledger.PaymentInput{MemberID: member, Amount: decimal.NewFromInt(25), Date: persistencetest.Date(2025, 1, 1)})
	require.NoError(t, err)

	result, err := h.svc.CloseYear(ctx, h.Op, 2024)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Accounts)
	assert.Equal(t, persistencetest.Date(2024, 12, 31), result.Cutoff)

	view, err := h.svc.GetBalance(ctx, h.Op, member)
	require.NoError(t, err)
	amountEq(t, "100", view.PriorYearBalance)
	amountEq(t, "125", view.Balance)

	t.Run("future year is out of range", func(t *testing.T) {
		_, err := h.svc.CloseYear(ctx, h.Op, time.Now().Year()+1)
		assert.ErrorIs(t, err, shared.ErrInvalidRange)
	})
}

func TestLedgerService_RequiresOperationContext(t *testing.T) {
	h := newLedgerHarness(t)
	_, err := h.svc.VerifyBalances(context.Background(), shared.OperationContext{})
	assert.ErrorIs(t, err, shared.ErrMissingOperationCtx)
}
