package integration

import (
	"context"
	"testing"

	approvalapp "github.com/coopledger/backend/internal/application/approval"
	bankingapp "github.com/coopledger/backend/internal/application/banking"
	billingapp "github.com/coopledger/backend/internal/application/billing"
	equipmentapp "github.com/coopledger/backend/internal/application/equipment"
	ledgerapp "github.com/coopledger/backend/internal/application/ledger"
	"github.com/coopledger/backend/internal/domain/approval"
	"github.com/coopledger/backend/internal/domain/banking"
	"github.com/coopledger/backend/internal/domain/billing"
	"github.com/coopledger/backend/internal/domain/equipment"
	"github.com/coopledger/backend/internal/domain/ledger"
	"github.com/coopledger/backend/internal/domain/shared"
	"github.com/coopledger/backend/internal/infrastructure/cache"
	"github.com/coopledger/backend/internal/infrastructure/persistence"
	"github.com/coopledger/backend/internal/infrastructure/persistence/persistencetest"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

// services wires the application layer onto the container database the
// same way cmd/server does
type services struct {
	*persistencetest.Fixture
	usage          *equipmentapp.UsageService
	billing        *billingapp.BillingService
	importer       *bankingapp.ImportService
	classification *bankingapp.ClassificationService
	ledger         *ledgerapp.LedgerService
	dualControl    *approvalapp.DualControlService
}

func newServices(t *testing.T, archive bankingapp.StatementArchive) *services {
	t.Helper()
	_, f := NewFixture(t)
	db := f.DB

	store := cache.NewInMemoryApprovalStore()
	t.Cleanup(func() { _ = store.Close() })

	scope := persistence.NewGormTransactionScope(db)
	members := persistence.NewGormMemberDirectory(db)
	machines := persistence.NewGormMachineRegistry(db)
	usageRepo := persistence.NewGormUsageEventRepository(db)
	writer := ledgerapp.NewPostingWriter(nil)
	dualControl := approvalapp.NewDualControlService(store, 0, nil)

	return &services{
		Fixture:     f,
		usage:       equipmentapp.NewUsageService(machines, usageRepo, members),
		billing:     billingapp.NewBillingService(scope, persistence.NewGormInvoiceRepository(db), members, machines, usageRepo, writer, nil),
		importer: bankingapp.NewImportService(
			persistence.NewGormImportProfileRepository(db),
			persistence.NewGormBankTransactionRepository(db),
			archive,
			nil,
			bankingapp.ImportOptions{MaxFileSize: 1 << 20, MaxRowErrors: 10},
		),
		classification: bankingapp.NewClassificationService(scope, members, machines, writer, nil),
		ledger: ledgerapp.NewLedgerService(
			scope,
			persistence.NewGormPostingRepository(db),
			persistence.NewGormBalanceRepository(db),
			members,
			writer,
			dualControl,
			nil,
		),
		dualControl: dualControl,
	}
}

// secondAdmin acts for the same cooperative under another identity
func (s *services) secondAdmin() shared.OperationContext {
	return shared.OperationContext{CooperativeID: s.Op.CooperativeID, AdminID: uuid.New()}
}

func (s *services) balance(t *testing.T, member uuid.UUID) *ledgerapp.BalanceView {
	t.Helper()
	view, err := s.ledger.GetBalance(context.Background(), s.Op, member)
	require.NoError(t, err)
	return view
}

func (s *services) invoiceStatus(t *testing.T, id uuid.UUID) string {
	t.Helper()
	var status string
	require.NoError(t, s.DB.Raw("SELECT status FROM invoices WHERE id = ?", id).Scan(&status).Error)
	return status
}

func (s *services) recordHours(t *testing.T, member uuid.UUID, machine *equipment.Machine, start, end string) {
	t.Helper()
	startMeter := decimal.RequireFromString(start)
	endMeter := decimal.RequireFromString(end)
	_, err := s.usage.RecordUsage(context.Background(), s.Op, equipmentapp.RecordUsageInput{
		MemberID:   member,
		MachineID:  machine.ID,
		Date:       persistencetest.Date(2025, 2, 3),
		StartMeter: &startMeter,
		EndMeter:   &endMeter,
	})
	require.NoError(t, err)
}

// windows1252 encodes a statement the way German online banking exports it
func windows1252(t *testing.T, text string) []byte {
	t.Helper()
	data, err := charmap.Windows1252.NewEncoder().Bytes([]byte(text))
	require.NoError(t, err)
	return data
}

var (
	q1From = persistencetest.Date(2025, 1, 1)
	q1To   = persistencetest.Date(2025, 3, 31)
)

func TestLedgerFlow_UsageToPayment(t *testing.T) {
	s := newServices(t, nil)
	ctx := context.Background()

	tractor := s.AddMachine(t, "Schlepper", equipment.BillingModeHourly, "40")
	anna := s.AddMember(t, "Anna", "Albers")
	s.recordHours(t, anna, tractor, "100.0", "102.5")

	generated, err := s.billing.GenerateInvoices(ctx, s.Op, q1From, q1To)
	require.NoError(t, err)
	require.Equal(t, 1, generated.Created)
	invoice := generated.Invoices[0]
	assert.True(t, decimal.NewFromInt(100).Equal(invoice.Total))
	assert.True(t, decimal.NewFromInt(-100).Equal(s.balance(t, anna).Balance))

	statement := "Buchungstag;Valutadatum;Betrag;Verwendungszweck;Beguenstigter/Zahlungspflichtiger;Kontonummer/IBAN;BIC (SWIFT-Code)\n" +
		"10.04.2025;10.04.2025;100,00;Maschinenrechnung Q1 Schlepper;Anna Albers;DE02120300000000202051;BYLADEM1001\n" +
		"11.04.2025;11.04.2025;-58,90;Überweisung Werkstatt;Landtechnik Süd;DE02100500000054540402;BELADEBEXXX\n"
	imported, err := s.importer.Import(ctx, s.Op, windows1252(t, statement), nil)
	require.NoError(t, err)
	require.Equal(t, 2, imported.Imported)
	assert.Empty(t, imported.RowErrors)

	page, err := s.importer.ListTransactions(ctx, s.Op, banking.BankTransactionFilter{Filter: shared.DefaultFilter()})
	require.NoError(t, err)
	var deposit, repair bankingapp.TransactionView
	for _, tx := range page.Items {
		if tx.Amount.IsPositive() {
			deposit = tx
		} else {
			repair = tx
		}
	}
	assert.Equal(t, "Überweisung Werkstatt", repair.Purpose)
	assert.Equal(t, "Landtechnik Süd", repair.Payee)

	classified, err := s.classification.Classify(ctx, s.Op, bankingapp.ClassifyInput{
		TransactionID: deposit.ID, Target: banking.MatchTargetMember, TargetID: anna,
	})
	require.NoError(t, err)
	require.Len(t, classified.Allocation.PaidInvoices, 1)
	assert.Equal(t, invoice.ID, classified.Allocation.PaidInvoices[0].InvoiceID)
	assert.True(t, s.balance(t, anna).Balance.IsZero())
	assert.Equal(t, billing.InvoiceStatusPaid.String(), s.invoiceStatus(t, invoice.ID))

	_, err = s.classification.Classify(ctx, s.Op, bankingapp.ClassifyInput{
		TransactionID: repair.ID, Target: banking.MatchTargetMachine, TargetID: tractor.ID, Category: "repair",
	})
	require.NoError(t, err)

	t.Run("unclassify reopens the invoice", func(t *testing.T) {
		_, err := s.classification.Unclassify(ctx, s.Op, deposit.ID)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(-100).Equal(s.balance(t, anna).Balance))
		assert.Equal(t, billing.InvoiceStatusOpen.String(), s.invoiceStatus(t, invoice.ID))

		var allocations int64
		require.NoError(t, s.DB.Raw("SELECT count(*) FROM payment_allocations WHERE invoice_id = ?", invoice.ID).Scan(&allocations).Error)
		assert.Zero(t, allocations)
	})

	t.Run("cache matches the ledger", func(t *testing.T) {
		report, err := s.ledger.VerifyBalances(ctx, s.Op)
		require.NoError(t, err)
		assert.Equal(t, 1, report.AccountsChecked)
		assert.Empty(t, report.Divergences)
	})

	t.Run("billing the period again creates nothing", func(t *testing.T) {
		again, err := s.billing.GenerateInvoices(ctx, s.Op, q1From, q1To)
		require.NoError(t, err)
		assert.Zero(t, again.Created)
		assert.True(t, decimal.NewFromInt(-100).Equal(s.balance(t, anna).Balance))
	})
}

func TestLedgerFlow_DivergenceHaltsAccount(t *testing.T) {
	s := newServices(t, nil)
	ctx := context.Background()

	bernd := s.AddMember(t, "Bernd", "Brandt")
	_, err := s.ledger.RecordOpeningBalance(ctx, s.Op, ledgerapp.OpeningBalanceInput{
		MemberID: bernd, Amount: decimal.NewFromInt(250), Date: persistencetest.Date(2024, 12, 31),
	})
	require.NoError(t, err)

	require.NoError(t, s.DB.Exec(
		"UPDATE account_balances SET balance = balance + 5 WHERE cooperative_id = ? AND member_id = ?",
		s.Op.CooperativeID, bernd,
	).Error)

	report, err := s.ledger.VerifyBalances(ctx, s.Op)
	require.ErrorIs(t, err, shared.ErrBalanceDivergence)
	require.Len(t, report.Divergences, 1)
	assert.Equal(t, 1, report.NewlyHalted)
	assert.True(t, decimal.NewFromInt(255).Equal(report.Divergences[0].Cached))
	assert.True(t, decimal.NewFromInt(250).Equal(report.Divergences[0].Ledger))
	assert.True(t, s.balance(t, bernd).Halted)

	_, err = s.ledger.RecordPayment(ctx, s.Op, ledgerapp.PaymentInput{
		MemberID: bernd, Amount: decimal.NewFromInt(10), Date: persistencetest.Date(2025, 1, 5), Description: "Einzahlung",
	})
	assert.ErrorIs(t, err, shared.ErrAccountHalted)

	t.Run("requester cannot confirm", func(t *testing.T) {
		req, err := s.dualControl.Request(ctx, s.Op, approval.ActionResolveDivergence, approval.ResolveSubject(bernd))
		require.NoError(t, err)
		_, err = s.ledger.ResolveDivergence(ctx, s.Op, bernd, req.Code)
		assert.ErrorIs(t, err, approval.ErrSameIdentity)
		assert.True(t, s.balance(t, bernd).Halted)
	})

	t.Run("second admin resolves", func(t *testing.T) {
		req, err := s.dualControl.Request(ctx, s.Op, approval.ActionResolveDivergence, approval.ResolveSubject(bernd))
		require.NoError(t, err)
		view, err := s.ledger.ResolveDivergence(ctx, s.secondAdmin(), bernd, req.Code)
		require.NoError(t, err)
		assert.False(t, view.Halted)
		assert.True(t, decimal.NewFromInt(250).Equal(view.Balance))

		_, err = s.ledger.VerifyBalances(ctx, s.Op)
		assert.NoError(t, err)
	})
}

func TestLedgerFlow_WithdrawalAndYearClose(t *testing.T) {
	s := newServices(t, nil)
	ctx := context.Background()

	carla := s.AddMember(t, "Carla", "Cordes")
	_, err := s.ledger.RecordPayment(ctx, s.Op, ledgerapp.PaymentInput{
		MemberID: carla, Amount: decimal.NewFromInt(300), Date: persistencetest.Date(2024, 11, 2), Description: "Vorauszahlung",
	})
	require.NoError(t, err)

	in := ledgerapp.GatedPostingInput{
		MemberID: carla, Amount: decimal.NewFromInt(120), Date: persistencetest.Date(2025, 1, 15), Description: "Auszahlung Guthaben",
	}
	req, err := s.dualControl.Request(ctx, s.Op, approval.ActionRecordWithdrawal,
		approval.PostingSubject(in.MemberID, in.Amount, in.Date, in.Description))
	require.NoError(t, err)
	in.ApprovalCode = req.Code

	posting, err := s.ledger.RecordWithdrawal(ctx, s.secondAdmin(), in)
	require.NoError(t, err)
	assert.Equal(t, ledger.PostingTypeWithdrawal, posting.Type)
	assert.True(t, decimal.NewFromInt(-120).Equal(posting.Amount))

	t.Run("code is single use", func(t *testing.T) {
		_, err := s.ledger.RecordWithdrawal(ctx, s.secondAdmin(), in)
		assert.ErrorIs(t, err, approval.ErrNotFound)
	})

	closed, err := s.ledger.CloseYear(ctx, s.Op, 2024)
	require.NoError(t, err)
	assert.Equal(t, 1, closed.Accounts)

	view := s.balance(t, carla)
	assert.True(t, decimal.NewFromInt(180).Equal(view.Balance))
	assert.True(t, decimal.NewFromInt(300).Equal(view.PriorYearBalance))
}
