package billing_test

import (
	"context"
	"testing"
	"time"

	appbilling "github.com/coopledger/backend/internal/application/billing"
	appledger "github.com/coopledger/backend/internal/application/ledger"
	"github.com/coopledger/backend/internal/domain/billing"
	"github.com/coopledger/backend/internal/domain/equipment"
	"github.com/coopledger/backend/internal/domain/ledger"
	"github.com/coopledger/backend/internal/domain/shared"
	"github.com/coopledger/backend/internal/infrastructure/persistence"
	"github.com/coopledger/backend/internal/infrastructure/persistence/persistencetest"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type billingHarness struct {
	*persistencetest.Fixture
	svc *appbilling.BillingService
}

func newBillingHarness(t *testing.T) *billingHarness {
	t.Helper()
	f := persistencetest.NewFixture(t)
	svc := appbilling.NewBillingService(
		persistence.NewGormTransactionScope(f.DB),
		persistence.NewGormInvoiceRepository(f.DB),
		persistence.NewGormMemberDirectory(f.DB),
		persistence.NewGormMachineRegistry(f.DB),
		persistence.NewGormUsageEventRepository(f.DB),
		appledger.NewPostingWriter(nil),
		nil,
	)
	return &billingHarness{Fixture: f, svc: svc}
}

func (h *billingHarness) use(t *testing.T, member uuid.UUID, machine *equipment.Machine, date time.Time, configure func(*equipment.UsageEvent)) {
	t.Helper()
	event, err := equipment.NewUsageEvent(member, machine.ID, date, h.Op.AdminID)
	require.NoError(t, err)
	configure(event)
	require.NoError(t, persistence.NewGormUsageEventRepository(h.DB).Save(context.Background(), event))
}

func (h *billingHarness) balance(t *testing.T, member uuid.UUID) decimal.Decimal {
	t.Helper()
	b, err := persistence.NewGormBalanceRepository(h.DB).Find(context.Background(), ledger.AccountKey{CooperativeID: h.Op.CooperativeID, MemberID: member})
	require.NoError(t, err)
	return b.Balance
}

var (
	q1Start = persistencetest.Date(2025, 1, 1)
	q1End   = persistencetest.Date(2025, 3, 31)
)

func TestBillingService_GenerateInvoices(t *testing.T) {
	h := newBillingHarness(t)
	ctx := context.Background()

	tractor := h.AddMachine(t, "Tractor", equipment.BillingModeHourly, "40")
	mower := h.AddMachine(t, "Mower", equipment.BillingModeArea, "18")

	anna := h.AddMember(t, "Anna", "Albers")
	bernd := h.AddMember(t, "Bernd", "Brandt")
	idle := h.AddMember(t, "Carl", "Cordes")

	h.use(t, anna, tractor, persistencetest.Date(2025, 2, 3), func(e *equipment.UsageEvent) {
		e.WithMeters(decimal.RequireFromString("10.0"), decimal.RequireFromString("12.5"))
	})
	h.use(t, bernd, mower, persistencetest.Date(2025, 3, 31), func(e *equipment.UsageEvent) {
		e.WithQuantity(decimal.NewFromInt(5))
	})
	// outside the period
	h.use(t, bernd, mower, persistencetest.Date(2025, 4, 1), func(e *equipment.UsageEvent) {
		e.WithQuantity(decimal.NewFromInt(100))
	})

	result, err := h.svc.GenerateInvoices(ctx, h.Op, q1Start, q1End)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, result.Failures)

	totals := map[uuid.UUID]decimal.Decimal{}
	for _, inv := range result.Invoices {
		totals[inv.MemberID] = inv.Total
		assert.Equal(t, billing.InvoiceStatusOpen.String(), inv.Status)
	}
	assert.True(t, decimal.NewFromInt(100).Equal(totals[anna]), "anna: %s", totals[anna])
	assert.True(t, decimal.NewFromInt(90).Equal(totals[bernd]), "bernd: %s", totals[bernd])
	_, billed := totals[idle]
	assert.False(t, billed)

	assert.True(t, decimal.NewFromInt(-100).Equal(h.balance(t, anna)))
	assert.True(t, decimal.NewFromInt(-90).Equal(h.balance(t, bernd)))

	t.Run("one invoice posting per invoice", func(t *testing.T) {
		for _, inv := range result.Invoices {
			posting, err := persistence.NewGormPostingRepository(h.DB).FindByReference(ctx, h.Op.CooperativeID, ledger.PostingTypeInvoice, inv.ID.String())
			require.NoError(t, err)
			assert.True(t, inv.Total.Neg().Equal(posting.Amount))
			assert.Equal(t, q1End, posting.Date.UTC())
		}
	})

	t.Run("second run is a no-op", func(t *testing.T) {
		again, err := h.svc.GenerateInvoices(ctx, h.Op, q1Start, q1End)
		require.NoError(t, err)
		assert.Equal(t, 0, again.Created)
		assert.Equal(t, 3, again.Skipped)
		assert.True(t, decimal.NewFromInt(-100).Equal(h.balance(t, anna)))
	})

	t.Run("list invoices by member", func(t *testing.T) {
		page, err := h.svc.ListInvoices(ctx, h.Op, billing.InvoiceFilter{Filter: shared.DefaultFilter(), MemberID: &anna})
		require.NoError(t, err)
		assert.Equal(t, int64(1), page.Total)
		require.Len(t, page.Items, 1)
		assert.Equal(t, anna, page.Items[0].MemberID)
	})
}

func TestBillingService_Fuel(t *testing.T) {
	h := newBillingHarness(t)
	ctx := context.Background()

	sprayer := h.AddMachine(t, "Sprayer", equipment.BillingModeArea, "10")
	sprayer.FuelBilling = true
	sprayer.FuelPricePerLiter = decimal.RequireFromString("1.50")
	require.NoError(t, persistence.NewGormMachineRegistry(h.DB).Save(ctx, sprayer))

	member := h.AddMember(t, "Dirk", "Dorn")
	h.use(t, member, sprayer, persistencetest.Date(2025, 1, 15), func(e *equipment.UsageEvent) {
		e.WithQuantity(decimal.NewFromInt(2)).WithFuel(decimal.NewFromInt(4), nil)
	})

	result, err := h.svc.GenerateInvoices(ctx, h.Op, q1Start, q1End)
	require.NoError(t, err)
	require.Len(t, result.Invoices, 1)
	inv := result.Invoices[0]
	assert.True(t, decimal.NewFromInt(20).Equal(inv.MachineAmount))
	assert.True(t, decimal.NewFromInt(6).Equal(inv.FuelAmount))
	assert.True(t, decimal.NewFromInt(26).Equal(inv.Total))
}

func TestBillingService_MemberFailureDoesNotStopRun(t *testing.T) {
	h := newBillingHarness(t)
	ctx := context.Background()

	tractor := h.AddMachine(t, "Tractor", equipment.BillingModeHourly, "40")
	broken := h.AddMember(t, "Erik", "Ernst")
	fine := h.AddMember(t, "Frank", "Fuchs")

	// hourly usage without meter readings cannot be priced
	h.use(t, broken, tractor, persistencetest.Date(2025, 2, 1), func(e *equipment.UsageEvent) {})
	h.use(t, fine, tractor, persistencetest.Date(2025, 2, 1), func(e *equipment.UsageEvent) {
		e.WithMeters(decimal.NewFromInt(1), decimal.NewFromInt(2))
	})

	result, err := h.svc.GenerateInvoices(ctx, h.Op, q1Start, q1End)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, broken, result.Failures[0].MemberID)

	exists, err := persistence.NewGormInvoiceRepository(h.DB).ExistsForPeriod(ctx, h.Op.CooperativeID, broken, billing.Period{From: q1Start, To: q1End})
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestBillingService_HaltedAccountIsReported(t *testing.T) {
	h := newBillingHarness(t)
	ctx := context.Background()

	tractor := h.AddMachine(t, "Tractor", equipment.BillingModeHourly, "40")
	member := h.AddMember(t, "Gesa", "Groth")
	h.use(t, member, tractor, persistencetest.Date(2025, 2, 1), func(e *equipment.UsageEvent) {
		e.WithMeters(decimal.NewFromInt(0), decimal.NewFromInt(1))
	})

	halted := ledger.NewAccountBalance(ledger.AccountKey{CooperativeID: h.Op.CooperativeID, MemberID: member})
	halted.Halt("test")
	require.NoError(t, persistence.NewGormBalanceRepository(h.DB).Save(ctx, halted))

	result, err := h.svc.GenerateInvoices(ctx, h.Op, q1Start, q1End)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Created)
	require.Len(t, result.Failures, 1)

	// the invoice insert was rolled back with the posting
	exists, err := persistence.NewGormInvoiceRepository(h.DB).ExistsForPeriod(ctx, h.Op.CooperativeID, member, billing.Period{From: q1Start, To: q1End})
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestBillingService_InvalidPeriod(t *testing.T) {
	h := newBillingHarness(t)
	_, err := h.svc.GenerateInvoices(context.Background(), h.Op, q1End, q1Start)
	assert.ErrorIs(t, err, shared.ErrInvalidRange)
}
