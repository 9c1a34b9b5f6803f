package billing

import (
	"testing"
	"time"

	"github.com/coopledger/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOp() shared.OperationContext {
	return shared.OperationContext{CooperativeID: uuid.New(), AdminID: uuid.New()}
}

func quarter(t *testing.T) Period {
	t.Helper()
	p, err := NewPeriod(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return p
}

func TestNewPeriod(t *testing.T) {
	t.Run("truncates to whole days", func(t *testing.T) {
		p, err := NewPeriod(time.Date(2025, 1, 1, 15, 30, 0, 0, time.UTC), time.Date(2025, 1, 31, 8, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Equal(t, 0, p.From.Hour())
		assert.Equal(t, "2025-01-01..2025-01-31", p.String())
	})

	t.Run("single day period is valid", func(t *testing.T) {
		d := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
		_, err := NewPeriod(d, d)
		assert.NoError(t, err)
	})

	t.Run("start after end is invalid range", func(t *testing.T) {
		_, err := NewPeriod(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
		assert.ErrorIs(t, err, shared.ErrInvalidRange)
	})

	t.Run("zero dates rejected", func(t *testing.T) {
		_, err := NewPeriod(time.Time{}, time.Now())
		assert.Error(t, err)
	})
}

func TestNewInvoice(t *testing.T) {
	op := testOp()
	memberID := uuid.New()

	inv, err := NewInvoice(op, memberID, quarter(t), decimal.NewFromInt(100), decimal.RequireFromString("12.50"))
	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusOpen, inv.Status)
	assert.Equal(t, op.CooperativeID, inv.CooperativeID)
	assert.Equal(t, op.AdminID, inv.CreatedBy)
	assert.True(t, decimal.RequireFromString("112.50").Equal(inv.Total()))
	assert.Equal(t, inv.ID.String(), inv.Reference())
	assert.Contains(t, inv.Description(), "2025-01-01..2025-03-31")

	_, err = NewInvoice(op, memberID, quarter(t), decimal.Zero, decimal.Zero)
	assert.Error(t, err, "zero total")

	_, err = NewInvoice(op, uuid.Nil, quarter(t), decimal.NewFromInt(1), decimal.Zero)
	assert.Error(t, err, "missing member")

	_, err = NewInvoice(op, memberID, quarter(t), decimal.NewFromInt(10), decimal.NewFromInt(-1))
	assert.Error(t, err, "negative fuel")
}

func TestInvoice_StatusTransitions(t *testing.T) {
	inv, err := NewInvoice(testOp(), uuid.New(), quarter(t), decimal.NewFromInt(80), decimal.Zero)
	require.NoError(t, err)

	assert.ErrorIs(t, inv.Reopen(), shared.ErrInvalidState)

	paidAt := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, inv.MarkPaid(paidAt))
	assert.False(t, inv.IsOpen())
	require.NotNil(t, inv.PaidAt)
	assert.Equal(t, paidAt, *inv.PaidAt)

	assert.ErrorIs(t, inv.MarkPaid(paidAt), shared.ErrInvalidState)

	require.NoError(t, inv.Reopen())
	assert.True(t, inv.IsOpen())
	assert.Nil(t, inv.PaidAt)
}
