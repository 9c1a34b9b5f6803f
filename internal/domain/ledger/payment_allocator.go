package ledger

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AllocationTarget is an open invoice a deposit may settle
type AllocationTarget struct {
	InvoiceID uuid.UUID
	Total     decimal.Decimal
	PeriodTo  time.Time
	CreatedAt time.Time
}

// AllocationPlan is the outcome of allocating credit to open invoices
type AllocationPlan struct {
	Paid      []AllocationTarget
	Remaining decimal.Decimal
	// Shortfall is what is missing to settle the oldest invoice left open,
	// zero when nothing stays open
	Shortfall decimal.Decimal
	NextOpen  *uuid.UUID
}

// PaymentAllocator settles invoices oldest first, and only in full
type PaymentAllocator struct{}

// NewPaymentAllocator creates a payment allocator
func NewPaymentAllocator() PaymentAllocator {
	return PaymentAllocator{}
}

// Allocate walks the open invoices by period end and marks each one paid while
// the remaining credit covers its total. It stops at the first invoice that
// cannot be covered; partial payments are never recorded.
func (PaymentAllocator) Allocate(available decimal.Decimal, targets []AllocationTarget) AllocationPlan {
	plan := AllocationPlan{Remaining: available, Shortfall: decimal.Zero}
	if len(targets) == 0 {
		return plan
	}

	sorted := make([]AllocationTarget, len(targets))
	copy(sorted, targets)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].PeriodTo.Equal(sorted[j].PeriodTo) {
			return sorted[i].PeriodTo.Before(sorted[j].PeriodTo)
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	for _, target := range sorted {
		if plan.Remaining.LessThan(target.Total) {
			id := target.InvoiceID
			plan.NextOpen = &id
			plan.Shortfall = target.Total.Sub(plan.Remaining)
			break
		}
		plan.Remaining = plan.Remaining.Sub(target.Total)
		plan.Paid = append(plan.Paid, target)
	}
	return plan
}

// PaymentAllocation records that a deposit settled an invoice
type PaymentAllocation struct {
	ID               uuid.UUID
	DepositPostingID uuid.UUID
	InvoiceID        uuid.UUID
	Amount           decimal.Decimal
	CreatedAt        time.Time
}

// NewPaymentAllocation creates an allocation record
func NewPaymentAllocation(depositPostingID, invoiceID uuid.UUID, amount decimal.Decimal) *PaymentAllocation {
	return &PaymentAllocation{
		ID:               uuid.New(),
		DepositPostingID: depositPostingID,
		InvoiceID:        invoiceID,
		Amount:           amount,
		CreatedAt:        time.Now(),
	}
}
