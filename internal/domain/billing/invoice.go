// Package billing holds periodic member invoices for machine usage.
//
// An invoice covers one member for one closed period. It is created open and
// only ever moves to paid; the single exception is the rollback of a deposit
// that settled it, which reopens it.
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/coopledger/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents the status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusOpen InvoiceStatus = "open"
	InvoiceStatusPaid InvoiceStatus = "paid"
)

// IsValid checks if the status is a valid InvoiceStatus
func (s InvoiceStatus) IsValid() bool {
	return s == InvoiceStatusOpen || s == InvoiceStatusPaid
}

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// Period is a closed date range [From, To]
type Period struct {
	From time.Time
	To   time.Time
}

// NewPeriod validates and normalizes a billing period to whole days
func NewPeriod(from, to time.Time) (Period, error) {
	if from.IsZero() || to.IsZero() {
		return Period{}, shared.NewDomainError("INVALID_PERIOD", "Period start and end are required")
	}
	from = truncateDay(from)
	to = truncateDay(to)
	if from.After(to) {
		return Period{}, shared.ErrInvalidRange.Withf("Period start %s lies after period end %s",
			from.Format(time.DateOnly), to.Format(time.DateOnly))
	}
	return Period{From: from, To: to}, nil
}

// String renders the period as "from..to"
func (p Period) String() string {
	return p.From.Format(time.DateOnly) + ".." + p.To.Format(time.DateOnly)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Invoice is the bill of one member for one period
type Invoice struct {
	shared.CooperativeEntity
	MemberID      uuid.UUID
	PeriodFrom    time.Time
	PeriodTo      time.Time
	MachineAmount decimal.Decimal
	FuelAmount    decimal.Decimal
	Status        InvoiceStatus
	PaidAt        *time.Time
}

// NewInvoice creates an open invoice. The total must be positive.
func NewInvoice(op shared.OperationContext, memberID uuid.UUID, period Period, machineAmount, fuelAmount decimal.Decimal) (*Invoice, error) {
	if memberID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_MEMBER", "Member ID cannot be empty")
	}
	if machineAmount.IsNegative() || fuelAmount.IsNegative() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Invoice amounts cannot be negative")
	}
	if !machineAmount.Add(fuelAmount).IsPositive() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Invoice total must be positive")
	}

	return &Invoice{
		CooperativeEntity: shared.NewCooperativeEntity(op),
		MemberID:          memberID,
		PeriodFrom:        period.From,
		PeriodTo:          period.To,
		MachineAmount:     machineAmount,
		FuelAmount:        fuelAmount,
		Status:            InvoiceStatusOpen,
	}, nil
}

// Total returns machine plus fuel amount
func (i *Invoice) Total() decimal.Decimal {
	return i.MachineAmount.Add(i.FuelAmount)
}

// IsOpen reports whether the invoice is still unpaid
func (i *Invoice) IsOpen() bool {
	return i.Status == InvoiceStatusOpen
}

// Reference is the ledger reference of the invoice posting
func (i *Invoice) Reference() string {
	return i.ID.String()
}

// Description is the human readable posting text
func (i *Invoice) Description() string {
	return fmt.Sprintf("Invoice %s", Period{From: i.PeriodFrom, To: i.PeriodTo})
}

// MarkPaid moves the invoice from open to paid
func (i *Invoice) MarkPaid(at time.Time) error {
	if i.Status != InvoiceStatusOpen {
		return shared.ErrInvalidState.Withf("Cannot mark invoice in %s status as paid", i.Status)
	}
	i.Status = InvoiceStatusPaid
	i.PaidAt = &at
	i.Touch()
	return nil
}

// Reopen undoes MarkPaid when the deposit that settled the invoice is withdrawn
func (i *Invoice) Reopen() error {
	if i.Status != InvoiceStatusPaid {
		return shared.ErrInvalidState.Withf("Cannot reopen invoice in %s status", i.Status)
	}
	i.Status = InvoiceStatusOpen
	i.PaidAt = nil
	i.Touch()
	return nil
}

// InvoiceFilter narrows invoice listings
type InvoiceFilter struct {
	shared.Filter
	MemberID *uuid.UUID
	Status   *InvoiceStatus
}

// InvoiceRepository persists invoices
type InvoiceRepository interface {
	Create(ctx context.Context, invoice *Invoice) error
	Update(ctx context.Context, invoice *Invoice) error
	FindByID(ctx context.Context, cooperativeID, id uuid.UUID) (*Invoice, error)
	FindByIDs(ctx context.Context, cooperativeID uuid.UUID, ids []uuid.UUID) ([]*Invoice, error)
	// ExistsForPeriod checks the (cooperative, member, period) uniqueness key
	ExistsForPeriod(ctx context.Context, cooperativeID, memberID uuid.UUID, period Period) (bool, error)
	// FindOpenByMember returns open invoices ordered by period end, oldest first
	FindOpenByMember(ctx context.Context, cooperativeID, memberID uuid.UUID) ([]*Invoice, error)
	// FindPaidByMember returns paid invoices ordered by period end, newest first
	FindPaidByMember(ctx context.Context, cooperativeID, memberID uuid.UUID) ([]*Invoice, error)
	FindAll(ctx context.Context, cooperativeID uuid.UUID, filter InvoiceFilter) ([]*Invoice, int64, error)
}
