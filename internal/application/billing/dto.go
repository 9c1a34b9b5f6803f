package billing

import (
	"time"

	"github.com/coopledger/backend/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PeriodView is a billing period in responses
type PeriodView struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// MemberFailure reports a member whose billing was rolled back
type MemberFailure struct {
	MemberID uuid.UUID `json:"member_id"`
	Error    string    `json:"error"`
}

// GenerationResult summarizes one invoice generation run
type GenerationResult struct {
	Period   PeriodView      `json:"period"`
	Created  int             `json:"created"`
	Skipped  int             `json:"skipped"`
	Invoices []InvoiceView   `json:"invoices"`
	Failures []MemberFailure `json:"failures"`
}

// InvoiceView is the read model of an invoice
type InvoiceView struct {
	ID            uuid.UUID       `json:"id"`
	MemberID      uuid.UUID       `json:"member_id"`
	PeriodFrom    time.Time       `json:"period_from"`
	PeriodTo      time.Time       `json:"period_to"`
	MachineAmount decimal.Decimal `json:"machine_amount"`
	FuelAmount    decimal.Decimal `json:"fuel_amount"`
	Total         decimal.Decimal `json:"total"`
	Status        string          `json:"status"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func toInvoiceView(inv *billing.Invoice) InvoiceView {
	return InvoiceView{
		ID:            inv.ID,
		MemberID:      inv.MemberID,
		PeriodFrom:    inv.PeriodFrom,
		PeriodTo:      inv.PeriodTo,
		MachineAmount: inv.MachineAmount,
		FuelAmount:    inv.FuelAmount,
		Total:         inv.Total(),
		Status:        inv.Status.String(),
		PaidAt:        inv.PaidAt,
		CreatedAt:     inv.CreatedAt,
	}
}
