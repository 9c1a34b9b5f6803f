package ledger

import (
	"time"

	"github.com/coopledger/backend/internal/domain/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaidInvoice is one invoice settled by a deposit
type PaidInvoice struct {
	InvoiceID uuid.UUID       `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// AllocationResult is the outcome of recording a payment
type AllocationResult struct {
	PostingID       uuid.UUID       `json:"posting_id"`
	PaidInvoices    []PaidInvoice   `json:"paid_invoices"`
	RemainingCredit decimal.Decimal `json:"remaining_credit"`
	// Shortfall is what the next open invoice still lacks; informational
	Shortfall       decimal.Decimal `json:"shortfall"`
	NextOpenInvoice *uuid.UUID      `json:"next_open_invoice,omitempty"`
	Balance         decimal.Decimal `json:"balance"`
}

// PaymentInput records money received from a member
type PaymentInput struct {
	MemberID    uuid.UUID
	Amount      decimal.Decimal
	Date        time.Time
	Description string
	Reference   string
}

// GatedPostingInput is a correction or withdrawal confirmed by a second admin
type GatedPostingInput struct {
	MemberID     uuid.UUID
	Amount       decimal.Decimal
	Date         time.Time
	Description  string
	ApprovalCode string
}

// OpeningBalanceInput seeds an account that has no postings yet
type OpeningBalanceInput struct {
	MemberID uuid.UUID
	Amount   decimal.Decimal
	Date     time.Time
}

// BalanceView is the read model of one account
type BalanceView struct {
	MemberID         uuid.UUID       `json:"member_id"`
	CooperativeID    uuid.UUID       `json:"cooperative_id"`
	Balance          decimal.Decimal `json:"balance"`
	PriorYearBalance decimal.Decimal `json:"prior_year_balance"`
	LastUpdated      time.Time       `json:"last_updated"`
	Halted           bool            `json:"halted"`
	HaltedReason     string          `json:"halted_reason,omitempty"`
}

func toBalanceView(b *ledger.AccountBalance) *BalanceView {
	return &BalanceView{
		MemberID:         b.MemberID,
		CooperativeID:    b.CooperativeID,
		Balance:          b.Balance,
		PriorYearBalance: b.PriorYearBalance,
		LastUpdated:      b.LastUpdated,
		Halted:           b.Halted,
		HaltedReason:     b.HaltedReason,
	}
}

// VerificationReport summarizes a reconciliation check
type VerificationReport struct {
	AccountsChecked int                 `json:"accounts_checked"`
	Divergences     []ledger.Divergence `json:"divergences"`
	NewlyHalted     int                 `json:"newly_halted"`
}

// YearCloseResult summarizes a year close
type YearCloseResult struct {
	Year     int       `json:"year"`
	Cutoff   time.Time `json:"cutoff"`
	Accounts int       `json:"accounts"`
}
