package models

import (
	"time"

	"github.com/coopledger/backend/internal/domain/billing"
	"github.com/coopledger/backend/internal/domain/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceModel is the persistence model for invoices
type InvoiceModel struct {
	CooperativeModel
	MemberID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_invoice_period,priority:2;index:idx_invoice_member_status,priority:1"`
	PeriodFrom    time.Time       `gorm:"type:date;not null;uniqueIndex:idx_invoice_period,priority:3"`
	PeriodTo      time.Time       `gorm:"type:date;not null;uniqueIndex:idx_invoice_period,priority:4"`
	MachineAmount decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	FuelAmount    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Total         decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Status        string          `gorm:"type:varchar(10);not null;index:idx_invoice_member_status,priority:2"`
	PaidAt        *time.Time
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice
func (m *InvoiceModel) ToDomain() *billing.Invoice {
	return &billing.Invoice{
		CooperativeEntity: m.ToDomainCooperativeEntity(),
		MemberID:          m.MemberID,
		PeriodFrom:        m.PeriodFrom,
		PeriodTo:          m.PeriodTo,
		MachineAmount:     m.MachineAmount,
		FuelAmount:        m.FuelAmount,
		Status:            billing.InvoiceStatus(m.Status),
		PaidAt:            m.PaidAt,
	}
}

// InvoiceModelFromDomain creates a persistence model from a domain Invoice.
// Total is denormalized for reporting queries.
func InvoiceModelFromDomain(i *billing.Invoice) *InvoiceModel {
	m := &InvoiceModel{
		MemberID:      i.MemberID,
		PeriodFrom:    i.PeriodFrom,
		PeriodTo:      i.PeriodTo,
		MachineAmount: i.MachineAmount,
		FuelAmount:    i.FuelAmount,
		Total:         i.Total(),
		Status:        string(i.Status),
		PaidAt:        i.PaidAt,
	}
	m.FromDomainCooperativeEntity(i.CooperativeEntity)
	return m
}

// LedgerPostingModel is the persistence model for ledger postings
type LedgerPostingModel struct {
	CooperativeModel
	MemberID    uuid.UUID       `gorm:"type:uuid;not null;index:idx_posting_account,priority:2"`
	Date        time.Time       `gorm:"type:date;not null"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Type        string          `gorm:"type:varchar(20);not null"`
	Description string          `gorm:"type:text"`
	Reference   string          `gorm:"type:varchar(64);uniqueIndex:idx_posting_invoice_ref,where:type = 'invoice'"`
}

// TableName returns the table name for GORM
func (LedgerPostingModel) TableName() string {
	return "ledger_postings"
}

// ToDomain converts the persistence model to a domain Posting
func (m *LedgerPostingModel) ToDomain() *ledger.Posting {
	return &ledger.Posting{
		CooperativeEntity: m.ToDomainCooperativeEntity(),
		MemberID:          m.MemberID,
		Date:              m.Date,
		Amount:            m.Amount,
		Type:              ledger.PostingType(m.Type),
		Description:       m.Description,
		Reference:         m.Reference,
	}
}

// LedgerPostingModelFromDomain creates a persistence model from a domain Posting
func LedgerPostingModelFromDomain(p *ledger.Posting) *LedgerPostingModel {
	m := &LedgerPostingModel{
		MemberID:    p.MemberID,
		Date:        p.Date,
		Amount:      p.Amount,
		Type:        string(p.Type),
		Description: p.Description,
		Reference:   p.Reference,
	}
	m.FromDomainCooperativeEntity(p.CooperativeEntity)
	return m
}

// AccountBalanceModel is the persistence model of the balance cache
type AccountBalanceModel struct {
	CooperativeID    uuid.UUID       `gorm:"type:uuid;primaryKey"`
	MemberID         uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Balance          decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	PriorYearBalance decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	LastUpdated      time.Time       `gorm:"not null"`
	Halted           bool            `gorm:"not null;default:false"`
	HaltedReason     string          `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (AccountBalanceModel) TableName() string {
	return "account_balances"
}

// ToDomain converts the persistence model to a domain AccountBalance
func (m *AccountBalanceModel) ToDomain() *ledger.AccountBalance {
	return &ledger.AccountBalance{
		MemberID:         m.MemberID,
		CooperativeID:    m.CooperativeID,
		Balance:          m.Balance,
		PriorYearBalance: m.PriorYearBalance,
		LastUpdated:      m.LastUpdated,
		Halted:           m.Halted,
		HaltedReason:     m.HaltedReason,
	}
}

// AccountBalanceModelFromDomain creates a persistence model from a domain AccountBalance
func AccountBalanceModelFromDomain(b *ledger.AccountBalance) *AccountBalanceModel {
	return &AccountBalanceModel{
		CooperativeID:    b.CooperativeID,
		MemberID:         b.MemberID,
		Balance:          b.Balance,
		PriorYearBalance: b.PriorYearBalance,
		LastUpdated:      b.LastUpdated,
		Halted:           b.Halted,
		HaltedReason:     b.HaltedReason,
	}
}

// PaymentAllocationModel links a deposit posting to the invoices it settled
type PaymentAllocationModel struct {
	ID               uuid.UUID       `gorm:"type:uuid;primary_key"`
	DepositPostingID uuid.UUID       `gorm:"type:uuid;not null;index"`
	InvoiceID        uuid.UUID       `gorm:"type:uuid;not null;index"`
	Amount           decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	CreatedAt        time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PaymentAllocationModel) TableName() string {
	return "payment_allocations"
}

// ToDomain converts the persistence model to a domain PaymentAllocation
func (m *PaymentAllocationModel) ToDomain() *ledger.PaymentAllocation {
	return &ledger.PaymentAllocation{
		ID:               m.ID,
		DepositPostingID: m.DepositPostingID,
		InvoiceID:        m.InvoiceID,
		Amount:           m.Amount,
		CreatedAt:        m.CreatedAt,
	}
}

// PaymentAllocationModelFromDomain creates a persistence model from a domain PaymentAllocation
func PaymentAllocationModelFromDomain(a *ledger.PaymentAllocation) *PaymentAllocationModel {
	return &PaymentAllocationModel{
		ID:               a.ID,
		DepositPostingID: a.DepositPostingID,
		InvoiceID:        a.InvoiceID,
		Amount:           a.Amount,
		CreatedAt:        a.CreatedAt,
	}
}
