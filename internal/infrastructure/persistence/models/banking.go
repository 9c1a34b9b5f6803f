package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/coopledger/backend/internal/domain/banking"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ImportProfileModel is the persistence model for bank import profiles
type ImportProfileModel struct {
	BaseModel
	CooperativeID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	Delimiter          string    `gorm:"type:varchar(4);not null"`
	Encoding           string    `gorm:"type:varchar(40);not null"`
	ColumnsJSON        string    `gorm:"column:columns;type:jsonb;not null"`
	DecimalSeparator   string    `gorm:"type:varchar(4);not null"`
	ThousandsSeparator string    `gorm:"type:varchar(4)"`
	DateFormat         string    `gorm:"type:varchar(40);not null"`
	HeaderPresent      bool      `gorm:"not null"`
	LinesToSkip        int       `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (ImportProfileModel) TableName() string {
	return "import_profiles"
}

// ToDomain converts the persistence model to a domain ImportProfile
func (m *ImportProfileModel) ToDomain() (*banking.ImportProfile, error) {
	var columns banking.ColumnMapping
	if err := json.Unmarshal([]byte(m.ColumnsJSON), &columns); err != nil {
		return nil, fmt.Errorf("decode import profile columns: %w", err)
	}
	return &banking.ImportProfile{
		BaseEntity:         m.BaseModel.ToDomain(),
		CooperativeID:      m.CooperativeID,
		Delimiter:          m.Delimiter,
		Encoding:           m.Encoding,
		Columns:            columns,
		DecimalSeparator:   m.DecimalSeparator,
		ThousandsSeparator: m.ThousandsSeparator,
		DateFormat:         m.DateFormat,
		HeaderPresent:      m.HeaderPresent,
		LinesToSkip:        m.LinesToSkip,
	}, nil
}

// ImportProfileModelFromDomain creates a persistence model from a domain ImportProfile
func ImportProfileModelFromDomain(p *banking.ImportProfile) (*ImportProfileModel, error) {
	columns, err := json.Marshal(p.Columns)
	if err != nil {
		return nil, fmt.Errorf("encode import profile columns: %w", err)
	}
	m := &ImportProfileModel{
		CooperativeID:      p.CooperativeID,
		Delimiter:          p.Delimiter,
		Encoding:           p.Encoding,
		ColumnsJSON:        string(columns),
		DecimalSeparator:   p.DecimalSeparator,
		ThousandsSeparator: p.ThousandsSeparator,
		DateFormat:         p.DateFormat,
		HeaderPresent:      p.HeaderPresent,
		LinesToSkip:        p.LinesToSkip,
	}
	m.FromDomainBaseEntity(p.BaseEntity)
	return m, nil
}

// BankTransactionModel is the persistence model for imported bank lines
type BankTransactionModel struct {
	BaseModel
	CooperativeID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_bank_tx_coop_hash,priority:1;index:idx_bank_tx_coop_date,priority:1"`
	BookingDate   time.Time       `gorm:"type:date;not null;index:idx_bank_tx_coop_date,priority:2"`
	ValueDate     *time.Time      `gorm:"type:date"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Purpose       string          `gorm:"type:text"`
	Payee         string          `gorm:"type:varchar(255)"`
	PayeeAccount  string          `gorm:"type:varchar(64)"`
	PayeeBIC      string          `gorm:"column:payee_bic;type:varchar(11)"`
	ContentHash   string          `gorm:"type:char(64);not null;uniqueIndex:idx_bank_tx_coop_hash,priority:2"`
	MatchTarget   string          `gorm:"type:varchar(20);not null;default:'none'"`
	MatchedID     *uuid.UUID      `gorm:"type:uuid;index"`
	Matched       bool            `gorm:"not null;default:false;index"`
	ImportedAt    time.Time       `gorm:"not null"`
	ImportedBy    uuid.UUID       `gorm:"type:uuid;not null"`
}

// TableName returns the table name for GORM
func (BankTransactionModel) TableName() string {
	return "bank_transactions"
}

// ToDomain converts the persistence model to a domain BankTransaction
func (m *BankTransactionModel) ToDomain() *banking.BankTransaction {
	return &banking.BankTransaction{
		BaseEntity:    m.BaseModel.ToDomain(),
		CooperativeID: m.CooperativeID,
		BookingDate:   m.BookingDate,
		ValueDate:     m.ValueDate,
		Amount:        m.Amount,
		Purpose:       m.Purpose,
		Payee:         m.Payee,
		PayeeAccount:  m.PayeeAccount,
		PayeeBIC:      m.PayeeBIC,
		ContentHash:   m.ContentHash,
		MatchTarget:   banking.MatchTarget(m.MatchTarget),
		MatchedID:     m.MatchedID,
		Matched:       m.Matched,
		ImportedAt:    m.ImportedAt,
		ImportedBy:    m.ImportedBy,
	}
}

// BankTransactionModelFromDomain creates a persistence model from a domain BankTransaction
func BankTransactionModelFromDomain(t *banking.BankTransaction) *BankTransactionModel {
	m := &BankTransactionModel{
		CooperativeID: t.CooperativeID,
		BookingDate:   t.BookingDate,
		ValueDate:     t.ValueDate,
		Amount:        t.Amount,
		Purpose:       t.Purpose,
		Payee:         t.Payee,
		PayeeAccount:  t.PayeeAccount,
		PayeeBIC:      t.PayeeBIC,
		ContentHash:   t.ContentHash,
		MatchTarget:   string(t.MatchTarget),
		MatchedID:     t.MatchedID,
		Matched:       t.Matched,
		ImportedAt:    t.ImportedAt,
		ImportedBy:    t.ImportedBy,
	}
	m.FromDomainBaseEntity(t.BaseEntity)
	return m
}

// CooperativeCostModel is the persistence model for cooperative costs
type CooperativeCostModel struct {
	BaseModel
	CooperativeID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	BankTransactionID *uuid.UUID      `gorm:"type:uuid;index"`
	MachineID         *uuid.UUID      `gorm:"type:uuid;index"`
	Category          string          `gorm:"type:varchar(50);not null"`
	Amount            decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Date              time.Time       `gorm:"type:date;not null"`
	Description       string          `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (CooperativeCostModel) TableName() string {
	return "cooperative_costs"
}

// ToDomain converts the persistence model to a domain CooperativeCost
func (m *CooperativeCostModel) ToDomain() *banking.CooperativeCost {
	return &banking.CooperativeCost{
		BaseEntity:        m.BaseModel.ToDomain(),
		CooperativeID:     m.CooperativeID,
		BankTransactionID: m.BankTransactionID,
		MachineID:         m.MachineID,
		Category:          m.Category,
		Amount:            m.Amount,
		Date:              m.Date,
		Description:       m.Description,
	}
}

// CooperativeCostModelFromDomain creates a persistence model from a domain CooperativeCost
func CooperativeCostModelFromDomain(c *banking.CooperativeCost) *CooperativeCostModel {
	m := &CooperativeCostModel{
		CooperativeID:     c.CooperativeID,
		BankTransactionID: c.BankTransactionID,
		MachineID:         c.MachineID,
		Category:          c.Category,
		Amount:            c.Amount,
		Date:              c.Date,
		Description:       c.Description,
	}
	m.FromDomainBaseEntity(c.BaseEntity)
	return m
}
