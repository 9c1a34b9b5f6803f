package models

import (
	"time"

	"github.com/coopledger/backend/internal/domain/cooperative"
	"github.com/coopledger/backend/internal/domain/equipment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CooperativeRecord is the persistence model for cooperatives
type CooperativeRecord struct {
	BaseModel
	Name               string          `gorm:"type:varchar(200);not null"`
	BankName           string          `gorm:"type:varchar(200)"`
	IBAN               string          `gorm:"column:iban;type:varchar(34)"`
	BIC                string          `gorm:"column:bic;type:varchar(11)"`
	OpeningBalance     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	OpeningBalanceDate *time.Time      `gorm:"type:date"`
}

// TableName returns the table name for GORM
func (CooperativeRecord) TableName() string {
	return "cooperatives"
}

// ToDomain converts the persistence model to a domain Cooperative
func (m *CooperativeRecord) ToDomain() *cooperative.Cooperative {
	return &cooperative.Cooperative{
		BaseEntity:         m.BaseModel.ToDomain(),
		Name:               m.Name,
		Bank:               cooperative.BankDetails{BankName: m.BankName, IBAN: m.IBAN, BIC: m.BIC},
		OpeningBalance:     m.OpeningBalance,
		OpeningBalanceDate: m.OpeningBalanceDate,
	}
}

// CooperativeRecordFromDomain creates a persistence model from a domain Cooperative
func CooperativeRecordFromDomain(c *cooperative.Cooperative) *CooperativeRecord {
	m := &CooperativeRecord{
		Name:               c.Name,
		BankName:           c.Bank.BankName,
		IBAN:               c.Bank.IBAN,
		BIC:                c.Bank.BIC,
		OpeningBalance:     c.OpeningBalance,
		OpeningBalanceDate: c.OpeningBalanceDate,
	}
	m.FromDomainBaseEntity(c.BaseEntity)
	return m
}

// MemberModel is the persistence model for members
type MemberModel struct {
	BaseModel
	FirstName string `gorm:"type:varchar(100)"`
	LastName  string `gorm:"type:varchar(100);index"`
	Active    bool   `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (MemberModel) TableName() string {
	return "members"
}

// ToDomain converts the persistence model to a domain Member
func (m *MemberModel) ToDomain() *cooperative.Member {
	return &cooperative.Member{
		BaseEntity: m.BaseModel.ToDomain(),
		FirstName:  m.FirstName,
		LastName:   m.LastName,
		Active:     m.Active,
	}
}

// MemberModelFromDomain creates a persistence model from a domain Member
func MemberModelFromDomain(member *cooperative.Member) *MemberModel {
	m := &MemberModel{FirstName: member.FirstName, LastName: member.LastName, Active: member.Active}
	m.FromDomainBaseEntity(member.BaseEntity)
	return m
}

// CooperativeMemberModel is the membership join table
type CooperativeMemberModel struct {
	CooperativeID uuid.UUID `gorm:"type:uuid;primaryKey"`
	MemberID      uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	JoinedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CooperativeMemberModel) TableName() string {
	return "cooperative_members"
}

// MachineModel is the persistence model for machines
type MachineModel struct {
	BaseModel
	CooperativeID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	Name              string          `gorm:"type:varchar(200);not null"`
	BillingMode       string          `gorm:"type:varchar(20);not null"`
	UnitPrice         decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	FuelBilling       bool            `gorm:"not null;default:false"`
	FuelPricePerLiter decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Active            bool            `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (MachineModel) TableName() string {
	return "machines"
}

// ToDomain converts the persistence model to a domain Machine
func (m *MachineModel) ToDomain() *equipment.Machine {
	return &equipment.Machine{
		BaseEntity:        m.BaseModel.ToDomain(),
		CooperativeID:     m.CooperativeID,
		Name:              m.Name,
		BillingMode:       equipment.BillingMode(m.BillingMode),
		UnitPrice:         m.UnitPrice,
		FuelBilling:       m.FuelBilling,
		FuelPricePerLiter: m.FuelPricePerLiter,
		Active:            m.Active,
	}
}

// MachineModelFromDomain creates a persistence model from a domain Machine
func MachineModelFromDomain(machine *equipment.Machine) *MachineModel {
	m := &MachineModel{
		CooperativeID:     machine.CooperativeID,
		Name:              machine.Name,
		BillingMode:       string(machine.BillingMode),
		UnitPrice:         machine.UnitPrice,
		FuelBilling:       machine.FuelBilling,
		FuelPricePerLiter: machine.FuelPricePerLiter,
		Active:            machine.Active,
	}
	m.FromDomainBaseEntity(machine.BaseEntity)
	return m
}

// UsageEventModel is the persistence model for usage events
type UsageEventModel struct {
	BaseModel
	MemberID     uuid.UUID        `gorm:"type:uuid;not null;index:idx_usage_member_date,priority:1"`
	MachineID    uuid.UUID        `gorm:"type:uuid;not null;index"`
	Date         time.Time        `gorm:"type:date;not null;index:idx_usage_member_date,priority:2"`
	StartMeter   *decimal.Decimal `gorm:"type:decimal(18,4)"`
	EndMeter     *decimal.Decimal `gorm:"type:decimal(18,4)"`
	Quantity     *decimal.Decimal `gorm:"type:decimal(18,4)"`
	Cost         decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	FuelQuantity *decimal.Decimal `gorm:"type:decimal(18,4)"`
	FuelCost     *decimal.Decimal `gorm:"type:decimal(18,4)"`
	CreatedBy    uuid.UUID        `gorm:"type:uuid;not null"`
}

// TableName returns the table name for GORM
func (UsageEventModel) TableName() string {
	return "usage_events"
}

// ToDomain converts the persistence model to a domain UsageEvent
func (m *UsageEventModel) ToDomain() *equipment.UsageEvent {
	return &equipment.UsageEvent{
		BaseEntity:   m.BaseModel.ToDomain(),
		MemberID:     m.MemberID,
		MachineID:    m.MachineID,
		Date:         m.Date,
		StartMeter:   m.StartMeter,
		EndMeter:     m.EndMeter,
		Quantity:     m.Quantity,
		Cost:         m.Cost,
		FuelQuantity: m.FuelQuantity,
		FuelCost:     m.FuelCost,
		CreatedBy:    m.CreatedBy,
	}
}

// UsageEventModelFromDomain creates a persistence model from a domain UsageEvent
func UsageEventModelFromDomain(e *equipment.UsageEvent) *UsageEventModel {
	m := &UsageEventModel{
		MemberID:     e.MemberID,
		MachineID:    e.MachineID,
		Date:         e.Date,
		StartMeter:   e.StartMeter,
		EndMeter:     e.EndMeter,
		Quantity:     e.Quantity,
		Cost:         e.Cost,
		FuelQuantity: e.FuelQuantity,
		FuelCost:     e.FuelCost,
		CreatedBy:    e.CreatedBy,
	}
	m.FromDomainBaseEntity(e.BaseEntity)
	return m
}
