package models

import (
	"time"

	"github.com/coopledger/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// BaseModel provides common persistence fields for all models.
// It maps to the domain's BaseEntity.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// ToDomain converts BaseModel to domain BaseEntity
func (m *BaseModel) ToDomain() shared.BaseEntity {
	return shared.BaseEntity{
		ID:        m.ID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// FromDomainBaseEntity populates BaseModel from domain BaseEntity
func (m *BaseModel) FromDomainBaseEntity(e shared.BaseEntity) {
	m.ID = e.ID
	m.CreatedAt = e.CreatedAt
	m.UpdatedAt = e.UpdatedAt
}

// CooperativeModel adds the owning cooperative and the writing administrator
type CooperativeModel struct {
	BaseModel
	CooperativeID uuid.UUID `gorm:"type:uuid;not null;index"`
	CreatedBy     uuid.UUID `gorm:"type:uuid;not null"`
}

// FromDomainCooperativeEntity populates CooperativeModel from the domain entity
func (m *CooperativeModel) FromDomainCooperativeEntity(e shared.CooperativeEntity) {
	m.FromDomainBaseEntity(e.BaseEntity)
	m.CooperativeID = e.CooperativeID
	m.CreatedBy = e.CreatedBy
}

// ToDomainCooperativeEntity converts CooperativeModel to the domain entity
func (m *CooperativeModel) ToDomainCooperativeEntity() shared.CooperativeEntity {
	return shared.CooperativeEntity{
		BaseEntity:    m.BaseModel.ToDomain(),
		CooperativeID: m.CooperativeID,
		CreatedBy:     m.CreatedBy,
	}
}

// All returns every model in dependency order, for AutoMigrate in tests
func All() []any {
	return []any{
		&CooperativeRecord{},
		&MemberModel{},
		&CooperativeMemberModel{},
		&MachineModel{},
		&UsageEventModel{},
		&ImportProfileModel{},
		&BankTransactionModel{},
		&CooperativeCostModel{},
		&InvoiceModel{},
		&LedgerPostingModel{},
		&AccountBalanceModel{},
		&PaymentAllocationModel{},
	}
}
