package shared

import (
	"time"

	"github.com/google/uuid"
)

// BaseEntity is the identity and timestamps every stored record has.
type BaseEntity struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewBaseEntity() BaseEntity {
	now := time.Now()
	return BaseEntity{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
}

// Touch records a modification.
func (e *BaseEntity) Touch() {
	e.UpdatedAt = time.Now()
}

// CooperativeEntity is a record owned by one cooperative and written on
// behalf of one of its administrators.
type CooperativeEntity struct {
	BaseEntity
	CooperativeID uuid.UUID
	CreatedBy     uuid.UUID
}

// NewCooperativeEntity stamps a new record with the operation's cooperative
// and admin.
func NewCooperativeEntity(op OperationContext) CooperativeEntity {
	return CooperativeEntity{
		BaseEntity:    NewBaseEntity(),
		CooperativeID: op.CooperativeID,
		CreatedBy:     op.AdminID,
	}
}
