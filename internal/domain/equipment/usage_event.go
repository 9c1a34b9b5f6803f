package equipment

import (
	"context"
	"time"

	"github.com/coopledger/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UsageEvent is one recorded use of a machine by a member
type UsageEvent struct {
	shared.BaseEntity
	MemberID     uuid.UUID
	MachineID    uuid.UUID
	Date         time.Time
	StartMeter   *decimal.Decimal
	EndMeter     *decimal.Decimal
	Quantity     *decimal.Decimal
	Cost         decimal.Decimal
	FuelQuantity *decimal.Decimal
	FuelCost     *decimal.Decimal
	CreatedBy    uuid.UUID
}

// NewUsageEvent creates a usage event for a member and machine on a date.
// Readings are attached with WithMeters / WithQuantity / WithFuel.
func NewUsageEvent(memberID, machineID uuid.UUID, date time.Time, createdBy uuid.UUID) (*UsageEvent, error) {
	if memberID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_MEMBER", "Member ID cannot be empty")
	}
	if machineID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_MACHINE", "Machine ID cannot be empty")
	}
	if date.IsZero() {
		return nil, shared.NewDomainError("INVALID_DATE", "Usage date is required")
	}
	return &UsageEvent{
		BaseEntity: shared.NewBaseEntity(),
		MemberID:   memberID,
		MachineID:  machineID,
		Date:       date,
		Cost:       decimal.Zero,
		CreatedBy:  createdBy,
	}, nil
}

// WithMeters sets start and end meter readings
func (e *UsageEvent) WithMeters(start, end decimal.Decimal) *UsageEvent {
	e.StartMeter = &start
	e.EndMeter = &end
	return e
}

// WithQuantity sets the billable quantity (area, distance or pieces)
func (e *UsageEvent) WithQuantity(quantity decimal.Decimal) *UsageEvent {
	e.Quantity = &quantity
	return e
}

// WithFuel sets fuel quantity and, optionally, an explicit fuel cost
func (e *UsageEvent) WithFuel(quantity decimal.Decimal, cost *decimal.Decimal) *UsageEvent {
	e.FuelQuantity = &quantity
	e.FuelCost = cost
	return e
}

// ApplyCost stores the derived cost computed by the calculator
func (e *UsageEvent) ApplyCost(c UsageCost) {
	e.Cost = c.Machine
	if !c.Fuel.IsZero() {
		fuel := c.Fuel
		e.FuelCost = &fuel
	}
}

// UsageEventRepository persists usage events
type UsageEventRepository interface {
	Save(ctx context.Context, event *UsageEvent) error
	// FindForMemberInRange returns events of a member on machines of the
	// cooperative with from <= date <= to
	FindForMemberInRange(ctx context.Context, cooperativeID, memberID uuid.UUID, from, to time.Time) ([]*UsageEvent, error)
}
