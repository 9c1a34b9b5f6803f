// Package equipment models the cooperative's shared machines, their usage
// and how usage turns into cost.
package equipment

import (
	"context"

	"github.com/coopledger/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillingMode determines which quantity of a usage event is priced
type BillingMode string

const (
	BillingModeHourly   BillingMode = "hourly"
	BillingModeArea     BillingMode = "area"
	BillingModeDistance BillingMode = "distance"
	BillingModePiece    BillingMode = "piece"
)

// IsValid checks if the billing mode is known
func (m BillingMode) IsValid() bool {
	switch m {
	case BillingModeHourly, BillingModeArea, BillingModeDistance, BillingModePiece:
		return true
	}
	return false
}

// IsMeterBased reports whether cost derives from start/end meter readings
func (m BillingMode) IsMeterBased() bool {
	return m == BillingModeHourly
}

// Machine is a jointly owned piece of equipment
type Machine struct {
	shared.BaseEntity
	CooperativeID     uuid.UUID
	Name              string
	BillingMode       BillingMode
	UnitPrice         decimal.Decimal
	FuelBilling       bool
	FuelPricePerLiter decimal.Decimal
	Active            bool
}

// BillsFuel reports whether fuel is charged separately for this machine
func (m *Machine) BillsFuel() bool {
	return m.FuelBilling
}

// MachineRegistry is the read-only machine catalogue consumed by billing
type MachineRegistry interface {
	FindMachine(ctx context.Context, id uuid.UUID) (*Machine, error)
	ListByCooperative(ctx context.Context, cooperativeID uuid.UUID) ([]*Machine, error)
}
