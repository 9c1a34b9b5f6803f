package equipment

import (
	"github.com/coopledger/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ErrMissingMeter is returned when an hourly machine has no meter readings
var ErrMissingMeter = shared.NewDomainError("MISSING_METER", "Hourly billing requires start and end meter readings")

// ErrInvalidBillingMode is returned for machines with an unknown billing mode
var ErrInvalidBillingMode = shared.NewDomainError("INVALID_BILLING_MODE", "Machine has an unknown billing mode")

// UsageCost is the monetary result of one usage event
type UsageCost struct {
	Machine decimal.Decimal
	Fuel    decimal.Decimal
}

// Total returns machine plus fuel cost
func (c UsageCost) Total() decimal.Decimal {
	return c.Machine.Add(c.Fuel)
}

// CostCalculator turns usage events into cost according to the machine's billing mode
type CostCalculator struct{}

// NewCostCalculator creates a cost calculator
func NewCostCalculator() CostCalculator {
	return CostCalculator{}
}

// Calculate computes the machine and fuel cost of a single event.
// Amounts are rounded to cents.
func (CostCalculator) Calculate(event *UsageEvent, machine *Machine) (UsageCost, error) {
	cost := UsageCost{Machine: decimal.Zero, Fuel: decimal.Zero}

	switch machine.BillingMode {
	case BillingModeHourly:
		if event.StartMeter == nil || event.EndMeter == nil {
			return cost, ErrMissingMeter
		}
		if event.EndMeter.LessThan(*event.StartMeter) {
			return cost, shared.ErrInvalidRange.Withf("End meter %s lies before start meter %s",
				event.EndMeter.String(), event.StartMeter.String())
		}
		cost.Machine = event.EndMeter.Sub(*event.StartMeter).Mul(machine.UnitPrice)
	case BillingModeArea, BillingModeDistance, BillingModePiece:
		if event.Quantity != nil && event.Quantity.IsPositive() {
			cost.Machine = event.Quantity.Mul(machine.UnitPrice)
		}
	default:
		return cost, ErrInvalidBillingMode
	}

	if machine.BillsFuel() {
		cost.Fuel = fuelCost(event, machine)
	}

	cost.Machine = cost.Machine.Round(2)
	cost.Fuel = cost.Fuel.Round(2)
	return cost, nil
}

func fuelCost(event *UsageEvent, machine *Machine) decimal.Decimal {
	if event.FuelCost != nil {
		return *event.FuelCost
	}
	if event.FuelQuantity != nil && event.FuelQuantity.IsPositive() {
		return event.FuelQuantity.Mul(machine.FuelPricePerLiter)
	}
	return decimal.Zero
}
