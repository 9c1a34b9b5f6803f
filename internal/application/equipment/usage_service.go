// Package equipment records machine usage with its derived cost.
package equipment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coopledger/backend/internal/domain/cooperative"
	"github.com/coopledger/backend/internal/domain/equipment"
	"github.com/coopledger/backend/internal/domain/shared"
	"github.com/coopledger/backend/internal/infrastructure/logger"
	"github.com/coopledger/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RecordUsageInput is one use of a machine as reported by the member
type RecordUsageInput struct {
	MemberID     uuid.UUID
	MachineID    uuid.UUID
	Date         time.Time
	StartMeter   *decimal.Decimal
	EndMeter     *decimal.Decimal
	Quantity     *decimal.Decimal
	FuelQuantity *decimal.Decimal
	FuelCost     *decimal.Decimal
}

// UsageView is a recorded usage event with its cost
type UsageView struct {
	ID          uuid.UUID       `json:"id"`
	MemberID    uuid.UUID       `json:"member_id"`
	MachineID   uuid.UUID       `json:"machine_id"`
	Date        time.Time       `json:"date"`
	MachineCost decimal.Decimal `json:"machine_cost"`
	FuelCost    decimal.Decimal `json:"fuel_cost"`
	Total       decimal.Decimal `json:"total"`
}

// UsageService records usage events
type UsageService struct {
	machines   equipment.MachineRegistry
	usage      equipment.UsageEventRepository
	members    cooperative.MemberDirectory
	calculator equipment.CostCalculator
}

// NewUsageService creates a new UsageService
func NewUsageService(machines equipment.MachineRegistry, usage equipment.UsageEventRepository, members cooperative.MemberDirectory) *UsageService {
	return &UsageService{
		machines:   machines,
		usage:      usage,
		members:    members,
		calculator: equipment.NewCostCalculator(),
	}
}

// RecordUsage validates a usage report, prices it and stores it. Billing
// recomputes the cost from the readings, so the stored cost is informational.
func (s *UsageService) RecordUsage(ctx context.Context, op shared.OperationContext, in RecordUsageInput) (*UsageView, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "equipment", "record_usage")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrMemberID, in.MemberID.String())

	if err := op.Validate(); err != nil {
		return nil, err
	}
	ok, err := s.members.IsMember(ctx, op.CooperativeID, in.MemberID)
	if err != nil {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}
	if !ok {
		return nil, shared.ErrNotFound.Withf("Member %s does not belong to the cooperative", in.MemberID)
	}
	machine, err := s.machines.FindMachine(ctx, in.MachineID)
	if errors.Is(err, shared.ErrNotFound) || (err == nil && machine.CooperativeID != op.CooperativeID) {
		return nil, shared.ErrNotFound.Withf("Machine %s does not belong to the cooperative", in.MachineID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load machine: %w", err)
	}

	event, err := equipment.NewUsageEvent(in.MemberID, in.MachineID, in.Date, op.AdminID)
	if err != nil {
		return nil, err
	}
	if in.StartMeter != nil && in.EndMeter != nil {
		event.WithMeters(*in.StartMeter, *in.EndMeter)
	}
	if in.Quantity != nil {
		event.WithQuantity(*in.Quantity)
	}
	if in.FuelQuantity != nil || in.FuelCost != nil {
		quantity := decimal.Zero
		if in.FuelQuantity != nil {
			quantity = *in.FuelQuantity
		}
		event.WithFuel(quantity, in.FuelCost)
	}

	cost, err := s.calculator.Calculate(event, machine)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	event.ApplyCost(cost)
	if err := s.usage.Save(ctx, event); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to save usage: %w", err)
	}

	logger.L(ctx).Info("usage recorded",
		zap.String("machine", machine.Name),
		zap.String("member_id", in.MemberID.String()),
		zap.String("cost", cost.Total().StringFixed(2)),
	)
	telemetry.SetOK(span)
	return &UsageView{
		ID:          event.ID,
		MemberID:    event.MemberID,
		MachineID:   event.MachineID,
		Date:        event.Date,
		MachineCost: cost.Machine,
		FuelCost:    cost.Fuel,
		Total:       cost.Total(),
	}, nil
}
