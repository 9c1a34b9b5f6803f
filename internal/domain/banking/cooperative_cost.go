package banking

import (
	"context"
	"strings"
	"time"

	"github.com/coopledger/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CostCategoryMachine is the category of costs booked against a machine
const CostCategoryMachine = "machine"

// CostCategoryGeneral is the fallback category for cooperative costs
const CostCategoryGeneral = "general"

// CooperativeCost is an expense of the cooperative, usually an outgoing bank transaction
type CooperativeCost struct {
	shared.BaseEntity
	CooperativeID     uuid.UUID
	BankTransactionID *uuid.UUID
	MachineID         *uuid.UUID
	Category          string
	Amount            decimal.Decimal
	Date              time.Time
	Description       string
}

// NewCostFromTransaction books an outgoing transaction as a cost. The cost
// amount is the magnitude of the transaction amount.
func NewCostFromTransaction(tx *BankTransaction, target MatchTarget, machineID *uuid.UUID, category string) (*CooperativeCost, error) {
	if err := tx.CheckDirection(target); err != nil {
		return nil, err
	}
	if !target.IsCost() {
		return nil, ErrInvalidTarget
	}

	category = strings.TrimSpace(category)
	switch {
	case target == MatchTargetMachine:
		if machineID == nil || *machineID == uuid.Nil {
			return nil, shared.NewDomainError("INVALID_MACHINE", "Machine ID is required for machine costs")
		}
		category = CostCategoryMachine
	case category == "":
		category = CostCategoryGeneral
	}

	txID := tx.ID
	description := tx.Purpose
	if tx.Payee != "" {
		description = tx.Payee + ": " + tx.Purpose
	}

	cost := &CooperativeCost{
		BaseEntity:        shared.NewBaseEntity(),
		CooperativeID:     tx.CooperativeID,
		BankTransactionID: &txID,
		Category:          category,
		Amount:            tx.AbsAmount(),
		Date:              tx.BookingDate,
		Description:       strings.TrimSpace(description),
	}
	if target == MatchTargetMachine {
		id := *machineID
		cost.MachineID = &id
	}
	return cost, nil
}

// CooperativeCostRepository persists cooperative costs
type CooperativeCostRepository interface {
	Create(ctx context.Context, cost *CooperativeCost) error
	FindByBankTransaction(ctx context.Context, cooperativeID, transactionID uuid.UUID) ([]*CooperativeCost, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
