package banking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	appledger "github.com/coopledger/backend/internal/application/ledger"
	"github.com/coopledger/backend/internal/domain/banking"
	"github.com/coopledger/backend/internal/domain/cooperative"
	"github.com/coopledger/backend/internal/domain/equipment"
	"github.com/coopledger/backend/internal/domain/ledger"
	"github.com/coopledger/backend/internal/domain/shared"
	"github.com/coopledger/backend/internal/infrastructure/logger"
	"github.com/coopledger/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ClassificationService attributes bank transactions and reverses attributions.
// Every call runs in one database transaction.
type ClassificationService struct {
	scope    appledger.TransactionScope
	members  cooperative.MemberDirectory
	machines equipment.MachineRegistry
	writer   *appledger.PostingWriter
	metrics  *telemetry.LedgerMetrics
}

// NewClassificationService creates a new ClassificationService
func NewClassificationService(
	scope appledger.TransactionScope,
	members cooperative.MemberDirectory,
	machines equipment.MachineRegistry,
	writer *appledger.PostingWriter,
	metrics *telemetry.LedgerMetrics,
) *ClassificationService {
	return &ClassificationService{
		scope:    scope,
		members:  members,
		machines: machines,
		writer:   writer,
		metrics:  metrics,
	}
}

// Classify attributes an inflow to a member, which books a deposit and
// settles open invoices, or an outflow to a machine or general cooperative
// cost, which books a cost record
func (s *ClassificationService) Classify(ctx context.Context, op shared.OperationContext, in ClassifyInput) (result *ClassificationResult, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "banking", "classify")
	defer span.End()
	defer func(start time.Time) { s.metrics.ObserveDuration(ctx, "classify", start, err) }(time.Now())
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTransactionID, in.TransactionID.String(),
		telemetry.SpanAttrMatchTarget, string(in.Target),
	)

	if err = op.Validate(); err != nil {
		return nil, err
	}
	if !in.Target.IsValid() {
		return nil, banking.ErrInvalidTarget
	}
	if err = s.checkTarget(ctx, op, in); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	result = &ClassificationResult{}
	err = s.scope.Execute(ctx, func(repos appledger.TransactionalRepositories) error {
		tx, err := repos.BankTransactions().FindForUpdate(ctx, op.CooperativeID, in.TransactionID)
		if err != nil {
			return err
		}
		if tx.Matched {
			return banking.ErrAlreadyClassified
		}
		if err := tx.CheckDirection(in.Target); err != nil {
			return err
		}

		switch in.Target {
		case banking.MatchTargetMember:
			result.Allocation, err = s.bookDeposit(ctx, op, repos, tx, in.TargetID)
		default:
			result.CostID, err = s.bookCost(ctx, repos, tx, in)
		}
		if err != nil {
			return err
		}
		result.Transaction = toTransactionView(tx)
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.metrics.Classified(ctx, op.CooperativeID, string(in.Target))
	logger.L(ctx).Info("bank transaction classified",
		zap.String("transaction_id", in.TransactionID.String()),
		zap.String("target", string(in.Target)),
		zap.String("amount", result.Transaction.Amount.StringFixed(2)),
	)
	telemetry.SetOK(span)
	return result, nil
}

// checkTarget verifies the member or machine belongs to the cooperative
func (s *ClassificationService) checkTarget(ctx context.Context, op shared.OperationContext, in ClassifyInput) error {
	switch in.Target {
	case banking.MatchTargetMember:
		ok, err := s.members.IsMember(ctx, op.CooperativeID, in.TargetID)
		if err != nil {
			return fmt.Errorf("failed to check membership: %w", err)
		}
		if !ok {
			return shared.ErrNotFound.Withf("Member %s does not belong to the cooperative", in.TargetID)
		}
	case banking.MatchTargetMachine:
		machine, err := s.machines.FindMachine(ctx, in.TargetID)
		if errors.Is(err, shared.ErrNotFound) || (err == nil && machine.CooperativeID != op.CooperativeID) {
			return shared.ErrNotFound.Withf("Machine %s does not belong to the cooperative", in.TargetID)
		}
		if err != nil {
			return fmt.Errorf("failed to load machine: %w", err)
		}
	}
	return nil
}

func (s *ClassificationService) bookDeposit(
	ctx context.Context,
	op shared.OperationContext,
	repos appledger.TransactionalRepositories,
	tx *banking.BankTransaction,
	memberID uuid.UUID,
) (*appledger.AllocationResult, error) {
	if err := tx.Classify(banking.MatchTargetMember, memberID); err != nil {
		return nil, err
	}
	if err := repos.BankTransactions().Update(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}
	deposit, err := ledger.NewPosting(op, memberID, ledger.PostingTypeDeposit, tx.BookingDate, tx.Amount, depositText(tx), tx.ID.String())
	if err != nil {
		return nil, err
	}
	return s.writer.Deposit(ctx, repos, deposit)
}

func depositText(tx *banking.BankTransaction) string {
	if text := strings.TrimSpace(tx.Purpose); text != "" {
		return text
	}
	return "Bank transfer"
}

func (s *ClassificationService) bookCost(
	ctx context.Context,
	repos appledger.TransactionalRepositories,
	tx *banking.BankTransaction,
	in ClassifyInput,
) (*uuid.UUID, error) {
	var machineID *uuid.UUID
	if in.Target == banking.MatchTargetMachine {
		id := in.TargetID
		machineID = &id
	}
	cost, err := banking.NewCostFromTransaction(tx, in.Target, machineID, in.Category)
	if err != nil {
		return nil, err
	}
	matched := cost.ID
	if machineID != nil {
		matched = *machineID
	}
	if err := tx.Classify(in.Target, matched); err != nil {
		return nil, err
	}
	if err := repos.Costs().Create(ctx, cost); err != nil {
		return nil, fmt.Errorf("failed to create cost: %w", err)
	}
	if err := repos.BankTransactions().Update(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}
	return &cost.ID, nil
}

// Unclassify reverses Classify. A member deposit is removed together with its
// balance delta and the invoices it settled are reopened; a cost record is
// deleted.
func (s *ClassificationService) Unclassify(ctx context.Context, op shared.OperationContext, transactionID uuid.UUID) (view *TransactionView, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "banking", "unclassify")
	defer span.End()
	defer func(start time.Time) { s.metrics.ObserveDuration(ctx, "unclassify", start, err) }(time.Now())
	telemetry.SetAttributes(span, telemetry.SpanAttrTransactionID, transactionID.String())

	if err = op.Validate(); err != nil {
		return nil, err
	}

	var previous banking.MatchTarget
	err = s.scope.Execute(ctx, func(repos appledger.TransactionalRepositories) error {
		tx, err := repos.BankTransactions().FindForUpdate(ctx, op.CooperativeID, transactionID)
		if err != nil {
			return err
		}
		if !tx.Matched {
			return banking.ErrNotClassified
		}
		previous = tx.MatchTarget

		if previous == banking.MatchTargetMember {
			deposit, err := repos.Postings().FindByReference(ctx, op.CooperativeID, ledger.PostingTypeDeposit, tx.ID.String())
			if err != nil {
				return fmt.Errorf("failed to load deposit posting: %w", err)
			}
			if _, err := s.writer.RollbackDeposit(ctx, repos, deposit); err != nil {
				return err
			}
		} else {
			costs, err := repos.Costs().FindByBankTransaction(ctx, op.CooperativeID, tx.ID)
			if err != nil {
				return fmt.Errorf("failed to load costs: %w", err)
			}
			for _, c := range costs {
				if err := repos.Costs().Delete(ctx, c.ID); err != nil {
					return fmt.Errorf("failed to delete cost: %w", err)
				}
			}
		}

		if err := tx.Unclassify(); err != nil {
			return err
		}
		if err := repos.BankTransactions().Update(ctx, tx); err != nil {
			return fmt.Errorf("failed to update transaction: %w", err)
		}
		v := toTransactionView(tx)
		view = &v
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	logger.L(ctx).Info("bank transaction unclassified",
		zap.String("transaction_id", transactionID.String()),
		zap.String("previous_target", string(previous)),
	)
	telemetry.SetOK(span)
	return view, nil
}
