// Package billing turns recorded machine usage into periodic member invoices.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	appledger "github.com/coopledger/backend/internal/application/ledger"
	"github.com/coopledger/backend/internal/domain/billing"
	"github.com/coopledger/backend/internal/domain/cooperative"
	"github.com/coopledger/backend/internal/domain/equipment"
	"github.com/coopledger/backend/internal/domain/ledger"
	"github.com/coopledger/backend/internal/domain/shared"
	"github.com/coopledger/backend/internal/infrastructure/logger"
	"github.com/coopledger/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BillingService generates and lists invoices
type BillingService struct {
	scope      appledger.TransactionScope
	invoices   billing.InvoiceRepository
	members    cooperative.MemberDirectory
	machines   equipment.MachineRegistry
	usage      equipment.UsageEventRepository
	writer     *appledger.PostingWriter
	calculator equipment.CostCalculator
	metrics    *telemetry.LedgerMetrics
}

// NewBillingService creates a new BillingService
func NewBillingService(
	scope appledger.TransactionScope,
	invoices billing.InvoiceRepository,
	members cooperative.MemberDirectory,
	machines equipment.MachineRegistry,
	usage equipment.UsageEventRepository,
	writer *appledger.PostingWriter,
	metrics *telemetry.LedgerMetrics,
) *BillingService {
	return &BillingService{
		scope:      scope,
		invoices:   invoices,
		members:    members,
		machines:   machines,
		usage:      usage,
		writer:     writer,
		calculator: equipment.NewCostCalculator(),
		metrics:    metrics,
	}
}

// GenerateInvoices bills every active member for the period. Each member is
// handled in its own transaction; a failing member is reported and skipped.
// Running it twice for the same period creates nothing the second time.
func (s *BillingService) GenerateInvoices(ctx context.Context, op shared.OperationContext, from, to time.Time) (result *GenerationResult, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "generate_invoices")
	defer span.End()
	defer func(start time.Time) { s.metrics.ObserveDuration(ctx, "generate_invoices", start, err) }(time.Now())
	telemetry.SetAttributes(span, telemetry.SpanAttrCooperativeID, op.CooperativeID.String())

	if err = op.Validate(); err != nil {
		return nil, err
	}
	period, err := billing.NewPeriod(from, to)
	if err != nil {
		return nil, err
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrPeriod, period.String())
	log := logger.L(ctx).With(zap.String("period", period.String()))

	memberIDs, err := s.members.ListActiveMemberIDs(ctx, op.CooperativeID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	machineList, err := s.machines.ListByCooperative(ctx, op.CooperativeID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to list machines: %w", err)
	}
	machines := make(map[uuid.UUID]*equipment.Machine, len(machineList))
	for _, m := range machineList {
		machines[m.ID] = m
	}

	result = &GenerationResult{
		Period:   PeriodView{From: period.From, To: period.To},
		Invoices: []InvoiceView{},
		Failures: []MemberFailure{},
	}
	for _, memberID := range memberIDs {
		inv, err := s.billMember(ctx, op, memberID, period, machines)
		switch {
		case err != nil:
			log.Error("billing failed for member", zap.String("member_id", memberID.String()), zap.Error(err))
			result.Failures = append(result.Failures, MemberFailure{MemberID: memberID, Error: err.Error()})
		case inv == nil:
			result.Skipped++
		default:
			result.Created++
			result.Invoices = append(result.Invoices, toInvoiceView(inv))
		}
	}

	s.metrics.InvoicesCreated(ctx, op.CooperativeID, result.Created, len(result.Failures))
	log.Info("invoices generated",
		zap.Int("members", len(memberIDs)),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", len(result.Failures)),
	)
	telemetry.SetOK(span)
	return result, nil
}

// billMember creates the invoice of one member. A nil invoice with a nil
// error means the member was skipped.
func (s *BillingService) billMember(
	ctx context.Context,
	op shared.OperationContext,
	memberID uuid.UUID,
	period billing.Period,
	machines map[uuid.UUID]*equipment.Machine,
) (*billing.Invoice, error) {
	exists, err := s.invoices.ExistsForPeriod(ctx, op.CooperativeID, memberID, period)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing invoice: %w", err)
	}
	if exists {
		return nil, nil
	}

	machineAmount, fuelAmount, err := s.usageAmounts(ctx, op, memberID, period, machines)
	if err != nil {
		return nil, err
	}
	if machineAmount.Add(fuelAmount).IsZero() {
		return nil, nil
	}

	inv, err := billing.NewInvoice(op, memberID, period, machineAmount, fuelAmount)
	if err != nil {
		return nil, err
	}
	posting, err := ledger.NewPosting(op, memberID, ledger.PostingTypeInvoice, period.To, inv.Total().Neg(), inv.Description(), inv.Reference())
	if err != nil {
		return nil, err
	}

	err = s.scope.Execute(ctx, func(repos appledger.TransactionalRepositories) error {
		if err := repos.Invoices().Create(ctx, inv); err != nil {
			return err
		}
		_, err := s.writer.Post(ctx, repos, posting)
		return err
	})
	if errors.Is(err, shared.ErrAlreadyExists) {
		// lost a race against a concurrent run for the same period
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *BillingService) usageAmounts(
	ctx context.Context,
	op shared.OperationContext,
	memberID uuid.UUID,
	period billing.Period,
	machines map[uuid.UUID]*equipment.Machine,
) (decimal.Decimal, decimal.Decimal, error) {
	events, err := s.usage.FindForMemberInRange(ctx, op.CooperativeID, memberID, period.From, period.To)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to load usage: %w", err)
	}
	machineAmount, fuelAmount := decimal.Zero, decimal.Zero
	for _, event := range events {
		machine, ok := machines[event.MachineID]
		if !ok {
			continue
		}
		cost, err := s.calculator.Calculate(event, machine)
		if err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("usage %s on %s: %w", event.ID, event.Date.Format(time.DateOnly), err)
		}
		machineAmount = machineAmount.Add(cost.Machine)
		fuelAmount = fuelAmount.Add(cost.Fuel)
	}
	return machineAmount, fuelAmount, nil
}

// ListInvoices pages through the cooperative's invoices
func (s *BillingService) ListInvoices(ctx context.Context, op shared.OperationContext, filter billing.InvoiceFilter) (shared.Paginated[InvoiceView], error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "list_invoices")
	defer span.End()

	if err := op.Validate(); err != nil {
		return shared.Paginated[InvoiceView]{}, err
	}
	invoices, total, err := s.invoices.FindAll(ctx, op.CooperativeID, filter)
	if err != nil {
		telemetry.RecordError(span, err)
		return shared.Paginated[InvoiceView]{}, fmt.Errorf("failed to list invoices: %w", err)
	}
	views := make([]InvoiceView, len(invoices))
	for i, inv := range invoices {
		views[i] = toInvoiceView(inv)
	}
	return shared.NewPaginated(views, total, filter.Filter), nil
}
