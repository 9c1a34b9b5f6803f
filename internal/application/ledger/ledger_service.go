// Package ledger holds the money-moving use cases of a member account:
// payments, corrections, withdrawals, opening balances, year close and the
// reconciliation of the balance cache against the postings.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coopledger/backend/internal/domain/approval"
	"github.com/coopledger/backend/internal/domain/cooperative"
	"github.com/coopledger/backend/internal/domain/ledger"
	"github.com/coopledger/backend/internal/domain/shared"
	"github.com/coopledger/backend/internal/infrastructure/logger"
	"github.com/coopledger/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ApprovalGate confirms a dual-control request for an action
type ApprovalGate interface {
	Confirm(ctx context.Context, op shared.OperationContext, code string, action approval.Action, subject string) error
}

// ErrInsufficientCredit is returned when a withdrawal exceeds the member's credit
var ErrInsufficientCredit = shared.NewDomainError("INSUFFICIENT_CREDIT", "Withdrawal exceeds the member's credit")

// ErrOpeningBalanceExists is returned when an account already has postings
var ErrOpeningBalanceExists = shared.NewDomainError("OPENING_BALANCE_EXISTS", "Opening balance can only be recorded on an empty account")

// LedgerService implements the account operations
type LedgerService struct {
	scope    TransactionScope
	postings ledger.PostingRepository
	balances ledger.BalanceRepository
	members  cooperative.MemberDirectory
	writer   *PostingWriter
	gate     ApprovalGate
	metrics  *telemetry.LedgerMetrics
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(
	scope TransactionScope,
	postings ledger.PostingRepository,
	balances ledger.BalanceRepository,
	members cooperative.MemberDirectory,
	writer *PostingWriter,
	gate ApprovalGate,
	metrics *telemetry.LedgerMetrics,
) *LedgerService {
	return &LedgerService{
		scope:    scope,
		postings: postings,
		balances: balances,
		members:  members,
		writer:   writer,
		gate:     gate,
		metrics:  metrics,
	}
}

func (s *LedgerService) requireMember(ctx context.Context, op shared.OperationContext, memberID uuid.UUID) error {
	ok, err := s.members.IsMember(ctx, op.CooperativeID, memberID)
	if err != nil {
		return fmt.Errorf("failed to check membership: %w", err)
	}
	if !ok {
		return shared.ErrNotFound.Withf("Member %s does not belong to cooperative %s", memberID, op.CooperativeID)
	}
	return nil
}

// RecordPayment books a deposit and allocates it against open invoices
func (s *LedgerService) RecordPayment(ctx context.Context, op shared.OperationContext, in PaymentInput) (result *AllocationResult, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "record_payment")
	defer span.End()
	defer func(start time.Time) { s.metrics.ObserveDuration(ctx, "record_payment", start, err) }(time.Now())
	telemetry.SetAttributes(span,
		telemetry.SpanAttrCooperativeID, op.CooperativeID.String(),
		telemetry.SpanAttrMemberID, in.MemberID.String(),
		telemetry.SpanAttrAmount, in.Amount,
	)

	if err = op.Validate(); err != nil {
		return nil, err
	}
	if err = s.requireMember(ctx, op, in.MemberID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	deposit, err := ledger.NewPosting(op, in.MemberID, ledger.PostingTypeDeposit, in.Date, in.Amount, depositDescription(in.Description), in.Reference)
	if err != nil {
		return nil, err
	}

	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var txErr error
		result, txErr = s.writer.Deposit(ctx, repos, deposit)
		return txErr
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	logger.L(ctx).Info("payment recorded",
		zap.String("member_id", in.MemberID.String()),
		zap.String("amount", in.Amount.StringFixed(2)),
		zap.Int("invoices_paid", len(result.PaidInvoices)),
		zap.String("shortfall", result.Shortfall.StringFixed(2)),
	)
	telemetry.SetOK(span)
	return result, nil
}

func depositDescription(description string) string {
	if strings.TrimSpace(description) == "" {
		return "Payment received"
	}
	return description
}

// GetBalance returns the cached balance of a member. An account without
// postings reads as zero.
func (s *LedgerService) GetBalance(ctx context.Context, op shared.OperationContext, memberID uuid.UUID) (*BalanceView, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "get_balance")
	defer span.End()

	if err := op.Validate(); err != nil {
		return nil, err
	}
	key := ledger.AccountKey{CooperativeID: op.CooperativeID, MemberID: memberID}
	balance, err := s.balances.Find(ctx, key)
	if errors.Is(err, shared.ErrNotFound) {
		if err := s.requireMember(ctx, op, memberID); err != nil {
			return nil, err
		}
		balance = ledger.NewAccountBalance(key)
	} else if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to load balance: %w", err)
	}
	return toBalanceView(balance), nil
}

// ListPostings pages through a member's postings
func (s *LedgerService) ListPostings(ctx context.Context, op shared.OperationContext, memberID uuid.UUID, filter ledger.PostingFilter) (shared.Paginated[*ledger.Posting], error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "list_postings")
	defer span.End()

	if err := op.Validate(); err != nil {
		return shared.Paginated[*ledger.Posting]{}, err
	}
	postings, total, err := s.postings.FindByMember(ctx, op.CooperativeID, memberID, filter)
	if err != nil {
		telemetry.RecordError(span, err)
		return shared.Paginated[*ledger.Posting]{}, fmt.Errorf("failed to list postings: %w", err)
	}
	return shared.NewPaginated(postings, total, filter.Filter), nil
}

// VerifyBalances recomputes every account from its postings. Diverging
// accounts are halted, never corrected, and reported as a DivergenceError.
func (s *LedgerService) VerifyBalances(ctx context.Context, op shared.OperationContext) (report *VerificationReport, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "verify_balances")
	defer span.End()
	defer func(start time.Time) { s.metrics.ObserveDuration(ctx, "verify_balances", start, err) }(time.Now())

	if err = op.Validate(); err != nil {
		return nil, err
	}
	sums, err := s.postings.SumByMember(ctx, op.CooperativeID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to sum postings: %w", err)
	}
	balances, err := s.balances.FindAll(ctx, op.CooperativeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load balances: %w", err)
	}

	report = &VerificationReport{Divergences: []ledger.Divergence{}}
	seen := make(map[uuid.UUID]bool, len(balances))
	var toHalt []ledger.AccountKey
	for _, b := range balances {
		seen[b.MemberID] = true
		report.AccountsChecked++
		sum := sums[b.MemberID]
		if !b.Diverges(sum) {
			continue
		}
		report.Divergences = append(report.Divergences, ledger.Divergence{
			MemberID: b.MemberID, CooperativeID: b.CooperativeID, Cached: b.Balance, Ledger: sum,
		})
		if !b.Halted {
			toHalt = append(toHalt, b.Key())
		}
	}
	// postings without a cache row cannot come from PostingWriter
	for memberID, sum := range sums {
		if seen[memberID] {
			continue
		}
		report.AccountsChecked++
		if sum.IsZero() {
			continue
		}
		report.Divergences = append(report.Divergences, ledger.Divergence{
			MemberID: memberID, CooperativeID: op.CooperativeID, Cached: decimal.Zero, Ledger: sum,
		})
		toHalt = append(toHalt, ledger.AccountKey{CooperativeID: op.CooperativeID, MemberID: memberID})
	}

	if len(toHalt) > 0 {
		err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			for _, key := range toHalt {
				b, err := repos.Balances().FindForUpdate(ctx, key)
				if errors.Is(err, shared.ErrNotFound) {
					b = ledger.NewAccountBalance(key)
				} else if err != nil {
					return err
				}
				b.Halt(fmt.Sprintf("balance diverges from ledger (cached %s)", b.Balance.StringFixed(2)))
				if err := repos.Balances().Save(ctx, b); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("failed to halt diverging accounts: %w", err)
		}
		report.NewlyHalted = len(toHalt)
	}

	if len(report.Divergences) == 0 {
		telemetry.SetOK(span)
		return report, nil
	}
	s.metrics.Divergences(ctx, op.CooperativeID, len(report.Divergences))
	for _, d := range report.Divergences {
		logger.L(ctx).Error("balance divergence",
			zap.String("member_id", d.MemberID.String()),
			zap.String("cached", d.Cached.StringFixed(2)),
			zap.String("ledger", d.Ledger.StringFixed(2)),
		)
	}
	err = ledger.NewDivergenceError(report.Divergences)
	telemetry.RecordError(span, err)
	return report, err
}

// ResolveDivergence resets a halted account to the sum of its postings.
// Requires a confirmed dual-control request.
func (s *LedgerService) ResolveDivergence(ctx context.Context, op shared.OperationContext, memberID uuid.UUID, approvalCode string) (view *BalanceView, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "resolve_divergence")
	defer span.End()
	defer func(start time.Time) { s.metrics.ObserveDuration(ctx, "resolve_divergence", start, err) }(time.Now())

	if err = op.Validate(); err != nil {
		return nil, err
	}

	key := ledger.AccountKey{CooperativeID: op.CooperativeID, MemberID: memberID}
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		b, err := repos.Balances().FindForUpdate(ctx, key)
		if err != nil {
			return err
		}
		if err := s.gate.Confirm(ctx, op, approvalCode, approval.ActionResolveDivergence, approval.ResolveSubject(memberID)); err != nil {
			return err
		}
		sums, err := repos.Postings().SumByMember(ctx, op.CooperativeID, nil)
		if err != nil {
			return err
		}
		before := b.Balance
		b.Resolve(sums[memberID])
		if err := repos.Balances().Save(ctx, b); err != nil {
			return err
		}
		view = toBalanceView(b)
		logger.L(ctx).Warn("balance divergence resolved",
			zap.String("member_id", memberID.String()),
			zap.String("cached_before", before.StringFixed(2)),
			zap.String("ledger", b.Balance.StringFixed(2)),
		)
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetOK(span)
	return view, nil
}

// PostCorrection appends a signed correction posting. Requires a confirmed
// dual-control request.
func (s *LedgerService) PostCorrection(ctx context.Context, op shared.OperationContext, in GatedPostingInput) (*ledger.Posting, error) {
	return s.gatedPosting(ctx, op, "post_correction", approval.ActionPostCorrection, ledger.PostingTypeCorrection, in, in.Amount)
}

// RecordWithdrawal pays credit back to a member. Amount is the positive sum
// paid out; it is posted negated. Requires a confirmed dual-control request.
func (s *LedgerService) RecordWithdrawal(ctx context.Context, op shared.OperationContext, in GatedPostingInput) (*ledger.Posting, error) {
	if !in.Amount.IsPositive() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Withdrawal amount must be positive")
	}
	return s.gatedPosting(ctx, op, "record_withdrawal", approval.ActionRecordWithdrawal, ledger.PostingTypeWithdrawal, in, in.Amount.Neg())
}

func (s *LedgerService) gatedPosting(
	ctx context.Context,
	op shared.OperationContext,
	method string,
	action approval.Action,
	typ ledger.PostingType,
	in GatedPostingInput,
	signed decimal.Decimal,
) (posting *ledger.Posting, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", method)
	defer span.End()
	defer func(start time.Time) { s.metrics.ObserveDuration(ctx, method, start, err) }(time.Now())
	telemetry.SetAttributes(span,
		telemetry.SpanAttrMemberID, in.MemberID.String(),
		telemetry.SpanAttrAmount, signed,
	)

	if err = op.Validate(); err != nil {
		return nil, err
	}
	if err = s.requireMember(ctx, op, in.MemberID); err != nil {
		return nil, err
	}
	posting, err = ledger.NewPosting(op, in.MemberID, typ, in.Date, signed, in.Description, "")
	if err != nil {
		return nil, err
	}
	subject := approval.PostingSubject(in.MemberID, in.Amount, in.Date, in.Description)

	// The approval is consumed only once the posting is known to be
	// acceptable, so a refused withdrawal leaves the code usable.
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		b, err := repos.Balances().FindForUpdate(ctx, posting.Key())
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		if b != nil && b.Halted {
			return shared.ErrAccountHalted.Withf("Account of member %s is halted: %s", in.MemberID, b.HaltedReason)
		}
		if typ == ledger.PostingTypeWithdrawal && (b == nil || b.Balance.LessThan(in.Amount)) {
			return ErrInsufficientCredit.Withf("Member %s has no credit of %s to withdraw", in.MemberID, in.Amount.StringFixed(2))
		}
		if err := s.gate.Confirm(ctx, op, in.ApprovalCode, action, subject); err != nil {
			return err
		}
		_, err = s.writer.Post(ctx, repos, posting)
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	logger.L(ctx).Info("gated posting recorded",
		zap.String("type", typ.String()),
		zap.String("member_id", in.MemberID.String()),
		zap.String("amount", signed.StringFixed(2)),
	)
	telemetry.SetOK(span)
	return posting, nil
}

// RecordOpeningBalance seeds an empty account with a year-carryover posting
func (s *LedgerService) RecordOpeningBalance(ctx context.Context, op shared.OperationContext, in OpeningBalanceInput) (posting *ledger.Posting, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "record_opening_balance")
	defer span.End()

	if err = op.Validate(); err != nil {
		return nil, err
	}
	if in.Amount.IsZero() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Opening balance cannot be zero")
	}
	if err = s.requireMember(ctx, op, in.MemberID); err != nil {
		return nil, err
	}
	posting, err = ledger.NewPosting(op, in.MemberID, ledger.PostingTypeYearCarryover, in.Date, in.Amount, "Opening balance", "")
	if err != nil {
		return nil, err
	}

	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		count, err := repos.Postings().CountByMember(ctx, op.CooperativeID, in.MemberID)
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrOpeningBalanceExists.Withf("Member %s already has %d posting(s)", in.MemberID, count)
		}
		_, err = s.writer.Post(ctx, repos, posting)
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetOK(span)
	return posting, nil
}

// CloseYear stores, for every account, the sum of postings dated on or
// before 31 December of the year as its prior-year balance
func (s *LedgerService) CloseYear(ctx context.Context, op shared.OperationContext, year int) (result *YearCloseResult, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "close_year")
	defer span.End()
	defer func(start time.Time) { s.metrics.ObserveDuration(ctx, "close_year", start, err) }(time.Now())

	if err = op.Validate(); err != nil {
		return nil, err
	}
	if year < 1900 || year > time.Now().Year() {
		return nil, shared.ErrInvalidRange.Withf("Year %d cannot be closed", year)
	}
	cutoff := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
	result = &YearCloseResult{Year: year, Cutoff: cutoff}

	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		sums, err := repos.Postings().SumByMember(ctx, op.CooperativeID, &cutoff)
		if err != nil {
			return err
		}
		balances, err := repos.Balances().FindAll(ctx, op.CooperativeID)
		if err != nil {
			return err
		}
		for _, b := range balances {
			locked, err := repos.Balances().FindForUpdate(ctx, b.Key())
			if err != nil {
				return err
			}
			locked.CloseYear(sums[b.MemberID])
			if err := repos.Balances().Save(ctx, locked); err != nil {
				return err
			}
			result.Accounts++
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	logger.L(ctx).Info("year closed", zap.Int("year", year), zap.Int("accounts", result.Accounts))
	telemetry.SetOK(span)
	return result, nil
}
