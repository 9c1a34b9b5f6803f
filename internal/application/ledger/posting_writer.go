package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coopledger/backend/internal/domain/billing"
	"github.com/coopledger/backend/internal/domain/ledger"
	"github.com/coopledger/backend/internal/domain/shared"
	"github.com/coopledger/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PostingWriter is the only code path that appends or removes postings. It
// keeps every posting and its balance delta in the caller's transaction.
type PostingWriter struct {
	allocator ledger.PaymentAllocator
	metrics   *telemetry.LedgerMetrics
}

// NewPostingWriter creates a PostingWriter; metrics may be nil
func NewPostingWriter(metrics *telemetry.LedgerMetrics) *PostingWriter {
	return &PostingWriter{
		allocator: ledger.NewPaymentAllocator(),
		metrics:   metrics,
	}
}

// lockBalance loads the account row FOR UPDATE, creating it on first use
func (w *PostingWriter) lockBalance(ctx context.Context, repos TransactionalRepositories, key ledger.AccountKey) (*ledger.AccountBalance, error) {
	balance, err := repos.Balances().FindForUpdate(ctx, key)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("failed to lock balance: %w", err)
	}
	if err := repos.Balances().Init(ctx, key); err != nil {
		return nil, fmt.Errorf("failed to create balance: %w", err)
	}
	balance, err = repos.Balances().FindForUpdate(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to lock balance: %w", err)
	}
	return balance, nil
}

// Post appends the posting and applies its amount to the balance cache
func (w *PostingWriter) Post(ctx context.Context, repos TransactionalRepositories, posting *ledger.Posting) (*ledger.AccountBalance, error) {
	balance, err := w.lockBalance(ctx, repos, posting.Key())
	if err != nil {
		return nil, err
	}
	if err := balance.Apply(posting); err != nil {
		return nil, err
	}
	if err := repos.Postings().Create(ctx, posting); err != nil {
		return nil, fmt.Errorf("failed to create posting: %w", err)
	}
	if err := repos.Balances().Save(ctx, balance); err != nil {
		return nil, fmt.Errorf("failed to save balance: %w", err)
	}
	w.metrics.Posted(ctx, posting.CooperativeID, posting.Type.String())
	return balance, nil
}

// Remove deletes a posting and takes its amount back out of the balance
func (w *PostingWriter) Remove(ctx context.Context, repos TransactionalRepositories, posting *ledger.Posting) (*ledger.AccountBalance, error) {
	balance, err := w.lockBalance(ctx, repos, posting.Key())
	if err != nil {
		return nil, err
	}
	if err := balance.Revert(posting); err != nil {
		return nil, err
	}
	if err := repos.Postings().Delete(ctx, posting.ID); err != nil {
		return nil, fmt.Errorf("failed to delete posting: %w", err)
	}
	if err := repos.Balances().Save(ctx, balance); err != nil {
		return nil, fmt.Errorf("failed to save balance: %w", err)
	}
	return balance, nil
}

// Deposit posts a deposit and settles open invoices oldest first with the
// account's unallocated credit
func (w *PostingWriter) Deposit(ctx context.Context, repos TransactionalRepositories, deposit *ledger.Posting) (*AllocationResult, error) {
	if deposit.Type != ledger.PostingTypeDeposit {
		return nil, shared.NewDomainError("INVALID_POSTING_TYPE", "Only deposits can be allocated")
	}
	balance, err := w.Post(ctx, repos, deposit)
	if err != nil {
		return nil, err
	}

	open, err := repos.Invoices().FindOpenByMember(ctx, deposit.CooperativeID, deposit.MemberID)
	if err != nil {
		return nil, fmt.Errorf("failed to load open invoices: %w", err)
	}

	// Open invoices are already debited, so balance + open totals is the
	// credit not yet tied to any settled invoice.
	available := balance.Balance
	targets := make([]ledger.AllocationTarget, 0, len(open))
	byID := make(map[uuid.UUID]*billing.Invoice, len(open))
	for _, inv := range open {
		available = available.Add(inv.Total())
		byID[inv.ID] = inv
		targets = append(targets, ledger.AllocationTarget{
			InvoiceID: inv.ID,
			Total:     inv.Total(),
			PeriodTo:  inv.PeriodTo,
			CreatedAt: inv.CreatedAt,
		})
	}
	if available.IsNegative() {
		available = decimal.Zero
	}

	plan := w.allocator.Allocate(available, targets)
	paidAt := time.Now()
	result := &AllocationResult{
		PostingID:       deposit.ID,
		PaidInvoices:    make([]PaidInvoice, 0, len(plan.Paid)),
		RemainingCredit: plan.Remaining,
		Shortfall:       plan.Shortfall,
		NextOpenInvoice: plan.NextOpen,
		Balance:         balance.Balance,
	}
	for _, target := range plan.Paid {
		inv := byID[target.InvoiceID]
		if err := inv.MarkPaid(paidAt); err != nil {
			return nil, err
		}
		if err := repos.Invoices().Update(ctx, inv); err != nil {
			return nil, fmt.Errorf("failed to mark invoice %s paid: %w", inv.ID, err)
		}
		if err := repos.Allocations().Create(ctx, ledger.NewPaymentAllocation(deposit.ID, inv.ID, target.Total)); err != nil {
			return nil, fmt.Errorf("failed to record allocation: %w", err)
		}
		result.PaidInvoices = append(result.PaidInvoices, PaidInvoice{InvoiceID: inv.ID, Amount: target.Total})
	}
	w.metrics.InvoicesSettled(ctx, deposit.CooperativeID, len(plan.Paid))
	return result, nil
}

// RollbackDeposit undoes Deposit: it reopens the invoices the deposit
// settled, drops their allocation rows and removes the posting. Later
// deposits may have settled invoices with credit left over from this one;
// those are reopened too, newest first, until the remaining credit covers
// every invoice still marked paid.
func (w *PostingWriter) RollbackDeposit(ctx context.Context, repos TransactionalRepositories, deposit *ledger.Posting) (*ledger.AccountBalance, error) {
	allocations, err := repos.Allocations().FindByDeposit(ctx, deposit.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load allocations: %w", err)
	}
	for _, a := range allocations {
		inv, err := repos.Invoices().FindByID(ctx, deposit.CooperativeID, a.InvoiceID)
		if err != nil {
			return nil, fmt.Errorf("failed to load invoice %s: %w", a.InvoiceID, err)
		}
		if err := inv.Reopen(); err != nil {
			return nil, err
		}
		if err := repos.Invoices().Update(ctx, inv); err != nil {
			return nil, fmt.Errorf("failed to reopen invoice %s: %w", inv.ID, err)
		}
	}
	if err := repos.Allocations().DeleteByDeposit(ctx, deposit.ID); err != nil {
		return nil, fmt.Errorf("failed to delete allocations: %w", err)
	}
	balance, err := w.Remove(ctx, repos, deposit)
	if err != nil {
		return nil, err
	}
	if err := w.releaseUncovered(ctx, repos, balance); err != nil {
		return nil, err
	}
	return balance, nil
}

// releaseUncovered reopens paid invoices, newest period end first, while the
// account's unallocated credit is negative
func (w *PostingWriter) releaseUncovered(ctx context.Context, repos TransactionalRepositories, balance *ledger.AccountBalance) error {
	open, err := repos.Invoices().FindOpenByMember(ctx, balance.CooperativeID, balance.MemberID)
	if err != nil {
		return fmt.Errorf("failed to load open invoices: %w", err)
	}
	available := balance.Balance
	for _, inv := range open {
		available = available.Add(inv.Total())
	}
	if !available.IsNegative() {
		return nil
	}

	paid, err := repos.Invoices().FindPaidByMember(ctx, balance.CooperativeID, balance.MemberID)
	if err != nil {
		return fmt.Errorf("failed to load paid invoices: %w", err)
	}
	for _, inv := range paid {
		if !available.IsNegative() {
			break
		}
		if err := inv.Reopen(); err != nil {
			return err
		}
		if err := repos.Invoices().Update(ctx, inv); err != nil {
			return fmt.Errorf("failed to reopen invoice %s: %w", inv.ID, err)
		}
		if err := repos.Allocations().DeleteByInvoice(ctx, inv.ID); err != nil {
			return fmt.Errorf("failed to delete allocations of invoice %s: %w", inv.ID, err)
		}
		available = available.Add(inv.Total())
	}
	return nil
}
