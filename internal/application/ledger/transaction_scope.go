package ledger

import (
	"context"

	"github.com/coopledger/backend/internal/domain/banking"
	"github.com/coopledger/backend/internal/domain/billing"
	"github.com/coopledger/backend/internal/domain/ledger"
)

// TransactionScope runs a unit of work in one database transaction.
// If fn returns an error, everything it wrote is rolled back.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories gives access to the repositories that take part
// in money-moving writes. All of them share the enclosing transaction.
//
//   - Postings and Balances always change together through PostingWriter.
//   - Invoices and Allocations change when a deposit settles or a rollback
//     reopens invoices.
//   - BankTransactions and Costs change when a statement line is classified.
type TransactionalRepositories interface {
	Postings() ledger.PostingRepository
	Balances() ledger.BalanceRepository
	Allocations() ledger.AllocationRepository
	Invoices() billing.InvoiceRepository
	BankTransactions() banking.BankTransactionRepository
	Costs() banking.CooperativeCostRepository
}
