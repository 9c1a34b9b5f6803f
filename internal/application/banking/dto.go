package banking

import (
	"time"

	appledger "github.com/coopledger/backend/internal/application/ledger"
	"github.com/coopledger/backend/internal/domain/banking"
	csvimport "github.com/coopledger/backend/internal/infrastructure/import"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ImportResult summarizes one statement upload
type ImportResult struct {
	TotalRows          int                  `json:"total_rows"`
	Imported           int                  `json:"imported"`
	DuplicatesSkipped  int                  `json:"duplicates_skipped"`
	RowErrors          []csvimport.RowError `json:"row_errors"`
	RowErrorCount      int                  `json:"row_error_count"`
	RowErrorsTruncated bool                 `json:"row_errors_truncated"`
	ArchiveKey         string               `json:"archive_key,omitempty"`
}

// TransactionView is the read model of a bank transaction
type TransactionView struct {
	ID           uuid.UUID       `json:"id"`
	BookingDate  time.Time       `json:"booking_date"`
	ValueDate    *time.Time      `json:"value_date,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Purpose      string          `json:"purpose"`
	Payee        string          `json:"payee"`
	PayeeAccount string          `json:"payee_account,omitempty"`
	PayeeBIC     string          `json:"payee_bic,omitempty"`
	MatchTarget  string          `json:"match_target"`
	MatchedID    *uuid.UUID      `json:"matched_id,omitempty"`
	Matched      bool            `json:"matched"`
	ImportedAt   time.Time       `json:"imported_at"`
}

func toTransactionView(tx *banking.BankTransaction) TransactionView {
	return TransactionView{
		ID:           tx.ID,
		BookingDate:  tx.BookingDate,
		ValueDate:    tx.ValueDate,
		Amount:       tx.Amount,
		Purpose:      tx.Purpose,
		Payee:        tx.Payee,
		PayeeAccount: tx.PayeeAccount,
		PayeeBIC:     tx.PayeeBIC,
		MatchTarget:  string(tx.MatchTarget),
		MatchedID:    tx.MatchedID,
		Matched:      tx.Matched,
		ImportedAt:   tx.ImportedAt,
	}
}

// ClassifyInput attributes a transaction to a member, a machine or a
// general cooperative cost
type ClassifyInput struct {
	TransactionID uuid.UUID
	Target        banking.MatchTarget
	// TargetID is the member or machine; unused for cooperative costs
	TargetID uuid.UUID
	// Category applies to cooperative costs only
	Category string
}

// ClassificationResult is the outcome of a classify call
type ClassificationResult struct {
	Transaction TransactionView             `json:"transaction"`
	Allocation  *appledger.AllocationResult `json:"allocation,omitempty"`
	CostID      *uuid.UUID                  `json:"cost_id,omitempty"`
}
