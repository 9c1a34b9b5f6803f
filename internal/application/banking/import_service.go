// Package banking imports bank statements and attributes their lines to
// members and cooperative costs.
package banking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coopledger/backend/internal/domain/banking"
	"github.com/coopledger/backend/internal/domain/shared"
	csvimport "github.com/coopledger/backend/internal/infrastructure/import"
	"github.com/coopledger/backend/internal/infrastructure/logger"
	"github.com/coopledger/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StatementArchive keeps the raw bytes of every uploaded statement
type StatementArchive interface {
	Archive(ctx context.Context, cooperativeID uuid.UUID, at time.Time, data []byte) (string, error)
}

// ErrFileTooLarge is returned for uploads above the configured limit
var ErrFileTooLarge = shared.NewDomainError("FILE_TOO_LARGE", "Statement file exceeds the size limit")

// ImportOptions limits statement uploads
type ImportOptions struct {
	MaxFileSize  int64
	MaxRowErrors int
}

// ImportService reads bank statements into bank transactions
type ImportService struct {
	profiles     banking.ImportProfileRepository
	transactions banking.BankTransactionRepository
	archive      StatementArchive
	metrics      *telemetry.LedgerMetrics
	opts         ImportOptions
}

// NewImportService creates a new ImportService. archive may be nil.
func NewImportService(
	profiles banking.ImportProfileRepository,
	transactions banking.BankTransactionRepository,
	archive StatementArchive,
	metrics *telemetry.LedgerMetrics,
	opts ImportOptions,
) *ImportService {
	return &ImportService{
		profiles:     profiles,
		transactions: transactions,
		archive:      archive,
		metrics:      metrics,
		opts:         opts,
	}
}

// GetImportProfile returns the cooperative's profile, or the default profile
// when none was saved yet
func (s *ImportService) GetImportProfile(ctx context.Context, op shared.OperationContext) (*banking.ImportProfile, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}
	profile, err := s.profiles.FindByCooperative(ctx, op.CooperativeID)
	if errors.Is(err, shared.ErrNotFound) {
		return banking.DefaultImportProfile(op.CooperativeID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load import profile: %w", err)
	}
	return profile, nil
}

// SaveImportProfile validates and stores the cooperative's profile
func (s *ImportService) SaveImportProfile(ctx context.Context, op shared.OperationContext, profile *banking.ImportProfile) (*banking.ImportProfile, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "banking", "save_import_profile")
	defer span.End()

	if err := op.Validate(); err != nil {
		return nil, err
	}
	profile.CooperativeID = op.CooperativeID
	if profile.ID == uuid.Nil {
		profile.BaseEntity = shared.NewBaseEntity()
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	profile.Touch()
	if err := s.profiles.Save(ctx, profile); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to save import profile: %w", err)
	}
	logger.L(ctx).Info("import profile saved", zap.String("encoding", profile.Encoding), zap.String("delimiter", profile.Delimiter))
	return profile, nil
}

// Import parses data with profile, or with the cooperative's stored profile
// when profile is nil, and stores every new line. Lines already stored, or
// repeated within the file, are counted as duplicates. Unparseable lines are
// reported and skipped.
func (s *ImportService) Import(ctx context.Context, op shared.OperationContext, data []byte, profile *banking.ImportProfile) (result *ImportResult, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "banking", "import_statement")
	defer span.End()
	defer func(start time.Time) { s.metrics.ObserveDuration(ctx, "import_statement", start, err) }(time.Now())
	telemetry.SetAttributes(span, telemetry.SpanAttrCooperativeID, op.CooperativeID.String())

	if err = op.Validate(); err != nil {
		return nil, err
	}
	if s.opts.MaxFileSize > 0 && int64(len(data)) > s.opts.MaxFileSize {
		return nil, ErrFileTooLarge.Withf("Statement file has %d bytes, limit is %d", len(data), s.opts.MaxFileSize)
	}
	if profile == nil {
		if profile, err = s.GetImportProfile(ctx, op); err != nil {
			return nil, err
		}
	}

	stmt, err := csvimport.NewStatementParser(profile, s.opts.MaxRowErrors).Parse(data)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrRows, stmt.TotalRows)
	log := logger.L(ctx)

	result = &ImportResult{
		TotalRows:          stmt.TotalRows,
		RowErrors:          stmt.Errors.Errors(),
		RowErrorCount:      stmt.Errors.TotalCount(),
		RowErrorsTruncated: stmt.Errors.IsTruncated(),
	}
	for _, rowErr := range result.RowErrors {
		log.Warn("statement row skipped",
			zap.Int("row", rowErr.Row),
			zap.String("column", rowErr.Column),
			zap.String("reason", rowErr.Message),
		)
	}

	candidates := make([]*banking.BankTransaction, 0, len(stmt.Rows))
	seen := make(map[string]bool, len(stmt.Rows))
	for _, row := range stmt.Rows {
		tx := banking.NewBankTransaction(op, row.BookingDate, row.Amount, row.Purpose, row.Payee)
		tx.ValueDate = row.ValueDate
		tx.PayeeAccount = row.Account
		tx.PayeeBIC = row.BIC
		if seen[tx.ContentHash] {
			result.DuplicatesSkipped++
			continue
		}
		seen[tx.ContentHash] = true
		candidates = append(candidates, tx)
	}

	hashes := make([]string, len(candidates))
	for i, tx := range candidates {
		hashes[i] = tx.ContentHash
	}
	existing, err := s.transactions.FindExistingHashes(ctx, op.CooperativeID, hashes)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to check existing transactions: %w", err)
	}

	for _, tx := range candidates {
		if existing[tx.ContentHash] {
			result.DuplicatesSkipped++
			continue
		}
		err := s.transactions.Create(ctx, tx)
		if errors.Is(err, shared.ErrAlreadyExists) {
			result.DuplicatesSkipped++
			continue
		}
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("failed to store transaction of %s: %w", tx.BookingDate.Format(time.DateOnly), err)
		}
		result.Imported++
	}

	if s.archive != nil {
		key, err := s.archive.Archive(ctx, op.CooperativeID, time.Now(), data)
		if err != nil {
			log.Warn("statement archive failed", zap.Error(err))
		} else {
			result.ArchiveKey = key
		}
	}

	s.metrics.StatementImported(ctx, op.CooperativeID, result.Imported, result.DuplicatesSkipped, result.RowErrorCount)
	log.Info("statement imported",
		zap.Int("rows", result.TotalRows),
		zap.Int("imported", result.Imported),
		zap.Int("duplicates", result.DuplicatesSkipped),
		zap.Int("row_errors", result.RowErrorCount),
	)
	telemetry.SetOK(span)
	return result, nil
}

// ListTransactions pages through the cooperative's bank transactions
func (s *ImportService) ListTransactions(ctx context.Context, op shared.OperationContext, filter banking.BankTransactionFilter) (shared.Paginated[TransactionView], error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "banking", "list_transactions")
	defer span.End()

	if err := op.Validate(); err != nil {
		return shared.Paginated[TransactionView]{}, err
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return shared.Paginated[TransactionView]{}, shared.ErrInvalidRange
	}
	txs, total, err := s.transactions.FindAll(ctx, op.CooperativeID, filter)
	if err != nil {
		telemetry.RecordError(span, err)
		return shared.Paginated[TransactionView]{}, fmt.Errorf("failed to list transactions: %w", err)
	}
	views := make([]TransactionView, len(txs))
	for i, tx := range txs {
		views[i] = toTransactionView(tx)
	}
	return shared.NewPaginated(views, total, filter.Filter), nil
}
