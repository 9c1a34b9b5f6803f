package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/coopledger/backend/internal/domain/ledger"
	"github.com/coopledger/backend/internal/domain/shared"
	"github.com/coopledger/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPostingRepository implements PostingRepository using GORM
type GormPostingRepository struct {
	db *gorm.DB
}

// NewGormPostingRepository creates a new GormPostingRepository
func NewGormPostingRepository(db *gorm.DB) *GormPostingRepository {
	return &GormPostingRepository{db: db}
}

// Create inserts a posting. A second invoice posting for the same invoice
// violates the partial unique index and surfaces as ErrAlreadyExists.
func (r *GormPostingRepository) Create(ctx context.Context, posting *ledger.Posting) error {
	err := r.db.WithContext(ctx).Create(models.LedgerPostingModelFromDomain(posting)).Error
	if isUniqueViolation(err) {
		return shared.ErrAlreadyExists.Withf("Invoice %s already has a posting", posting.Reference)
	}
	return err
}

// Delete removes a posting
func (r *GormPostingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.LedgerPostingModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds a posting of the cooperative
func (r *GormPostingRepository) FindByID(ctx context.Context, cooperativeID, id uuid.UUID) (*ledger.Posting, error) {
	var model models.LedgerPostingModel
	if err := r.db.WithContext(ctx).
		Where("cooperative_id = ? AND id = ?", cooperativeID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByReference finds the posting of a given type carrying the reference
func (r *GormPostingRepository) FindByReference(ctx context.Context, cooperativeID uuid.UUID, typ ledger.PostingType, reference string) (*ledger.Posting, error) {
	var model models.LedgerPostingModel
	if err := r.db.WithContext(ctx).
		Where("cooperative_id = ? AND type = ? AND reference = ?", cooperativeID, string(typ), reference).
		Order("created_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByMember lists a member's postings, oldest first by default
func (r *GormPostingRepository) FindByMember(ctx context.Context, cooperativeID, memberID uuid.UUID, filter ledger.PostingFilter) ([]*ledger.Posting, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.LedgerPostingModel{}).
		Where("cooperative_id = ? AND member_id = ?", cooperativeID, memberID)
	if filter.Type != nil {
		query = query.Where("type = ?", string(*filter.Type))
	}
	if filter.From != nil {
		query = query.Where("date >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("date <= ?", *filter.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	dir := orderDirection(filter.OrderDir, "ASC")
	var rows []models.LedgerPostingModel
	if err := query.
		Order("date " + dir).
		Order("created_at " + dir).
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	postings := make([]*ledger.Posting, len(rows))
	for i := range rows {
		postings[i] = rows[i].ToDomain()
	}
	return postings, total, nil
}

// CountByMember counts the postings of an account
func (r *GormPostingRepository) CountByMember(ctx context.Context, cooperativeID, memberID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.LedgerPostingModel{}).
		Where("cooperative_id = ? AND member_id = ?", cooperativeID, memberID).
		Count(&count).Error
	return count, err
}

// memberSum is a scan target for SumByMember
type memberSum struct {
	MemberID uuid.UUID
	Total    decimal.Decimal
}

// SumByMember returns Σ amount per member, optionally up to a date
func (r *GormPostingRepository) SumByMember(ctx context.Context, cooperativeID uuid.UUID, until *time.Time) (map[uuid.UUID]decimal.Decimal, error) {
	query := r.db.WithContext(ctx).
		Model(&models.LedgerPostingModel{}).
		Select("member_id, COALESCE(SUM(amount), 0) AS total").
		Where("cooperative_id = ?", cooperativeID)
	if until != nil {
		query = query.Where("date <= ?", *until)
	}

	var rows []memberSum
	if err := query.Group("member_id").Scan(&rows).Error; err != nil {
		return nil, err
	}
	sums := make(map[uuid.UUID]decimal.Decimal, len(rows))
	// amounts are cents; rounding absorbs float aggregation on SQLite
	for _, row := range rows {
		sums[row.MemberID] = row.Total.Round(2)
	}
	return sums, nil
}

// GormBalanceRepository implements BalanceRepository using GORM
type GormBalanceRepository struct {
	db *gorm.DB
}

// NewGormBalanceRepository creates a new GormBalanceRepository
func NewGormBalanceRepository(db *gorm.DB) *GormBalanceRepository {
	return &GormBalanceRepository{db: db}
}

// FindForUpdate loads the balance row with SELECT ... FOR UPDATE. Dialects
// without row locks (SQLite) drop the locking clause.
func (r *GormBalanceRepository) FindForUpdate(ctx context.Context, key ledger.AccountKey) (*ledger.AccountBalance, error) {
	return r.find(ctx, key, r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}))
}

// Find loads the balance row without locking
func (r *GormBalanceRepository) Find(ctx context.Context, key ledger.AccountKey) (*ledger.AccountBalance, error) {
	return r.find(ctx, key, r.db.WithContext(ctx))
}

func (r *GormBalanceRepository) find(_ context.Context, key ledger.AccountKey, db *gorm.DB) (*ledger.AccountBalance, error) {
	var model models.AccountBalanceModel
	if err := db.
		Where("cooperative_id = ? AND member_id = ?", key.CooperativeID, key.MemberID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Init inserts a zero balance row, leaving an existing row untouched
func (r *GormBalanceRepository) Init(ctx context.Context, key ledger.AccountKey) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(models.AccountBalanceModelFromDomain(ledger.NewAccountBalance(key))).Error
}

// Save upserts the balance row
func (r *GormBalanceRepository) Save(ctx context.Context, balance *ledger.AccountBalance) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "cooperative_id"}, {Name: "member_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"balance", "prior_year_balance", "last_updated", "halted", "halted_reason",
			}),
		}).
		Create(models.AccountBalanceModelFromDomain(balance)).Error
}

// FindAll returns every cached balance of the cooperative
func (r *GormBalanceRepository) FindAll(ctx context.Context, cooperativeID uuid.UUID) ([]*ledger.AccountBalance, error) {
	var rows []models.AccountBalanceModel
	if err := r.db.WithContext(ctx).
		Where("cooperative_id = ?", cooperativeID).
		Order("member_id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	balances := make([]*ledger.AccountBalance, len(rows))
	for i := range rows {
		balances[i] = rows[i].ToDomain()
	}
	return balances, nil
}

// GormAllocationRepository implements AllocationRepository using GORM
type GormAllocationRepository struct {
	db *gorm.DB
}

// NewGormAllocationRepository creates a new GormAllocationRepository
func NewGormAllocationRepository(db *gorm.DB) *GormAllocationRepository {
	return &GormAllocationRepository{db: db}
}

// Create inserts an allocation
func (r *GormAllocationRepository) Create(ctx context.Context, allocation *ledger.PaymentAllocation) error {
	return r.db.WithContext(ctx).Create(models.PaymentAllocationModelFromDomain(allocation)).Error
}

// FindByDeposit returns the allocations a deposit produced
func (r *GormAllocationRepository) FindByDeposit(ctx context.Context, depositPostingID uuid.UUID) ([]*ledger.PaymentAllocation, error) {
	var rows []models.PaymentAllocationModel
	if err := r.db.WithContext(ctx).
		Where("deposit_posting_id = ?", depositPostingID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	allocations := make([]*ledger.PaymentAllocation, len(rows))
	for i := range rows {
		allocations[i] = rows[i].ToDomain()
	}
	return allocations, nil
}

// DeleteByDeposit removes every allocation of a deposit
func (r *GormAllocationRepository) DeleteByDeposit(ctx context.Context, depositPostingID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("deposit_posting_id = ?", depositPostingID).
		Delete(&models.PaymentAllocationModel{}).Error
}

// DeleteByInvoice removes every allocation that settled an invoice
func (r *GormAllocationRepository) DeleteByInvoice(ctx context.Context, invoiceID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Delete(&models.PaymentAllocationModel{}).Error
}

// Ensure interfaces are implemented
var (
	_ ledger.PostingRepository    = (*GormPostingRepository)(nil)
	_ ledger.BalanceRepository    = (*GormBalanceRepository)(nil)
	_ ledger.AllocationRepository = (*GormAllocationRepository)(nil)
)
