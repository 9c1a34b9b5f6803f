package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/coopledger/backend/internal/domain/banking"
	"github.com/coopledger/backend/internal/domain/shared"
	"github.com/coopledger/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// hashBatchSize bounds the IN list of FindExistingHashes
const hashBatchSize = 500

// GormImportProfileRepository implements ImportProfileRepository using GORM
type GormImportProfileRepository struct {
	db *gorm.DB
}

// NewGormImportProfileRepository creates a new GormImportProfileRepository
func NewGormImportProfileRepository(db *gorm.DB) *GormImportProfileRepository {
	return &GormImportProfileRepository{db: db}
}

// FindByCooperative returns the cooperative's profile
func (r *GormImportProfileRepository) FindByCooperative(ctx context.Context, cooperativeID uuid.UUID) (*banking.ImportProfile, error) {
	var model models.ImportProfileModel
	if err := r.db.WithContext(ctx).First(&model, "cooperative_id = ?", cooperativeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// Save upserts the profile; there is at most one per cooperative
func (r *GormImportProfileRepository) Save(ctx context.Context, profile *banking.ImportProfile) error {
	model, err := models.ImportProfileModelFromDomain(profile)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "cooperative_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"delimiter", "encoding", "columns", "decimal_separator", "thousands_separator",
				"date_format", "header_present", "lines_to_skip", "updated_at",
			}),
		}).
		Create(model).Error
}

// GormBankTransactionRepository implements BankTransactionRepository using GORM
type GormBankTransactionRepository struct {
	db *gorm.DB
}

// NewGormBankTransactionRepository creates a new GormBankTransactionRepository
func NewGormBankTransactionRepository(db *gorm.DB) *GormBankTransactionRepository {
	return &GormBankTransactionRepository{db: db}
}

// Create inserts a transaction. A repeated content hash surfaces as
// ErrAlreadyExists.
func (r *GormBankTransactionRepository) Create(ctx context.Context, tx *banking.BankTransaction) error {
	err := r.db.WithContext(ctx).Create(models.BankTransactionModelFromDomain(tx)).Error
	if isUniqueViolation(err) {
		return shared.ErrAlreadyExists.Withf("Bank transaction with hash %s already imported", tx.ContentHash)
	}
	return err
}

// Update stores the classification state of a transaction
func (r *GormBankTransactionRepository) Update(ctx context.Context, tx *banking.BankTransaction) error {
	result := r.db.WithContext(ctx).
		Model(&models.BankTransactionModel{}).
		Where("id = ? AND cooperative_id = ?", tx.ID, tx.CooperativeID).
		Updates(map[string]any{
			"match_target": string(tx.MatchTarget),
			"matched_id":   tx.MatchedID,
			"matched":      tx.Matched,
			"updated_at":   tx.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds a transaction of the cooperative
func (r *GormBankTransactionRepository) FindByID(ctx context.Context, cooperativeID, id uuid.UUID) (*banking.BankTransaction, error) {
	return r.find(r.db.WithContext(ctx), cooperativeID, id)
}

// FindForUpdate finds a transaction and locks its row until the surrounding
// transaction ends
func (r *GormBankTransactionRepository) FindForUpdate(ctx context.Context, cooperativeID, id uuid.UUID) (*banking.BankTransaction, error) {
	return r.find(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), cooperativeID, id)
}

func (r *GormBankTransactionRepository) find(db *gorm.DB, cooperativeID, id uuid.UUID) (*banking.BankTransaction, error) {
	var model models.BankTransactionModel
	if err := db.
		Where("cooperative_id = ? AND id = ?", cooperativeID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindExistingHashes returns which of the hashes are already stored
func (r *GormBankTransactionRepository) FindExistingHashes(ctx context.Context, cooperativeID uuid.UUID, hashes []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	for start := 0; start < len(hashes); start += hashBatchSize {
		end := min(start+hashBatchSize, len(hashes))
		var found []string
		if err := r.db.WithContext(ctx).
			Model(&models.BankTransactionModel{}).
			Where("cooperative_id = ? AND content_hash IN ?", cooperativeID, hashes[start:end]).
			Pluck("content_hash", &found).Error; err != nil {
			return nil, err
		}
		for _, h := range found {
			existing[h] = true
		}
	}
	return existing, nil
}

// FindAll lists transactions newest first
func (r *GormBankTransactionRepository) FindAll(ctx context.Context, cooperativeID uuid.UUID, filter banking.BankTransactionFilter) ([]*banking.BankTransaction, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.BankTransactionModel{}).
		Where("cooperative_id = ?", cooperativeID)
	if filter.UnmatchedOnly {
		query = query.Where("matched = ?", false)
	}
	if filter.From != nil {
		query = query.Where("booking_date >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("booking_date <= ?", *filter.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.BankTransactionModel
	if err := query.
		Order("booking_date " + orderDirection(filter.OrderDir, "DESC")).
		Order("imported_at ASC").
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	txs := make([]*banking.BankTransaction, len(rows))
	for i := range rows {
		txs[i] = rows[i].ToDomain()
	}
	return txs, total, nil
}

// GormCooperativeCostRepository implements CooperativeCostRepository using GORM
type GormCooperativeCostRepository struct {
	db *gorm.DB
}

// NewGormCooperativeCostRepository creates a new GormCooperativeCostRepository
func NewGormCooperativeCostRepository(db *gorm.DB) *GormCooperativeCostRepository {
	return &GormCooperativeCostRepository{db: db}
}

// Create inserts a cost
func (r *GormCooperativeCostRepository) Create(ctx context.Context, cost *banking.CooperativeCost) error {
	return r.db.WithContext(ctx).Create(models.CooperativeCostModelFromDomain(cost)).Error
}

// FindByBankTransaction returns the costs booked from a transaction
func (r *GormCooperativeCostRepository) FindByBankTransaction(ctx context.Context, cooperativeID, transactionID uuid.UUID) ([]*banking.CooperativeCost, error) {
	var rows []models.CooperativeCostModel
	if err := r.db.WithContext(ctx).
		Where("cooperative_id = ? AND bank_transaction_id = ?", cooperativeID, transactionID).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	costs := make([]*banking.CooperativeCost, len(rows))
	for i := range rows {
		costs[i] = rows[i].ToDomain()
	}
	return costs, nil
}

// Delete removes a cost
func (r *GormCooperativeCostRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.CooperativeCostModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// isUniqueViolation recognizes unique-constraint failures across drivers
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLSTATE 23505") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// Ensure interfaces are implemented
var (
	_ banking.ImportProfileRepository   = (*GormImportProfileRepository)(nil)
	_ banking.BankTransactionRepository = (*GormBankTransactionRepository)(nil)
	_ banking.CooperativeCostRepository = (*GormCooperativeCostRepository)(nil)
)
