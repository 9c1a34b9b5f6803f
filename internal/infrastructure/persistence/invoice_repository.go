package persistence

import (
	"context"
	"errors"

	"github.com/coopledger/backend/internal/domain/billing"
	"github.com/coopledger/backend/internal/domain/shared"
	"github.com/coopledger/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormInvoiceRepository implements InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// Create inserts an invoice. The (cooperative, member, period) unique index
// turns a concurrent duplicate into ErrAlreadyExists.
func (r *GormInvoiceRepository) Create(ctx context.Context, invoice *billing.Invoice) error {
	err := r.db.WithContext(ctx).Create(models.InvoiceModelFromDomain(invoice)).Error
	if isUniqueViolation(err) {
		return shared.ErrAlreadyExists.Withf("Invoice for member %s and period %s already exists",
			invoice.MemberID, billing.Period{From: invoice.PeriodFrom, To: invoice.PeriodTo})
	}
	return err
}

// Update stores status changes; amounts are never rewritten
func (r *GormInvoiceRepository) Update(ctx context.Context, invoice *billing.Invoice) error {
	result := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("id = ? AND cooperative_id = ?", invoice.ID, invoice.CooperativeID).
		Updates(map[string]any{
			"status":     string(invoice.Status),
			"paid_at":    invoice.PaidAt,
			"updated_at": invoice.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds an invoice of the cooperative
func (r *GormInvoiceRepository) FindByID(ctx context.Context, cooperativeID, id uuid.UUID) (*billing.Invoice, error) {
	var model models.InvoiceModel
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

// FindByIDs finds multiple invoices by their IDs
func (r *GormInvoiceRepository) FindByIDs(ctx context.Context, cooperativeID uuid.UUID, ids []uuid.UUID) ([]*billing.Invoice, error) {
	if len(ids) == 0 {
		return []*billing.Invoice{}, nil
	}
	var rows []models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Where("cooperative_id = ? AND id IN ?", cooperativeID, ids).
		Order("period_to ASC, created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return invoicesToDomain(rows), nil
}

// ExistsForPeriod checks the (cooperative, member, period) key
func (r *GormInvoiceRepository) ExistsForPeriod(ctx context.Context, cooperativeID, memberID uuid.UUID, period billing.Period) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("cooperative_id = ? AND member_id = ? AND period_from = ? AND period_to = ?",
			cooperativeID, memberID, period.From, period.To).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindOpenByMember returns open invoices, oldest period end first
func (r *GormInvoiceRepository) FindOpenByMember(ctx context.Context, cooperativeID, memberID uuid.UUID) ([]*billing.Invoice, error) {
	var rows []models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Where("cooperative_id = ? AND member_id = ? AND status = ?", cooperativeID, memberID, string(billing.InvoiceStatusOpen)).
		Order("period_to ASC, created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return invoicesToDomain(rows), nil
}

// FindPaidByMember returns paid invoices, newest period end first
func (r *GormInvoiceRepository) FindPaidByMember(ctx context.Context, cooperativeID, memberID uuid.UUID) ([]*billing.Invoice, error) {
	var rows []models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Where("cooperative_id = ? AND member_id = ? AND status = ?", cooperativeID, memberID, string(billing.InvoiceStatusPaid)).
		Order("period_to DESC, created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return invoicesToDomain(rows), nil
}

// FindAll lists invoices with optional member and status filters
func (r *GormInvoiceRepository) FindAll(ctx context.Context, cooperativeID uuid.UUID, filter billing.InvoiceFilter) ([]*billing.Invoice, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("cooperative_id = ?", cooperativeID)
	if filter.MemberID != nil {
		query = query.Where("member_id = ?", *filter.MemberID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", string(*filter.Status))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.InvoiceModel
	if err := query.
		Order("period_to " + orderDirection(filter.OrderDir, "DESC")).
		Order("created_at ASC").
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return invoicesToDomain(rows), total, nil
}

func invoicesToDomain(rows []models.InvoiceModel) []*billing.Invoice {
	invoices := make([]*billing.Invoice, len(rows))
	for i := range rows {
		invoices[i] = rows[i].ToDomain()
	}
	return invoices
}

var _ billing.InvoiceRepository = (*GormInvoiceRepository)(nil)
