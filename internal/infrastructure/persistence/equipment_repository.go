package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/coopledger/backend/internal/domain/equipment"
	"github.com/coopledger/backend/internal/domain/shared"
	"github.com/coopledger/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormMachineRegistry implements MachineRegistry using GORM
type GormMachineRegistry struct {
	db *gorm.DB
}

// NewGormMachineRegistry creates a new GormMachineRegistry
func NewGormMachineRegistry(db *gorm.DB) *GormMachineRegistry {
	return &GormMachineRegistry{db: db}
}

// FindMachine finds a machine by its ID
func (r *GormMachineRegistry) FindMachine(ctx context.Context, id uuid.UUID) (*equipment.Machine, error) {
	var model models.MachineModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListByCooperative returns every machine owned by the cooperative
func (r *GormMachineRegistry) ListByCooperative(ctx context.Context, cooperativeID uuid.UUID) ([]*equipment.Machine, error) {
	var rows []models.MachineModel
	if err := r.db.WithContext(ctx).
		Where("cooperative_id = ?", cooperativeID).
		Order("name ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	machines := make([]*equipment.Machine, len(rows))
	for i := range rows {
		machines[i] = rows[i].ToDomain()
	}
	return machines, nil
}

// Save creates or updates a machine
func (r *GormMachineRegistry) Save(ctx context.Context, machine *equipment.Machine) error {
	return r.db.WithContext(ctx).Save(models.MachineModelFromDomain(machine)).Error
}

// GormUsageEventRepository implements UsageEventRepository using GORM
type GormUsageEventRepository struct {
	db *gorm.DB
}

// NewGormUsageEventRepository creates a new GormUsageEventRepository
func NewGormUsageEventRepository(db *gorm.DB) *GormUsageEventRepository {
	return &GormUsageEventRepository{db: db}
}

// Save creates or updates a usage event
func (r *GormUsageEventRepository) Save(ctx context.Context, event *equipment.UsageEvent) error {
	return r.db.WithContext(ctx).Save(models.UsageEventModelFromDomain(event)).Error
}

// FindForMemberInRange returns a member's events on the cooperative's
// machines with from <= date <= to, oldest first
func (r *GormUsageEventRepository) FindForMemberInRange(ctx context.Context, cooperativeID, memberID uuid.UUID, from, to time.Time) ([]*equipment.UsageEvent, error) {
	var rows []models.UsageEventModel
	err := r.db.WithContext(ctx).
		Joins("JOIN machines ON machines.id = usage_events.machine_id").
		Where("machines.cooperative_id = ? AND usage_events.member_id = ?", cooperativeID, memberID).
		Where("usage_events.date >= ? AND usage_events.date <= ?", from, to).
		Order("usage_events.date ASC, usage_events.created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	events := make([]*equipment.UsageEvent, len(rows))
	for i := range rows {
		events[i] = rows[i].ToDomain()
	}
	return events, nil
}

// Ensure interfaces are implemented
var (
	_ equipment.MachineRegistry      = (*GormMachineRegistry)(nil)
	_ equipment.UsageEventRepository = (*GormUsageEventRepository)(nil)
)
