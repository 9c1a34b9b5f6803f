package persistence

import (
	"context"
	"errors"

	"github.com/coopledger/backend/internal/domain/cooperative"
	"github.com/coopledger/backend/internal/domain/shared"
	"github.com/coopledger/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormCooperativeRepository implements CooperativeRepository using GORM
type GormCooperativeRepository struct {
	db *gorm.DB
}

// NewGormCooperativeRepository creates a new GormCooperativeRepository
func NewGormCooperativeRepository(db *gorm.DB) *GormCooperativeRepository {
	return &GormCooperativeRepository{db: db}
}

// FindByID finds a cooperative by its ID
func (r *GormCooperativeRepository) FindByID(ctx context.Context, id uuid.UUID) (*cooperative.Cooperative, error) {
	var model models.CooperativeRecord
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save creates or updates a cooperative
func (r *GormCooperativeRepository) Save(ctx context.Context, coop *cooperative.Cooperative) error {
	return r.db.WithContext(ctx).Save(models.CooperativeRecordFromDomain(coop)).Error
}

// GormMemberDirectory implements MemberDirectory over the members and
// cooperative_members tables
type GormMemberDirectory struct {
	db *gorm.DB
}

// NewGormMemberDirectory creates a new GormMemberDirectory
func NewGormMemberDirectory(db *gorm.DB) *GormMemberDirectory {
	return &GormMemberDirectory{db: db}
}

// ListActiveMemberIDs returns ids of active members, ordered by last and first name
func (d *GormMemberDirectory) ListActiveMemberIDs(ctx context.Context, cooperativeID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := d.db.WithContext(ctx).
		Table("members").
		Joins("JOIN cooperative_members cm ON cm.member_id = members.id").
		Where("cm.cooperative_id = ? AND members.active = ?", cooperativeID, true).
		Order("members.last_name ASC, members.first_name ASC, members.id ASC").
		Pluck("members.id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// FindMember returns a member by id
func (d *GormMemberDirectory) FindMember(ctx context.Context, id uuid.UUID) (*cooperative.Member, error) {
	var model models.MemberModel
	if err := d.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// IsMember reports whether the member belongs to the cooperative
func (d *GormMemberDirectory) IsMember(ctx context.Context, cooperativeID, memberID uuid.UUID) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).
		Model(&models.CooperativeMemberModel{}).
		Where("cooperative_id = ? AND member_id = ?", cooperativeID, memberID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SaveMember stores a member and links it to the cooperative. Used by seeding
// and tests; membership administration happens outside this service.
func (d *GormMemberDirectory) SaveMember(ctx context.Context, cooperativeID uuid.UUID, member *cooperative.Member) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(models.MemberModelFromDomain(member)).Error; err != nil {
			return err
		}
		link := &models.CooperativeMemberModel{
			CooperativeID: cooperativeID,
			MemberID:      member.ID,
			JoinedAt:      member.CreatedAt,
		}
		return tx.FirstOrCreate(link, models.CooperativeMemberModel{CooperativeID: cooperativeID, MemberID: member.ID}).Error
	})
}

// Ensure interfaces are implemented
var (
	_ cooperative.CooperativeRepository = (*GormCooperativeRepository)(nil)
	_ cooperative.MemberDirectory       = (*GormMemberDirectory)(nil)
)
