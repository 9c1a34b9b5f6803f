package ledger

import (
	"context"
	"time"

	"github.com/coopledger/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PostingFilter narrows posting listings
type PostingFilter struct {
	shared.Filter
	Type *PostingType
	From *time.Time
	To   *time.Time
}

// PostingRepository persists ledger postings. There is no Update: postings
// are immutable once written.
type PostingRepository interface {
	Create(ctx context.Context, posting *Posting) error
	// Delete is used only by the unclassify rollback of a deposit
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, cooperativeID, id uuid.UUID) (*Posting, error)
	FindByReference(ctx context.Context, cooperativeID uuid.UUID, typ PostingType, reference string) (*Posting, error)
	FindByMember(ctx context.Context, cooperativeID, memberID uuid.UUID, filter PostingFilter) ([]*Posting, int64, error)
	CountByMember(ctx context.Context, cooperativeID, memberID uuid.UUID) (int64, error)
	// SumByMember returns Σ amount per member, restricted to postings dated
	// on or before until when it is set
	SumByMember(ctx context.Context, cooperativeID uuid.UUID, until *time.Time) (map[uuid.UUID]decimal.Decimal, error)
}

// BalanceRepository persists the account balance cache
type BalanceRepository interface {
	// FindForUpdate loads and locks the balance row of an account.
	// Returns shared.ErrNotFound when the account has no row yet.
	FindForUpdate(ctx context.Context, key AccountKey) (*AccountBalance, error)
	// Init creates an empty balance row unless one exists
	Init(ctx context.Context, key AccountKey) error
	Find(ctx context.Context, key AccountKey) (*AccountBalance, error)
	Save(ctx context.Context, balance *AccountBalance) error
	FindAll(ctx context.Context, cooperativeID uuid.UUID) ([]*AccountBalance, error)
}

// AllocationRepository persists payment allocations
type AllocationRepository interface {
	Create(ctx context.Context, allocation *PaymentAllocation) error
	FindByDeposit(ctx context.Context, depositPostingID uuid.UUID) ([]*PaymentAllocation, error)
	DeleteByDeposit(ctx context.Context, depositPostingID uuid.UUID) error
	DeleteByInvoice(ctx context.Context, invoiceID uuid.UUID) error
}
