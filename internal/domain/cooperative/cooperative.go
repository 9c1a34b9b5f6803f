// Package cooperative holds the organizational side of the ledger: the
// cooperatives that own machines and the members that use them.
package cooperative

import (
	"context"
	"strings"
	"time"

	"github.com/coopledger/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BankDetails is the cooperative's own bank account metadata
type BankDetails struct {
	BankName string
	IBAN     string
	BIC      string
}

// Cooperative is an organizational unit owning shared machines and member accounts
type Cooperative struct {
	shared.BaseEntity
	Name               string
	Bank               BankDetails
	OpeningBalance     decimal.Decimal
	OpeningBalanceDate *time.Time
}

// NewCooperative creates a cooperative with a validated name
func NewCooperative(name string, bank BankDetails) (*Cooperative, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Cooperative name cannot be empty")
	}
	return &Cooperative{
		BaseEntity:     shared.NewBaseEntity(),
		Name:           name,
		Bank:           bank,
		OpeningBalance: decimal.Zero,
	}, nil
}

// SetOpeningBalance records the bank account balance the books start from
func (c *Cooperative) SetOpeningBalance(amount decimal.Decimal, date time.Time) {
	c.OpeningBalance = amount
	c.OpeningBalanceDate = &date
	c.Touch()
}

// Member is a participant who uses machines and owes or holds credit
type Member struct {
	shared.BaseEntity
	FirstName string
	LastName  string
	Active    bool
}

// DisplayName returns "Last, First" or whichever part is present
func (m *Member) DisplayName() string {
	switch {
	case m.LastName != "" && m.FirstName != "":
		return m.LastName + ", " + m.FirstName
	case m.LastName != "":
		return m.LastName
	default:
		return m.FirstName
	}
}

// CooperativeRepository reads cooperatives
type CooperativeRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Cooperative, error)
}

// MemberDirectory is the read-only membership view the ledger consumes.
// Membership itself is maintained outside this service.
type MemberDirectory interface {
	// ListActiveMemberIDs returns ids of active members of the cooperative, ordered by name
	ListActiveMemberIDs(ctx context.Context, cooperativeID uuid.UUID) ([]uuid.UUID, error)
	// FindMember returns a member by id
	FindMember(ctx context.Context, id uuid.UUID) (*Member, error)
	// IsMember reports whether the member belongs to the cooperative
	IsMember(ctx context.Context, cooperativeID, memberID uuid.UUID) (bool, error)
}
