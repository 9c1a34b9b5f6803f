// Package ledger models the per-member account of a cooperative: an
// append-only list of postings and a cached balance derived from it.
package ledger

import (
	"strings"
	"time"

	"github.com/coopledger/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PostingType classifies a ledger posting
type PostingType string

const (
	PostingTypeInvoice       PostingType = "invoice"
	PostingTypeDeposit       PostingType = "deposit"
	PostingTypeWithdrawal    PostingType = "withdrawal"
	PostingTypeCorrection    PostingType = "correction"
	PostingTypeYearCarryover PostingType = "year-carryover"
)

// IsValid checks if the type is a known posting type
func (t PostingType) IsValid() bool {
	switch t {
	case PostingTypeInvoice, PostingTypeDeposit, PostingTypeWithdrawal,
		PostingTypeCorrection, PostingTypeYearCarryover:
		return true
	}
	return false
}

// String returns the string representation of PostingType
func (t PostingType) String() string {
	return string(t)
}

// checkSign enforces the sign each posting type carries
func (t PostingType) checkSign(amount decimal.Decimal) error {
	switch t {
	case PostingTypeInvoice, PostingTypeWithdrawal:
		if !amount.IsNegative() {
			return shared.NewDomainError("INVALID_AMOUNT", "Posting of type "+t.String()+" must be negative")
		}
	case PostingTypeDeposit:
		if !amount.IsPositive() {
			return shared.NewDomainError("INVALID_AMOUNT", "Deposit postings must be positive")
		}
	case PostingTypeCorrection:
		if amount.IsZero() {
			return shared.NewDomainError("INVALID_AMOUNT", "Correction amount cannot be zero")
		}
	}
	return nil
}

// Posting is one immutable entry on a member's account. Postings are never
// edited; mistakes are fixed with a correction posting.
type Posting struct {
	shared.CooperativeEntity
	MemberID    uuid.UUID
	Date        time.Time
	Amount      decimal.Decimal
	Type        PostingType
	Description string
	// Reference is the invoice id for invoice postings and the bank
	// transaction id for deposits
	Reference string
}

// NewPosting validates and creates a posting
func NewPosting(op shared.OperationContext, memberID uuid.UUID, typ PostingType, date time.Time, amount decimal.Decimal, description, reference string) (*Posting, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}
	if memberID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_MEMBER", "Member ID cannot be empty")
	}
	if !typ.IsValid() {
		return nil, shared.NewDomainError("INVALID_POSTING_TYPE", "Unknown posting type "+typ.String())
	}
	if date.IsZero() {
		return nil, shared.NewDomainError("INVALID_DATE", "Posting date is required")
	}
	if err := typ.checkSign(amount); err != nil {
		return nil, err
	}
	if typ == PostingTypeInvoice && strings.TrimSpace(reference) == "" {
		return nil, shared.NewDomainError("INVALID_REFERENCE", "Invoice postings must reference their invoice")
	}

	return &Posting{
		CooperativeEntity: shared.NewCooperativeEntity(op),
		MemberID:          memberID,
		Date:              date,
		Amount:            amount.Round(2),
		Type:              typ,
		Description:       strings.TrimSpace(description),
		Reference:         strings.TrimSpace(reference),
	}, nil
}

// AccountKey identifies one member account within a cooperative
type AccountKey struct {
	CooperativeID uuid.UUID
	MemberID      uuid.UUID
}

// Key returns the account the posting belongs to
func (p *Posting) Key() AccountKey {
	return AccountKey{CooperativeID: p.CooperativeID, MemberID: p.MemberID}
}
