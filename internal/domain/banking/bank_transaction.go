package banking

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/coopledger/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MatchTarget is what a bank transaction has been attributed to
type MatchTarget string

const (
	MatchTargetNone            MatchTarget = "none"
	MatchTargetMember          MatchTarget = "member"
	MatchTargetMachine         MatchTarget = "machine"
	MatchTargetCooperativeCost MatchTarget = "cooperative_cost"
)

// IsValid checks if the target is a known classification target
func (t MatchTarget) IsValid() bool {
	switch t {
	case MatchTargetMember, MatchTargetMachine, MatchTargetCooperativeCost:
		return true
	}
	return false
}

// IsCost reports whether the target books the transaction as a cooperative cost
func (t MatchTarget) IsCost() bool {
	return t == MatchTargetMachine || t == MatchTargetCooperativeCost
}

var (
	ErrAlreadyClassified = shared.NewDomainError("ALREADY_CLASSIFIED", "Transaction is already classified")
	ErrNotClassified     = shared.NewDomainError("NOT_CLASSIFIED", "Transaction is not classified")
	ErrInvalidTarget     = shared.NewDomainError("INVALID_TARGET", "Unknown classification target")
)

// BankTransaction is one imported line of the cooperative's bank statement
type BankTransaction struct {
	shared.BaseEntity
	CooperativeID uuid.UUID
	BookingDate   time.Time
	ValueDate     *time.Time
	Amount        decimal.Decimal
	Purpose       string
	Payee         string
	PayeeAccount  string
	PayeeBIC      string
	ContentHash   string
	MatchTarget   MatchTarget
	MatchedID     *uuid.UUID
	Matched       bool
	ImportedAt    time.Time
	ImportedBy    uuid.UUID
}

// NewBankTransaction creates an unmatched transaction and derives its content hash
func NewBankTransaction(op shared.OperationContext, bookingDate time.Time, amount decimal.Decimal, purpose, payee string) *BankTransaction {
	purpose = strings.TrimSpace(purpose)
	payee = strings.TrimSpace(payee)
	return &BankTransaction{
		BaseEntity:    shared.NewBaseEntity(),
		CooperativeID: op.CooperativeID,
		BookingDate:   bookingDate,
		Amount:        amount,
		Purpose:       purpose,
		Payee:         payee,
		ContentHash:   ContentHash(bookingDate, amount, purpose, payee),
		MatchTarget:   MatchTargetNone,
		ImportedAt:    time.Now(),
		ImportedBy:    op.AdminID,
	}
}

// ContentHash is the deduplication key of a statement line: SHA-256 over the
// booking date, the amount with two decimals, the purpose and the payee, with
// whitespace runs collapsed. Two lines agreeing on all four are treated as
// the same transaction.
func ContentHash(date time.Time, amount decimal.Decimal, purpose, payee string) string {
	parts := []string{
		date.Format("2006-01-02"),
		amount.StringFixed(2),
		normalizeText(purpose),
		normalizeText(payee),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// IsInflow reports whether money came into the cooperative's account
func (t *BankTransaction) IsInflow() bool {
	return t.Amount.IsPositive()
}

// IsOutflow reports whether money left the cooperative's account
func (t *BankTransaction) IsOutflow() bool {
	return t.Amount.IsNegative()
}

// CheckDirection verifies the target fits the sign of the amount: members
// receive inflows, machines and cooperative costs absorb outflows.
func (t *BankTransaction) CheckDirection(target MatchTarget) error {
	if !target.IsValid() {
		return ErrInvalidTarget
	}
	switch {
	case target == MatchTargetMember && !t.IsInflow():
		return shared.ErrInvalidDirection.Withf("Only incoming amounts can be assigned to a member, got %s", t.Amount.StringFixed(2))
	case target.IsCost() && !t.IsOutflow():
		return shared.ErrInvalidDirection.Withf("Only outgoing amounts can be booked as %s, got %s", target, t.Amount.StringFixed(2))
	}
	return nil
}

// Classify attributes the transaction to a target
func (t *BankTransaction) Classify(target MatchTarget, matchedID uuid.UUID) error {
	if t.Matched {
		return ErrAlreadyClassified
	}
	if err := t.CheckDirection(target); err != nil {
		return err
	}
	t.MatchTarget = target
	t.MatchedID = &matchedID
	t.Matched = true
	t.Touch()
	return nil
}

// Unclassify resets the transaction to unmatched
func (t *BankTransaction) Unclassify() error {
	if !t.Matched {
		return ErrNotClassified
	}
	t.MatchTarget = MatchTargetNone
	t.MatchedID = nil
	t.Matched = false
	t.Touch()
	return nil
}

// AbsAmount returns the magnitude of the amount
func (t *BankTransaction) AbsAmount() decimal.Decimal {
	return t.Amount.Abs()
}

// BankTransactionFilter narrows transaction listings
type BankTransactionFilter struct {
	shared.Filter
	UnmatchedOnly bool
	From          *time.Time
	To            *time.Time
}

// BankTransactionRepository persists bank transactions
type BankTransactionRepository interface {
	Create(ctx context.Context, tx *BankTransaction) error
	Update(ctx context.Context, tx *BankTransaction) error
	FindByID(ctx context.Context, cooperativeID, id uuid.UUID) (*BankTransaction, error)
	// FindForUpdate is FindByID plus a row lock held until commit
	FindForUpdate(ctx context.Context, cooperativeID, id uuid.UUID) (*BankTransaction, error)
	// FindExistingHashes returns the subset of hashes already stored for the cooperative
	FindExistingHashes(ctx context.Context, cooperativeID uuid.UUID, hashes []string) (map[string]bool, error)
	FindAll(ctx context.Context, cooperativeID uuid.UUID, filter BankTransactionFilter) ([]*BankTransaction, int64, error)
}
