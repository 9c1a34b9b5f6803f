package ledger

import (
	"time"

	"github.com/coopledger/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountBalance caches the sum of a member's postings in one cooperative
type AccountBalance struct {
	MemberID         uuid.UUID
	CooperativeID    uuid.UUID
	Balance          decimal.Decimal
	PriorYearBalance decimal.Decimal
	LastUpdated      time.Time
	Halted           bool
	HaltedReason     string
}

// NewAccountBalance creates an empty balance row for an account
func NewAccountBalance(key AccountKey) *AccountBalance {
	return &AccountBalance{
		MemberID:         key.MemberID,
		CooperativeID:    key.CooperativeID,
		Balance:          decimal.Zero,
		PriorYearBalance: decimal.Zero,
		LastUpdated:      time.Now(),
	}
}

// Key returns the account key
func (b *AccountBalance) Key() AccountKey {
	return AccountKey{CooperativeID: b.CooperativeID, MemberID: b.MemberID}
}

// Apply adds a posting's amount to the balance
func (b *AccountBalance) Apply(p *Posting) error {
	if b.Halted {
		return shared.ErrAccountHalted.Withf("Account of member %s is halted: %s", b.MemberID, b.HaltedReason)
	}
	if p.Key() != b.Key() {
		return shared.NewDomainError("ACCOUNT_MISMATCH", "Posting does not belong to this account")
	}
	b.Balance = b.Balance.Add(p.Amount)
	if p.Type == PostingTypeYearCarryover {
		b.PriorYearBalance = p.Amount
	}
	b.LastUpdated = time.Now()
	return nil
}

// Revert removes a previously applied posting's amount
func (b *AccountBalance) Revert(p *Posting) error {
	if b.Halted {
		return shared.ErrAccountHalted.Withf("Account of member %s is halted: %s", b.MemberID, b.HaltedReason)
	}
	if p.Key() != b.Key() {
		return shared.NewDomainError("ACCOUNT_MISMATCH", "Posting does not belong to this account")
	}
	b.Balance = b.Balance.Sub(p.Amount)
	b.LastUpdated = time.Now()
	return nil
}

// Diverges reports whether the cache differs from the ledger sum
func (b *AccountBalance) Diverges(ledgerSum decimal.Decimal) bool {
	return !b.Balance.Equal(ledgerSum)
}

// Halt blocks further postings until the divergence is resolved
func (b *AccountBalance) Halt(reason string) {
	b.Halted = true
	b.HaltedReason = reason
	b.LastUpdated = time.Now()
}

// Resolve resets the cache to the ledger sum and lifts the halt
func (b *AccountBalance) Resolve(ledgerSum decimal.Decimal) {
	b.Balance = ledgerSum
	b.Halted = false
	b.HaltedReason = ""
	b.LastUpdated = time.Now()
}

// CloseYear stores the balance carried into the next year
func (b *AccountBalance) CloseYear(balanceAtYearEnd decimal.Decimal) {
	b.PriorYearBalance = balanceAtYearEnd
	b.LastUpdated = time.Now()
}

// Divergence describes one account whose cache disagrees with its postings
type Divergence struct {
	MemberID      uuid.UUID       `json:"member_id"`
	CooperativeID uuid.UUID       `json:"cooperative_id"`
	Cached        decimal.Decimal `json:"cached"`
	Ledger        decimal.Decimal `json:"ledger"`
}

// DivergenceError reports every account found out of step with its postings.
// It matches shared.ErrBalanceDivergence under errors.Is.
type DivergenceError struct {
	*shared.DomainError
	Divergences []Divergence
}

// NewDivergenceError builds the error for a non-empty divergence list
func NewDivergenceError(divergences []Divergence) *DivergenceError {
	return &DivergenceError{
		DomainError: shared.ErrBalanceDivergence.Withf("%d account(s) diverge from the ledger and were halted", len(divergences)),
		Divergences: divergences,
	}
}

// Unwrap exposes the domain error to errors.As
func (e *DivergenceError) Unwrap() error {
	return e.DomainError
}
