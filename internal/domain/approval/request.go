// Package approval implements dual control: sensitive ledger actions need a
// request by one administrator and a confirmation by a different one.
package approval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/coopledger/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Action names an operation gated by dual control
type Action string

const (
	ActionPostCorrection    Action = "post_correction"
	ActionResolveDivergence Action = "resolve_divergence"
	ActionRecordWithdrawal  Action = "record_withdrawal"
)

// IsValid checks if the action is a gated operation
func (a Action) IsValid() bool {
	switch a {
	case ActionPostCorrection, ActionResolveDivergence, ActionRecordWithdrawal:
		return true
	}
	return false
}

// DefaultTTL is how long a request stays confirmable unless configured otherwise
const DefaultTTL = 24 * time.Hour

var (
	ErrSameIdentity  = shared.NewDomainError("APPROVAL_SAME_IDENTITY", "Request must be confirmed by a different administrator")
	ErrExpired       = shared.NewDomainError("APPROVAL_EXPIRED", "Approval request has expired")
	ErrNotFound      = shared.NewDomainError("APPROVAL_NOT_FOUND", "Approval request not found")
	ErrMismatch      = shared.NewDomainError("APPROVAL_MISMATCH", "Approval request was issued for a different action")
	ErrInvalidAction = shared.NewDomainError("APPROVAL_INVALID_ACTION", "Action is not subject to approval")
)

// Fingerprint derives a stable digest of the parameters an approval covers.
// Parts are joined in order, so callers must pass them consistently.
func Fingerprint(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// PendingRequest is an unconfirmed approval request
type PendingRequest struct {
	Code          string    `json:"code"`
	Action        Action    `json:"action"`
	Subject       string    `json:"subject"`
	CooperativeID uuid.UUID `json:"cooperative_id"`
	RequestedBy   uuid.UUID `json:"requested_by"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// NewPendingRequest opens a request for an action on a subject fingerprint
func NewPendingRequest(op shared.OperationContext, action Action, subject string, ttl time.Duration) (*PendingRequest, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}
	if !action.IsValid() {
		return nil, ErrInvalidAction
	}
	if subject == "" {
		return nil, shared.NewDomainError("APPROVAL_INVALID_SUBJECT", "Approval subject is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PendingRequest{
		Code:          uuid.NewString(),
		Action:        action,
		Subject:       subject,
		CooperativeID: op.CooperativeID,
		RequestedBy:   op.AdminID,
		ExpiresAt:     time.Now().Add(ttl),
	}, nil
}

// TTL returns the time left until expiry
func (r *PendingRequest) TTL(now time.Time) time.Duration {
	return r.ExpiresAt.Sub(now)
}

// Check verifies a confirmation attempt against the request
func (r *PendingRequest) Check(op shared.OperationContext, action Action, subject string, now time.Time) error {
	if !now.Before(r.ExpiresAt) {
		return ErrExpired
	}
	if r.CooperativeID != op.CooperativeID {
		return ErrNotFound
	}
	if r.Action != action || r.Subject != subject {
		return ErrMismatch
	}
	if r.RequestedBy == op.AdminID {
		return ErrSameIdentity
	}
	return nil
}

// Store keeps pending requests until they are confirmed or expire
type Store interface {
	// Put stores the request until its expiry. Returns false if the code is taken.
	Put(ctx context.Context, req *PendingRequest) (bool, error)
	// Get returns the request without consuming it
	Get(ctx context.Context, code string) (*PendingRequest, error)
	// Take atomically removes and returns the request, so a code is
	// consumed at most once. Both return ErrNotFound when no live request
	// exists under the code.
	Take(ctx context.Context, code string) (*PendingRequest, error)
	Close() error
}
