// Package approval runs the dual-control workflow: one administrator opens a
// request, a different one confirms it by code.
package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coopledger/backend/internal/domain/approval"
	"github.com/coopledger/backend/internal/domain/shared"
	"github.com/coopledger/backend/internal/infrastructure/logger"
	"github.com/coopledger/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// putAttempts bounds retries on a code collision
const putAttempts = 3

// DualControlService issues and consumes approval requests
type DualControlService struct {
	store   approval.Store
	ttl     time.Duration
	metrics *telemetry.LedgerMetrics
	now     func() time.Time
}

// NewDualControlService creates a new DualControlService. A non-positive ttl
// uses approval.DefaultTTL.
func NewDualControlService(store approval.Store, ttl time.Duration, metrics *telemetry.LedgerMetrics) *DualControlService {
	if ttl <= 0 {
		ttl = approval.DefaultTTL
	}
	return &DualControlService{store: store, ttl: ttl, metrics: metrics, now: time.Now}
}

// Request opens a pending request for action on subject
func (s *DualControlService) Request(ctx context.Context, op shared.OperationContext, action approval.Action, subject string) (*approval.PendingRequest, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "approval", "request")
	defer span.End()

	for range putAttempts {
		req, err := approval.NewPendingRequest(op, action, subject, s.ttl)
		if err != nil {
			return nil, err
		}
		ok, err := s.store.Put(ctx, req)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("failed to store approval request: %w", err)
		}
		if ok {
			s.metrics.ApprovalRequested(ctx, op.CooperativeID, string(action))
			logger.L(ctx).Info("approval requested",
				zap.String("action", string(action)),
				zap.Time("expires_at", req.ExpiresAt),
			)
			telemetry.SetOK(span)
			return req, nil
		}
	}
	return nil, errors.New("could not allocate a unique approval code")
}

// Confirm consumes the request under code if the acting administrator may
// approve it. A code is accepted at most once.
func (s *DualControlService) Confirm(ctx context.Context, op shared.OperationContext, code string, action approval.Action, subject string) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "approval", "confirm")
	defer span.End()

	if code == "" {
		return approval.ErrNotFound
	}
	req, err := s.store.Get(ctx, code)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if err := req.Check(op, action, subject, s.now()); err != nil {
		logger.L(ctx).Warn("approval rejected",
			zap.String("action", string(action)),
			zap.String("reason", err.Error()),
		)
		telemetry.RecordError(span, err)
		return err
	}
	if _, err := s.store.Take(ctx, code); err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	telemetry.SetOK(span)
	return nil
}
