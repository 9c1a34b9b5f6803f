package handler

import (
	approvalapp "github.com/coopledger/backend/internal/application/approval"
	"github.com/coopledger/backend/internal/domain/approval"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ApprovalHandler opens dual-control requests
type ApprovalHandler struct {
	BaseHandler
	dualControl *approvalapp.DualControlService
}

// NewApprovalHandler creates a new ApprovalHandler
func NewApprovalHandler(dualControl *approvalapp.DualControlService) *ApprovalHandler {
	return &ApprovalHandler{dualControl: dualControl}
}

// RequestApprovalRequest is the body of POST /approvals. Amount, date and
// description are ignored for resolve_divergence.
type RequestApprovalRequest struct {
	Action      string          `json:"action" binding:"required,oneof=post_correction record_withdrawal resolve_divergence"`
	MemberID    string          `json:"member_id" binding:"required,uuid"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date" binding:"required_unless=Action resolve_divergence"`
	Description string          `json:"description" binding:"max=500"`
}

// RequestApproval opens a request that a second admin confirms by performing
// the action with the returned code
// POST /approvals
func (h *ApprovalHandler) RequestApproval(c *gin.Context) {
	op, ok := h.operationContext(c)
	if !ok {
		return
	}
	var req RequestApprovalRequest
	if !h.bindJSON(c, &req) {
		return
	}

	action := approval.Action(req.Action)
	memberID := uuid.MustParse(req.MemberID)
	var subject string
	if action == approval.ActionResolveDivergence {
		subject = approval.ResolveSubject(memberID)
	} else {
		date, err := parseDate(req.Date)
		if err != nil {
			h.BadRequest(c, "Invalid date, expected YYYY-MM-DD")
			return
		}
		subject = approval.PostingSubject(memberID, req.Amount, *date, req.Description)
	}

	pending, err := h.dualControl.Request(c.Request.Context(), op, action, subject)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, pending)
}
