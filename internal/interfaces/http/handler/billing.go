package handler

import (
	billingapp "github.com/coopledger/backend/internal/application/billing"
	"github.com/coopledger/backend/internal/domain/billing"
	"github.com/coopledger/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// BillingHandler handles invoice endpoints
type BillingHandler struct {
	BaseHandler
	billingService *billingapp.BillingService
}

// NewBillingHandler creates a new BillingHandler
func NewBillingHandler(billingService *billingapp.BillingService) *BillingHandler {
	return &BillingHandler{billingService: billingService}
}

// GenerateInvoicesRequest is the body of POST /billing/invoices/generate
type GenerateInvoicesRequest struct {
	PeriodFrom string `json:"period_from" binding:"required,datetime=2006-01-02"`
	PeriodTo   string `json:"period_to" binding:"required,datetime=2006-01-02"`
}

// GenerateInvoices bills all active members for a period. Repeating the call
// for the same period creates no further invoices.
// POST /billing/invoices/generate
func (h *BillingHandler) GenerateInvoices(c *gin.Context) {
	op, ok := h.operationContext(c)
	if !ok {
		return
	}
	var req GenerateInvoicesRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.billingService.GenerateInvoices(c.Request.Context(), op, mustDate(req.PeriodFrom), mustDate(req.PeriodTo))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ListInvoicesQuery filters GET /billing/invoices
type ListInvoicesQuery struct {
	dto.ListRequest
	MemberID string `form:"member_id" binding:"omitempty,uuid"`
	Status   string `form:"status" binding:"omitempty,oneof=open paid"`
}

// ListInvoices lists invoices, optionally for one member or status
// GET /billing/invoices
func (h *BillingHandler) ListInvoices(c *gin.Context) {
	op, ok := h.operationContext(c)
	if !ok {
		return
	}
	var q ListInvoicesQuery
	if !h.bindQuery(c, &q) {
		return
	}

	filter := billing.InvoiceFilter{Filter: listFilter(q.ListRequest)}
	if q.MemberID != "" {
		id := uuid.MustParse(q.MemberID)
		filter.MemberID = &id
	}
	if q.Status != "" {
		status := billing.InvoiceStatus(q.Status)
		filter.Status = &status
	}

	page, err := h.billingService.ListInvoices(c.Request.Context(), op, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}
