package handler

import (
	"time"

	ledgerapp "github.com/coopledger/backend/internal/application/ledger"
	"github.com/coopledger/backend/internal/domain/ledger"
	"github.com/coopledger/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerHandler handles member account endpoints
type LedgerHandler struct {
	BaseHandler
	ledgerService *ledgerapp.LedgerService
}

// NewLedgerHandler creates a new LedgerHandler
func NewLedgerHandler(ledgerService *ledgerapp.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledgerService: ledgerService}
}

// PostingResponse is a ledger posting as returned to clients
type PostingResponse struct {
	ID          uuid.UUID       `json:"id"`
	MemberID    uuid.UUID       `json:"member_id"`
	Date        string          `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Reference   string          `json:"reference,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func toPostingResponse(p *ledger.Posting) PostingResponse {
	return PostingResponse{
		ID:          p.ID,
		MemberID:    p.MemberID,
		Date:        p.Date.Format(dateLayout),
		Amount:      p.Amount,
		Type:        p.Type.String(),
		Description: p.Description,
		Reference:   p.Reference,
		CreatedAt:   p.CreatedAt,
	}
}

// RecordPaymentRequest is the body of POST /ledger/payments
type RecordPaymentRequest struct {
	MemberID    string          `json:"member_id" binding:"required,uuid"`
	Amount      decimal.Decimal `json:"amount" binding:"required,cents"`
	Date        string          `json:"date" binding:"required,datetime=2006-01-02"`
	Description string          `json:"description" binding:"max=500"`
	Reference   string          `json:"reference" binding:"max=200"`
}

// RecordPayment books a member payment and allocates it to open invoices,
// oldest first
// POST /ledger/payments
func (h *LedgerHandler) RecordPayment(c *gin.Context) {
	op, ok := h.operationContext(c)
	if !ok {
		return
	}
	var req RecordPaymentRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.ledgerService.RecordPayment(c.Request.Context(), op, ledgerapp.PaymentInput{
		MemberID:    uuid.MustParse(req.MemberID),
		Amount:      req.Amount,
		Date:        mustDate(req.Date),
		Description: req.Description,
		Reference:   req.Reference,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// GetBalance returns the cached balance of a member's account
// GET /ledger/balances/:member_id
func (h *LedgerHandler) GetBalance(c *gin.Context) {
	op, ok := h.operationContext(c)
	if !ok {
		return
	}
	memberID, ok := h.pathUUID(c, "member_id")
	if !ok {
		return
	}

	view, err := h.ledgerService.GetBalance(c.Request.Context(), op, memberID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}

// ListPostingsQuery filters GET /ledger/postings/:member_id
type ListPostingsQuery struct {
	dto.ListRequest
	Type string `form:"type" binding:"omitempty,oneof=invoice deposit withdrawal correction year-carryover"`
	From string `form:"from" binding:"omitempty,datetime=2006-01-02"`
	To   string `form:"to" binding:"omitempty,datetime=2006-01-02"`
}

// ListPostings pages through a member's postings
// GET /ledger/postings/:member_id
func (h *LedgerHandler) ListPostings(c *gin.Context) {
	op, ok := h.operationContext(c)
	if !ok {
		return
	}
	memberID, ok := h.pathUUID(c, "member_id")
	if !ok {
		return
	}
	var q ListPostingsQuery
	if !h.bindQuery(c, &q) {
		return
	}

	filter := ledger.PostingFilter{Filter: listFilter(q.ListRequest)}
	if q.Type != "" {
		typ := ledger.PostingType(q.Type)
		filter.Type = &typ
	}
	filter.From, _ = parseDate(q.From)
	filter.To, _ = parseDate(q.To)

	page, err := h.ledgerService.ListPostings(c.Request.Context(), op, memberID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	items := make([]PostingResponse, len(page.Items))
	for i, p := range page.Items {
		items[i] = toPostingResponse(p)
	}
	h.SuccessWithMeta(c, items, page.Total, page.Page, page.PageSize)
}

// GatedPostingRequest is the body of corrections and withdrawals. The
// approval code comes from a request a different admin made for the same
// member, amount, date and description.
type GatedPostingRequest struct {
	MemberID     string          `json:"member_id" binding:"required,uuid"`
	Amount       decimal.Decimal `json:"amount" binding:"required,cents"`
	Date         string          `json:"date" binding:"required,datetime=2006-01-02"`
	Description  string          `json:"description" binding:"required,max=500"`
	ApprovalCode string          `json:"approval_code" binding:"required"`
}

func (r GatedPostingRequest) toInput() ledgerapp.GatedPostingInput {
	return ledgerapp.GatedPostingInput{
		MemberID:     uuid.MustParse(r.MemberID),
		Amount:       r.Amount,
		Date:         mustDate(r.Date),
		Description:  r.Description,
		ApprovalCode: r.ApprovalCode,
	}
}

// PostCorrection appends a signed correction posting
// POST /ledger/corrections
func (h *LedgerHandler) PostCorrection(c *gin.Context) {
	op, ok := h.operationContext(c)
	if !ok {
		return
	}
	var req GatedPostingRequest
	if !h.bindJSON(c, &req) {
		return
	}

	posting, err := h.ledgerService.PostCorrection(c.Request.Context(), op, req.toInput())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toPostingResponse(posting))
}

// RecordWithdrawal pays credit back to a member. The amount is positive.
// POST /ledger/withdrawals
func (h *LedgerHandler) RecordWithdrawal(c *gin.Context) {
	op, ok := h.operationContext(c)
	if !ok {
		return
	}
	var req GatedPostingRequest
	if !h.bindJSON(c, &req) {
		return
	}

	posting, err := h.ledgerService.RecordWithdrawal(c.Request.Context(), op, req.toInput())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toPostingResponse(posting))
}

// OpeningBalanceRequest is the body of POST /ledger/opening-balances
type OpeningBalanceRequest struct {
	MemberID string          `json:"member_id" binding:"required,uuid"`
	Amount   decimal.Decimal `json:"amount" binding:"required,cents"`
	Date     string          `json:"date" binding:"required,datetime=2006-01-02"`
}

// RecordOpeningBalance seeds an account that has no postings yet
// POST /ledger/opening-balances
func (h *LedgerHandler) RecordOpeningBalance(c *gin.Context) {
	op, ok := h.operationContext(c)
	if !ok {
		return
	}
	var req OpeningBalanceRequest
	if !h.bindJSON(c, &req) {
		return
	}

	posting, err := h.ledgerService.RecordOpeningBalance(c.Request.Context(), op, ledgerapp.OpeningBalanceInput{
		MemberID: uuid.MustParse(req.MemberID),
		Amount:   req.Amount,
		Date:     mustDate(req.Date),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toPostingResponse(posting))
}

// CloseYearRequest is the body of POST /ledger/year-close
type CloseYearRequest struct {
	Year int `json:"year" binding:"required,min=1900,max=9999"`
}

// CloseYear freezes every account's balance as of December 31 of the year
// POST /ledger/year-close
func (h *LedgerHandler) CloseYear(c *gin.Context) {
	op, ok := h.operationContext(c)
	if !ok {
		return
	}
	var req CloseYearRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.ledgerService.CloseYear(c.Request.Context(), op, req.Year)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// VerifyBalances recomputes every cached balance from the postings and halts
// accounts whose cache diverged
// POST /ledger/verify
func (h *LedgerHandler) VerifyBalances(c *gin.Context) {
	op, ok := h.operationContext(c)
	if !ok {
		return
	}

	report, err := h.ledgerService.VerifyBalances(c.Request.Context(), op)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// ResolveDivergenceRequest is the body of POST /ledger/balances/:member_id/resolve
type ResolveDivergenceRequest struct {
	ApprovalCode string `json:"approval_code" binding:"required"`
}

// ResolveDivergence rebuilds a halted account's cache from its postings
// POST /ledger/balances/:member_id/resolve
func (h *LedgerHandler) ResolveDivergence(c *gin.Context) {
	op, ok := h.operationContext(c)
	if !ok {
		return
	}
	memberID, ok := h.pathUUID(c, "member_id")
	if !ok {
		return
	}
	var req ResolveDivergenceRequest
	if !h.bindJSON(c, &req) {
		return
	}

	view, err := h.ledgerService.ResolveDivergence(c.Request.Context(), op, memberID, req.ApprovalCode)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}
