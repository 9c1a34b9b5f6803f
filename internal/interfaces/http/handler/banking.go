package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	bankingapp "github.com/coopledger/backend/internal/application/banking"
	"github.com/coopledger/backend/internal/domain/banking"
	"github.com/coopledger/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// statementFormField is the multipart field carrying the CSV file
const statementFormField = "file"

// BankingHandler handles statement import and transaction classification
type BankingHandler struct {
	BaseHandler
	importService         *bankingapp.ImportService
	classificationService *bankingapp.ClassificationService
	maxFileSize           int64
}

// NewBankingHandler creates a new BankingHandler. maxFileSize <= 0 disables
// the upload limit.
func NewBankingHandler(importService *bankingapp.ImportService, classificationService *bankingapp.ClassificationService, maxFileSize int64) *BankingHandler {
	return &BankingHandler{
		importService:         importService,
		classificationService: classificationService,
		maxFileSize:           maxFileSize,
	}
}

// ImportProfileRequest is the wire form of a cooperative's CSV dialect
type ImportProfileRequest struct {
	Delimiter          string                `json:"delimiter" binding:"required"`
	Encoding           string                `json:"encoding" binding:"required"`
	Columns            banking.ColumnMapping `json:"columns"`
	DecimalSeparator   string                `json:"decimal_separator" binding:"required"`
	ThousandsSeparator string                `json:"thousands_separator"`
	DateFormat         string                `json:"date_format" binding:"required"`
	HeaderPresent      bool                  `json:"header_present"`
	LinesToSkip        int                   `json:"lines_to_skip" binding:"min=0"`
}

func (r ImportProfileRequest) toDomain() *banking.ImportProfile {
	return &banking.ImportProfile{
		Delimiter:          r.Delimiter,
		Encoding:           r.Encoding,
		Columns:            r.Columns,
		DecimalSeparator:   r.DecimalSeparator,
		ThousandsSeparator: r.ThousandsSeparator,
		DateFormat:         r.DateFormat,
		HeaderPresent:      r.HeaderPresent,
		LinesToSkip:        r.LinesToSkip,
	}
}

// ImportProfileResponse is the stored profile as returned to clients
type ImportProfileResponse struct {
	ID                 uuid.UUID             `json:"id"`
	Delimiter          string                `json:"delimiter"`
	Encoding           string                `json:"encoding"`
	Columns            banking.ColumnMapping `json:"columns"`
	DecimalSeparator   string                `json:"decimal_separator"`
	ThousandsSeparator string                `json:"thousands_separator"`
	DateFormat         string                `json:"date_format"`
	HeaderPresent      bool                  `json:"header_present"`
	LinesToSkip        int                   `json:"lines_to_skip"`
}

func toImportProfileResponse(p *banking.ImportProfile) ImportProfileResponse {
	return ImportProfileResponse{
		ID:                 p.ID,
		Delimiter:          p.Delimiter,
		Encoding:           p.Encoding,
		Columns:            p.Columns,
		DecimalSeparator:   p.DecimalSeparator,
		ThousandsSeparator: p.ThousandsSeparator,
		DateFormat:         p.DateFormat,
		HeaderPresent:      p.HeaderPresent,
		LinesToSkip:        p.LinesToSkip,
	}
}

// ImportStatement uploads a bank CSV export. The optional "profile" form
// field overrides the stored import profile for this upload only.
// POST /banking/imports
func (h *BankingHandler) ImportStatement(c *gin.Context) {
	op, ok := h.operationContext(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile(statementFormField)
	if err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeMissingFile, "A statement file is required in form field \"file\"")
		return
	}
	if h.maxFileSize > 0 && fileHeader.Size > h.maxFileSize {
		h.HandleError(c, bankingapp.ErrFileTooLarge.Withf("Statement file has %d bytes, limit is %d", fileHeader.Size, h.maxFileSize))
		return
	}

	var profile *banking.ImportProfile
	if raw := c.PostForm("profile"); raw != "" {
		var req ImportProfileRequest
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			h.BadRequest(c, "Invalid profile: "+err.Error())
			return
		}
		profile = req.toDomain()
		profile.CooperativeID = op.CooperativeID
	}

	data, err := readUpload(fileHeader)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	result, err := h.importService.Import(c.Request.Context(), op, data, profile)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

func readUpload(fileHeader *multipart.FileHeader) ([]byte, error) {
	f, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return data, nil
}

// GetImportProfile returns the stored profile, or the default one when the
// cooperative has not configured its own
// GET /banking/import-profile
func (h *BankingHandler) GetImportProfile(c *gin.Context) {
	op, ok := h.operationContext(c)
	if !ok {
		return
	}
	profile, err := h.importService.GetImportProfile(c.Request.Context(), op)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toImportProfileResponse(profile))
}

// SaveImportProfile replaces the cooperative's import profile
// PUT /banking/import-profile
func (h *BankingHandler) SaveImportProfile(c *gin.Context) {
	op, ok := h.operationContext(c)
	if !ok {
		return
	}
	var req ImportProfileRequest
	if !h.bindJSON(c, &req) {
		return
	}

	profile, err := h.importService.SaveImportProfile(c.Request.Context(), op, req.toDomain())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toImportProfileResponse(profile))
}

// ListTransactionsQuery filters GET /banking/transactions
type ListTransactionsQuery struct {
	dto.ListRequest
	UnmatchedOnly bool   `form:"unmatched_only"`
	From          string `form:"from" binding:"omitempty,datetime=2006-01-02"`
	To            string `form:"to" binding:"omitempty,datetime=2006-01-02"`
}

// ListTransactions pages through imported transactions
// GET /banking/transactions
func (h *BankingHandler) ListTransactions(c *gin.Context) {
	op, ok := h.operationContext(c)
	if !ok {
		return
	}
	var q ListTransactionsQuery
	if !h.bindQuery(c, &q) {
		return
	}

	filter := banking.BankTransactionFilter{Filter: listFilter(q.ListRequest), UnmatchedOnly: q.UnmatchedOnly}
	filter.From, _ = parseDate(q.From)
	filter.To, _ = parseDate(q.To)

	page, err := h.importService.ListTransactions(c.Request.Context(), op, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// ClassifyRequest is the body of POST /banking/transactions/:id/classify
type ClassifyRequest struct {
	Target   string `json:"target" binding:"required,oneof=member machine cooperative_cost"`
	TargetID string `json:"target_id" binding:"required_unless=Target cooperative_cost"`
	Category string `json:"category" binding:"omitempty,max=64"`
}

// Classify attributes a transaction to a member, a machine or a general
// cooperative cost. Member deposits are allocated to open invoices.
// POST /banking/transactions/:id/classify
func (h *BankingHandler) Classify(c *gin.Context) {
	op, ok := h.operationContext(c)
	if !ok {
		return
	}
	txID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	var req ClassifyRequest
	if !h.bindJSON(c, &req) {
		return
	}

	in := bankingapp.ClassifyInput{
		TransactionID: txID,
		Target:        banking.MatchTarget(req.Target),
		Category:      req.Category,
	}
	if req.TargetID != "" {
		id, err := uuid.Parse(req.TargetID)
		if err != nil {
			h.BadRequest(c, "Invalid target_id")
			return
		}
		in.TargetID = id
	}

	result, err := h.classificationService.Classify(c.Request.Context(), op, in)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Unclassify returns a transaction to the unmatched state
// POST /banking/transactions/:id/unclassify
func (h *BankingHandler) Unclassify(c *gin.Context) {
	op, ok := h.operationContext(c)
	if !ok {
		return
	}
	txID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	view, err := h.classificationService.Unclassify(c.Request.Context(), op, txID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}
