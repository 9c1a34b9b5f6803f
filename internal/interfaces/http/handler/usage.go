package handler

import (
	equipmentapp "github.com/coopledger/backend/internal/application/equipment"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UsageHandler records machine usage
type UsageHandler struct {
	BaseHandler
	usageService *equipmentapp.UsageService
}

// NewUsageHandler creates a new UsageHandler
func NewUsageHandler(usageService *equipmentapp.UsageService) *UsageHandler {
	return &UsageHandler{usageService: usageService}
}

// RecordUsageRequest is the body of POST /usage. Meter machines need both
// meter readings; quantity machines need the quantity.
type RecordUsageRequest struct {
	MemberID     string           `json:"member_id" binding:"required,uuid"`
	MachineID    string           `json:"machine_id" binding:"required,uuid"`
	Date         string           `json:"date" binding:"required,datetime=2006-01-02"`
	StartMeter   *decimal.Decimal `json:"start_meter"`
	EndMeter     *decimal.Decimal `json:"end_meter"`
	Quantity     *decimal.Decimal `json:"quantity"`
	FuelQuantity *decimal.Decimal `json:"fuel_quantity"`
	FuelCost     *decimal.Decimal `json:"fuel_cost"`
}

// RecordUsage stores a usage event and returns its computed cost
// POST /usage
func (h *UsageHandler) RecordUsage(c *gin.Context) {
	op, ok := h.operationContext(c)
	if !ok {
		return
	}
	var req RecordUsageRequest
	if !h.bindJSON(c, &req) {
		return
	}

	view, err := h.usageService.RecordUsage(c.Request.Context(), op, equipmentapp.RecordUsageInput{
		MemberID:     uuid.MustParse(req.MemberID),
		MachineID:    uuid.MustParse(req.MachineID),
		Date:         mustDate(req.Date),
		StartMeter:   req.StartMeter,
		EndMeter:     req.EndMeter,
		Quantity:     req.Quantity,
		FuelQuantity: req.FuelQuantity,
		FuelCost:     req.FuelCost,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, view)
}
