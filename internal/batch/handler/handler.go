package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/fekuna/merkado-order-service/internal/apperror"
	"github.com/fekuna/merkado-order-service/internal/batch"
	"github.com/fekuna/merkado-order-service/internal/batch/dto"
	"github.com/fekuna/merkado-order-service/pkg/logger"
)

type BatchHandler struct {
	uc     batch.UseCase
	logger logger.ZapLogger
}

func NewBatchHandler(uc batch.UseCase, log logger.ZapLogger) *BatchHandler {
	return &BatchHandler{
		uc:     uc,
		logger: log,
	}
}

func (h *BatchHandler) Register(g *echo.Group) {
	g.POST("", h.ReceiveBatch)
	g.GET("", h.ListBatches)
	g.PATCH("/:id/defective", h.MarkDefective)
}

type receiveBatchRequest struct {
	ProductID    int64           `json:"product_id"`
	SupplierID   int64           `json:"supplier_id"`
	ReceivedDate string          `json:"received_date"`
	ExpiryDate   string          `json:"expiry_date"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	Quantity     int             `json:"quantity"`
}

func (h *BatchHandler) ReceiveBatch(c echo.Context) error {
	var req receiveBatchRequest
	if err := c.Bind(&req); err != nil {
		return apperror.Validation("body", "could not parse request body")
	}

	received, err := parseDate("received_date", req.ReceivedDate)
	if err != nil {
		return err
	}
	expiry, err := parseDate("expiry_date", req.ExpiryDate)
	if err != nil {
		return err
	}

	b, err := h.uc.ReceiveBatch(c.Request().Context(), &dto.ReceiveBatchInput{
		ProductID:    req.ProductID,
		SupplierID:   req.SupplierID,
		ReceivedDate: received,
		ExpiryDate:   expiry,
		UnitCost:     req.UnitCost,
		Quantity:     req.Quantity,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *BatchHandler) ListBatches(c echo.Context) error {
	productID, err := strconv.ParseInt(c.QueryParam("product_id"), 10, 64)
	if err != nil {
		return apperror.Validation("product_id", "must be an integer")
	}

	items, err := h.uc.ListBatches(c.Request().Context(), productID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "total": len(items)})
}

func (h *BatchHandler) MarkDefective(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return apperror.Validation("id", "must be a positive integer")
	}

	b, err := h.uc.MarkDefective(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

// parseDate accepts a plain date or a full RFC 3339 timestamp.
func parseDate(field, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, apperror.Validation(field, "is required")
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperror.Validation(field, "must be YYYY-MM-DD or RFC 3339")
	}
	return t, nil
}
