package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fekuna/merkado-order-service/internal/apperror"
	"github.com/fekuna/merkado-order-service/internal/inventory"
	"github.com/fekuna/merkado-order-service/internal/inventory/dto"
	"github.com/fekuna/merkado-order-service/pkg/logger"
)

type InventoryHandler struct {
	uc     inventory.UseCase
	logger logger.ZapLogger
}

func NewInventoryHandler(uc inventory.UseCase, log logger.ZapLogger) *InventoryHandler {
	return &InventoryHandler{
		uc:     uc,
		logger: log,
	}
}

func (h *InventoryHandler) Register(g *echo.Group) {
	g.GET("/low-stock", h.ListLowStock)
	g.GET("/movements", h.ListMovements)
	g.GET("/:product_id", h.GetProductInventory)
	g.PATCH("/:product_id/minimum", h.SetMinimum)
}

func (h *InventoryHandler) GetProductInventory(c echo.Context) error {
	productID, err := pathID(c, "product_id")
	if err != nil {
		return err
	}

	rec, err := h.uc.GetProductInventory(c.Request().Context(), productID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

type setMinimumRequest struct {
	MinimumQty *int `json:"minimum_qty"`
}

func (h *InventoryHandler) SetMinimum(c echo.Context) error {
	productID, err := pathID(c, "product_id")
	if err != nil {
		return err
	}

	var req setMinimumRequest
	if err := c.Bind(&req); err != nil {
		return apperror.Validation("body", "could not parse request body")
	}
	if req.MinimumQty == nil {
		return apperror.Validation("minimum_qty", "is required")
	}

	rec, err := h.uc.SetMinimum(c.Request().Context(), &dto.SetMinimumInput{
		ProductID:  productID,
		MinimumQty: *req.MinimumQty,
	})
	if err != nil {
		return err
	}

	logger.FromContext(c.Request().Context(), h.logger).Info("minimum stock updated",
		zap.Int64("product_id", productID),
		zap.Int("minimum_qty", rec.MinimumQty),
	)
	return c.JSON(http.StatusOK, rec)
}

func (h *InventoryHandler) ListLowStock(c echo.Context) error {
	page, pageSize := pagination(c)

	items, count, err := h.uc.ListLowStock(c.Request().Context(), page, pageSize)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "total": count})
}

func (h *InventoryHandler) ListMovements(c echo.Context) error {
	page, pageSize := pagination(c)

	filters := &dto.MovementFilters{
		MovementType:  c.QueryParam("movement_type"),
		ReferenceType: c.QueryParam("reference_type"),
		ReferenceID:   c.QueryParam("reference_id"),
		Page:          page,
		PageSize:      pageSize,
	}
	if raw := c.QueryParam("product_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return apperror.Validation("product_id", "must be an integer")
		}
		filters.ProductID = id
	}

	items, count, err := h.uc.ListMovements(c.Request().Context(), filters)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "total": count})
}

func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.Validation(name, "must be a positive integer")
	}
	return id, nil
}

func pagination(c echo.Context) (int, int) {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
