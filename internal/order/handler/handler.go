package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/fekuna/merkado-order-service/internal/apperror"
	"github.com/fekuna/merkado-order-service/internal/model"
	"github.com/fekuna/merkado-order-service/internal/order"
	"github.com/fekuna/merkado-order-service/internal/order/dto"
	"github.com/fekuna/merkado-order-service/pkg/logger"
)

type OrderHandler struct {
	uc     order.UseCase
	logger logger.ZapLogger
}

func NewOrderHandler(uc order.UseCase, log logger.ZapLogger) *OrderHandler {
	return &OrderHandler{
		uc:     uc,
		logger: log,
	}
}

func (h *OrderHandler) Register(g *echo.Group) {
	g.POST("", h.CreateOrder)
	g.GET("", h.ListOrders)
	g.GET("/:id", h.GetOrder)
	g.PATCH("/:id/estado", h.UpdateOrderState)
	g.PATCH("/:id/cancel", h.CancelOrder)
}

func (h *OrderHandler) CreateOrder(c echo.Context) error {
	var input dto.CreateOrderInput
	if err := c.Bind(&input); err != nil {
		return apperror.Validation("body", "could not parse request body")
	}

	o, err := h.uc.CreateOrder(c.Request().Context(), &input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *OrderHandler) GetOrder(c echo.Context) error {
	id, err := orderID(c)
	if err != nil {
		return err
	}

	o, err := h.uc.GetOrder(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}

func (h *OrderHandler) ListOrders(c echo.Context) error {
	filters := &dto.OrderFilters{Status: c.QueryParam("status")}

	raw := c.QueryParam("customer_id")
	if raw == "" {
		return apperror.Validation("customer_id", "is required")
	}
	customerID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || customerID <= 0 {
		return apperror.Validation("customer_id", "must be a positive integer")
	}
	filters.CustomerID = customerID

	filters.Page, _ = strconv.Atoi(c.QueryParam("page"))
	filters.PageSize, _ = strconv.Atoi(c.QueryParam("page_size"))
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 || filters.PageSize > 100 {
		filters.PageSize = 20
	}

	items, count, err := h.uc.ListOrders(c.Request().Context(), filters)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "total": count})
}

func (h *OrderHandler) UpdateOrderState(c echo.Context) error {
	id, err := orderID(c)
	if err != nil {
		return err
	}

	var input dto.UpdateStatusInput
	if err := c.Bind(&input); err != nil {
		return apperror.Validation("body", "could not parse request body")
	}
	if input.Estado == "" {
		return apperror.Validation("estado", "is required")
	}

	o, err := h.uc.UpdateOrderState(c.Request().Context(), id, model.OrderStatus(input.Estado))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}

func (h *OrderHandler) CancelOrder(c echo.Context) error {
	id, err := orderID(c)
	if err != nil {
		return err
	}

	o, err := h.uc.CancelOrder(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}

func orderID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.Validation("id", "must be a positive integer")
	}
	return id, nil
}
