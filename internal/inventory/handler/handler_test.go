package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fekuna/merkado-order-service/internal/apperror"
	"github.com/fekuna/merkado-order-service/internal/inventory/handler"
	"github.com/fekuna/merkado-order-service/internal/inventory/repository"
	"github.com/fekuna/merkado-order-service/internal/inventory/usecase"
	"github.com/fekuna/merkado-order-service/internal/model"
	"github.com/fekuna/merkado-order-service/internal/storage/storagetest"
	"github.com/fekuna/merkado-order-service/pkg/logger"
)

func newServer(t *testing.T) (*echo.Echo, int64) {
	t.Helper()
	db := storagetest.Open(t)
	productID := storagetest.SeedProduct(t, db, "Yogur", "0.90")
	storagetest.SeedInventory(t, db, productID, 4, 1)

	log := logger.NewNop()
	e := echo.New()
	e.HTTPErrorHandler = apperror.HTTPErrorHandler(log)
	h := handler.NewInventoryHandler(usecase.NewInventoryUseCase(repository.NewPGRepository(db), db, log), log)
	h.Register(e.Group("/inventory"))
	return e, productID
}

func TestSetMinimum(t *testing.T) {
	e, productID := newServer(t)
	path := "/inventory/" + strconv.FormatInt(productID, 10) + "/minimum"

	req := httptest.NewRequest(http.MethodPatch, path, strings.NewReader(`{"minimum_qty": 6}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got model.InventoryRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 6, got.MinimumQty)

	req = httptest.NewRequest(http.MethodPatch, path, strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"message":"minimum_qty: is required"`)
}

func TestGetProductInventory_NotFound(t *testing.T) {
	e, _ := newServer(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/inventory/999", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"inventory for product 999 not found"}`, rec.Body.String())
}

func TestListLowStock(t *testing.T) {
	e, productID := newServer(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/inventory/low-stock", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Items []model.InventoryRecord `json:"items"`
		Total int                     `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 0, body.Total)
	assert.Empty(t, body.Items)

	req := httptest.NewRequest(http.MethodPatch, "/inventory/"+strconv.FormatInt(productID, 10)+"/minimum",
		strings.NewReader(`{"minimum_qty": 4}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	e.ServeHTTP(httptest.NewRecorder(), req)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/inventory/low-stock", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Total)
}
