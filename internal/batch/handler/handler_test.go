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
	"github.com/fekuna/merkado-order-service/internal/batch/handler"
	batchrepo "github.com/fekuna/merkado-order-service/internal/batch/repository"
	"github.com/fekuna/merkado-order-service/internal/batch/usecase"
	invrepo "github.com/fekuna/merkado-order-service/internal/inventory/repository"
	invusecase "github.com/fekuna/merkado-order-service/internal/inventory/usecase"
	"github.com/fekuna/merkado-order-service/internal/model"
	productrepo "github.com/fekuna/merkado-order-service/internal/product/repository"
	"github.com/fekuna/merkado-order-service/internal/storage"
	"github.com/fekuna/merkado-order-service/internal/storage/storagetest"
	"github.com/fekuna/merkado-order-service/pkg/logger"
)

func TestReceiveAndMarkDefective(t *testing.T) {
	db := storagetest.Open(t)
	productID := storagetest.SeedProduct(t, db, "Lechuga", "0.95")

	log := logger.NewNop()
	ledger := invusecase.NewInventoryUseCase(invrepo.NewPGRepository(db), db, log)
	uc := usecase.NewBatchUseCase(batchrepo.NewPGRepository(db), productrepo.NewPGRepository(db), ledger, storage.NewTxManager(db), log)

	e := echo.New()
	e.HTTPErrorHandler = apperror.HTTPErrorHandler(log)
	handler.NewBatchHandler(uc, log).Register(e.Group("/batch"))

	body := `{"product_id": ` + strconv.FormatInt(productID, 10) + `, "supplier_id": 2,
		"received_date": "2025-03-01", "expiry_date": "2025-03-15", "unit_cost": "0.40", "quantity": 8}`
	req := httptest.NewRequest(http.MethodPost, "/batch", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created model.Batch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, 8, created.RemainingQty)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/batch/"+strconv.FormatInt(created.ID, 10)+"/defective", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/batch/"+strconv.FormatInt(created.ID, 10)+"/defective", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/batch?product_id="+strconv.FormatInt(productID, 10), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Items []model.Batch `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, model.BatchDefective, list.Items[0].Status)
}

func TestReceiveBatch_BadDate(t *testing.T) {
	db := storagetest.Open(t)
	log := logger.NewNop()
	ledger := invusecase.NewInventoryUseCase(invrepo.NewPGRepository(db), db, log)
	uc := usecase.NewBatchUseCase(batchrepo.NewPGRepository(db), productrepo.NewPGRepository(db), ledger, storage.NewTxManager(db), log)

	e := echo.New()
	e.HTTPErrorHandler = apperror.HTTPErrorHandler(log)
	handler.NewBatchHandler(uc, log).Register(e.Group("/batch"))

	req := httptest.NewRequest(http.MethodPost, "/batch",
		strings.NewReader(`{"product_id": 1, "supplier_id": 1, "received_date": "01/03/2025", "expiry_date": "2025-03-15", "quantity": 1}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "received_date")
}
