package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fekuna/merkado-order-service/internal/apperror"
	"github.com/fekuna/merkado-order-service/internal/batch"
	batchrepo "github.com/fekuna/merkado-order-service/internal/batch/repository"
	"github.com/fekuna/merkado-order-service/internal/batch/usecase"
	invrepo "github.com/fekuna/merkado-order-service/internal/inventory/repository"
	productrepo "github.com/fekuna/merkado-order-service/internal/product/repository"
	"github.com/fekuna/merkado-order-service/internal/storage/storagetest"
	"github.com/fekuna/merkado-order-service/pkg/logger"
)

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func newAllocator(db *sqlx.DB) batch.Allocator {
	return usecase.NewAllocator(
		batchrepo.NewPGRepository(db),
		invrepo.NewPGRepository(db),
		productrepo.NewPGRepository(db),
		logger.NewNop(),
	)
}

func TestAllocateForSale_EarliestExpiryFirst(t *testing.T) {
	db := storagetest.Open(t)
	productID := storagetest.SeedProduct(t, db, "Leche entera", "1.25")
	// Inserted out of expiry order so the id does not decide.
	b2 := storagetest.SeedBatch(t, db, productID, 10, date("2025-02-01"))
	b1 := storagetest.SeedBatch(t, db, productID, 3, date("2025-01-01"))
	storagetest.SeedInventory(t, db, productID, 13, 0)

	allocations, err := newAllocator(db).AllocateForSale(context.Background(), db, productID, 5)
	require.NoError(t, err)
	require.Len(t, allocations, 2)

	assert.Equal(t, b1, allocations[0].BatchID)
	assert.Equal(t, 3, allocations[0].QtyUsed)
	assert.Equal(t, b2, allocations[1].BatchID)
	assert.Equal(t, 2, allocations[1].QtyUsed)
	assert.Equal(t, "1.25", allocations[0].UnitPrice.StringFixed(2))
	assert.Equal(t, "2.50", allocations[1].LineTotal().StringFixed(2))
}

func TestAllocateForSale_SameExpiryUsesLowestID(t *testing.T) {
	db := storagetest.Open(t)
	productID := storagetest.SeedProduct(t, db, "Pan", "0.50")
	first := storagetest.SeedBatch(t, db, productID, 4, date("2025-03-01"))
	second := storagetest.SeedBatch(t, db, productID, 4, date("2025-03-01"))
	storagetest.SeedInventory(t, db, productID, 8, 0)

	allocations, err := newAllocator(db).AllocateForSale(context.Background(), db, productID, 6)
	require.NoError(t, err)
	require.Len(t, allocations, 2)
	assert.Equal(t, first, allocations[0].BatchID)
	assert.Equal(t, 4, allocations[0].QtyUsed)
	assert.Equal(t, second, allocations[1].BatchID)
	assert.Equal(t, 2, allocations[1].QtyUsed)
}

func TestAllocateForSale_SkipsUnusableBatches(t *testing.T) {
	db := storagetest.Open(t)
	productID := storagetest.SeedProduct(t, db, "Yogur", "0.90")
	defective := storagetest.SeedBatch(t, db, productID, 5, date("2025-01-01"))
	empty := storagetest.SeedBatch(t, db, productID, 5, date("2025-01-02"))
	good := storagetest.SeedBatch(t, db, productID, 5, date("2025-01-03"))
	storagetest.SeedInventory(t, db, productID, 5, 0)

	_, err := db.Exec(`UPDATE batches SET status = 'DEFECTIVE' WHERE id = ?`, defective)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE batches SET remaining_qty = 0 WHERE id = ?`, empty)
	require.NoError(t, err)

	allocations, err := newAllocator(db).AllocateForSale(context.Background(), db, productID, 5)
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.Equal(t, good, allocations[0].BatchID)
}

func TestAllocateForSale_InsufficientStock(t *testing.T) {
	db := storagetest.Open(t)
	productID := storagetest.SeedProduct(t, db, "Arroz", "2.00")
	batchID := storagetest.SeedBatch(t, db, productID, 10, date("2025-05-01"))
	storagetest.SeedInventory(t, db, productID, 10, 0)

	_, err := newAllocator(db).AllocateForSale(context.Background(), db, productID, 11)

	var stockErr *apperror.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 10, stockErr.Available)
	assert.Equal(t, 11, stockErr.Requested)

	var remaining, available int
	require.NoError(t, db.Get(&remaining, `SELECT remaining_qty FROM batches WHERE id = ?`, batchID))
	require.NoError(t, db.Get(&available, `SELECT available_qty FROM inventory WHERE product_id = ?`, productID))
	assert.Equal(t, 10, remaining)
	assert.Equal(t, 10, available)
}

func TestAllocateForSale_NoInventoryRecord(t *testing.T) {
	db := storagetest.Open(t)
	productID := storagetest.SeedProduct(t, db, "Sal", "0.30")

	_, err := newAllocator(db).AllocateForSale(context.Background(), db, productID, 1)

	var stockErr *apperror.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 0, stockErr.Available)
}

func TestAllocateForSale_LedgersDisagree(t *testing.T) {
	db := storagetest.Open(t)
	productID := storagetest.SeedProduct(t, db, "Azucar", "1.10")
	storagetest.SeedBatch(t, db, productID, 4, date("2025-05-01"))
	storagetest.SeedInventory(t, db, productID, 10, 0)

	_, err := newAllocator(db).AllocateForSale(context.Background(), db, productID, 6)

	var inconsistency *apperror.DataInconsistencyError
	require.ErrorAs(t, err, &inconsistency)
	assert.Equal(t, productID, inconsistency.ProductID)
}

func TestAllocateForSale_InvalidRequest(t *testing.T) {
	db := storagetest.Open(t)
	productID := storagetest.SeedProduct(t, db, "Cafe", "5.00")
	storagetest.SeedInventory(t, db, productID, 10, 0)
	alloc := newAllocator(db)
	ctx := context.Background()

	_, err := alloc.AllocateForSale(ctx, db, productID, 0)
	var vErr *apperror.ValidationError
	assert.ErrorAs(t, err, &vErr)

	_, err = alloc.AllocateForSale(ctx, db, productID+50, 1)
	var nfErr *apperror.NotFoundError
	assert.ErrorAs(t, err, &nfErr)

	_, err = db.Exec(`UPDATE products SET is_active = 0 WHERE id = ?`, productID)
	require.NoError(t, err)
	_, err = alloc.AllocateForSale(ctx, db, productID, 1)
	assert.ErrorAs(t, err, &nfErr)
}

