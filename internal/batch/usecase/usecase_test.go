package usecase_test

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fekuna/merkado-order-service/internal/apperror"
	"github.com/fekuna/merkado-order-service/internal/batch"
	"github.com/fekuna/merkado-order-service/internal/batch/dto"
	batchrepo "github.com/fekuna/merkado-order-service/internal/batch/repository"
	"github.com/fekuna/merkado-order-service/internal/batch/usecase"
	"github.com/fekuna/merkado-order-service/internal/inventory"
	invdto "github.com/fekuna/merkado-order-service/internal/inventory/dto"
	invrepo "github.com/fekuna/merkado-order-service/internal/inventory/repository"
	invusecase "github.com/fekuna/merkado-order-service/internal/inventory/usecase"
	"github.com/fekuna/merkado-order-service/internal/model"
	productrepo "github.com/fekuna/merkado-order-service/internal/product/repository"
	"github.com/fekuna/merkado-order-service/internal/storage"
	"github.com/fekuna/merkado-order-service/internal/storage/storagetest"
	"github.com/fekuna/merkado-order-service/pkg/logger"
)

func newStore(db *sqlx.DB) (batch.UseCase, *storage.TxManager) {
	log := logger.NewNop()
	txm := storage.NewTxManager(db)
	ledger := invusecase.NewInventoryUseCase(invrepo.NewPGRepository(db), db, log)
	return usecase.NewBatchUseCase(batchrepo.NewPGRepository(db), productrepo.NewPGRepository(db), ledger, txm, log), txm
}

func available(t *testing.T, db *sqlx.DB, productID int64) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, `SELECT available_qty FROM inventory WHERE product_id = ?`, productID))
	return n
}

func remaining(t *testing.T, db *sqlx.DB, batchID int64) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, `SELECT remaining_qty FROM batches WHERE id = ?`, batchID))
	return n
}

func TestReduceRemaining(t *testing.T) {
	db := storagetest.Open(t)
	store, txm := newStore(db)
	ctx := context.Background()
	productID := storagetest.SeedProduct(t, db, "Tomate", "0.70")
	batchID := storagetest.SeedBatch(t, db, productID, 5, date("2025-06-01"))

	require.NoError(t, txm.WithinTx(ctx, func(tx *sqlx.Tx) error {
		return store.ReduceRemaining(ctx, tx, batchID, 5)
	}))
	assert.Equal(t, 0, remaining(t, db, batchID))

	err := txm.WithinTx(ctx, func(tx *sqlx.Tx) error {
		return store.ReduceRemaining(ctx, tx, batchID, 1)
	})
	var overdraft *apperror.OverdraftError
	require.ErrorAs(t, err, &overdraft)
	assert.Equal(t, batchID, overdraft.BatchID)

	err = txm.WithinTx(ctx, func(tx *sqlx.Tx) error {
		return store.ReduceRemaining(ctx, tx, batchID+10, 1)
	})
	var nfErr *apperror.NotFoundError
	require.ErrorAs(t, err, &nfErr)
}

func TestRestoreRemaining(t *testing.T) {
	db := storagetest.Open(t)
	store, txm := newStore(db)
	ctx := context.Background()
	productID := storagetest.SeedProduct(t, db, "Cebolla", "0.40")
	batchID := storagetest.SeedBatch(t, db, productID, 5, date("2025-06-01"))

	require.NoError(t, txm.WithinTx(ctx, func(tx *sqlx.Tx) error {
		if err := store.ReduceRemaining(ctx, tx, batchID, 3); err != nil {
			return err
		}
		restored, err := store.RestoreRemaining(ctx, tx, batchID, 2)
		assert.True(t, restored)
		return err
	}))
	assert.Equal(t, 4, remaining(t, db, batchID))

	err := txm.WithinTx(ctx, func(tx *sqlx.Tx) error {
		_, err := store.RestoreRemaining(ctx, tx, batchID, 2)
		return err
	})
	var conflict *apperror.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 4, remaining(t, db, batchID))

	err = txm.WithinTx(ctx, func(tx *sqlx.Tx) error {
		_, err := store.RestoreRemaining(ctx, tx, batchID+10, 1)
		return err
	})
	var nfErr *apperror.NotFoundError
	require.ErrorAs(t, err, &nfErr)
}

func TestRestoreRemaining_InactiveBatchIsLeftAlone(t *testing.T) {
	db := storagetest.Open(t)
	store, txm := newStore(db)
	ctx := context.Background()
	productID := storagetest.SeedProduct(t, db, "Pepino", "0.50")
	batchID := storagetest.SeedBatch(t, db, productID, 5, date("2025-06-01"))
	storagetest.SeedInventory(t, db, productID, 5, 0)

	require.NoError(t, txm.WithinTx(ctx, func(tx *sqlx.Tx) error {
		return store.ReduceRemaining(ctx, tx, batchID, 2)
	}))
	_, err := db.Exec(`UPDATE batches SET status = ? WHERE id = ?`, model.BatchExpired, batchID)
	require.NoError(t, err)

	var restored bool
	require.NoError(t, txm.WithinTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		restored, err = store.RestoreRemaining(ctx, tx, batchID, 2)
		return err
	}))
	assert.False(t, restored)
	assert.Equal(t, 3, remaining(t, db, batchID))
}

func TestReceiveBatch(t *testing.T) {
	db := storagetest.Open(t)
	store, _ := newStore(db)
	ctx := context.Background()
	productID := storagetest.SeedProduct(t, db, "Manzana", "0.35")

	b, err := store.ReceiveBatch(ctx, &dto.ReceiveBatchInput{
		ProductID:    productID,
		SupplierID:   3,
		ReceivedDate: date("2025-01-10"),
		ExpiryDate:   date("2025-02-10"),
		UnitCost:     decimal.RequireFromString("0.20"),
		Quantity:     12,
	})
	require.NoError(t, err)
	assert.NotZero(t, b.ID)
	assert.Equal(t, model.BatchActive, b.Status)
	assert.Equal(t, 12, b.RemainingQty)
	assert.Equal(t, 12, available(t, db, productID))

	var movementType string
	require.NoError(t, db.Get(&movementType, `SELECT movement_type FROM inventory_movements WHERE batch_id = ?`, b.ID))
	assert.Equal(t, model.MovementReceipt, movementType)

	batches, err := store.ListBatches(ctx, productID)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, "0.20", batches[0].UnitCost.StringFixed(2))
}

func TestReceiveBatch_Validation(t *testing.T) {
	db := storagetest.Open(t)
	store, _ := newStore(db)
	productID := storagetest.SeedProduct(t, db, "Pera", "0.40")

	tests := []struct {
		name  string
		input dto.ReceiveBatchInput
		field string
	}{
		{"zero qty", dto.ReceiveBatchInput{ProductID: productID, SupplierID: 1, ReceivedDate: date("2025-01-01"), ExpiryDate: date("2025-02-01")}, "quantity"},
		{"expiry before receipt", dto.ReceiveBatchInput{ProductID: productID, SupplierID: 1, Quantity: 1, ReceivedDate: date("2025-02-01"), ExpiryDate: date("2025-01-01")}, "expiry_date"},
		{"same day", dto.ReceiveBatchInput{ProductID: productID, SupplierID: 1, Quantity: 1, ReceivedDate: date("2025-02-01"), ExpiryDate: date("2025-02-01")}, "expiry_date"},
		{"no supplier", dto.ReceiveBatchInput{ProductID: productID, Quantity: 1, ReceivedDate: date("2025-01-01"), ExpiryDate: date("2025-02-01")}, "supplier_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.ReceiveBatch(context.Background(), &tt.input)
			var vErr *apperror.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
	assert.Equal(t, 0, storagetest.Count(t, db, "batches"))
}

func TestReceiveBatch_UnknownProduct(t *testing.T) {
	db := storagetest.Open(t)
	store, _ := newStore(db)

	_, err := store.ReceiveBatch(context.Background(), &dto.ReceiveBatchInput{
		ProductID:    77,
		SupplierID:   1,
		ReceivedDate: date("2025-01-01"),
		ExpiryDate:   date("2025-02-01"),
		Quantity:     3,
	})
	var nfErr *apperror.NotFoundError
	require.ErrorAs(t, err, &nfErr)
	assert.Equal(t, 0, storagetest.Count(t, db, "batches"))
	assert.Equal(t, 0, storagetest.Count(t, db, "inventory"))
}

func TestMarkDefective(t *testing.T) {
	db := storagetest.Open(t)
	store, _ := newStore(db)
	ctx := context.Background()
	productID := storagetest.SeedProduct(t, db, "Fresa", "3.20")
	bad := storagetest.SeedBatch(t, db, productID, 4, date("2025-01-05"))
	storagetest.SeedBatch(t, db, productID, 6, date("2025-01-09"))
	storagetest.SeedInventory(t, db, productID, 10, 0)

	b, err := store.MarkDefective(ctx, bad)
	require.NoError(t, err)
	assert.Equal(t, model.BatchDefective, b.Status)
	assert.Equal(t, 6, available(t, db, productID))

	_, err = store.MarkDefective(ctx, bad)
	var conflict *apperror.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Contains(t, conflict.Message, "DEFECTIVE")
	assert.Equal(t, 6, available(t, db, productID))

	_, err = store.MarkDefective(ctx, bad+100)
	var nfErr *apperror.NotFoundError
	require.ErrorAs(t, err, &nfErr)
}

func TestMarkDefective_WritesOffRemainingAtUpdate(t *testing.T) {
	db := storagetest.Open(t)
	store, txm := newStore(db)
	ctx := context.Background()
	productID := storagetest.SeedProduct(t, db, "Mora", "2.10")
	first := storagetest.SeedBatch(t, db, productID, 5, date("2025-01-05"))
	storagetest.SeedBatch(t, db, productID, 5, date("2025-01-09"))
	storagetest.SeedInventory(t, db, productID, 10, 0)

	ledger := invusecase.NewInventoryUseCase(invrepo.NewPGRepository(db), db, logger.NewNop())
	require.NoError(t, txm.WithinTx(ctx, func(tx *sqlx.Tx) error {
		if err := ledger.Decrement(ctx, tx, invdto.StockChange{ProductID: productID, Qty: 5, MovementType: model.MovementSale}); err != nil {
			return err
		}
		return store.ReduceRemaining(ctx, tx, first, 5)
	}))

	b, err := store.MarkDefective(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 0, b.RemainingQty)
	assert.Equal(t, 5, available(t, db, productID))

	var defective int
	require.NoError(t, db.Get(&defective, `SELECT count(*) FROM inventory_movements WHERE movement_type = ?`, model.MovementDefective))
	assert.Equal(t, 0, defective)
}

type callLog struct {
	calls []string
}

type recordingRepo struct {
	batch.Repository
	log *callLog
}

func (r *recordingRepo) MarkDefective(ctx context.Context, tx sqlx.ExtContext, id int64) (int, bool, error) {
	r.log.calls = append(r.log.calls, "batch.MarkDefective")
	return r.Repository.MarkDefective(ctx, tx, id)
}

type recordingLedger struct {
	inventory.UseCase
	log *callLog
}

func (l *recordingLedger) LockRecord(ctx context.Context, tx sqlx.ExtContext, productID int64) (*model.InventoryRecord, error) {
	l.log.calls = append(l.log.calls, "inventory.LockRecord")
	return l.UseCase.LockRecord(ctx, tx, productID)
}

func (l *recordingLedger) Decrement(ctx context.Context, tx sqlx.ExtContext, change invdto.StockChange) error {
	l.log.calls = append(l.log.calls, "inventory.Decrement")
	return l.UseCase.Decrement(ctx, tx, change)
}

func TestMarkDefective_LocksInventoryBeforeBatch(t *testing.T) {
	db := storagetest.Open(t)
	ctx := context.Background()
	productID := storagetest.SeedProduct(t, db, "Kiwi", "0.80")
	batchID := storagetest.SeedBatch(t, db, productID, 3, date("2025-01-05"))
	storagetest.SeedInventory(t, db, productID, 3, 0)

	log := logger.NewNop()
	calls := &callLog{}
	ledger := &recordingLedger{UseCase: invusecase.NewInventoryUseCase(invrepo.NewPGRepository(db), db, log), log: calls}
	repo := &recordingRepo{Repository: batchrepo.NewPGRepository(db), log: calls}
	store := usecase.NewBatchUseCase(repo, productrepo.NewPGRepository(db), ledger, storage.NewTxManager(db), log)

	_, err := store.MarkDefective(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, []string{"inventory.LockRecord", "batch.MarkDefective", "inventory.Decrement"}, calls.calls)
	assert.Equal(t, 0, available(t, db, productID))
}
