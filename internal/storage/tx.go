package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// TxManager runs units of work inside a single database transaction.
type TxManager struct {
	db *sqlx.DB
}

func NewTxManager(db *sqlx.DB) *TxManager {
	return &TxManager{db: db}
}

// DB returns the pool for reads that do not need a transaction.
func (m *TxManager) DB() *sqlx.DB {
	return m.db
}

// WithinTx commits when fn returns nil and rolls back otherwise.
// A panic inside fn rolls back and is re-raised.
func (m *TxManager) WithinTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := m.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ForUpdate returns the row-lock suffix for drivers that support it.
// SQLite serialises writers on its own and rejects the clause.
func ForUpdate(q sqlx.ExtContext) string {
	switch q.DriverName() {
	case "pgx", "postgres":
		return " FOR UPDATE"
	default:
		return ""
	}
}
