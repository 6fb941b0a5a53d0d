package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/dmorley/finance-ingest/internal/common"
	"github.com/dmorley/finance-ingest/internal/entity"
)

const insertTransactionSQL = `INSERT INTO t_transaction
	(guid, account_name_owner, account_type, transaction_type, description,
	 category, amount, transaction_date, transaction_state, notes, active_status)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

type TransactionRepository interface {
	// InsertTransactions persists a file's records in input order inside one
	// database transaction. A duplicate GUID fails with
	// common.ErrDuplicateIdentity and nothing is committed.
	InsertTransactions(ctx context.Context, records []entity.TransactionRecord) error
}

type transactionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewTransactionRepository(db *sql.DB, logger *slog.Logger) TransactionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &transactionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *transactionRepository) InsertTransactions(ctx context.Context, records []entity.TransactionRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return common.NewAppError("STORE_ERROR", fmt.Sprintf("begin transaction: %v", err), common.ErrPersistence)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			r.logger.Error("rollback failed", "error", err)
		}
	}()

	// Insert-and-catch, never check-then-insert: the store's uniqueness
	// constraint is the arbiter, so two concurrent writers cannot race past a
	// pre-check.
	for _, rec := range records {
		_, err := tx.ExecContext(ctx, insertTransactionSQL,
			rec.GUID,
			rec.AccountNameOwner,
			string(rec.AccountType),
			string(rec.TransactionType),
			rec.Description,
			rec.Category,
			rec.Amount.StringFixed(2),
			rec.TransactionDate.Format("2006-01-02"),
			string(rec.TransactionState),
			rec.Notes,
			rec.ActiveStatus,
		)
		if err != nil {
			if isDuplicateIdentity(err) {
				return common.NewAppError("DUPLICATE_TRANSACTION",
					fmt.Sprintf("transaction with guid %s already exists", rec.GUID), common.ErrDuplicateIdentity)
			}
			return common.NewAppError("STORE_ERROR",
				fmt.Sprintf("insert transaction %s: %v", rec.GUID, err), common.ErrPersistence)
		}
	}

	if err := tx.Commit(); err != nil {
		return common.NewAppError("STORE_ERROR", fmt.Sprintf("commit transaction: %v", err), common.ErrPersistence)
	}
	committed = true

	r.logger.Info("persisted transactions", "count", len(records))
	return nil
}

// isDuplicateIdentity recognizes a unique-constraint violation from either
// backing driver.
func isDuplicateIdentity(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		code := sqErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
