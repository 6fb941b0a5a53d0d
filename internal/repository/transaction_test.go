package repository

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmorley/finance-ingest/constants"
	"github.com/dmorley/finance-ingest/internal/common"
	"github.com/dmorley/finance-ingest/internal/entity"
)

const testSchema = `CREATE TABLE t_transaction (
	transaction_id     INTEGER PRIMARY KEY AUTOINCREMENT,
	guid               TEXT    NOT NULL UNIQUE,
	account_name_owner TEXT    NOT NULL,
	account_type       TEXT    NOT NULL,
	transaction_type   TEXT    NOT NULL,
	description        TEXT    NOT NULL,
	category           TEXT    NOT NULL DEFAULT '',
	amount             TEXT    NOT NULL,
	transaction_date   TEXT    NOT NULL,
	transaction_state  TEXT    NOT NULL,
	notes              TEXT    NOT NULL DEFAULT '',
	active_status      INTEGER NOT NULL DEFAULT 1
)`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenSQLite(":memory:", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(testSchema)
	require.NoError(t, err)
	return db
}

func record(guid, description, amount string) entity.TransactionRecord {
	return entity.TransactionRecord{
		GUID:             guid,
		AccountNameOwner: "test_checking",
		AccountType:      constants.AccountTypeDebit,
		TransactionType:  constants.TransactionTypeExpense,
		Description:      description,
		Category:         "groceries",
		Amount:           decimal.RequireFromString(amount),
		TransactionDate:  time.Date(2023, 5, 15, 0, 0, 0, 0, time.UTC),
		TransactionState: constants.TransactionStateCleared,
		ActiveStatus:     true,
	}
}

func TestInsertTransactions_PersistsInOrder(t *testing.T) {
	db := openTestDB(t)
	repo := NewTransactionRepository(db, testLogger())

	records := []entity.TransactionRecord{
		record("11111111-1111-4111-8111-111111111111", "first", "1.00"),
		record("22222222-2222-4222-8222-222222222222", "second", "2.50"),
		record("33333333-3333-4333-8333-333333333333", "third", "3.75"),
	}
	require.NoError(t, repo.InsertTransactions(context.Background(), records))

	rows, err := db.Query("SELECT description, amount FROM t_transaction ORDER BY transaction_id")
	require.NoError(t, err)
	defer rows.Close()

	var got []string
	for rows.Next() {
		var description, amount string
		require.NoError(t, rows.Scan(&description, &amount))
		got = append(got, description+"/"+amount)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"first/1.00", "second/2.50", "third/3.75"}, got)
}

func TestInsertTransactions_DuplicateGUID(t *testing.T) {
	db := openTestDB(t)
	repo := NewTransactionRepository(db, testLogger())
	ctx := context.Background()

	require.NoError(t, repo.InsertTransactions(ctx, []entity.TransactionRecord{
		record("11111111-1111-4111-8111-111111111111", "original", "1.00"),
	}))

	err := repo.InsertTransactions(ctx, []entity.TransactionRecord{
		record("11111111-1111-4111-8111-111111111111", "resubmitted", "1.00"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrDuplicateIdentity)
	assert.NotErrorIs(t, err, common.ErrPersistence)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM t_transaction").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestInsertTransactions_MidFileDuplicateLeavesNoPartialCommit(t *testing.T) {
	db := openTestDB(t)
	repo := NewTransactionRepository(db, testLogger())
	ctx := context.Background()

	require.NoError(t, repo.InsertTransactions(ctx, []entity.TransactionRecord{
		record("22222222-2222-4222-8222-222222222222", "existing", "2.00"),
	}))

	err := repo.InsertTransactions(ctx, []entity.TransactionRecord{
		record("11111111-1111-4111-8111-111111111111", "new before dup", "1.00"),
		record("22222222-2222-4222-8222-222222222222", "the dup", "2.00"),
		record("33333333-3333-4333-8333-333333333333", "new after dup", "3.00"),
	})
	require.ErrorIs(t, err, common.ErrDuplicateIdentity)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM t_transaction").Scan(&count))
	assert.Equal(t, 1, count, "rolled back, only the pre-existing row remains")
}

func TestInsertTransactions_EmptyInputIsNoop(t *testing.T) {
	db := openTestDB(t)
	repo := NewTransactionRepository(db, testLogger())

	require.NoError(t, repo.InsertTransactions(context.Background(), nil))
}

func TestInsertTransactions_PostgresUniqueViolation(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	repo := NewTransactionRepository(mockDB, testLogger())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO t_transaction").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "t_transaction_guid_key"})
	mock.ExpectRollback()

	err = repo.InsertTransactions(context.Background(), []entity.TransactionRecord{
		record("11111111-1111-4111-8111-111111111111", "dup", "1.00"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrDuplicateIdentity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertTransactions_InfrastructureFailure(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	repo := NewTransactionRepository(mockDB, testLogger())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO t_transaction").
		WillReturnError(&pgconn.PgError{Code: "42P01", Message: "relation does not exist"})
	mock.ExpectRollback()

	err = repo.InsertTransactions(context.Background(), []entity.TransactionRecord{
		record("11111111-1111-4111-8111-111111111111", "orphan", "1.00"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrPersistence)
	assert.NotErrorIs(t, err, common.ErrDuplicateIdentity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertTransactions_BindsCanonicalValues(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	repo := NewTransactionRepository(mockDB, testLogger())

	rec := record("11111111-1111-4111-8111-111111111111", "Grocery", "150.75")
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO t_transaction").
		WithArgs(rec.GUID, "test_checking", "debit", "expense", "Grocery",
			"groceries", "150.75", "2023-05-15", "cleared", "", true).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.InsertTransactions(context.Background(), []entity.TransactionRecord{rec}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
