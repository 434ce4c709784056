package mysql

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-yield-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-yield-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-yield-ledger/pkg/mysql"
)

var balanceColumns = []string{"account_id", "total_value", "active_stake", "rewards", "last_yield_at", "updated_at", "version"}

func newMockStore(t *testing.T) (*MySQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	client, err := mysql.NewClientWithConn(db, mysql.Config{LogLevel: "silent"})
	require.NoError(t, err)
	return NewMySQLStore(client), mock
}

func TestGetBalance(t *testing.T) {
	store, mock := newMockStore(t)
	yieldAt := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT \\* FROM `account_balances`").
		WillReturnRows(sqlmock.NewRows(balanceColumns).
			AddRow(7, "1030", "1000", "30", yieldAt, yieldAt, 4))

	b, err := store.GetBalance(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), b.AccountID)
	assert.True(t, decimal.NewFromInt(1030).Equal(b.TotalValue))
	assert.True(t, decimal.NewFromInt(30).Equal(b.Rewards))
	require.NotNil(t, b.LastYieldAt)
	assert.True(t, b.LastYieldAt.Equal(yieldAt))
	assert.Equal(t, int64(4), b.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBalanceNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT \\* FROM `account_balances`").
		WillReturnRows(sqlmock.NewRows(balanceColumns))

	_, err := store.GetBalance(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInAccountInsertsNewBalance(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `account_balances` .*FOR UPDATE").
		WillReturnRows(sqlmock.NewRows(balanceColumns))
	mock.ExpectExec("INSERT INTO `account_balances`").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `balance_snapshots`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	ctx := context.Background()
	var saved *domain.Balance
	err := store.InAccount(ctx, 5, func(uow usecase.UnitOfWork) error {
		b, err := uow.Balance(ctx)
		if err != nil {
			return err
		}
		require.Nil(t, b)
		saved = domain.NewBalance(5, decimal.NewFromInt(500), now)
		if err := uow.SaveBalance(ctx, saved); err != nil {
			return err
		}
		return uow.AppendSnapshot(ctx, domain.NewSnapshot(saved, now))
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInAccountVersionConflictRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `account_balances` .*FOR UPDATE").
		WillReturnRows(sqlmock.NewRows(balanceColumns).
			AddRow(5, "100", "100", "0", now, now, 3))
	mock.ExpectExec("UPDATE `account_balances` SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	ctx := context.Background()
	err := store.InAccount(ctx, 5, func(uow usecase.UnitOfWork) error {
		b, err := uow.Balance(ctx)
		if err != nil {
			return err
		}
		b.ApplyPrincipalDelta(decimal.NewFromInt(10))
		return uow.SaveBalance(ctx, b)
	})
	assert.ErrorIs(t, err, domain.ErrConcurrentUpdate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInAccountUpdateBumpsVersion(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `account_balances` .*FOR UPDATE").
		WillReturnRows(sqlmock.NewRows(balanceColumns).
			AddRow(5, "100", "100", "0", now, now, 3))
	mock.ExpectExec("UPDATE `account_balances` SET .*version.*").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ctx := context.Background()
	var saved *domain.Balance
	err := store.InAccount(ctx, 5, func(uow usecase.UnitOfWork) error {
		b, err := uow.Balance(ctx)
		if err != nil {
			return err
		}
		b.ApplyPrincipalDelta(decimal.NewFromInt(10))
		saved = b
		return uow.SaveBalance(ctx, b)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), saved.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInAccountUpdatesRowWithZeroVersion(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	// 由其他系統寫入的列，version 停在欄位預設值
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `account_balances` .*FOR UPDATE").
		WillReturnRows(sqlmock.NewRows(balanceColumns).
			AddRow(8, "50", "50", "0", nil, now, 0))
	mock.ExpectExec("UPDATE `account_balances` SET .*WHERE account_id = \\? AND version = \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ctx := context.Background()
	var saved *domain.Balance
	err := store.InAccount(ctx, 8, func(uow usecase.UnitOfWork) error {
		b, err := uow.Balance(ctx)
		if err != nil {
			return err
		}
		b.ApplyPrincipalDelta(decimal.NewFromInt(5))
		saved = b
		return uow.SaveBalance(ctx, b)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInAccountLockErrors(t *testing.T) {
	tests := []struct {
		name     string
		number   uint16
		conflict bool
	}{
		{name: "deadlock", number: 1213, conflict: true},
		{name: "lock wait timeout", number: 1205, conflict: true},
		{name: "missing table", number: 1146, conflict: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			dbErr := &mysqldriver.MySQLError{Number: tt.number, Message: tt.name}

			mock.ExpectBegin()
			mock.ExpectQuery("SELECT \\* FROM `account_balances` .*FOR UPDATE").
				WillReturnError(dbErr)
			mock.ExpectRollback()

			ctx := context.Background()
			err := store.InAccount(ctx, 4, func(uow usecase.UnitOfWork) error {
				_, err := uow.Balance(ctx)
				return err
			})
			require.Error(t, err)
			assert.Equal(t, tt.conflict, errors.Is(err, domain.ErrConcurrentUpdate))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

// 兩個請求同時建立同一帳戶時，輸掉的一方在 INSERT 收到 deadlock，
// 重試後讀到對方建立的列並改走 UPDATE
func TestSettleDepositRetriesAfterInsertDeadlock(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `account_balances` .*FOR UPDATE").
		WillReturnRows(sqlmock.NewRows(balanceColumns))
	mock.ExpectExec("INSERT INTO `account_balances`").
		WillReturnError(&mysqldriver.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"})
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `account_balances` .*FOR UPDATE").
		WillReturnRows(sqlmock.NewRows(balanceColumns).
			AddRow(5, "100", "100", "0", created, created, 1))
	mock.ExpectExec("UPDATE `account_balances` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `balance_snapshots`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	engine, err := usecase.NewLedgerEngine(store, usecase.Config{
		DailyRate:  decimal.RequireFromString("0.01"),
		MaxRetries: 3,
	})
	require.NoError(t, err)

	b, err := engine.SettleDeposit(context.Background(), 5, decimal.NewFromInt(500), domain.StatusProcessing, domain.StatusPaid)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(600).Equal(b.ActiveStake))
	assert.True(t, decimal.NewFromInt(600).Equal(b.TotalValue))
	assert.Equal(t, int64(2), b.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDepositNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `deposits` .*FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "status"}))
	mock.ExpectRollback()

	ctx := context.Background()
	err := store.InAccount(ctx, 1, func(uow usecase.UnitOfWork) error {
		_, err := uow.Deposit(ctx, uuid.New())
		return err
	})
	assert.ErrorIs(t, err, domain.ErrDepositNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawalRoundTrip(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `withdrawals` .*FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "account_id", "amount_requested", "amount_in_ledger_units", "price", "status", "created_at", "updated_at", "address",
		}).AddRow(id[:], 3, "10", "20", "2", "PROCESSING", now, now, "addr-9"))
	mock.ExpectExec("INSERT INTO `withdrawals` .*ON DUPLICATE KEY UPDATE").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	ctx := context.Background()
	err := store.InAccount(ctx, 3, func(uow usecase.UnitOfWork) error {
		w, err := uow.Withdrawal(ctx, id)
		if err != nil {
			return err
		}
		assert.Equal(t, id, w.ID)
		assert.Equal(t, "addr-9", w.Address)
		assert.Equal(t, domain.StatusProcessing, w.Status)
		assert.True(t, decimal.NewFromInt(20).Equal(w.AmountInLedgerUnits))

		if _, err := w.Transition(domain.StatusPaid, now.Add(time.Hour)); err != nil {
			return err
		}
		return uow.SaveWithdrawal(ctx, w)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotsOrdered(t *testing.T) {
	store, mock := newMockStore(t)
	first := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	a, b := uuid.New(), uuid.New()

	mock.ExpectQuery("SELECT \\* FROM `balance_snapshots` WHERE .*ORDER BY captured_at ASC").
		WillReturnRows(sqlmock.NewRows([]string{"id", "ref_id", "account_id", "total_value", "captured_at"}).
			AddRow(1, a[:], 2, "100", first).
			AddRow(2, b[:], 2, "101", first.Add(24*time.Hour)))

	snaps, err := store.Snapshots(context.Background(), 2, first)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, a, snaps[0].ID)
	assert.True(t, decimal.NewFromInt(101).Equal(snaps[1].TotalValue))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountIDs(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT `account_id` FROM `account_balances`").
		WillReturnRows(sqlmock.NewRows([]string{"account_id"}).AddRow(1).AddRow(3))

	ids, err := store.AccountIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
