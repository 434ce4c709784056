package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-yield-ledger/internal/app/core/domain"
)

// CreateDeposit 建立存款單 (PROCESSING)，金額依目前匯率換算為帳本單位
func (e *LedgerEngine) CreateDeposit(ctx context.Context, accountID int64, amountRequested decimal.Decimal) (*domain.Deposit, error) {
	price, err := e.Price(ctx)
	if err != nil {
		return nil, err
	}
	var deposit *domain.Deposit
	err = e.inAccount(ctx, accountID, func(uow UnitOfWork) error {
		d, err := domain.NewDeposit(accountID, amountRequested, price, e.clock.Now())
		if err != nil {
			return err
		}
		if err := uow.SaveDeposit(ctx, d); err != nil {
			return err
		}
		deposit = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.WithField("account_id", accountID).
		WithField("deposit_id", deposit.ID.String()).
		WithField("amount", deposit.AmountInLedgerUnits.String()).
		Info("deposit created")
	return deposit, nil
}

// UpdateDepositStatus 變更存款單狀態並在同一個 unit of work 內結算
// 目前狀態與 next 相同時不做任何事
//
// 回傳:
//
//	*domain.Deposit: 更新後的存款單
//	*domain.Balance: 結算後餘額 (可能為 nil)
//	error: 找不到存款單、狀態錯誤或持久層錯誤
func (e *LedgerEngine) UpdateDepositStatus(ctx context.Context, accountID int64, depositID uuid.UUID, next domain.Status) (*domain.Deposit, *domain.Balance, error) {
	if !next.Valid() {
		return nil, nil, domain.ErrInvalidStatus
	}
	var (
		deposit *domain.Deposit
		balance *domain.Balance
		event   *domain.BalanceChanged
	)
	err := e.inAccount(ctx, accountID, func(uow UnitOfWork) error {
		deposit, balance, event = nil, nil, nil
		now := e.clock.Now()

		d, err := uow.Deposit(ctx, depositID)
		if err != nil {
			return err
		}
		if d.AccountID != accountID {
			return domain.ErrDepositNotFound
		}
		prev, err := d.Transition(next, now)
		if err != nil {
			return err
		}
		deposit = d
		if prev == next {
			balance, err = uow.Balance(ctx)
			return err
		}
		if err := uow.SaveDeposit(ctx, d); err != nil {
			return err
		}

		crossing := domain.PaidCrossing(prev, next)
		if crossing == domain.CrossingNone {
			balance, err = uow.Balance(ctx)
			return err
		}
		balance, event, err = e.settleDeposit(ctx, uow, accountID, d.AmountInLedgerUnits, crossing, d.ID.String(), now)
		return err
	})
	e.finish(ctx, domain.TransactionTypeDeposit, event, err)
	if err != nil {
		return nil, nil, err
	}
	return deposit, balance, nil
}

// CreateWithdrawal 建立提款單
// 先結算收益，再於同一個 unit of work 內檢查金額不得超過可提領收益
func (e *LedgerEngine) CreateWithdrawal(ctx context.Context, accountID int64, amountRequested decimal.Decimal, address string) (*domain.Withdrawal, error) {
	price, err := e.Price(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := e.AccrueYield(ctx, accountID); err != nil {
		return nil, err
	}

	var withdrawal *domain.Withdrawal
	err = e.inAccount(ctx, accountID, func(uow UnitOfWork) error {
		withdrawal = nil
		w, err := domain.NewWithdrawal(accountID, amountRequested, price, address, e.clock.Now())
		if err != nil {
			return err
		}
		b, err := uow.Balance(ctx)
		if err != nil {
			return err
		}
		if b == nil {
			return domain.ErrAccountNotFound
		}
		if w.AmountInLedgerUnits.GreaterThan(b.Rewards) {
			return domain.ErrInsufficientRewards
		}
		if err := uow.SaveWithdrawal(ctx, w); err != nil {
			return err
		}
		withdrawal = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.WithField("account_id", accountID).
		WithField("withdrawal_id", withdrawal.ID.String()).
		WithField("amount", withdrawal.AmountInLedgerUnits.String()).
		Info("withdrawal created")
	return withdrawal, nil
}

// UpdateWithdrawalStatus 變更提款單狀態並在同一個 unit of work 內結算
func (e *LedgerEngine) UpdateWithdrawalStatus(ctx context.Context, accountID int64, withdrawalID uuid.UUID, next domain.Status) (*domain.Withdrawal, *domain.Balance, error) {
	if !next.Valid() {
		return nil, nil, domain.ErrInvalidStatus
	}
	var (
		withdrawal *domain.Withdrawal
		balance    *domain.Balance
		event      *domain.BalanceChanged
	)
	err := e.inAccount(ctx, accountID, func(uow UnitOfWork) error {
		withdrawal, balance, event = nil, nil, nil
		now := e.clock.Now()

		w, err := uow.Withdrawal(ctx, withdrawalID)
		if err != nil {
			return err
		}
		if w.AccountID != accountID {
			return domain.ErrWithdrawalNotFound
		}
		prev, err := w.Transition(next, now)
		if err != nil {
			return err
		}
		withdrawal = w
		if prev == next {
			balance, err = uow.Balance(ctx)
			return err
		}
		if err := uow.SaveWithdrawal(ctx, w); err != nil {
			return err
		}

		crossing := domain.PaidCrossing(prev, next)
		if crossing == domain.CrossingNone {
			balance, err = uow.Balance(ctx)
			return err
		}
		balance, event, err = e.settleWithdrawal(ctx, uow, w.AmountInLedgerUnits, crossing, w.ID.String(), now)
		return err
	})
	e.finish(ctx, domain.TransactionTypeWithdraw, event, err)
	if err != nil {
		return nil, nil, err
	}
	return withdrawal, balance, nil
}
