package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-yield-ledger/internal/app/core/domain"
)

// SettleDeposit 存款狀態跨越 PAID 邊界時調整本金
//
// 參數:
//
//	ctx: 上下文
//	accountID: 帳戶 ID
//	amount: 帳本單位金額 (> 0)
//	prev, next: 狀態轉換前後
//
// 回傳:
//
//	*domain.Balance: 結算後餘額，帳戶不存在時為 nil
//	error: 持久層錯誤，或 clamp_policy=reject 時的 ErrInsufficientPrincipal
func (e *LedgerEngine) SettleDeposit(ctx context.Context, accountID int64, amount decimal.Decimal, prev, next domain.Status) (*domain.Balance, error) {
	crossing, err := checkSettlement(amount, prev, next)
	if err != nil {
		e.finish(ctx, domain.TransactionTypeDeposit, nil, err)
		return nil, err
	}
	if crossing == domain.CrossingNone {
		e.finish(ctx, domain.TransactionTypeDeposit, nil, nil)
		return e.currentBalance(ctx, accountID)
	}

	var (
		result *domain.Balance
		event  *domain.BalanceChanged
	)
	err = e.inAccount(ctx, accountID, func(uow UnitOfWork) error {
		var err error
		result, event, err = e.settleDeposit(ctx, uow, accountID, amount, crossing, "", e.clock.Now())
		return err
	})
	e.finish(ctx, domain.TransactionTypeDeposit, event, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SettleWithdrawal 提款狀態跨越 PAID 邊界時扣款或沖銷
// 進入 PAID: 先扣本金，不足再扣收益
// 離開 PAID: 金額回到本金，收益不回補
func (e *LedgerEngine) SettleWithdrawal(ctx context.Context, accountID int64, amount decimal.Decimal, prev, next domain.Status) (*domain.Balance, error) {
	crossing, err := checkSettlement(amount, prev, next)
	if err != nil {
		e.finish(ctx, domain.TransactionTypeWithdraw, nil, err)
		return nil, err
	}
	if crossing == domain.CrossingNone {
		e.finish(ctx, domain.TransactionTypeWithdraw, nil, nil)
		return e.currentBalance(ctx, accountID)
	}

	var (
		result *domain.Balance
		event  *domain.BalanceChanged
	)
	err = e.inAccount(ctx, accountID, func(uow UnitOfWork) error {
		var err error
		result, event, err = e.settleWithdrawal(ctx, uow, amount, crossing, "", e.clock.Now())
		return err
	})
	e.finish(ctx, domain.TransactionTypeWithdraw, event, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Credit 人工入帳本金，帳戶不存在時建立
func (e *LedgerEngine) Credit(ctx context.Context, accountID int64, amount decimal.Decimal, reason string) (*domain.Balance, error) {
	if !amount.IsPositive() {
		e.finish(ctx, domain.TransactionTypeCredit, nil, domain.ErrAmountMustBePositive)
		return nil, domain.ErrAmountMustBePositive
	}
	var (
		result *domain.Balance
		event  *domain.BalanceChanged
	)
	err := e.inAccount(ctx, accountID, func(uow UnitOfWork) error {
		result, event = nil, nil
		now := e.clock.Now()
		b, err := uow.Balance(ctx)
		if err != nil {
			return err
		}
		if b == nil {
			b = domain.NewBalance(accountID, amount, now)
		} else {
			b.ApplyPrincipalDelta(amount)
		}
		if err := e.persist(ctx, uow, b, now); err != nil {
			return err
		}
		ev := domain.NewBalanceChanged(b, domain.TransactionTypeCredit, reason, amount, decimal.Zero, now)
		result, event = b, &ev
		return nil
	})
	e.finish(ctx, domain.TransactionTypeCredit, event, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func checkSettlement(amount decimal.Decimal, prev, next domain.Status) (domain.Crossing, error) {
	if !prev.Valid() || !next.Valid() {
		return domain.CrossingNone, fmt.Errorf("%w: %q -> %q", domain.ErrInvalidStatus, prev, next)
	}
	if !amount.IsPositive() {
		return domain.CrossingNone, domain.ErrAmountMustBePositive
	}
	return domain.PaidCrossing(prev, next), nil
}

// currentBalance 未跨越邊界時只讀取，不寫入
func (e *LedgerEngine) currentBalance(ctx context.Context, accountID int64) (*domain.Balance, error) {
	b, err := e.store.GetBalance(ctx, accountID)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// settleDeposit 在既有 unit of work 內套用存款結算
func (e *LedgerEngine) settleDeposit(ctx context.Context, uow UnitOfWork, accountID int64, amount decimal.Decimal, crossing domain.Crossing, ref string, now time.Time) (*domain.Balance, *domain.BalanceChanged, error) {
	b, err := uow.Balance(ctx)
	if err != nil {
		return nil, nil, err
	}

	if b == nil {
		if crossing != domain.CrossingIntoPaid {
			// 沒有餘額可以沖銷
			return nil, nil, nil
		}
		b = domain.NewBalance(accountID, amount, now)
		if err := e.persist(ctx, uow, b, now); err != nil {
			return nil, nil, err
		}
		ev := domain.NewBalanceChanged(b, domain.TransactionTypeDeposit, ref, amount, decimal.Zero, now)
		return b, &ev, nil
	}

	delta := amount
	if crossing == domain.CrossingOutOfPaid {
		delta = amount.Neg()
	}
	shortfall := b.ApplyPrincipalDelta(delta)
	if shortfall.IsPositive() && e.cfg.ClampPolicy == ClampPolicyReject {
		return nil, nil, fmt.Errorf("%w: reversal of %s exceeds active stake by %s", domain.ErrInsufficientPrincipal, amount, shortfall)
	}
	if err := e.persist(ctx, uow, b, now); err != nil {
		return nil, nil, err
	}
	ev := domain.NewBalanceChanged(b, domain.TransactionTypeDeposit, ref, delta, shortfall, now)
	return b, &ev, nil
}

// settleWithdrawal 在既有 unit of work 內套用提款結算
func (e *LedgerEngine) settleWithdrawal(ctx context.Context, uow UnitOfWork, amount decimal.Decimal, crossing domain.Crossing, ref string, now time.Time) (*domain.Balance, *domain.BalanceChanged, error) {
	b, err := uow.Balance(ctx)
	if err != nil {
		return nil, nil, err
	}
	if b == nil {
		return nil, nil, nil
	}

	var (
		delta     decimal.Decimal
		shortfall = decimal.Zero
	)
	switch crossing {
	case domain.CrossingIntoPaid:
		d := b.DrawDown(amount)
		if d.Shortfall.IsPositive() && e.cfg.ClampPolicy == ClampPolicyReject {
			return nil, nil, fmt.Errorf("%w: withdrawal of %s exceeds balance by %s", domain.ErrInsufficientFunds, amount, d.Shortfall)
		}
		delta = d.FromStake.Add(d.FromRewards).Neg()
		shortfall = d.Shortfall
	case domain.CrossingOutOfPaid:
		b.Restore(amount)
		delta = amount
	}

	if err := e.persist(ctx, uow, b, now); err != nil {
		return nil, nil, err
	}
	ev := domain.NewBalanceChanged(b, domain.TransactionTypeWithdraw, ref, delta, shortfall, now)
	return b, &ev, nil
}
