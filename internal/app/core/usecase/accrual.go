package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-yield-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-yield-ledger/internal/app/core/metrics"
)

// AccrueYield 結算帳戶收益
// 未滿一天不做任何事並回傳原餘額；帳戶不存在回傳 nil, nil
func (e *LedgerEngine) AccrueYield(ctx context.Context, accountID int64) (*domain.Balance, error) {
	b, _, err := e.accrueAccount(ctx, accountID)
	return b, err
}

func (e *LedgerEngine) accrueAccount(ctx context.Context, accountID int64) (*domain.Balance, *domain.BalanceChanged, error) {
	var (
		result *domain.Balance
		event  *domain.BalanceChanged
	)
	err := e.inAccount(ctx, accountID, func(uow UnitOfWork) error {
		result, event = nil, nil
		b, err := uow.Balance(ctx)
		if err != nil {
			return err
		}
		if b == nil {
			return nil
		}
		event, err = e.accrue(ctx, uow, b, e.clock.Now())
		if err != nil {
			return err
		}
		result = b
		return nil
	})
	e.finish(ctx, domain.TransactionTypeAccrual, event, err)
	if err != nil {
		return nil, nil, err
	}
	return result, event, nil
}

// accrue 在既有 unit of work 內結算收益，未滿一天回傳 nil event
func (e *LedgerEngine) accrue(ctx context.Context, uow UnitOfWork, b *domain.Balance, now time.Time) (*domain.BalanceChanged, error) {
	reward, days := b.Accrue(e.cfg.DailyRate, now)
	if days < 1 {
		return nil, nil
	}
	if err := e.persist(ctx, uow, b, now); err != nil {
		return nil, err
	}
	ev := domain.NewBalanceChanged(b, domain.TransactionTypeAccrual, fmt.Sprintf("days:%d", days), reward, decimal.Zero, now)
	return &ev, nil
}

// SweepReport 收益批次結果
type SweepReport struct {
	Accounts int
	Accrued  int
	Failed   int
}

// SweepAccruals 對所有帳戶執行收益結算
// 每個帳戶使用與 AccrueYield 相同的公式，同一天重複執行不會重複入帳
// 單一帳戶失敗不會中斷批次，所有錯誤合併回傳
func (e *LedgerEngine) SweepAccruals(ctx context.Context) (SweepReport, error) {
	start := time.Now()
	var report SweepReport

	ids, err := e.store.AccountIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("list accounts: %w", err)
	}
	report.Accounts = len(ids)

	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		_, ev, err := e.accrueAccount(ctx, id)
		if err != nil {
			report.Failed++
			errs = append(errs, fmt.Errorf("account %d: %w", id, err))
			e.log.WithError(err).WithField("account_id", id).Error("accrual sweep failed for account")
			continue
		}
		if ev != nil {
			report.Accrued++
		}
	}

	metrics.ObserveSweep(time.Since(start), report.Failed)
	e.log.WithField("accounts", report.Accounts).
		WithField("accrued", report.Accrued).
		WithField("failed", report.Failed).
		Info("accrual sweep finished")
	return report, errors.Join(errs...)
}
