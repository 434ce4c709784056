package usecase_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-yield-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-yield-ledger/internal/app/core/usecase"
)

func TestDepositLifecycle(t *testing.T) {
	f := newFixture(t, usecase.ClampPolicyClamp)
	ctx := context.Background()

	// 匯率 2: 50 -> 100 帳本單位
	d, err := f.engine.CreateDeposit(ctx, 1, dec("50"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, d.Status)
	assertDecimal(t, "100", d.AmountInLedgerUnits, "ledger amount")

	d, b, err := f.engine.UpdateDepositStatus(ctx, 1, d.ID, domain.StatusPaid)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, d.Status)
	assertDecimal(t, "100", b.ActiveStake, "stake")

	// 重複送 PAID 不會重複入帳
	_, b, err = f.engine.UpdateDepositStatus(ctx, 1, d.ID, domain.StatusPaid)
	require.NoError(t, err)
	assertDecimal(t, "100", b.ActiveStake, "stake after repeat")

	_, b, err = f.engine.UpdateDepositStatus(ctx, 1, d.ID, domain.StatusError)
	require.NoError(t, err)
	assertDecimal(t, "0", b.ActiveStake, "stake after reversal")
	assert.Len(t, f.publisher.Events(), 2)
}

func TestUpdateDepositStatusNotFound(t *testing.T) {
	f := newFixture(t, usecase.ClampPolicyClamp)
	ctx := context.Background()

	_, _, err := f.engine.UpdateDepositStatus(ctx, 1, uuid.New(), domain.StatusPaid)
	assert.ErrorIs(t, err, domain.ErrDepositNotFound)

	d, err := f.engine.CreateDeposit(ctx, 1, dec("5"))
	require.NoError(t, err)
	_, _, err = f.engine.UpdateDepositStatus(ctx, 2, d.ID, domain.StatusPaid)
	assert.ErrorIs(t, err, domain.ErrDepositNotFound)

	_, _, err = f.engine.UpdateDepositStatus(ctx, 1, d.ID, domain.Status("SETTLED"))
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestCreateDepositRejectsNonPositive(t *testing.T) {
	f := newFixture(t, usecase.ClampPolicyClamp)
	_, err := f.engine.CreateDeposit(context.Background(), 1, dec("0"))
	assert.ErrorIs(t, err, domain.ErrAmountMustBePositive)
}

func TestWithdrawalLifecycle(t *testing.T) {
	f := newFixture(t, usecase.ClampPolicyClamp, seeded(1, "1000", "0"))
	ctx := context.Background()

	// 收益不足
	_, err := f.engine.CreateWithdrawal(ctx, 1, dec("1"), "addr-1")
	assert.ErrorIs(t, err, domain.ErrInsufficientRewards)

	// 兩天後收益 20，匯率 2: 10 -> 20
	f.clock.Advance(2 * domain.Day)
	w, err := f.engine.CreateWithdrawal(ctx, 1, dec("10"), "addr-1")
	require.NoError(t, err)
	assert.Equal(t, "addr-1", w.Address)
	assertDecimal(t, "20", w.AmountInLedgerUnits, "ledger amount")

	_, b, err := f.engine.UpdateWithdrawalStatus(ctx, 1, w.ID, domain.StatusPaid)
	require.NoError(t, err)
	// 先扣本金
	assertDecimal(t, "980", b.ActiveStake, "stake")
	assertDecimal(t, "20", b.Rewards, "rewards")

	_, b, err = f.engine.UpdateWithdrawalStatus(ctx, 1, w.ID, domain.StatusError)
	require.NoError(t, err)
	assertDecimal(t, "1000", b.ActiveStake, "stake restored")
	assertDecimal(t, "1020", b.TotalValue, "total")
}

func TestCreateWithdrawalMissingAccount(t *testing.T) {
	f := newFixture(t, usecase.ClampPolicyClamp)
	_, err := f.engine.CreateWithdrawal(context.Background(), 5, dec("1"), "addr")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestUpdateWithdrawalStatusNotFound(t *testing.T) {
	f := newFixture(t, usecase.ClampPolicyClamp, seeded(1, "10", "0"))
	_, _, err := f.engine.UpdateWithdrawalStatus(context.Background(), 1, uuid.New(), domain.StatusPaid)
	assert.ErrorIs(t, err, domain.ErrWithdrawalNotFound)
}

// 同一張單被並行標記為 PAID 時只能結算一次
func TestConcurrentStatusUpdatesSettleOnce(t *testing.T) {
	const workers = 50

	tests := []struct {
		name      string
		seed      []*domain.Balance
		update    func(ctx context.Context, f *fixture) (func() (*domain.Balance, error), error)
		wantStake string
		wantTotal string
	}{
		{
			name: "deposit",
			update: func(ctx context.Context, f *fixture) (func() (*domain.Balance, error), error) {
				d, err := f.engine.CreateDeposit(ctx, 1, dec("50"))
				if err != nil {
					return nil, err
				}
				return func() (*domain.Balance, error) {
					_, b, err := f.engine.UpdateDepositStatus(ctx, 1, d.ID, domain.StatusPaid)
					return b, err
				}, nil
			},
			wantStake: "100",
			wantTotal: "100",
		},
		{
			name: "withdrawal",
			seed: []*domain.Balance{seeded(1, "1000", "40")},
			update: func(ctx context.Context, f *fixture) (func() (*domain.Balance, error), error) {
				w, err := f.engine.CreateWithdrawal(ctx, 1, dec("10"), "addr-1")
				if err != nil {
					return nil, err
				}
				return func() (*domain.Balance, error) {
					_, b, err := f.engine.UpdateWithdrawalStatus(ctx, 1, w.ID, domain.StatusPaid)
					return b, err
				}, nil
			},
			wantStake: "980",
			wantTotal: "1020",
		},
	}

	for _, tt := range tests {
		for storeName, store := range newStores(t, tt.seed...) {
			t.Run(tt.name+"/"+storeName, func(t *testing.T) {
				f := newFixtureOn(t, store, usecase.ClampPolicyClamp)
				ctx := context.Background()

				markPaid, err := tt.update(ctx, f)
				require.NoError(t, err)

				var (
					wg   sync.WaitGroup
					mu   sync.Mutex
					errs []error
				)
				wg.Add(workers)
				for i := 0; i < workers; i++ {
					go func() {
						defer wg.Done()
						if _, err := markPaid(); err != nil {
							mu.Lock()
							errs = append(errs, err)
							mu.Unlock()
						}
					}()
				}
				wg.Wait()
				assert.Empty(t, errs)

				b, err := f.store.GetBalance(ctx, 1)
				require.NoError(t, err)
				assertDecimal(t, tt.wantStake, b.ActiveStake, "stake")
				assertDecimal(t, tt.wantTotal, b.TotalValue, "total")
				assert.True(t, b.Consistent())
				assert.Len(t, f.publisher.Events(), 1)
			})
		}
	}
}
