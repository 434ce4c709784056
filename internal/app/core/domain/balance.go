package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Day 收益結算的時間單位
const Day = 24 * time.Hour

// Balance 帳戶餘額 (每個帳戶一筆)
// 不變式: TotalValue == ActiveStake + Rewards，且三者皆 >= 0
type Balance struct {
	AccountID int64
	// TotalValue: 本金 + 收益
	TotalValue decimal.Decimal
	// ActiveStake: 產生收益的質押本金
	ActiveStake decimal.Decimal
	// Rewards: 已累積、可提領的收益
	Rewards decimal.Decimal
	// LastYieldAt: 上次結算收益的時間，可能為空
	LastYieldAt *time.Time
	UpdatedAt   time.Time
	// Version: 樂觀鎖版本號，每次寫入 +1
	Version int64
}

// NewBalance 以首筆本金建立餘額
// LastYieldAt 從建立時間起算，之後的寫入更新 UpdatedAt 也不會吃掉未結算的天數
func NewBalance(accountID int64, principal decimal.Decimal, now time.Time) *Balance {
	principal = decimal.Max(principal, decimal.Zero)
	yieldAt := now
	return &Balance{
		AccountID:   accountID,
		TotalValue:  principal,
		ActiveStake: principal,
		Rewards:     decimal.Zero,
		LastYieldAt: &yieldAt,
		UpdatedAt:   now,
	}
}

// Clone 深拷貝，讓 unit of work 在 commit 前不影響共享狀態
func (b *Balance) Clone() *Balance {
	if b == nil {
		return nil
	}
	c := *b
	if b.LastYieldAt != nil {
		t := *b.LastYieldAt
		c.LastYieldAt = &t
	}
	return &c
}

// AnchorSource 收益起算時間的來源
type AnchorSource uint8

const (
	AnchorLastYield AnchorSource = iota + 1
	AnchorUpdatedAt
	AnchorNow
)

// AccrualAnchor 收益起算點
type AccrualAnchor struct {
	At     time.Time
	Source AnchorSource
}

// AccrualAnchor 依序取 LastYieldAt -> UpdatedAt -> now
func (b *Balance) AccrualAnchor(now time.Time) AccrualAnchor {
	switch {
	case b.LastYieldAt != nil && !b.LastYieldAt.IsZero():
		return AccrualAnchor{At: *b.LastYieldAt, Source: AnchorLastYield}
	case !b.UpdatedAt.IsZero():
		return AccrualAnchor{At: b.UpdatedAt, Source: AnchorUpdatedAt}
	default:
		return AccrualAnchor{At: now, Source: AnchorNow}
	}
}

// ElapsedDays 回傳 from 到 to 之間經過的完整天數 (無條件捨去)
// to 早於 from 時回傳 0
func ElapsedDays(from, to time.Time) int64 {
	if !to.After(from) {
		return 0
	}
	return int64(to.Sub(from) / Day)
}

// Accrue 依日利率結算收益
//
// 參數:
//
//	rate: 日利率 (例如 0.01)
//	now: 當前時間
//
// 回傳:
//
//	decimal.Decimal: 本次新增的收益
//	int64: 結算天數，0 代表未滿一天、餘額未變動
func (b *Balance) Accrue(rate decimal.Decimal, now time.Time) (decimal.Decimal, int64) {
	days := ElapsedDays(b.AccrualAnchor(now).At, now)
	if days < 1 {
		return decimal.Zero, 0
	}
	stake := decimal.Max(b.ActiveStake, decimal.Zero)
	reward := stake.Mul(rate).Mul(decimal.NewFromInt(days))

	b.Rewards = b.Rewards.Add(reward)
	b.TotalValue = b.TotalValue.Add(reward)
	yieldAt := now
	b.LastYieldAt = &yieldAt
	return reward, days
}

// ApplyPrincipalDelta 存款結算: 調整本金，收益不變
// 本金不足以沖銷時歸零，回傳被吃掉的差額 (shortfall)
func (b *Balance) ApplyPrincipalDelta(delta decimal.Decimal) (shortfall decimal.Decimal) {
	shortfall = decimal.Zero
	next := b.ActiveStake.Add(delta)
	if next.IsNegative() {
		shortfall = next.Neg()
		next = decimal.Zero
	}
	b.ActiveStake = next
	b.Rewards = decimal.Max(b.Rewards, decimal.Zero)
	b.TotalValue = b.ActiveStake.Add(b.Rewards)
	return shortfall
}

// Drawdown 提款出帳的扣款明細
type Drawdown struct {
	FromStake   decimal.Decimal
	FromRewards decimal.Decimal
	// Shortfall: 本金與收益都不足以支付的部分
	Shortfall decimal.Decimal
}

// DrawDown 提款結算: 先扣本金，不足再扣收益
func (b *Balance) DrawDown(amount decimal.Decimal) Drawdown {
	activeUsed := decimal.Min(decimal.Max(b.ActiveStake, decimal.Zero), amount)
	remaining := amount.Sub(activeUsed)
	rewardsUsed := decimal.Min(decimal.Max(b.Rewards, decimal.Zero), remaining)

	b.ActiveStake = decimal.Max(b.ActiveStake.Sub(activeUsed), decimal.Zero)
	b.Rewards = decimal.Max(b.Rewards.Sub(rewardsUsed), decimal.Zero)
	b.TotalValue = decimal.Max(b.ActiveStake.Add(b.Rewards), decimal.Zero)

	return Drawdown{
		FromStake:   activeUsed,
		FromRewards: rewardsUsed,
		Shortfall:   remaining.Sub(rewardsUsed),
	}
}

// Restore 提款沖銷: 金額全數回到本金 (收益不回補)
func (b *Balance) Restore(amount decimal.Decimal) {
	b.ActiveStake = b.ActiveStake.Add(amount)
	b.TotalValue = b.ActiveStake.Add(b.Rewards)
}

// Consistent 檢查不變式
func (b *Balance) Consistent() bool {
	if b.ActiveStake.IsNegative() || b.Rewards.IsNegative() || b.TotalValue.IsNegative() {
		return false
	}
	return b.TotalValue.Equal(b.ActiveStake.Add(b.Rewards))
}

// QuoteValue 以報價幣別計價的總值 (原系統的 totalUsd)
func (b *Balance) QuoteValue(price decimal.Decimal) decimal.Decimal {
	return b.TotalValue.Mul(price)
}
