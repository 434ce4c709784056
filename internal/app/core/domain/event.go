package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BalanceChanged 餘額異動事件，在 unit of work commit 後發送
type BalanceChanged struct {
	EventID     uuid.UUID       `json:"event_id"`
	AccountID   int64           `json:"account_id"`
	Cause       TransactionType `json:"cause"`
	ReferenceID string          `json:"reference_id,omitempty"`
	Delta       decimal.Decimal `json:"delta"`
	TotalValue  decimal.Decimal `json:"total_value"`
	ActiveStake decimal.Decimal `json:"active_stake"`
	Rewards     decimal.Decimal `json:"rewards"`
	// Clamped: 發生歸零截斷時為 true，Shortfall 為被吃掉的金額
	Clamped    bool            `json:"clamped"`
	Shortfall  decimal.Decimal `json:"shortfall"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewBalanceChanged 依異動後的餘額建立事件
func NewBalanceChanged(b *Balance, cause TransactionType, ref string, delta, shortfall decimal.Decimal, at time.Time) BalanceChanged {
	return BalanceChanged{
		EventID:     uuid.New(),
		AccountID:   b.AccountID,
		Cause:       cause,
		ReferenceID: ref,
		Delta:       delta,
		TotalValue:  b.TotalValue,
		ActiveStake: b.ActiveStake,
		Rewards:     b.Rewards,
		Clamped:     shortfall.IsPositive(),
		Shortfall:   shortfall,
		OccurredAt:  at,
	}
}
