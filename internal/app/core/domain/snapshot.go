package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Snapshot 餘額快照，只寫入不修改，供歷史走勢圖使用
type Snapshot struct {
	ID         uuid.UUID
	AccountID  int64
	TotalValue decimal.Decimal
	CapturedAt time.Time
}

// NewSnapshot 依目前餘額建立快照
func NewSnapshot(b *Balance, at time.Time) *Snapshot {
	return &Snapshot{
		ID:         uuid.New(),
		AccountID:  b.AccountID,
		TotalValue: b.TotalValue,
		CapturedAt: at,
	}
}
