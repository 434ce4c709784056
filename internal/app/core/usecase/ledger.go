package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-yield-ledger/internal/app/core/domain"
)

// Store 是帳本的持久層介面
// 所有異動都必須透過 InAccount 在同一個 unit of work 內完成
type Store interface {
	// InAccount 以帳戶為範圍執行一個原子 unit of work
	// fn 回傳錯誤時，所有寫入都不得生效
	InAccount(ctx context.Context, accountID int64, fn func(uow UnitOfWork) error) error
	// GetBalance 唯讀查詢，找不到回傳 domain.ErrAccountNotFound
	GetBalance(ctx context.Context, accountID int64) (*domain.Balance, error)
	// AccountIDs 列出所有有餘額的帳戶 (收益批次使用)
	AccountIDs(ctx context.Context) ([]int64, error)
	// Snapshots 依時間遞增回傳 since 之後的快照
	Snapshots(ctx context.Context, accountID int64, since time.Time) ([]domain.Snapshot, error)
}

// UnitOfWork 單一帳戶的交易範圍
type UnitOfWork interface {
	// Balance 取得 (並鎖定) 餘額，不存在回傳 nil, nil
	Balance(ctx context.Context) (*domain.Balance, error)
	// SaveBalance 新增或更新餘額
	SaveBalance(ctx context.Context, b *domain.Balance) error
	// AppendSnapshot 寫入快照
	AppendSnapshot(ctx context.Context, s *domain.Snapshot) error

	Deposit(ctx context.Context, id uuid.UUID) (*domain.Deposit, error)
	SaveDeposit(ctx context.Context, d *domain.Deposit) error
	Withdrawal(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error)
	SaveWithdrawal(ctx context.Context, w *domain.Withdrawal) error
}

// Clock 時間來源
type Clock interface {
	Now() time.Time
}

// SystemClock 使用系統時間 (UTC)
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// PriceLookup 來源幣別對帳本單位的匯率
type PriceLookup interface {
	Price(ctx context.Context) (decimal.Decimal, error)
}

// StaticPrice 固定匯率
type StaticPrice decimal.Decimal

func (p StaticPrice) Price(context.Context) (decimal.Decimal, error) {
	return decimal.Decimal(p), nil
}

// EventPublisher 發送餘額異動事件
type EventPublisher interface {
	Publish(ctx context.Context, event domain.BalanceChanged) error
}

// NopPublisher 不發送任何事件
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, domain.BalanceChanged) error { return nil }
