package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order 存款單與提款單的共同欄位
type Order struct {
	ID        uuid.UUID
	AccountID int64
	// AmountRequested: 使用者輸入的金額 (來源幣別)
	AmountRequested decimal.Decimal
	// AmountInLedgerUnits: 建立時依匯率換算，建立後不可變
	AmountInLedgerUnits decimal.Decimal
	// Price: 建立時使用的匯率
	Price     decimal.Decimal
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

func newOrder(accountID int64, requested, price decimal.Decimal, now time.Time) (Order, error) {
	if !requested.IsPositive() {
		return Order{}, ErrAmountMustBePositive
	}
	if !price.IsPositive() {
		return Order{}, ErrInvalidPrice
	}
	return Order{
		ID:                  uuid.New(),
		AccountID:           accountID,
		AmountRequested:     requested,
		AmountInLedgerUnits: requested.Mul(price),
		Price:               price,
		Status:              StatusProcessing,
		CreatedAt:           now,
		UpdatedAt:           now,
	}, nil
}

// Transition 變更狀態並回傳原狀態
// 任意狀態間皆可轉換，是否結算由 PaidCrossing 決定
func (o *Order) Transition(next Status, now time.Time) (Status, error) {
	if !next.Valid() {
		return o.Status, ErrInvalidStatus
	}
	prev := o.Status
	if prev == next {
		return prev, nil
	}
	o.Status = next
	o.UpdatedAt = now
	return prev, nil
}

// Deposit 存款單
type Deposit struct {
	Order
}

// NewDeposit 建立 PROCESSING 狀態的存款單
func NewDeposit(accountID int64, requested, price decimal.Decimal, now time.Time) (*Deposit, error) {
	o, err := newOrder(accountID, requested, price, now)
	if err != nil {
		return nil, err
	}
	return &Deposit{Order: o}, nil
}

// Withdrawal 提款單
type Withdrawal struct {
	Order
	// Address: 出款地址，核心不驗證
	Address string
}

// NewWithdrawal 建立 PROCESSING 狀態的提款單
func NewWithdrawal(accountID int64, requested, price decimal.Decimal, address string, now time.Time) (*Withdrawal, error) {
	o, err := newOrder(accountID, requested, price, now)
	if err != nil {
		return nil, err
	}
	return &Withdrawal{Order: o, Address: address}, nil
}
