package domain

import "fmt"

// TransactionType 帳本異動類型
// 為了節省記憶體，使用 uint8
type TransactionType uint8

const (
	// 每日收益
	TransactionTypeAccrual TransactionType = 1
	// 存款
	TransactionTypeDeposit TransactionType = 2
	// 提款
	TransactionTypeWithdraw TransactionType = 3
	// 人工入帳
	TransactionTypeCredit TransactionType = 4
)

// String 回傳 metrics label 與事件欄位使用的名稱
func (t TransactionType) String() string {
	switch t {
	case TransactionTypeAccrual:
		return "accrual"
	case TransactionTypeDeposit:
		return "deposit"
	case TransactionTypeWithdraw:
		return "withdrawal"
	case TransactionTypeCredit:
		return "credit"
	default:
		return "unknown"
	}
}

// MarshalText 讓 JSON (事件、WAL) 以名稱輸出
func (t TransactionType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText 解析 MarshalText 的輸出
func (t *TransactionType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "accrual":
		*t = TransactionTypeAccrual
	case "deposit":
		*t = TransactionTypeDeposit
	case "withdrawal":
		*t = TransactionTypeWithdraw
	case "credit":
		*t = TransactionTypeCredit
	default:
		return fmt.Errorf("unknown transaction type %q", text)
	}
	return nil
}
