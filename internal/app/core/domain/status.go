package domain

import (
	"fmt"
	"strings"
)

// Status 存款單與提款單共用的狀態
type Status string

const (
	StatusProcessing Status = "PROCESSING"
	StatusPaid       Status = "PAID"
	StatusError      Status = "ERROR"
)

// ParseStatus 將字串轉為 Status (不分大小寫)
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusProcessing, StatusPaid, StatusError:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// Valid 是否為已知狀態
func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusPaid, StatusError:
		return true
	}
	return false
}

// IsPaid 是否為 PAID
func (s Status) IsPaid() bool {
	return s == StatusPaid
}

// Crossing 狀態轉換跨越 PAID 邊界的方向
type Crossing int8

const (
	// CrossingNone 未跨越 (包含自我轉換)
	CrossingNone Crossing = 0
	// CrossingIntoPaid 進入 PAID
	CrossingIntoPaid Crossing = 1
	// CrossingOutOfPaid 離開 PAID (沖銷)
	CrossingOutOfPaid Crossing = -1
)

// PaidCrossing 判斷 prev -> next 是否跨越 PAID 邊界
// 只有恰好一邊為 PAID 時才需要結算
func PaidCrossing(prev, next Status) Crossing {
	wasPaid, isPaid := prev.IsPaid(), next.IsPaid()
	switch {
	case wasPaid == isPaid:
		return CrossingNone
	case isPaid:
		return CrossingIntoPaid
	default:
		return CrossingOutOfPaid
	}
}
