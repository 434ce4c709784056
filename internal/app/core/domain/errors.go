package domain

import "errors"

var (
	// ErrAmountMustBePositive 金額必須為正數
	ErrAmountMustBePositive = errors.New("amount must be positive")

	// ErrInsufficientRewards 提款金額超過可提領的收益
	ErrInsufficientRewards = errors.New("insufficient rewards")

	// ErrInsufficientPrincipal 沖銷金額超過目前質押本金 (clamp_policy=reject)
	ErrInsufficientPrincipal = errors.New("insufficient principal")

	// ErrInsufficientFunds 出款金額超過本金與收益總和 (clamp_policy=reject)
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAccountNotFound 找不到帳戶餘額
	ErrAccountNotFound = errors.New("account not found")

	// ErrDepositNotFound 找不到存款單
	ErrDepositNotFound = errors.New("deposit not found")

	// ErrWithdrawalNotFound 找不到提款單
	ErrWithdrawalNotFound = errors.New("withdrawal not found")

	// ErrInvalidStatus 未知的狀態
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidPrice 匯率必須為正數
	ErrInvalidPrice = errors.New("price must be positive")

	// ErrConcurrentUpdate 樂觀鎖版本衝突，呼叫端可重試
	ErrConcurrentUpdate = errors.New("concurrent update detected")

	// ErrWALWriteFailed WAL 寫入失敗
	ErrWALWriteFailed = errors.New("wal write failed")
)
