package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JoeShih716/go-yield-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-yield-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-yield-ledger/pkg/mysql"
)

// sqlBalance 對應資料庫的 account_balances 表
type sqlBalance struct {
	AccountID   int64           `gorm:"primaryKey;autoIncrement:false"`
	TotalValue  decimal.Decimal `gorm:"type:decimal(36,18);not null"`
	ActiveStake decimal.Decimal `gorm:"type:decimal(36,18);not null"`
	Rewards     decimal.Decimal `gorm:"type:decimal(36,18);not null"`
	LastYieldAt *time.Time
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false"` // 由帳本引擎寫入
	Version     int64     `gorm:"not null;default:0"`
}

func (*sqlBalance) TableName() string {
	return "account_balances"
}

func (r *sqlBalance) toDomain() *domain.Balance {
	return &domain.Balance{
		AccountID:   r.AccountID,
		TotalValue:  r.TotalValue,
		ActiveStake: r.ActiveStake,
		Rewards:     r.Rewards,
		LastYieldAt: r.LastYieldAt,
		UpdatedAt:   r.UpdatedAt,
		Version:     r.Version,
	}
}

// sqlSnapshot 對應資料庫的 balance_snapshots 表
type sqlSnapshot struct {
	ID         int64           `gorm:"primaryKey;autoIncrement"`
	RefID      []byte          `gorm:"column:ref_id;type:binary(16);uniqueIndex"` // 對應 domain.Snapshot.ID
	AccountID  int64           `gorm:"index:idx_snapshot_account_time,priority:1"`
	TotalValue decimal.Decimal `gorm:"type:decimal(36,18);not null"`
	CapturedAt time.Time       `gorm:"index:idx_snapshot_account_time,priority:2"`
}

func (*sqlSnapshot) TableName() string {
	return "balance_snapshots"
}

// sqlOrder 存款單與提款單共用欄位
type sqlOrder struct {
	ID                  []byte          `gorm:"primaryKey;type:binary(16)"`
	AccountID           int64           `gorm:"index"`
	AmountRequested     decimal.Decimal `gorm:"type:decimal(36,18);not null"`
	AmountInLedgerUnits decimal.Decimal `gorm:"type:decimal(36,18);not null"`
	Price               decimal.Decimal `gorm:"type:decimal(36,18);not null"`
	Status              string          `gorm:"size:16;not null"`
	CreatedAt           time.Time       `gorm:"autoCreateTime:false"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime:false"`
}

func newSQLOrder(o domain.Order) sqlOrder {
	return sqlOrder{
		ID:                  o.ID[:],
		AccountID:           o.AccountID,
		AmountRequested:     o.AmountRequested,
		AmountInLedgerUnits: o.AmountInLedgerUnits,
		Price:               o.Price,
		Status:              string(o.Status),
		CreatedAt:           o.CreatedAt,
		UpdatedAt:           o.UpdatedAt,
	}
}

func (r *sqlOrder) toDomain() (domain.Order, error) {
	id, err := uuid.FromBytes(r.ID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("decode order id: %w", err)
	}
	status, err := domain.ParseStatus(r.Status)
	if err != nil {
		return domain.Order{}, err
	}
	return domain.Order{
		ID:                  id,
		AccountID:           r.AccountID,
		AmountRequested:     r.AmountRequested,
		AmountInLedgerUnits: r.AmountInLedgerUnits,
		Price:               r.Price,
		Status:              status,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}, nil
}

// sqlDeposit 對應資料庫的 deposits 表
type sqlDeposit struct {
	sqlOrder
}

func (*sqlDeposit) TableName() string {
	return "deposits"
}

// sqlWithdrawal 對應資料庫的 withdrawals 表
type sqlWithdrawal struct {
	sqlOrder
	Address string `gorm:"size:128"`
}

func (*sqlWithdrawal) TableName() string {
	return "withdrawals"
}

// MySQLStore 以 MySQL 交易實作帳戶範圍的 unit of work
// 餘額列以 SELECT ... FOR UPDATE 鎖定，寫入時再以 version 欄位確認沒有被覆寫
type MySQLStore struct {
	client *mysql.Client
}

func NewMySQLStore(client *mysql.Client) *MySQLStore {
	return &MySQLStore{
		client: client,
	}
}

// Migrate 建立或更新資料表
func (s *MySQLStore) Migrate(ctx context.Context) error {
	return s.client.DB().WithContext(ctx).AutoMigrate(
		&sqlBalance{},
		&sqlSnapshot{},
		&sqlDeposit{},
		&sqlWithdrawal{},
	)
}

// InnoDB 鎖衝突: 交易被選為 deadlock 犧牲者，或等鎖逾時
const (
	errLockDeadlock    = 1213
	errLockWaitTimeout = 1205
)

// InAccount 在一個資料庫交易內執行 fn，fn 回傳錯誤時 rollback
// 鎖衝突視為 domain.ErrConcurrentUpdate，由引擎重試
func (s *MySQLStore) InAccount(ctx context.Context, accountID int64, fn func(uow usecase.UnitOfWork) error) error {
	err := s.client.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&unitOfWork{tx: tx, accountID: accountID})
	})
	return translateLockError(err)
}

// translateLockError 兩個交易同時對不存在的帳戶 SELECT ... FOR UPDATE 會各自拿到 gap lock，
// 之後的 INSERT 會被 InnoDB 以 deadlock 中止其中一方
func translateLockError(err error) error {
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) && (myErr.Number == errLockDeadlock || myErr.Number == errLockWaitTimeout) {
		return fmt.Errorf("%w: %s", domain.ErrConcurrentUpdate, myErr.Message)
	}
	return err
}

// GetBalance 取得帳戶餘額
func (s *MySQLStore) GetBalance(ctx context.Context, accountID int64) (*domain.Balance, error) {
	var row sqlBalance
	err := s.client.DB().WithContext(ctx).Where("account_id = ?", accountID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// AccountIDs 列出所有帳戶 ID (遞增)
func (s *MySQLStore) AccountIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.client.DB().WithContext(ctx).
		Model(&sqlBalance{}).
		Order("account_id").
		Pluck("account_id", &ids).Error
	return ids, err
}

// Snapshots 依時間遞增回傳 since 之後的快照
func (s *MySQLStore) Snapshots(ctx context.Context, accountID int64, since time.Time) ([]domain.Snapshot, error) {
	var rows []sqlSnapshot
	err := s.client.DB().WithContext(ctx).
		Where("account_id = ? AND captured_at >= ?", accountID, since).
		Order("captured_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Snapshot, 0, len(rows))
	for _, r := range rows {
		id, err := uuid.FromBytes(r.RefID)
		if err != nil {
			return nil, fmt.Errorf("decode snapshot id: %w", err)
		}
		out = append(out, domain.Snapshot{
			ID:         id,
			AccountID:  r.AccountID,
			TotalValue: r.TotalValue,
			CapturedAt: r.CapturedAt,
		})
	}
	return out, nil
}

// LoadAllBalances 載入所有帳戶餘額 (記憶體帳本啟動時使用)
func (s *MySQLStore) LoadAllBalances(ctx context.Context) ([]*domain.Balance, error) {
	var rows []sqlBalance
	if err := s.client.DB().WithContext(ctx).Order("account_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Balance, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

// unitOfWork 綁定在一個 gorm 交易上
type unitOfWork struct {
	tx        *gorm.DB
	accountID int64
	// exists 交易內已讀到餘額列，SaveBalance 據此決定 UPDATE 或 INSERT
	exists bool
}

// Balance 悲觀鎖讀取餘額
func (u *unitOfWork) Balance(ctx context.Context) (*domain.Balance, error) {
	var row sqlBalance
	err := u.tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_id = ?", u.accountID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.exists = true
	return row.toDomain(), nil
}

// SaveBalance 交易內沒讀到餘額列時新增，否則以 version 條件更新
// 外部建立的列 version 可能是 0，仍走 UPDATE
func (u *unitOfWork) SaveBalance(ctx context.Context, b *domain.Balance) error {
	if b.AccountID != u.accountID {
		return fmt.Errorf("balance of account %d saved in unit of account %d", b.AccountID, u.accountID)
	}
	if !u.exists {
		row := sqlBalance{
			AccountID:   b.AccountID,
			TotalValue:  b.TotalValue,
			ActiveStake: b.ActiveStake,
			Rewards:     b.Rewards,
			LastYieldAt: b.LastYieldAt,
			UpdatedAt:   b.UpdatedAt,
			Version:     1,
		}
		err := u.tx.Create(&row).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrConcurrentUpdate
		}
		if err != nil {
			return err
		}
		b.Version = 1
		u.exists = true
		return nil
	}

	res := u.tx.Model(&sqlBalance{}).
		Where("account_id = ? AND version = ?", b.AccountID, b.Version).
		Updates(map[string]interface{}{
			"total_value":   b.TotalValue,
			"active_stake":  b.ActiveStake,
			"rewards":       b.Rewards,
			"last_yield_at": b.LastYieldAt,
			"updated_at":    b.UpdatedAt,
			"version":       gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrConcurrentUpdate
	}
	b.Version++
	return nil
}

func (u *unitOfWork) AppendSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	row := sqlSnapshot{
		RefID:      snap.ID[:],
		AccountID:  snap.AccountID,
		TotalValue: snap.TotalValue,
		CapturedAt: snap.CapturedAt,
	}
	return u.tx.Create(&row).Error
}

// Deposit 鎖定並讀取存款單，避免同一張單被並行結算兩次
func (u *unitOfWork) Deposit(ctx context.Context, id uuid.UUID) (*domain.Deposit, error) {
	var row sqlDeposit
	err := u.tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id[:]).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrDepositNotFound
	}
	if err != nil {
		return nil, err
	}
	o, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &domain.Deposit{Order: o}, nil
}

func (u *unitOfWork) SaveDeposit(ctx context.Context, d *domain.Deposit) error {
	row := sqlDeposit{sqlOrder: newSQLOrder(d.Order)}
	return u.tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

// Withdrawal 鎖定並讀取提款單
func (u *unitOfWork) Withdrawal(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error) {
	var row sqlWithdrawal
	err := u.tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id[:]).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrWithdrawalNotFound
	}
	if err != nil {
		return nil, err
	}
	o, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &domain.Withdrawal{Order: o, Address: row.Address}, nil
}

func (u *unitOfWork) SaveWithdrawal(ctx context.Context, w *domain.Withdrawal) error {
	row := sqlWithdrawal{sqlOrder: newSQLOrder(w.Order), Address: w.Address}
	return u.tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

var (
	_ usecase.Store      = (*MySQLStore)(nil)
	_ usecase.UnitOfWork = (*unitOfWork)(nil)
)
