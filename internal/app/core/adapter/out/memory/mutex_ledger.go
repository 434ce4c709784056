package memory

import (
	"context"
	"sync"

	"github.com/JoeShih716/go-yield-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-yield-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-yield-ledger/pkg/wal"
)

// MutexStore 以帳戶鎖實現的記憶體帳本
//
// 結構:
//
//	state: 餘額、快照與訂單資料 (含 WAL)
//	locks: 每個帳戶一把鎖，不同帳戶可並行
type MutexStore struct {
	*state
	locksMu sync.Mutex
	locks   map[int64]*sync.Mutex
}

// NewMutexStore 建立一個新的 MutexStore 實例
//
// 參數:
//
//	seed: 初始餘額 (通常由 MySQL 載入)
//	w: Write-Ahead Log 實例，可為 nil
//
// 回傳:
//
//	*MutexStore: MutexStore 實例
//	error: 初始化錯誤 (如 WAL 恢復失敗)
func NewMutexStore(seed []*domain.Balance, w *wal.WAL) (*MutexStore, error) {
	s, err := newState(seed, w)
	if err != nil {
		return nil, err
	}
	return &MutexStore{
		state: s,
		locks: make(map[int64]*sync.Mutex),
	}, nil
}

func (m *MutexStore) accountLock(accountID int64) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	lock, ok := m.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[accountID] = lock
	}
	return lock
}

// InAccount 持有帳戶鎖執行 fn，fn 成功才寫入 WAL 並套用
func (m *MutexStore) InAccount(ctx context.Context, accountID int64, fn func(uow usecase.UnitOfWork) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lock := m.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	uow := newUnitOfWork(m.state, accountID)
	if err := fn(uow); err != nil {
		return err
	}
	return m.commit(uow.record())
}

var _ usecase.Store = (*MutexStore)(nil)
