package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-yield-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-yield-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-yield-ledger/pkg/wal"
)

// walRecord 一個 unit of work 的所有寫入，整筆寫入 WAL 後才套用到記憶體
type walRecord struct {
	Sequence    uint64              `json:"seq"`
	AccountID   int64               `json:"account_id"`
	Balance     *domain.Balance     `json:"balance,omitempty"`
	Snapshots   []domain.Snapshot   `json:"snapshots,omitempty"`
	Deposits    []domain.Deposit    `json:"deposits,omitempty"`
	Withdrawals []domain.Withdrawal `json:"withdrawals,omitempty"`
	CommittedAt int64               `json:"committed_at"`
}

func (r *walRecord) empty() bool {
	return r.Balance == nil && len(r.Snapshots) == 0 && len(r.Deposits) == 0 && len(r.Withdrawals) == 0
}

// state 帳本的記憶體狀態，MutexStore 與 SerialStore 共用
type state struct {
	mu          sync.RWMutex
	seq         uint64
	balances    map[int64]*domain.Balance
	snapshots   map[int64][]domain.Snapshot
	deposits    map[uuid.UUID]*domain.Deposit
	withdrawals map[uuid.UUID]*domain.Withdrawal
	// Write-Ahead Logging，可為 nil
	wal *wal.WAL
}

func newState(seed []*domain.Balance, w *wal.WAL) (*state, error) {
	s := &state{
		balances:    make(map[int64]*domain.Balance, len(seed)),
		snapshots:   make(map[int64][]domain.Snapshot),
		deposits:    make(map[uuid.UUID]*domain.Deposit),
		withdrawals: make(map[uuid.UUID]*domain.Withdrawal),
		wal:         w,
	}
	for _, b := range seed {
		s.balances[b.AccountID] = b.Clone()
	}
	if err := s.recoverFromWAL(); err != nil {
		return nil, err
	}
	return s, nil
}

// recoverFromWAL 從 WAL 檔案恢復帳本狀態
// 只在建構時呼叫，無需 Lock (單執行緒)
func (s *state) recoverFromWAL() error {
	if s.wal == nil {
		return nil
	}
	return s.wal.ReadAll(func(jsonRaw []byte) error {
		var rec walRecord
		if err := json.Unmarshal(jsonRaw, &rec); err != nil {
			return fmt.Errorf("decode wal record: %w", err)
		}
		s.applyLocked(&rec)
		if rec.Sequence > s.seq {
			s.seq = rec.Sequence
		}
		return nil
	})
}

// commit 先寫 WAL 再更新記憶體 (Critical Path)
func (s *state) commit(rec *walRecord) error {
	if rec.empty() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Balance != nil {
		if cur, ok := s.balances[rec.AccountID]; ok && cur.Version != rec.Balance.Version-1 {
			return domain.ErrConcurrentUpdate
		}
	}

	s.seq++
	rec.Sequence = s.seq
	rec.CommittedAt = time.Now().UnixNano()
	if s.wal != nil {
		if err := s.wal.Write(rec); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrWALWriteFailed, err)
		}
	}
	s.applyLocked(rec)
	return nil
}

func (s *state) applyLocked(rec *walRecord) {
	if rec.Balance != nil {
		s.balances[rec.AccountID] = rec.Balance.Clone()
	}
	if len(rec.Snapshots) > 0 {
		s.snapshots[rec.AccountID] = append(s.snapshots[rec.AccountID], rec.Snapshots...)
	}
	for i := range rec.Deposits {
		d := rec.Deposits[i]
		s.deposits[d.ID] = &d
	}
	for i := range rec.Withdrawals {
		w := rec.Withdrawals[i]
		s.withdrawals[w.ID] = &w
	}
}

// GetBalance 取得帳戶餘額 (副本)
func (s *state) GetBalance(ctx context.Context, accountID int64) (*domain.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.balances[accountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return b.Clone(), nil
}

// AccountIDs 回傳所有帳戶 ID (遞增)
func (s *state) AccountIDs(ctx context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.balances))
	for id := range s.balances {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Snapshots 回傳 since 之後 (含) 的快照
func (s *state) Snapshots(ctx context.Context, accountID int64, since time.Time) ([]domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Snapshot, 0)
	for _, snap := range s.snapshots[accountID] {
		if !snap.CapturedAt.Before(since) {
			out = append(out, snap)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CapturedAt.Before(out[j].CapturedAt) })
	return out, nil
}

// Balances 回傳所有餘額的副本
func (s *state) Balances() []*domain.Balance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Balance, 0, len(s.balances))
	for _, b := range s.balances {
		out = append(out, b.Clone())
	}
	return out
}

// unitOfWork 暫存單一帳戶的寫入，commit 前對其他讀取者不可見
type unitOfWork struct {
	state       *state
	accountID   int64
	balance     *domain.Balance
	snapshots   []domain.Snapshot
	deposits    map[uuid.UUID]domain.Deposit
	withdrawals map[uuid.UUID]domain.Withdrawal
}

func newUnitOfWork(s *state, accountID int64) *unitOfWork {
	return &unitOfWork{
		state:       s,
		accountID:   accountID,
		deposits:    make(map[uuid.UUID]domain.Deposit),
		withdrawals: make(map[uuid.UUID]domain.Withdrawal),
	}
}

func (u *unitOfWork) Balance(ctx context.Context) (*domain.Balance, error) {
	if u.balance != nil {
		return u.balance.Clone(), nil
	}
	b, err := u.state.GetBalance(ctx, u.accountID)
	if err == domain.ErrAccountNotFound {
		return nil, nil
	}
	return b, err
}

func (u *unitOfWork) currentVersion() int64 {
	if u.balance != nil {
		return u.balance.Version
	}
	u.state.mu.RLock()
	defer u.state.mu.RUnlock()
	if b, ok := u.state.balances[u.accountID]; ok {
		return b.Version
	}
	return 0
}

func (u *unitOfWork) SaveBalance(ctx context.Context, b *domain.Balance) error {
	if b.AccountID != u.accountID {
		return fmt.Errorf("balance of account %d saved in unit of account %d", b.AccountID, u.accountID)
	}
	if b.Version != u.currentVersion() {
		return domain.ErrConcurrentUpdate
	}
	b.Version++
	u.balance = b.Clone()
	return nil
}

func (u *unitOfWork) AppendSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	if snap.AccountID != u.accountID {
		return fmt.Errorf("snapshot of account %d appended in unit of account %d", snap.AccountID, u.accountID)
	}
	u.snapshots = append(u.snapshots, *snap)
	return nil
}

func (u *unitOfWork) Deposit(ctx context.Context, id uuid.UUID) (*domain.Deposit, error) {
	if d, ok := u.deposits[id]; ok {
		return &d, nil
	}
	u.state.mu.RLock()
	defer u.state.mu.RUnlock()
	d, ok := u.state.deposits[id]
	if !ok {
		return nil, domain.ErrDepositNotFound
	}
	c := *d
	return &c, nil
}

func (u *unitOfWork) SaveDeposit(ctx context.Context, d *domain.Deposit) error {
	u.deposits[d.ID] = *d
	return nil
}

func (u *unitOfWork) Withdrawal(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error) {
	if w, ok := u.withdrawals[id]; ok {
		return &w, nil
	}
	u.state.mu.RLock()
	defer u.state.mu.RUnlock()
	w, ok := u.state.withdrawals[id]
	if !ok {
		return nil, domain.ErrWithdrawalNotFound
	}
	c := *w
	return &c, nil
}

func (u *unitOfWork) SaveWithdrawal(ctx context.Context, w *domain.Withdrawal) error {
	u.withdrawals[w.ID] = *w
	return nil
}

// record 將暫存的寫入整理成一筆 WAL 記錄
func (u *unitOfWork) record() *walRecord {
	rec := &walRecord{
		AccountID: u.accountID,
		Balance:   u.balance,
		Snapshots: u.snapshots,
	}
	for _, d := range u.deposits {
		rec.Deposits = append(rec.Deposits, d)
	}
	for _, w := range u.withdrawals {
		rec.Withdrawals = append(rec.Withdrawals, w)
	}
	return rec
}

var _ usecase.UnitOfWork = (*unitOfWork)(nil)
