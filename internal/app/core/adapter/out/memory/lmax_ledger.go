package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/JoeShih716/go-yield-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-yield-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-yield-ledger/pkg/wal"
)

// ErrStoreStopped run loop 已結束
var ErrStoreStopped = errors.New("serial store stopped")

// workRequest 包裝 unit of work，讓 InAccount 可以等待結果
type workRequest struct {
	AccountID int64
	Fn        func(uow usecase.UnitOfWork) error
	Result    chan error // 讓 InAccount 等這個 channel
}

// SerialStore 單一 goroutine 依序處理所有 unit of work (LMAX 風格)
type SerialStore struct {
	*state
	// 輸送帶 負責接收請求
	requests chan *workRequest
	// Pool 減少 GC 壓力
	requestPool sync.Pool
	done        chan struct{}
	startOnce   sync.Once
}

// NewSerialStore 建立一個新的 SerialStore 實例，需呼叫 Start 才會開始處理
//
// 參數:
//
//	seed: 初始餘額
//	w: Write-Ahead Log 實例，可為 nil
//	buffer: 輸送帶長度
func NewSerialStore(seed []*domain.Balance, w *wal.WAL, buffer int) (*SerialStore, error) {
	s, err := newState(seed, w)
	if err != nil {
		return nil, err
	}
	if buffer <= 0 {
		buffer = 1000
	}
	return &SerialStore{
		state:    s,
		requests: make(chan *workRequest, buffer),
		requestPool: sync.Pool{
			New: func() interface{} {
				return &workRequest{Result: make(chan error, 1)}
			},
		},
		done: make(chan struct{}),
	}, nil
}

// Start 啟動核心引擎 (非同步)，ctx 結束時處理完剩下的請求後停止
func (l *SerialStore) Start(ctx context.Context) {
	l.startOnce.Do(func() {
		go l.run(ctx)
	})
}

// Done run loop 結束後關閉
func (l *SerialStore) Done() <-chan struct{} {
	return l.done
}

func (l *SerialStore) run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			// 收到關閉信號，把剩下的請求處理完
			l.drain()
			return
		case req := <-l.requests:
			l.process(req)
		}
	}
}

func (l *SerialStore) drain() {
	for {
		select {
		case req := <-l.requests:
			l.process(req)
		default:
			return
		}
	}
}

// process 執行單一 unit of work 並回傳結果
func (l *SerialStore) process(req *workRequest) {
	uow := newUnitOfWork(l.state, req.AccountID)
	if err := req.Fn(uow); err != nil {
		req.Result <- err
		return
	}
	req.Result <- l.commit(uow.record())
}

// InAccount 將 fn 放入輸送帶並等待結果
//
// InAccount(等待) -> Channel -> Run Loop -> fn -> WAL -> Map Update -> Result Channel -> InAccount(收到結果)
func (l *SerialStore) InAccount(ctx context.Context, accountID int64, fn func(uow usecase.UnitOfWork) error) error {
	req := l.requestPool.Get().(*workRequest)
	req.AccountID = accountID
	req.Fn = fn
	select {
	case <-req.Result:
	default:
	}

	select {
	case l.requests <- req:
	case <-ctx.Done():
		l.release(req)
		return ctx.Err()
	case <-l.done:
		l.release(req)
		return ErrStoreStopped
	}

	select {
	case err := <-req.Result:
		l.release(req)
		return err
	case <-l.done:
		// 已送出但 loop 已停止，req 可能仍被引用，不放回 pool
		select {
		case err := <-req.Result:
			return err
		default:
			return ErrStoreStopped
		}
	}
}

func (l *SerialStore) release(req *workRequest) {
	req.Fn = nil
	l.requestPool.Put(req)
}

var _ usecase.Store = (*SerialStore)(nil)
