package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-yield-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-yield-ledger/internal/app/core/metrics"
	"github.com/JoeShih716/go-yield-ledger/pkg/logger"
)

// ClampPolicy 結果會變成負數時的處理方式
type ClampPolicy string

const (
	// ClampPolicyClamp 歸零並記錄警告 (與舊系統行為一致)
	ClampPolicyClamp ClampPolicy = "clamp"
	// ClampPolicyReject 直接回傳錯誤並 rollback
	ClampPolicyReject ClampPolicy = "reject"
)

// ParseClampPolicy 空字串視為 clamp
func ParseClampPolicy(s string) (ClampPolicy, error) {
	switch p := ClampPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", ClampPolicyClamp:
		return ClampPolicyClamp, nil
	case ClampPolicyReject:
		return p, nil
	default:
		return "", fmt.Errorf("unknown clamp policy %q", s)
	}
}

// Config 帳本引擎設定
type Config struct {
	// DailyRate 日利率，必須 > 0
	DailyRate   decimal.Decimal
	ClampPolicy ClampPolicy
	// MaxRetries 版本衝突時的重試次數
	MaxRetries int
}

// LedgerEngine 是核心業務邏輯層: 收益結算、存款結算、提款結算
type LedgerEngine struct {
	store     Store
	cfg       Config
	clock     Clock
	price     PriceLookup
	publisher EventPublisher
	log       *logger.Logger
}

// Option 定義 LedgerEngine 的配置選項函數
type Option func(*LedgerEngine)

// WithClock 設定時間來源
func WithClock(c Clock) Option {
	return func(e *LedgerEngine) { e.clock = c }
}

// WithPriceLookup 設定匯率來源
func WithPriceLookup(p PriceLookup) Option {
	return func(e *LedgerEngine) { e.price = p }
}

// WithPublisher 設定事件發送器
func WithPublisher(p EventPublisher) Option {
	return func(e *LedgerEngine) { e.publisher = p }
}

// WithLogger 設定 Logger
func WithLogger(l *logger.Logger) Option {
	return func(e *LedgerEngine) { e.log = l }
}

// NewLedgerEngine 建立帳本引擎
//
// 參數:
//
//	store: 持久層
//	cfg: 引擎設定
//	opts: 可選的 Clock / PriceLookup / EventPublisher / Logger
//
// 回傳:
//
//	*LedgerEngine: 引擎實例
//	error: 設定錯誤
func NewLedgerEngine(store Store, cfg Config, opts ...Option) (*LedgerEngine, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if !cfg.DailyRate.IsPositive() {
		return nil, fmt.Errorf("daily rate must be positive, got %s", cfg.DailyRate)
	}
	if cfg.ClampPolicy == "" {
		cfg.ClampPolicy = ClampPolicyClamp
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	e := &LedgerEngine{
		store:     store,
		cfg:       cfg,
		clock:     SystemClock{},
		price:     StaticPrice(decimal.NewFromInt(1)),
		publisher: NopPublisher{},
		log:       logger.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// inAccount 在帳戶範圍的 unit of work 內執行 fn，版本衝突時重試
// fn 可能被執行多次，輸出變數必須在 fn 開頭重設
func (e *LedgerEngine) inAccount(ctx context.Context, accountID int64, fn func(uow UnitOfWork) error) error {
	var err error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		err = e.store.InAccount(ctx, accountID, fn)
		if !errors.Is(err, domain.ErrConcurrentUpdate) {
			return err
		}
		metrics.RecordConflictRetry()
		e.log.WithField("account_id", accountID).
			WithField("attempt", attempt+1).
			Debug("version conflict, retrying unit of work")
	}
	return err
}

// persist 寫入餘額並附加快照 (同一個 unit of work)
func (e *LedgerEngine) persist(ctx context.Context, uow UnitOfWork, b *domain.Balance, now time.Time) error {
	b.UpdatedAt = now
	if err := uow.SaveBalance(ctx, b); err != nil {
		return err
	}
	return uow.AppendSnapshot(ctx, domain.NewSnapshot(b, now))
}

// finish commit 之後: 記錄 metrics、clamp 警告並發送事件
func (e *LedgerEngine) finish(ctx context.Context, kind domain.TransactionType, ev *domain.BalanceChanged, err error) {
	label := kind.String()
	switch {
	case err != nil:
		outcome := metrics.OutcomeError
		if isRejection(err) {
			outcome = metrics.OutcomeRejected
		}
		metrics.RecordSettlement(label, outcome)
		return
	case ev == nil:
		metrics.RecordSettlement(label, metrics.OutcomeNoop)
		return
	}

	metrics.RecordSettlement(label, metrics.OutcomeApplied)
	if kind == domain.TransactionTypeAccrual {
		metrics.RecordAccrual(ev.Delta.InexactFloat64())
	}
	if ev.Clamped {
		metrics.RecordClamp(label)
		e.log.WithField("account_id", ev.AccountID).
			WithField("kind", label).
			WithField("reference_id", ev.ReferenceID).
			WithField("shortfall", ev.Shortfall.String()).
			Warn("balance floored at zero, value dropped")
	}

	if perr := e.publisher.Publish(ctx, *ev); perr != nil {
		metrics.RecordPublishFailure()
		e.log.WithError(perr).
			WithField("account_id", ev.AccountID).
			WithField("event_id", ev.EventID.String()).
			Warn("publish balance event failed")
	}
}

func isRejection(err error) bool {
	return errors.Is(err, domain.ErrInsufficientPrincipal) ||
		errors.Is(err, domain.ErrInsufficientFunds) ||
		errors.Is(err, domain.ErrInsufficientRewards) ||
		errors.Is(err, domain.ErrAmountMustBePositive) ||
		errors.Is(err, domain.ErrInvalidStatus)
}

// Balance 查詢餘額，查詢前先結算收益 (pull-based)
func (e *LedgerEngine) Balance(ctx context.Context, accountID int64) (*domain.Balance, error) {
	b, err := e.AccrueYield(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, domain.ErrAccountNotFound
	}
	return b, nil
}

// Snapshots 回傳 since 之後的歷史快照
func (e *LedgerEngine) Snapshots(ctx context.Context, accountID int64, since time.Time) ([]domain.Snapshot, error) {
	return e.store.Snapshots(ctx, accountID, since)
}

// Price 目前匯率
func (e *LedgerEngine) Price(ctx context.Context) (decimal.Decimal, error) {
	p, err := e.price.Price(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price lookup: %w", err)
	}
	if !p.IsPositive() {
		return decimal.Zero, domain.ErrInvalidPrice
	}
	return p, nil
}
