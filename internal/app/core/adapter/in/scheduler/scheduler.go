package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/JoeShih716/go-yield-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-yield-ledger/pkg/logger"
)

// Sweeper 收益批次
type Sweeper interface {
	SweepAccruals(ctx context.Context) (usecase.SweepReport, error)
}

// AccrualScheduler 依 cron 表達式定期執行收益批次
// 上一輪還沒跑完時跳過本輪，panic 會被 recover 並記錄
type AccrualScheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	log     *logrus.Entry
	ctx     context.Context
}

// New 建立排程器，schedule 支援標準 5 欄位與 @daily / @every 1h 等描述
func New(schedule string, sweeper Sweeper, log *logger.Logger) (*AccrualScheduler, error) {
	if schedule == "" {
		return nil, errors.New("empty sweep schedule")
	}
	if log == nil {
		log = logger.Discard()
	}
	entry := log.Component("scheduler")
	cl := cronLogger{entry: entry}
	s := &AccrualScheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		sweeper: sweeper,
		log:     entry,
		ctx:     context.Background(),
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.RunOnce(s.ctx) }); err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start 開始排程，ctx 會傳給每次的收益批次
func (s *AccrualScheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.log.WithField("next", e.Next.Format(time.RFC3339)).Info("accrual sweep scheduled")
	}
}

// Stop 停止排程並等待執行中的批次結束
func (s *AccrualScheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce 立即執行一次收益批次
func (s *AccrualScheduler) RunOnce(ctx context.Context) usecase.SweepReport {
	report, err := s.sweeper.SweepAccruals(ctx)
	if err != nil {
		s.log.WithError(err).
			WithField("failed", report.Failed).
			Error("accrual sweep finished with errors")
	}
	return report
}

// cronLogger 將 cron 的 log 轉接到 logrus
type cronLogger struct {
	entry *logrus.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).WithError(err).Error(msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		f[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return f
}
