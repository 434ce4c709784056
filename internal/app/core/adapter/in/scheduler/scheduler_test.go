package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-yield-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-yield-ledger/pkg/logger"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
	panic bool
}

func (s *countingSweeper) SweepAccruals(ctx context.Context) (usecase.SweepReport, error) {
	s.calls.Add(1)
	if s.panic {
		panic("sweep exploded")
	}
	if s.err != nil {
		return usecase.SweepReport{Accounts: 2, Failed: 1}, s.err
	}
	return usecase.SweepReport{Accounts: 2, Accrued: 2}, nil
}

func TestNewRejectsBadSchedule(t *testing.T) {
	_, err := New("", &countingSweeper{}, nil)
	assert.Error(t, err)
	_, err = New("every tuesday", &countingSweeper{}, nil)
	assert.Error(t, err)
	_, err = New("@daily", &countingSweeper{}, nil)
	assert.NoError(t, err)
}

func TestRunOnceLogsFailures(t *testing.T) {
	base, hook := logtest.NewNullLogger()
	sweeper := &countingSweeper{err: errors.New("account 2: boom")}
	s, err := New("@daily", sweeper, logger.Wrap(base))
	require.NoError(t, err)

	report := s.RunOnce(context.Background())
	assert.Equal(t, 1, report.Failed)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, "scheduler", hook.LastEntry().Data["component"])
}

func TestScheduledSweepRuns(t *testing.T) {
	sweeper := &countingSweeper{}
	s, err := New("@every 1s", sweeper, nil)
	require.NoError(t, err)

	s.Start(context.Background())
	defer s.Stop()

	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}

func TestScheduledSweepRecoversPanic(t *testing.T) {
	sweeper := &countingSweeper{panic: true}
	s, err := New("@every 1s", sweeper, nil)
	require.NoError(t, err)

	s.Start(context.Background())
	defer s.Stop()

	// panic 之後排程仍會繼續
	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, 4*time.Second, 50*time.Millisecond)
}
