package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/JoeShih716/go-yield-ledger/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/go-yield-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-yield-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-yield-ledger/pkg/logger"
	grpcpool "github.com/JoeShih716/go-yield-ledger/pkg/grpc"
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

var start = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, seed ...*domain.Balance) (*Client, *fixedClock) {
	t.Helper()
	store, err := memory.NewMutexStore(seed, nil)
	require.NoError(t, err)
	clock := &fixedClock{now: start}
	engine, err := usecase.NewLedgerEngine(store, usecase.Config{DailyRate: decimal.RequireFromString("0.01")},
		usecase.WithClock(clock),
		usecase.WithPriceLookup(usecase.StaticPrice(decimal.NewFromInt(2))),
	)
	require.NoError(t, err)

	lis := bufconn.Listen(1024 * 1024)
	s := grpc.NewServer(grpc.UnaryInterceptor(UnaryLogger(logger.Discard())))
	RegisterLedgerService(s, NewGrpcServer(engine, logger.Discard()))
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	pool := grpcpool.NewPool(
		grpcpool.WithDialOptions(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		})),
	)
	t.Cleanup(func() { pool.Close() })
	conn, err := pool.GetConnection("passthrough:///bufnet")
	require.NoError(t, err)
	return NewClient(conn), clock
}

func TestDepositFlowOverGRPC(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	order, err := client.CreateDeposit(ctx, &CreateDepositRequest{AccountID: 1, Amount: "250"})
	require.NoError(t, err)
	assert.Equal(t, "PROCESSING", order.Status)
	assert.Equal(t, "500", order.AmountInLedgerUnits)

	updated, err := client.UpdateDepositStatus(ctx, &UpdateStatusRequest{AccountID: 1, OrderID: order.ID, Status: "paid"})
	require.NoError(t, err)
	assert.Equal(t, "PAID", updated.Order.Status)
	require.NotNil(t, updated.Balance)
	assert.Equal(t, "500", updated.Balance.ActiveStake)
	assert.Equal(t, "1000", updated.Balance.QuoteValue)

	bal, err := client.GetBalance(ctx, &GetBalanceRequest{AccountID: 1})
	require.NoError(t, err)
	assert.Equal(t, "500", bal.TotalValue)

	snaps, err := client.ListSnapshots(ctx, &ListSnapshotsRequest{AccountID: 1})
	require.NoError(t, err)
	assert.Len(t, snaps.Snapshots, 1)
}

func TestAccrueAndWithdrawOverGRPC(t *testing.T) {
	client, clock := newTestClient(t, domain.NewBalance(1, decimal.NewFromInt(1000), start))
	ctx := context.Background()

	clock.now = start.Add(3 * domain.Day)
	acc, err := client.AccrueYield(ctx, &AccrueYieldRequest{AccountID: 1})
	require.NoError(t, err)
	require.NotNil(t, acc.Balance)
	assert.Equal(t, "30", acc.Balance.Rewards)

	_, err = client.CreateWithdrawal(ctx, &CreateWithdrawalRequest{AccountID: 1, Amount: "20", Address: "addr"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	w, err := client.CreateWithdrawal(ctx, &CreateWithdrawalRequest{AccountID: 1, Amount: "15", Address: "addr"})
	require.NoError(t, err)
	assert.Equal(t, "addr", w.Address)

	res, err := client.UpdateWithdrawalStatus(ctx, &UpdateStatusRequest{AccountID: 1, OrderID: w.ID, Status: "PAID"})
	require.NoError(t, err)
	assert.Equal(t, "970", res.Balance.ActiveStake)
	assert.Equal(t, "1000", res.Balance.TotalValue)
}

func TestErrorCodesOverGRPC(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	_, err := client.GetBalance(ctx, &GetBalanceRequest{AccountID: 99})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.CreateDeposit(ctx, &CreateDepositRequest{AccountID: 1, Amount: "abc"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.CreateDeposit(ctx, &CreateDepositRequest{AccountID: 1, Amount: "-5"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.UpdateDepositStatus(ctx, &UpdateStatusRequest{AccountID: 1, OrderID: "not-a-uuid", Status: "PAID"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.UpdateDepositStatus(ctx, &UpdateStatusRequest{AccountID: 1, OrderID: "6f1c1f5e-8a7e-4c52-9f1e-3f0e5f7e2a10", Status: "PAID"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	acc, err := client.AccrueYield(ctx, &AccrueYieldRequest{AccountID: 99})
	require.NoError(t, err)
	assert.Nil(t, acc.Balance)
}

func TestCreditOverGRPC(t *testing.T) {
	client, _ := newTestClient(t)
	bal, err := client.Credit(context.Background(), &CreditRequest{AccountID: 4, Amount: "12.5", Reason: "promo"})
	require.NoError(t, err)
	assert.Equal(t, "12.5", bal.ActiveStake)
	assert.Equal(t, int64(1), bal.Version)
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{domain.ErrAccountNotFound, codes.NotFound},
		{domain.ErrWithdrawalNotFound, codes.NotFound},
		{domain.ErrInvalidPrice, codes.InvalidArgument},
		{domain.ErrInsufficientFunds, codes.FailedPrecondition},
		{domain.ErrConcurrentUpdate, codes.Aborted},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{domain.ErrWALWriteFailed, codes.Internal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, status.Code(toStatus(tt.err)), tt.err.Error())
	}
}
