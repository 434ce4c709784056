package main

import (
	"context"
	"flag"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	grpc_adapter "github.com/JoeShih716/go-yield-ledger/internal/app/core/adapter/in/grpc"
	grpcpool "github.com/JoeShih716/go-yield-ledger/pkg/grpc"
	"github.com/JoeShih716/go-yield-ledger/pkg/logger"
)

// 對 core 服務發送大量存款單並標記為 PAID，量測 TPS
func main() {
	target := flag.String("target", "localhost:50051", "ledger grpc address")
	totalCount := flag.Int("n", 100000, "number of deposits")
	concurrency := flag.Int("c", 500, "concurrent workers")
	accounts := flag.Int64("accounts", 100, "spread deposits over this many accounts")
	flag.Parse()

	log := logger.New(logger.Config{Level: "info", Format: "text"})

	pool := grpcpool.NewPool(grpcpool.WithInterceptor(timingInterceptor(log)))
	defer pool.Close()
	conn, err := pool.GetConnection(*target)
	if err != nil {
		log.WithError(err).Fatal("did not connect")
	}
	c := grpc_adapter.NewClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	var (
		wg     sync.WaitGroup
		failed atomic.Int64
	)
	wg.Add(*totalCount)
	sem := make(chan struct{}, *concurrency)
	startTime := time.Now()

	for i := 0; i < *totalCount; i++ {
		sem <- struct{}{}

		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			accountID := int64(idx)%*accounts + 1
			if err := depositAndSettle(ctx, c, accountID); err != nil {
				failed.Add(1)
				if idx%10000 == 0 {
					log.WithError(err).WithField("idx", idx).Warn("deposit failed")
				}
			}
		}(i)
	}

	wg.Wait()

	elapsed := time.Since(startTime)
	fmt.Printf("Completed %d deposits in %v (failed %d)\n", *totalCount, elapsed, failed.Load())
	fmt.Printf("TPS: %.2f\n", float64(*totalCount)/elapsed.Seconds())

	bal, err := c.GetBalance(ctx, &grpc_adapter.GetBalanceRequest{AccountID: 1})
	if err != nil {
		log.WithError(err).Fatal("get balance failed")
	}
	fmt.Printf("Account 1: total=%s stake=%s rewards=%s\n", bal.TotalValue, bal.ActiveStake, bal.Rewards)
}

func depositAndSettle(ctx context.Context, c *grpc_adapter.Client, accountID int64) error {
	order, err := c.CreateDeposit(ctx, &grpc_adapter.CreateDepositRequest{AccountID: accountID, Amount: "10"})
	if err != nil {
		return err
	}
	_, err = c.UpdateDepositStatus(ctx, &grpc_adapter.UpdateStatusRequest{
		AccountID: accountID,
		OrderID:   order.ID,
		Status:    "PAID",
	})
	return err
}

// timingInterceptor 記錄超過 100ms 的請求
func timingInterceptor(log *logger.Logger) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		start := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)
		if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
			log.WithFields(logrus.Fields{
				"method":  method,
				"elapsed": elapsed.String(),
			}).Debug("slow rpc")
		}
		return err
	}
}
