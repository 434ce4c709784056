package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	grpc_adapter "github.com/JoeShih716/go-yield-ledger/internal/app/core/adapter/in/grpc"
	"github.com/JoeShih716/go-yield-ledger/internal/app/core/adapter/in/scheduler"
	kafka_adapter "github.com/JoeShih716/go-yield-ledger/internal/app/core/adapter/out/kafka"
	memory_adapter "github.com/JoeShih716/go-yield-ledger/internal/app/core/adapter/out/memory"
	mysql_adapter "github.com/JoeShih716/go-yield-ledger/internal/app/core/adapter/out/mysql"
	"github.com/JoeShih716/go-yield-ledger/internal/app/core/metrics"
	"github.com/JoeShih716/go-yield-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-yield-ledger/pkg/logger"
	"github.com/JoeShih716/go-yield-ledger/pkg/mysql"
	"github.com/JoeShih716/go-yield-ledger/pkg/wal"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	// 1. 載入設定
	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.New(logger.Config{}).WithError(err).Fatal("failed to load config")
	}
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. 初始化 MySQL Client (Base Infrastructure)
	dbClient, err := mysql.NewClient(cfg.MySQL)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to mysql")
	}
	defer dbClient.Close()
	log.Info("connected to mysql")

	sqlStore := mysql_adapter.NewMySQLStore(dbClient)
	if cfg.MySQL.AutoMigrate {
		if err := sqlStore.Migrate(ctx); err != nil {
			log.WithError(err).Fatal("failed to migrate schema")
		}
	}

	// 3. 選擇帳本實作
	// LMAX run loop 在 gRPC 停止後才結束，讓處理中的請求能完成
	storeCtx, stopStore := context.WithCancel(context.Background())
	defer stopStore()
	var store usecase.Store
	switch cfg.Store {
	case StoreMySQL:
		store = sqlStore
	case StoreMutex, StoreLMAX:
		seed, err := sqlStore.LoadAllBalances(ctx)
		if err != nil {
			log.WithError(err).Fatal("failed to load balances")
		}
		log.WithField("accounts", len(seed)).Info("balances loaded")

		var walOpts []wal.Option
		if cfg.WAL.NoSync {
			walOpts = append(walOpts, wal.WithoutSync())
		}
		walFile, err := wal.NewWAL(cfg.WAL.Path, walOpts...)
		if err != nil {
			log.WithError(err).Fatal("failed to init wal")
		}
		// 程式結束時關閉 WAL
		defer walFile.Close()

		if cfg.Store == StoreMutex {
			store, err = memory_adapter.NewMutexStore(seed, walFile)
		} else {
			var serial *memory_adapter.SerialStore
			serial, err = memory_adapter.NewSerialStore(seed, walFile, cfg.WAL.Buffer)
			if err == nil {
				serial.Start(storeCtx)
				store = serial
			}
		}
		if err != nil {
			log.WithError(err).Fatal("failed to init memory store")
		}
	default:
		log.WithField("store", cfg.Store).Fatal("invalid store type")
	}

	// 4. 初始化 UseCase
	engineCfg, err := cfg.Ledger.EngineConfig()
	if err != nil {
		log.WithError(err).Fatal("invalid ledger config")
	}
	opts := []usecase.Option{
		usecase.WithLogger(log),
		usecase.WithPriceLookup(usecase.StaticPrice(cfg.Ledger.Price)),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := kafka_adapter.NewPublisher(cfg.Kafka)
		defer publisher.Close()
		opts = append(opts, usecase.WithPublisher(publisher))
	}
	engine, err := usecase.NewLedgerEngine(store, engineCfg, opts...)
	if err != nil {
		log.WithError(err).Fatal("failed to init ledger engine")
	}

	// 5. 收益批次排程
	if cfg.Ledger.SweepSchedule != "" {
		sched, err := scheduler.New(cfg.Ledger.SweepSchedule, engine, log)
		if err != nil {
			log.WithError(err).Fatal("failed to init scheduler")
		}
		sched.Start(ctx)
		defer sched.Stop()
	}

	// 6. Metrics
	var metricsServer *http.Server
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.WithField("addr", cfg.Metrics.Addr).Info("starting metrics server")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("metrics server stopped")
			}
		}()
	}

	// 7. 啟動 gRPC Server
	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		log.WithError(err).Fatal("failed to listen")
	}
	s := grpc.NewServer(grpc.UnaryInterceptor(grpc_adapter.UnaryLogger(log)))
	grpc_adapter.RegisterLedgerService(s, grpc_adapter.NewGrpcServer(engine, log))

	go func() {
		log.WithField("addr", cfg.GRPC.Addr).Info("starting grpc server")
		if err := s.Serve(lis); err != nil {
			log.WithError(err).Error("grpc server stopped")
			stop()
		}
	}()

	// Graceful Shutdown
	<-ctx.Done()
	log.Info("shutting down server...")

	s.GracefulStop()
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	stopStore()
	if serial, ok := store.(*memory_adapter.SerialStore); ok {
		<-serial.Done()
	}
	log.Info("server exited")
}
