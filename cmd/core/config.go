package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/JoeShih716/go-yield-ledger/internal/app/core/adapter/out/kafka"
	"github.com/JoeShih716/go-yield-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-yield-ledger/pkg/logger"
	"github.com/JoeShih716/go-yield-ledger/pkg/mysql"
)

// StoreType 使用哪種帳本實作
type StoreType string

const (
	StoreMySQL StoreType = "mysql"
	StoreMutex StoreType = "mutex"
	StoreLMAX  StoreType = "lmax"
)

type Config struct {
	Store   StoreType     `yaml:"store"`
	MySQL   mysql.Config  `yaml:"mysql"`
	WAL     WALConfig     `yaml:"wal"`
	GRPC    GRPCConfig    `yaml:"grpc"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Kafka   kafka.Config  `yaml:"kafka"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     logger.Config `yaml:"log"`
}

type WALConfig struct {
	Path string `yaml:"path"`
	// NoSync 不對每筆寫入 fsync
	NoSync bool `yaml:"no_sync"`
	// Buffer LMAX 輸送帶長度
	Buffer int `yaml:"buffer"`
}

type GRPCConfig struct {
	Addr string `yaml:"addr"`
}

type LedgerConfig struct {
	DailyRate   decimal.Decimal `yaml:"daily_rate"`
	ClampPolicy string          `yaml:"clamp_policy"`
	MaxRetries  int             `yaml:"max_retries"`
	// SweepSchedule 空字串代表不啟用收益批次
	SweepSchedule string `yaml:"sweep_schedule"`
	// Price 來源幣別對帳本單位的固定匯率
	Price decimal.Decimal `yaml:"price"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// EngineConfig 轉為 usecase.Config
func (c LedgerConfig) EngineConfig() (usecase.Config, error) {
	policy, err := usecase.ParseClampPolicy(c.ClampPolicy)
	if err != nil {
		return usecase.Config{}, err
	}
	return usecase.Config{
		DailyRate:   c.DailyRate,
		ClampPolicy: policy,
		MaxRetries:  c.MaxRetries,
	}, nil
}

// loadConfig 讀取 .env 與 yaml 設定，yaml 內的 ${VAR} 由環境變數展開
func loadConfig(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfgData, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return parseConfig(cfgData)
}

func parseConfig(data []byte) (Config, error) {
	cfg := Config{
		Ledger: LedgerConfig{SweepSchedule: "@daily"},
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Store == "" {
		cfg.Store = StoreMutex
	}
	if cfg.WAL.Path == "" {
		cfg.WAL.Path = "wal.log"
	}
	if cfg.GRPC.Addr == "" {
		cfg.GRPC.Addr = ":50051"
	}
	if cfg.Ledger.DailyRate.IsZero() {
		cfg.Ledger.DailyRate = decimal.RequireFromString("0.01")
	}
	if cfg.Ledger.MaxRetries == 0 {
		cfg.Ledger.MaxRetries = 3
	}
	if cfg.Ledger.Price.IsZero() {
		cfg.Ledger.Price = decimal.NewFromInt(1)
	}
	if cfg.Kafka.WriteTimeout == 0 {
		cfg.Kafka.WriteTimeout = 5 * time.Second
	}

	// 補全 MySQL 預設配置 (如果 yaml 沒寫)
	if cfg.MySQL.Port == 0 {
		cfg.MySQL.Port = 3306
	}
	if cfg.MySQL.MaxOpenConns == 0 {
		cfg.MySQL.MaxOpenConns = 100
	}
	if cfg.MySQL.MaxIdleConns == 0 {
		cfg.MySQL.MaxIdleConns = 10
	}
	if cfg.MySQL.ConnMaxLifetime == 0 {
		cfg.MySQL.ConnMaxLifetime = 30 * time.Minute
	}
}
