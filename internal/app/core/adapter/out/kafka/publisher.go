package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/JoeShih716/go-yield-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-yield-ledger/internal/app/core/usecase"
)

// Config Kafka 發送設定
type Config struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// messageWriter kafka.Writer 的最小介面 (測試時替換)
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher 將 BalanceChanged 事件寫入 Kafka
// 以 account_id 作為 key，同一帳戶的事件會進入同一個 partition 並保持順序
type Publisher struct {
	writer  messageWriter
	timeout time.Duration
}

func NewPublisher(cfg Config) *Publisher {
	topic := cfg.Topic
	if topic == "" {
		topic = "ledger.balance_changed"
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		timeout: cfg.WriteTimeout,
	}
}

// Publish 同步寫入一筆事件
func (p *Publisher) Publish(ctx context.Context, event domain.BalanceChanged) error {
	msg, err := encodeMessage(event)
	if err != nil {
		return err
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write balance event %s: %w", event.EventID, err)
	}
	return nil
}

// Close 送出緩衝中的訊息並關閉連線
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func encodeMessage(event domain.BalanceChanged) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode balance event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatInt(event.AccountID, 10)),
		Value: data,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.EventID.String())},
			{Key: "cause", Value: []byte(event.Cause.String())},
		},
	}, nil
}

var _ usecase.EventPublisher = (*Publisher)(nil)
