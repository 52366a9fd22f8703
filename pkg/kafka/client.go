// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"admate-rag-go/internal/config"
	"admate-rag-go/pkg/log"
	"admate-rag-go/pkg/tasks"
)

// maxAttempts 是同一任务连续失败后放弃重试的阈值
const maxAttempts = 3

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.DocumentIndexTask) error
}

// Producer 发送文档索引任务。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(splitBrokers(cfg.Brokers)...),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// PublishIndexTask 发送一个文档索引任务到 Kafka，同一文档的任务落在同一分区。
func (p *Producer) PublishIndexTask(ctx context.Context, task tasks.DocumentIndexTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.DocumentID),
		Value: taskBytes,
	})
}

// Close flushes pending writes.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// messageReader 是 Consumer 用到的 kafka.Reader 子集
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer 消费文档索引任务。
type Consumer struct {
	reader    messageReader
	processor TaskProcessor
	attempts  AttemptCounter
}

// NewConsumer 创建消费者。attempts 为 nil 时使用进程内计数。
func NewConsumer(cfg config.KafkaConfig, processor TaskProcessor, attempts AttemptCounter) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  splitBrokers(cfg.Brokers),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return newConsumer(r, processor, attempts)
}

func newConsumer(r messageReader, processor TaskProcessor, attempts AttemptCounter) *Consumer {
	if attempts == nil {
		attempts = NewMemoryAttemptCounter()
	}
	return &Consumer{reader: r, processor: processor, attempts: attempts}
}

// Run 阻塞消费直到 ctx 取消。
func (c *Consumer) Run(ctx context.Context) error {
	log.Info("Kafka 消费者已启动")
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				log.Info("Kafka 消费者已停止")
				return nil
			}
			log.Error("从 Kafka 读取消息失败", err)
			return err
		}

		log.Infof("收到 Kafka 消息: partition %d, offset %d", m.Partition, m.Offset)
		if c.handle(ctx, m) {
			if err := c.reader.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
			}
		}
	}
}

// handle 处理一条消息，返回是否应提交 offset
func (c *Consumer) handle(ctx context.Context, m kafka.Message) bool {
	var task tasks.DocumentIndexTask
	if err := json.Unmarshal(m.Value, &task); err != nil || task.DocumentID == "" {
		// 消息格式错误，直接提交，避免阻塞队列
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		return true
	}

	attemptsKey := fmt.Sprintf("kafka:attempts:%s", task.DocumentID)
	log.Infof("开始处理文档索引任务: DocumentID=%s, Title=%s", task.DocumentID, task.Title)
	if err := c.processor.Process(ctx, task); err != nil {
		log.Errorf("处理文档索引任务失败: DocumentID=%s, Error: %v", task.DocumentID, err)
		attempts, incErr := c.attempts.Incr(ctx, attemptsKey)
		if incErr != nil {
			// 计数异常时保守处理：不提交 offset，让 Kafka 重试
			log.Errorf("记录失败次数出错: %v", incErr)
			return false
		}
		if attempts >= maxAttempts {
			log.Errorf("文档索引任务多次失败(>=%d)，提交 offset 终止重试: DocumentID=%s", maxAttempts, task.DocumentID)
			c.attempts.Reset(ctx, attemptsKey)
			return true
		}
		// attempts < 3 时，不提交 offset 让 Kafka 自动重试
		return false
	}

	log.Infof("文档索引任务处理成功: DocumentID=%s", task.DocumentID)
	c.attempts.Reset(ctx, attemptsKey)
	return true
}

func splitBrokers(brokers string) []string {
	parts := strings.Split(brokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// attemptsTTL 是失败计数的保留时间
const attemptsTTL = 24 * time.Hour
