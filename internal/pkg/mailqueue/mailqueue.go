package mailqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// DefaultStream 是外发邮件 Stream 的默认名称。
const DefaultStream = "accounthub:mail:queue"

// MailQueue 封装 Redis Streams 的邮件队列操作。
type MailQueue struct {
	rdb        *redis.Client
	logger     *slog.Logger
	streamName string
}

// NewMailQueue 创建一个邮件队列实例。
func NewMailQueue(rdb *redis.Client, logger *slog.Logger, streamName string) *MailQueue {
	if streamName == "" {
		streamName = DefaultStream
	}
	return &MailQueue{
		rdb:        rdb,
		logger:     logger,
		streamName: streamName,
	}
}

// Publish 把一封待发邮件追加到 Stream。
func (q *MailQueue) Publish(ctx context.Context, msg *MailMessage) error {
	if msg == nil {
		return fmt.Errorf("message is nil")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: q.streamName,
		MaxLen: 100000,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}

	msgID, err := q.rdb.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("xadd failed: %w", err)
	}

	q.logger.Debug("mail message published",
		slog.String("stream", q.streamName),
		slog.String("msg_id", msgID),
		slog.String("to", msg.To))

	return nil
}

// CreateConsumerGroup 创建消费者组，已存在则忽略。
func (q *MailQueue) CreateConsumerGroup(ctx context.Context, groupName string) error {
	err := q.rdb.XGroupCreateMkStream(ctx, q.streamName, groupName, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("create consumer group: %w", err)
	}

	q.logger.Info("consumer group ready",
		slog.String("stream", q.streamName),
		slog.String("group", groupName))

	return nil
}

// StreamInfo 返回 Stream 中当前积压的消息数量。
func (q *MailQueue) StreamInfo(ctx context.Context) (int64, error) {
	length, err := q.rdb.XLen(ctx, q.streamName).Result()
	if err != nil {
		return 0, fmt.Errorf("xlen failed: %w", err)
	}
	return length, nil
}
