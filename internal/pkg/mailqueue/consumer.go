package mailqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"accounthub/internal/pkg/metrics"
	"accounthub/internal/pkg/notify"

	"github.com/redis/go-redis/v9"
)

// Consumer 邮件消费者，从队列中读取邮件并通过 SMTP 投递。
type Consumer struct {
	queue            *MailQueue
	mailer           notify.Mailer
	logger           *slog.Logger
	groupName        string
	consumerID       string
	blockTime        time.Duration
	batchSize        int64
	pendingIdle      time.Duration
	pendingStart     string
	deadLetterStream string
	maxRetry         int
}

// ConsumerOption 消费者配置选项。
type ConsumerOption func(*Consumer)

// WithBlockTime 设置阻塞等待时间。
func WithBlockTime(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		c.blockTime = d
	}
}

// WithBatchSize 设置每次读取的消息数量。
func WithBatchSize(size int64) ConsumerOption {
	return func(c *Consumer) {
		c.batchSize = size
	}
}

// WithPendingIdle 设置 Pending 消息被重新认领前的最小空闲时间。
func WithPendingIdle(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		c.pendingIdle = d
	}
}

// WithMaxRetry 设置投递最大重试次数，超过后进入死信 Stream。
func WithMaxRetry(maxRetry int) ConsumerOption {
	return func(c *Consumer) {
		c.maxRetry = maxRetry
	}
}

// NewConsumer 创建一个邮件消费者，自动创建消费者组。
//
// 参数:
//   - rdb: Redis 客户端
//   - mailer: 实际投递邮件的 SMTP 实现
//   - logger: 日志记录器
//   - streamName: Stream 名称
//   - groupName: 消费者组名称
//   - consumerID: 消费者唯一标识（可选）
func NewConsumer(rdb *redis.Client, mailer notify.Mailer, logger *slog.Logger, streamName, groupName, consumerID string, opts ...ConsumerOption) (*Consumer, error) {
	if groupName == "" {
		return nil, fmt.Errorf("group name is required")
	}
	if consumerID == "" {
		consumerID = fmt.Sprintf("mailer-%d", time.Now().UnixNano())
	}

	c := &Consumer{
		queue:            NewMailQueue(rdb, logger, streamName),
		mailer:           mailer,
		logger:           logger,
		groupName:        groupName,
		consumerID:       consumerID,
		blockTime:        1 * time.Second,
		batchSize:        10,
		pendingIdle:      1 * time.Minute,
		pendingStart:     "0-0",
		deadLetterStream: streamName + ":dlq",
		maxRetry:         3,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.queue.CreateConsumerGroup(context.Background(), groupName); err != nil {
		return nil, err
	}

	c.logger.Info("mail consumer created",
		slog.String("group", groupName),
		slog.String("consumer_id", consumerID))

	return c, nil
}

// MessageWithID 携带 Stream 消息 ID 的邮件消息。
type MessageWithID struct {
	ID      string
	Message *MailMessage
}

// Run 循环消费队列并投递邮件，直到 ctx 结束。
func (c *Consumer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("mail consumer stopped")
			return
		default:
		}

		msgs, err := c.read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.logger.Error("read mail queue failed", slog.String("error", err.Error()))
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range msgs {
			c.deliver(ctx, msg)
		}

		if depth, err := c.queue.StreamInfo(ctx); err == nil && metrics.MailQueueDepth != nil {
			metrics.MailQueueDepth.Set(float64(depth))
		}
	}
}

func (c *Consumer) deliver(ctx context.Context, msg *MessageWithID) {
	sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := c.mailer.Send(sendCtx, msg.Message.To, msg.Message.Subject, msg.Message.HTML); err != nil {
		c.logger.Warn("mail delivery failed",
			slog.String("msg_id", msg.ID),
			slog.String("to", msg.Message.To),
			slog.String("error", err.Error()))
		if err := c.handleFailure(ctx, msg); err != nil {
			c.logger.Error("handle mail failure failed",
				slog.String("msg_id", msg.ID),
				slog.String("error", err.Error()))
		}
		return
	}

	if err := c.Ack(ctx, msg.ID); err != nil {
		c.logger.Warn("ack mail failed",
			slog.String("msg_id", msg.ID),
			slog.String("error", err.Error()))
	}
}

// read 优先认领空闲过久的 Pending 消息，没有再读新消息。
func (c *Consumer) read(ctx context.Context) ([]*MessageWithID, error) {
	pending, err := c.readPending(ctx)
	if err != nil {
		return nil, err
	}
	if len(pending) > 0 {
		return pending, nil
	}
	return c.readNew(ctx)
}

func (c *Consumer) readPending(ctx context.Context) ([]*MessageWithID, error) {
	messages, nextStart, err := c.queue.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.queue.streamName,
		Group:    c.groupName,
		Consumer: c.consumerID,
		MinIdle:  c.pendingIdle,
		Start:    c.pendingStart,
		Count:    c.batchSize,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xautoclaim failed: %w", err)
	}
	if nextStart != "" {
		c.pendingStart = nextStart
	}

	return c.parseMessages(ctx, messages)
}

func (c *Consumer) readNew(ctx context.Context) ([]*MessageWithID, error) {
	streams, err := c.queue.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.groupName,
		Consumer: c.consumerID,
		Streams:  []string{c.queue.streamName, ">"},
		Count:    c.batchSize,
		Block:    c.blockTime,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("xreadgroup failed: %w", err)
	}

	var messages []redis.XMessage
	for _, stream := range streams {
		messages = append(messages, stream.Messages...)
	}

	return c.parseMessages(ctx, messages)
}

func (c *Consumer) parseMessages(ctx context.Context, messages []redis.XMessage) ([]*MessageWithID, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	parsed := make([]*MessageWithID, 0, len(messages))
	for _, msg := range messages {
		data, ok := msg.Values["data"].(string)
		if !ok || data == "" {
			c.logger.Warn("invalid mail message format", slog.String("msg_id", msg.ID))
			c.discardPoison(ctx, msg.ID, fmt.Sprintf("%v", msg.Values["data"]), "invalid message format")
			continue
		}

		mailMsg, err := parseMessage(data)
		if err != nil {
			c.logger.Error("parse mail message failed",
				slog.String("msg_id", msg.ID),
				slog.String("error", err.Error()))
			c.discardPoison(ctx, msg.ID, data, err.Error())
			continue
		}

		parsed = append(parsed, &MessageWithID{ID: msg.ID, Message: mailMsg})
	}

	return parsed, nil
}

// Ack 确认消息已投递。
func (c *Consumer) Ack(ctx context.Context, msgID string) error {
	acked, err := c.queue.rdb.XAck(ctx, c.queue.streamName, c.groupName, msgID).Result()
	if err != nil {
		return fmt.Errorf("xack failed: %w", err)
	}
	if acked == 0 {
		c.logger.Warn("mail message not acked (may already be acked)", slog.String("msg_id", msgID))
	}
	return nil
}

// handleFailure 根据重试次数重入队，超限进入死信 Stream。
func (c *Consumer) handleFailure(ctx context.Context, msg *MessageWithID) error {
	msg.Message.Retry++

	if msg.Message.Retry > c.maxRetry {
		if err := c.publishDeadLetter(ctx, msg.ID, msg.Message); err != nil {
			return err
		}
		return c.Ack(ctx, msg.ID)
	}

	if err := c.queue.Publish(ctx, msg.Message); err != nil {
		return err
	}
	return c.Ack(ctx, msg.ID)
}

func (c *Consumer) publishDeadLetter(ctx context.Context, msgID string, msg *MailMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	err = c.queue.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: c.deadLetterStream,
		Values: map[string]interface{}{
			"data":       string(data),
			"origin_id":  msgID,
			"expired_at": time.Now().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd dead letter: %w", err)
	}
	c.logger.Warn("mail moved to dead letter stream",
		slog.String("msg_id", msgID),
		slog.String("to", msg.To))
	return nil
}

func (c *Consumer) discardPoison(ctx context.Context, msgID, raw, reason string) {
	err := c.queue.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: c.deadLetterStream,
		Values: map[string]interface{}{
			"data":      raw,
			"origin_id": msgID,
			"reason":    reason,
		},
	}).Err()
	if err != nil {
		c.logger.Error("publish poison message failed", slog.String("msg_id", msgID), slog.String("error", err.Error()))
	}
	_ = c.Ack(ctx, msgID)
}
