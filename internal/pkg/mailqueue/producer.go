package mailqueue

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Producer 邮件生产者，把待发邮件写入队列。
//
// 它实现 notify.Mailer，业务流程无需关心邮件是同步发出
// 还是先进队列再由 Consumer 投递。
type Producer struct {
	queue  *MailQueue
	logger *slog.Logger
}

// NewProducer 创建一个邮件生产者。
//
// 参数:
//   - rdb: Redis 客户端
//   - logger: 日志记录器
//   - streamName: Stream 名称（可选，默认 DefaultStream）
func NewProducer(rdb *redis.Client, logger *slog.Logger, streamName ...string) *Producer {
	stream := DefaultStream
	if len(streamName) > 0 && streamName[0] != "" {
		stream = streamName[0]
	}

	return &Producer{
		queue:  NewMailQueue(rdb, logger, stream),
		logger: logger,
	}
}

// Send 把邮件入队。满足 notify.Mailer 接口。
func (p *Producer) Send(ctx context.Context, to, subject, html string) error {
	msg := NewMailMessage(to, subject, html)
	if err := p.queue.Publish(ctx, msg); err != nil {
		p.logger.Error("enqueue mail failed",
			slog.String("to", to),
			slog.String("subject", subject),
			slog.String("error", err.Error()))
		return err
	}

	p.logger.Info("mail enqueued",
		slog.String("to", to),
		slog.String("subject", subject))

	return nil
}
