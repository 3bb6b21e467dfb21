package mailqueue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T) (*redis.Client, *MailQueue) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return rdb, NewMailQueue(rdb, logger, "test:mail:queue")
}

type recordingMailer struct {
	sent []string
	err  error
}

func (m *recordingMailer) Send(_ context.Context, to, _, _ string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, to)
	return nil
}

func newTestConsumer(t *testing.T, rdb *redis.Client, mailer *recordingMailer, opts ...ConsumerOption) *Consumer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]ConsumerOption{WithBlockTime(10 * time.Millisecond)}, opts...)
	c, err := NewConsumer(rdb, mailer, logger, "test:mail:queue", "mailer_group", "c1", opts...)
	if err != nil {
		t.Fatalf("NewConsumer failed: %v", err)
	}
	return c
}

func TestPublishAndStreamInfo(t *testing.T) {
	_, q := newTestQueue(t)
	ctx := context.Background()

	if err := q.Publish(ctx, NewMailMessage("a@example.com", "hi", "<p>hi</p>")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if err := q.Publish(ctx, NewMailMessage("b@example.com", "hi", "<p>hi</p>")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	depth, err := q.StreamInfo(ctx)
	if err != nil {
		t.Fatalf("StreamInfo failed: %v", err)
	}
	if depth != 2 {
		t.Errorf("expected depth 2, got %d", depth)
	}
}

func TestPublish_NilMessage(t *testing.T) {
	_, q := newTestQueue(t)
	if err := q.Publish(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil message")
	}
}

func TestCreateConsumerGroup_Idempotent(t *testing.T) {
	_, q := newTestQueue(t)
	ctx := context.Background()

	if err := q.CreateConsumerGroup(ctx, "g"); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if err := q.CreateConsumerGroup(ctx, "g"); err != nil {
		t.Fatalf("second create must be a no-op, got: %v", err)
	}
}

func TestConsumer_DeliverAndAck(t *testing.T) {
	rdb, q := newTestQueue(t)
	ctx := context.Background()
	mailer := &recordingMailer{}
	c := newTestConsumer(t, rdb, mailer)

	if err := q.Publish(ctx, NewMailMessage("alice@example.com", "Activate your account", "<p>link</p>")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	msgs, err := c.read(ctx)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	c.deliver(ctx, msgs[0])

	if len(mailer.sent) != 1 || mailer.sent[0] != "alice@example.com" {
		t.Errorf("unexpected deliveries: %v", mailer.sent)
	}
	pending, err := rdb.XPending(ctx, "test:mail:queue", "mailer_group").Result()
	if err != nil {
		t.Fatalf("xpending failed: %v", err)
	}
	if pending.Count != 0 {
		t.Errorf("expected 0 pending after ack, got %d", pending.Count)
	}
}

func TestConsumer_FailureRequeues(t *testing.T) {
	rdb, q := newTestQueue(t)
	ctx := context.Background()
	mailer := &recordingMailer{err: errors.New("smtp down")}
	c := newTestConsumer(t, rdb, mailer, WithMaxRetry(3))

	if err := q.Publish(ctx, NewMailMessage("alice@example.com", "s", "<p>b</p>")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	msgs, err := c.read(ctx)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	c.deliver(ctx, msgs[0])

	// 投递失败：原消息被 Ack，带重试计数的副本重新入队
	depth, _ := q.StreamInfo(ctx)
	if depth != 2 {
		t.Errorf("expected depth 2 after requeue, got %d", depth)
	}
	msgs, err = c.read(ctx)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 requeued message, got %d", len(msgs))
	}
	if msgs[0].Message.Retry != 1 {
		t.Errorf("expected retry count 1, got %d", msgs[0].Message.Retry)
	}
}

func TestConsumer_DeadLetterAfterMaxRetry(t *testing.T) {
	rdb, q := newTestQueue(t)
	ctx := context.Background()
	mailer := &recordingMailer{err: errors.New("smtp down")}
	c := newTestConsumer(t, rdb, mailer, WithMaxRetry(0))

	if err := q.Publish(ctx, NewMailMessage("alice@example.com", "s", "<p>b</p>")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	msgs, err := c.read(ctx)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	c.deliver(ctx, msgs[0])

	dlqLen, err := rdb.XLen(ctx, "test:mail:queue:dlq").Result()
	if err != nil {
		t.Fatalf("xlen dlq failed: %v", err)
	}
	if dlqLen != 1 {
		t.Errorf("expected 1 dead letter, got %d", dlqLen)
	}
	pending, _ := rdb.XPending(ctx, "test:mail:queue", "mailer_group").Result()
	if pending.Count != 0 {
		t.Errorf("expected 0 pending after dead letter, got %d", pending.Count)
	}
}

func TestConsumer_DiscardsPoisonMessage(t *testing.T) {
	rdb, _ := newTestQueue(t)
	ctx := context.Background()
	mailer := &recordingMailer{}
	c := newTestConsumer(t, rdb, mailer)

	// 直接塞一条非 JSON 的脏数据
	err := rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: "test:mail:queue",
		Values: map[string]interface{}{"data": "not-json"},
	}).Err()
	if err != nil {
		t.Fatalf("xadd failed: %v", err)
	}

	msgs, err := c.read(ctx)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("poison message must not be returned, got %d", len(msgs))
	}
	dlqLen, _ := rdb.XLen(ctx, "test:mail:queue:dlq").Result()
	if dlqLen != 1 {
		t.Errorf("expected poison message in dlq, got %d", dlqLen)
	}
	if len(mailer.sent) != 0 {
		t.Error("poison message must not be delivered")
	}
}

func TestParseMessage(t *testing.T) {
	msg, err := parseMessage(`{"to":"a@example.com","subject":"s","html":"<p>b</p>"}`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if msg.To != "a@example.com" {
		t.Errorf("unexpected recipient: %q", msg.To)
	}

	if _, err := parseMessage("not-json"); err == nil {
		t.Error("expected error for invalid json")
	}
	if _, err := parseMessage(`{"subject":"s"}`); err == nil {
		t.Error("expected error for missing recipient")
	}
}
