package mailqueue

import (
	"encoding/json"
	"fmt"
	"time"
)

// MailMessage 表示邮件队列中的一封待发邮件。
type MailMessage struct {
	To         string    `json:"to"`          // 收件人邮箱
	Subject    string    `json:"subject"`     // 邮件主题
	HTML       string    `json:"html"`        // 渲染好的 HTML 正文
	EnqueuedAt time.Time `json:"enqueued_at"` // 入队时间
	Retry      int       `json:"retry"`       // 重试次数
}

// NewMailMessage 创建一条待发邮件消息。
func NewMailMessage(to, subject, html string) *MailMessage {
	return &MailMessage{
		To:         to,
		Subject:    subject,
		HTML:       html,
		EnqueuedAt: time.Now(),
		Retry:      0,
	}
}

func parseMessage(data string) (*MailMessage, error) {
	var msg MailMessage
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		return nil, fmt.Errorf("unmarshal mail message: %w", err)
	}
	if msg.To == "" {
		return nil, fmt.Errorf("mail message has no recipient")
	}
	return &msg, nil
}
