package notify

import "context"

// Mailer 定义外发邮件接口。
//
// 同步实现直接拨号 SMTP；异步实现把邮件写入队列（见 mailqueue）。
type Mailer interface {
	// Send 发送一封 HTML 邮件。
	//
	// 参数:
	//   ctx: 上下文
	//   to: 收件人邮箱
	//   subject: 邮件主题
	//   html: 渲染好的 HTML 正文
	Send(ctx context.Context, to, subject, html string) error
}
