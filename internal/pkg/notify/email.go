package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"accounthub/internal/config"

	"gopkg.in/gomail.v2"
)

// EmailNotifier 通过 SMTP 同步发送邮件。
type EmailNotifier struct {
	cfg    *config.EmailConfig
	logger *slog.Logger
}

// NewEmailNotifier 创建一个新的邮件通知器。
func NewEmailNotifier(cfg *config.EmailConfig, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		logger: logger,
	}
}

// Send 发送邮件。
//
// 配置缺失或收件人为空直接报错，绝不静默丢弃：
// 上层流程依赖发送结果决定是否向用户返回成功。
func (n *EmailNotifier) Send(ctx context.Context, to, subject, html string) error {
	if n.cfg.SMTPHost == "" || n.cfg.SMTPUser == "" || n.cfg.FromEmail == "" {
		return fmt.Errorf("email config missing")
	}
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("empty recipient")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", html)

	d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.SMTPUser, n.cfg.SMTPPass)

	done := make(chan error, 1)
	go func() {
		done <- d.DialAndSend(m)
	}()

	// gomail 不支持 context，自己包一层让调用方能取消
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send email: %w", err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	n.logger.Info("email sent", slog.String("to", to), slog.String("subject", subject))
	return nil
}

// ActivationMailSubject 激活邮件主题。
const ActivationMailSubject = "Activate your account"

// ResetCodeMailSubject 找回密码邮件主题。
const ResetCodeMailSubject = "Your password reset code"

// ActivationMailBody 渲染账户激活邮件正文。
func ActivationMailBody(name, activationURL string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>Welcome, %s!</h2>
    <p>Click the link below to activate your account:</p>
    <p><a href="%s" style="display: inline-block; padding: 12px 20px; background: #22c55e; color: #fff; text-decoration: none; border-radius: 8px; font-weight: bold;">Activate my account</a></p>
    <p style="font-size: 12px; color: #6b7280;">The link expires in 5 minutes. If you did not sign up, you can ignore this mail.</p>
  </div>
</body>
</html>`, name, activationURL)
}

// ResetCodeMailBody 渲染找回密码邮件正文。
func ResetCodeMailBody(name, code string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>Hi %s,</h2>
    <p>Your password reset code is:</p>
    <div style="font-size: 28px; font-weight: bold; letter-spacing: 3px;">%s</div>
    <p style="font-size: 12px; color: #6b7280;">The code expires in 1 hour. If you did not request a reset, you can ignore this mail.</p>
  </div>
</body>
</html>`, name, code)
}
