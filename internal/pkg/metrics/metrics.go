package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RegistrationRequestsTotal 注册请求总数（按结果分类）。
	RegistrationRequestsTotal *prometheus.CounterVec

	// ActivationsTotal 账户激活总数（按结果分类）。
	ActivationsTotal *prometheus.CounterVec

	// LoginsTotal 登录总数（按结果分类）。
	LoginsTotal *prometheus.CounterVec

	// PasswordResetsTotal 找回密码操作总数（按阶段与结果分类）。
	PasswordResetsTotal *prometheus.CounterVec

	// MailQueueDepth 邮件队列当前积压长度。
	MailQueueDepth prometheus.Gauge

	initOnce sync.Once
)

// InitMetrics 注册所有 Prometheus 指标。
//
// 可以安全地重复调用（测试中经常如此），只有第一次生效。
func InitMetrics() {
	initOnce.Do(func() {
		RegistrationRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accounthub_registration_requests_total",
			Help: "Total registration requests by result.",
		}, []string{"result"})

		ActivationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accounthub_activations_total",
			Help: "Total account activations by result.",
		}, []string{"result"})

		LoginsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accounthub_logins_total",
			Help: "Total login attempts by result.",
		}, []string{"result"})

		PasswordResetsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accounthub_password_resets_total",
			Help: "Total password reset operations by stage and result.",
		}, []string{"stage", "result"})

		MailQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "accounthub_mail_queue_depth",
			Help: "Current length of the outbound mail stream.",
		})

		prometheus.MustRegister(
			RegistrationRequestsTotal,
			ActivationsTotal,
			LoginsTotal,
			PasswordResetsTotal,
			MailQueueDepth,
		)
	})
}
