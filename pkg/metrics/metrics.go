package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 API/Worker 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		HTTPRequestDuration,
		AutomationActionTotal, AdminAlertTotal,
		CycleDuration, CycleTaskErrorTotal,
		OutboundRequestTotal, EmailDispatchTotal,
		TokenValidationTotal, InterviewTransitionTotal,
		RateLimitWaitSeconds,
	)
}

// HTTPRequestDuration HTTP 请求耗时（秒）
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "hiring_http_request_duration_seconds",
		Help:    "HTTP 请求耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"route", "method", "status"},
)

// AutomationActionTotal 自动化动作总数（按动作与结果）
var AutomationActionTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "hiring_automation_action_total",
		Help: "自动化动作总数（按动作与结果）",
	},
	[]string{"action", "outcome"}, // outcome: success | failure | skipped
)

// AdminAlertTotal 管理员告警总数
var AdminAlertTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "hiring_admin_alert_total",
		Help: "管理员告警总数",
	},
	[]string{"reason"},
)

// CycleDuration 自动化循环耗时（秒）
var CycleDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "hiring_cycle_duration_seconds",
		Help:    "自动化循环耗时（秒）",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
	},
)

// CycleTaskErrorTotal 循环内各任务错误总数
var CycleTaskErrorTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "hiring_cycle_task_error_total",
		Help: "自动化循环任务错误总数",
	},
	[]string{"task"},
)

// OutboundRequestTotal 外部服务调用总数（邮件/日历/风险/评分/LLM）
var OutboundRequestTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "hiring_outbound_request_total",
		Help: "外部服务调用总数",
	},
	[]string{"target", "outcome"}, // outcome: success | failure
)

// EmailDispatchTotal 邮件出队投递总数
var EmailDispatchTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "hiring_email_dispatch_total",
		Help: "邮件出队投递总数",
	},
	[]string{"status"}, // sent | failed | retried
)

// TokenValidationTotal 令牌校验总数
var TokenValidationTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "hiring_token_validation_total",
		Help: "操作令牌校验总数",
	},
	[]string{"result"}, // ok | expired | invalid | wrong_type
)

// InterviewTransitionTotal 面试状态迁移总数
var InterviewTransitionTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "hiring_interview_transition_total",
		Help: "面试状态迁移总数",
	},
	[]string{"from", "to"},
)

// RateLimitWaitSeconds 限流等待耗时（秒），超过 100ms 才记录
var RateLimitWaitSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "hiring_rate_limit_wait_seconds",
		Help:    "限流等待耗时（秒）",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	},
	[]string{"component", "provider"},
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 等复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
