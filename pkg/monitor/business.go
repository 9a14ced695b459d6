package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// BusinessMetrics 定义业务监控指标
type BusinessMetrics struct {
	ApprovalsPending  prometheus.Gauge
	ApprovalsTotal    *prometheus.CounterVec
	SignDuration      *prometheus.HistogramVec
	RPCErrorsTotal    *prometheus.CounterVec
	ActivityLogErrors prometheus.Counter
}

// Business 指标对象在包加载时创建, 未注册时也可以安全使用 (例如单元测试)
var Business = NewBusinessMetrics()

func NewBusinessMetrics() *BusinessMetrics {
	return &BusinessMetrics{
		ApprovalsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wallet_approvals_pending",
			Help: "Number of activities waiting for a user decision",
		}),
		ApprovalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_approvals_total",
			Help: "Settled approvals by outcome",
		}, []string{"outcome"}),
		SignDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wallet_sign_duration_seconds",
			Help:    "Duration of vault signing",
			Buckets: prometheus.DefBuckets,
		}, []string{"account_type"}),
		RPCErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_rpc_errors_total",
			Help: "Error envelopes returned by chain RPC",
		}, []string{"chain"}),
		ActivityLogErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wallet_activity_log_errors_total",
			Help: "Activity log writes that failed after a successful broadcast",
		}),
	}
}

func (m *BusinessMetrics) register(r prometheus.Registerer) {
	r.MustRegister(
		m.ApprovalsPending,
		m.ApprovalsTotal,
		m.SignDuration,
		m.RPCErrorsTotal,
		m.ActivityLogErrors,
	)
}
