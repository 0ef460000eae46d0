package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardshop_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cardshop_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	PurchasesInitiatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardshop_purchases_initiated_total",
			Help: "Purchase initiations by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	PurchasesFinalizedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardshop_purchases_finalized_total",
			Help: "Purchase requests that reached a terminal status",
		},
		[]string{"status"},
	)

	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardshop_webhooks_total",
			Help: "Inbound payment webhooks by provider and result",
		},
		[]string{"provider", "result"},
	)

	WalletChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardshop_wallet_changes_total",
			Help: "Ledger rows written by wallet type and source",
		},
		[]string{"type", "source"},
	)

	EmailsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardshop_emails_sent_total",
			Help: "Total number of emails sent",
		},
		[]string{"type", "status"},
	)

	EmailQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cardshop_email_queue_length",
			Help: "Current length of email queue",
		},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordPurchaseInitiated(provider, outcome string) {
	PurchasesInitiatedTotal.WithLabelValues(provider, outcome).Inc()
}

func RecordPurchaseFinalized(status string) {
	PurchasesFinalizedTotal.WithLabelValues(status).Inc()
}

func RecordWebhook(provider, result string) {
	WebhooksTotal.WithLabelValues(provider, result).Inc()
}

func RecordWalletChange(walletType, source string) {
	WalletChangesTotal.WithLabelValues(walletType, source).Inc()
}

func RecordEmail(emailType, status string) {
	EmailsSentTotal.WithLabelValues(emailType, status).Inc()
}
