package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Confirmation sources.
const (
	SourceWebhook = "webhook"
	SourceNative  = "native"
)

// Confirmation results.
const (
	ResultApplied   = "applied"
	ResultDuplicate = "duplicate"
	ResultIgnored   = "ignored"
	ResultRejected  = "rejected"
)

// PaymentMetrics tracks the payment pipeline: created payments per backend
// and confirmation outcomes per source.
type PaymentMetrics struct {
	created       *prometheus.CounterVec
	confirmations *prometheus.CounterVec
}

func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payments_created_total",
		Help:      "Payments started, by gateway backend.",
	}, []string{"backend"})
	confirmations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_confirmations_total",
		Help:      "Payment confirmations processed, by source and result.",
	}, []string{"source", "result"})
	reg.MustRegister(created, confirmations)
	return &PaymentMetrics{created: created, confirmations: confirmations}
}

func (p *PaymentMetrics) IncCreated(backend string) {
	if p == nil || p.created == nil {
		return
	}
	p.created.WithLabelValues(normalizeLabel(backend)).Inc()
}

func (p *PaymentMetrics) IncConfirmation(source, result string) {
	if p == nil || p.confirmations == nil {
		return
	}
	p.confirmations.WithLabelValues(normalizeLabel(source), normalizeLabel(result)).Inc()
}
