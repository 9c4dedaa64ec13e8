// Package metrics は Prometheus の指標を提供します。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shouni/gemini-picture-book/pkg/book"
	"github.com/shouni/gemini-picture-book/pkg/generator"
)

const namespace = "picture_book"

// Metrics は生成処理と HTTP の指標をまとめたものです。
// generator.CallObserver と book.Observer を満たします。
type Metrics struct {
	ProviderCalls   *prometheus.CounterVec
	ProviderRetries *prometheus.CounterVec
	Books           *prometheus.CounterVec
	BookDuration    prometheus.Histogram

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

var (
	_ generator.CallObserver = (*Metrics)(nil)
	_ book.Observer          = (*Metrics)(nil)
)

// New は reg に指標を登録して返します。
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ProviderCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "calls_total",
				Help:      "Total number of generative model calls",
			},
			[]string{"kind", "status"},
		),
		ProviderRetries: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "retries_total",
				Help:      "Total number of retried generative model calls",
			},
			[]string{"kind"},
		),
		Books: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "books_total",
				Help:      "Total number of picture book generations",
			},
			[]string{"status"},
		),
		BookDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "book_duration_seconds",
				Help:      "Picture book generation duration in seconds",
				Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
			},
		),
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.01, .05, .1, .5, 1, 5, 30, 120, 600},
			},
			[]string{"method", "route"},
		),
	}
}

func (m *Metrics) ObserveCall(kind generator.Kind, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ProviderCalls.WithLabelValues(string(kind), status).Inc()
}

func (m *Metrics) ObserveRetry(kind generator.Kind) {
	m.ProviderRetries.WithLabelValues(string(kind)).Inc()
}

// OnStateChange は完了と失敗だけを数えます。
func (m *Metrics) OnStateChange(s book.State) {
	switch s.Phase {
	case book.PhaseComplete:
		m.Books.WithLabelValues("complete").Inc()
		m.BookDuration.Observe(s.Elapsed.Seconds())
	case book.PhaseFailed:
		m.Books.WithLabelValues("failed").Inc()
	}
}
