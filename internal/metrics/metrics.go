// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultSkipped = "skipped"
	ResultEmpty   = "empty"
)

var (
	// Crawl
	CrawlPages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telco_crawl_pages_total",
			Help: "Pages processed by the crawler",
		},
		[]string{"result"},
	)

	CrawlImages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telco_crawl_images_total",
			Help: "Images considered for OCR",
		},
		[]string{"result"},
	)

	CrawlDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "telco_crawl_duration_seconds",
			Help:    "Wall-clock duration of crawl runs",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200},
		},
	)

	// Chat
	ChatRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telco_chat_requests_total",
			Help: "Chat turns by dispatch route and outcome kind",
		},
		[]string{"route", "kind"},
	)

	LLMDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "telco_llm_duration_seconds",
			Help:    "Answer generation latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	GeocodeRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telco_geocode_requests_total",
			Help: "Geocoder lookups by outcome",
		},
		[]string{"result"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
