package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	AuthSignUpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_signups_total",
			Help: "Total number of sign-up attempts.",
		},
		[]string{"result"},
	)

	AuthSignInsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_signins_total",
			Help: "Total number of sign-in attempts.",
		},
		[]string{"result"},
	)

	NotificationsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_notifications_published_total",
			Help: "Total number of notification publish attempts.",
		},
		[]string{"transport", "result"},
	)

	SearchHealthChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_search_health_checks_total",
			Help: "Total number of search cluster health probes.",
		},
		[]string{"result"},
	)
)

// MustRegister registers every collector with the default registry, adding a
// constant service label.
func MustRegister(serviceName string) {
	reg := prometheus.WrapRegistererWith(prometheus.Labels{"service": serviceName}, prometheus.DefaultRegisterer)
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		AuthSignUpsTotal,
		AuthSignInsTotal,
		NotificationsPublishedTotal,
		SearchHealthChecksTotal,
	)
}
