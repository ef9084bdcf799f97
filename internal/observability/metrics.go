package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total number of HTTP requests processed by the chat service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chat_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
		[]string{"kind"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_events_total",
			Help: "Total number of websocket events.",
		},
		[]string{"kind", "event"},
	)
	broadcastErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_broadcast_errors_total",
			Help: "Total number of realtime broadcast write failures.",
		},
	)
	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Total number of persisted chat messages.",
		},
		[]string{"sender"},
	)
	aiFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ai_fallbacks_total",
			Help: "Total number of AI generations replaced by fallback content.",
		},
		[]string{"kind", "reason"},
	)
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_notifications_total",
			Help: "Notification lifecycle events.",
		},
		[]string{"event"},
	)
	pushDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_push_deliveries_total",
			Help: "Push gateway delivery attempts by outcome.",
		},
		[]string{"gateway", "outcome"},
	)
	schedulerPassDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_scheduler_pass_duration_seconds",
			Help:    "Duration of scheduled passes.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pass"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		broadcastErrorsTotal,
		messagesTotal,
		aiFallbacksTotal,
		notificationsTotal,
		pushDeliveriesTotal,
		schedulerPassDuration,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler exposes the default registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

func IncWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Inc()
}

func DecWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Dec()
}

func IncWSEvent(kind, event string) {
	wsEventsTotal.WithLabelValues(kind, event).Inc()
}

func IncBroadcastError() {
	broadcastErrorsTotal.Inc()
}

func IncMessage(sender string) {
	messagesTotal.WithLabelValues(sender).Inc()
}

func IncAIFallback(kind, reason string) {
	aiFallbacksTotal.WithLabelValues(kind, reason).Inc()
}

func IncNotification(event string) {
	notificationsTotal.WithLabelValues(event).Inc()
}

func IncPushDelivery(gateway, outcome string) {
	pushDeliveriesTotal.WithLabelValues(gateway, outcome).Inc()
}

func ObserveSchedulerPass(pass string, d time.Duration) {
	schedulerPassDuration.WithLabelValues(pass).Observe(d.Seconds())
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
