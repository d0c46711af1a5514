package gallery

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "comfypanel",
			Subsystem: "gallery",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "comfypanel",
			Subsystem: "gallery",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"method", "route"},
	)

	mutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "comfypanel",
			Subsystem: "gallery",
			Name:      "mutations_total",
			Help:      "Gallery mutations by action",
		},
		[]string{"action"},
	)

	wsSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "comfypanel",
			Subsystem: "gallery",
			Name:      "ws_subscribers",
			Help:      "Connected gallery websocket subscribers",
		},
	)
)

// observe records request metrics and logs each request at debug level.
func observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)

		requestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		requestDuration.WithLabelValues(c.Request.Method, route).Observe(elapsed.Seconds())
		slog.Debug("gallery request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", elapsed,
		)
	}
}
