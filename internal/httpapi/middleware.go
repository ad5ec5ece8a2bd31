package httpapi

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/p-n-ai/pai-progress/internal/access"
)

const actorKey = "actor"

// authenticate resolves the actor from the Authorization header or the
// X-API-Key header. With queryToken set, a token query parameter is also
// accepted; browsers cannot set headers on a websocket handshake.
func authenticate(auth *access.Authenticator, queryToken bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		authorization := c.GetHeader("Authorization")
		if authorization == "" && queryToken {
			if token := c.Query("token"); token != "" {
				authorization = "Bearer " + token
			}
		}
		actor, err := auth.Authenticate(authorization, c.GetHeader("X-API-Key"))
		if err != nil {
			slog.Debug("authentication failed", "path", c.FullPath(), "error", err)
			fail(c, err)
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

func actorFrom(c *gin.Context) access.Actor {
	v, _ := c.Get(actorKey)
	actor, _ := v.(access.Actor)
	return actor
}

func requireRole(roles ...access.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := access.RequireRole(actorFrom(c), roles...); err != nil {
			fail(c, err)
			return
		}
		c.Next()
	}
}

// requireSelfOrStaff guards routes scoped to the :studentId path parameter.
func requireSelfOrStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := access.RequireSelfOrStaff(actorFrom(c), c.Param("studentId")); err != nil {
			fail(c, err)
			return
		}
		c.Next()
	}
}

// HTTPMetrics counts requests and their latency per route.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTPMetrics creates the request metrics and registers them with reg.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "endpoint"},
		),
	}
	reg.MustRegister(m.requests, m.duration)
	return m
}

func (m *HTTPMetrics) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.requests.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		switch c.FullPath() {
		case "/healthz", "/readyz", "/metrics":
			return
		}

		slog.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
