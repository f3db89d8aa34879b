package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// 生成流水线指标
	GenerationStepCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_steps_total",
			Help: "Pipeline steps by kind and outcome",
		},
		[]string{"step", "outcome"},
	)

	GenerationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "generation_step_duration_seconds",
			Help:    "Duration of generation pipeline steps",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"step"},
	)

	AIRetryCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_request_retries_total",
			Help: "Completion API retries by error kind",
		},
		[]string{"kind"},
	)

	SSEOpenStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_open_streams",
			Help: "Currently open SSE progress streams",
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(GenerationStepCounter)
	prometheus.MustRegister(GenerationDuration)
	prometheus.MustRegister(AIRetryCounter)
	prometheus.MustRegister(SSEOpenStreams)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
