package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter metrics
var (
	// Login counters
	LoginCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_login_total",
			Help: "Total number of login attempts by flow",
		},
		[]string{"flow"}, // flow can be "global", "tenant", "api_key", "oauth"
	)

	// Registration counter
	RegisterCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_register_total",
			Help: "Total number of user registrations",
		},
	)

	// Token issuance counter
	TokenIssuedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_tokens_issued_total",
			Help: "Total number of tokens issued by type",
		},
		[]string{"token_type"}, // "access" or "refresh"
	)

	// Token refresh counter
	TokenRefreshCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_token_refresh_total",
			Help: "Total number of refresh-token exchanges",
		},
	)

	// Invitation lifecycle counter
	InvitationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_invitations_total",
			Help: "Total number of invitation operations",
		},
		[]string{"operation"}, // "created", "accepted", "cancelled"
	)

	// JWT verification counter
	VerifyCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_jwt_verifications_total",
			Help: "Total number of stateless JWT verifications",
		},
		[]string{"result"}, // "valid" or "invalid"
	)

	// HTTP request counter by endpoint and status
	HTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_http_requests_total",
			Help: "Total number of HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)

	// Error counters
	AuthErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_auth_errors_total",
			Help: "Total number of authentication errors",
		},
		[]string{"type"}, // type can be "invalid_credentials", "invalid_api_key", "invalid_token" etc.
	)
)

// Histogram metrics
var (
	// Request duration
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "broker_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	// Database operation duration
	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "broker_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // operation can be "query", "insert", "update", "delete"
	)

	// API-key scan width: how many project digests a lookup had to try
	APIKeyScanDepth = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "broker_api_key_scan_depth",
			Help:    "Number of project digests compared per API key lookup",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		},
	)
)

// Gauge metrics
var (
	// System info
	InfoGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "broker_info",
			Help: "Information about the identity broker",
		},
		[]string{"version"},
	)
)

func init() {
	// Register counters
	prometheus.MustRegister(LoginCounter)
	prometheus.MustRegister(RegisterCounter)
	prometheus.MustRegister(TokenIssuedCounter)
	prometheus.MustRegister(TokenRefreshCounter)
	prometheus.MustRegister(InvitationCounter)
	prometheus.MustRegister(VerifyCounter)
	prometheus.MustRegister(HTTPRequestCounter)
	prometheus.MustRegister(AuthErrorCounter)

	// Register histograms
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(DBOperationDuration)
	prometheus.MustRegister(APIKeyScanDepth)

	// Register gauges
	prometheus.MustRegister(InfoGauge)

	// Set initial service info
	InfoGauge.With(prometheus.Labels{"version": "1.0.0"}).Set(1)
}

// RecordAuthError increments the auth error counter for the given type
func RecordAuthError(errorType string) {
	AuthErrorCounter.With(prometheus.Labels{"type": errorType}).Inc()
}

// RecordTokenIssued increments the token issuance counter
func RecordTokenIssued(tokenType string) {
	TokenIssuedCounter.With(prometheus.Labels{"token_type": tokenType}).Inc()
}

// GetPrometheusHandler returns an HTTP handler for the Prometheus metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// TrackDBOperation measures database operation durations
func TrackDBOperation(operation string) func(time.Time) {
	startTime := time.Now()
	return func(endTime time.Time) {
		duration := time.Since(startTime).Seconds()
		DBOperationDuration.With(prometheus.Labels{
			"operation": operation,
		}).Observe(duration)
	}
}

// MetricsMiddleware creates a middleware function that captures metrics for each request
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			// Execute the request handler
			err := next(c)

			// Record request duration
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(c.Response().Status)
			endpoint := c.Path()
			method := c.Request().Method

			RequestDuration.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Observe(duration)

			HTTPRequestCounter.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Inc()

			return err
		}
	}
}
