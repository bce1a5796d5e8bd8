package monitoring

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskify_http_requests_total",
		Help: "HTTP requests by method, route and status code",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taskify_http_request_duration_seconds",
		Help:    "HTTP request latency by method and route",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"method", "route"})

	httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taskify_http_requests_in_flight",
		Help: "HTTP requests currently being served",
	})

	authorizationDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskify_authorization_decisions_total",
		Help: "Authorization decisions by action and outcome",
	}, []string{"action", "decision"})

	attachmentOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskify_attachment_operations_total",
		Help: "Attachment operations by operation and outcome",
	}, []string{"op", "outcome"})

	blobBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskify_blob_bytes_written_total",
		Help: "Bytes written to the blob store",
	})

	startTime = time.Now()
)

// RecordAuthorization counts one allow or deny decision.
func RecordAuthorization(action string, allowed bool) {
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	authorizationDecisions.WithLabelValues(action, decision).Inc()
}

// RecordAttachmentOp counts an upload, delete, download or sweep result.
func RecordAttachmentOp(op, outcome string) {
	attachmentOps.WithLabelValues(op, outcome).Inc()
}

func RecordBlobBytes(n int64) {
	if n > 0 {
		blobBytes.Add(float64(n))
	}
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInFlight.Inc()

		c.Next()

		httpInFlight.Dec()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler exposes the default registry in the Prometheus text format.
func MetricsHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

type HealthChecker struct {
	mu      sync.RWMutex
	checks  map[string]HealthCheckFunc
	timeout time.Duration
}

type HealthCheck struct {
	Name     string    `json:"name"`
	Status   string    `json:"status"`
	Message  string    `json:"message,omitempty"`
	Duration string    `json:"duration"`
	LastRun  time.Time `json:"last_run"`
}

type HealthCheckFunc func(ctx context.Context) error

func NewHealthChecker(timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthChecker{checks: make(map[string]HealthCheckFunc), timeout: timeout}
}

func (h *HealthChecker) Register(name string, check HealthCheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// Run executes every registered check concurrently, each bounded by the
// checker's timeout.
func (h *HealthChecker) Run(ctx context.Context) []HealthCheck {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	funcs := make([]HealthCheckFunc, 0, len(h.checks))
	for name, fn := range h.checks {
		names = append(names, name)
		funcs = append(funcs, fn)
	}
	h.mu.RUnlock()

	results := make([]HealthCheck, len(names))
	var wg sync.WaitGroup
	for i := range names {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()

			started := time.Now()
			result := HealthCheck{Name: names[i], Status: "healthy", LastRun: started}
			if err := funcs[i](checkCtx); err != nil {
				result.Status = "unhealthy"
				result.Message = err.Error()
			}
			result.Duration = time.Since(started).String()
			results[i] = result
		}(i)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}

func healthy(checks []HealthCheck) bool {
	for _, check := range checks {
		if check.Status != "healthy" {
			return false
		}
	}
	return true
}

type SystemMetrics struct {
	Uptime         string `json:"uptime"`
	GoroutineCount int    `json:"goroutine_count"`
	AllocMB        uint64 `json:"alloc_mb"`
	NumGC          uint32 `json:"num_gc"`
	GoVersion      string `json:"go_version"`
}

func GetSystemMetrics() SystemMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemMetrics{
		Uptime:         time.Since(startTime).String(),
		GoroutineCount: runtime.NumGoroutine(),
		AllocMB:        m.Alloc / 1024 / 1024,
		NumGC:          m.NumGC,
		GoVersion:      runtime.Version(),
	}
}

func (h *HealthChecker) HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := h.Run(c.Request.Context())

		overallStatus := "healthy"
		status := http.StatusOK
		if !healthy(checks) {
			overallStatus = "unhealthy"
			status = http.StatusServiceUnavailable
		}

		c.JSON(status, gin.H{
			"status":    overallStatus,
			"timestamp": time.Now(),
			"checks":    checks,
			"system":    GetSystemMetrics(),
		})
	}
}

func (h *HealthChecker) ReadinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if healthy(h.Run(c.Request.Context())) {
			c.JSON(http.StatusOK, gin.H{
				"status":    "ready",
				"timestamp": time.Now(),
			})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "not ready",
			"timestamp": time.Now(),
		})
	}
}

func LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "alive",
			"timestamp": time.Now(),
			"uptime":    time.Since(startTime).String(),
		})
	}
}
