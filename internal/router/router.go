package router

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/medihub/access-api/internal/handler"
	accessHandler "github.com/medihub/access-api/internal/handler/access"
	notificationHandler "github.com/medihub/access-api/internal/handler/notification"
	"github.com/medihub/access-api/internal/middleware"
	"github.com/medihub/access-api/pkg/auth"
	"github.com/medihub/access-api/pkg/logger"
)

const maxBodyBytes = 64 << 10

type Router struct {
	engine        *gin.Engine
	auth          *middleware.AuthMiddleware
	h             *handler.Handler
	accessH       *accessHandler.Handler
	notificationH *notificationHandler.Handler
	config        RouterConfig
	metrics       *routerMetrics
}

type routerMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	errorTotal      *prometheus.CounterVec
}

type RouterConfig struct {
	Mode           string
	RateLimit      rate.Limit
	RateBurst      int
	VerifyPerMin   int
	RequestTimeout time.Duration
	CORSConfig     middleware.CORSConfig
	MetricsPrefix  string
	Registerer     prometheus.Registerer
	Logger         *logger.Logger
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	h *handler.Handler,
	accessH *accessHandler.Handler,
	notificationH *notificationHandler.Handler,
	config RouterConfig,
) *Router {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.Registerer == nil {
		config.Registerer = prometheus.NewRegistry()
	}

	engine := gin.New()

	r := &Router{
		engine:        engine,
		auth:          auth,
		h:             h,
		accessH:       accessH,
		notificationH: notificationH,
		config:        config,
		metrics:       initRouterMetrics(config.Registerer, config.MetricsPrefix),
	}

	engine.Use(
		middleware.Recovery(config.Logger),
		middleware.RequestID(),
		middleware.Logger(config.Logger),
		r.metricsMiddleware(),
		middleware.SecurityHeaders(),
		middleware.CORS(config.CORSConfig),
		middleware.Timeout(config.RequestTimeout),
		middleware.SizeLimit(maxBodyBytes),
	)

	if config.RateLimit > 0 {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(rateLimiter.RateLimit())
	}

	return r
}

func (r *Router) Setup() {
	r.h.RegisterRoutes(&r.engine.RouterGroup)
	r.engine.GET("/metrics", r.h.MetricsHandler())

	api := r.engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	doctors := api.Group("", r.auth.Authenticate(), r.auth.RequireSelf(auth.RoleDoctor, "doctorId"))
	r.accessH.RegisterRoutes(doctors, r.verifyLimit()...)

	patients := api.Group("", r.auth.Authenticate(), r.auth.RequireSelf(auth.RolePatient, "patientId"))
	r.notificationH.RegisterRoutes(patients)
}

// verifyLimit throttles code guessing on the verify route.
func (r *Router) verifyLimit() []gin.HandlerFunc {
	n := r.config.VerifyPerMin
	if n <= 0 {
		return nil
	}
	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:  rate.Every(time.Minute / time.Duration(n)),
		Burst: n,
	})
	return []gin.HandlerFunc{limiter.RateLimit()}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func initRouterMetrics(reg prometheus.Registerer, prefix string) *routerMetrics {
	if prefix == "" {
		prefix = "medihub_access"
	}
	factory := promauto.With(reg)
	return &routerMetrics{
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: prefix + "_request_duration_seconds",
				Help: "Duration of HTTP requests in seconds",
			},
			[]string{"method", "path", "status"},
		),
		requestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		errorTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_errors_total",
				Help: "Total number of HTTP errors",
			},
			[]string{"method", "path", "type"},
		),
	}
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		code := c.Writer.Status()
		status := strconv.Itoa(code)
		duration := time.Since(start).Seconds()

		r.metrics.requestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		r.metrics.requestTotal.WithLabelValues(c.Request.Method, path, status).Inc()

		switch {
		case code >= 500:
			r.metrics.errorTotal.WithLabelValues(c.Request.Method, path, "server").Inc()
		case code >= 400:
			r.metrics.errorTotal.WithLabelValues(c.Request.Method, path, "client").Inc()
		}
	}
}
