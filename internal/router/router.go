package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/careclinic/scheduler-api/internal/handler"
	"github.com/careclinic/scheduler-api/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type RouterConfig struct {
	RateLimitRPS   float64
	RateLimitBurst int
}

type Router struct {
	engine      *gin.Engine
	auth        *middleware.AuthMiddleware
	authH       Handler
	schedulingH Handler
	h           *handler.Handler
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	authH Handler,
	schedulingH Handler,
	h *handler.Handler,
	config RouterConfig,
) *Router {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(
		middleware.Recovery(),
		middleware.Logger(),
	)

	if config.RateLimitRPS > 0 {
		rateLimiter := middleware.NewRateLimiter(config.RateLimitRPS, config.RateLimitBurst)
		engine.Use(rateLimiter.RateLimit())
	}

	return &Router{
		engine:      engine,
		auth:        auth,
		authH:       authH,
		schedulingH: schedulingH,
		h:           h,
	}
}

func (r *Router) Setup() {
	r.engine.GET("/health", r.h.HealthCheck)
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.engine.Group("/api/v1")

	// Public routes
	r.authH.RegisterRoutes(api)

	// Protected routes
	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	r.schedulingH.RegisterRoutes(protected)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) Run(addr string) error {
	r.Setup()
	return r.engine.Run(addr)
}
