package router

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/postpilot/backend/internal/infrastructure/auth"
	"github.com/postpilot/backend/internal/infrastructure/config"
	"github.com/postpilot/backend/internal/infrastructure/logger"
	"github.com/postpilot/backend/internal/interfaces/http/middleware"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router manages HTTP route registration
type Router struct {
	engine     *gin.Engine
	apiVersion string
	registrars []RouteRegistrar
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{
		engine:     engine,
		apiVersion: "v1",
		registrars: make([]RouteRegistrar, 0),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register adds a RouteRegistrar to be registered later
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup registers all routes with the engine under the versioned API group
func (r *Router) Setup() {
	api := r.engine.Group("/api/" + r.apiVersion)

	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
}

// Engine returns the underlying gin engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// EngineConfig carries the dependencies for the middleware stack
type EngineConfig struct {
	AppConfig      *config.Config
	Logger         *zap.Logger
	JWTService     *auth.JWTService
	TokenBlacklist auth.TokenBlacklist
	TracingEnabled bool
}

// NewEngine builds a gin engine with the standard middleware stack.
// Order matters: request ID and logging come first so every later
// middleware logs with correlation, auth runs before rate limiting so the
// limiter can key by user.
func NewEngine(cfg EngineConfig) *gin.Engine {
	if cfg.AppConfig.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if len(cfg.AppConfig.HTTP.TrustedProxies) > 0 {
		_ = engine.SetTrustedProxies(cfg.AppConfig.HTTP.TrustedProxies)
	}

	middleware.SetupValidator()

	engine.Use(middleware.RequestID())
	engine.Use(logger.GinMiddleware(cfg.Logger))
	engine.Use(logger.Recovery(cfg.Logger))
	if cfg.TracingEnabled {
		engine.Use(otelgin.Middleware(cfg.AppConfig.App.Name))
	}
	engine.Use(middleware.Secure())

	corsCfg := middleware.DefaultCORSConfig()
	if len(cfg.AppConfig.HTTP.CORSAllowOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.AppConfig.HTTP.CORSAllowOrigins
	}
	if len(cfg.AppConfig.HTTP.CORSAllowMethods) > 0 {
		corsCfg.AllowMethods = cfg.AppConfig.HTTP.CORSAllowMethods
	}
	if len(cfg.AppConfig.HTTP.CORSAllowHeaders) > 0 {
		corsCfg.AllowHeaders = cfg.AppConfig.HTTP.CORSAllowHeaders
	}
	engine.Use(middleware.CORSWithConfig(corsCfg))

	if cfg.AppConfig.HTTP.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(cfg.AppConfig.HTTP.MaxBodySize))
	}

	if cfg.JWTService != nil {
		jwtCfg := middleware.DefaultJWTConfig(cfg.JWTService)
		jwtCfg.TokenBlacklist = cfg.TokenBlacklist
		jwtCfg.Logger = cfg.Logger
		engine.Use(middleware.JWTAuthMiddlewareWithConfig(jwtCfg))
	}

	if cfg.AppConfig.HTTP.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(
			cfg.AppConfig.HTTP.RateLimitRequests,
			cfg.AppConfig.HTTP.RateLimitWindow,
		)
		engine.Use(middleware.RateLimit(limiter))
	}

	return engine
}
