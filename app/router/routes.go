// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/amirphl/counter-app/app/dto"
	"github.com/amirphl/counter-app/app/handlers"
	"github.com/amirphl/counter-app/app/middleware"
	"github.com/amirphl/counter-app/config"
	"github.com/amirphl/counter-app/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const healthPath = "/api/v1/health"

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	Shutdown(timeout time.Duration) error
	GetApp() *fiber.App
}

// Handlers groups the handlers served by the router
type Handlers struct {
	Counter      handlers.CounterHandlerInterface
	AdminCounter handlers.AdminCounterHandlerInterface
	Page         handlers.PageHandlerInterface
	Health       *handlers.HealthHandler
	Views        fiber.Views // renders Page, see handlers.NewPageViews
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app      *fiber.App
	handlers Handlers
	cfg      *config.ProductionConfig
	logger   *zap.Logger
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(h Handlers, cfg *config.ProductionConfig, logger *zap.Logger) Router {
	r := &FiberRouter{
		handlers: h,
		cfg:      cfg,
		logger:   logger,
	}

	r.app = fiber.New(fiber.Config{
		AppName:      "Counter App",
		ServerHeader: "counter-app",
		ErrorHandler: r.errorHandler,
		BodyLimit:    cfg.Server.BodyLimit,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ProxyHeader:  cfg.Server.ProxyHeader,
		Views:        h.Views,
	})

	return r
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	r.logger.Info("Setting up routes")

	// Global middleware
	r.setupMiddleware()

	// Server-rendered pages
	r.app.Get("/", r.handlers.Page.Home)
	r.app.Get("/counter", r.handlers.Page.Counter)
	r.app.Post("/counter/increment", r.handlers.Page.Increment)
	r.app.Post("/counter/decrement", r.handlers.Page.Decrement)
	r.app.Post("/counter/reset", r.handlers.Page.Reset)

	if r.cfg.Metrics.Enabled {
		r.app.Get(r.cfg.Metrics.Path, adaptor.HTTPHandler(promhttp.Handler()))
	}

	// API routes
	api := r.app.Group("/api/v1")

	// Health check route (no rate limiting)
	api.Get("/health", r.handlers.Health.Check)

	if !r.cfg.IsProduction() {
		api.Get("/docs", r.getAPIDocumentation)
	}

	counters := api.Group("/counters")
	counters.Get("/", r.handlers.Counter.List)
	counters.Get("/:name", r.handlers.Counter.Get)
	counters.Get("/:name/value", r.handlers.Counter.GetValue)
	counters.Post("/:name/increment", r.handlers.Counter.Increment)
	counters.Post("/:name/decrement", r.handlers.Counter.Decrement)
	counters.Post("/:name/reset", r.handlers.Counter.Reset)

	apiKeyGuard := middleware.NewAPIKeyMiddleware(r.cfg.Security.APIKeyHeader, r.cfg.Admin.APIKeys, r.logger)
	admin := api.Group("/admin", apiKeyGuard.Require())
	admin.Get("/counters/export", r.handlers.AdminCounter.Export)

	// Not found handler
	r.app.Use(r.notFoundHandler)

	r.logger.Info("Routes configured successfully")
}

// setupMiddleware configures global middleware
func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header: fiber.HeaderXRequestID,
		Generator: func() string {
			return uuid.NewString()
		},
	}))

	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			r.logger.Error("panic recovered",
				zap.String("request_id", requestid.FromContext(c)),
				zap.Any("error", e),
				zap.String("path", c.Path()),
				zap.String("method", c.Method()),
				zap.String("ip", c.IP()),
				zap.Stack("stack"),
			)
		},
	}))

	if r.cfg.Metrics.Enabled {
		r.app.Use(middleware.Metrics())
	}

	if r.cfg.Logging.EnableAccessLog {
		r.app.Use(middleware.AccessLog(r.logger, func(path string) bool {
			return path == healthPath || path == r.cfg.Metrics.Path
		}))
	}

	// Security headers middleware
	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:             "0",
		ContentTypeNosniff:        "nosniff",
		XFrameOptions:             r.cfg.Security.XFrameOptions,
		HSTSMaxAge:                r.cfg.Security.HSTSMaxAge,
		ContentSecurityPolicy:     r.cfg.Security.CSPPolicy,
		ReferrerPolicy:            r.cfg.Security.ReferrerPolicy,
		CrossOriginOpenerPolicy:   "same-origin",
		CrossOriginResourcePolicy: "same-origin",
		OriginAgentCluster:        "?1",
		XDNSPrefetchControl:       "off",
		XDownloadOptions:          "noopen",
		XPermittedCrossDomain:     "none",
	}))

	r.app.Use(cors.New(cors.Config{
		AllowOrigins:     r.cfg.Security.AllowedOrigins,
		AllowMethods:     r.cfg.Security.AllowedMethods,
		AllowHeaders:     r.cfg.Security.AllowedHeaders,
		ExposeHeaders:    []string{fiber.HeaderXRequestID, fiber.HeaderContentDisposition},
		AllowCredentials: r.cfg.Security.AllowCredentials,
		MaxAge:           r.cfg.Security.CORSMaxAge,
	}))

	if r.cfg.Server.EnableCompression {
		r.app.Use(compress.New(compress.Config{
			Level: compress.LevelBestSpeed,
		}))
	}

	r.app.Use(limiter.New(limiter.Config{
		Max:        r.cfg.Security.GlobalRateLimit,
		Expiration: r.cfg.Security.RateLimitWindow,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP() // Rate limit by IP
		},
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
				Success: false,
				Message: "Too many requests. Please try again later.",
				Error: dto.ErrorDetail{
					Code: "RATE_LIMIT_EXCEEDED",
				},
			})
		},
		Next: func(c fiber.Ctx) bool {
			// Skip rate limiting for health checks and scrapes
			return c.Path() == healthPath || c.Path() == r.cfg.Metrics.Path
		},
	}))
}

func (r *FiberRouter) Start(address string) error {
	r.logger.Info("Starting server", zap.String("address", address))
	return r.app.Listen(address, fiber.ListenConfig{DisableStartupMessage: true})
}

func (r *FiberRouter) Shutdown(timeout time.Duration) error {
	return r.app.ShutdownWithTimeout(timeout)
}

func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

func (r *FiberRouter) getAPIDocumentation(c fiber.Ctx) error {
	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "API documentation retrieved successfully",
		Data: fiber.Map{
			"title":       "Counter App API Documentation",
			"version":     r.cfg.Deployment.Version,
			"description": "Named persistent counters with increment, decrement and reset",
			"endpoints":   GetRouteDocumentation(),
		},
	})
}

func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "The requested resource was not found",
		Error: dto.ErrorDetail{
			Code: "NOT_FOUND",
			Details: fiber.Map{
				"path":       c.Path(),
				"method":     c.Method(),
				"request_id": requestid.FromContext(c),
			},
		},
	})
}

func (r *FiberRouter) errorHandler(c fiber.Ctx, err error) error {
	// Default error code
	code := fiber.StatusInternalServerError
	message := "An internal server error occurred"
	errorCode := "INTERNAL_ERROR"

	// Retrieve the custom status code if it's a fiber.*Error
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		if code < fiber.StatusInternalServerError {
			message = fe.Message
			errorCode = strings.ToUpper(strings.ReplaceAll(http.StatusText(code), " ", "_"))
		}
	}

	if code >= fiber.StatusInternalServerError {
		r.logger.Error("request failed",
			zap.Int("status", code),
			zap.String("path", c.Path()),
			zap.String("request_id", requestid.FromContext(c)),
			zap.Error(err),
		)
	}

	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code: errorCode,
			Details: fiber.Map{
				"timestamp":  utils.UTCNowUnix(),
				"request_id": requestid.FromContext(c),
			},
		},
	})
}
