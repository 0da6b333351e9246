package api

import (
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
	"golang.org/x/time/rate"

	"github.com/realfinance/estate-api/internal/api/handler"
	"github.com/realfinance/estate-api/internal/api/middleware"
	"github.com/realfinance/estate-api/internal/core/domain"
	"github.com/realfinance/estate-api/internal/core/ports"
	"github.com/realfinance/estate-api/internal/infrastructure/http/handlers"

	_ "github.com/realfinance/estate-api/docs"
)

// Deps is everything the HTTP surface needs. It is assembled in main.
type Deps struct {
	Log         zerolog.Logger
	Development bool

	AuthService ports.AuthService
	Tokens      ports.TokenValidator
	Roles       handler.RoleLister
	Mailer      ports.EmailSender
	Readiness   map[string]handlers.Pinger

	// AuthRate and AuthBurst throttle /auth/* per client IP.
	AuthRate  rate.Limit
	AuthBurst int

	// Registerer and Gatherer default to the global Prometheus registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Deps) *echo.Echo {
	if deps.Registerer == nil {
		deps.Registerer = prometheus.DefaultRegisterer
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(deps.Log))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:                 "estate_http",
		Registerer:                deps.Registerer,
		DoNotUseRequestPathFor404: true,
	}))

	// --- Health probes and metrics (no auth required) ---
	healthHandler := handlers.NewHealthHandler()
	healthDepsHandler := handlers.NewHealthDependenciesHandler(deps.Readiness)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: deps.Gatherer}))

	if deps.Development {
		e.GET("/swagger/*", echoSwagger.WrapHandler)
	}

	// --- Auth routes ---
	authHandler := handler.NewAuthHandler(deps.AuthService)
	auth := e.Group("/auth", authRateLimiter(deps.AuthRate, deps.AuthBurst))
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/password/forgot", authHandler.ForgotPassword)
	auth.POST("/password/reset", authHandler.ResetPassword)

	// --- Authenticated API ---
	v1 := e.Group("/v1", middleware.Auth(deps.Tokens))

	accountHandler := handler.NewAccountHandler()
	v1.GET("/account/me", accountHandler.Me)

	roleHandler := handler.NewRoleHandler(deps.Roles)
	v1.GET("/roles", roleHandler.List, middleware.RBAC(domain.RoleAdmin))

	notificationHandler := handler.NewNotificationHandler(deps.Mailer)
	v1.POST("/notifications/email", notificationHandler.SendEmail,
		middleware.RBAC(domain.RoleAdmin, domain.RoleManager))

	return e
}

func authRateLimiter(limit rate.Limit, burst int) echo.MiddlewareFunc {
	if limit <= 0 {
		limit = 5
	}
	return echomiddleware.RateLimiterWithConfig(echomiddleware.RateLimiterConfig{
		Store: echomiddleware.NewRateLimiterMemoryStoreWithConfig(echomiddleware.RateLimiterMemoryStoreConfig{
			Rate:      limit,
			Burst:     burst,
			ExpiresIn: 5 * time.Minute,
		}),
	})
}

// requestLogger replaces Echo's text logger with one structured line per request.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Status >= 500 {
				ev = log.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("path", v.URIPath).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	})
}
