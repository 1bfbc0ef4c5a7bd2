package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/handlers"
	"newsletter-go/internal/logging"
	"newsletter-go/internal/metrics"
	"newsletter-go/internal/repository"
	"newsletter-go/internal/service"
)

type Config struct {
	ServiceName    string
	ServiceVersion string
	Logger         *logging.ContextLogger
	TracerProvider trace.TracerProvider
	GinMode        string
	// Repository is the persistence gateway. Build falls back to an
	// in-memory repository when nil.
	Repository repository.SubscriberRepository
	// Metrics defaults to a fresh registry when nil.
	Metrics *metrics.Metrics
}

type Application struct {
	server  *http.Server
	config  *Config
	router  *gin.Engine
	repo    repository.SubscriberRepository
	metrics *metrics.Metrics
	service *service.SubscriptionService
	handler *handlers.SubscriptionHandler
}

func Build(config *Config) *Application {
	if config.GinMode != "" {
		gin.SetMode(config.GinMode)
	}
	if config.Logger == nil {
		config.Logger = logging.NewLogger()
	}
	if config.TracerProvider == nil {
		config.TracerProvider = otel.GetTracerProvider()
	}

	repo := config.Repository
	if repo == nil {
		repo = repository.NewInMemorySubscriberRepository(config.TracerProvider)
	}
	m := config.Metrics
	if m == nil {
		m = metrics.New()
	}

	subscriptionService := service.NewSubscriptionService(repo, config.Logger,
		service.WithTracerProvider(config.TracerProvider),
		service.WithMetrics(m),
	)
	subscriptionHandler := handlers.NewSubscriptionHandler(subscriptionService, config.Logger, config.TracerProvider)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(config.ServiceName, otelgin.WithTracerProvider(config.TracerProvider)))

	router.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		config.Logger.WithTracing(c.Request.Context()).WithFields(map[string]interface{}{
			"method":     method,
			"path":       path,
			"status":     status,
			"latency_ms": latency.Milliseconds(),
			"user_agent": c.Request.UserAgent(),
			"request_id": c.Writer.Header().Get(handlers.RequestIDHeader),
		}).Info("HTTP request completed")
	})

	router.GET("/health_check", handlers.HealthCheck)
	router.POST("/subscriptions", subscriptionHandler.Subscribe)
	router.GET("/metrics", gin.WrapH(m.Handler()))

	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Application{
		server:  server,
		config:  config,
		router:  router,
		repo:    repo,
		metrics: m,
		service: subscriptionService,
		handler: subscriptionHandler,
	}
}

// Serve accepts connections on an already bound listener until Shutdown.
func (app *Application) Serve(listener net.Listener) error {
	app.config.Logger.Info("Starting server on " + listener.Addr().String())
	if err := app.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (app *Application) Shutdown(ctx context.Context) error {
	app.config.Logger.Info("Shutting down server...")
	return app.server.Shutdown(ctx)
}

func (app *Application) GetRepo() repository.SubscriberRepository {
	return app.repo
}

func (app *Application) GetMetrics() *metrics.Metrics {
	return app.metrics
}

func (app *Application) GetService() *service.SubscriptionService {
	return app.service
}

func (app *Application) GetHandler() *handlers.SubscriptionHandler {
	return app.handler
}

func (app *Application) GetRouter() *gin.Engine {
	return app.router
}
