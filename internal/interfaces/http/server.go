// Package http provides the HTTP adapter for the application layer.
// Handlers translate requests into service calls and map errors to status codes.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/harshangpate/hospital-crm/internal/application/service"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	Mode            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		Mode:            gin.ReleaseMode,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Services groups the application services the API exposes
type Services struct {
	Orders   service.OrderService
	Invoices service.InvoiceService
	Beds     service.BedService
}

// ServerOption configures optional server features
type ServerOption func(*Server)

// WithMetrics mounts handler at /metrics and records every request with middleware
func WithMetrics(handler http.Handler, middleware gin.HandlerFunc) ServerOption {
	return func(s *Server) {
		s.metricsHandler = handler
		s.metricsMiddleware = middleware
	}
}

// WithVersion sets the version reported by /health
func WithVersion(version string) ServerOption {
	return func(s *Server) {
		s.version = version
	}
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	services   Services
	logger     Logger
	version    string

	metricsHandler    http.Handler
	metricsMiddleware gin.HandlerFunc
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, services Services, logger Logger, opts ...ServerOption) *Server {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	s := &Server{
		config:   config,
		router:   gin.New(),
		services: services,
		logger:   logger,
		version:  "dev",
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	if s.metricsMiddleware != nil {
		s.router.Use(s.metricsMiddleware)
	}
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"actor_id", c.GetHeader(HeaderActorID),
			"client_ip", c.ClientIP(),
		)
	}
}

func (s *Server) setupRoutes() {
	h := NewHandlers(s.services, s.version, s.logger)

	s.router.GET("/health", h.HealthCheck)
	if s.metricsHandler != nil {
		s.router.GET("/metrics", gin.WrapH(s.metricsHandler))
	}

	api := s.router.Group("/api")
	{
		api.GET("/workflows", h.ListWorkflows)
		api.GET("/workflows/:type", h.GetWorkflow)

		orders := api.Group("/orders")
		orders.Use(sessionMiddleware())
		{
			orders.POST("", h.CreateOrder)
			orders.GET("", h.ListOrders)
			orders.GET("/export.xlsx", h.ExportOrders)
			orders.GET("/:id", h.GetOrder)
			orders.GET("/:id/history", h.GetOrderHistory)
			orders.GET("/:id/invoice", h.GetOrderInvoice)
			orders.POST("/:id/confirm", h.ConfirmOrder)
			orders.POST("/:id/advance", h.AdvanceOrder)
			orders.POST("/:id/critical", h.MarkCritical)
			orders.POST("/:id/cancel", h.CancelOrder)
		}

		invoices := api.Group("/invoices")
		invoices.Use(sessionMiddleware())
		{
			invoices.GET("", h.ListInvoices)
			invoices.GET("/:id", h.GetInvoice)
			invoices.POST("/:id/pay", h.PayInvoice)
		}

		beds := api.Group("/beds")
		beds.Use(sessionMiddleware())
		{
			beds.GET("", h.ListBeds)
		}
	}
}

// Start serves until ctx is cancelled or the listener fails
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.Address(),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", s.Address())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
