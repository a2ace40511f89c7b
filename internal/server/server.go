package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tournevent/fulfillment/internal/oauthstate"
	"github.com/tournevent/fulfillment/pkg/carrier/melhorenvio"
	"github.com/tournevent/fulfillment/pkg/catalog"
	"github.com/tournevent/fulfillment/pkg/finance"
	"github.com/tournevent/fulfillment/pkg/orders"
	"github.com/tournevent/fulfillment/pkg/shipping"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// Server is the HTTP server for the fulfillment service.
type Server struct {
	port        int
	settingsURL func() string
	deps        Deps
	logger      *otelzap.Logger
	engine      *gin.Engine
}

// Config holds server configuration.
type Config struct {
	Port        int
	ServiceName string
	// SettingsURL is where the OAuth callback sends the operator once connected.
	SettingsURL func() string
}

// RequestObserver records per-request metrics.
type RequestObserver interface {
	RecordRequest(operation, status string, duration float64)
}

// Deps are the components behind the routes.
type Deps struct {
	Carrier  *melhorenvio.Client
	Tokens   *melhorenvio.TokenStore
	States   *oauthstate.Manager
	Shipping *shipping.Aggregator
	Catalog  *catalog.Router
	Orders   *orders.Lifecycle
	Finance  *finance.Service

	// Metrics is optional.
	Metrics RequestObserver
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// New creates a new server instance.
func New(cfg Config, deps Deps, logger *otelzap.Logger) *Server {
	registerValidators()

	settingsURL := cfg.SettingsURL
	if settingsURL == nil {
		settingsURL = func() string { return "/" }
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "fulfillment"
	}

	s := &Server{
		port:        cfg.Port,
		settingsURL: settingsURL,
		deps:        deps,
		logger:      logger,
	}

	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		requestID(),
		otelgin.Middleware(serviceName),
		s.accessLog(),
		s.requestMetrics(),
	)
	s.engine = engine
	s.registerRoutes()
	return s
}

// Engine returns the underlying gin engine.
func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) registerRoutes() {
	r := s.engine

	r.GET("/health", s.handleHealth)

	gatherer := s.deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	integrations := r.Group("/integrations/carrier")
	integrations.GET("/authorize", s.handleAuthorize)
	integrations.GET("/callback", s.handleCallback)

	ship := r.Group("/shipping")
	ship.POST("/quote", s.handleQuote)
	ship.GET("/pickups", s.handlePickups)
	ship.POST("/track", s.handleTrack)

	r.GET("/products", s.handleListProducts)
	r.GET("/products/:id", s.handleGetProduct)

	r.POST("/orders", s.handlePlaceOrder)
	r.GET("/orders/:id", s.handleGetOrder)
	r.GET("/users/:userId/orders", s.handleListUserOrders)

	admin := r.Group("/admin")
	admin.GET("/integrations/carrier/status", s.handleCarrierStatus)
	admin.GET("/orders", s.handleListOrders)
	admin.GET("/orders/shipped", s.handleListShipped)
	admin.POST("/orders/:id/status", s.handleTransition)
	admin.GET("/financial-config", s.handleGetFinancialConfig)
	admin.PUT("/financial-config", s.handleUpdateFinancialConfig)
}

// Run starts the HTTP server and blocks until context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.Int("port", s.port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
