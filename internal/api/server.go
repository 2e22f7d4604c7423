// Package api is the JSON gateway over the market service.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"drealestate/internal/market"
)

// Status is the connection summary served by /health.
type Status struct {
	Provider string `json:"provider"`
	Listener string `json:"listener"`
	Endpoint string `json:"endpoint"`
	ChainID  string `json:"chainId"`
	Contract string `json:"contract"`
}

// Config configures a Server.
type Config struct {
	Listen   string
	TokenTTL time.Duration
	Secret   string
	// Status reports connection state; nil serves an empty status.
	Status func() Status
}

// Server routes HTTP requests to the market service.
type Server struct {
	echo   *echo.Echo
	market *market.Service
	issuer *Issuer
	cfg    Config
}

func NewServer(cfg Config, svc *market.Service) *Server {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	s := &Server{
		echo:   echo.New(),
		market: svc,
		issuer: NewIssuer(cfg.Secret, cfg.TokenTTL),
		cfg:    cfg,
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORS())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Debug("HTTP", slog.String("method", v.Method), slog.String("uri", v.URI),
				slog.Int("status", v.Status), slog.Duration("latency", v.Latency))
			return nil
		},
	}))

	s.routes()
	return s
}

func (s *Server) routes() {
	e := s.echo
	auth := s.issuer.Middleware()

	e.GET("/health", s.health)
	e.GET("/accounts", s.accounts)
	e.POST("/session", s.createSession)

	e.GET("/properties", s.marketplace, auth)
	e.GET("/properties/all", s.allProperties)
	e.GET("/properties/:id", s.property)
	e.GET("/me/properties", s.ownedProperties, auth)
	e.POST("/properties", s.listProperty, auth)
	e.POST("/properties/:id/buy", s.buyProperty, auth)
	e.POST("/properties/:id/toggle", s.toggleForSale, auth)
	e.PUT("/properties/:id/price", s.updatePrice, auth)

	e.GET("/transactions/pending", s.pending)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("🌐 API listening", slog.String("addr", s.cfg.Listen))
		if err := s.echo.Start(s.cfg.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}
