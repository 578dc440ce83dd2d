// Package server exposes the conversation API: the request/response surface
// the sync engine calls, and the write path that fans the corresponding push
// events out on the bus.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/estiakahmed98/chatsync/internal/config"
	"github.com/estiakahmed98/chatsync/internal/pubsub"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	E         *echo.Echo
	cfg       *config.Config
	store     Store
	publisher pubsub.Publisher
}

// CustomValidator wraps go-playground/validator to implement Echo's
// Validator interface.
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new CustomValidator.
func NewValidator() *CustomValidator {
	return &CustomValidator{validator: validator.New()}
}

// Validate implements the echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// New creates a new Server instance.
func New(cfg *config.Config, store Store, publisher pubsub.Publisher) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Validator = NewValidator()

	return &Server{
		E:         e,
		cfg:       cfg,
		store:     store,
		publisher: publisher,
	}
}

// Start runs the server until an interrupt arrives, then drains it.
func (s *Server) Start() {
	go func() {
		if err := s.E.Start(s.cfg.HTTPAddr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "error", err)
		}
	}()

	waitForShutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.E.Shutdown(ctx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}
}

// requireUser extracts the caller identity placed on the request by the
// upstream session layer. Authentication itself is out of scope here.
func requireUser(c echo.Context) (string, error) {
	userID := c.Request().Header.Get("X-User-ID")
	if userID == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing user identity")
	}
	return userID, nil
}
