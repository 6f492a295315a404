package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxd/internal/core"
	"github.com/fyrsmithlabs/voxd/internal/protocol"
	"github.com/fyrsmithlabs/voxd/internal/session"
	"github.com/fyrsmithlabs/voxd/internal/store"
)

// Server exposes the orchestrator over HTTP: message injection, session
// inspection, health and Prometheus metrics.
type Server struct {
	echo    *echo.Echo
	enqueue func(protocol.Message)
	store   core.SessionStore
	logger  *zap.Logger
	addr    string
}

// NewServer builds the HTTP surface. enqueue feeds the dispatcher; st
// backs the session endpoints.
func NewServer(addr string, enqueue func(protocol.Message), st core.SessionStore, logger *zap.Logger) (*Server, error) {
	if enqueue == nil {
		return nil, errors.New("enqueue is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{echo: e, enqueue: enqueue, store: st, logger: logger, addr: addr}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/v1")
	v1.POST("/messages", s.handleMessage)
	v1.GET("/sessions", s.handleListSessions)
	v1.GET("/sessions/:id", s.handleGetSession)
	v1.DELETE("/sessions/:id", s.handleDeleteSession)
}

// HealthResponse is the body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// AcceptedResponse is the body for POST /v1/messages.
type AcceptedResponse struct {
	Accepted bool `json:"accepted"`
}

func (s *Server) handleMessage(c echo.Context) error {
	var msg protocol.Message
	if err := c.Bind(&msg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if !msg.Kind.Inbound() {
		return echo.NewHTTPError(http.StatusBadRequest, "kind is not accepted inbound")
	}
	s.enqueue(msg)
	return c.JSON(http.StatusAccepted, AcceptedResponse{Accepted: true})
}

func (s *Server) handleListSessions(c echo.Context) error {
	list, err := s.store.ListSessions(c.Request().Context(), c.QueryParam("user_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, list)
}

// SessionResponse is the body for GET /v1/sessions/:id.
type SessionResponse struct {
	Context *session.Context `json:"context"`
	Events  []session.Event  `json:"events"`
}

func (s *Server) handleGetSession(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	sc, events, err := s.store.LoadSession(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, SessionResponse{Context: sc, Events: events})
}

func (s *Server) handleDeleteSession(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	if err := s.store.DeleteSession(c.Request().Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// Start begins serving. Blocks until the server stops.
func (s *Server) Start() error {
	return s.echo.Start(s.addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
