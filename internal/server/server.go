// Package server exposes the query and sync operations over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/user/healthchat/internal/state"
	"github.com/user/healthchat/internal/types"
)

// Asker answers a question within a conversation.
type Asker interface {
	Ask(ctx context.Context, conv types.ConversationID, text string) (*types.Answer, error)
}

// Syncer runs a full sync for a subject.
type Syncer interface {
	FetchAll(ctx context.Context, subject types.SubjectID, onProgress types.ProgressFunc) (*types.Summary, error)
}

// Server wires the HTTP API onto an echo instance.
type Server struct {
	echo      *echo.Echo
	asker     Asker
	syncer    Syncer
	records   types.RecordStore
	summaries types.SummaryStore
}

func New(asker Asker, syncer Syncer, records types.RecordStore, summaries types.SummaryStore) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:      e,
		asker:     asker,
		syncer:    syncer,
		records:   records,
		summaries: summaries,
	}
	s.RegisterRoutes(e)
	return s
}

func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", s.Health)
	api := e.Group("/api")
	api.POST("/query", s.Query)
	api.POST("/sync/:subject", s.Sync)
	api.GET("/counts/:subject", s.Counts)
	api.GET("/summary/:subject", s.Summary)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	slog.Info("http api listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type queryRequest struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

type queryResponse struct {
	*types.Answer
	Error string `json:"error,omitempty"`
}

// Query handles POST /api/query. A failed server lookup still returns the
// plain-language answer, with a 502 status and the error text.
func (s *Server) Query(c echo.Context) error {
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}
	conv := types.ConversationID(req.ConversationID)
	if conv != "" && !conv.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "conversation_id may only contain letters, digits, '-' and '_'")
	}

	answer, err := s.asker.Ask(c.Request().Context(), conv, req.Text)
	if err != nil {
		if answer == nil {
			slog.Error("query failed", "conversation_id", req.ConversationID, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusBadGateway, queryResponse{Answer: answer, Error: err.Error()})
	}
	return c.JSON(http.StatusOK, queryResponse{Answer: answer})
}

func subjectParam(c echo.Context) (types.SubjectID, error) {
	subject := types.ParseSubject(c.Param("subject"))
	if subject == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "subject is required")
	}
	return subject, nil
}

// Sync handles POST /api/sync/:subject. It blocks until the run finishes.
func (s *Server) Sync(c echo.Context) error {
	subject, err := subjectParam(c)
	if err != nil {
		return err
	}
	summary, err := s.syncer.FetchAll(c.Request().Context(), subject, func(p types.FetchProgress) {
		slog.Debug("sync progress", "subject", subject, "resource_type", p.ResourceType, "status", p.Status)
	})
	if err != nil {
		slog.Error("sync failed", "subject", subject, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, summary)
}

func (s *Server) Counts(c echo.Context) error {
	subject, err := subjectParam(c)
	if err != nil {
		return err
	}
	counts, err := s.records.GetCounts(c.Request().Context(), subject)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, counts)
}

func (s *Server) Summary(c echo.Context) error {
	if s.summaries == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "summaries not configured")
	}
	subject, err := subjectParam(c)
	if err != nil {
		return err
	}
	summary, err := s.summaries.Get(c.Request().Context(), subject)
	if errors.Is(err, state.ErrNoSummary) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, summary)
}
