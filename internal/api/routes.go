package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/mnemosyne/server/domain/entities"
	"github.com/mnemosyne/server/domain/repositories"
	"github.com/mnemosyne/server/internal/capture"
	"github.com/mnemosyne/server/internal/gateway"
	"github.com/mnemosyne/server/internal/pipeline"
	"github.com/mnemosyne/server/internal/session"
	"github.com/mnemosyne/server/usecase"
)

// Handler bundles the services the HTTP surface fronts.
type Handler struct {
	sessions   *session.Service
	devices    repositories.DeviceRegistry
	controller *capture.Controller
	pipeline   *pipeline.Orchestrator
	summarizer *usecase.SummarizeService
	hub        *gateway.Hub
	logger     *zap.Logger
}

// NewHandler creates the HTTP handler set.
func NewHandler(
	sessions *session.Service,
	devices repositories.DeviceRegistry,
	controller *capture.Controller,
	orchestrator *pipeline.Orchestrator,
	summarizer *usecase.SummarizeService,
	hub *gateway.Hub,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		sessions:   sessions,
		devices:    devices,
		controller: controller,
		pipeline:   orchestrator,
		summarizer: summarizer,
		hub:        hub,
		logger:     logger,
	}
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, h *Handler) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "mnemosyne-server",
		})
	})

	api := e.Group("/api")

	// Device APIs
	api.GET("/devices", h.listDevices)

	// Capture APIs
	api.POST("/audio/start", h.startCapture)
	api.POST("/audio/stop/:session_id", h.stopCapture)
	api.GET("/audio/status/:session_id", h.captureStatus)

	// Session APIs
	api.GET("/sessions", h.listSessions)
	api.POST("/sessions", h.createSession)
	api.GET("/sessions/:id", h.getSession)
	api.PATCH("/sessions/:id", h.updateSession)
	api.DELETE("/sessions/:id", h.deleteSession)
	api.POST("/sessions/:id/notes", h.updateNotes)
	api.POST("/sessions/:id/summarize", h.summarizeSession)

	// Summarization model APIs
	api.GET("/models", h.listModels)

	// Inference engine lifecycle APIs
	api.POST("/models/engine/load", h.loadEngine)
	api.POST("/models/engine/unload", h.unloadEngine)
	api.GET("/models/engine/status", h.engineStatus)

	// WebSocket endpoint
	e.GET("/ws", func(c echo.Context) error {
		return gateway.HandleWebSocket(h.hub, c, h.logger)
	})
}

func (h *Handler) listDevices(c echo.Context) error {
	devices, err := h.devices.ListDevices(c.Request().Context())
	if err != nil {
		h.logger.Error("Device enumeration failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "device_enumeration_failed",
			Message: err.Error(),
		})
	}
	return c.JSON(http.StatusOK, devices)
}

func (h *Handler) startCapture(c echo.Context) error {
	var req StartCaptureRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	handle, err := h.controller.Start(c.Request().Context(), req.DeviceIDs, req.SessionID)
	if err != nil {
		return h.captureError(c, err)
	}
	return c.JSON(http.StatusOK, handle)
}

func (h *Handler) stopCapture(c echo.Context) error {
	result, err := h.controller.Stop(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return h.captureError(c, err)
	}

	// Transcription runs in the background; progress streams over the
	// websocket while the HTTP caller gets the stop result immediately.
	// The request context would be cancelled on return, so the run gets
	// its own.
	go func() {
		if err := h.pipeline.Run(context.Background(), result.MergedFile, result.SessionID); err != nil {
			h.logger.Error("Transcription run failed",
				zap.String("session_id", result.SessionID),
				zap.Error(err))
		}
	}()

	return c.JSON(http.StatusOK, result)
}

func (h *Handler) captureStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.controller.Status(c.Param("session_id")))
}

func (h *Handler) listSessions(c echo.Context) error {
	sessions, err := h.sessions.List(c.Request().Context())
	if err != nil {
		h.logger.Error("Failed to list sessions", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "list_failed",
			Message: err.Error(),
		})
	}
	return c.JSON(http.StatusOK, sessions)
}

func (h *Handler) createSession(c echo.Context) error {
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	sess, err := h.sessions.Create(c.Request().Context(), req.Name)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "create_failed",
			Message: err.Error(),
		})
	}
	return c.JSON(http.StatusCreated, sess)
}

func (h *Handler) getSession(c echo.Context) error {
	sess, err := h.sessions.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.sessionError(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) updateSession(c echo.Context) error {
	var req UpdateSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	ctx := c.Request().Context()
	id := c.Param("id")

	sess, err := h.sessions.Get(ctx, id)
	if err != nil {
		return h.sessionError(c, err)
	}
	if req.Name != nil {
		if sess, err = h.sessions.Rename(ctx, id, *req.Name); err != nil {
			return h.sessionError(c, err)
		}
	}
	if req.Notes != nil {
		if sess, err = h.sessions.UpdateNotes(ctx, id, *req.Notes); err != nil {
			return h.sessionError(c, err)
		}
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) deleteSession(c echo.Context) error {
	if err := h.sessions.Delete(c.Request().Context(), c.Param("id")); err != nil {
		if errors.Is(err, entities.ErrSessionBusy) {
			return c.JSON(http.StatusConflict, ErrorResponse{
				Error:   "session_busy",
				Message: "Session is recording or processing; stop it first",
			})
		}
		return h.sessionError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) updateNotes(c echo.Context) error {
	var req NotesRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	sess, err := h.sessions.UpdateNotes(c.Request().Context(), c.Param("id"), req.Notes)
	if err != nil {
		return h.sessionError(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) summarizeSession(c echo.Context) error {
	var req SummarizeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if req.Provider == "" {
		req.Provider = "ollama"
	}

	result, err := h.summarizer.Summarize(c.Request().Context(), c.Param("id"), req.Provider, req.Model)
	if err != nil {
		if errors.Is(err, entities.ErrSessionNotFound) {
			return h.sessionError(c, err)
		}
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "summarization_failed",
			Message: err.Error(),
		})
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) listModels(c echo.Context) error {
	return c.JSON(http.StatusOK, h.summarizer.ListAllModels(c.Request().Context()))
}

func (h *Handler) loadEngine(c echo.Context) error {
	if err := h.pipeline.Engine().Load(c.Request().Context()); err != nil {
		h.logger.Error("Engine load failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "engine_load_failed",
			Message: err.Error(),
		})
	}
	return c.JSON(http.StatusOK, EngineStatusResponse{Loaded: true})
}

func (h *Handler) unloadEngine(c echo.Context) error {
	if err := h.pipeline.Engine().Unload(c.Request().Context()); err != nil {
		h.logger.Error("Engine unload failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "engine_unload_failed",
			Message: err.Error(),
		})
	}
	return c.JSON(http.StatusOK, EngineStatusResponse{Loaded: false})
}

func (h *Handler) engineStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, EngineStatusResponse{Loaded: h.pipeline.Engine().IsLoaded()})
}

func (h *Handler) sessionError(c echo.Context, err error) error {
	if errors.Is(err, entities.ErrSessionNotFound) {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "session_not_found",
			Message: "Session does not exist",
		})
	}
	h.logger.Error("Session operation failed", zap.Error(err))
	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: err.Error(),
	})
}

func (h *Handler) captureError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, entities.ErrNoDeviceSelected):
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "no_device_selected",
			Message: "At least one device id is required",
		})
	case errors.Is(err, entities.ErrNotRecording):
		return c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "not_recording",
			Message: "Session has no active recording",
		})
	case errors.Is(err, entities.ErrSessionNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "session_not_found",
			Message: "Session does not exist",
		})
	case errors.Is(err, entities.ErrDeviceEnumeration):
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "device_enumeration_failed",
			Message: err.Error(),
		})
	}

	var startErr *entities.CaptureStartError
	if errors.As(err, &startErr) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "capture_start_failed",
			Message: err.Error(),
		})
	}

	h.logger.Error("Capture operation failed", zap.Error(err))
	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: err.Error(),
	})
}
