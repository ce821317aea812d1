package notes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"opsapi/internal/logger"
	"opsapi/pkg/errors"
)

type Handler struct {
	service Service
	logger  logger.Logger
}

func NewHandler(service Service, log logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.POST("/tasks/:taskId/notes", h.Create)
		api.GET("/tasks/:taskId/notes", h.List)
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error",
		"error", err,
		"path", c.Request.URL.Path,
	)
	c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
}

func (h *Handler) Create(c *gin.Context) {
	taskID, ok := h.parseTaskID(c)
	if !ok {
		return
	}

	var req CreateNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	note, err := h.service.Create(c.Request.Context(), taskID, req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, note)
}

func (h *Handler) List(c *gin.Context) {
	taskID, ok := h.parseTaskID(c)
	if !ok {
		return
	}

	response, err := h.service.ListForTask(c.Request.Context(), taskID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

func (h *Handler) parseTaskID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("taskId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(
			errors.ErrValidation.WithDetail("message", "taskId must be a valid UUID")))
		return uuid.Nil, false
	}
	return id, true
}
