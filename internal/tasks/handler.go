package tasks

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
		api.POST("/customers/:id/tasks", h.Create)
		api.GET("/customers/:id/tasks", h.List)
		api.GET("/customers/:id/tasks/summary", h.Summary)
		api.PATCH("/tasks/:taskId", h.UpdateStatus)
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
	customerID, ok := h.parseUUID(c, c.Param("id"))
	if !ok {
		return
	}

	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	task, err := h.service.Create(c.Request.Context(), customerID, req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, task)
}

func (h *Handler) List(c *gin.Context) {
	customerID, ok := h.parseUUID(c, c.Param("id"))
	if !ok {
		return
	}

	response, err := h.service.ListForCustomer(c.Request.Context(), customerID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

func (h *Handler) Summary(c *gin.Context) {
	customerID, ok := h.parseUUID(c, c.Param("id"))
	if !ok {
		return
	}

	response, err := h.service.Summary(c.Request.Context(), customerID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	taskID, ok := h.parseUUID(c, c.Param("taskId"))
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	task, err := h.service.UpdateStatus(c.Request.Context(), taskID, req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, task)
}

func (h *Handler) parseUUID(c *gin.Context, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(
			errors.ErrValidation.WithDetail("message", "id must be a valid UUID")))
		return uuid.Nil, false
	}
	return id, true
}
