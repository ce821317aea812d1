package customers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"opsapi/internal/constants"
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
		customers := api.Group("/customers")
		{
			customers.POST("", h.Create)
			customers.GET("", h.List)
			customers.GET("/:id", h.Get)
			customers.PUT("/:id", h.Update)
			customers.DELETE("/:id", h.Delete)
			customers.GET("/:id/dependency-check", h.DependencyCheck)
		}
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
	var req CreateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	customer, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, customer)
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	customer, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, customer)
}

func (h *Handler) List(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(constants.DefaultLimit)))
	if err != nil || limit < 1 || limit > constants.MaxLimit {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(
			errors.ErrValidation.WithDetail("message", "limit must be between 1 and "+strconv.Itoa(constants.MaxLimit))))
		return
	}

	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(
			errors.ErrValidation.WithDetail("message", "offset must be >= 0")))
		return
	}

	response, err := h.service.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

func (h *Handler) Update(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req UpdateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	customer, err := h.service.Update(c.Request.Context(), id, req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, customer)
}

func (h *Handler) Delete(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		h.handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// DependencyCheck proxies the guarded dependency call for one customer. The
// dependency's own status code is passed through untouched so callers see the
// degraded / overloaded / timeout shapes exactly as the client produced them.
func (h *Handler) DependencyCheck(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	mode := c.DefaultQuery("mode", "ok")

	var delayMs *int
	if raw := c.Query("delayMs"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, errors.ToErrorResponse(
				errors.ErrValidation.WithDetail("message", "delayMs must be an integer")))
			return
		}
		delayMs = &parsed
	}

	result, err := h.service.DependencyCheck(c.Request.Context(), id, inferBaseURL(c), mode, delayMs)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(result.StatusCode, result.Body)
}

func (h *Handler) parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(
			errors.ErrValidation.WithDetail("message", "id must be a valid UUID")))
		return uuid.Nil, false
	}
	return id, true
}

// inferBaseURL rebuilds the address this server was reached on, so the
// dependency check can target the in-process stub without configuration.
func inferBaseURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host
}
