package handlers

import (
	"errors"
	"net/http"

	"coreops/internal/middleware"
	"coreops/internal/services"

	"github.com/gin-gonic/gin"
)

type InternalMessageHandler struct {
	service *services.InternalMessageService
}

func NewInternalMessageHandler(service *services.InternalMessageService) *InternalMessageHandler {
	return &InternalMessageHandler{service: service}
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

func (h *InternalMessageHandler) List(c *gin.Context) {
	msgs, err := h.service.List(c.Request.Context(), middleware.WorkspaceID(c), queryInt(c, "limit", 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list messages", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *InternalMessageHandler) Send(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	from := services.Sender{
		WorkspaceID: middleware.WorkspaceID(c),
		UserID:      middleware.UserID(c),
		Name:        c.GetString(middleware.ContextUserName),
	}
	msg, err := h.service.Send(c.Request.Context(), from, req.Content)
	switch {
	case errors.Is(err, services.ErrEmptyMessage), errors.Is(err, services.ErrMessageTooLong):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid message", Message: err.Error()})
	case errors.Is(err, services.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "Too Many Requests", Message: "Rate limit exceeded. Please slow down."})
	case err != nil:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to send message", Message: err.Error()})
	default:
		c.JSON(http.StatusCreated, msg)
	}
}

func RegisterInternalMessageRoutes(r *gin.RouterGroup, handler *InternalMessageHandler) {
	msgs := r.Group("/internal/messages")
	{
		msgs.GET("", handler.List)
		msgs.POST("", handler.Send)
	}
}
