package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/NTA1210/learning-management-system-sub007/internal/models"
	appErrors "github.com/NTA1210/learning-management-system-sub007/pkg/errors"
	"github.com/NTA1210/learning-management-system-sub007/pkg/response"
)

type notificationService interface {
	SendAbsenceNotifications(ctx context.Context, courseID string, studentIDs []string, actor models.Actor) (*models.NotificationResult, error)
}

// NotificationHandler exposes the absence notification endpoint.
type NotificationHandler struct {
	service notificationService
}

// NewNotificationHandler constructs the handler.
func NewNotificationHandler(svc notificationService) *NotificationHandler {
	return &NotificationHandler{service: svc}
}

// Send handles POST /courses/:id/absence-notifications.
func (h *NotificationHandler) Send(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req struct {
		StudentIDs []string `json:"student_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	result, err := h.service.SendAbsenceNotifications(c.Request.Context(), c.Param("id"), req.StudentIDs, claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}
