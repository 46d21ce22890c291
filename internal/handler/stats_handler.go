package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/NTA1210/learning-management-system-sub007/internal/models"
	appErrors "github.com/NTA1210/learning-management-system-sub007/pkg/errors"
	"github.com/NTA1210/learning-management-system-sub007/pkg/response"
)

type statsService interface {
	CourseStats(ctx context.Context, courseID string, opts models.StatsOptions, actor models.Actor) (*models.CourseAttendanceStats, error)
	StudentStats(ctx context.Context, courseID, studentID string, opts models.StatsOptions, actor models.Actor) (*models.StudentAttendanceStats, error)
}

// StatsHandler exposes the attendance statistics endpoints.
type StatsHandler struct {
	service statsService
}

// NewStatsHandler constructs the handler.
func NewStatsHandler(svc statsService) *StatsHandler {
	return &StatsHandler{service: svc}
}

func statsOptionsFromQuery(c *gin.Context) (models.StatsOptions, error) {
	opts := models.StatsOptions{}
	if raw := c.Query("threshold"); raw != "" {
		threshold, err := strconv.ParseFloat(raw, 64)
		if err != nil || threshold < 0 {
			return opts, appErrors.Clone(appErrors.ErrValidation, "invalid threshold")
		}
		opts.Threshold = threshold
	}
	from, err := parseDateParam(c.Query("from"))
	if err != nil {
		return opts, err
	}
	to, err := parseDateParam(c.Query("to"))
	if err != nil {
		return opts, err
	}
	opts.From = from
	opts.To = to
	return opts, nil
}

// CourseStats handles GET /courses/:id/attendance-stats.
func (h *StatsHandler) CourseStats(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	opts, err := statsOptionsFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	stats, err := h.service.CourseStats(c.Request.Context(), c.Param("id"), opts, claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stats)
}

// StudentStats handles GET /courses/:id/students/:studentId/attendance-stats.
func (h *StatsHandler) StudentStats(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	opts, err := statsOptionsFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	stats, err := h.service.StudentStats(c.Request.Context(), c.Param("id"), c.Param("studentId"), opts, claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stats)
}
