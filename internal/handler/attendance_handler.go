package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/NTA1210/learning-management-system-sub007/internal/models"
	"github.com/NTA1210/learning-management-system-sub007/internal/service"
	appErrors "github.com/NTA1210/learning-management-system-sub007/pkg/errors"
	"github.com/NTA1210/learning-management-system-sub007/pkg/response"
)

type attendanceService interface {
	List(ctx context.Context, req service.ListAttendanceRequest, actor models.Actor) ([]models.AttendanceDetail, *models.Pagination, error)
	StudentHistory(ctx context.Context, studentID string, req service.ListAttendanceRequest, actor models.Actor) ([]models.AttendanceDetail, *models.Pagination, error)
	SelfHistory(ctx context.Context, actorID string, req service.ListAttendanceRequest) ([]models.AttendanceDetail, *models.Pagination, error)
	Mark(ctx context.Context, req service.MarkAttendanceRequest, actor models.Actor) (*models.MarkResult, error)
	Update(ctx context.Context, req service.UpdateAttendanceRequest, actor models.Actor) (*models.UpdateResult, error)
	DeleteOne(ctx context.Context, id string, actor models.Actor) (*models.DeleteResult, error)
	DeleteMany(ctx context.Context, ids []string, actor models.Actor) (*models.BulkDeleteResult, error)
}

type exportService interface {
	Export(ctx context.Context, req service.ExportRequest, actor models.Actor) (*service.ExportResult, error)
}

// AttendanceHandler exposes the attendance management endpoints.
type AttendanceHandler struct {
	service attendanceService
	export  exportService
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(svc attendanceService, export exportService) *AttendanceHandler {
	return &AttendanceHandler{service: svc, export: export}
}

func listRequestFromQuery(c *gin.Context) (service.ListAttendanceRequest, error) {
	req := service.ListAttendanceRequest{
		CourseID:  c.Query("courseId"),
		StudentID: c.Query("studentId"),
		TeacherID: c.Query("teacherId"),
		SortBy:    c.Query("sortBy"),
		SortOrder: c.Query("sortOrder"),
		Page:      parseQueryInt(c, "page", 1),
		PageSize:  parseQueryInt(c, "limit", 50),
	}
	if status := c.Query("status"); status != "" {
		req.Status = &status
	}
	from, err := parseDateParam(c.Query("from"))
	if err != nil {
		return req, err
	}
	to, err := parseDateParam(c.Query("to"))
	if err != nil {
		return req, err
	}
	req.DateFrom = from
	req.DateTo = to
	return req, nil
}

// List handles GET /attendances.
func (h *AttendanceHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	req, err := listRequestFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	rows, pagination, err := h.service.List(c.Request.Context(), req, claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, pagination)
}

// StudentHistory handles GET /attendances/students/:id.
func (h *AttendanceHandler) StudentHistory(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	req, err := listRequestFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	rows, pagination, err := h.service.StudentHistory(c.Request.Context(), c.Param("id"), req, claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, pagination)
}

// SelfHistory handles GET /attendances/me.
func (h *AttendanceHandler) SelfHistory(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	req, err := listRequestFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	rows, pagination, err := h.service.SelfHistory(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, pagination)
}

// Export handles GET /attendances/export.
func (h *AttendanceHandler) Export(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	listReq, err := listRequestFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	req := service.ExportRequest{ListAttendanceRequest: listReq, Format: c.DefaultQuery("format", "json")}
	result, err := h.export.Export(c.Request.Context(), req, claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.Format == service.ReportFormatJSON {
		response.OK(c, result)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	c.Data(http.StatusOK, result.ContentType, result.Content)
}

// Mark handles POST /attendances.
func (h *AttendanceHandler) Mark(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	result, err := h.service.Mark(c.Request.Context(), req, claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Update handles PATCH /attendances.
func (h *AttendanceHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.UpdateAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	result, err := h.service.Update(c.Request.Context(), req, claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// DeleteOne handles DELETE /attendances/:id.
func (h *AttendanceHandler) DeleteOne(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.DeleteOne(c.Request.Context(), c.Param("id"), claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// DeleteMany handles DELETE /attendances with an id list body.
func (h *AttendanceHandler) DeleteMany(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	result, err := h.service.DeleteMany(c.Request.Context(), req.IDs, claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}
